package banking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teller-bank/teller_bank/internal/account"
	"github.com/teller-bank/teller_bank/internal/ledger"
	"github.com/teller-bank/teller_bank/internal/logging"
	"github.com/teller-bank/teller_bank/internal/notification"
	"github.com/teller-bank/teller_bank/internal/txlog"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type testNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *testNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, m := range n.sent {
		out = append(out, m.Kind)
	}
	return out
}

// failingLog accepts nothing.
type failingLog struct{ txlog.Log }

func (failingLog) Append(context.Context, txlog.Entry) (txlog.Record, error) {
	return txlog.Record{}, errors.New("log disk full")
}

// faultyStore hands out units whose credit or commit can be made to fail.
type faultyStore struct {
	ledger.Store
	creditMisses bool
	commitErr    error
}

func (s *faultyStore) Begin(ctx context.Context) (ledger.Unit, error) {
	unit, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyUnit{Unit: unit, store: s}, nil
}

type faultyUnit struct {
	ledger.Unit
	store *faultyStore
}

func (u *faultyUnit) Credit(ctx context.Context, number string, amount decimal.Decimal) (int64, error) {
	if u.store.creditMisses {
		return 0, nil
	}
	return u.Unit.Credit(ctx, number, amount)
}

func (u *faultyUnit) Commit(ctx context.Context) error {
	if u.store.commitErr != nil {
		return u.store.commitErr
	}
	return u.Unit.Commit(ctx)
}

type fixture struct {
	store    ledger.Store
	log      txlog.Log
	notifier *testNotifier
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: ledger.NewInMemory(), log: txlog.NewInMemory(), notifier: &testNotifier{}}
	f.engine = NewEngine(f.store, f.log, f.notifier, logging.Discard(), account.DefaultTerms())
	return f
}

func (f *fixture) seed(t *testing.T, number string, kind account.Kind, balance string, mutate func(*account.Terms)) {
	t.Helper()
	_, err := ledger.SeedAccount(context.Background(), f.store, number, kind, balance, mutate)
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, number string) string {
	t.Helper()
	acct, err := f.store.Get(context.Background(), number)
	require.NoError(t, err)
	return acct.Balance().StringFixed(2)
}

func (f *fixture) records(t *testing.T) []txlog.Record {
	t.Helper()
	recs, err := f.log.ListAll(context.Background())
	require.NoError(t, err)
	return recs
}

func TestTransferBetweenCheckingAndSavings(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "chk", account.Checking, "200.00", nil)
	f.seed(t, "sav", account.Savings, "50.00", nil)

	receipt, err := f.engine.Transfer(context.Background(), "chk", "sav", d("100.00"))
	require.NoError(t, err)

	assert.Equal(t, StateLogged, receipt.State)
	assert.NoError(t, receipt.AuditErr)
	assert.Equal(t, "100.00", f.balance(t, "chk"))
	assert.Equal(t, "150.00", f.balance(t, "sav"))
	require.NotNil(t, receipt.Source)
	assert.Equal(t, "100.00", receipt.Source.Balance().StringFixed(2))
	assert.Equal(t, "150.00", receipt.Destination.Balance().StringFixed(2))

	recs := f.records(t)
	require.Len(t, recs, 2)
	byAccount := map[string]txlog.Record{}
	for _, r := range recs {
		assert.Equal(t, txlog.Transfer, r.Kind)
		assert.Equal(t, receipt.CorrelationID, r.CorrelationID)
		assert.True(t, r.Amount.Equal(d("100")))
		byAccount[r.AccountNumber] = r
	}
	assert.Equal(t, "sav", *byAccount["chk"].ReferenceAccount)
	assert.Equal(t, "chk", *byAccount["sav"].ReferenceAccount)

	assert.Equal(t, []string{notification.KindTransfer}, f.notifier.kinds())
}

func TestTransferRejectedByOverdraftPolicy(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "chk", account.Checking, "50.00", func(terms *account.Terms) { terms.OverdraftLimit = decimal.Zero })
	f.seed(t, "sav", account.Savings, "500.00", nil)

	receipt, err := f.engine.Transfer(context.Background(), "chk", "sav", d("100.00"))
	require.ErrorIs(t, err, account.ErrPolicyViolation)

	assert.Equal(t, StateAborted, receipt.State)
	assert.Equal(t, "50.00", f.balance(t, "chk"))
	assert.Equal(t, "500.00", f.balance(t, "sav"))
	assert.Empty(t, f.records(t))
	assert.Empty(t, f.notifier.kinds())
}

func TestTransferUpFrontRejections(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "100.00", nil)
	f.seed(t, "b", account.Checking, "100.00", nil)
	ctx := context.Background()

	_, err := f.engine.Transfer(ctx, "a", "a", d("1"))
	assert.ErrorIs(t, err, account.ErrSameAccount)

	for _, amt := range []string{"0", "-5"} {
		_, err = f.engine.Transfer(ctx, "a", "b", d(amt))
		assert.ErrorIs(t, err, account.ErrInvalidAmount)
	}

	_, err = f.engine.Transfer(ctx, "a", "zzz", d("1"))
	require.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.Contains(t, err.Error(), "destination")

	_, err = f.engine.Transfer(ctx, "000", "b", d("1"))
	require.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.Contains(t, err.Error(), "source")

	assert.Equal(t, "100.00", f.balance(t, "a"))
	assert.Equal(t, "100.00", f.balance(t, "b"))
	assert.Empty(t, f.records(t))
}

func TestTransferCreditFailureRollsBackDebit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "100.00", nil)
	f.seed(t, "b", account.Savings, "100.00", nil)
	faulty := &faultyStore{Store: f.store, creditMisses: true}
	engine := NewEngine(faulty, f.log, f.notifier, logging.Discard(), account.DefaultTerms())

	receipt, err := engine.Transfer(context.Background(), "a", "b", d("40.00"))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, StateAborted, receipt.State)

	assert.Equal(t, "100.00", f.balance(t, "a"))
	assert.Equal(t, "100.00", f.balance(t, "b"))
	acct, _ := f.store.Get(context.Background(), "a")
	assert.Zero(t, acct.MonthlyTransactions)
	assert.Empty(t, f.records(t))
}

func TestTransferCommitFailureIsTransferFailed(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "100.00", nil)
	f.seed(t, "b", account.Checking, "0.00", nil)
	faulty := &faultyStore{Store: f.store, commitErr: errors.New("connection reset")}
	engine := NewEngine(faulty, f.log, nil, logging.Discard(), account.DefaultTerms())

	receipt, err := engine.Transfer(context.Background(), "a", "b", d("10"))
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.Equal(t, StateAborted, receipt.State)
	assert.Equal(t, "100.00", f.balance(t, "a"))
	assert.Equal(t, "0.00", f.balance(t, "b"))
}

func TestAuditFailureDoesNotReverseCommit(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "100.00", nil)
	f.seed(t, "b", account.Checking, "0.00", nil)
	engine := NewEngine(f.store, failingLog{Log: f.log}, f.notifier, logging.Discard(), account.DefaultTerms())

	receipt, err := engine.Transfer(context.Background(), "a", "b", d("30"))
	require.NoError(t, err)
	assert.Error(t, receipt.AuditErr)
	assert.Equal(t, StateCommitted, receipt.State)
	assert.Empty(t, receipt.Records)
	assert.Equal(t, "70.00", f.balance(t, "a"))
	assert.Equal(t, "30.00", f.balance(t, "b"))
}

func TestNotificationFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	f.seed(t, "a", account.Checking, "0.00", nil)

	_, err := f.engine.Deposit(context.Background(), "a", d("5"))
	require.NoError(t, err)
	assert.Equal(t, "5.00", f.balance(t, "a"))
}

func TestWithdrawScenarios(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sav", account.Savings, "500.00", nil)
	f.seed(t, "chk", account.Checking, "0.00", nil)
	ctx := context.Background()

	receipt, err := f.engine.Withdraw(ctx, "sav", d("450.00"))
	require.ErrorIs(t, err, account.ErrPolicyViolation)
	assert.Equal(t, StateAborted, receipt.State)
	assert.Equal(t, "500.00", f.balance(t, "sav"))

	receipt, err = f.engine.Withdraw(ctx, "chk", d("80.00"))
	require.NoError(t, err)
	assert.Equal(t, StateLogged, receipt.State)
	assert.Equal(t, "-80.00", f.balance(t, "chk"))

	_, err = f.engine.Withdraw(ctx, "missing", d("1"))
	assert.ErrorIs(t, err, account.ErrAccountNotFound)

	recs := f.records(t)
	require.Len(t, recs, 1)
	assert.Equal(t, txlog.Withdrawal, recs[0].Kind)
	assert.Nil(t, recs[0].ReferenceAccount)
}

func TestDepositCountsCheckingTransactions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "chk", account.Checking, "0.00", nil)
	ctx := context.Background()

	_, err := f.engine.Deposit(ctx, "chk", d("10"))
	require.NoError(t, err)
	receipt, err := f.engine.Deposit(ctx, "chk", d("2.50"))
	require.NoError(t, err)

	assert.Equal(t, 2, receipt.Destination.MonthlyTransactions)
	acct, _ := f.store.Get(ctx, "chk")
	assert.Equal(t, 2, acct.MonthlyTransactions)
	assert.Equal(t, "12.50", acct.Balance().StringFixed(2))

	_, err = f.engine.Deposit(ctx, "chk", decimal.Zero)
	assert.ErrorIs(t, err, account.ErrInvalidAmount)
}

func TestMonthlyCycle(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sav", account.Savings, "1000.00", nil)
	f.seed(t, "chk", account.Checking, "0.00", nil)
	ctx := context.Background()

	res, err := f.engine.ApplyMonthlyCycle(ctx, "sav")
	require.NoError(t, err)
	assert.Equal(t, "25.00", res.Cycle.Interest.StringFixed(2))
	assert.Equal(t, "1025.00", f.balance(t, "sav"))

	_, err = f.engine.Withdraw(ctx, "chk", d("95"))
	require.NoError(t, err)
	_, err = f.engine.Deposit(ctx, "chk", d("1"))
	require.NoError(t, err)
	res, err = f.engine.ApplyMonthlyCycle(ctx, "chk")
	require.NoError(t, err)
	assert.Equal(t, "12.00", res.Cycle.Fee.StringFixed(2))
	acct, _ := f.store.Get(ctx, "chk")
	assert.Equal(t, "-106.00", acct.Balance().StringFixed(2))
	assert.Zero(t, acct.MonthlyTransactions)

	kinds := map[txlog.Kind]int{}
	for _, r := range f.records(t) {
		kinds[r.Kind]++
	}
	assert.Equal(t, map[txlog.Kind]int{txlog.Deposit: 2, txlog.Withdrawal: 2}, kinds)

	_, err = f.engine.ApplyMonthlyCycle(ctx, "missing")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := WithActor(ctx, Actor{UserID: "alice"})
	bob := WithActor(ctx, Actor{UserID: "bob"})
	admin := WithActor(ctx, Actor{UserID: "root", Admin: true})

	acct, err := f.engine.OpenAccount(alice, OpenInput{Kind: account.Checking, OwnerID: "bob", Opening: d("100")})
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.OwnerID, "customers always open accounts for themselves")

	other, err := f.engine.OpenAccount(admin, OpenInput{Kind: account.Savings, OwnerID: "bob", Opening: d("200")})
	require.NoError(t, err)
	assert.Equal(t, "bob", other.OwnerID)

	_, err = f.engine.Withdraw(bob, acct.Number, d("1"))
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.engine.Transfer(bob, acct.Number, other.Number, d("1"))
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.engine.Account(bob, acct.Number)
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = f.engine.AccountsByOwner(bob, "alice")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.engine.Transfer(alice, acct.Number, other.Number, d("10"))
	require.NoError(t, err)
	_, err = f.engine.Withdraw(admin, other.Number, d("10"))
	require.NoError(t, err)

	mine, err := f.engine.AccountsByOwner(alice, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "90.00", mine[0].Balance().StringFixed(2))

	history, err := f.engine.AccountHistory(alice, acct.Number)
	require.NoError(t, err)
	require.Len(t, history, 2, "opening deposit plus the transfer leg")
	assert.Equal(t, txlog.Transfer, history[0].Kind)
}

func TestOpenAccountRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.OpenAccount(ctx, OpenInput{Kind: account.Checking, Opening: d("-1")})
	assert.ErrorIs(t, err, account.ErrInvalidAmount)
	_, err = f.engine.OpenAccount(ctx, OpenInput{Kind: "BROKERAGE"})
	assert.ErrorIs(t, err, account.ErrUnknownKind)

	acct, err := f.engine.OpenAccount(ctx, OpenInput{Kind: account.Savings, Opening: d("50")})
	require.NoError(t, err)
	assert.Equal(t, "50.00", acct.Balance().StringFixed(2))
	assert.Equal(t, "100.00", acct.Terms.MinimumBalance.StringFixed(2))
}

func TestCloseAccountAndClearHistory(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "10.00", nil)
	ctx := context.Background()

	require.ErrorIs(t, f.engine.CloseAccount(ctx, "a"), ledger.ErrBalanceNotZero)
	_, err := f.engine.Withdraw(ctx, "a", d("10"))
	require.NoError(t, err)
	require.NoError(t, f.engine.CloseAccount(ctx, "a"))
	_, err = f.engine.Account(ctx, "a")
	assert.ErrorIs(t, err, account.ErrAccountNotFound)

	history, err := f.engine.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1, "closing keeps the audit trail")

	require.NoError(t, f.engine.ClearHistory(ctx))
	history, err = f.engine.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConcurrentTransfersConserveBalance(t *testing.T) {
	f := newFixture(t)
	numbers := []string{"a", "b", "c", "d"}
	for _, n := range numbers {
		f.seed(t, n, account.Checking, "100.00", func(terms *account.Terms) { terms.OverdraftLimit = decimal.Zero })
	}
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src := numbers[i%len(numbers)]
			dst := numbers[(i*3+1)%len(numbers)]
			_, err := f.engine.Transfer(ctx, src, dst, d("7.00"))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, account.ErrSameAccount), errors.Is(err, account.ErrPolicyViolation):
			default:
				t.Errorf("unexpected transfer error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for _, n := range numbers {
		acct, err := f.store.Get(ctx, n)
		require.NoError(t, err)
		assert.False(t, acct.Balance().IsNegative(), "account %s overdrew", n)
		total = total.Add(acct.Balance())
	}
	assert.Equal(t, "400.00", total.StringFixed(2))
	assert.Len(t, f.records(t), int(succeeded.Load())*2)
}

func TestConcurrentWithdrawalsNeverBreachFloor(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "sav", account.Savings, "1000.00", nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.engine.Withdraw(ctx, "sav", d("100"))
		}()
	}
	wg.Wait()

	assert.Equal(t, "100.00", f.balance(t, "sav"))
	assert.Len(t, f.records(t), 9)
}

func TestSubCentAmountsAreRejectedBeforeTouchingTheLedger(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "10.00", nil)
	f.seed(t, "b", account.Checking, "5.00", nil)
	ctx := context.Background()

	receipt, err := f.engine.Transfer(ctx, "a", "b", d("0.005"))
	require.ErrorIs(t, err, account.ErrInvalidAmount)
	assert.Equal(t, StateAborted, receipt.State)

	_, err = f.engine.Deposit(ctx, "a", d("0.001"))
	assert.ErrorIs(t, err, account.ErrInvalidAmount)
	_, err = f.engine.Withdraw(ctx, "a", d("1.999"))
	assert.ErrorIs(t, err, account.ErrInvalidAmount)
	_, err = f.engine.OpenAccount(ctx, OpenInput{Kind: account.Savings, Opening: d("150.005")})
	assert.ErrorIs(t, err, account.ErrInvalidAmount)

	assert.Equal(t, "10.00", f.balance(t, "a"))
	assert.Equal(t, "5.00", f.balance(t, "b"))
	assert.Empty(t, f.records(t))
	accts, err := f.engine.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accts, 2)
}

func TestCentAmountsMoveExactly(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "a", account.Checking, "10.00", nil)
	f.seed(t, "b", account.Checking, "5.00", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		receipt, err := f.engine.Transfer(ctx, "a", "b", d("0.01"))
		require.NoError(t, err)
		// stored balances and logged amounts carry exactly two decimals
		assert.True(t, receipt.Source.Balance().Equal(receipt.Source.Balance().Truncate(2)))
		for _, rec := range receipt.Records {
			assert.True(t, rec.Amount.Equal(d("0.01")), "logged %s", rec.Amount)
		}
	}
	assert.Equal(t, "9.97", f.balance(t, "a"))
	assert.Equal(t, "5.03", f.balance(t, "b"))

	a, err := f.store.Get(ctx, "a")
	require.NoError(t, err)
	b, err := f.store.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, a.Balance().Add(b.Balance()).Equal(d("15.00")))
}
