package account

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAccount(t *testing.T, kind Kind, opening string, mutate func(*Terms)) *Account {
	t.Helper()
	terms := DefaultTerms()
	if mutate != nil {
		mutate(&terms)
	}
	a, err := New("acct-"+string(kind), kind, "owner-1", d(opening), terms)
	require.NoError(t, err)
	return &a
}

func TestSavingsWithdrawBelowMinimumIsRejected(t *testing.T) {
	a := newAccount(t, Savings, "500.00", nil)

	err := a.Withdraw(d("450.00"))
	require.ErrorIs(t, err, ErrPolicyViolation)
	assert.True(t, a.Balance().Equal(d("500.00")), "balance changed to %s", a.Balance())
}

func TestCheckingWithdrawIntoOverdraft(t *testing.T) {
	a := newAccount(t, Checking, "0.00", nil)

	require.NoError(t, a.Withdraw(d("80.00")))
	assert.True(t, a.Balance().Equal(d("-80.00")))
	assert.Equal(t, 1, a.MonthlyTransactions)

	require.ErrorIs(t, a.Withdraw(d("20.01")), ErrPolicyViolation)
	require.NoError(t, a.Withdraw(d("20.00")))
	assert.True(t, a.Balance().Equal(a.Terms.OverdraftLimit))
}

func TestNonPositiveAmountsAreInvalid(t *testing.T) {
	for _, kind := range []Kind{Checking, Savings} {
		a := newAccount(t, kind, "500.00", nil)
		for _, amt := range []string{"0", "-1.00"} {
			assert.ErrorIs(t, a.Deposit(d(amt)), ErrInvalidAmount)
			assert.ErrorIs(t, a.Withdraw(d(amt)), ErrInvalidAmount)
		}
		assert.True(t, a.Balance().Equal(d("500.00")))
		assert.Zero(t, a.MonthlyTransactions)
	}
}

func TestSavingsInterestCycle(t *testing.T) {
	a := newAccount(t, Savings, "1000.00", nil)

	cycle, err := a.ApplyMonthlyCycle()
	require.NoError(t, err)
	assert.True(t, cycle.Interest.Equal(d("25.00")))
	assert.True(t, a.Balance().Equal(d("1025.00")), "got %s", a.Balance())
}

func TestSavingsInterestRoundsToCents(t *testing.T) {
	a := newAccount(t, Savings, "333.33", func(t *Terms) { t.InterestRate = d("0.015") })

	cycle, err := a.ApplyMonthlyCycle()
	require.NoError(t, err)
	// 333.33 * 0.015 = 4.99995
	assert.Equal(t, "5.00", cycle.Interest.StringFixed(2))
	assert.Equal(t, "338.33", a.Balance().StringFixed(2))
}

func TestCheckingFeeBypassesOverdraftFloor(t *testing.T) {
	a := newAccount(t, Checking, "0.00", nil)
	require.NoError(t, a.Withdraw(d("95.00")))
	require.NoError(t, a.Deposit(d("1.00")))
	assert.Equal(t, 2, a.MonthlyTransactions)

	cycle, err := a.ApplyMonthlyCycle()
	require.NoError(t, err)
	assert.True(t, cycle.Fee.Equal(d("12.00")))
	assert.Equal(t, "-106.00", a.Balance().StringFixed(2))
	assert.Zero(t, a.MonthlyTransactions)
}

func TestSavingsDoesNotCountTransactions(t *testing.T) {
	a := newAccount(t, Savings, "500.00", nil)
	require.NoError(t, a.Deposit(d("10")))
	require.NoError(t, a.Withdraw(d("10")))
	assert.Zero(t, a.MonthlyTransactions)
}

func TestTransfer(t *testing.T) {
	src := newAccount(t, Checking, "200.00", nil)
	dst := newAccount(t, Savings, "50.00", nil)

	require.NoError(t, Transfer(src, dst, d("100.00")))
	assert.Equal(t, "100.00", src.Balance().StringFixed(2))
	assert.Equal(t, "150.00", dst.Balance().StringFixed(2))
}

func TestTransferRejections(t *testing.T) {
	src := newAccount(t, Checking, "50.00", func(t *Terms) { t.OverdraftLimit = decimal.Zero })
	dst := newAccount(t, Savings, "500.00", nil)

	assert.ErrorIs(t, Transfer(src, src, d("1")), ErrSameAccount)
	assert.ErrorIs(t, Transfer(src, dst, d("0")), ErrInvalidAmount)
	assert.ErrorIs(t, Transfer(src, dst, d("100.00")), ErrPolicyViolation)

	assert.Equal(t, "50.00", src.Balance().StringFixed(2))
	assert.Equal(t, "500.00", dst.Balance().StringFixed(2))
}

func TestTransferSameNumberDifferentValues(t *testing.T) {
	a := newAccount(t, Checking, "100.00", nil)
	b := *a

	require.NoError(t, Transfer(a, &b, d("10")))
}

func TestSnapshotRoundTripKeepsBalance(t *testing.T) {
	a := newAccount(t, Checking, "42.10", nil)
	require.NoError(t, a.Deposit(d("0.01")))

	restored, err := FromSnapshot(a.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "42.11", restored.Balance().StringFixed(2))
	assert.Equal(t, 1, restored.MonthlyTransactions)

	_, err = FromSnapshot(Snapshot{Kind: "BROKERAGE"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" savings ")
	require.NoError(t, err)
	assert.Equal(t, Savings, k)

	_, err = ParseKind("credit")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestInsufficientFundsIsPolicyViolation(t *testing.T) {
	assert.ErrorIs(t, ErrInsufficientFunds, ErrPolicyViolation)
}

func TestPolicyTableIsInitialised(t *testing.T) {
	chk := newAccount(t, Checking, "0.00", nil)
	sav := newAccount(t, Savings, "0.00", nil)
	assert.True(t, chk.TracksTransactions())
	assert.False(t, sav.TracksTransactions())
	assert.True(t, chk.Floor().Equal(d("-100.00")))
	assert.True(t, sav.Floor().Equal(d("100.00")))
}

func TestSubCentAmountsAreInvalid(t *testing.T) {
	a := newAccount(t, Checking, "10.00", nil)
	b := newAccount(t, Checking, "5.00", nil)

	for _, amt := range []string{"0.005", "0.001", "1.999", "10.0001"} {
		assert.ErrorIs(t, a.Deposit(d(amt)), ErrInvalidAmount, "deposit %s", amt)
		assert.ErrorIs(t, a.Withdraw(d(amt)), ErrInvalidAmount, "withdraw %s", amt)
		assert.ErrorIs(t, Transfer(a, b, d(amt)), ErrInvalidAmount, "transfer %s", amt)
	}
	assert.True(t, a.Balance().Equal(d("10.00")), "source changed to %s", a.Balance())
	assert.True(t, b.Balance().Equal(d("5.00")), "destination changed to %s", b.Balance())
	assert.Zero(t, a.MonthlyTransactions)

	// trailing zeros below the cent are still whole cents
	require.NoError(t, a.Deposit(d("0.010")))
	assert.True(t, a.Balance().Equal(d("10.01")))
}

func TestOpeningBalanceMustBeWholeCents(t *testing.T) {
	_, err := New("x", Savings, "owner-1", d("100.005"), DefaultTerms())
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = New("x", Savings, "owner-1", d("-1.00"), DefaultTerms())
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = New("x", Savings, "owner-1", d("0"), DefaultTerms())
	assert.NoError(t, err)
}

func TestValidAmount(t *testing.T) {
	assert.True(t, ValidAmount(d("0.01")))
	assert.True(t, ValidAmount(d("1234.50")))
	assert.False(t, ValidAmount(d("0")))
	assert.False(t, ValidAmount(d("-0.01")))
	assert.False(t, ValidAmount(d("0.009")))
}
