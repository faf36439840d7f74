// Package banking moves money between ledger accounts. Every movement runs in
// a single ledger unit and is written to the transaction log after commit.
package banking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teller-bank/teller_bank/internal/account"
	"github.com/teller-bank/teller_bank/internal/ledger"
	"github.com/teller-bank/teller_bank/internal/notification"
	"github.com/teller-bank/teller_bank/internal/txlog"
)

var (
	// ErrTransferFailed reports a storage anomaly after validation passed. No
	// partial state is kept, so the caller may retry the whole transfer.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrNotOwner indicates the caller does not own the account.
	ErrNotOwner = errors.New("not owner of account")
)

// Receipt describes the outcome of a movement. Source and Destination hold
// the post-commit state of the accounts the movement touched.
type Receipt struct {
	CorrelationID string
	Kind          txlog.Kind
	Amount        decimal.Decimal
	State         State
	Source        *account.Account
	Destination   *account.Account
	Records       []txlog.Record
	// AuditErr is set when the movement committed but logging it failed.
	AuditErr    error
	CompletedAt time.Time
}

// CycleResult describes one monthly cycle posting.
type CycleResult struct {
	Account  account.Account
	Cycle    account.Cycle
	Records  []txlog.Record
	AuditErr error
}

// OpenInput captures the data needed to open an account.
type OpenInput struct {
	Kind    account.Kind
	OwnerID string
	Opening decimal.Decimal
}

// Engine orchestrates deposits, withdrawals and transfers over a ledger store.
type Engine struct {
	store    ledger.Store
	log      txlog.Log
	notifier notification.Notifier
	logger   *slog.Logger
	terms    account.Terms
	now      func() time.Time
}

// NewEngine constructs an engine. New accounts are opened with terms.
func NewEngine(store ledger.Store, log txlog.Log, notifier notification.Notifier, logger *slog.Logger, terms account.Terms) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		log:      log,
		notifier: notifier,
		logger:   logger,
		terms:    terms,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) start(kind txlog.Kind, amount decimal.Decimal) *attempt {
	return &attempt{receipt: Receipt{
		CorrelationID: uuid.NewString(),
		Kind:          kind,
		Amount:        amount,
		State:         StateStarted,
	}}
}

// Deposit credits a positive amount to an account.
func (e *Engine) Deposit(ctx context.Context, number string, amount decimal.Decimal) (Receipt, error) {
	att := e.start(txlog.Deposit, amount)
	if !account.ValidAmount(amount) {
		return att.abort(account.ErrInvalidAmount)
	}

	unit, err := e.store.Begin(ctx)
	if err != nil {
		return att.abort(fmt.Errorf("begin deposit: %w", err))
	}
	defer unit.Rollback(ctx) // nolint:errcheck

	acct, err := lock(ctx, unit, "account", number)
	if err != nil {
		return att.abort(err)
	}
	if err := authorize(ctx, acct.OwnerID); err != nil {
		return att.abort(err)
	}
	if err := acct.Deposit(amount); err != nil {
		return att.abort(err)
	}
	if err := att.advance(StateValidated); err != nil {
		return att.abort(err)
	}

	n, err := unit.Credit(ctx, number, amount)
	if err != nil {
		return att.abort(fmt.Errorf("credit %s: %w", number, err))
	}
	if n == 0 {
		return att.abort(fmt.Errorf("account %s: %w", number, account.ErrAccountNotFound))
	}
	if err := att.advance(StateCredited); err != nil {
		return att.abort(err)
	}

	if err := unit.Commit(ctx); err != nil {
		return att.abort(fmt.Errorf("commit deposit: %w", err))
	}
	att.receipt.Destination = &acct
	e.finish(ctx, att, []txlog.Entry{{AccountNumber: number, Kind: txlog.Deposit, Amount: amount}})

	e.logger.Info("deposit committed", "account", number, "amount", amount.StringFixed(2),
		"correlation_id", att.receipt.CorrelationID)
	e.notify(ctx, notification.Message{
		Kind:          notification.KindDeposit,
		Destination:   acct.OwnerID,
		Body:          fmt.Sprintf("%s deposited to account %s", amount.StringFixed(2), number),
		AccountNumber: number,
		Amount:        amount,
		CorrelationID: att.receipt.CorrelationID,
		OccurredAt:    att.receipt.CompletedAt,
	})
	return att.receipt, nil
}

// Withdraw debits a positive amount if the account's policy allows it.
func (e *Engine) Withdraw(ctx context.Context, number string, amount decimal.Decimal) (Receipt, error) {
	att := e.start(txlog.Withdrawal, amount)
	if !account.ValidAmount(amount) {
		return att.abort(account.ErrInvalidAmount)
	}

	unit, err := e.store.Begin(ctx)
	if err != nil {
		return att.abort(fmt.Errorf("begin withdrawal: %w", err))
	}
	defer unit.Rollback(ctx) // nolint:errcheck

	acct, err := lock(ctx, unit, "account", number)
	if err != nil {
		return att.abort(err)
	}
	if err := authorize(ctx, acct.OwnerID); err != nil {
		return att.abort(err)
	}
	floor := acct.Floor()
	if err := acct.Withdraw(amount); err != nil {
		return att.abort(err)
	}
	if err := att.advance(StateValidated); err != nil {
		return att.abort(err)
	}

	n, err := unit.ConditionalDebit(ctx, number, amount, floor)
	if err != nil {
		return att.abort(fmt.Errorf("debit %s: %w", number, err))
	}
	if n == 0 {
		return att.abort(account.ErrInsufficientFunds)
	}
	if err := att.advance(StateDebited); err != nil {
		return att.abort(err)
	}

	if err := unit.Commit(ctx); err != nil {
		return att.abort(fmt.Errorf("commit withdrawal: %w", err))
	}
	att.receipt.Source = &acct
	e.finish(ctx, att, []txlog.Entry{{AccountNumber: number, Kind: txlog.Withdrawal, Amount: amount}})

	e.logger.Info("withdrawal committed", "account", number, "amount", amount.StringFixed(2),
		"correlation_id", att.receipt.CorrelationID)
	e.notify(ctx, notification.Message{
		Kind:          notification.KindWithdrawal,
		Destination:   acct.OwnerID,
		Body:          fmt.Sprintf("%s withdrawn from account %s", amount.StringFixed(2), number),
		AccountNumber: number,
		Amount:        amount,
		CorrelationID: att.receipt.CorrelationID,
		OccurredAt:    att.receipt.CompletedAt,
	})
	return att.receipt, nil
}

// Transfer moves amount from source to destination. Both legs commit together
// or not at all.
func (e *Engine) Transfer(ctx context.Context, source, destination string, amount decimal.Decimal) (Receipt, error) {
	att := e.start(txlog.Transfer, amount)
	if source == destination {
		return att.abort(account.ErrSameAccount)
	}
	if !account.ValidAmount(amount) {
		return att.abort(account.ErrInvalidAmount)
	}

	unit, err := e.store.Begin(ctx)
	if err != nil {
		return att.abort(fmt.Errorf("%w: begin: %v", ErrTransferFailed, err))
	}
	defer unit.Rollback(ctx) // nolint:errcheck

	src, dst, err := lockPair(ctx, unit, source, destination)
	if err != nil {
		return att.abort(err)
	}
	if err := authorize(ctx, src.OwnerID); err != nil {
		return att.abort(err)
	}
	floor := src.Floor()
	if err := account.Transfer(&src, &dst, amount); err != nil {
		return att.abort(err)
	}
	if err := att.advance(StateValidated); err != nil {
		return att.abort(err)
	}

	n, err := unit.ConditionalDebit(ctx, source, amount, floor)
	if err != nil {
		return att.abort(fmt.Errorf("%w: debit %s: %v", ErrTransferFailed, source, err))
	}
	if n == 0 {
		return att.abort(account.ErrInsufficientFunds)
	}
	if err := att.advance(StateDebited); err != nil {
		return att.abort(err)
	}

	n, err = unit.Credit(ctx, destination, amount)
	if err != nil {
		return att.abort(fmt.Errorf("%w: credit %s: %v", ErrTransferFailed, destination, err))
	}
	if n == 0 {
		return att.abort(fmt.Errorf("%w: destination %s vanished", ErrTransferFailed, destination))
	}
	if err := att.advance(StateCredited); err != nil {
		return att.abort(err)
	}

	if err := unit.Commit(ctx); err != nil {
		return att.abort(fmt.Errorf("%w: commit: %v", ErrTransferFailed, err))
	}
	att.receipt.Source = &src
	att.receipt.Destination = &dst
	e.finish(ctx, att, []txlog.Entry{
		{AccountNumber: source, Kind: txlog.Transfer, Amount: amount, ReferenceAccount: destination, CorrelationID: att.receipt.CorrelationID},
		{AccountNumber: destination, Kind: txlog.Transfer, Amount: amount, ReferenceAccount: source, CorrelationID: att.receipt.CorrelationID},
	})

	e.logger.Info("transfer committed", "source", source, "destination", destination,
		"amount", amount.StringFixed(2), "correlation_id", att.receipt.CorrelationID)
	e.notify(ctx, notification.Message{
		Kind:          notification.KindTransfer,
		Destination:   dst.OwnerID,
		Body:          fmt.Sprintf("You received %s from account %s", amount.StringFixed(2), source),
		AccountNumber: destination,
		Reference:     source,
		Amount:        amount,
		CorrelationID: att.receipt.CorrelationID,
		OccurredAt:    att.receipt.CompletedAt,
	})
	return att.receipt, nil
}

// ApplyMonthlyCycle charges the checking fee or pays savings interest. The
// caller decides the cadence; running it twice in a month charges twice.
func (e *Engine) ApplyMonthlyCycle(ctx context.Context, number string) (CycleResult, error) {
	unit, err := e.store.Begin(ctx)
	if err != nil {
		return CycleResult{}, fmt.Errorf("begin monthly cycle: %w", err)
	}
	defer unit.Rollback(ctx) // nolint:errcheck

	acct, err := lock(ctx, unit, "account", number)
	if err != nil {
		return CycleResult{}, err
	}
	resetsCounter := acct.TracksTransactions()
	cycle, err := acct.ApplyMonthlyCycle()
	if err != nil {
		return CycleResult{}, err
	}

	var entries []txlog.Entry
	if cycle.Fee.IsPositive() {
		if _, err := unit.Debit(ctx, number, cycle.Fee); err != nil {
			return CycleResult{}, fmt.Errorf("charge fee %s: %w", number, err)
		}
		entries = append(entries, txlog.Entry{AccountNumber: number, Kind: txlog.Withdrawal, Amount: cycle.Fee})
	}
	if cycle.Interest.IsPositive() {
		if _, err := unit.Credit(ctx, number, cycle.Interest); err != nil {
			return CycleResult{}, fmt.Errorf("pay interest %s: %w", number, err)
		}
		entries = append(entries, txlog.Entry{AccountNumber: number, Kind: txlog.Deposit, Amount: cycle.Interest})
	}
	if resetsCounter {
		if err := unit.ResetCycle(ctx, number); err != nil {
			return CycleResult{}, fmt.Errorf("reset cycle %s: %w", number, err)
		}
	}
	if err := unit.Commit(ctx); err != nil {
		return CycleResult{}, fmt.Errorf("commit monthly cycle: %w", err)
	}

	res := CycleResult{Account: acct, Cycle: cycle}
	res.Records, res.AuditErr = e.appendAll(ctx, entries)
	e.logger.Info("monthly cycle applied", "account", number, "kind", string(acct.Kind),
		"fee", cycle.Fee.StringFixed(2), "interest", cycle.Interest.StringFixed(2))

	if len(entries) > 0 {
		posted := cycle.Interest
		body := fmt.Sprintf("Interest of %s paid to account %s", posted.StringFixed(2), number)
		if cycle.Fee.IsPositive() {
			posted = cycle.Fee
			body = fmt.Sprintf("Monthly fee of %s charged to account %s", posted.StringFixed(2), number)
		}
		e.notify(ctx, notification.Message{
			Kind:          notification.KindMonthlyCycle,
			Destination:   acct.OwnerID,
			Body:          body,
			AccountNumber: number,
			Amount:        posted,
			OccurredAt:    e.now(),
		})
	}
	return res, nil
}

// OpenAccount creates an account. Customers always open accounts for
// themselves; a positive opening balance is logged as a deposit.
func (e *Engine) OpenAccount(ctx context.Context, input OpenInput) (account.Account, error) {
	if input.Opening.IsNegative() || !account.WholeCents(input.Opening) {
		return account.Account{}, account.ErrInvalidAmount
	}
	if actor, ok := ActorFrom(ctx); ok && !actor.Admin {
		input.OwnerID = actor.UserID
	}
	acct, err := account.New(uuid.NewString(), input.Kind, input.OwnerID, input.Opening, e.terms)
	if err != nil {
		return account.Account{}, err
	}
	acct.CreatedAt = e.now()
	if err := e.store.Create(ctx, acct); err != nil {
		return account.Account{}, fmt.Errorf("create account: %w", err)
	}

	if input.Opening.IsPositive() {
		if _, err := e.appendAll(ctx, []txlog.Entry{{AccountNumber: acct.Number, Kind: txlog.Deposit, Amount: input.Opening}}); err != nil {
			e.logger.Warn("opening deposit not logged", "account", acct.Number, "error", err)
		}
	}
	e.logger.Info("account opened", "account", acct.Number, "kind", string(acct.Kind), "owner", acct.OwnerID)
	return acct, nil
}

// Account returns the committed state of one account.
func (e *Engine) Account(ctx context.Context, number string) (account.Account, error) {
	acct, err := e.store.Get(ctx, number)
	if err != nil {
		return account.Account{}, err
	}
	if err := authorize(ctx, acct.OwnerID); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// Accounts lists every account.
func (e *Engine) Accounts(ctx context.Context) ([]account.Account, error) {
	return e.store.List(ctx)
}

// AccountsByOwner lists the accounts of one user.
func (e *Engine) AccountsByOwner(ctx context.Context, ownerID string) ([]account.Account, error) {
	if err := authorize(ctx, ownerID); err != nil {
		return nil, err
	}
	return e.store.ListByOwner(ctx, ownerID)
}

// CloseAccount deletes an empty account. Its history stays in the log.
func (e *Engine) CloseAccount(ctx context.Context, number string) error {
	if err := e.store.Delete(ctx, number); err != nil {
		return err
	}
	e.logger.Info("account closed", "account", number)
	return nil
}

// History returns the whole transaction log, most recent first.
func (e *Engine) History(ctx context.Context) ([]txlog.Record, error) {
	return e.log.ListAll(ctx)
}

// AccountHistory returns the records of one account, most recent first.
func (e *Engine) AccountHistory(ctx context.Context, number string) ([]txlog.Record, error) {
	if _, err := e.Account(ctx, number); err != nil {
		return nil, err
	}
	return e.log.ListByAccount(ctx, number)
}

// ClearHistory wipes the transaction log. Balances are untouched.
func (e *Engine) ClearHistory(ctx context.Context) error {
	if err := e.log.Clear(ctx); err != nil {
		return err
	}
	e.logger.Warn("transaction history cleared")
	return nil
}

// finish runs once the unit has committed.
func (e *Engine) finish(ctx context.Context, att *attempt, entries []txlog.Entry) {
	// cannot fail: every path here comes straight from a successful commit
	_ = att.advance(StateCommitted)
	att.receipt.CompletedAt = e.now()

	att.receipt.Records, att.receipt.AuditErr = e.appendAll(ctx, entries)
	if att.receipt.AuditErr == nil {
		_ = att.advance(StateLogged)
	}
}

// appendAll writes every entry even if an earlier one fails. The request
// context may already be cancelled; the movement is committed regardless.
func (e *Engine) appendAll(ctx context.Context, entries []txlog.Entry) ([]txlog.Record, error) {
	ctx = context.WithoutCancel(ctx)
	records := make([]txlog.Record, 0, len(entries))
	var errs []error
	for _, entry := range entries {
		rec, err := e.log.Append(ctx, entry)
		if err != nil {
			e.logger.Warn("transaction log append failed", "account", entry.AccountNumber,
				"kind", string(entry.Kind), "amount", entry.Amount.StringFixed(2), "error", err)
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

func (e *Engine) notify(ctx context.Context, msg notification.Message) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(context.WithoutCancel(ctx), msg); err != nil {
		e.logger.Warn("notification failed", "kind", msg.Kind, "account", msg.AccountNumber, "error", err)
	}
}

func lock(ctx context.Context, unit ledger.Unit, side, number string) (account.Account, error) {
	acct, err := unit.Get(ctx, number)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return account.Account{}, fmt.Errorf("%s %s: %w", side, number, account.ErrAccountNotFound)
		}
		return account.Account{}, fmt.Errorf("lock %s %s: %w", side, number, err)
	}
	return acct, nil
}

// lockPair locks both rows in ascending number order so that two transfers
// over the same pair can never wait on each other.
func lockPair(ctx context.Context, unit ledger.Unit, source, destination string) (account.Account, account.Account, error) {
	var src, dst account.Account
	legs := []struct {
		side   string
		number string
		into   *account.Account
	}{
		{"source", source, &src},
		{"destination", destination, &dst},
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i].number < legs[j].number })

	for _, leg := range legs {
		acct, err := lock(ctx, unit, leg.side, leg.number)
		if err != nil {
			return account.Account{}, account.Account{}, err
		}
		*leg.into = acct
	}
	return src, dst, nil
}
