package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/teller-bank/teller_bank/internal/account"
)

var (
	// ErrNotFound is returned when an account number has no row in the store.
	ErrNotFound = account.ErrAccountNotFound

	// ErrDuplicateAccount indicates an account with the same number already exists.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrUnitClosed is returned when a unit is used after commit or rollback.
	ErrUnitClosed = errors.New("atomic unit already closed")

	// ErrBalanceNotZero prevents closing an account that still holds money.
	ErrBalanceNotZero = errors.New("account balance is not zero")
)

// Store is the durable owner of account balances.
type Store interface {
	Create(ctx context.Context, acct account.Account) error
	Get(ctx context.Context, number string) (account.Account, error)
	List(ctx context.Context) ([]account.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]account.Account, error)
	// Delete removes an account whose balance is exactly zero.
	Delete(ctx context.Context, number string) error
	Begin(ctx context.Context) (Unit, error)
}

// Unit is an atomic group of balance mutations. Rows read through Get stay
// locked until Commit or Rollback. Rollback after Commit is a no-op so callers
// can defer it unconditionally.
type Unit interface {
	// Get loads and locks an account row.
	Get(ctx context.Context, number string) (account.Account, error)
	// ConditionalDebit subtracts amount only if the resulting balance stays at or
	// above floor. It reports the number of rows matched (0 or 1).
	ConditionalDebit(ctx context.Context, number string, amount, floor decimal.Decimal) (int64, error)
	// Debit subtracts amount without any floor check.
	Debit(ctx context.Context, number string, amount decimal.Decimal) (int64, error)
	// Credit adds amount and reports the number of rows matched.
	Credit(ctx context.Context, number string, amount decimal.Decimal) (int64, error)
	// ResetCycle zeroes the monthly transaction counter.
	ResetCycle(ctx context.Context, number string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
