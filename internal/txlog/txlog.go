// Package txlog keeps the append-only audit trail of completed money movements.
package txlog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Kind classifies a record.
type Kind string

const (
	Deposit    Kind = "DEPOSIT"
	Withdrawal Kind = "WITHDRAWAL"
	Transfer   Kind = "TRANSFER"
)

// ErrInvalidEntry is returned when an entry cannot become a record.
var ErrInvalidEntry = errors.New("invalid transaction log entry")

// Entry is what callers append. ReferenceAccount is only set for transfers.
type Entry struct {
	AccountNumber    string
	Kind             Kind
	Amount           decimal.Decimal
	ReferenceAccount string
	CorrelationID    string
}

// Record is an immutable audit row.
type Record struct {
	ID               string          `json:"id"`
	AccountNumber    string          `json:"account_number"`
	Kind             Kind            `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	Timestamp        time.Time       `json:"timestamp"`
	ReferenceAccount *string         `json:"reference_account,omitempty"`
	CorrelationID    string          `json:"correlation_id,omitempty"`
}

// Log stores records. Listings are most recent first.
type Log interface {
	Append(ctx context.Context, e Entry) (Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	ListByAccount(ctx context.Context, number string) ([]Record, error)
	Clear(ctx context.Context) error
}

func (e Entry) validate() error {
	if e.AccountNumber == "" {
		return errors.Join(ErrInvalidEntry, errors.New("account number is required"))
	}
	switch e.Kind {
	case Deposit, Withdrawal:
		if e.ReferenceAccount != "" {
			return errors.Join(ErrInvalidEntry, errors.New("only transfers carry a reference account"))
		}
	case Transfer:
		if e.ReferenceAccount == "" {
			return errors.Join(ErrInvalidEntry, errors.New("transfer needs a reference account"))
		}
	default:
		return errors.Join(ErrInvalidEntry, errors.New("unknown kind "+string(e.Kind)))
	}
	if !e.Amount.IsPositive() {
		return errors.Join(ErrInvalidEntry, errors.New("amount must be positive"))
	}
	// the amount column keeps two decimals
	if !e.Amount.Equal(e.Amount.Truncate(2)) {
		return errors.Join(ErrInvalidEntry, errors.New("amount must be in whole cents"))
	}
	return nil
}

func (e Entry) reference() *string {
	if e.ReferenceAccount == "" {
		return nil
	}
	ref := e.ReferenceAccount
	return &ref
}

// nextTimestamp keeps per-account timestamps strictly increasing at
// microsecond resolution, which is what PostgreSQL stores.
func nextTimestamp(now, last time.Time) time.Time {
	ts := now.UTC().Truncate(time.Microsecond)
	if !last.IsZero() && !ts.After(last) {
		ts = last.Add(time.Microsecond)
	}
	return ts
}
