package account

import "github.com/shopspring/decimal"

// Withdrawer is any account variant exposing a withdrawal policy.
type Withdrawer interface {
	CanWithdraw(amount decimal.Decimal) bool
	Withdraw(amount decimal.Decimal) error
}

// Depositor accepts credits.
type Depositor interface {
	Deposit(amount decimal.Decimal) error
}

// Transfer moves amount from source to destination on in-memory values.
// Cross-entity atomicity is the ledger's job; this only enforces policy.
// Source and destination are compared by identity, so pass pointers.
func Transfer(source Withdrawer, destination Depositor, amount decimal.Decimal) error {
	if any(source) == any(destination) {
		return ErrSameAccount
	}
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}
	if !source.CanWithdraw(amount) {
		return ErrPolicyViolation
	}
	if err := source.Withdraw(amount); err != nil {
		return err
	}
	return destination.Deposit(amount)
}
