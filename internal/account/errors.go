package account

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount is returned for zero, negative or sub-cent amounts.
	ErrInvalidAmount = errors.New("amount must be positive and in whole cents")

	// ErrPolicyViolation occurs when a withdrawal would breach the account's
	// overdraft limit or minimum balance.
	ErrPolicyViolation = errors.New("withdrawal not allowed by account policy")

	// ErrInsufficientFunds is reported when the store refuses a conditional
	// debit because the balance moved underneath a validated snapshot.
	ErrInsufficientFunds = fmt.Errorf("insufficient funds: %w", ErrPolicyViolation)

	// ErrAccountNotFound indicates the account number does not resolve.
	ErrAccountNotFound = errors.New("account not found")

	// ErrSameAccount rejects transfers whose source and destination coincide.
	ErrSameAccount = errors.New("cannot transfer to the same account")

	// ErrUnknownKind is returned for account kinds outside the closed set.
	ErrUnknownKind = errors.New("unknown account kind")
)
