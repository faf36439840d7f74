package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/teller-bank/teller_bank/internal/account"
)

// SeedAccount is a test helper that opens an account with default terms,
// letting callers adjust the terms before it is stored.
func SeedAccount(ctx context.Context, s Store, number string, kind account.Kind, balance string, mutate func(*account.Terms)) (account.Account, error) {
	terms := account.DefaultTerms()
	if mutate != nil {
		mutate(&terms)
	}
	acct, err := account.New(number, kind, "", decimal.RequireFromString(balance), terms)
	if err != nil {
		return account.Account{}, err
	}
	if err := s.Create(ctx, acct); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}
