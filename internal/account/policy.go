package account

import "github.com/shopspring/decimal"

// policy is the per-variant behaviour table.
type policy struct {
	floor              func(Terms) decimal.Decimal
	countsTransactions bool
	monthly            func(*Account) (Cycle, error)
}

// filled in init: the cycle functions refer back to it
var policies map[Kind]policy

func init() {
	policies = map[Kind]policy{
		Checking: {
			floor:              func(t Terms) decimal.Decimal { return t.OverdraftLimit },
			countsTransactions: true,
			monthly:            checkingCycle,
		},
		Savings: {
			floor:   func(t Terms) decimal.Decimal { return t.MinimumBalance },
			monthly: savingsCycle,
		},
	}
}

// checkingCycle always charges the fee, even below the overdraft limit.
func checkingCycle(a *Account) (Cycle, error) {
	fee := a.Terms.MonthlyFee
	if fee.IsPositive() {
		a.debit(fee)
	}
	a.MonthlyTransactions = 0
	return Cycle{Fee: fee}, nil
}

func savingsCycle(a *Account) (Cycle, error) {
	interest := Interest(a.balance, a.Terms.InterestRate)
	if !interest.IsPositive() {
		return Cycle{Interest: decimal.Zero}, nil
	}
	if err := a.Deposit(interest); err != nil {
		return Cycle{}, err
	}
	return Cycle{Interest: interest}, nil
}

// Interest computes balance*rate rounded half-even to cents.
func Interest(balance, rate decimal.Decimal) decimal.Decimal {
	return balance.Mul(rate).RoundBank(2)
}
