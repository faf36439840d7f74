package account

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags an account variant.
type Kind string

const (
	// Checking accounts may overdraw down to their overdraft limit and pay a flat monthly fee.
	Checking Kind = "CHECKING"
	// Savings accounts keep a minimum balance and accrue monthly interest.
	Savings Kind = "SAVINGS"
)

// ParseKind normalises user input such as "checking" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToUpper(strings.TrimSpace(s))); k {
	case Checking, Savings:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Terms holds the variant-specific policy constants fixed at account opening.
// Only the fields belonging to the account's kind are meaningful.
type Terms struct {
	OverdraftLimit decimal.Decimal
	MonthlyFee     decimal.Decimal
	MinimumBalance decimal.Decimal
	InterestRate   decimal.Decimal
}

// DefaultTerms returns the house terms for new accounts.
func DefaultTerms() Terms {
	return Terms{
		OverdraftLimit: decimal.RequireFromString("-100.00"),
		MonthlyFee:     decimal.RequireFromString("12.00"),
		MinimumBalance: decimal.RequireFromString("100.00"),
		InterestRate:   decimal.RequireFromString("0.025"),
	}
}

// Account is a transient view of a ledger row. It is rebuilt on every read and
// must not be cached across operations.
type Account struct {
	Number              string
	Kind                Kind
	OwnerID             string
	Terms               Terms
	MonthlyTransactions int
	CreatedAt           time.Time

	balance decimal.Decimal
}

// Snapshot is the persisted shape of an account.
type Snapshot struct {
	Number              string
	Kind                Kind
	OwnerID             string
	Balance             decimal.Decimal
	Terms               Terms
	MonthlyTransactions int
	CreatedAt           time.Time
}

// New opens an account with the given opening balance.
func New(number string, kind Kind, ownerID string, opening decimal.Decimal, terms Terms) (Account, error) {
	if _, ok := policies[kind]; !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if opening.IsNegative() || !WholeCents(opening) {
		return Account{}, fmt.Errorf("%w: opening balance must be zero or more in whole cents", ErrInvalidAmount)
	}
	return Account{
		Number:    number,
		Kind:      kind,
		OwnerID:   ownerID,
		Terms:     terms,
		CreatedAt: time.Now().UTC(),
		balance:   opening,
	}, nil
}

// FromSnapshot reconstructs an account read from storage.
func FromSnapshot(s Snapshot) (Account, error) {
	if _, ok := policies[s.Kind]; !ok {
		return Account{}, fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	return Account{
		Number:              s.Number,
		Kind:                s.Kind,
		OwnerID:             s.OwnerID,
		Terms:               s.Terms,
		MonthlyTransactions: s.MonthlyTransactions,
		CreatedAt:           s.CreatedAt,
		balance:             s.Balance,
	}, nil
}

// Snapshot exports the account for persistence.
func (a Account) Snapshot() Snapshot {
	return Snapshot{
		Number:              a.Number,
		Kind:                a.Kind,
		OwnerID:             a.OwnerID,
		Balance:             a.balance,
		Terms:               a.Terms,
		MonthlyTransactions: a.MonthlyTransactions,
		CreatedAt:           a.CreatedAt,
	}
}

// Balance returns the current balance.
func (a *Account) Balance() decimal.Decimal {
	return a.balance
}

// Floor is the lowest balance a policy-checked withdrawal may leave behind.
func (a *Account) Floor() decimal.Decimal {
	return policies[a.Kind].floor(a.Terms)
}

// CanWithdraw reports whether withdrawing amount keeps the balance at or above the floor.
func (a *Account) CanWithdraw(amount decimal.Decimal) bool {
	return a.balance.Sub(amount).GreaterThanOrEqual(a.Floor())
}

// Deposit credits a positive amount.
func (a *Account) Deposit(amount decimal.Decimal) error {
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}
	a.balance = a.balance.Add(amount)
	a.countTransaction()
	return nil
}

// Withdraw debits a positive amount if the account policy allows it.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if !ValidAmount(amount) {
		return ErrInvalidAmount
	}
	if !a.CanWithdraw(amount) {
		return ErrPolicyViolation
	}
	a.balance = a.balance.Sub(amount)
	a.countTransaction()
	return nil
}

// ValidAmount reports whether amount can be moved: positive and in whole cents.
// Balances are stored with two decimals, so anything finer would be rounded
// differently on each side of a transfer.
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && WholeCents(amount)
}

// WholeCents reports whether d has no digits below the cent.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(2))
}

// Cycle describes what a monthly cycle did to an account.
type Cycle struct {
	Fee      decimal.Decimal
	Interest decimal.Decimal
}

// ApplyMonthlyCycle charges the checking fee or accrues savings interest.
// Callers are responsible for invoking it exactly once per cycle.
func (a *Account) ApplyMonthlyCycle() (Cycle, error) {
	return policies[a.Kind].monthly(a)
}

// TracksTransactions reports whether the variant keeps a monthly transaction counter.
func (a *Account) TracksTransactions() bool {
	return policies[a.Kind].countsTransactions
}

func (a *Account) countTransaction() {
	if a.TracksTransactions() {
		a.MonthlyTransactions++
	}
}

// debit removes amount without consulting the withdrawal policy.
func (a *Account) debit(amount decimal.Decimal) {
	a.balance = a.balance.Sub(amount)
	a.countTransaction()
}

func (a Account) String() string {
	return fmt.Sprintf("%s account [%s] balance %s", a.Kind, a.Number, a.balance.StringFixed(2))
}
