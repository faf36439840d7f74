package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/teller-bank/teller_bank/internal/account"
)

const (
	accountColumns = `account_number, owner_id, account_type, balance, overdraft_limit, monthly_fee,
        minimum_balance, interest_rate, monthly_transactions, created_at`

	// counts a movement against checking accounts only
	bumpCounter = `monthly_transactions = monthly_transactions + CASE WHEN account_type = 'CHECKING' THEN 1 ELSE 0 END`

	uniqueViolation = "23505"
)

// PostgresStore keeps account rows in PostgreSQL. Units are database
// transactions and lock rows with SELECT ... FOR UPDATE.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed ledger store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new account row.
func (s *PostgresStore) Create(ctx context.Context, acct account.Account) error {
	snap := acct.Snapshot()
	_, err := s.db.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		snap.Number, snap.OwnerID, string(snap.Kind), snap.Balance,
		snap.Terms.OverdraftLimit, snap.Terms.MonthlyFee, snap.Terms.MinimumBalance, snap.Terms.InterestRate,
		snap.MonthlyTransactions, snap.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("insert account %s: %w", snap.Number, err)
	}
	return nil
}

// Get reads the committed state of an account.
func (s *PostgresStore) Get(ctx context.Context, number string) (account.Account, error) {
	row := s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	return scanAccount(row)
}

// List returns every account ordered by opening time.
func (s *PostgresStore) List(ctx context.Context) ([]account.Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, account_number`)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// ListByOwner returns the accounts owned by a user.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]account.Account, error) {
	rows, err := s.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1
        ORDER BY created_at, account_number`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

// Delete removes an account row if its balance is zero.
func (s *PostgresStore) Delete(ctx context.Context, number string) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE account_number = $1 FOR UPDATE`, number).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !balance.IsZero() {
		return ErrBalanceNotZero
	}
	if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE account_number = $1`, number); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Begin opens a read-committed transaction.
func (s *PostgresStore) Begin(ctx context.Context) (Unit, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin unit: %w", err)
	}
	return &postgresUnit{tx: tx}, nil
}

type postgresUnit struct {
	tx pgx.Tx
}

func (u *postgresUnit) Get(ctx context.Context, number string) (account.Account, error) {
	row := u.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1 FOR UPDATE`, number)
	return scanAccount(row)
}

func (u *postgresUnit) ConditionalDebit(ctx context.Context, number string, amount, floor decimal.Decimal) (int64, error) {
	cmd, err := u.tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1, `+bumpCounter+`
        WHERE account_number = $2 AND balance - $1 >= $3`, amount, number, floor)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (u *postgresUnit) Debit(ctx context.Context, number string, amount decimal.Decimal) (int64, error) {
	cmd, err := u.tx.Exec(ctx, `UPDATE accounts SET balance = balance - $1, `+bumpCounter+`
        WHERE account_number = $2`, amount, number)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (u *postgresUnit) Credit(ctx context.Context, number string, amount decimal.Decimal) (int64, error) {
	cmd, err := u.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $1, `+bumpCounter+`
        WHERE account_number = $2`, amount, number)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (u *postgresUnit) ResetCycle(ctx context.Context, number string) error {
	cmd, err := u.tx.Exec(ctx, `UPDATE accounts SET monthly_transactions = 0 WHERE account_number = $1`, number)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (u *postgresUnit) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *postgresUnit) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func scanAccount(row pgx.Row) (account.Account, error) {
	var (
		snap      account.Snapshot
		kind      string
		createdAt time.Time
	)
	if err := row.Scan(&snap.Number, &snap.OwnerID, &kind, &snap.Balance,
		&snap.Terms.OverdraftLimit, &snap.Terms.MonthlyFee, &snap.Terms.MinimumBalance, &snap.Terms.InterestRate,
		&snap.MonthlyTransactions, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, ErrNotFound
		}
		return account.Account{}, err
	}
	snap.Kind = account.Kind(kind)
	snap.CreatedAt = createdAt.UTC()
	return account.FromSnapshot(snap)
}

func collectAccounts(rows pgx.Rows) ([]account.Account, error) {
	defer rows.Close()
	var out []account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, rows.Err()
}
