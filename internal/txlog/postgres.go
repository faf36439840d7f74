package txlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const recordColumns = `id, account_number, kind, amount, created_at, reference_account, correlation_id`

// PostgresLog persists records in the transactions table.
type PostgresLog struct {
	db *pgxpool.Pool
}

// NewPostgresLog constructs a Postgres-backed transaction log.
func NewPostgresLog(db *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{db: db}
}

// Append inserts a record. The per-account advisory lock serialises writers so
// the timestamp clamp against the previous record holds.
func (l *PostgresLog) Append(ctx context.Context, e Entry) (Record, error) {
	if err := e.validate(); err != nil {
		return Record{}, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.AccountNumber); err != nil {
		return Record{}, err
	}

	var last *time.Time
	if err := tx.QueryRow(ctx, `SELECT MAX(created_at) FROM transactions WHERE account_number = $1`,
		e.AccountNumber).Scan(&last); err != nil {
		return Record{}, err
	}
	var prev time.Time
	if last != nil {
		prev = last.UTC()
	}

	var correlation *string
	if e.CorrelationID != "" {
		correlation = &e.CorrelationID
	}
	rec := Record{
		ID:               uuid.NewString(),
		AccountNumber:    e.AccountNumber,
		Kind:             e.Kind,
		Amount:           e.Amount,
		Timestamp:        nextTimestamp(time.Now(), prev),
		ReferenceAccount: e.reference(),
		CorrelationID:    e.CorrelationID,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO transactions (`+recordColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.AccountNumber, string(rec.Kind), rec.Amount, rec.Timestamp, rec.ReferenceAccount, correlation); err != nil {
		return Record{}, fmt.Errorf("insert transaction record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListAll returns every record, most recent first.
func (l *PostgresLog) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := l.db.Query(ctx, `SELECT `+recordColumns+` FROM transactions ORDER BY created_at DESC, seq DESC`)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ListByAccount returns the records of one account, most recent first.
func (l *PostgresLog) ListByAccount(ctx context.Context, number string) ([]Record, error) {
	rows, err := l.db.Query(ctx, `SELECT `+recordColumns+` FROM transactions WHERE account_number = $1
        ORDER BY created_at DESC, seq DESC`, number)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// Clear deletes the whole audit trail.
func (l *PostgresLog) Clear(ctx context.Context) error {
	_, err := l.db.Exec(ctx, `DELETE FROM transactions`)
	return err
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	defer rows.Close()
	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec         Record
			kind        string
			correlation *string
		)
		if err := rows.Scan(&rec.ID, &rec.AccountNumber, &kind, &rec.Amount, &rec.Timestamp,
			&rec.ReferenceAccount, &correlation); err != nil {
			return nil, err
		}
		rec.Kind = Kind(kind)
		rec.Timestamp = rec.Timestamp.UTC()
		if correlation != nil {
			rec.CorrelationID = *correlation
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
