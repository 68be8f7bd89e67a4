package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"

	_ "modernc.org/sqlite"
)

const selectColumns = `id, ts, month_key, amount, category, merchant, description,
	account, status, reference, notes, provider, source`

const upsertSQL = `INSERT INTO transactions (
	id, ts_unix_nano, ts, month_key, amount, amount_value, category, merchant,
	description, account, status, reference, notes, provider, source
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	ts_unix_nano = excluded.ts_unix_nano,
	ts = excluded.ts,
	month_key = excluded.month_key,
	amount = excluded.amount,
	amount_value = excluded.amount_value,
	category = excluded.category,
	merchant = excluded.merchant,
	description = excluded.description,
	account = excluded.account,
	status = excluded.status,
	reference = excluded.reference,
	notes = excluded.notes,
	provider = excluded.provider,
	source = excluded.source,
	updated_at = CURRENT_TIMESTAMP`

// SQLiteRepository is the durable TransactionStore.
type SQLiteRepository struct {
	db     *sql.DB
	dbPath string
}

var _ TransactionStore = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, dbPath: dbPath}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the database file backing the repository.
func (r *SQLiteRepository) Path() string {
	return r.dbPath
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]core.Transaction, error) {
	out, err := r.query(ctx, "SELECT "+selectColumns+" FROM transactions ORDER BY ts_unix_nano DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("get all transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, t core.Transaction) error {
	if _, err := r.db.ExecContext(ctx, upsertSQL, upsertArgs(t)...); err != nil {
		return fmt.Errorf("put transaction %s: %w", t.ID, err)
	}
	return nil
}

// PutAll upserts every record in one database transaction.
func (r *SQLiteRepository) PutAll(ctx context.Context, ts []core.Transaction) error {
	if len(ts) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put all: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, t := range ts {
		if _, err := stmt.ExecContext(ctx, upsertArgs(t)...); err != nil {
			return fmt.Errorf("put transaction %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put all: %w", err)
	}

	slog.DebugContext(ctx, "Transactions upserted to SQLite", "count", len(ts))
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM transactions"); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, id, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		category = core.DefaultCategory
	}
	res, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET category = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", category, id)
	if err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (r *SQLiteRepository) UpdateNotes(ctx context.Context, id, notes string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE transactions SET notes = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", notes, id)
	if err != nil {
		return fmt.Errorf("update notes %s: %w", id, err)
	}
	return expectOneRow(res, id)
}

// QueryByIndex narrows by the indexed column in SQL, then applies the exact
// key comparison so results match the in-memory store. Amount bounds are
// compared as REAL in SQL and therefore widened to inclusive there.
func (r *SQLiteRepository) QueryByIndex(ctx context.Context, idx Index, kr KeyRange) ([]core.Transaction, error) {
	if err := kr.Validate(idx); err != nil {
		return nil, err
	}

	var (
		column string
		conds  []string
		args   []any
	)
	switch idx {
	case IndexTimestamp:
		column = "ts_unix_nano"
	case IndexMonth:
		column = "month_key"
	case IndexCategory:
		column = "category"
	case IndexAmount:
		column = "amount_value"
	}

	if kr.Only != nil {
		conds = append(conds, column+" = ?")
		args = append(args, indexArg(kr.Only))
	} else {
		if kr.Lower != nil {
			conds = append(conds, column+" >= ?")
			args = append(args, indexArg(kr.Lower))
		}
		if kr.Upper != nil {
			op := " < ?"
			if idx == IndexAmount {
				op = " <= ?"
			}
			conds = append(conds, column+op)
			args = append(args, indexArg(kr.Upper))
		}
	}

	q := "SELECT " + selectColumns + " FROM transactions"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY ts_unix_nano DESC, id ASC"

	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query by %s: %w", idx, err)
	}

	out := rows[:0]
	for _, t := range rows {
		ok, err := kr.Contains(idx, t)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		t              core.Transaction
		ts, amount, st string
	)
	if err := s.Scan(&t.ID, &ts, &t.MonthKey, &amount, &t.Category, &t.Merchant, &t.Description,
		&t.Account, &st, &t.Reference, &t.Notes, &t.Provider, &t.Source); err != nil {
		return core.Transaction{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("decode timestamp of %s: %w", t.ID, err)
	}
	t.Timestamp = parsed
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Transaction{}, fmt.Errorf("decode amount of %s: %w", t.ID, err)
	}
	t.Status = core.Status(st)
	return t, nil
}

func upsertArgs(t core.Transaction) []any {
	return []any{
		t.ID,
		t.Timestamp.UnixNano(),
		t.Timestamp.Format(time.RFC3339Nano),
		t.Month(),
		t.Amount.String(),
		t.Amount.InexactFloat64(),
		t.CategoryOrDefault(),
		t.Merchant,
		t.Description,
		t.Account,
		string(t.Status),
		t.Reference,
		t.Notes,
		t.Provider,
		t.Source,
	}
}

func indexArg(key any) any {
	switch k := key.(type) {
	case time.Time:
		return k.UnixNano()
	case decimal.Decimal:
		return k.InexactFloat64()
	default:
		return key
	}
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}
