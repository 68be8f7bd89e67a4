package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

var _ RollupStore = (*SQLiteRepository)(nil)

const upsertRollupSQL = `INSERT INTO monthly_rollups (
	month_key, total_income, total_expenses, net_amount, category_totals
) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(month_key) DO UPDATE SET
	total_income = excluded.total_income,
	total_expenses = excluded.total_expenses,
	net_amount = excluded.net_amount,
	category_totals = excluded.category_totals,
	refreshed_at = CURRENT_TIMESTAMP`

type rollupCategory struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
}

func (r *SQLiteRepository) GetRollup(ctx context.Context, key string) (core.MonthlyAggregate, error) {
	var (
		agg                        core.MonthlyAggregate
		income, expenses, net, cat string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT month_key, total_income, total_expenses, net_amount, category_totals FROM monthly_rollups WHERE month_key = ?",
		key).Scan(&agg.MonthKey, &income, &expenses, &net, &cat)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyAggregate{}, fmt.Errorf("get rollup %s: %w", key, ErrRollupNotFound)
	}
	if err != nil {
		return core.MonthlyAggregate{}, fmt.Errorf("get rollup %s: %w", key, err)
	}

	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{{&agg.TotalIncome, income}, {&agg.TotalExpenses, expenses}, {&agg.NetAmount, net}} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return core.MonthlyAggregate{}, fmt.Errorf("decode rollup %s: %w", key, err)
		}
	}

	var cats []rollupCategory
	if err := json.Unmarshal([]byte(cat), &cats); err != nil {
		return core.MonthlyAggregate{}, fmt.Errorf("decode rollup %s categories: %w", key, err)
	}
	agg.CategoryTotals = make([]core.CategoryTotal, len(cats))
	for i, c := range cats {
		agg.CategoryTotals[i] = core.CategoryTotal{Category: c.Category, Total: c.Total}
	}
	return agg, nil
}

// PutRollups upserts every aggregate in one database transaction.
func (r *SQLiteRepository) PutRollups(ctx context.Context, aggs []core.MonthlyAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put rollups: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRollupSQL)
	if err != nil {
		return fmt.Errorf("prepare rollup upsert: %w", err)
	}
	defer stmt.Close()

	for _, a := range aggs {
		cats := make([]rollupCategory, len(a.CategoryTotals))
		for i, c := range a.CategoryTotals {
			cats[i] = rollupCategory{Category: c.Category, Total: c.Total}
		}
		encoded, err := json.Marshal(cats)
		if err != nil {
			return fmt.Errorf("encode rollup %s categories: %w", a.MonthKey, err)
		}
		if _, err := stmt.ExecContext(ctx, a.MonthKey,
			a.TotalIncome.String(), a.TotalExpenses.String(), a.NetAmount.String(), string(encoded)); err != nil {
			return fmt.Errorf("put rollup %s: %w", a.MonthKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put rollups: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteRollups(ctx context.Context, keys []string) error {
	q := "DELETE FROM monthly_rollups"
	args := make([]any, len(keys))
	if len(keys) > 0 {
		for i, k := range keys {
			args[i] = k
		}
		q += " WHERE month_key IN (?" + strings.Repeat(", ?", len(keys)-1) + ")"
	}
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete rollups: %w", err)
	}
	return nil
}
