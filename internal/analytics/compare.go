package analytics

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Compare measures the expense change from baseline a (older) to comparand b
// (newer). The caller orders the arguments; month keys are not inspected.
//
// Percent policy: a non-zero baseline yields (b-a)/a*100. A zero baseline
// yields the "new" sentinel when b is non-zero. When both are zero the total
// reports a numeric 0 while a category reports undefined.
func Compare(a, b core.MonthlyAggregate) core.ComparisonResult {
	total := core.Delta{Absolute: b.TotalExpenses.Sub(a.TotalExpenses)}
	if a.TotalExpenses.IsZero() && b.TotalExpenses.IsZero() {
		total.Percent = core.NumericPercent(decimal.Zero)
	} else {
		total.Percent = percentChange(a.TotalExpenses, b.TotalExpenses)
	}

	baseline := indexTotals(a.CategoryTotals)
	comparand := indexTotals(b.CategoryTotals)

	var order []string
	seen := make(map[string]bool)
	for _, list := range [][]core.CategoryTotal{a.CategoryTotals, b.CategoryTotals} {
		for _, ct := range list {
			if !seen[ct.Category] {
				seen[ct.Category] = true
				order = append(order, ct.Category)
			}
		}
	}

	deltas := make([]core.CategoryDelta, 0, len(order))
	for _, cat := range order {
		older, newer := baseline[cat], comparand[cat]
		deltas = append(deltas, core.CategoryDelta{
			Category:  cat,
			Baseline:  older,
			Comparand: newer,
			Absolute:  newer.Sub(older),
			Percent:   percentChange(older, newer),
		})
	}
	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Absolute.Abs().GreaterThan(deltas[j].Absolute.Abs())
	})

	return core.ComparisonResult{
		Baseline:       a,
		Comparand:      b,
		TotalDelta:     total,
		CategoryDeltas: deltas,
	}
}

// CompareMonths aggregates records and compares the older month with the newer one.
// Months absent from records compare as empty months.
func CompareMonths(records []core.Transaction, older, newer string) (core.ComparisonResult, error) {
	for _, key := range []string{older, newer} {
		if _, err := core.ParseMonthKey(key, nil); err != nil {
			return core.ComparisonResult{}, fmt.Errorf("%w: %q", core.ErrInvalidMonthKey, key)
		}
	}
	byMonth := AggregateByMonth(records)
	a, ok := byMonth[older]
	if !ok {
		a = EmptyMonth(older)
	}
	b, ok := byMonth[newer]
	if !ok {
		b = EmptyMonth(newer)
	}
	return Compare(a, b), nil
}

func percentChange(older, newer decimal.Decimal) core.Percent {
	switch {
	case !older.IsZero():
		return core.NumericPercent(newer.Sub(older).Div(older.Abs()).Mul(hundred))
	case newer.IsZero():
		return core.UndefinedPercent()
	default:
		return core.NewPercent()
	}
}

func indexTotals(list []core.CategoryTotal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(list))
	for _, ct := range list {
		out[ct.Category] = out[ct.Category].Add(ct.Total)
	}
	return out
}
