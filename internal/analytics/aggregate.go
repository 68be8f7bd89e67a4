// Package analytics folds normalized transactions into monthly, categorical
// and daily summaries and compares monthly summaries with each other.
//
// Every function here is a pure transform: inputs are never mutated and each
// call allocates fresh output, so callers may run several aggregations over
// the same slice concurrently as long as nobody writes to it meanwhile.
// Accumulation keeps full decimal precision; rounding belongs to presentation.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// categoryFold accumulates expense magnitudes per category and remembers the
// order in which categories were first seen, for stable tie-breaking.
type categoryFold struct {
	totals map[string]decimal.Decimal
	order  []string
}

func newCategoryFold() *categoryFold {
	return &categoryFold{totals: make(map[string]decimal.Decimal)}
}

func (f *categoryFold) add(t core.Transaction) {
	if !t.IsExpense() {
		return
	}
	cat := t.CategoryOrDefault()
	cur, ok := f.totals[cat]
	if !ok {
		f.order = append(f.order, cat)
	}
	f.totals[cat] = cur.Add(t.Magnitude())
}

// sorted returns totals descending; equal totals keep first-seen order.
func (f *categoryFold) sorted() []core.CategoryTotal {
	out := make([]core.CategoryTotal, 0, len(f.order))
	for _, cat := range f.order {
		out = append(out, core.CategoryTotal{Category: cat, Total: f.totals[cat]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.GreaterThan(out[j].Total)
	})
	return out
}

type monthFold struct {
	income   decimal.Decimal
	expenses decimal.Decimal
	cats     *categoryFold
}

// AggregateByMonth partitions records by month key and splits each month's
// amounts into income and expense magnitudes.
func AggregateByMonth(records []core.Transaction) map[string]core.MonthlyAggregate {
	folds := make(map[string]*monthFold)
	for _, t := range records {
		key := t.Month()
		f, ok := folds[key]
		if !ok {
			f = &monthFold{cats: newCategoryFold()}
			folds[key] = f
		}
		switch {
		case t.IsIncome():
			f.income = f.income.Add(t.Amount)
		case t.IsExpense():
			f.expenses = f.expenses.Add(t.Magnitude())
			f.cats.add(t)
		}
	}

	out := make(map[string]core.MonthlyAggregate, len(folds))
	for key, f := range folds {
		out[key] = core.MonthlyAggregate{
			MonthKey:       key,
			TotalIncome:    f.income,
			TotalExpenses:  f.expenses,
			NetAmount:      f.income.Sub(f.expenses),
			CategoryTotals: f.cats.sorted(),
		}
	}
	return out
}

// MonthlySeries returns the months present in records in chronological order.
func MonthlySeries(records []core.Transaction) []core.MonthlyAggregate {
	byMonth := AggregateByMonth(records)
	out := make([]core.MonthlyAggregate, 0, len(byMonth))
	for _, agg := range byMonth {
		out = append(out, agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MonthKey < out[j].MonthKey })
	return out
}

// LastMonths returns n consecutive months ending with now's month, oldest
// first. Months without records are zero-valued.
func LastMonths(records []core.Transaction, now time.Time, n int) []core.MonthlyAggregate {
	if n <= 0 {
		return []core.MonthlyAggregate{}
	}
	byMonth := AggregateByMonth(records)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -(n - 1), 0)

	out := make([]core.MonthlyAggregate, 0, n)
	for i := 0; i < n; i++ {
		key := core.MonthKeyOf(first.AddDate(0, i, 0))
		agg, ok := byMonth[key]
		if !ok {
			agg = EmptyMonth(key)
		}
		out = append(out, agg)
	}
	return out
}

// EmptyMonth is the zero aggregate for a month with no records.
func EmptyMonth(key string) core.MonthlyAggregate {
	return core.MonthlyAggregate{MonthKey: key, CategoryTotals: []core.CategoryTotal{}}
}

// AggregateByCategory sums expense magnitudes per category across all
// records. Income is not categorized. Results are sorted by descending total.
func AggregateByCategory(records []core.Transaction) []core.CategoryTotal {
	f := newCategoryFold()
	for _, t := range records {
		f.add(t)
	}
	return f.sorted()
}

// AggregateByDay returns one point per calendar day from from's day through
// to's day inclusive, in from's location. Days without expenses carry zero.
func AggregateByDay(records []core.Transaction, from, to time.Time) []core.DailyPoint {
	loc := from.Location()
	start := startOfDay(from)
	end := startOfDay(to.In(loc))
	if end.Before(start) {
		start, end = end, start
	}

	sums := make(map[string]decimal.Decimal)
	for _, t := range records {
		if !t.IsExpense() {
			continue
		}
		day := t.Timestamp.In(loc).Format(core.DayLayout)
		sums[day] = sums[day].Add(t.Magnitude())
	}

	var out []core.DailyPoint
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(core.DayLayout)
		out = append(out, core.DailyPoint{Date: key, Amount: sums[key]})
	}
	return out
}

// LastDays returns the inclusive window of n calendar days ending on now's day.
func LastDays(now time.Time, n int) (from, to time.Time) {
	if n < 1 {
		n = 1
	}
	return startOfDay(now).AddDate(0, 0, -(n - 1)), now
}

// Summarize totals a collection regardless of month.
func Summarize(records []core.Transaction) core.Totals {
	var totals core.Totals
	for _, t := range records {
		totals.Count++
		switch {
		case t.IsIncome():
			totals.Income = totals.Income.Add(t.Amount)
		case t.IsExpense():
			totals.Expenses = totals.Expenses.Add(t.Magnitude())
		}
	}
	totals.Net = totals.Income.Sub(totals.Expenses)
	return totals
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
