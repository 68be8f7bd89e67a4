// Package query narrows transaction collections by search term, account,
// category, date window and amount magnitude. All criteria combine with AND.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/storage"
)

// Window is a named date range evaluated against the current time.
type Window string

const (
	WindowAll        Window = "all"
	WindowToday      Window = "today"
	WindowYesterday  Window = "yesterday"
	WindowLast7Days  Window = "last-7-days"
	WindowLast30Days Window = "last-30-days"
	WindowLastYear   Window = "last-year"
)

var ErrInvalidWindow = errors.New("invalid date window")

// ParseWindow accepts the window names plus the short aliases week, month
// and year. An empty string means all.
func ParseWindow(s string) (Window, error) {
	switch w := Window(strings.ToLower(strings.TrimSpace(s))); w {
	case "", WindowAll:
		return WindowAll, nil
	case WindowToday, WindowYesterday, WindowLast7Days, WindowLast30Days, WindowLastYear:
		return w, nil
	case "week":
		return WindowLast7Days, nil
	case "month":
		return WindowLast30Days, nil
	case "year":
		return WindowLastYear, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidWindow, s)
	}
}

// DateRange is either a named Window or explicit bounds. From is inclusive,
// To is exclusive, and a zero bound is open. A named window other than all
// takes precedence over explicit bounds.
type DateRange struct {
	Window Window
	From   time.Time
	To     time.Time
}

// Bounds resolves the range relative to now, in now's location.
// Named windows have an open upper bound except yesterday.
func (d DateRange) Bounds(now time.Time) (from, to time.Time) {
	today := startOfDay(now)
	switch d.Window {
	case WindowToday:
		return today, time.Time{}
	case WindowYesterday:
		return today.AddDate(0, 0, -1), today
	case WindowLast7Days:
		return now.AddDate(0, 0, -7), time.Time{}
	case WindowLast30Days:
		return now.AddDate(0, 0, -30), time.Time{}
	case WindowLastYear:
		return now.AddDate(-1, 0, 0), time.Time{}
	default:
		return d.From, d.To
	}
}

func (d DateRange) contains(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && !ts.Before(to) {
		return false
	}
	return true
}

// AmountRange bounds the absolute amount, inclusive on both ends.
type AmountRange struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

func (a AmountRange) contains(amount decimal.Decimal) bool {
	mag := amount.Abs()
	if a.Min != nil && mag.LessThan(*a.Min) {
		return false
	}
	if a.Max != nil && mag.GreaterThan(*a.Max) {
		return false
	}
	return true
}

// FilterSpec holds optional criteria. The zero value matches everything.
type FilterSpec struct {
	SearchTerm  string
	Accounts    []string
	Categories  []string
	DateRange   *DateRange
	AmountRange *AmountRange
}

// IsEmpty reports whether the spec has no effective criteria.
func (s FilterSpec) IsEmpty() bool {
	return strings.TrimSpace(s.SearchTerm) == "" &&
		len(s.Accounts) == 0 &&
		len(s.Categories) == 0 &&
		(s.DateRange == nil || (s.DateRange.Window == WindowAll || s.DateRange.Window == "") && s.DateRange.From.IsZero() && s.DateRange.To.IsZero()) &&
		(s.AmountRange == nil || s.AmountRange.Min == nil && s.AmountRange.Max == nil)
}

// Filter applies spec using the current time for named windows. The clock is
// read on every call.
func Filter(records []core.Transaction, spec FilterSpec) []core.Transaction {
	return FilterAt(records, spec, time.Now())
}

// FilterAt applies spec with named windows resolved against now. The result
// is a fresh slice in input order; records are never modified.
func FilterAt(records []core.Transaction, spec FilterSpec, now time.Time) []core.Transaction {
	m := newMatcher(spec, now)
	out := make([]core.Transaction, 0, len(records))
	for _, t := range records {
		if m.match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Select reads from the store and applies spec. A lower date bound narrows
// the read through the timestamp index.
func Select(ctx context.Context, r storage.TransactionReader, spec FilterSpec, now time.Time) ([]core.Transaction, error) {
	var (
		records []core.Transaction
		err     error
	)
	from, to := time.Time{}, time.Time{}
	if spec.DateRange != nil {
		from, to = spec.DateRange.Bounds(now)
	}
	if from.IsZero() && to.IsZero() {
		records, err = r.GetAll(ctx)
	} else {
		kr := storage.KeyRange{}
		if !from.IsZero() {
			kr.Lower = from
		}
		if !to.IsZero() {
			kr.Upper = to
		}
		records, err = r.QueryByIndex(ctx, storage.IndexTimestamp, kr)
	}
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	return FilterAt(records, spec, now), nil
}

type matcher struct {
	term       string
	accounts   []string
	categories []string
	dates      *DateRange
	from, to   time.Time
	amounts    *AmountRange
}

func newMatcher(spec FilterSpec, now time.Time) matcher {
	m := matcher{
		term:       strings.ToLower(strings.TrimSpace(spec.SearchTerm)),
		accounts:   spec.Accounts,
		categories: spec.Categories,
		dates:      spec.DateRange,
		amounts:    spec.AmountRange,
	}
	if m.dates != nil {
		m.from, m.to = m.dates.Bounds(now)
	}
	return m
}

func (m matcher) match(t core.Transaction) bool {
	if m.term != "" &&
		!strings.Contains(strings.ToLower(t.Merchant), m.term) &&
		!strings.Contains(strings.ToLower(t.CategoryOrDefault()), m.term) {
		return false
	}
	if len(m.accounts) > 0 && !slices.Contains(m.accounts, t.Account) {
		return false
	}
	if len(m.categories) > 0 && !slices.Contains(m.categories, t.CategoryOrDefault()) {
		return false
	}
	if m.dates != nil && !m.dates.contains(t.Timestamp, m.from, m.to) {
		return false
	}
	if m.amounts != nil && !m.amounts.contains(t.Amount) {
		return false
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
}
