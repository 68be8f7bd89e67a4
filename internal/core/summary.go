package core

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// CategoryTotal is the expense magnitude accumulated for one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
}

// MonthlyAggregate is a compact summary for a single month bucket.
type MonthlyAggregate struct {
	MonthKey       string
	TotalIncome    decimal.Decimal
	TotalExpenses  decimal.Decimal
	NetAmount      decimal.Decimal
	CategoryTotals []CategoryTotal
}

// DailyPoint is one entry of a dense daily expense series.
type DailyPoint struct {
	Date   string
	Amount decimal.Decimal
}

// Totals summarizes a record collection regardless of month.
type Totals struct {
	Count    int
	Income   decimal.Decimal
	Expenses decimal.Decimal
	Net      decimal.Decimal
}

// PercentKind tags how a percent change should be read.
type PercentKind string

const (
	// PercentNumeric carries a finite Value.
	PercentNumeric PercentKind = "numeric"
	// PercentNew marks growth from a zero baseline.
	PercentNew PercentKind = "new"
	// PercentUndefined marks a change between two zeros where no number is meaningful.
	PercentUndefined PercentKind = "undefined"
)

// Percent is a percent change that never holds NaN or infinity.
type Percent struct {
	Kind  PercentKind
	Value decimal.Decimal
}

// NumericPercent wraps a finite value.
func NumericPercent(v decimal.Decimal) Percent {
	return Percent{Kind: PercentNumeric, Value: v}
}

// NewPercent is the "newly appeared" sentinel.
func NewPercent() Percent {
	return Percent{Kind: PercentNew}
}

// UndefinedPercent is the null percent.
func UndefinedPercent() Percent {
	return Percent{Kind: PercentUndefined}
}

// IsNumeric reports whether Value is meaningful.
func (p Percent) IsNumeric() bool {
	return p.Kind == PercentNumeric
}

// String renders the percent for logs and tables.
func (p Percent) String() string {
	switch p.Kind {
	case PercentNumeric:
		return p.Value.StringFixed(1) + "%"
	case PercentNew:
		return "new"
	default:
		return "n/a"
	}
}

// MarshalJSON emits a number rounded to two places, "new", or null.
func (p Percent) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PercentNumeric:
		return []byte(Round2(p.Value).String()), nil
	case PercentNew:
		return json.Marshal(string(PercentNew))
	default:
		return []byte("null"), nil
	}
}

// Delta is a signed change between two periods.
type Delta struct {
	Absolute decimal.Decimal
	Percent  Percent
}

// CategoryDelta is the per-category change between two periods.
type CategoryDelta struct {
	Category  string
	Baseline  decimal.Decimal
	Comparand decimal.Decimal
	Absolute  decimal.Decimal
	Percent   Percent
}

// ComparisonResult holds the expense comparison of two monthly aggregates.
type ComparisonResult struct {
	Baseline       MonthlyAggregate
	Comparand      MonthlyAggregate
	TotalDelta     Delta
	CategoryDeltas []CategoryDelta
}
