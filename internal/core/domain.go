package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
)

// Placeholders assigned when a source leaves a display field blank.
const (
	DefaultCategory    = "Uncategorized"
	DefaultMerchant    = "Unknown"
	DefaultDescription = "Transaction"
	DefaultAccount     = "Other"
)

// MonthKeyLayout is the time layout of a month bucket key ("YYYY-MM").
const MonthKeyLayout = "2006-01"

// DayLayout is the ISO calendar date layout used for daily series and exports.
const DayLayout = "2006-01-02"

type (
	Status string

	// Transaction is the normalized record every engine operates on.
	// Amount is signed: negative is an expense, positive is income.
	Transaction struct {
		ID          string
		Timestamp   time.Time
		MonthKey    string
		Amount      decimal.Decimal
		Category    string
		Merchant    string
		Description string
		Account     string
		Status      Status
		Reference   string
		Notes       string
		Provider    string
		Source      string
	}
)

// ParseStatus maps free-text source statuses onto the enumerated tag.
// Unknown or blank values are treated as completed.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "upcoming", "authorised", "authorized":
		return StatusPending
	case "scheduled":
		return StatusScheduled
	default:
		return StatusCompleted
	}
}

// String implements fmt.Stringer
func (s Status) String() string {
	return string(s)
}

// MonthKeyOf returns the "YYYY-MM" bucket of ts in ts's own location.
func MonthKeyOf(ts time.Time) string {
	return ts.Format(MonthKeyLayout)
}

// ParseMonthKey parses a "YYYY-MM" key into the first instant of that month in loc.
func ParseMonthKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(MonthKeyLayout, strings.TrimSpace(key), loc)
}

// SetTimestamp replaces the timestamp and recomputes the month bucket.
func (t *Transaction) SetTimestamp(ts time.Time) {
	t.Timestamp = ts
	t.MonthKey = MonthKeyOf(ts)
}

// Month returns the record's month bucket, deriving it from the timestamp
// when the stored key is missing.
func (t Transaction) Month() string {
	if t.MonthKey != "" {
		return t.MonthKey
	}
	return MonthKeyOf(t.Timestamp)
}

// CategoryOrDefault returns the category, falling back to Uncategorized.
func (t Transaction) CategoryOrDefault() string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return DefaultCategory
}

// IsExpense reports whether the record is money going out.
func (t Transaction) IsExpense() bool {
	return t.Amount.IsNegative()
}

// IsIncome reports whether the record is money coming in.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// Magnitude returns the absolute amount.
func (t Transaction) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// Equal compares two records field by field. Amounts compare numerically
// and timestamps compare as instants.
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.Timestamp.Equal(o.Timestamp) &&
		t.MonthKey == o.MonthKey &&
		t.Amount.Equal(o.Amount) &&
		t.Category == o.Category &&
		t.Merchant == o.Merchant &&
		t.Description == o.Description &&
		t.Account == o.Account &&
		t.Status == o.Status &&
		t.Reference == o.Reference &&
		t.Notes == o.Notes &&
		t.Provider == o.Provider &&
		t.Source == o.Source
}
