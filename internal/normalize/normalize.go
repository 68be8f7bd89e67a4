package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// idNamespace scopes the deterministic ids given to records that arrive without one.
var idNamespace = uuid.MustParse("6f1c2a4e-9b1d-4c55-8d0e-3a7f5e2b9c10")

var hundred = decimal.NewFromInt(100)

// Layouts accepted without a date order hint. Zoned layouts come first.
var (
	zonedLayouts = []string{time.RFC3339Nano, time.RFC3339}
	localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02 15:04", core.DayLayout}
)

// Normalizer turns raw records into core.Transaction values. It holds no
// mutable state; all methods are pure functions of their inputs.
type Normalizer struct {
	// Location is the reporting time zone. Timestamps are converted to it and
	// month keys are the wall-clock month there.
	Location *time.Location
}

// New creates a Normalizer reporting in loc (UTC when nil).
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{Location: loc}
}

func (n *Normalizer) location() *time.Location {
	if n == nil || n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Normalize converts one raw record. It fails with *core.ValidationError when
// the timestamp or the amount cannot be parsed.
func (n *Normalizer) Normalize(raw Raw, src Source) (core.Transaction, error) {
	return n.normalize(raw, src, 0)
}

func (n *Normalizer) normalize(raw Raw, src Source, occurrence int) (core.Transaction, error) {
	loc := n.location()

	dateValue := raw.get(src.Fields.Date)
	ts, err := ParseTimestamp(dateValue, src.DateOrder, loc)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "timestamp", Value: dateValue, Reason: err}
	}

	amountValue := raw.get(src.Fields.Amount)
	amount, err := core.ParseAmount(amountValue)
	if err != nil {
		return core.Transaction{}, &core.ValidationError{Field: "amount", Value: amountValue, Reason: err}
	}
	if src.MinorUnits {
		amount = amount.Div(hundred)
	}
	if src.ExpensesPositive {
		amount = amount.Neg()
	}

	description := firstNonEmpty(raw.get(src.Fields.Description), core.DefaultDescription)
	merchant := raw.get(src.Fields.Merchant)
	if merchant == "" {
		merchant = merchantFromDescription(raw.get(src.Fields.Description))
	}

	t := core.Transaction{
		ID:          raw.get(src.Fields.ID),
		Amount:      amount,
		Category:    firstNonEmpty(raw.get(src.Fields.Category), core.DefaultCategory),
		Merchant:    merchant,
		Description: description,
		Account:     firstNonEmpty(raw.get(src.Fields.Account), src.DefaultAccount, core.DefaultAccount),
		Status:      core.ParseStatus(raw.get(src.Fields.Status)),
		Reference:   raw.get(src.Fields.Reference),
		Notes:       raw.get(src.Fields.Notes),
		Provider:    firstNonEmpty(raw.get(src.Fields.Provider), src.Provider),
		Source:      firstNonEmpty(raw.get(src.Fields.Origin), src.Name),
	}
	t.SetTimestamp(ts)
	if t.ID == "" {
		t.ID = fingerprint(src, t, occurrence)
	}
	return t, nil
}

// NormalizeBatch normalizes rows in order, collecting per-row failures rather
// than stopping. Fully blank rows are skipped. Row numbers are 1-based.
func (n *Normalizer) NormalizeBatch(rows []Raw, src Source) ([]core.Transaction, []core.RowError) {
	out := make([]core.Transaction, 0, len(rows))
	var errs []core.RowError
	seen := make(map[string]int)

	for i, raw := range rows {
		if raw.blank() {
			continue
		}
		key := raw.get(src.Fields.Date) + "|" + raw.get(src.Fields.Amount) + "|" + raw.get(src.Fields.Description)
		occurrence := seen[key]
		seen[key]++

		t, err := n.normalize(raw, src, occurrence)
		if err != nil {
			errs = append(errs, core.RowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, t)
	}
	return out, errs
}

// ToRaw projects a normalized record onto the persisted shape read by StoreSource.
func ToRaw(t core.Transaction) Raw {
	return Raw{
		"id":          t.ID,
		"timestamp":   t.Timestamp.Format(time.RFC3339Nano),
		"amount":      t.Amount.String(),
		"category":    t.Category,
		"merchant":    t.Merchant,
		"description": t.Description,
		"account":     t.Account,
		"status":      t.Status.String(),
		"reference":   t.Reference,
		"notes":       t.Notes,
		"provider":    t.Provider,
		"source":      t.Source,
	}
}

// ParseTimestamp parses ISO-8601 values directly and resolves numeric
// day/month/year values with order. Values without a zone are read in loc;
// the result is always expressed in loc.
func ParseTimestamp(value string, order DateOrder, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, core.ErrInvalidTimestamp
	}
	if loc == nil {
		loc = time.UTC
	}

	for _, layout := range zonedLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.In(loc), nil
		}
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return parseNumericDate(value, order, loc)
}

func parseNumericDate(value string, order DateOrder, loc *time.Location) (time.Time, error) {
	// Keep only the date portion when a time follows ("03/04/2024 10:00").
	datePart := strings.Fields(value)[0]
	parts := strings.FieldsFunc(datePart, func(r rune) bool {
		return r == '/' || r == '-' || r == '.'
	})
	if len(parts) != 3 {
		return time.Time{}, core.ErrInvalidTimestamp
	}
	nums := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return time.Time{}, core.ErrInvalidTimestamp
		}
		nums[i] = v
	}

	var year, month, day int
	switch {
	case len(parts[0]) == 4:
		year, month, day = nums[0], nums[1], nums[2]
	case order == DateOrderDMY:
		day, month, year = nums[0], nums[1], nums[2]
	case order == DateOrderMDY:
		month, day, year = nums[0], nums[1], nums[2]
	default:
		return time.Time{}, core.ErrAmbiguousDate
	}
	if len(parts[2]) == 2 && len(parts[0]) != 4 {
		year += 2000
	}

	ts := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day {
		return time.Time{}, core.ErrInvalidTimestamp
	}
	return ts, nil
}

func fingerprint(src Source, t core.Transaction, occurrence int) string {
	data := strings.Join([]string{
		src.Name,
		t.Timestamp.UTC().Format(time.RFC3339Nano),
		t.Amount.String(),
		t.Description,
		t.Account,
		strconv.Itoa(occurrence),
	}, "|")
	return string(src.Kind) + "-" + uuid.NewSHA1(idNamespace, []byte(data)).String()
}

// merchantFromDescription uses the first word of the description, the way
// bank exports usually lead with the counterparty.
func merchantFromDescription(description string) string {
	fields := strings.Fields(description)
	if len(fields) == 0 {
		return core.DefaultMerchant
	}
	return fields[0]
}

func (r Raw) get(field string) string {
	if field == "" {
		return ""
	}
	return strings.TrimSpace(r[field])
}

func (r Raw) blank() bool {
	for _, v := range r {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
