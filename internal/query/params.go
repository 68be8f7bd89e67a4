package query

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// SpecFromValues builds a FilterSpec from query parameters:
// search, account, category (repeatable or comma separated), range,
// from, to (YYYY-MM-DD in loc, or RFC 3339), min and max.
func SpecFromValues(v url.Values, loc *time.Location) (FilterSpec, error) {
	if loc == nil {
		loc = time.UTC
	}
	spec := FilterSpec{
		SearchTerm: strings.TrimSpace(v.Get("search")),
		Accounts:   listParam(v, "account"),
		Categories: listParam(v, "category"),
	}

	window, err := ParseWindow(v.Get("range"))
	if err != nil {
		return FilterSpec{}, &core.ValidationError{Field: "range", Value: v.Get("range"), Reason: err}
	}
	from, err := timeParam(v, "from", loc)
	if err != nil {
		return FilterSpec{}, err
	}
	to, err := timeParam(v, "to", loc)
	if err != nil {
		return FilterSpec{}, err
	}
	if window != WindowAll || !from.IsZero() || !to.IsZero() {
		spec.DateRange = &DateRange{Window: window, From: from, To: to}
	}

	lo, err := amountParam(v, "min")
	if err != nil {
		return FilterSpec{}, err
	}
	hi, err := amountParam(v, "max")
	if err != nil {
		return FilterSpec{}, err
	}
	if lo != nil || hi != nil {
		spec.AmountRange = &AmountRange{Min: lo, Max: hi}
	}
	return spec, nil
}

func listParam(v url.Values, key string) []string {
	var out []string
	for _, raw := range v[key] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// timeParam parses a date bound. A bare date for "to" is made inclusive by
// moving the exclusive bound to the next midnight.
func timeParam(v url.Values, key string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.In(loc), nil
	}
	day, err := time.ParseInLocation(core.DayLayout, raw, loc)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: key, Value: raw, Reason: core.ErrInvalidTimestamp}
	}
	if key == "to" {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

func amountParam(v url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(v.Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		return nil, &core.ValidationError{Field: key, Value: raw, Reason: core.ErrInvalidAmount}
	}
	d = d.Abs()
	return &d, nil
}
