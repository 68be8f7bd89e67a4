package query

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/storage/memory"
)

func rec(id, account, merchant, category, amount string, ts time.Time) core.Transaction {
	t := core.Transaction{
		ID:       id,
		Account:  account,
		Merchant: merchant,
		Category: category,
		Amount:   decimal.RequireFromString(amount),
	}
	t.SetTimestamp(ts)
	return t
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var now = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func sample() []core.Transaction {
	return []core.Transaction{
		rec("today", "Starling", "Tesco", "Groceries", "-12.40", now.Add(-2*time.Hour)),
		rec("yesterday", "Amex", "Nandos", "Dining", "-32.00", now.Add(-20*time.Hour)),
		rec("lastweek", "Starling", "TfL", "Transport", "-2.80", now.AddDate(0, 0, -6)),
		rec("lastmonth", "Amex", "Amazon", "Shopping", "-150", now.AddDate(0, 0, -25)),
		rec("salary", "Starling", "ACME Ltd", "Income", "2500", now.AddDate(0, -2, 0)),
		rec("ancient", "Starling", "Landlord", "Rent", "-1200", now.AddDate(-2, 0, 0)),
	}
}

func idsOf(records []core.Transaction) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(got []core.Transaction, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i, r := range got {
		if r.ID != want[i] {
			return false
		}
	}
	return true
}

func TestFilterComposition(t *testing.T) {
	records := []core.Transaction{
		rec("A", "X", "m", "c", "-10", now),
		rec("B", "Y", "m", "c", "-500", now),
	}
	got := FilterAt(records, FilterSpec{
		Accounts:    []string{"X"},
		AmountRange: &AmountRange{Min: decPtr("0"), Max: decPtr("100")},
	}, now)
	if !equalIDs(got, []string{"A"}) {
		t.Fatalf("expected [A], got %v", idsOf(got))
	}
}

func TestFilterEmptySpecIsIdentity(t *testing.T) {
	records := sample()
	got := FilterAt(records, FilterSpec{}, now)
	if len(got) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(got))
	}
	for i := range records {
		if !got[i].Equal(records[i]) {
			t.Fatalf("record %d differs", i)
		}
	}
	got[0].Category = "changed"
	if records[0].Category == "changed" {
		t.Fatalf("result must not alias the input")
	}
	if !(FilterSpec{DateRange: &DateRange{Window: WindowAll}}).IsEmpty() {
		t.Fatalf("an all-time window is an empty spec")
	}
}

func TestFilterCriteria(t *testing.T) {
	cases := []struct {
		name string
		spec FilterSpec
		want []string
	}{
		{"search merchant case-insensitive", FilterSpec{SearchTerm: "tEsCo"}, []string{"today"}},
		{"search category", FilterSpec{SearchTerm: "din"}, []string{"yesterday"}},
		{"search ignores description", FilterSpec{SearchTerm: "zzz"}, []string{}},
		{"accounts", FilterSpec{Accounts: []string{"Amex"}}, []string{"yesterday", "lastmonth"}},
		{"categories", FilterSpec{Categories: []string{"Rent", "Income"}}, []string{"salary", "ancient"}},
		{"today", FilterSpec{DateRange: &DateRange{Window: WindowToday}}, []string{"today"}},
		{"yesterday", FilterSpec{DateRange: &DateRange{Window: WindowYesterday}}, []string{"yesterday"}},
		{"last 7 days", FilterSpec{DateRange: &DateRange{Window: WindowLast7Days}}, []string{"today", "yesterday", "lastweek"}},
		{"last 30 days", FilterSpec{DateRange: &DateRange{Window: WindowLast30Days}}, []string{"today", "yesterday", "lastweek", "lastmonth"}},
		{"last year", FilterSpec{DateRange: &DateRange{Window: WindowLastYear}}, []string{"today", "yesterday", "lastweek", "lastmonth", "salary"}},
		{"explicit bounds", FilterSpec{DateRange: &DateRange{From: now.AddDate(0, 0, -7), To: now.Add(-3 * time.Hour)}}, []string{"yesterday", "lastweek"}},
		{"amount min on magnitude", FilterSpec{AmountRange: &AmountRange{Min: decPtr("1000")}}, []string{"salary", "ancient"}},
		{"amount inclusive bounds", FilterSpec{AmountRange: &AmountRange{Min: decPtr("2.80"), Max: decPtr("12.40")}}, []string{"today", "lastweek"}},
		{"and of criteria", FilterSpec{Accounts: []string{"Starling"}, DateRange: &DateRange{Window: WindowLast30Days}, SearchTerm: "t"}, []string{"today", "lastweek"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FilterAt(sample(), tc.spec, now)
			if !equalIDs(got, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, idsOf(got))
			}
		})
	}
}

func TestFilterWindowsFollowTheClock(t *testing.T) {
	records := []core.Transaction{rec("late", "X", "m", "c", "-1", time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC))}
	spec := FilterSpec{DateRange: &DateRange{Window: WindowToday}}
	if got := FilterAt(records, spec, time.Date(2024, 3, 15, 23, 45, 0, 0, time.UTC)); len(got) != 1 {
		t.Fatalf("expected record to be today")
	}
	if got := FilterAt(records, spec, time.Date(2024, 3, 16, 0, 5, 0, 0, time.UTC)); len(got) != 0 {
		t.Fatalf("after midnight the record is no longer today")
	}
}

func TestParseWindow(t *testing.T) {
	cases := map[string]Window{
		"":             WindowAll,
		"all":          WindowAll,
		"TODAY":        WindowToday,
		"week":         WindowLast7Days,
		"month":        WindowLast30Days,
		"year":         WindowLastYear,
		"last-30-days": WindowLast30Days,
	}
	for in, want := range cases {
		got, err := ParseWindow(in)
		if err != nil || got != want {
			t.Fatalf("%q: want %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseWindow("fortnight"); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestSpecFromValues(t *testing.T) {
	v := url.Values{}
	v.Set("search", " tesco ")
	v.Add("account", "Starling,Amex")
	v.Add("category", "Groceries")
	v.Add("category", "Dining")
	v.Set("from", "2024-03-01")
	v.Set("to", "2024-03-10")
	v.Set("min", "£5")
	v.Set("max", "-100")

	spec, err := SpecFromValues(v, time.UTC)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.SearchTerm != "tesco" || len(spec.Accounts) != 2 || len(spec.Categories) != 2 {
		t.Fatalf("unexpected spec %+v", spec)
	}
	if spec.DateRange == nil || !spec.DateRange.To.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bare 'to' date should be inclusive of that day: %+v", spec.DateRange)
	}
	if !spec.AmountRange.Min.Equal(decimal.NewFromInt(5)) || !spec.AmountRange.Max.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unexpected amount range %s..%s", spec.AmountRange.Min, spec.AmountRange.Max)
	}

	empty, err := SpecFromValues(url.Values{}, nil)
	if err != nil || !empty.IsEmpty() {
		t.Fatalf("no params should give an empty spec: %+v %v", empty, err)
	}

	for _, bad := range []url.Values{
		{"range": {"fortnight"}},
		{"from": {"03/01/2024"}},
		{"min": {"lots"}},
	} {
		if _, err := SpecFromValues(bad, time.UTC); !core.IsValidation(err) {
			t.Fatalf("%v: expected validation error, got %v", bad, err)
		}
	}
}

func TestSelectMatchesFilter(t *testing.T) {
	ctx := context.Background()
	store := memory.New(sample()...)
	specs := []FilterSpec{
		{},
		{DateRange: &DateRange{Window: WindowLast7Days}},
		{DateRange: &DateRange{Window: WindowYesterday}, Accounts: []string{"Amex"}},
		{SearchTerm: "a", AmountRange: &AmountRange{Max: decPtr("200")}},
	}
	for i, spec := range specs {
		got, err := Select(ctx, store, spec, now)
		if err != nil {
			t.Fatalf("spec %d: %v", i, err)
		}
		all, _ := store.GetAll(ctx)
		want := FilterAt(all, spec, now)
		if !equalIDs(got, idsOf(want)) {
			t.Fatalf("spec %d: select %v, filter %v", i, idsOf(got), idsOf(want))
		}
	}
}
