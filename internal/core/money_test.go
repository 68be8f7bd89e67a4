package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"-12.34", "-12.34", true},
		{"+5", "5", true},
		{"£1,234.50", "1234.5", true},
		{"-$20", "-20", true},
		{"(45.00)", "-45", true},
		{" 2.505 ", "2.505", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"£", "", false},
		{"NaN", "", false},
		{"Inf", "", false},
		{"1e309", "", false},
		{"1,234,567.89", "1234567.89", true},
		{"-1,200", "-1200", true},
		{"€ 2,000.00", "2000", true},
		{"12,50", "", false},
		{"1.234,56", "", false},
		{"1,2345", "", false},
		{"12,5 €", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestRound2(t *testing.T) {
	cases := map[string]string{
		"1.005":  "1.01",
		"-1.005": "-1.01",
		"2.344":  "2.34",
		"80":     "80",
	}
	for in, want := range cases {
		if got := Round2(decimal.RequireFromString(in)); !got.Equal(decimal.RequireFromString(want)) {
			t.Fatalf("Round2(%s) = %s, want %s", in, got, want)
		}
	}
	if FormatAmount(decimal.RequireFromString("80")) != "80.00" {
		t.Fatalf("FormatAmount should pad to two places")
	}
}

func TestPercentJSON(t *testing.T) {
	cases := []struct {
		p    Percent
		want string
	}{
		{NumericPercent(decimal.RequireFromString("12.345")), "12.35"},
		{NewPercent(), `"new"`},
		{UndefinedPercent(), "null"},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.p)
		if err != nil {
			t.Fatalf("marshal %v: %v", tc.p, err)
		}
		if string(b) != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, b)
		}
	}
}
