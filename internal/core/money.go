// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from the loosely
// formatted strings found in bank exports and rounding them for display.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// currencyStripper removes currency symbols and thousands separators. Commas
// must pass validGrouping first.
var currencyStripper = strings.NewReplacer("$", "", "£", "", "€", "", ",", "", " ", "", "\u00a0", "")

// ParseAmount converts a signed decimal string into a decimal amount.
//
// It accepts an optional leading sign, currency symbols, thousands separators
// and accounting parentheses. A comma is only read as a thousands separator:
// it must sit before any decimal point and be followed by exactly three
// digits, so decimal commas ("12,50", "1.234,56") are rejected. Full
// precision is preserved; rounding happens only at presentation time through
// Round2.
//
// Examples:
//
//	ParseAmount("-12.34")    -> -12.34, nil
//	ParseAmount("£1,234.5")  -> 1234.5, nil
//	ParseAmount("(45.00)")   -> -45, nil
//	ParseAmount("12,50")     -> 0, ErrInvalidAmount
//	ParseAmount("abc")       -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	if !validGrouping(s) {
		return decimal.Zero, ErrInvalidAmount
	}
	s = currencyStripper.Replace(s)
	// Symbols may sit between the sign and the digits ("-£5").
	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, ErrInvalidAmount
	}

	// decimal accepts exponents; bank exports never use them, and they are the
	// only route to absurd magnitudes, so reject them outright.
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// validGrouping reports whether every comma in s groups exactly three digits
// of the integer part.
func validGrouping(s string) bool {
	point := strings.IndexByte(s, '.')
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			continue
		}
		if point >= 0 && i > point {
			return false
		}
		digits := 0
		for j := i + 1; j < len(s) && s[j] >= '0' && s[j] <= '9'; j++ {
			digits++
		}
		if digits != 3 {
			return false
		}
	}
	return true
}

// Round2 rounds half away from zero to two decimal places.
// Use it only when a value leaves the engines (JSON, CSV, logs).
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FormatAmount renders d with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
