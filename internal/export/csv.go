// Package export renders transaction sets into delimited text.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"finboard/internal/core"
)

// Header is the fixed export column order.
var Header = []string{"date", "description", "merchant", "amount", "category", "account"}

// Row renders one record in Header order: ISO date in the record's own
// location and the amount with two decimals.
func Row(t core.Transaction) []string {
	return []string{
		t.Timestamp.Format(core.DayLayout),
		t.Description,
		t.Merchant,
		core.FormatAmount(t.Amount),
		t.CategoryOrDefault(),
		t.Account,
	}
}

// WriteCSV writes a header line followed by one line per record. Lines end
// with CRLF and fields containing commas, quotes or newlines are quoted.
func WriteCSV(w io.Writer, records []core.Transaction) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, t := range records {
		if err := cw.Write(Row(t)); err != nil {
			return fmt.Errorf("writing csv record %s: %w", t.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}

// Filename suggests a download name for an export taken on day.
func Filename(day string) string {
	return "transactions-" + day + ".csv"
}
