// Package importer reads delimited bank exports and stores the rows that
// normalize cleanly. Bad rows are reported alongside the good ones.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/normalize"
	"finboard/internal/storage"
)

const bom = "\ufeff"

var ErrNoHeader = errors.New("csv has no header row")

// ReadRows parses delimited text into header-keyed rows. Headers and cells
// are trimmed; short rows are padded with empty cells and extra cells are
// dropped.
func ReadRows(r io.Reader) ([]normalize.Raw, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		header[i] = strings.TrimSpace(h)
	}

	var rows []normalize.Raw
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(rows)+1, err)
		}
		row := make(normalize.Raw, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(record) {
				row[h] = strings.TrimSpace(record[i])
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Result summarizes one import run.
type Result struct {
	Source   string             `json:"source"`
	Rows     int                `json:"rows"`
	Imported int                `json:"imported"`
	Skipped  int                `json:"skipped"`
	Errors   []core.RowError    `json:"-"`
	// Months lists every month the run touched, including the months that
	// upserted records moved out of.
	Months   []string           `json:"months"`
	Records  []core.Transaction `json:"-"`
}

// Rejected returns the number of rows that failed validation.
func (r Result) Rejected() int {
	return len(r.Errors)
}

// Importer normalizes parsed rows and upserts them into the store.
type Importer struct {
	store      storage.TransactionStore
	normalizer *normalize.Normalizer
	logger     *log.Logger
}

func New(store storage.TransactionStore, n *normalize.Normalizer, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.Discard()
	}
	return &Importer{store: store, normalizer: n, logger: logger.WithComponent(log.ComponentImporter)}
}

// Import reads r as CSV in src's shape. Validation failures land in
// Result.Errors; only read and store failures abort the run.
func (im *Importer) Import(ctx context.Context, r io.Reader, src normalize.Source) (Result, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return Result{Source: src.Name}, err
	}
	return im.ImportRows(ctx, rows, src)
}

// ImportRows normalizes and stores already parsed rows.
func (im *Importer) ImportRows(ctx context.Context, rows []normalize.Raw, src normalize.Source) (Result, error) {
	records, rowErrs := im.normalizer.NormalizeBatch(rows, src)
	res := Result{
		Source:  src.Name,
		Rows:    len(rows),
		Errors:  rowErrs,
		Records: records,
		Months:  MonthKeys(records),
	}
	res.Skipped = len(rows) - len(records) - len(rowErrs)

	replaced, err := storage.ReplacedMonths(ctx, im.store, records)
	if err != nil {
		return res, err
	}
	res.Months = MergeMonths(res.Months, replaced)

	if err := im.store.PutAll(ctx, records); err != nil {
		return res, fmt.Errorf("store imported rows: %w", err)
	}
	res.Imported = len(records)

	for _, e := range rowErrs {
		im.logger.WarnContext(ctx, "Row rejected",
			log.FieldSource, src.Name, "row", e.Row, log.FieldError, e.Reason())
	}
	im.logger.InfoContext(ctx, "Import finished",
		log.NewFields().WithImport(src.Name, res.Imported, res.Skipped, res.Rejected()).WithMonths(res.Months).ToSlice()...)
	return res, nil
}

// MergeMonths returns the sorted union of month key lists.
func MergeMonths(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, l := range lists {
		for _, k := range l {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// MonthKeys returns the distinct month buckets of records, sorted.
func MonthKeys(records []core.Transaction) []string {
	seen := make(map[string]struct{})
	for _, t := range records {
		seen[t.Month()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
