// Package sheets appends exported transactions to a Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"finboard/internal/core"
	"finboard/internal/export"
)

const (
	DefaultSheetName  = "Transactions"
	DefaultBatchSize  = 500
	defaultRetryDelay = 30 * time.Second
)

// Config holds the target spreadsheet and retry policy.
type Config struct {
	SpreadsheetID string
	SheetName     string
	// BatchSize is the number of rows per append call.
	BatchSize  int
	Attempts   uint
	RetryDelay time.Duration
}

// Exporter appends rows in the CSV export column order.
type Exporter struct {
	svc    *gsheet.Service
	cfg    Config
	logger *slog.Logger
}

// New builds an exporter. opts are passed to the Sheets client, e.g.
// option.WithCredentialsJSON or option.WithEndpoint.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...option.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Exporter{svc: svc, cfg: cfg, logger: logger}, nil
}

// NewFromServiceAccount reads service account credentials from path.
func NewFromServiceAccount(ctx context.Context, cfg Config, path string, logger *slog.Logger) (*Exporter, error) {
	credentialsJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return New(ctx, cfg, logger,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(gsheet.SpreadsheetsScope))
}

// Export appends one header row then every record, batch by batch, and
// returns the number of data rows written.
func (e *Exporter) Export(ctx context.Context, records []core.Transaction) (int, error) {
	header := make([]any, len(export.Header))
	for i, h := range export.Header {
		header[i] = h
	}
	if err := e.append(ctx, [][]any{header}); err != nil {
		return 0, fmt.Errorf("append header: %w", err)
	}

	written := 0
	for start := 0; start < len(records); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(records))
		values := make([][]any, 0, end-start)
		for _, t := range records[start:end] {
			row := export.Row(t)
			cells := make([]any, len(row))
			for i, c := range row {
				cells[i] = c
			}
			values = append(values, cells)
		}
		if err := e.append(ctx, values); err != nil {
			return written, fmt.Errorf("append rows %d-%d: %w", start+1, end, err)
		}
		written += len(values)
	}

	e.logger.InfoContext(ctx, "Exported transactions to sheet",
		"spreadsheet_id", e.cfg.SpreadsheetID,
		"sheet", e.cfg.SheetName,
		"rows", written)
	return written, nil
}

func (e *Exporter) append(ctx context.Context, values [][]any) error {
	rng := fmt.Sprintf("%s!A:F", e.cfg.SheetName)
	req := &gsheet.ValueRange{Values: values}

	return retry.Do(
		func() error {
			_, err := e.svc.Spreadsheets.Values.Append(e.cfg.SpreadsheetID, rng, req).
				ValueInputOption("USER_ENTERED").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				e.logger.WarnContext(ctx, "Sheets rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(e.cfg.Attempts),
		retry.Delay(e.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}
