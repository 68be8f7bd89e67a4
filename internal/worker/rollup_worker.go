package worker

import (
	"context"
	"fmt"
	"time"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/log"
)

// Refresher recomputes monthly rollups from the store and persists them where
// the API process reads them.
type Refresher interface {
	RefreshMonths(ctx context.Context, keys []string) ([]core.MonthlyAggregate, error)
	RefreshAll(ctx context.Context) ([]core.MonthlyAggregate, error)
}

// RollupWorker keeps the persisted monthly rollups current in response to
// change events, with a periodic full refresh as a backstop for lost messages.
type RollupWorker struct {
	rollups Refresher
	logger  *log.Logger
}

func NewRollupWorker(r Refresher, logger *log.Logger) *RollupWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &RollupWorker{rollups: r, logger: logger.WithComponent(log.ComponentWorker)}
}

// Handle recomputes the months named by msg, or every month when it names none.
func (w *RollupWorker) Handle(ctx context.Context, msg *amqp.TransactionsChanged) error {
	w.logger.InfoContext(ctx, "Processing transactions changed",
		log.FieldMonthKeys, msg.MonthKeys,
		"reason", msg.Reason)

	if msg.AllMonths() {
		return w.Refresh(ctx)
	}
	aggs, err := w.rollups.RefreshMonths(ctx, msg.MonthKeys)
	if err != nil {
		return fmt.Errorf("refresh months: %w", err)
	}
	w.report(ctx, aggs)
	return nil
}

// Refresh recomputes every stored month.
func (w *RollupWorker) Refresh(ctx context.Context) error {
	aggs, err := w.rollups.RefreshAll(ctx)
	if err != nil {
		return fmt.Errorf("refresh all months: %w", err)
	}
	w.logger.InfoContext(ctx, "Rollups refreshed", log.FieldCount, len(aggs), log.FieldOperation, log.OpRollup)
	w.report(ctx, aggs)
	return nil
}

// Run refreshes every interval until ctx ends. Failures are logged and the
// loop keeps going.
func (w *RollupWorker) Run(ctx context.Context, interval time.Duration) error {
	if err := w.Refresh(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup rollup refresh failed", log.FieldError, err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Rollup refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.Refresh(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Periodic rollup refresh failed", log.FieldError, err)
			}
		}
	}
}

func (w *RollupWorker) report(ctx context.Context, aggs []core.MonthlyAggregate) {
	for _, a := range aggs {
		w.logger.DebugContext(ctx, "Month rolled up",
			log.NewFields().
				WithMonths([]string{a.MonthKey}).
				WithTotals(a.TotalIncome, a.TotalExpenses).
				WithOperation(log.OpRollup).
				ToSlice()...)
	}
}
