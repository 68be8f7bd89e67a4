package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/amqp"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/services"
	"finboard/internal/storage/memory"
)

func record(id string, ts time.Time, amount string) core.Transaction {
	t := core.Transaction{ID: id, Amount: decimal.RequireFromString(amount), Category: "Groceries"}
	t.SetTimestamp(ts)
	return t
}

func setup(t *testing.T) (*RollupWorker, *cache.RollupCache, *memory.Store) {
	t.Helper()
	store := memory.New(
		record("a", time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), "-40"),
		record("b", time.Date(2024, 2, 3, 9, 0, 0, 0, time.UTC), "-25"),
	)
	rollups := cache.NewRollupCache(24, time.Hour)
	svc := services.NewTransactionService(store, services.Options{Rollups: rollups, RollupStore: store})
	return NewRollupWorker(svc, nil), rollups, store
}

func TestHandleWarmsNamedMonths(t *testing.T) {
	w, rollups, _ := setup(t)

	msg := amqp.NewTransactionsChanged([]string{"2024-02"}, amqp.ReasonImport, time.Now())
	if err := w.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	feb, ok := rollups.Month("2024-02")
	if !ok || !feb.TotalExpenses.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("february should be warm with 25 expenses: %+v %v", feb, ok)
	}
	if _, ok := rollups.Month("2024-01"); ok {
		t.Fatalf("january was not named and should stay cold")
	}
}

func TestHandleWithoutMonthsRefreshesEverything(t *testing.T) {
	w, rollups, store := setup(t)
	rollups.StoreAt(rollups.Generation(), core.MonthlyAggregate{MonthKey: "2023-12"})
	_ = store.Put(context.Background(), record("c", time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC), "-10"))

	if err := w.Handle(context.Background(), amqp.NewTransactionsChanged(nil, amqp.ReasonClear, time.Now())); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if _, ok := rollups.Month("2023-12"); ok {
		t.Fatalf("stale month should be dropped on a full refresh")
	}
	jan, ok := rollups.Month("2024-01")
	if !ok || !jan.TotalExpenses.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("january should be recomputed to 50: %+v %v", jan, ok)
	}
	if rollups.Size() != 2 {
		t.Fatalf("expected 2 cached months, got %d", rollups.Size())
	}
}

func TestHandlePersistsRollupsForTheAPI(t *testing.T) {
	w, _, store := setup(t)
	ctx := context.Background()

	msg := amqp.NewTransactionsChanged([]string{"2024-01", "2024-02"}, amqp.ReasonSync, time.Now())
	if err := w.Handle(ctx, msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	for key, want := range map[string]int64{"2024-01": 40, "2024-02": 25} {
		got, err := store.GetRollup(ctx, key)
		if err != nil || !got.TotalExpenses.Equal(decimal.NewFromInt(want)) {
			t.Fatalf("%s should be persisted with %d expenses: %+v %v", key, want, got, err)
		}
	}

	// a separate api process sharing the store serves the persisted month
	marked, _ := store.GetRollup(ctx, "2024-02")
	marked.TotalIncome = decimal.NewFromInt(7)
	_ = store.PutRollups(ctx, []core.MonthlyAggregate{marked})
	api := services.NewTransactionService(store, services.Options{RollupStore: store})
	feb, err := api.Month(ctx, "2024-02")
	if err != nil || !feb.TotalIncome.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("api should read the persisted rollup: %+v %v", feb, err)
	}
}

func TestRefreshPersistsEveryMonth(t *testing.T) {
	w, _, store := setup(t)
	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, key := range []string{"2024-01", "2024-02"} {
		if _, err := store.GetRollup(context.Background(), key); err != nil {
			t.Fatalf("%s should be persisted: %v", key, err)
		}
	}
}

type failingRefresher struct{}

func (failingRefresher) RefreshMonths(context.Context, []string) ([]core.MonthlyAggregate, error) {
	return nil, errors.New("store down")
}

func (failingRefresher) RefreshAll(context.Context) ([]core.MonthlyAggregate, error) {
	return nil, errors.New("store down")
}

func TestHandlePropagatesFailures(t *testing.T) {
	w := NewRollupWorker(failingRefresher{}, nil)
	msg := amqp.NewTransactionsChanged([]string{"2024-01"}, amqp.ReasonUpdate, time.Now())
	if err := w.Handle(context.Background(), msg); err == nil {
		t.Fatalf("expected error so the message is requeued")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	w, rollups, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Hour) }()

	deadline := time.Now().Add(2 * time.Second)
	for rollups.Size() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rollups.Size() != 2 {
		t.Fatalf("startup refresh should warm both months, got %d", rollups.Size())
	}
}
