package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/amqp"
	"finboard/internal/core"
	"finboard/internal/normalize"
	"finboard/internal/providers"
	"finboard/internal/query"
	"finboard/internal/storage"
	"finboard/internal/storage/memory"
)

var clockNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type event struct {
	months []string
	reason string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []event
	err    error
}

func (f *fakeNotifier) PublishTransactionsChanged(_ context.Context, months []string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event{months: months, reason: reason})
	return f.err
}

func (f *fakeNotifier) last(t *testing.T) event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatalf("expected a change event")
	}
	return f.events[len(f.events)-1]
}

func tx(id, ts, amount, category string) core.Transaction {
	when, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	t := core.Transaction{
		ID:       id,
		Amount:   decimal.RequireFromString(amount),
		Category: category,
		Merchant: "Shop " + id,
		Account:  "Starling",
		Status:   core.StatusCompleted,
	}
	t.SetTimestamp(when)
	return t
}

func newService(t *testing.T, seed ...core.Transaction) (*TransactionService, *memory.Store, *fakeNotifier) {
	t.Helper()
	store := memory.New(seed...)
	n := &fakeNotifier{}
	svc := NewTransactionService(store, Options{
		Now:      func() time.Time { return clockNow },
		Notifier: n,
	})
	return svc, store, n
}

func seedMonths() []core.Transaction {
	return []core.Transaction{
		tx("j1", "2024-01-05T10:00:00Z", "-60", "Groceries"),
		tx("j2", "2024-01-20T10:00:00Z", "-40", "Dining"),
		tx("j3", "2024-01-25T10:00:00Z", "2000", "Income"),
		tx("f1", "2024-02-03T10:00:00Z", "-150", "Groceries"),
		tx("m1", "2024-03-14T09:00:00Z", "-12.50", "Dining"),
		tx("m2", "2024-03-15T08:00:00Z", "-7.50", "Transport"),
	}
}

func TestImportStoresAndAnnouncesMonths(t *testing.T) {
	svc, store, n := newService(t)
	csv := "Date,Description,Amount,Category,Reference\n" +
		"01/20/2024,NANDOS LONDON,30.00,Dining,AT1\n" +
		"02/02/2024,TESCO,12.00,Groceries,AT2\n" +
		"13/45/2024,BROKEN,1.00,Dining,AT3\n"

	res, err := svc.Import(context.Background(), strings.NewReader(csv), "amex")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 2 || res.Rejected() != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 stored, got %d", store.Len())
	}
	ev := n.last(t)
	if ev.reason != amqp.ReasonImport || strings.Join(ev.months, ",") != "2024-01,2024-02" {
		t.Fatalf("unexpected event %+v", ev)
	}

	if _, err := svc.Import(context.Background(), strings.NewReader(csv), "monzo"); !errors.Is(err, core.ErrUnknownSource) {
		t.Fatalf("expected ErrUnknownSource, got %v", err)
	}
}

func TestMonthIsCachedUntilChanged(t *testing.T) {
	svc, store, n := newService(t, seedMonths()...)
	ctx := context.Background()

	jan, err := svc.Month(ctx, "2024-01")
	if err != nil {
		t.Fatalf("month: %v", err)
	}
	if !jan.TotalExpenses.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected 100 expenses, got %s", jan.TotalExpenses)
	}

	// written behind the service's back, so the cached month is stale
	_ = store.Put(ctx, tx("j4", "2024-01-28T10:00:00Z", "-25", "Dining"))
	jan, _ = svc.Month(ctx, "2024-01")
	if !jan.TotalExpenses.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected cached 100, got %s", jan.TotalExpenses)
	}

	updated, err := svc.UpdateCategory(ctx, "j2", "Takeaway")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Category != "Takeaway" {
		t.Fatalf("expected updated category, got %q", updated.Category)
	}
	if ev := n.last(t); ev.reason != amqp.ReasonUpdate || len(ev.months) != 1 || ev.months[0] != "2024-01" {
		t.Fatalf("unexpected event %+v", ev)
	}

	jan, _ = svc.Month(ctx, "2024-01")
	if !jan.TotalExpenses.Equal(decimal.NewFromInt(125)) {
		t.Fatalf("expected recomputed 125, got %s", jan.TotalExpenses)
	}

	if _, err := svc.Month(ctx, "2024-13"); !errors.Is(err, core.ErrInvalidMonthKey) {
		t.Fatalf("expected ErrInvalidMonthKey, got %v", err)
	}
}

func TestCompareMonths(t *testing.T) {
	svc, _, _ := newService(t, seedMonths()...)

	res, err := svc.CompareMonths(context.Background(), "2024-01", "2024-02")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !res.TotalDelta.Absolute.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected +50, got %s", res.TotalDelta.Absolute)
	}
	if !res.TotalDelta.Percent.IsNumeric() || !res.TotalDelta.Percent.Value.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50%%, got %s", res.TotalDelta.Percent)
	}

	empty, err := svc.CompareMonths(context.Background(), "2023-01", "2023-02")
	if err != nil {
		t.Fatalf("compare empty months: %v", err)
	}
	if !empty.TotalDelta.Absolute.IsZero() {
		t.Fatalf("absent months should compare as empty")
	}

	if _, err := svc.CompareMonths(context.Background(), "January", "2024-02"); !errors.Is(err, core.ErrInvalidMonthKey) {
		t.Fatalf("expected ErrInvalidMonthKey, got %v", err)
	}
}

func TestDashboard(t *testing.T) {
	svc, _, _ := newService(t, seedMonths()...)

	d, err := svc.Dashboard(context.Background(), 7)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if len(d.Months) != DashboardMonths || d.Months[len(d.Months)-1].MonthKey != "2024-03" {
		t.Fatalf("unexpected month series %+v", d.Months)
	}
	if len(d.Daily) != 7 || d.Daily[6].Date != "2024-03-15" || !d.Daily[6].Amount.Equal(decimal.RequireFromString("7.50")) {
		t.Fatalf("unexpected daily series %+v", d.Daily)
	}
	if d.Totals.Count != 6 || !d.Totals.Expenses.Equal(decimal.NewFromInt(270)) || !d.Totals.Income.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected totals %+v", d.Totals)
	}
	if len(d.Categories) == 0 || d.Categories[0].Category != "Groceries" || !d.Categories[0].Total.Equal(decimal.NewFromInt(210)) {
		t.Fatalf("unexpected categories %+v", d.Categories)
	}

	daily, err := svc.DailySeries(context.Background(), 2)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(daily) != 2 || !daily[0].Amount.Equal(decimal.RequireFromString("12.50")) {
		t.Fatalf("unexpected two-day series %+v", daily)
	}
}

func TestDeleteAndClear(t *testing.T) {
	svc, store, n := newService(t, seedMonths()...)
	ctx := context.Background()

	if err := svc.Delete(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, "f1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ev := n.last(t); ev.reason != amqp.ReasonDelete || ev.months[0] != "2024-02" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if _, err := svc.UpdateNotes(ctx, "f1", "gone"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if ev := n.last(t); ev.reason != amqp.ReasonClear || len(ev.months) != 0 {
		t.Fatalf("clear should announce every month: %+v", ev)
	}
	if store.Len() != 0 {
		t.Fatalf("store should be empty")
	}
}

func TestNotifierFailureDoesNotFailMutation(t *testing.T) {
	svc, _, n := newService(t, seedMonths()...)
	n.err = errors.New("broker down")

	got, err := svc.UpdateNotes(context.Background(), "j1", "weekly shop")
	if err != nil || got.Notes != "weekly shop" {
		t.Fatalf("notes update should succeed: %+v %v", got, err)
	}
	if err := svc.Delete(context.Background(), "j1"); err != nil {
		t.Fatalf("delete should succeed despite the notifier: %v", err)
	}
}

func TestListAndExport(t *testing.T) {
	svc, _, _ := newService(t, seedMonths()...)
	ctx := context.Background()

	spec := query.FilterSpec{Categories: []string{"Dining"}}
	got, err := svc.List(ctx, spec)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].ID != "j2" {
		t.Fatalf("unexpected dining records %+v", got)
	}

	var buf bytes.Buffer
	n, err := svc.Export(ctx, &buf, spec)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	if n != 2 || len(lines) != 3 || !strings.HasPrefix(lines[1], "2024-03-14,") {
		t.Fatalf("unexpected export (%d): %q", n, buf.String())
	}
	if svc.ExportFilename() != "transactions-2024-03-15.csv" {
		t.Fatalf("unexpected filename %q", svc.ExportFilename())
	}
	if _, err := svc.ExportSheets(ctx, spec); !errors.Is(err, ErrSheetsNotConfigured) {
		t.Fatalf("expected ErrSheetsNotConfigured, got %v", err)
	}
}

func TestSyncProvidersIsIdempotent(t *testing.T) {
	cfg := providers.MockConfig{Seed: 42, Count: 20, Now: func() time.Time { return clockNow }}
	reg, err := providers.NewRegistry([]string{"starling", "amex"}, cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := memory.New()
	n := &fakeNotifier{}
	svc := NewTransactionService(store, Options{
		Now:       func() time.Time { return clockNow },
		Notifier:  n,
		Providers: providers.NewAggregator(reg, normalize.New(time.UTC), nil),
	})

	first, err := svc.SyncProviders(context.Background(), 30)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if first.Stored != 40 || store.Len() != 40 {
		t.Fatalf("expected 40 stored, got %d (store %d)", first.Stored, store.Len())
	}
	if _, err := svc.SyncProviders(context.Background(), 30); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if store.Len() != 40 {
		t.Fatalf("resync on the same day should upsert, store has %d", store.Len())
	}
	if ev := n.last(t); ev.reason != amqp.ReasonSync || len(ev.months) == 0 {
		t.Fatalf("unexpected event %+v", ev)
	}

	accounts, err := svc.Accounts(context.Background())
	if err != nil || len(accounts) != 2 {
		t.Fatalf("accounts: %v %v", accounts, err)
	}
}

func TestProvidersNotConfigured(t *testing.T) {
	svc, _, _ := newService(t)
	if _, err := svc.SyncProviders(context.Background(), 0); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
	if _, err := svc.Accounts(context.Background()); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestImportRedatedRecordRefreshesOldMonth(t *testing.T) {
	svc, store, n := newService(t)
	ctx := context.Background()

	jan := "Date,Description,Amount,Category,Reference\n01/15/2024,SHOP,50.00,Dining,R1\n"
	if _, err := svc.Import(ctx, strings.NewReader(jan), "amex"); err != nil {
		t.Fatalf("import: %v", err)
	}
	warm, err := svc.Month(ctx, "2024-01")
	if err != nil || !warm.TotalExpenses.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected 50 in january, got %+v %v", warm, err)
	}

	feb := "Date,Description,Amount,Category,Reference\n02/03/2024,SHOP,50.00,Dining,R1\n"
	if _, err := svc.Import(ctx, strings.NewReader(feb), "amex"); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("same reference should upsert, store has %d", store.Len())
	}
	if ev := n.last(t); strings.Join(ev.months, ",") != "2024-01,2024-02" {
		t.Fatalf("event should name the month the record left, got %+v", ev)
	}

	got, err := svc.Month(ctx, "2024-01")
	if err != nil || !got.TotalExpenses.IsZero() {
		t.Fatalf("january should be empty after the record moved, got %+v %v", got, err)
	}
	res, err := svc.CompareMonths(ctx, "2024-01", "2024-02")
	if err != nil || !res.TotalDelta.Absolute.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected comparison %+v %v", res.TotalDelta, err)
	}
}

type fixedProvider struct {
	records []core.Transaction
}

func (fixedProvider) Name() string             { return "fixed" }
func (fixedProvider) Source() normalize.Source { return normalize.StoreSource }

func (fixedProvider) ListAccounts(context.Context) ([]providers.Account, error) {
	return nil, nil
}

func (p fixedProvider) ListTransactions(context.Context, time.Time, time.Time) ([]normalize.Raw, error) {
	out := make([]normalize.Raw, len(p.records))
	for i, t := range p.records {
		out[i] = normalize.ToRaw(t)
	}
	return out, nil
}

func TestSyncAnnouncesMonthsLeftByRedatedRecords(t *testing.T) {
	store := memory.New(tx("p1", "2024-02-27T10:00:00Z", "-20", "Dining"))
	n := &fakeNotifier{}
	moved := tx("p1", "2024-03-01T10:00:00Z", "-20", "Dining")
	svc := NewTransactionService(store, Options{
		Now:       func() time.Time { return clockNow },
		Notifier:  n,
		Providers: providers.NewAggregator(providers.NewRegistryOf(fixedProvider{records: []core.Transaction{moved}}), normalize.New(time.UTC), nil),
	})
	ctx := context.Background()

	if feb, _ := svc.Month(ctx, "2024-02"); !feb.TotalExpenses.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected 20 in february, got %s", feb.TotalExpenses)
	}
	res, err := svc.SyncProviders(ctx, 30)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if strings.Join(res.Months, ",") != "2024-02,2024-03" {
		t.Fatalf("unexpected sync months %v", res.Months)
	}
	if ev := n.last(t); strings.Join(ev.months, ",") != "2024-02,2024-03" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if feb, _ := svc.Month(ctx, "2024-02"); !feb.TotalExpenses.IsZero() {
		t.Fatalf("february should be recomputed empty, got %s", feb.TotalExpenses)
	}
}

// writeAfterSnapshot runs write once, right after GetAll has taken its
// snapshot, so the snapshot is stale by the time the caller uses it.
type writeAfterSnapshot struct {
	*memory.Store
	write func()
}

func (s *writeAfterSnapshot) GetAll(ctx context.Context) ([]core.Transaction, error) {
	records, err := s.Store.GetAll(ctx)
	if s.write != nil {
		w := s.write
		s.write = nil
		w()
	}
	return records, err
}

func TestSeriesFromStaleSnapshotIsNotCached(t *testing.T) {
	store := &writeAfterSnapshot{Store: memory.New(seedMonths()...)}
	svc := NewTransactionService(store, Options{Now: func() time.Time { return clockNow }})
	ctx := context.Background()

	store.write = func() {
		if err := svc.Delete(ctx, "j1"); err != nil {
			t.Errorf("delete: %v", err)
		}
	}
	months, err := svc.MonthlySeries(ctx, 3)
	if err != nil {
		t.Fatalf("monthly series: %v", err)
	}
	if !months[0].TotalExpenses.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("series is computed from the snapshot, got %s", months[0].TotalExpenses)
	}

	jan, err := svc.Month(ctx, "2024-01")
	if err != nil || !jan.TotalExpenses.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("january should reflect the delete, got %+v %v", jan, err)
	}
}

func TestMonthReadsPersistedRollups(t *testing.T) {
	store := memory.New(seedMonths()...)
	newSvc := func() *TransactionService {
		return NewTransactionService(store, Options{
			Now:         func() time.Time { return clockNow },
			RollupStore: store,
		})
	}
	worker, api := newSvc(), newSvc()
	ctx := context.Background()

	if _, err := worker.RefreshMonths(ctx, []string{"2024-01"}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	persisted, err := store.GetRollup(ctx, "2024-01")
	if err != nil || !persisted.TotalExpenses.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("refresh should persist january, got %+v %v", persisted, err)
	}

	// a distinctive value shows the api read the persisted row instead of recomputing
	persisted.TotalExpenses = decimal.NewFromInt(999)
	_ = store.PutRollups(ctx, []core.MonthlyAggregate{persisted})
	got, err := api.Month(ctx, "2024-01")
	if err != nil || !got.TotalExpenses.Equal(decimal.NewFromInt(999)) {
		t.Fatalf("expected the persisted rollup, got %+v %v", got, err)
	}

	if _, err := api.UpdateCategory(ctx, "j2", "Takeaway"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.GetRollup(ctx, "2024-01"); !errors.Is(err, storage.ErrRollupNotFound) {
		t.Fatalf("a change should drop the persisted month, got %v", err)
	}
	got, err = api.Month(ctx, "2024-01")
	if err != nil || !got.TotalExpenses.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected recomputed 100, got %+v %v", got, err)
	}

	if err := api.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.GetRollup(ctx, "2024-01"); !errors.Is(err, storage.ErrRollupNotFound) {
		t.Fatalf("clear should drop every persisted month, got %v", err)
	}
}
