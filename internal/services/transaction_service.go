package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/amqp"
	"finboard/internal/analytics"
	"finboard/internal/cache"
	"finboard/internal/core"
	"finboard/internal/export"
	"finboard/internal/importer"
	"finboard/internal/log"
	"finboard/internal/normalize"
	"finboard/internal/providers"
	"finboard/internal/query"
	"finboard/internal/storage"
)

const (
	// DashboardMonths is the length of the dashboard's monthly series.
	DashboardMonths = 12
	// DefaultDays is the daily series length when none is requested.
	DefaultDays = 7
	// DefaultSyncDays is how far back a provider sync looks by default.
	DefaultSyncDays = 30
)

var (
	ErrNoProviders         = errors.New("no providers configured")
	ErrSheetsNotConfigured = errors.New("google sheets export not configured")
)

// Notifier announces which months changed so rollups can be rebuilt elsewhere.
type Notifier interface {
	PublishTransactionsChanged(ctx context.Context, months []string, reason string) error
}

// SheetsExporter pushes records to a spreadsheet and returns the rows written.
type SheetsExporter interface {
	Export(ctx context.Context, records []core.Transaction) (int, error)
}

// Options carries the optional collaborators of a TransactionService.
// RollupStore persists computed months for other processes sharing the store.
type Options struct {
	Location    *time.Location
	Now         func() time.Time
	Sources     *normalize.Registry
	Providers   *providers.Aggregator
	Notifier    Notifier
	Rollups     *cache.RollupCache
	RollupStore storage.RollupStore
	Sheets      SheetsExporter
	Logger      *log.Logger
}

// TransactionService orchestrates transaction operations across the store,
// the rollup cache and the change notifier.
type TransactionService struct {
	store      storage.TransactionStore
	normalizer *normalize.Normalizer
	importer   *importer.Importer
	sources    *normalize.Registry
	providers  *providers.Aggregator
	notifier   Notifier
	rollups    *cache.RollupCache
	persisted  storage.RollupStore
	sheets     SheetsExporter
	loc        *time.Location
	now        func() time.Time
	logger     *log.Logger
}

func NewTransactionService(store storage.TransactionStore, opts Options) *TransactionService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sources == nil {
		opts.Sources = normalize.NewRegistry()
	}
	if opts.Rollups == nil {
		opts.Rollups = cache.NewRollupCache(2*DashboardMonths, time.Hour)
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	n := normalize.New(opts.Location)
	return &TransactionService{
		store:      store,
		normalizer: n,
		importer:   importer.New(store, n, opts.Logger),
		sources:    opts.Sources,
		providers:  opts.Providers,
		notifier:   opts.Notifier,
		rollups:    opts.Rollups,
		persisted:  opts.RollupStore,
		sheets:     opts.Sheets,
		loc:        opts.Location,
		now:        opts.Now,
		logger:     opts.Logger.WithComponent(log.ComponentService),
	}
}

// Location is the reporting time zone.
func (s *TransactionService) Location() *time.Location {
	return s.loc
}

// Now is the current time in the reporting time zone.
func (s *TransactionService) Now() time.Time {
	return s.now().In(s.loc)
}

// Sources lists the import source names.
func (s *TransactionService) Sources() []string {
	return s.sources.Names()
}

// Import reads a delimited export in the named source's format and stores
// every row that normalizes. Rejected rows are reported in the result.
func (s *TransactionService) Import(ctx context.Context, r io.Reader, sourceName string) (importer.Result, error) {
	src, err := s.sources.Lookup(sourceName)
	if err != nil {
		return importer.Result{}, err
	}
	res, err := s.importer.Import(ctx, r, src)
	if err != nil {
		return res, err
	}
	if res.Imported > 0 {
		s.changed(ctx, res.Months, amqp.ReasonImport)
	}
	return res, nil
}

// SyncResult summarizes one provider sync.
type SyncResult struct {
	From     time.Time
	To       time.Time
	Stored   int
	Rejected []core.RowError
	Months   []string
}

// SyncProviders pulls the last days of transactions from every configured
// provider and upserts them.
func (s *TransactionService) SyncProviders(ctx context.Context, days int) (SyncResult, error) {
	if s.providers == nil {
		return SyncResult{}, ErrNoProviders
	}
	if days <= 0 {
		days = DefaultSyncDays
	}
	to := s.Now()
	from := to.AddDate(0, 0, -days)

	records, rejected, err := s.providers.Transactions(ctx, from, to)
	if err != nil {
		return SyncResult{}, fmt.Errorf("sync providers: %w", err)
	}
	replaced, err := storage.ReplacedMonths(ctx, s.store, records)
	if err != nil {
		return SyncResult{}, err
	}
	if err := s.store.PutAll(ctx, records); err != nil {
		return SyncResult{}, fmt.Errorf("store synced transactions: %w", err)
	}

	res := SyncResult{
		From:     from,
		To:       to,
		Stored:   len(records),
		Rejected: rejected,
		Months:   importer.MergeMonths(importer.MonthKeys(records), replaced),
	}
	s.logger.InfoContext(ctx, "Providers synced",
		log.FieldOperation, log.OpSync,
		log.FieldCount, res.Stored,
		log.FieldRejected, len(rejected),
		log.FieldMonthKeys, res.Months)
	if res.Stored > 0 {
		s.changed(ctx, res.Months, amqp.ReasonSync)
	}
	return res, nil
}

// Accounts lists the accounts of every configured provider.
func (s *TransactionService) Accounts(ctx context.Context) ([]providers.Account, error) {
	if s.providers == nil {
		return nil, ErrNoProviders
	}
	return s.providers.Accounts(ctx)
}

// List returns the stored records matching spec, newest first.
func (s *TransactionService) List(ctx context.Context, spec query.FilterSpec) ([]core.Transaction, error) {
	return query.Select(ctx, s.store, spec, s.Now())
}

func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.Get(ctx, id)
}

// UpdateCategory recategorizes one record and returns it as stored.
func (s *TransactionService) UpdateCategory(ctx context.Context, id, category string) (core.Transaction, error) {
	before, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := s.store.UpdateCategory(ctx, id, category); err != nil {
		return core.Transaction{}, fmt.Errorf("update category: %w", err)
	}
	s.changed(ctx, []string{before.Month()}, amqp.ReasonUpdate)
	return s.store.Get(ctx, id)
}

// UpdateNotes replaces a record's notes. Notes do not feed any rollup.
func (s *TransactionService) UpdateNotes(ctx context.Context, id, notes string) (core.Transaction, error) {
	if err := s.store.UpdateNotes(ctx, id, notes); err != nil {
		return core.Transaction{}, fmt.Errorf("update notes: %w", err)
	}
	return s.store.Get(ctx, id)
}

func (s *TransactionService) Delete(ctx context.Context, id string) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "Transaction deleted", log.NewFields().WithTransaction(t).WithOperation(log.OpDelete).ToSlice()...)
	s.changed(ctx, []string{t.Month()}, amqp.ReasonDelete)
	return nil
}

// Clear removes every stored record.
func (s *TransactionService) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	s.logger.WarnContext(ctx, "All transactions cleared", log.FieldOperation, log.OpClear)
	s.changed(ctx, nil, amqp.ReasonClear)
	return nil
}

// Dashboard bundles the views rendered on the overview page.
type Dashboard struct {
	Months     []core.MonthlyAggregate
	Categories []core.CategoryTotal
	Daily      []core.DailyPoint
	Totals     core.Totals
}

// Dashboard computes every overview from one snapshot of the store. The
// views only read the snapshot, so they run concurrently.
func (s *TransactionService) Dashboard(ctx context.Context, days int) (Dashboard, error) {
	if days <= 0 {
		days = DefaultDays
	}
	gen := s.rollups.Generation()
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return Dashboard{}, fmt.Errorf("load transactions: %w", err)
	}
	now := s.Now()

	var d Dashboard
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.Months = analytics.LastMonths(records, now, DashboardMonths)
		return nil
	})
	g.Go(func() error {
		d.Categories = analytics.AggregateByCategory(records)
		return nil
	})
	g.Go(func() error {
		from, to := analytics.LastDays(now, days)
		d.Daily = analytics.AggregateByDay(records, from, to)
		return nil
	})
	g.Go(func() error {
		d.Totals = analytics.Summarize(records)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	s.rollups.StoreAt(gen, d.Months...)
	return d, nil
}

// MonthlySeries returns the last n months, oldest first, including empty months.
func (s *TransactionService) MonthlySeries(ctx context.Context, n int) ([]core.MonthlyAggregate, error) {
	if n <= 0 {
		n = DashboardMonths
	}
	gen := s.rollups.Generation()
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	months := analytics.LastMonths(records, s.Now(), n)
	s.rollups.StoreAt(gen, months...)
	return months, nil
}

// Categories totals expenses per category over the records matching spec.
func (s *TransactionService) Categories(ctx context.Context, spec query.FilterSpec) ([]core.CategoryTotal, error) {
	records, err := s.List(ctx, spec)
	if err != nil {
		return nil, err
	}
	return analytics.AggregateByCategory(records), nil
}

// DailySeries returns the dense expense series of the last days days.
func (s *TransactionService) DailySeries(ctx context.Context, days int) ([]core.DailyPoint, error) {
	if days <= 0 {
		days = DefaultDays
	}
	from, to := analytics.LastDays(s.Now(), days)
	records, err := s.store.QueryByIndex(ctx, storage.IndexTimestamp, storage.Between(from, to.AddDate(0, 0, 1)))
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	return analytics.AggregateByDay(records, from, to), nil
}

// Month returns one month's aggregate. It reads the rollup cache first, then
// the persisted rollups, and recomputes from the store on a miss.
func (s *TransactionService) Month(ctx context.Context, key string) (core.MonthlyAggregate, error) {
	if _, err := core.ParseMonthKey(key, s.loc); err != nil {
		return core.MonthlyAggregate{}, fmt.Errorf("%w: %q", core.ErrInvalidMonthKey, key)
	}
	if agg, ok := s.rollups.Month(key); ok {
		return agg, nil
	}
	if s.persisted != nil {
		gen := s.rollups.Generation()
		agg, err := s.persisted.GetRollup(ctx, key)
		switch {
		case err == nil:
			s.rollups.StoreAt(gen, agg)
			return agg, nil
		case !errors.Is(err, storage.ErrRollupNotFound):
			s.logger.WarnContext(ctx, "Failed to read persisted rollup", log.FieldError, err, log.FieldMonthKeys, []string{key})
		}
	}
	aggs, stored, err := s.computeMonths(ctx, []string{key})
	if err != nil {
		return core.MonthlyAggregate{}, err
	}
	if stored {
		if err := s.persist(ctx, aggs); err != nil {
			s.logger.WarnContext(ctx, "Failed to persist rollup", log.FieldError, err, log.FieldMonthKeys, []string{key})
		}
	}
	return aggs[0], nil
}

// RefreshMonths recomputes the given months from the store, caches them and
// persists them when a rollup store is configured.
func (s *TransactionService) RefreshMonths(ctx context.Context, keys []string) ([]core.MonthlyAggregate, error) {
	out, stored, err := s.computeMonths(ctx, keys)
	if err != nil || !stored {
		return out, err
	}
	if err := s.persist(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// computeMonths aggregates keys from the store and caches the result unless
// an invalidation happened meanwhile. stored reports whether it was cached.
func (s *TransactionService) computeMonths(ctx context.Context, keys []string) (out []core.MonthlyAggregate, stored bool, err error) {
	gen := s.rollups.Generation()
	out = make([]core.MonthlyAggregate, 0, len(keys))
	for _, key := range keys {
		records, err := s.store.QueryByIndex(ctx, storage.IndexMonth, storage.Only(key))
		if err != nil {
			return nil, false, fmt.Errorf("load month %s: %w", key, err)
		}
		agg, ok := analytics.AggregateByMonth(records)[key]
		if !ok {
			agg = analytics.EmptyMonth(key)
		}
		out = append(out, agg)
	}
	return out, s.rollups.StoreAt(gen, out...), nil
}

// RefreshAll recomputes every month present in the store.
func (s *TransactionService) RefreshAll(ctx context.Context) ([]core.MonthlyAggregate, error) {
	gen := s.rollups.Generation()
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	months := analytics.MonthlySeries(records)
	if !s.rollups.ReplaceAt(gen, months...) {
		return months, nil
	}
	if err := s.persist(ctx, months); err != nil {
		return nil, err
	}
	return months, nil
}

func (s *TransactionService) persist(ctx context.Context, aggs []core.MonthlyAggregate) error {
	if s.persisted == nil {
		return nil
	}
	if err := s.persisted.PutRollups(ctx, aggs); err != nil {
		return fmt.Errorf("persist rollups: %w", err)
	}
	return nil
}

// CompareMonths compares the expenses of the older month with the newer one.
func (s *TransactionService) CompareMonths(ctx context.Context, older, newer string) (core.ComparisonResult, error) {
	a, err := s.Month(ctx, older)
	if err != nil {
		return core.ComparisonResult{}, err
	}
	b, err := s.Month(ctx, newer)
	if err != nil {
		return core.ComparisonResult{}, err
	}
	return analytics.Compare(a, b), nil
}

// Export writes the records matching spec as CSV and returns how many were written.
func (s *TransactionService) Export(ctx context.Context, w io.Writer, spec query.FilterSpec) (int, error) {
	records, err := s.List(ctx, spec)
	if err != nil {
		return 0, err
	}
	if err := export.WriteCSV(w, records); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	s.logger.InfoContext(ctx, "Transactions exported", log.FieldOperation, log.OpExport, log.FieldCount, len(records))
	return len(records), nil
}

// ExportSheets appends the records matching spec to the configured spreadsheet.
func (s *TransactionService) ExportSheets(ctx context.Context, spec query.FilterSpec) (int, error) {
	if s.sheets == nil {
		return 0, ErrSheetsNotConfigured
	}
	records, err := s.List(ctx, spec)
	if err != nil {
		return 0, err
	}
	return s.sheets.Export(ctx, records)
}

// ExportFilename names a CSV export produced now.
func (s *TransactionService) ExportFilename() string {
	return export.Filename(s.Now().Format(core.DayLayout))
}

// changed drops the affected cached and persisted months and tells the
// notifier. Failures are logged, the local write already succeeded.
func (s *TransactionService) changed(ctx context.Context, months []string, reason string) {
	s.rollups.Invalidate(months...)
	if s.persisted != nil {
		if err := s.persisted.DeleteRollups(ctx, months); err != nil {
			s.logger.ErrorContext(ctx, "Failed to drop persisted rollups",
				log.FieldError, err,
				log.FieldMonthKeys, months)
		}
	}
	if s.notifier == nil {
		s.logger.DebugContext(ctx, "No notifier configured, skipping change event", "reason", reason)
		return
	}
	if err := s.notifier.PublishTransactionsChanged(ctx, months, reason); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish change event",
			log.FieldError, err,
			log.FieldMonthKeys, months,
			"reason", reason)
	}
}
