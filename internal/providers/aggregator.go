package providers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"finboard/internal/core"
	"finboard/internal/log"
	"finboard/internal/normalize"
	"finboard/internal/storage"
)

// Aggregator fans requests out to every registered provider concurrently and
// merges the answers. Any provider failure fails the whole call.
type Aggregator struct {
	registry   *Registry
	normalizer *normalize.Normalizer
	logger     *log.Logger
}

func NewAggregator(r *Registry, n *normalize.Normalizer, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.Discard()
	}
	return &Aggregator{registry: r, normalizer: n, logger: logger.WithComponent(log.ComponentProviders)}
}

// Accounts lists accounts from all providers in registry order.
func (a *Aggregator) Accounts(ctx context.Context) ([]Account, error) {
	ps := a.registry.Providers()
	results := make([][]Account, len(ps))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range ps {
		g.Go(func() error {
			accounts, err := p.ListAccounts(ctx)
			if err != nil {
				return fmt.Errorf("list %s accounts: %w", p.Name(), err)
			}
			results[i] = accounts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Account
	for _, accounts := range results {
		out = append(out, accounts...)
	}
	return out, nil
}

// Transactions fetches [from, to] from every provider, normalizes each batch
// with its provider's source and returns the merged records newest first.
// Rows that fail normalization are returned as row errors tagged with the
// provider name.
func (a *Aggregator) Transactions(ctx context.Context, from, to time.Time) ([]core.Transaction, []core.RowError, error) {
	ps := a.registry.Providers()
	records := make([][]core.Transaction, len(ps))
	rejects := make([][]core.RowError, len(ps))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range ps {
		g.Go(func() error {
			raw, err := p.ListTransactions(ctx, from, to)
			if err != nil {
				return fmt.Errorf("list %s transactions: %w", p.Name(), err)
			}
			good, bad := a.normalizer.NormalizeBatch(raw, p.Source())
			for j := range bad {
				bad[j].Err = fmt.Errorf("%s: %w", p.Name(), bad[j].Err)
			}
			records[i], rejects[i] = good, bad
			a.logger.DebugContext(ctx, "Provider transactions fetched",
				log.FieldProvider, p.Name(), log.FieldCount, len(good), log.FieldRejected, len(bad))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		out  []core.Transaction
		errs []core.RowError
	)
	for i := range ps {
		out = append(out, records[i]...)
		errs = append(errs, rejects[i]...)
	}
	storage.SortNewestFirst(out)
	return out, errs, nil
}
