package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
)

// Index names a secondary key of the transaction store.
type Index string

const (
	IndexTimestamp Index = "timestamp"
	IndexMonth     Index = "month"
	IndexCategory  Index = "category"
	IndexAmount    Index = "amount"
)

var (
	ErrUnknownIndex   = errors.New("unknown index")
	ErrInvalidKey     = errors.New("invalid index key")
	ErrRollupNotFound = errors.New("rollup not found")
)

// ParseIndex maps an index name onto Index.
func ParseIndex(name string) (Index, error) {
	switch idx := Index(strings.ToLower(strings.TrimSpace(name))); idx {
	case IndexTimestamp, IndexMonth, IndexCategory, IndexAmount:
		return idx, nil
	case "monthkey":
		return IndexMonth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownIndex, name)
	}
}

// KeyRange selects index keys. Only matches a single key exactly; otherwise
// Lower is inclusive and Upper is exclusive, and a nil bound is open.
//
// Key types per index: time.Time for timestamp, string for month and
// category, decimal.Decimal (signed) for amount.
type KeyRange struct {
	Only  any
	Lower any
	Upper any
}

// Only selects exactly one key.
func Only(key any) KeyRange {
	return KeyRange{Only: key}
}

// Between selects [lower, upper). Either bound may be nil.
func Between(lower, upper any) KeyRange {
	return KeyRange{Lower: lower, Upper: upper}
}

// Validate checks that every bound has the key type the index expects.
func (r KeyRange) Validate(idx Index) error {
	switch idx {
	case IndexTimestamp, IndexMonth, IndexCategory, IndexAmount:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIndex, idx)
	}
	for _, key := range []any{r.Only, r.Lower, r.Upper} {
		if key == nil {
			continue
		}
		if _, err := compareKey(idx, core.Transaction{}, key); err != nil {
			return err
		}
	}
	return nil
}

// Contains reports whether t's key in idx falls inside the range.
func (r KeyRange) Contains(idx Index, t core.Transaction) (bool, error) {
	if r.Only != nil {
		c, err := compareKey(idx, t, r.Only)
		return c == 0, err
	}
	if r.Lower != nil {
		c, err := compareKey(idx, t, r.Lower)
		if err != nil || c < 0 {
			return false, err
		}
	}
	if r.Upper != nil {
		c, err := compareKey(idx, t, r.Upper)
		if err != nil || c >= 0 {
			return false, err
		}
	}
	return true, nil
}

// compareKey compares t's key in idx against key.
func compareKey(idx Index, t core.Transaction, key any) (int, error) {
	switch idx {
	case IndexTimestamp:
		k, ok := key.(time.Time)
		if !ok {
			return 0, fmt.Errorf("%w: %s wants time.Time, got %T", ErrInvalidKey, idx, key)
		}
		return t.Timestamp.Compare(k), nil
	case IndexMonth:
		k, ok := key.(string)
		if !ok {
			return 0, fmt.Errorf("%w: %s wants string, got %T", ErrInvalidKey, idx, key)
		}
		return strings.Compare(t.Month(), k), nil
	case IndexCategory:
		k, ok := key.(string)
		if !ok {
			return 0, fmt.Errorf("%w: %s wants string, got %T", ErrInvalidKey, idx, key)
		}
		return strings.Compare(t.CategoryOrDefault(), k), nil
	case IndexAmount:
		k, ok := key.(decimal.Decimal)
		if !ok {
			return 0, fmt.Errorf("%w: %s wants decimal.Decimal, got %T", ErrInvalidKey, idx, key)
		}
		return t.Amount.Cmp(k), nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownIndex, idx)
	}
}

// SortNewestFirst orders records by descending timestamp, ties by id.
func SortNewestFirst(records []core.Transaction) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].ID < records[j].ID
	})
}

// Ports for the persistence collaborator.
type (
	// TransactionReader reads normalized transactions. Every method returns
	// records newest first.
	TransactionReader interface {
		GetAll(ctx context.Context) ([]core.Transaction, error)
		// Get returns core.ErrNotFound when id is unknown.
		Get(ctx context.Context, id string) (core.Transaction, error)
		QueryByIndex(ctx context.Context, idx Index, r KeyRange) ([]core.Transaction, error)
	}

	// TransactionWriter persists normalized transactions. Put upserts by id.
	TransactionWriter interface {
		Put(ctx context.Context, t core.Transaction) error
		PutAll(ctx context.Context, ts []core.Transaction) error
		Delete(ctx context.Context, id string) error
		Clear(ctx context.Context) error
		UpdateCategory(ctx context.Context, id, category string) error
		UpdateNotes(ctx context.Context, id, notes string) error
	}

	TransactionStore interface {
		TransactionReader
		TransactionWriter
	}
)

// RollupStore persists computed monthly aggregates so that every process
// sharing the database reads the same rollups.
type RollupStore interface {
	// GetRollup returns ErrRollupNotFound when key has no persisted rollup.
	GetRollup(ctx context.Context, key string) (core.MonthlyAggregate, error)
	PutRollups(ctx context.Context, aggs []core.MonthlyAggregate) error
	// DeleteRollups drops the given months, or every rollup when keys is empty.
	DeleteRollups(ctx context.Context, keys []string) error
}

// ReplacedMonths returns the months that records with the same ids currently
// occupy in r when an upsert of records would move them to another month.
func ReplacedMonths(ctx context.Context, r TransactionReader, records []core.Transaction) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range records {
		prior, err := r.Get(ctx, t.ID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("look up prior month of %s: %w", t.ID, err)
		}
		m := prior.Month()
		if m == t.Month() {
			continue
		}
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}
