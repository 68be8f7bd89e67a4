// Package providers fetches accounts and raw transactions from bank and card
// providers behind one interface and merges them into normalized records.
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/normalize"
)

var ErrUnknownProvider = errors.New("unknown provider")

type AccountType string

const (
	AccountBank   AccountType = "bank"
	AccountCredit AccountType = "credit"
)

// Account is a provider account. Credit balances are negative (money owed).
type Account struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Type        AccountType      `json:"type"`
	Provider    string           `json:"provider"`
	Balance     decimal.Decimal  `json:"balance"`
	Limit       *decimal.Decimal `json:"limit,omitempty"`
	Currency    string           `json:"currency"`
	DueDate     *time.Time       `json:"dueDate,omitempty"`
	LastUpdated time.Time        `json:"lastUpdated"`
}

// Provider is a source of accounts and raw transactions. Raw records come in
// the provider's own wire shape, described by Source.
type Provider interface {
	Name() string
	Source() normalize.Source
	ListAccounts(ctx context.Context) ([]Account, error)
	ListTransactions(ctx context.Context, from, to time.Time) ([]normalize.Raw, error)
}

// Registry holds the providers selected by configuration, in order.
type Registry struct {
	providers []Provider
}

// NewRegistry builds providers by name. Names are matched case-insensitively
// and duplicates are ignored.
func NewRegistry(names []string, cfg MockConfig) (*Registry, error) {
	r := &Registry{}
	seen := make(map[string]bool)
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "starling":
			r.providers = append(r.providers, NewMockStarling(cfg))
		case "amex":
			r.providers = append(r.providers, NewMockAmex(cfg))
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
		}
	}
	return r, nil
}

// NewRegistryOf wraps already constructed providers.
func NewRegistryOf(ps ...Provider) *Registry {
	return &Registry{providers: ps}
}

func (r *Registry) Providers() []Provider {
	return append([]Provider(nil), r.providers...)
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	for _, p := range r.providers {
		if strings.EqualFold(p.Name(), name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.providers))
	for i, p := range r.providers {
		out[i] = p.Name()
	}
	return out
}
