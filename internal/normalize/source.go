// Package normalize converts source-specific raw transaction shapes into
// core.Transaction records with one sign convention and one month bucket rule.
package normalize

import (
	"fmt"
	"sort"
	"strings"

	"finboard/internal/core"
)

// Raw is a source record keyed by column or field name.
type Raw map[string]string

// Kind identifies where a raw record came from.
type Kind string

const (
	KindMock     Kind = "mock"
	KindCSV      Kind = "csv"
	KindStore    Kind = "store"
	KindProvider Kind = "provider"
)

// DateOrder resolves ambiguous numeric dates such as 03/04/2024.
type DateOrder string

const (
	// DateOrderNone rejects ambiguous dates.
	DateOrderNone DateOrder = ""
	DateOrderDMY  DateOrder = "DMY"
	DateOrderMDY  DateOrder = "MDY"
)

// Fields maps the normalized fields onto the source's column names.
// Empty names mean the source does not carry that field.
type Fields struct {
	ID          string `koanf:"id" json:"id"`
	Date        string `koanf:"date" json:"date"`
	Description string `koanf:"description" json:"description"`
	Merchant    string `koanf:"merchant" json:"merchant"`
	Amount      string `koanf:"amount" json:"amount"`
	Category    string `koanf:"category" json:"category"`
	Account     string `koanf:"account" json:"account"`
	Status      string `koanf:"status" json:"status"`
	Reference   string `koanf:"reference" json:"reference"`
	Notes       string `koanf:"notes" json:"notes"`
	Provider    string `koanf:"provider" json:"provider"`
	Origin      string `koanf:"origin" json:"origin"`
}

// Source describes how to read one family of raw records.
type Source struct {
	Kind   Kind   `koanf:"kind" json:"kind"`
	Name   string `koanf:"name" json:"name"`
	Fields Fields `koanf:"fields" json:"fields"`
	// ExpensesPositive marks card-issuer style sources that report charges as
	// positive magnitudes; their amounts are negated.
	ExpensesPositive bool `koanf:"expenses_positive" json:"expenses_positive"`
	// MinorUnits marks sources that report amounts in pennies/cents.
	MinorUnits     bool      `koanf:"minor_units" json:"minor_units"`
	DateOrder      DateOrder `koanf:"date_order" json:"date_order"`
	DefaultAccount string    `koanf:"default_account" json:"default_account"`
	Provider       string    `koanf:"provider" json:"provider"`
}

// Validate checks that the source can locate the required fields.
func (s Source) Validate() error {
	var missing []string
	if s.Name == "" {
		missing = append(missing, "name")
	}
	if s.Fields.Date == "" {
		missing = append(missing, "date column")
	}
	if s.Fields.Amount == "" {
		missing = append(missing, "amount column")
	}
	if s.Kind == KindCSV && s.Fields.Description == "" {
		missing = append(missing, "description column")
	}
	switch s.DateOrder {
	case DateOrderNone, DateOrderDMY, DateOrderMDY:
	default:
		return fmt.Errorf("source %q: invalid date order %q", s.Name, s.DateOrder)
	}
	if len(missing) > 0 {
		return fmt.Errorf("source %q: missing %s", s.Name, strings.Join(missing, ", "))
	}
	return nil
}

// Built-in sources.
var (
	// MockSource reads records produced by the mock data generator.
	MockSource = Source{
		Kind: KindMock,
		Name: "mock",
		Fields: Fields{
			ID: "id", Date: "date", Description: "description", Merchant: "merchant",
			Amount: "amount", Category: "category", Account: "account", Status: "status",
			Reference: "reference",
		},
	}

	// StoreSource reads records in the persisted shape produced by ToRaw.
	StoreSource = Source{
		Kind: KindStore,
		Name: "store",
		Fields: Fields{
			ID: "id", Date: "timestamp", Description: "description", Merchant: "merchant",
			Amount: "amount", Category: "category", Account: "account", Status: "status",
			Reference: "reference", Notes: "notes", Provider: "provider", Origin: "source",
		},
	}

	// StarlingSource reads the Starling feed shape: signed minor units.
	StarlingSource = Source{
		Kind: KindProvider,
		Name: "starling",
		Fields: Fields{
			ID: "feedItemUid", Date: "transactionTime", Description: "reference",
			Merchant: "counterPartyName", Amount: "minorUnits", Category: "spendingCategory",
			Account: "accountName", Status: "status", Reference: "reference",
		},
		MinorUnits:     true,
		DefaultAccount: "Starling",
		Provider:       "starling",
	}

	// AmexSource reads Amex statements where charges are positive and dates are MM/DD/YYYY.
	AmexSource = Source{
		Kind: KindCSV,
		Name: "amex",
		Fields: Fields{
			ID: "Reference", Date: "Date", Description: "Description", Amount: "Amount",
			Category: "Category", Reference: "Reference",
		},
		ExpensesPositive: true,
		DateOrder:        DateOrderMDY,
		DefaultAccount:   "Amex",
		Provider:         "amex",
	}

	// GenericCSVSource reads a plain bank export with DD/MM/YYYY dates.
	GenericCSVSource = Source{
		Kind: KindCSV,
		Name: "generic",
		Fields: Fields{
			Date: "Date", Description: "Description", Amount: "Amount", Category: "Category",
		},
		DateOrder:      DateOrderDMY,
		DefaultAccount: core.DefaultAccount,
	}
)

// Registry holds the sources available by name.
type Registry struct {
	sources map[string]Source
}

// NewRegistry returns a registry seeded with the built-in sources.
func NewRegistry() *Registry {
	r := &Registry{sources: make(map[string]Source)}
	for _, s := range []Source{MockSource, StoreSource, StarlingSource, AmexSource, GenericCSVSource} {
		r.sources[s.Name] = s
	}
	return r
}

// Register adds or replaces a source after validating it.
func (r *Registry) Register(s Source) error {
	if err := s.Validate(); err != nil {
		return err
	}
	r.sources[strings.ToLower(s.Name)] = s
	return nil
}

// Lookup returns the named source.
func (r *Registry) Lookup(name string) (Source, error) {
	s, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", core.ErrUnknownSource, name)
	}
	return s, nil
}

// Names lists registered source names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sources))
	for n := range r.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
