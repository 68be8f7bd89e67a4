package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/normalize"
)

var mockNamespace = uuid.MustParse("5b0c0e4e-6a2f-4a55-9d0e-3f2b8f0b7a11")

var (
	mockCategories = []string{"Groceries", "Dining", "Entertainment", "Transport", "Shopping", "Utilities", "Rent", "Income"}
	mockMerchants  = map[string][]string{
		"Groceries":     {"Tesco", "Sainsbury's", "Waitrose", "ASDA", "Lidl", "Aldi"},
		"Dining":        {"Nando's", "Pizza Express", "Wagamama", "Pret A Manger", "Costa Coffee", "Starbucks"},
		"Entertainment": {"Netflix", "Spotify", "Cinema", "Amazon Prime", "Disney+", "Theater"},
		"Transport":     {"TFL", "Uber", "National Rail", "Bolt", "EasyJet", "British Airways"},
		"Shopping":      {"Amazon", "ASOS", "John Lewis", "Apple", "Currys", "Ikea"},
		"Utilities":     {"British Gas", "EDF Energy", "Thames Water", "BT", "Sky", "Virgin Media"},
		"Rent":          {"Rent Payment", "Mortgage"},
		"Income":        {"Salary", "Freelance Payment", "Refund", "Interest"},
	}
	mockStatuses = []core.Status{core.StatusCompleted, core.StatusPending, core.StatusScheduled}
)

// MockConfig drives the mock providers. The same Seed, Count and window
// always produce the same records.
type MockConfig struct {
	Seed  uint64
	Count int
	Now   func() time.Time
}

func (c MockConfig) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c MockConfig) count() int {
	if c.Count <= 0 {
		return 50
	}
	return c.Count
}

// MockTransaction is one generated record before it is shaped for a provider.
type MockTransaction struct {
	ID        string
	Timestamp time.Time
	Merchant  string
	Amount    decimal.Decimal
	Category  string
	Status    core.Status
	Reference string
}

// Generate draws count transactions dated inside [from, to] from rng, newest
// first. It reads no global state.
func Generate(rng *rand.Rand, from, to time.Time, count int) []MockTransaction {
	if to.Before(from) {
		from, to = to, from
	}
	span := to.Sub(from)
	out := make([]MockTransaction, 0, count)
	for i := 0; i < count; i++ {
		category := mockCategories[rng.IntN(len(mockCategories))]
		merchants := mockMerchants[category]
		merchant := merchants[rng.IntN(len(merchants))]
		status := mockStatuses[rng.IntN(len(mockStatuses))]

		var offset time.Duration
		if span > 0 {
			offset = time.Duration(rng.Int64N(int64(span)))
		}
		ts := to.Add(-offset).Truncate(time.Second)

		var amount decimal.Decimal
		if category == "Income" {
			amount = decimal.New(rng.Int64N(200000)+1, -2)
		} else {
			amount = decimal.New(-(rng.Int64N(15000) + 1), -2)
		}

		id := uuid.NewSHA1(mockNamespace, []byte(strconv.FormatUint(rng.Uint64(), 16)))
		out = append(out, MockTransaction{
			ID:        id.String(),
			Timestamp: ts,
			Merchant:  merchant,
			Amount:    amount,
			Category:  category,
			Status:    status,
			Reference: fmt.Sprintf("REF%06d", rng.IntN(1000000)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// windowRand seeds a generator from the provider, the seed and the calendar
// day of the window end, so repeated syncs on one day return the same ids.
func windowRand(name string, seed uint64, to time.Time) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write([]byte(to.UTC().Format(core.DayLayout)))
	return rand.New(rand.NewPCG(seed, h.Sum64()))
}

func accountID(provider string, seed uint64, name string) string {
	return uuid.NewSHA1(mockNamespace, []byte(provider+"|"+strconv.FormatUint(seed, 10)+"|"+name)).String()
}

func gbp(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockStarling emits the Starling feed shape: signed minor units.
type MockStarling struct {
	cfg MockConfig
}

func NewMockStarling(cfg MockConfig) *MockStarling {
	return &MockStarling{cfg: cfg}
}

func (m *MockStarling) Name() string { return "starling" }

func (m *MockStarling) Source() normalize.Source { return normalize.StarlingSource }

func (m *MockStarling) ListAccounts(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []Account{{
		ID:          accountID(m.Name(), m.cfg.Seed, "current"),
		Name:        "Starling Current Account",
		Type:        AccountBank,
		Provider:    m.Name(),
		Balance:     gbp("1458.67"),
		Currency:    "GBP",
		LastUpdated: m.cfg.now(),
	}}, nil
}

func (m *MockStarling) ListTransactions(ctx context.Context, from, to time.Time) ([]normalize.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	generated := Generate(windowRand(m.Name(), m.cfg.Seed, to), from, to, m.cfg.count())
	out := make([]normalize.Raw, len(generated))
	for i, g := range generated {
		out[i] = normalize.Raw{
			"feedItemUid":      g.ID,
			"transactionTime":  g.Timestamp.Format(time.RFC3339),
			"minorUnits":       g.Amount.Shift(2).String(),
			"counterPartyName": g.Merchant,
			"reference":        "Payment to " + g.Merchant,
			"spendingCategory": g.Category,
			"accountName":      "Starling",
			"status":           string(g.Status),
		}
	}
	return out, nil
}

// MockAmex emits the Amex card API shape: charges are positive.
type MockAmex struct {
	cfg MockConfig
}

func NewMockAmex(cfg MockConfig) *MockAmex {
	return &MockAmex{cfg: cfg}
}

// AmexAPISource reads the Amex card transaction feed.
var AmexAPISource = normalize.Source{
	Kind: normalize.KindProvider,
	Name: "amex-api",
	Fields: normalize.Fields{
		ID: "transactionId", Date: "date", Description: "description", Merchant: "merchantName",
		Amount: "amount", Category: "category", Account: "accountName", Status: "status",
		Reference: "reference",
	},
	ExpensesPositive: true,
	DefaultAccount:   "Amex",
	Provider:         "amex",
}

func (m *MockAmex) Name() string { return "amex" }

func (m *MockAmex) Source() normalize.Source { return AmexAPISource }

func (m *MockAmex) ListAccounts(ctx context.Context) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := m.cfg.now()
	limit := gbp("5000")
	due := now.AddDate(0, 0, 15)
	return []Account{{
		ID:          accountID(m.Name(), m.cfg.Seed, "gold"),
		Name:        "American Express Gold",
		Type:        AccountCredit,
		Provider:    m.Name(),
		Balance:     gbp("-678.21"),
		Limit:       &limit,
		Currency:    "GBP",
		DueDate:     &due,
		LastUpdated: now,
	}}, nil
}

func (m *MockAmex) ListTransactions(ctx context.Context, from, to time.Time) ([]normalize.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	generated := Generate(windowRand(m.Name(), m.cfg.Seed, to), from, to, m.cfg.count())
	out := make([]normalize.Raw, len(generated))
	for i, g := range generated {
		out[i] = normalize.Raw{
			"transactionId": g.ID,
			"date":          g.Timestamp.Format(time.RFC3339),
			"amount":        g.Amount.Neg().String(),
			"description":   "Payment to " + g.Merchant,
			"merchantName":  g.Merchant,
			"category":      g.Category,
			"accountName":   "Amex",
			"status":        string(g.Status),
			"reference":     g.Reference,
		}
	}
	return out, nil
}
