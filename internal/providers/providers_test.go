package providers

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/normalize"
)

var (
	clockNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	from     = clockNow.AddDate(0, 0, -30)
)

func testConfig(seed uint64) MockConfig {
	return MockConfig{Seed: seed, Count: 40, Now: func() time.Time { return clockNow }}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(rand.New(rand.NewPCG(1, 2)), from, clockNow, 25)
	b := Generate(rand.New(rand.NewPCG(1, 2)), from, clockNow, 25)
	c := Generate(rand.New(rand.NewPCG(9, 9)), from, clockNow, 25)
	if len(a) != 25 {
		t.Fatalf("expected 25 records, got %d", len(a))
	}
	same := true
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Amount.Equal(b[i].Amount) || !a[i].Timestamp.Equal(b[i].Timestamp) {
			t.Fatalf("same seed must reproduce record %d", i)
		}
		if a[i].ID != c[i].ID {
			same = false
		}
	}
	if same {
		t.Fatalf("different seeds should differ")
	}
}

func TestGenerateRespectsWindowAndSigns(t *testing.T) {
	got := Generate(rand.New(rand.NewPCG(3, 4)), from, clockNow, 200)
	for i, g := range got {
		if g.Timestamp.Before(from.Add(-time.Second)) || g.Timestamp.After(clockNow) {
			t.Fatalf("record %d outside window: %v", i, g.Timestamp)
		}
		if g.Category == "Income" && !g.Amount.IsPositive() {
			t.Fatalf("income must be positive: %s", g.Amount)
		}
		if g.Category != "Income" && !g.Amount.IsNegative() {
			t.Fatalf("expenses must be negative: %s", g.Amount)
		}
		if i > 0 && g.Timestamp.After(got[i-1].Timestamp) {
			t.Fatalf("records should be newest first")
		}
	}
}

func TestRegistryFromConfig(t *testing.T) {
	r, err := NewRegistry([]string{"Starling", " amex ", "starling", ""}, testConfig(1))
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "starling" || names[1] != "amex" {
		t.Fatalf("unexpected providers %v", names)
	}
	if _, err := r.Get("AMEX"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := NewRegistry([]string{"monzo"}, testConfig(1)); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := r.Get("monzo"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestAggregatorNormalizesEveryProvider(t *testing.T) {
	r, _ := NewRegistry([]string{"starling", "amex"}, testConfig(42))
	agg := NewAggregator(r, normalize.New(time.UTC), nil)

	records, rejects, err := agg.Transactions(context.Background(), from, clockNow)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(rejects) != 0 {
		t.Fatalf("mock data should normalize cleanly: %v", rejects)
	}
	if len(records) != 80 {
		t.Fatalf("expected 80 records, got %d", len(records))
	}

	byProvider := map[string]int{}
	for i, rec := range records {
		byProvider[rec.Provider]++
		if rec.Category == "Income" && !rec.IsIncome() {
			t.Fatalf("income record has wrong sign after normalization: %+v", rec)
		}
		if rec.Category != "Income" && !rec.IsExpense() {
			t.Fatalf("expense record has wrong sign after normalization: %+v", rec)
		}
		if i > 0 && rec.Timestamp.After(records[i-1].Timestamp) {
			t.Fatalf("merged records should be newest first")
		}
	}
	if byProvider["starling"] != 40 || byProvider["amex"] != 40 {
		t.Fatalf("unexpected provider split %v", byProvider)
	}

	again, _, _ := agg.Transactions(context.Background(), from, clockNow)
	for i := range records {
		if !records[i].Equal(again[i]) {
			t.Fatalf("same seed and window should reproduce the sync")
		}
	}
}

func TestAggregatorAccounts(t *testing.T) {
	r, _ := NewRegistry([]string{"starling", "amex"}, testConfig(7))
	accounts, err := NewAggregator(r, normalize.New(time.UTC), nil).Accounts(context.Background())
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0].Type != AccountBank || accounts[1].Type != AccountCredit {
		t.Fatalf("unexpected accounts %+v", accounts)
	}
	if !accounts[1].Balance.IsNegative() || accounts[1].Limit == nil || !accounts[1].Limit.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("credit account should carry a negative balance and a limit: %+v", accounts[1])
	}
	if accounts[0].ID == accounts[1].ID {
		t.Fatalf("account ids should differ")
	}
}

type failingProvider struct{ *MockStarling }

func (failingProvider) Name() string { return "broken" }

func (failingProvider) ListTransactions(context.Context, time.Time, time.Time) ([]normalize.Raw, error) {
	return nil, errors.New("upstream down")
}

func TestAggregatorFailsWhenAProviderFails(t *testing.T) {
	r := NewRegistryOf(NewMockAmex(testConfig(1)), failingProvider{NewMockStarling(testConfig(1))})
	_, _, err := NewAggregator(r, normalize.New(time.UTC), nil).Transactions(context.Background(), from, clockNow)
	if err == nil {
		t.Fatalf("expected provider error")
	}
}

func TestAggregatorTagsRejectedRows(t *testing.T) {
	bad := stubProvider{rows: []normalize.Raw{
		{"transactionId": "x1", "date": "2024-03-01T10:00:00Z", "amount": "12.00", "merchantName": "Shop"},
		{"transactionId": "x2", "date": "yesterday", "amount": "5.00"},
	}}
	records, rejects, err := NewAggregator(NewRegistryOf(bad), normalize.New(time.UTC), nil).Transactions(context.Background(), from, clockNow)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(records) != 1 || len(rejects) != 1 || rejects[0].Row != 2 {
		t.Fatalf("unexpected split: %d records, rejects %v", len(records), rejects)
	}
	if !errors.Is(rejects[0], core.ErrInvalidTimestamp) {
		t.Fatalf("reject should wrap the validation reason: %v", rejects[0])
	}
}

type stubProvider struct {
	rows []normalize.Raw
}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Source() normalize.Source { return AmexAPISource }

func (stubProvider) ListAccounts(context.Context) ([]Account, error) { return nil, nil }

func (s stubProvider) ListTransactions(context.Context, time.Time, time.Time) ([]normalize.Raw, error) {
	return s.rows, nil
}
