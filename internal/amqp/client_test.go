package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"finboard/internal/log"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 1 * time.Second},
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{15, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			if got := exponentialBackoff(tt.attempt); got != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"EOF", errors.New("unexpected EOF"), true},
		{"broken pipe", errors.New("write: broken pipe"), true},
		{"closed network connection", errors.New("use of closed network connection"), true},
		{"other error", errors.New("some other error"), false},
		{"validation error", errors.New("invalid input"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	client := &Client{exchangeName: "finboard", queueName: "rollups", logger: log.Discard(), now: time.Now}

	if client.isCircuitOpen() {
		t.Fatal("circuit breaker should be closed initially")
	}

	for i := 0; i < maxFailures; i++ {
		client.recordFailure()
	}
	if !client.isCircuitOpen() {
		t.Fatal("circuit breaker should open after max failures")
	}

	client.lastFailure.Store(time.Now().Add(-openTimeout - time.Second).UnixNano())
	if client.isCircuitOpen() {
		t.Fatal("circuit should half-open after the timeout")
	}
	if atomic.LoadInt32(&client.state) != StateHalfOpen {
		t.Fatal("state should be half-open")
	}

	client.recordFailure()
	if atomic.LoadInt32(&client.state) != StateOpen {
		t.Fatal("a failure while half-open should reopen the circuit")
	}

	client.recordSuccess()
	if client.isCircuitOpen() || atomic.LoadInt64(&client.failureCount) != 0 {
		t.Fatal("success should close the circuit and reset failures")
	}
}

func TestPublishShortCircuits(t *testing.T) {
	client := &Client{exchangeName: "finboard", queueName: "rollups", logger: log.Discard(), now: time.Now}

	atomic.StoreInt32(&client.state, StateOpen)
	client.lastFailure.Store(time.Now().UnixNano())
	err := client.PublishTransactionsChanged(context.Background(), []string{"2024-01"}, ReasonImport)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	client.recordSuccess()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.PublishTransactionsChanged(ctx, nil, ReasonClear); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewTransactionsChanged(t *testing.T) {
	at := time.Date(2024, 2, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	msg := NewTransactionsChanged([]string{"2024-02", "", "2024-01", "2024-02"}, ReasonImport, at)
	if strings.Join(msg.MonthKeys, ",") != "2024-01,2024-02" {
		t.Fatalf("months should be sorted and deduplicated: %v", msg.MonthKeys)
	}
	if msg.OccurredAt.Location() != time.UTC || !msg.OccurredAt.Equal(at) {
		t.Fatalf("occurred_at should be the same instant in UTC: %v", msg.OccurredAt)
	}
	if msg.AllMonths() {
		t.Fatal("message names months")
	}
	if !NewTransactionsChanged(nil, ReasonClear, at).AllMonths() {
		t.Fatal("no months means all months")
	}
}

func TestTransactionsChangedFromJSON(t *testing.T) {
	msg, err := TransactionsChangedFromJSON([]byte(`{"month_keys":["2024-03"],"reason":"sync","occurred_at":"2024-03-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Reason != ReasonSync || len(msg.MonthKeys) != 1 || msg.MonthKeys[0] != "2024-03" {
		t.Fatalf("unexpected message %+v", msg)
	}

	for _, body := range []string{`{"month_keys": 3}`, `{"month_keys":[]}`, `not json`} {
		if _, err := TransactionsChangedFromJSON([]byte(body)); err == nil {
			t.Errorf("expected error for %s", body)
		}
	}
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error { f.acked = true; return nil }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func TestSettle(t *testing.T) {
	good := []byte(`{"month_keys":["2024-01"],"reason":"import"}`)
	ok := func(context.Context, *TransactionsChanged) error { return nil }
	fail := func(context.Context, *TransactionsChanged) error { return errors.New("store down") }

	tests := []struct {
		name     string
		body     []byte
		handler  Handler
		acked    bool
		requeued bool
	}{
		{"handled", good, ok, true, false},
		{"handler failure requeues", good, fail, false, true},
		{"malformed is dropped", []byte("{"), ok, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			settle(context.Background(), log.Discard(), ack, tt.body, tt.handler)
			if ack.acked != tt.acked {
				t.Fatalf("acked = %v, want %v", ack.acked, tt.acked)
			}
			if !tt.acked && !ack.nacked {
				t.Fatal("expected a nack")
			}
			if ack.requeued != tt.requeued {
				t.Fatalf("requeued = %v, want %v", ack.requeued, tt.requeued)
			}
		})
	}
}
