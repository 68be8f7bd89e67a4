package amqp

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Reasons carried by TransactionsChanged.
const (
	ReasonImport = "import"
	ReasonSync   = "sync"
	ReasonUpdate = "update"
	ReasonDelete = "delete"
	ReasonClear  = "clear"
)

// TransactionsChanged tells consumers which months need their rollups rebuilt.
// An empty MonthKeys means every month is affected.
type TransactionsChanged struct {
	MonthKeys  []string  `json:"month_keys"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewTransactionsChanged copies, sorts and deduplicates months.
func NewTransactionsChanged(months []string, reason string, at time.Time) *TransactionsChanged {
	seen := make(map[string]struct{}, len(months))
	keys := make([]string, 0, len(months))
	for _, m := range months {
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		keys = append(keys, m)
	}
	sort.Strings(keys)
	return &TransactionsChanged{MonthKeys: keys, Reason: reason, OccurredAt: at.UTC()}
}

// AllMonths reports whether the event invalidates everything.
func (m *TransactionsChanged) AllMonths() bool {
	return len(m.MonthKeys) == 0
}

// ToJSON converts the message to JSON bytes
func (m *TransactionsChanged) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionsChangedFromJSON decodes a message and rejects one without a reason.
func TransactionsChangedFromJSON(data []byte) (*TransactionsChanged, error) {
	var msg TransactionsChanged
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Reason == "" {
		return nil, fmt.Errorf("transactions changed message: missing reason")
	}
	return &msg, nil
}
