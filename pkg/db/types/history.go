package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HistoryEntry records one authorization or capture attempt against a
// deposit, including failures, for audit and idempotency checks.
type HistoryEntry struct {
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
	Success     bool      `json:"success"`
}

// HistoryEntries is an append-only ordered sequence stored as a JSON column.
type HistoryEntries []HistoryEntry

func (h *HistoryEntries) Scan(src any) error {
	if src == nil {
		*h = HistoryEntries{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return h.unmarshal(v)
	case string:
		return h.unmarshal([]byte(v))
	default:
		return fmt.Errorf("HistoryEntries: unsupported Scan type %T", src)
	}
}

func (h HistoryEntries) Value() (driver.Value, error) {
	if h == nil {
		h = HistoryEntries{}
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("HistoryEntries: marshal: %w", err)
	}
	return string(raw), nil
}

// Append returns the sequence with one more entry. The receiver is not
// mutated so copies held by callers stay stable.
func (h HistoryEntries) Append(entry HistoryEntry) HistoryEntries {
	out := make(HistoryEntries, 0, len(h)+1)
	out = append(out, h...)
	out = append(out, entry)
	return out
}

func (h *HistoryEntries) unmarshal(raw []byte) error {
	if len(raw) == 0 {
		*h = HistoryEntries{}
		return nil
	}
	var out []HistoryEntry
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("HistoryEntries: unmarshal: %w", err)
	}
	*h = out
	return nil
}
