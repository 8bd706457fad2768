package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/sheetsync/pkg/records"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	rows map[string]Row
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]Row)}
}

// Upsert implements Store.
func (m *Memory) Upsert(_ context.Context, rec records.SourceRecord, remoteID int64, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec.PartNo] = NewRow(rec, remoteID, syncedAt)
	return nil
}

// Get returns the row for partNo.
func (m *Memory) Get(partNo string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[partNo]
	return r, ok
}

// Count implements Counter.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows), nil
}

// Ping implements Pinger.
func (m *Memory) Ping(_ context.Context) error { return nil }

// Close implements Store.
func (m *Memory) Close() error { return nil }
