package detector

import (
	"context"
	"sync"

	"github.com/agentstation/sheetsync/pkg/records"
)

// Store persists the fingerprint of the last reconciled snapshot.
type Store interface {
	// Load returns ok=false when no fingerprint has been saved yet.
	Load(ctx context.Context) (fp uint64, ok bool, err error)
	Save(ctx context.Context, fp uint64) error
}

// Detector compares snapshots against the stored fingerprint.
type Detector struct {
	store Store
}

// New returns a Detector backed by store. A nil store keeps the fingerprint
// in memory for the life of the process.
func New(store Store) *Detector {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Detector{store: store}
}

// Changed reports whether recs differ from the last committed snapshot.
// With nothing committed yet it always reports true.
func (d *Detector) Changed(ctx context.Context, recs []records.SourceRecord) (bool, uint64, error) {
	fp := Fingerprint(recs)
	prev, ok, err := d.store.Load(ctx)
	if err != nil {
		return false, fp, err
	}
	return !ok || prev != fp, fp, nil
}

// Commit records fp as the last reconciled snapshot.
func (d *Detector) Commit(ctx context.Context, fp uint64) error {
	return d.store.Save(ctx, fp)
}

// MemoryStore holds the fingerprint in process memory.
type MemoryStore struct {
	mu  sync.Mutex
	fp  uint64
	set bool
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fp, m.set, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, fp uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fp, m.set = fp, true
	return nil
}
