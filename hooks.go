package sheetsync

import (
	"sync"

	"github.com/agentstation/sheetsync/pkg/reconciler"
)

// Hook function types for sync events
type (
	// OutcomeHook is called when a record has been processed
	OutcomeHook func(outcome reconciler.Outcome)

	// CycleHook is called when a cycle completes, changed or not
	CycleHook func(result CycleResult)
)

// hooks manages event callbacks for sync activity
type hooks struct {
	mu        sync.RWMutex
	onCreated []OutcomeHook
	onUpdated []OutcomeHook
	onFailed  []OutcomeHook
	onCycle   []CycleHook
}

// newHooks creates a new hooks instance
func newHooks() *hooks {
	return &hooks{}
}

// OnCreated registers a callback for records created in the catalog
func (h *hooks) OnCreated(fn OutcomeHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCreated = append(h.onCreated, fn)
}

// OnUpdated registers a callback for records updated in the catalog
func (h *hooks) OnUpdated(fn OutcomeHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onUpdated = append(h.onUpdated, fn)
}

// OnFailed registers a callback for records that could not be written
func (h *hooks) OnFailed(fn OutcomeHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onFailed = append(h.onFailed, fn)
}

// OnCycle registers a callback for completed cycles
func (h *hooks) OnCycle(fn CycleHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCycle = append(h.onCycle, fn)
}

// triggerOutcome dispatches an outcome to the hooks for its action
func (h *hooks) triggerOutcome(o reconciler.Outcome) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var fns []OutcomeHook
	switch o.Action {
	case reconciler.ActionCreate:
		fns = h.onCreated
	case reconciler.ActionUpdate:
		fns = h.onUpdated
	case reconciler.ActionFailed:
		fns = h.onFailed
	}
	for _, fn := range fns {
		fn(o)
	}
}

func (h *hooks) triggerCycle(result CycleResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.onCycle {
		fn(result)
	}
}
