package server

import (
	"sync"
	"time"

	"github.com/agentstation/sheetsync"
	"github.com/agentstation/sheetsync/internal/server/sse"
	"github.com/agentstation/sheetsync/pkg/reconciler"
)

// Totals accumulates counts across every cycle since start.
type Totals struct {
	Cycles  int `json:"cycles"`
	Errors  int `json:"errors"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Status is the payload of GET /status.
type Status struct {
	State     string                 `json:"state"`
	Source    string                 `json:"source,omitempty"`
	StartedAt time.Time              `json:"started_at"`
	Uptime    string                 `json:"uptime"`
	LastCycle *sheetsync.CycleResult `json:"last_cycle,omitempty"`
	LastError string                 `json:"last_error,omitempty"`
	LastErrAt *time.Time             `json:"last_error_at,omitempty"`
	Totals    Totals                 `json:"totals"`
}

// Tracker keeps the live status of the poll loop. The loop writes to it and
// HTTP handlers read from it concurrently.
type Tracker struct {
	mu        sync.RWMutex
	state     sheetsync.State
	source    string
	startedAt time.Time
	last      *sheetsync.CycleResult
	lastErr   string
	lastErrAt time.Time
	totals    Totals

	now         func() time.Time
	broadcaster *sse.Broadcaster
}

// NewTracker creates a Tracker for source.
func NewTracker(source string) *Tracker {
	return &Tracker{source: source, startedAt: time.Now(), now: time.Now}
}

// SetBroadcaster streams every tracked event to b.
func (t *Tracker) SetBroadcaster(b *sse.Broadcaster) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.broadcaster = b
}

// Attach wires the tracker into an engine's hooks.
func (t *Tracker) Attach(e *sheetsync.Engine) {
	e.OnCycle(t.RecordCycle)
	e.OnCreated(t.RecordOutcome)
	e.OnUpdated(t.RecordOutcome)
	e.OnFailed(t.RecordOutcome)
}

// SetState records a poll loop transition. It matches the watcher's
// OnState signature.
func (t *Tracker) SetState(s sheetsync.State) {
	t.mu.Lock()
	t.state = s
	if s == sheetsync.StateError {
		t.totals.Errors++
		t.lastErrAt = t.now()
	}
	b := t.broadcaster
	t.mu.Unlock()

	if b != nil {
		b.Broadcast(sse.Event{Event: sse.EventState, Data: map[string]string{"state": s.String()}})
	}
}

// RecordError keeps the message of the last failed cycle.
func (t *Tracker) RecordError(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err.Error()
	t.lastErrAt = t.now()
}

// RecordCycle stores a completed cycle and adds it to the totals.
func (t *Tracker) RecordCycle(res sheetsync.CycleResult) {
	t.mu.Lock()
	res.Outcomes = nil
	t.last = &res
	t.totals.Cycles++
	t.totals.Created += res.Summary.Created
	t.totals.Updated += res.Summary.Updated
	t.totals.Failed += res.Summary.Failed
	t.totals.Skipped += res.Summary.Skipped
	b := t.broadcaster
	t.mu.Unlock()

	if b != nil {
		b.Broadcast(sse.Event{Event: sse.EventCycle, Data: res})
	}
}

// RecordOutcome streams a single record outcome.
func (t *Tracker) RecordOutcome(o reconciler.Outcome) {
	t.mu.RLock()
	b := t.broadcaster
	t.mu.RUnlock()
	if b == nil {
		return
	}
	data := map[string]any{"part_no": o.PartNo, "action": o.Action, "remote_id": o.RemoteID}
	if o.Err != nil {
		data["error"] = o.Err.Error()
	}
	b.Broadcast(sse.Event{Event: sse.EventOutcome, Data: data})
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st := Status{
		State:     t.state.String(),
		Source:    t.source,
		StartedAt: t.startedAt,
		Uptime:    t.now().Sub(t.startedAt).Round(time.Second).String(),
		LastError: t.lastErr,
		Totals:    t.totals,
	}
	if t.last != nil {
		last := *t.last
		st.LastCycle = &last
	}
	if !t.lastErrAt.IsZero() {
		at := t.lastErrAt
		st.LastErrAt = &at
	}
	return st
}
