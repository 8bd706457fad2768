package sheetsync

import (
	"context"
	"fmt"
	"time"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/reconciler"
)

// State is a poll loop state.
type State int

// Poll loop states.
const (
	StateIdle State = iota
	StateFetching
	StateUnchanged
	StateReconciling
	StateError
	StateBackoffIdle
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateFetching:
		return "FETCHING"
	case StateUnchanged:
		return "UNCHANGED"
	case StateReconciling:
		return "RECONCILING"
	case StateError:
		return "ERROR"
	case StateBackoffIdle:
		return "BACKOFF_IDLE"
	default:
		return "UNKNOWN"
	}
}

// Cycler runs one sync cycle. *Engine implements it.
type Cycler interface {
	RunCycle(ctx context.Context) (CycleResult, error)
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher) error

// WithInterval sets the pause between cycles.
func WithInterval(d time.Duration) WatchOption {
	return func(w *Watcher) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "interval", Value: d, Message: "must be positive"}
		}
		w.interval = d
		return nil
	}
}

// WithBackoffMultiplier sets how many intervals to wait after a failed
// cycle. Values below 2 are rejected.
func WithBackoffMultiplier(n int) WatchOption {
	return func(w *Watcher) error {
		if n < constants.BackoffMultiplier {
			return &errors.ValidationError{Field: "backoffMultiplier", Value: n, Message: "must be at least 2"}
		}
		w.multiplier = n
		return nil
	}
}

// WithSleeper replaces the idle wait between cycles.
func WithSleeper(fn reconciler.SleepFunc) WatchOption {
	return func(w *Watcher) error {
		if fn == nil {
			return &errors.ValidationError{Field: "sleeper", Message: "must not be nil"}
		}
		w.sleep = fn
		return nil
	}
}

// WithOnState registers fn to observe every state transition.
func WithOnState(fn func(State)) WatchOption {
	return func(w *Watcher) error {
		if fn != nil {
			w.onState = append(w.onState, fn)
		}
		return nil
	}
}

// WithOnError registers fn to receive the error of every failed cycle.
func WithOnError(fn func(error)) WatchOption {
	return func(w *Watcher) error {
		if fn != nil {
			w.onError = append(w.onError, fn)
		}
		return nil
	}
}

// Watcher is the poll loop. It never runs two cycles at once.
type Watcher struct {
	cycler     Cycler
	interval   time.Duration
	multiplier int
	sleep      reconciler.SleepFunc
	onState    []func(State)
	onError    []func(error)
	state      State
}

// NewWatcher creates a poll loop around c.
func NewWatcher(c Cycler, opts ...WatchOption) (*Watcher, error) {
	if c == nil {
		return nil, errors.NewMissingConfigError("watcher", []string{"engine"})
	}
	w := &Watcher{
		cycler:     c,
		interval:   constants.DefaultSyncInterval,
		multiplier: constants.BackoffMultiplier,
		sleep:      reconciler.Sleep,
		state:      StateIdle,
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, fmt.Errorf("applying watch options: %w", err)
		}
	}
	return w, nil
}

// State returns the current state. It is only meaningful from OnState
// callbacks or after Run returns.
func (w *Watcher) State() State { return w.state }

func (w *Watcher) transition(s State) {
	w.state = s
	for _, fn := range w.onState {
		fn(s)
	}
}

// Run loops until ctx is canceled. Cancellation is observed before each
// fetch and during the idle wait; a cycle in progress finishes its current
// record first. Run returns nil once stopped.
func (w *Watcher) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx)
	logger.Info().
		Dur("interval", w.interval).
		Int("backoff_multiplier", w.multiplier).
		Msg("Starting poll loop")

	for {
		if ctx.Err() != nil {
			w.transition(StateIdle)
			logger.Info().Msg("Stop requested, poll loop exiting")
			return nil
		}

		wait := w.interval
		if _, err := w.cycle(ctx); err != nil {
			wait = w.interval * time.Duration(w.multiplier)
			w.transition(StateBackoffIdle)
			logger.Warn().Err(err).Dur("backoff", wait).Msg("Cycle failed, backing off")
		} else {
			w.transition(StateIdle)
		}

		// A canceled sleep is picked up at the top of the loop.
		_ = w.sleep(ctx, wait)
	}
}

// RunOnce runs exactly one cycle and stops.
func (w *Watcher) RunOnce(ctx context.Context) (CycleResult, error) {
	res, err := w.cycle(ctx)
	w.transition(StateIdle)
	return res, err
}

func (w *Watcher) cycle(ctx context.Context) (CycleResult, error) {
	w.transition(StateFetching)
	res, err := w.cycler.RunCycle(withPhaseNotifier(ctx, w.transition))
	if err != nil {
		for _, fn := range w.onError {
			fn(err)
		}
		w.transition(StateError)
		return res, err
	}
	switch {
	case !res.Changed:
		w.transition(StateUnchanged)
	case w.state != StateReconciling:
		w.transition(StateReconciling)
	}
	return res, nil
}

type phaseKey struct{}

func withPhaseNotifier(ctx context.Context, fn func(State)) context.Context {
	return context.WithValue(ctx, phaseKey{}, fn)
}

// notifyPhase reports a state change to the watcher driving ctx, if any.
func notifyPhase(ctx context.Context, s State) {
	if fn, ok := ctx.Value(phaseKey{}).(func(State)); ok && fn != nil {
		fn(s)
	}
}
