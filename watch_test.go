package sheetsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/sheetsync/pkg/catalog"
	pkgerrors "github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/logging"
	"github.com/agentstation/sheetsync/pkg/sources"
)

type scriptedCycler struct {
	results []error
	calls   int
	onCall  func(n int)
}

func (s *scriptedCycler) RunCycle(ctx context.Context) (CycleResult, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall(s.calls)
	}
	var err error
	if s.calls <= len(s.results) {
		err = s.results[s.calls-1]
	}
	return CycleResult{Changed: err == nil}, err
}

func TestNewWatcherOptions(t *testing.T) {
	_, err := NewWatcher(nil)
	assert.Error(t, err)

	_, err = NewWatcher(&scriptedCycler{}, WithBackoffMultiplier(1))
	assert.True(t, pkgerrors.IsValidationError(err))

	_, err = NewWatcher(&scriptedCycler{}, WithInterval(0))
	assert.True(t, pkgerrors.IsValidationError(err))

	w, err := NewWatcher(&scriptedCycler{}, WithInterval(time.Minute), WithBackoffMultiplier(3))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, w.State())
}

func TestWatcherBacksOffAfterError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cycler := &scriptedCycler{results: []error{errors.New("index down"), nil}}
	var waits []time.Duration
	sleeper := func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 2 {
			cancel()
		}
		return nil
	}

	var states []State
	var seen []error
	w, err := NewWatcher(cycler,
		WithInterval(10*time.Second),
		WithSleeper(sleeper),
		WithOnState(func(s State) { states = append(states, s) }),
		WithOnError(func(err error) { seen = append(seen, err) }),
	)
	require.NoError(t, err)

	require.NoError(t, w.Run(logging.WithLogger(ctx, logging.NewNopLogger())))
	assert.Equal(t, 2, cycler.calls)
	assert.Equal(t, []time.Duration{20 * time.Second, 10 * time.Second}, waits)
	assert.Equal(t, []State{
		StateFetching, StateError, StateBackoffIdle,
		StateFetching, StateReconciling, StateIdle,
		StateIdle,
	}, states)
	require.Len(t, seen, 1)
	assert.EqualError(t, seen[0], "index down")
}

func TestWatcherStopWhileSleeping(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cycler := &scriptedCycler{}
	sleeper := func(ctx context.Context, _ time.Duration) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	}

	w, err := NewWatcher(cycler, WithSleeper(sleeper))
	require.NoError(t, err)

	require.NoError(t, w.Run(logging.WithLogger(ctx, logging.NewNopLogger())))
	assert.Equal(t, 1, cycler.calls, "no new fetch starts after stop")
	assert.Equal(t, StateIdle, w.State())
}

func TestWatcherCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cycler := &scriptedCycler{}
	w, err := NewWatcher(cycler, WithSleeper(noSleep))
	require.NoError(t, err)

	require.NoError(t, w.Run(logging.WithLogger(ctx, logging.NewNopLogger())))
	assert.Zero(t, cycler.calls)
}

func TestWatcherRunOnceWithEngine(t *testing.T) {
	client := newFakeCatalog(catalog.Entry{RemoteID: 7, SKU: "A1"})
	e := newTestEngine(t, &sources.Static{Name: "sheet", Rows: scenarioRows()}, client)

	var states []State
	w, err := NewWatcher(e, WithOnState(func(s State) { states = append(states, s) }))
	require.NoError(t, err)

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Created)
	assert.Equal(t, []State{StateFetching, StateReconciling, StateIdle}, states)

	states = nil
	res, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, []State{StateFetching, StateUnchanged, StateIdle}, states)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "BACKOFF_IDLE", StateBackoffIdle.String())
	assert.Equal(t, "UNCHANGED", StateUnchanged.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
