package sheetsync

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/detector"
	"github.com/agentstation/sheetsync/pkg/errors"
	"github.com/agentstation/sheetsync/pkg/reconciler"
	"github.com/agentstation/sheetsync/pkg/sources"
)

// Option is a function that configures an Engine
type Option func(*options) error

type options struct {
	source       sources.Source
	client       CatalogClient
	mirror       reconciler.Mirror
	store        detector.Store
	locker       Locker
	recordDelay  time.Duration
	cycleTimeout time.Duration
	vendor       string
	logger       *zerolog.Logger
	now          func() time.Time
	sleep        reconciler.SleepFunc
	newID        func() string
}

func defaultOptions() *options {
	return &options{
		recordDelay:  constants.DefaultRecordDelay,
		cycleTimeout: constants.CycleTimeout,
		vendor:       constants.DefaultVendor,
		now:          time.Now,
		sleep:        reconciler.Sleep,
		newID:        uuid.NewString,
	}
}

// WithSource sets the source of truth. Required.
func WithSource(src sources.Source) Option {
	return func(o *options) error {
		o.source = src
		return nil
	}
}

// WithCatalog sets the remote catalog client. Required.
func WithCatalog(client CatalogClient) Option {
	return func(o *options) error {
		o.client = client
		return nil
	}
}

// WithMirror sets the local mirror written after confirmed catalog writes
func WithMirror(m reconciler.Mirror) Option {
	return func(o *options) error {
		o.mirror = m
		return nil
	}
}

// WithFingerprintStore persists the change detector's fingerprint.
// Without it the fingerprint lives in memory and every restart forces a
// full reconciliation pass.
func WithFingerprintStore(store detector.Store) Option {
	return func(o *options) error {
		o.store = store
		return nil
	}
}

// WithLocker serializes cycles across processes
func WithLocker(l Locker) Option {
	return func(o *options) error {
		o.locker = l
		return nil
	}
}

// WithRecordDelay configures the pause between records
func WithRecordDelay(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return &errors.ValidationError{Field: "recordDelay", Value: d, Message: "must not be negative"}
		}
		o.recordDelay = d
		return nil
	}
}

// WithCycleTimeout bounds the source read, fingerprint and index build of
// a cycle. Reconciliation is not bounded by it.
func WithCycleTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return &errors.ValidationError{Field: "cycleTimeout", Value: d, Message: "must be positive"}
		}
		o.cycleTimeout = d
		return nil
	}
}

// WithVendor sets the vendor stamped on created products
func WithVendor(vendor string) Option {
	return func(o *options) error {
		if vendor != "" {
			o.vendor = vendor
		}
		return nil
	}
}

// WithLogger configures the engine logger
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithClock configures the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return &errors.ValidationError{Field: "clock", Message: "must not be nil"}
		}
		o.now = now
		return nil
	}
}

// WithSleep replaces the pause between records, mainly for tests
func WithSleep(fn reconciler.SleepFunc) Option {
	return func(o *options) error {
		if fn == nil {
			return &errors.ValidationError{Field: "sleep", Message: "must not be nil"}
		}
		o.sleep = fn
		return nil
	}
}

// WithIDGenerator replaces the cycle id generator
func WithIDGenerator(fn func() string) Option {
	return func(o *options) error {
		if fn == nil {
			return &errors.ValidationError{Field: "idGenerator", Message: "must not be nil"}
		}
		o.newID = fn
		return nil
	}
}
