package reconciler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
)

type options struct {
	delay         time.Duration
	recordTimeout time.Duration
	vendor        string
	sleep         SleepFunc
	now           func() time.Time
	logger        *zerolog.Logger
	observers     []func(Outcome)
}

func defaults() *options {
	return &options{
		delay:         constants.DefaultRecordDelay,
		recordTimeout: constants.RecordTimeout,
		vendor:        constants.DefaultVendor,
		sleep:         Sleep,
		now:           time.Now,
	}
}

// Option configures a Reconciler.
type Option func(*options) error

// WithDelay sets the pause between records. Zero disables pacing.
func WithDelay(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.NewValidationError("delay", d, "must not be negative")
		}
		o.delay = d
		return nil
	}
}

// WithRecordTimeout bounds the remote calls for one record.
func WithRecordTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("record_timeout", d, "must be positive")
		}
		o.recordTimeout = d
		return nil
	}
}

// WithVendor sets the vendor stamped on created products.
func WithVendor(vendor string) Option {
	return func(o *options) error {
		if vendor != "" {
			o.vendor = vendor
		}
		return nil
	}
}

// WithSleep replaces the pacing sleep, mainly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) error {
		if fn == nil {
			return errors.NewValidationError("sleep", nil, "must not be nil")
		}
		o.sleep = fn
		return nil
	}
}

// WithClock sets the clock used for mirror timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		if now == nil {
			return errors.NewValidationError("clock", nil, "must not be nil")
		}
		o.now = now
		return nil
	}
}

// WithLogger sets the logger. By default the logger is taken from the
// context passed to Reconcile.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithObserver registers fn to receive every outcome as it is produced.
func WithObserver(fn func(Outcome)) Option {
	return func(o *options) error {
		if fn != nil {
			o.observers = append(o.observers, fn)
		}
		return nil
	}
}
