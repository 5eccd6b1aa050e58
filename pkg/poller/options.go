package poller

import (
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/MathewBravo/realtime-db/pkg/listener"
)

// StopPolicy decides what StopListening does for a table that is not polled.
type StopPolicy int

const (
	// StopIgnoreUnknown makes stopping an unknown table a no-op.
	StopIgnoreUnknown StopPolicy = iota
	// StopStrict makes stopping an unknown table return ErrNotListening.
	StopStrict
)

// Metrics receives engine events. internal/telemetry provides a Prometheus
// implementation.
type Metrics interface {
	TickCompleted(table string, rows int, took time.Duration)
	FetchFailed(table string)
	ChangeDetected(table string, newRows int)
	ListenerCalled(table string, kind listener.Kind, panicked bool)
	SubscriptionsActive(n int)
	TableStopped(table string)
}

type noopMetrics struct{}

func (noopMetrics) TickCompleted(string, int, time.Duration)   {}
func (noopMetrics) FetchFailed(string)                         {}
func (noopMetrics) ChangeDetected(string, int)                 {}
func (noopMetrics) ListenerCalled(string, listener.Kind, bool) {}
func (noopMetrics) SubscriptionsActive(int)                    {}
func (noopMetrics) TableStopped(string)                        {}

type Option func(*Engine)

// WithClock sets the clock driving tick timers. Defaults to clock.WallClock.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		e.clock = clk
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithErrorHandler registers a hook receiving every *FetchError and
// *ListenerPanicError. It runs on the table's polling goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func WithStopPolicy(p StopPolicy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithFetchTimeout bounds each Data Access call. Zero means no bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.fetchTimeout = d
	}
}
