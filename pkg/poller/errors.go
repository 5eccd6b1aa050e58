package poller

import (
	"errors"
	"fmt"

	"github.com/MathewBravo/realtime-db/pkg/listener"
)

var (
	// ErrInvalidInterval is returned by StartListening for a non-positive interval.
	ErrInvalidInterval = errors.New("poll interval must be positive")
	// ErrNotListening is returned by StopListening under StopStrict when the
	// table has no active subscription.
	ErrNotListening = errors.New("no active subscription")
	// ErrClosed is returned once the engine has been closed.
	ErrClosed = errors.New("engine closed")
)

// FetchError wraps a Data Access failure during a tick. It is reported through
// the error handler; the table keeps polling.
type FetchError struct {
	Table string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch table %q: %v", e.Table, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ListenerPanicError reports a callback that panicked during dispatch.
type ListenerPanicError struct {
	Table string
	Kind  listener.Kind
	Value any
}

func (e *ListenerPanicError) Error() string {
	return fmt.Sprintf("%s listener for table %q panicked: %v", e.Kind, e.Table, e.Value)
}
