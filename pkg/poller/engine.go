// Package poller turns periodic reads of a table into change notifications.
//
// An Engine owns one goroutine per polled table. Every tick fetches the
// table's rows, compares them with the previous snapshot and, when they
// differ, calls the table's registered listeners in the order AllValues,
// NewValues, OldValues. OldValues listeners receive the whole previous
// snapshot, not just the removed rows.
//
// Listeners must not synchronously start or stop polling of their own table:
// both calls wait for the in-flight tick, which is the caller itself.
package poller

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/MathewBravo/realtime-db/pkg/differ"
	"github.com/MathewBravo/realtime-db/pkg/listener"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
	"github.com/MathewBravo/realtime-db/pkg/snapshot"
)

// DataAccess reads the current rows of a table.
type DataAccess interface {
	FetchAll(ctx context.Context, table string) (rowset.Snapshot, error)
}

type Engine struct {
	source    DataAccess
	snapshots *snapshot.Store
	listeners *listener.Registry

	tasks *xsync.MapOf[string, *Subscription]
	// serializes start/stop per table
	locks *xsync.MapOf[string, *sync.Mutex]

	clock        clock.Clock
	logger       zerolog.Logger
	onError      func(error)
	metrics      Metrics
	policy       StopPolicy
	fetchTimeout time.Duration

	closed atomic.Bool
}

func New(source DataAccess, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		snapshots: snapshot.NewStore(),
		listeners: listener.NewRegistry(),
		tasks:     xsync.NewMapOf[string, *Subscription](),
		locks:     xsync.NewMapOf[string, *sync.Mutex](),
		clock:     clock.WallClock,
		logger:    log.Logger,
		metrics:   noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnAllValues sets the callback receiving the table's full snapshot after a
// change. It replaces any previous AllValues callback for the table.
func (e *Engine) OnAllValues(table string, fn listener.Func) {
	e.listeners.Register(table, listener.AllValues, fn)
}

// OnNewValues sets the callback receiving the rows with no equal row in the
// previous snapshot.
func (e *Engine) OnNewValues(table string, fn listener.Func) {
	e.listeners.Register(table, listener.NewValues, fn)
}

// OnOldValues sets the callback receiving the complete previous snapshot.
func (e *Engine) OnOldValues(table string, fn listener.Func) {
	e.listeners.Register(table, listener.OldValues, fn)
}

// On registers fn for kind.
func (e *Engine) On(table string, kind listener.Kind, fn listener.Func) {
	e.listeners.Register(table, kind, fn)
}

// StartListening begins polling table every interval, the first tick firing
// immediately. An existing subscription for the table is stopped first and
// the table's snapshot starts out empty.
func (e *Engine) StartListening(table string, interval time.Duration) (*Subscription, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("table %q: %w (got %s)", table, ErrInvalidInterval, interval)
	}
	if e.closed.Load() {
		return nil, ErrClosed
	}

	mu := e.lock(table)
	mu.Lock()
	defer mu.Unlock()

	if old, ok := e.tasks.LoadAndDelete(table); ok {
		old.halt()
		e.logger.Debug().Str("table", table).Dur("old_interval", old.interval).Msg("Replaced subscription")
	}
	e.snapshots.Set(table, rowset.Empty)

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{
		engine:   e,
		table:    table,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	e.tasks.Store(table, sub)
	go sub.run()

	if e.closed.Load() {
		e.tasks.Delete(table)
		sub.halt()
		e.snapshots.Clear(table)
		return nil, ErrClosed
	}

	e.metrics.SubscriptionsActive(e.tasks.Size())
	e.logger.Info().Str("table", table).Dur("interval", interval).Msg("Started listening")
	return sub, nil
}

// StopListening stops polling table and waits for an in-flight tick to
// finish; no listener of the table fires after it returns. For a table that is
// not polled it returns nil, or ErrNotListening under StopStrict.
func (e *Engine) StopListening(table string) error {
	return e.stop(table, e.policy == StopStrict)
}

func (e *Engine) stop(table string, strict bool) error {
	mu := e.lock(table)
	mu.Lock()
	defer mu.Unlock()

	sub, ok := e.tasks.LoadAndDelete(table)
	if !ok {
		if strict {
			return fmt.Errorf("table %q: %w", table, ErrNotListening)
		}
		return nil
	}
	sub.halt()
	e.snapshots.Clear(table)

	e.metrics.TableStopped(table)
	e.metrics.SubscriptionsActive(e.tasks.Size())
	e.logger.Info().Str("table", table).Uint64("ticks", sub.Ticks()).Msg("Stopped listening")
	return nil
}

func (e *Engine) release(sub *Subscription) {
	mu := e.lock(sub.table)
	mu.Lock()
	defer mu.Unlock()

	if cur, ok := e.tasks.Load(sub.table); !ok || cur != sub {
		sub.halt()
		return
	}
	e.tasks.Delete(sub.table)
	sub.halt()
	e.snapshots.Clear(sub.table)
	e.metrics.TableStopped(sub.table)
	e.metrics.SubscriptionsActive(e.tasks.Size())
}

// Close stops every table. The engine rejects new subscriptions afterwards.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	for e.tasks.Size() > 0 {
		for _, table := range e.Tables() {
			_ = e.stop(table, false)
		}
	}
	return nil
}

// Listening reports whether table has an active subscription.
func (e *Engine) Listening(table string) bool {
	_, ok := e.tasks.Load(table)
	return ok
}

// Subscription returns the table's active subscription.
func (e *Engine) Subscription(table string) (*Subscription, bool) {
	return e.tasks.Load(table)
}

// Tables lists the polled tables, sorted.
func (e *Engine) Tables() []string {
	out := make([]string, 0, e.tasks.Size())
	e.tasks.Range(func(table string, _ *Subscription) bool {
		out = append(out, table)
		return true
	})
	slices.Sort(out)
	return out
}

// Snapshot returns the last rows observed for table.
func (e *Engine) Snapshot(table string) rowset.Snapshot {
	return e.snapshots.Get(table)
}

func (e *Engine) lock(table string) *sync.Mutex {
	mu, _ := e.locks.LoadOrCompute(table, func() *sync.Mutex {
		return &sync.Mutex{}
	})
	return mu
}

func (e *Engine) tick(sub *Subscription) {
	start := e.clock.Now()
	table := sub.table

	fetchCtx, cancel := sub.ctx, context.CancelFunc(func() {})
	if e.fetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(sub.ctx, e.fetchTimeout)
	}
	current, err := e.source.FetchAll(fetchCtx, table)
	cancel()
	sub.ticks.Add(1)

	if err != nil {
		if sub.ctx.Err() != nil {
			return
		}
		e.metrics.FetchFailed(table)
		e.report(&FetchError{Table: table, Err: err})
		return
	}
	if current == nil {
		current = rowset.Snapshot{}
	}

	previous := e.snapshots.Get(table)
	changed, newValues := differ.Diff(previous, current)
	if changed {
		e.metrics.ChangeDetected(table, len(newValues))
		e.logger.Debug().
			Str("table", table).
			Int("rows", len(current)).
			Int("new_rows", len(newValues)).
			Int("old_rows", len(previous)).
			Msg("Change detected")
		e.listeners.Dispatch(sub.ctx, table, listener.Change{
			All: current,
			New: newValues,
			Old: previous,
		}, e.observeListener)
	}
	e.snapshots.Set(table, current)

	e.metrics.TickCompleted(table, len(current), e.clock.Now().Sub(start))
}

func (e *Engine) observeListener(table string, kind listener.Kind, recovered any) {
	e.metrics.ListenerCalled(table, kind, recovered != nil)
	if recovered != nil {
		e.report(&ListenerPanicError{Table: table, Kind: kind, Value: recovered})
	}
}

func (e *Engine) report(err error) {
	e.logger.Warn().Err(err).Msg("Tick error")
	if e.onError != nil {
		e.onError(err)
	}
}
