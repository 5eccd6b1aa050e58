package poller

import (
	"context"
	"sync/atomic"
	"time"
)

// Subscription is the handle of one table's polling activity.
type Subscription struct {
	engine   *Engine
	table    string
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	ticks  atomic.Uint64
}

func (s *Subscription) Table() string {
	return s.table
}

func (s *Subscription) Interval() time.Duration {
	return s.interval
}

// Done is closed once the polling goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Ticks counts the ticks that reached the fetch step.
func (s *Subscription) Ticks() uint64 {
	return s.ticks.Load()
}

// Stop cancels this subscription and waits for an in-flight tick to finish.
// If it is still the table's active subscription, the table stops being
// polled and its snapshot is discarded. Stop is idempotent.
func (s *Subscription) Stop() {
	s.engine.release(s)
}

func (s *Subscription) halt() {
	s.cancel()
	<-s.done
}

// run ticks once immediately, then once per interval measured from the end
// of the previous tick, so ticks never overlap.
func (s *Subscription) run() {
	defer close(s.done)

	if s.ctx.Err() != nil {
		return
	}
	s.engine.tick(s)

	timer := s.engine.clock.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-timer.Chan():
		}
		if s.ctx.Err() != nil {
			return
		}
		s.engine.tick(s)
		timer.Reset(s.interval)
	}
}
