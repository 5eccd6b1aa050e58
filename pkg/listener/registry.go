// Package listener stores per-table change callbacks and dispatches tick
// results to them.
package listener

import (
	"context"
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

// Kind selects which view of a change a callback receives.
type Kind int

const (
	// AllValues receives the table's full current snapshot.
	AllValues Kind = iota
	// NewValues receives the rows that have no equal row in the previous snapshot.
	NewValues
	// OldValues receives the complete previous snapshot, not just removed rows.
	OldValues
)

// Kinds lists every kind in dispatch order.
var Kinds = []Kind{AllValues, NewValues, OldValues}

func (k Kind) String() string {
	switch k {
	case AllValues:
		return "all_values"
	case NewValues:
		return "new_values"
	case OldValues:
		return "old_values"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown listener kind %q", s)
}

// Func is a change callback.
type Func func(rowset.Snapshot)

// Change is what one tick hands to the dispatcher.
type Change struct {
	All rowset.Snapshot
	New rowset.Snapshot
	Old rowset.Snapshot
}

func (c Change) view(k Kind) rowset.Snapshot {
	switch k {
	case AllValues:
		return c.All
	case NewValues:
		return c.New
	default:
		return c.Old
	}
}

// set is immutable once stored; registration swaps in a modified copy.
type set [3]Func

func (s set) empty() bool {
	for _, fn := range s {
		if fn != nil {
			return false
		}
	}
	return true
}

// Registry holds at most one callback per kind for every table. It is safe
// for concurrent registration and dispatch.
type Registry struct {
	tables *xsync.MapOf[string, set]
}

func NewRegistry() *Registry {
	return &Registry{
		tables: xsync.NewMapOf[string, set](),
	}
}

// Register replaces the table's callback for kind. A nil fn removes it.
func (r *Registry) Register(table string, kind Kind, fn Func) {
	if kind < AllValues || kind > OldValues {
		return
	}
	r.tables.Compute(table, func(old set, _ bool) (set, bool) {
		old[kind] = fn
		return old, old.empty()
	})
}

// Lookup returns the table's callback for kind.
func (r *Registry) Lookup(table string, kind Kind) (Func, bool) {
	s, ok := r.tables.Load(table)
	if !ok || kind < AllValues || kind > OldValues || s[kind] == nil {
		return nil, false
	}
	return s[kind], true
}

// Hook observes each callback invocation. recovered is non-nil when the
// callback panicked.
type Hook func(table string, kind Kind, recovered any)

// Dispatch calls the table's callbacks with the matching views of c, in the
// order AllValues, NewValues, OldValues. Kinds with no callback are skipped.
// Dispatch stops before the next callback once ctx is done. A panicking
// callback does not prevent the remaining ones from running.
func (r *Registry) Dispatch(ctx context.Context, table string, c Change, hook Hook) int {
	s, ok := r.tables.Load(table)
	if !ok {
		return 0
	}

	called := 0
	for _, k := range Kinds {
		fn := s[k]
		if fn == nil {
			continue
		}
		if ctx.Err() != nil {
			return called
		}
		rec := invoke(fn, c.view(k))
		called++
		if hook != nil {
			hook(table, k, rec)
		}
	}
	return called
}

func invoke(fn Func, snap rowset.Snapshot) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	fn(snap)
	return nil
}
