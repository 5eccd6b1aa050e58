package listener

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

var change = Change{
	All: rowset.Snapshot{{"id": int64(1)}, {"id": int64(2)}},
	New: rowset.Snapshot{{"id": int64(2)}},
	Old: rowset.Snapshot{{"id": int64(1)}},
}

func TestKindStrings(t *testing.T) {
	for _, k := range Kinds {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("removed_values")
	assert.Error(t, err)
}

func TestDispatch_OrderAndViews(t *testing.T) {
	r := NewRegistry()
	var got []string
	var views []rowset.Snapshot

	record := func(name string) Func {
		return func(s rowset.Snapshot) {
			got = append(got, name)
			views = append(views, s)
		}
	}
	// registered out of order on purpose
	r.Register("users", OldValues, record("old"))
	r.Register("users", AllValues, record("all"))
	r.Register("users", NewValues, record("new"))

	n := r.Dispatch(context.Background(), "users", change, nil)

	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"all", "new", "old"}, got)
	assert.Equal(t, []rowset.Snapshot{change.All, change.New, change.Old}, views)
}

func TestDispatch_SkipsMissingKinds(t *testing.T) {
	r := NewRegistry()
	var got rowset.Snapshot
	r.Register("users", NewValues, func(s rowset.Snapshot) { got = s })

	n := r.Dispatch(context.Background(), "users", change, nil)

	assert.Equal(t, 1, n)
	assert.Equal(t, change.New, got)
	assert.Zero(t, r.Dispatch(context.Background(), "orders", change, nil))
}

func TestRegister_Replaces(t *testing.T) {
	r := NewRegistry()
	var first, second int
	r.Register("users", AllValues, func(rowset.Snapshot) { first++ })
	r.Register("users", AllValues, func(rowset.Snapshot) { second++ })

	r.Dispatch(context.Background(), "users", change, nil)

	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestRegister_NilRemoves(t *testing.T) {
	r := NewRegistry()
	r.Register("users", AllValues, func(rowset.Snapshot) {})
	r.Register("users", AllValues, nil)

	_, ok := r.Lookup("users", AllValues)
	assert.False(t, ok)
	assert.Zero(t, r.Dispatch(context.Background(), "users", change, nil))
}

func TestDispatch_StopsWhenCancelled(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	var got []Kind
	r.Register("users", AllValues, func(rowset.Snapshot) {
		got = append(got, AllValues)
		cancel()
	})
	r.Register("users", NewValues, func(rowset.Snapshot) { got = append(got, NewValues) })

	n := r.Dispatch(ctx, "users", change, nil)

	assert.Equal(t, 1, n)
	assert.Equal(t, []Kind{AllValues}, got)
}

func TestDispatch_RecoversPanics(t *testing.T) {
	r := NewRegistry()
	var newCalled bool
	var panics []Kind
	r.Register("users", AllValues, func(rowset.Snapshot) { panic("boom") })
	r.Register("users", NewValues, func(rowset.Snapshot) { newCalled = true })

	r.Dispatch(context.Background(), "users", change, func(_ string, k Kind, rec any) {
		if rec != nil {
			panics = append(panics, k)
		}
	})

	assert.True(t, newCalled)
	assert.Equal(t, []Kind{AllValues}, panics)
}

func TestRegistry_ConcurrentRegisterAndDispatch(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				r.Register("users", Kinds[j%3], func(rowset.Snapshot) {})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				r.Dispatch(context.Background(), "users", change, nil)
			}
		}()
	}

	wg.Wait()
}
