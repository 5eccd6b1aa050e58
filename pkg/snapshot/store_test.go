package snapshot

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

func TestStore_GetUnsetIsEmpty(t *testing.T) {
	s := NewStore()

	snap := s.Get("users")

	require.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestStore_SetGetClear(t *testing.T) {
	s := NewStore()
	rows := rowset.Snapshot{{"id": int64(1)}}

	s.Set("users", rows)
	assert.Equal(t, rows, s.Get("users"))
	assert.Equal(t, []string{"users"}, s.Tables())

	s.Clear("users")
	assert.Empty(t, s.Get("users"))
	assert.Empty(t, s.Tables())
}

func TestStore_SetCopiesSlice(t *testing.T) {
	s := NewStore()
	rows := rowset.Snapshot{{"id": int64(1)}}

	s.Set("users", rows)
	rows[0] = rowset.Row{"id": int64(99)}

	assert.Equal(t, int64(1), s.Get("users")[0]["id"])
}

func TestStore_TablesSorted(t *testing.T) {
	s := NewStore()
	s.Set("orders", rowset.Empty)
	s.Set("accounts", rowset.Empty)
	s.Set("users", rowset.Empty)

	assert.Equal(t, []string{"accounts", "orders", "users"}, s.Tables())
}

func TestStore_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			snap := make(rowset.Snapshot, i)
			for j := range snap {
				snap[j] = rowset.Row{"gen": i}
			}
			s.Set("t", snap)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				snap := s.Get("t")
				if len(snap) == 0 {
					continue
				}
				gen := snap[0]["gen"]
				for _, row := range snap {
					if row["gen"] != gen {
						panic(fmt.Sprintf("mixed generations %v and %v", gen, row["gen"]))
					}
				}
				if len(snap) != gen.(int) {
					panic("partial snapshot")
				}
			}
		}()
	}

	wg.Wait()
}
