// Package snapshot keeps the last observed rows of every polled table.
package snapshot

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

// Store maps table names to their most recent snapshot. Writes replace the
// whole snapshot, so readers never see a partially updated one.
type Store struct {
	tables *xsync.MapOf[string, rowset.Snapshot]
}

func NewStore() *Store {
	return &Store{
		tables: xsync.NewMapOf[string, rowset.Snapshot](),
	}
}

// Get returns the table's snapshot, or the empty snapshot if none is stored.
func (s *Store) Get(table string) rowset.Snapshot {
	snap, ok := s.tables.Load(table)
	if !ok {
		return rowset.Empty
	}
	return snap
}

// Set replaces the table's snapshot. The slice is copied; the rows are not.
func (s *Store) Set(table string, snap rowset.Snapshot) {
	s.tables.Store(table, snap.Clone())
}

// Clear drops the table's snapshot.
func (s *Store) Clear(table string) {
	s.tables.Delete(table)
}

// Tables lists the tables that currently hold a snapshot, sorted.
func (s *Store) Tables() []string {
	out := make([]string, 0, s.tables.Size())
	s.tables.Range(func(table string, _ rowset.Snapshot) bool {
		out = append(out, table)
		return true
	})
	slices.Sort(out)
	return out
}
