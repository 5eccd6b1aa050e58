package source

import (
	"context"
	"errors"
	"sync"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

var ErrMockClosed = errors.New("mock source closed")

// MockSource keeps tables in memory. Failures queued with FailNext are
// returned by the following FetchAll calls of that table, one per call.
type MockSource struct {
	mu     sync.Mutex
	tables map[string]rowset.Snapshot
	fail   map[string][]error
	fetch  map[string]int
	closed bool
}

func NewMockSource() *MockSource {
	return &MockSource{
		tables: make(map[string]rowset.Snapshot),
		fail:   make(map[string][]error),
		fetch:  make(map[string]int),
	}
}

// Set replaces the table's contents.
func (m *MockSource) Set(table string, rows ...rowset.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = copyRows(rows)
}

func (m *MockSource) FailNext(table string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[table] = append(m.fail[table], errs...)
}

// Fetches reports how many times FetchAll ran for table.
func (m *MockSource) Fetches(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetch[table]
}

func (m *MockSource) FetchAll(ctx context.Context, table string) (rowset.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrMockClosed
	}
	m.fetch[table]++
	if errs := m.fail[table]; len(errs) > 0 {
		m.fail[table] = errs[1:]
		return nil, errs[0]
	}
	return copyRows(m.tables[table]), nil
}

func (m *MockSource) Insert(_ context.Context, table string, row rowset.Row) error {
	if len(row) == 0 {
		return errNoColumns
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = append(m.tables[table], row.Clone())
	return nil
}

func (m *MockSource) Get(_ context.Context, table, idColumn string, id any) (rowset.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := rowset.Snapshot{}
	for _, r := range m.tables[table] {
		if rowset.ValueEqual(r[idColumn], id) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *MockSource) Update(_ context.Context, table string, values rowset.Row, idColumn string, id any) (bool, error) {
	if len(values) == 0 {
		return false, errNoColumns
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	updated := false
	for i, r := range m.tables[table] {
		if !rowset.ValueEqual(r[idColumn], id) {
			continue
		}
		next := r.Clone()
		for k, v := range values {
			next[k] = v
		}
		m.tables[table][i] = next
		updated = true
	}
	return updated, nil
}

func (m *MockSource) Delete(_ context.Context, table, idColumn string, id any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.tables[table]
	kept := rows[:0:0]
	for _, r := range rows {
		if !rowset.ValueEqual(r[idColumn], id) {
			kept = append(kept, r)
		}
	}
	m.tables[table] = kept
	return len(kept) != len(rows), nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyRows(rows []rowset.Row) rowset.Snapshot {
	out := make(rowset.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
