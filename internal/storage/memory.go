package storage

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps rows in process memory. Used by tests and the memory
// backend type.
type MemoryBackend struct {
	mu      sync.Mutex
	rows    map[string]Row
	cursors map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: map[string]Row{}, cursors: map[string]string{}}
}

func (m *MemoryBackend) Load(_ context.Context) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(Row) bool { return true }), nil
}

func (m *MemoryBackend) LoadDirty(_ context.Context) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collect(func(r Row) bool { return r.Dirty }), nil
}

func (m *MemoryBackend) collect(keep func(Row) bool) []Row {
	out := make([]Row, 0, len(m.rows))
	for _, r := range m.rows {
		if keep(r) {
			r.Data = slices.Clone(r.Data)
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryBackend) Apply(_ context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if r.Deleted || len(r.Data) == 0 {
			r.Data = []byte("{}")
		} else {
			r.Data = slices.Clone(r.Data)
		}
		m.rows[r.Key()] = r
	}
	return nil
}

func (m *MemoryBackend) Cursor(_ context.Context, namespace string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[namespace]
	return c, ok, nil
}

func (m *MemoryBackend) SetCursor(_ context.Context, namespace, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[namespace] = cursor
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Put writes a raw row, bypassing every check. Tests use it to plant corrupt data.
func (m *MemoryBackend) Put(r Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.Key()] = r
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*SQLiteBackend)(nil)
)
