package authority

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledger/internal/core"
)

// MemoryRepository keeps every namespace in process memory.
type MemoryRepository struct {
	mu         sync.Mutex
	namespaces map[string]map[string]StoredRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{namespaces: make(map[string]map[string]StoredRecord)}
}

func (m *MemoryRepository) WithNamespace(ctx context.Context, namespace string, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	base := m.namespaces[namespace]
	tx := &memoryTx{base: base, pending: make(map[string]StoredRecord)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.pending) == 0 {
		return nil
	}
	if base == nil {
		base = make(map[string]StoredRecord, len(tx.pending))
		m.namespaces[namespace] = base
	}
	for k, rec := range tx.pending {
		base[k] = rec
	}
	return nil
}

func (m *MemoryRepository) Close() error { return nil }

type memoryTx struct {
	base    map[string]StoredRecord
	pending map[string]StoredRecord
}

func (t *memoryTx) Get(_ context.Context, typ core.RecordType, id string) (StoredRecord, bool, error) {
	key := StoredRecord{Type: typ, ID: id}.Key()
	if rec, ok := t.pending[key]; ok {
		return rec, true, nil
	}
	rec, ok := t.base[key]
	return rec, ok, nil
}

func (t *memoryTx) Put(_ context.Context, rec StoredRecord) error {
	rec.Data = rec.Data.Clone()
	t.pending[rec.Key()] = rec
	return nil
}

func (t *memoryTx) LastWrite(context.Context) (time.Time, error) {
	var last time.Time
	for _, rec := range t.merged() {
		if rec.UpdatedAt.After(last) {
			last = rec.UpdatedAt
		}
	}
	return last, nil
}

func (t *memoryTx) Since(_ context.Context, after time.Time) ([]StoredRecord, error) {
	var out []StoredRecord
	for _, rec := range t.merged() {
		if rec.UpdatedAt.After(after) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].Key() < out[j].Key()
	})
	return out, nil
}

func (t *memoryTx) merged() map[string]StoredRecord {
	out := make(map[string]StoredRecord, len(t.base)+len(t.pending))
	for k, rec := range t.base {
		out[k] = rec
	}
	for k, rec := range t.pending {
		out[k] = rec
	}
	return out
}
