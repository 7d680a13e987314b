// Package store is the local record store: a persisted backend mirrored by an
// in-memory cache that readers observe. It is the only writer of local data
// and the only place dirty flags change.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/schema"
	"ledger/internal/storage"
)

type (
	// Write is one element of a batch. State is core.Active or core.Tombstone.
	Write struct {
		Type   core.RecordType
		ID     string
		State  core.State
		Synced bool
	}

	// Change is published to subscribers after a write commits.
	Change struct {
		Type     core.RecordType
		ID       string
		Data     core.Data
		Previous core.Data
		Deleted  bool
		Synced   bool
	}

	// Quarantine describes a persisted record that failed validation and is
	// therefore hidden from readers and never synced.
	Quarantine struct {
		Type   core.RecordType
		ID     string
		Reason string
		At     time.Time
	}
)

type Store struct {
	backend storage.Backend
	logger  *log.Logger

	// writeMu serialises writes so backend commit order matches cache order.
	writeMu sync.Mutex

	cacheMu sync.RWMutex
	cache   map[core.RecordType]map[string]core.Data
	// generation counts cache mutations. It only moves under cacheMu and
	// before subscribers hear of the change.
	generation atomic.Uint64

	ready      atomic.Bool
	readyCh    chan struct{}
	hydrateErr error

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int

	quarantineMu sync.Mutex
	quarantine   map[string]Quarantine
}

// Open returns a store over backend and starts hydrating its cache in the
// background. Until hydration finishes the store reads as empty and writes
// wait.
func Open(ctx context.Context, backend storage.Backend, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Store{
		backend:    backend,
		logger:     logger.WithComponent(log.ComponentStore),
		cache:      map[core.RecordType]map[string]core.Data{},
		readyCh:    make(chan struct{}),
		subs:       map[int]func(Change){},
		quarantine: map[string]Quarantine{},
	}
	go s.hydrate(context.WithoutCancel(ctx))
	return s
}

func (s *Store) hydrate(ctx context.Context) {
	defer close(s.readyCh)

	start := time.Now()
	rows, err := s.backend.Load(ctx)
	if err != nil {
		s.hydrateErr = fmt.Errorf("%w: hydrate: %w", core.ErrStorage, err)
		s.logger.ErrorContext(ctx, "Store hydration failed", log.FieldOperation, log.OpHydrate, log.FieldError, err)
		return
	}

	cache := map[core.RecordType]map[string]core.Data{}
	loaded := 0
	for _, row := range rows {
		if row.Deleted {
			continue
		}
		data, err := schema.DecodeData(row.ID, row.Type, row.Data)
		if err != nil {
			s.quarantineRow(ctx, row, err)
			continue
		}
		byID := cache[row.Type]
		if byID == nil {
			byID = map[string]core.Data{}
			cache[row.Type] = byID
		}
		byID[row.ID] = data
		loaded++
	}

	s.cacheMu.Lock()
	s.cache = cache
	s.generation.Add(1)
	s.cacheMu.Unlock()
	s.ready.Store(true)

	s.logger.InfoContext(ctx, "Store hydrated",
		log.FieldOperation, log.OpHydrate,
		log.FieldCount, loaded,
		log.FieldDuration, time.Since(start).Milliseconds())
}

// Ready reports whether hydration has completed successfully.
func (s *Store) Ready() bool { return s.ready.Load() }

// WaitReady blocks until hydration finishes. It returns the hydration error, if any.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return s.hydrateErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Set upserts a record, clearing any tombstone. The record is dirty unless synced.
func (s *Store) Set(ctx context.Context, t core.RecordType, id string, data core.Data, synced bool) error {
	return s.SetBatch(ctx, []Write{{Type: t, ID: id, State: core.Active{Data: data}, Synced: synced}})
}

// Delete tombstones a cached record. The tombstone is dirty until the
// authority echoes it back.
func (s *Store) Delete(ctx context.Context, t core.RecordType, id string) error {
	if err := s.WaitReady(ctx); err != nil {
		return err
	}
	if _, err := s.Get(t, id); err != nil {
		return err
	}
	return s.SetBatch(ctx, []Write{{Type: t, ID: id, State: core.Tombstone{}}})
}

// DeleteSynced records a tombstone received from the authority.
func (s *Store) DeleteSynced(ctx context.Context, t core.RecordType, id string) error {
	return s.SetBatch(ctx, []Write{{Type: t, ID: id, State: core.Tombstone{}, Synced: true}})
}

// SetBatch commits every write in one backend transaction and then updates
// the cache. On error nothing is written and the cache is untouched.
func (s *Store) SetBatch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	if err := s.WaitReady(ctx); err != nil {
		return err
	}

	rows := make([]storage.Row, 0, len(writes))
	for _, w := range writes {
		row, err := toRow(w)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	s.writeMu.Lock()
	if err := s.backend.Apply(ctx, rows); err != nil {
		s.writeMu.Unlock()
		s.logger.ErrorContext(ctx, "Store write failed", log.FieldCount, len(rows), log.FieldError, err)
		return fmt.Errorf("%w: write %d records: %w", core.ErrStorage, len(rows), err)
	}
	changes := s.applyToCache(writes)
	s.writeMu.Unlock()

	s.release(rows)

	s.publish(changes)
	return nil
}

func toRow(w Write) (storage.Row, error) {
	row := storage.Row{Type: w.Type, ID: w.ID, Dirty: !w.Synced}
	switch st := w.State.(type) {
	case core.Tombstone:
		if err := schema.Validate(w.ID, w.Type, nil); err != nil {
			return row, err
		}
		row.Deleted = true
		row.Data = []byte("{}")
	case core.Active:
		data := st.Data
		if data == nil {
			data = core.Data{}
		}
		if err := schema.Validate(w.ID, w.Type, data); err != nil {
			return row, err
		}
		b, err := json.Marshal(data)
		if err != nil {
			return row, fmt.Errorf("%w: encode %s/%s: %v", core.ErrValidation, w.Type, w.ID, err)
		}
		row.Data = b
	default:
		return row, fmt.Errorf("%w: record %s/%s has no state", core.ErrValidation, w.Type, w.ID)
	}
	return row, nil
}

func (s *Store) applyToCache(writes []Write) []Change {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	changes := make([]Change, 0, len(writes))
	for _, w := range writes {
		byID := s.cache[w.Type]
		if byID == nil {
			byID = map[string]core.Data{}
			s.cache[w.Type] = byID
		}
		ch := Change{Type: w.Type, ID: w.ID, Previous: byID[w.ID], Synced: w.Synced}
		if a, ok := w.State.(core.Active); ok {
			data := a.Data.Clone()
			byID[w.ID] = data
			ch.Data = data
		} else {
			delete(byID, w.ID)
			ch.Deleted = true
		}
		changes = append(changes, ch)
	}
	s.generation.Add(1)
	return changes
}

// Get returns a cached record. Tombstones and unknown ids are core.ErrNotFound.
func (s *Store) Get(t core.RecordType, id string) (core.Data, error) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	data, ok := s.cache[t][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", core.ErrNotFound, t, id)
	}
	return data.Clone(), nil
}

// GetAll returns every live record of a type in no particular order.
func (s *Store) GetAll(t core.RecordType) []core.Data {
	records, _ := s.Snapshot(t)
	return records[t]
}

// Snapshot returns every live record of the given types read under one lock,
// together with the generation they reflect.
func (s *Store) Snapshot(types ...core.RecordType) (map[core.RecordType][]core.Data, uint64) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	out := make(map[core.RecordType][]core.Data, len(types))
	for _, t := range types {
		records := make([]core.Data, 0, len(s.cache[t]))
		for _, data := range s.cache[t] {
			records = append(records, data.Clone())
		}
		out[t] = records
	}
	return out, s.generation.Load()
}

// Generation reports how many times the cache has changed. Two reads with the
// same generation saw the same records.
func (s *Store) Generation() uint64 { return s.generation.Load() }

// GetUnsynced scans the backend for dirty records, tombstones included.
// Records failing validation are quarantined and left out.
func (s *Store) GetUnsynced(ctx context.Context) ([]core.Record, error) {
	rows, err := s.backend.LoadDirty(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load dirty records: %w", core.ErrStorage, err)
	}
	out := make([]core.Record, 0, len(rows))
	for _, row := range rows {
		rec := core.Record{ID: row.ID, Type: row.Type, Dirty: true}
		if row.Deleted {
			if err := schema.Validate(row.ID, row.Type, nil); err != nil {
				s.quarantineRow(ctx, row, err)
				continue
			}
			rec.State = core.Tombstone{}
		} else {
			data, err := schema.DecodeData(row.ID, row.Type, row.Data)
			if err != nil {
				s.quarantineRow(ctx, row, err)
				continue
			}
			rec.State = core.Active{Data: data}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) quarantineRow(ctx context.Context, row storage.Row, err error) {
	s.quarantineMu.Lock()
	s.quarantine[row.Key()] = Quarantine{Type: row.Type, ID: row.ID, Reason: err.Error(), At: time.Now()}
	s.quarantineMu.Unlock()

	fields := log.NewFields().
		WithOperation(log.OpValidate).
		WithRecord(string(row.Type), row.ID).
		WithError(err)
	s.logger.ErrorContext(ctx, "Record quarantined", fields.ToSlice()...)
}

// release drops quarantine entries for rows that were just rewritten.
func (s *Store) release(rows []storage.Row) {
	s.quarantineMu.Lock()
	defer s.quarantineMu.Unlock()
	for _, r := range rows {
		delete(s.quarantine, r.Key())
	}
}

// Quarantined lists records dropped by validation, ordered by type and id.
func (s *Store) Quarantined() []Quarantine {
	s.quarantineMu.Lock()
	defer s.quarantineMu.Unlock()
	out := make([]Quarantine, 0, len(s.quarantine))
	for _, q := range s.quarantine {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cursor returns the last persisted sync cursor of a namespace.
func (s *Store) Cursor(ctx context.Context, namespace string) (string, bool, error) {
	c, ok, err := s.backend.Cursor(ctx, namespace)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return c, ok, nil
}

// SetCursor persists the sync cursor of a namespace.
func (s *Store) SetCursor(ctx context.Context, namespace, cursor string) error {
	if err := s.backend.SetCursor(ctx, namespace, cursor); err != nil {
		return fmt.Errorf("%w: %w", core.ErrStorage, err)
	}
	return nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
