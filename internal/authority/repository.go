package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"ledger/internal/core"
	"ledger/internal/protocol"
)

// StoredRecord is the authority's copy of a record within a namespace.
type StoredRecord struct {
	ID        string
	Type      core.RecordType
	Deleted   bool
	Data      core.Data
	UpdatedAt time.Time
}

// Key identifies a record inside its namespace.
func (r StoredRecord) Key() string { return string(r.Type) + "/" + r.ID }

// Wire converts the record to its protocol form.
func (r StoredRecord) Wire() protocol.Record {
	if r.Deleted {
		return protocol.Record{ID: r.ID, Type: r.Type, State: protocol.StateDeleted, Data: core.Data{}}
	}
	data := r.Data
	if data == nil {
		data = core.Data{}
	}
	return protocol.Record{ID: r.ID, Type: r.Type, State: protocol.StateUpdated, Data: data}
}

// sameState reports whether b would leave a unchanged.
func sameState(a, b StoredRecord) bool {
	if a.Deleted != b.Deleted {
		return false
	}
	if a.Deleted {
		return true
	}
	ja, errA := json.Marshal(a.Data)
	jb, errB := json.Marshal(b.Data)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

// Tx is a unit of work scoped to one namespace.
type Tx interface {
	Get(ctx context.Context, t core.RecordType, id string) (StoredRecord, bool, error)
	Put(ctx context.Context, rec StoredRecord) error
	// LastWrite returns the newest write timestamp, zero for an empty namespace.
	LastWrite(ctx context.Context) (time.Time, error)
	// Since returns records written strictly after the given time, oldest first.
	Since(ctx context.Context, after time.Time) ([]StoredRecord, error)
}

// Repository serializes units of work per namespace. fn's writes commit
// together when it returns nil and are discarded otherwise.
type Repository interface {
	WithNamespace(ctx context.Context, namespace string, fn func(Tx) error) error
	Close() error
}
