// Package protocol defines the sync wire contract between a device and the
// authority.
package protocol

import (
	"fmt"
	"time"

	"ledger/internal/core"
	"ledger/internal/schema"
)

// State is the wire form of a record's lifecycle.
type State string

const (
	StateUpdated State = "updated"
	StateDeleted State = "deleted"
)

// CursorLayout is the authority's write-timestamp format. Cursors in this
// layout sort lexicographically in time order.
const CursorLayout = "2006-01-02T15:04:05.000Z"

// SentinelCursor is sent when a namespace has never pulled.
const SentinelCursor = "1970-01-01T00:00:00.000Z"

// Record is one entry of a sync request or response.
type Record struct {
	ID    string          `json:"id"`
	Type  core.RecordType `json:"type"`
	State State           `json:"state"`
	Data  core.Data       `json:"data"`
}

// Request is pushed by a device.
type Request struct {
	Records   []Record `json:"records"`
	Namespace string   `json:"namespace"`
	Cursor    *string  `json:"cursor"`
}

// Response carries every record written after the request cursor.
type Response struct {
	Records []Record `json:"records"`
	Cursor  string   `json:"cursor"`
}

// Deleted reports whether the record is a tombstone.
func (r Record) Deleted() bool { return r.State == StateDeleted }

// Validate checks the record against the shared schema.
func (r Record) Validate() error {
	switch r.State {
	case StateUpdated, StateDeleted:
	default:
		return fmt.Errorf("%w: record %s has unknown state %q", core.ErrValidation, r.ID, r.State)
	}
	return schema.Validate(r.ID, r.Type, r.Data)
}

// FromRecord converts a store record to its wire form.
func FromRecord(r core.Record) Record {
	if r.Deleted() {
		return Record{ID: r.ID, Type: r.Type, State: StateDeleted, Data: core.Data{}}
	}
	return Record{ID: r.ID, Type: r.Type, State: StateUpdated, Data: r.Data()}
}

// CursorOrSentinel returns the cursor value, or the sentinel when nil or empty.
func (r Request) CursorOrSentinel() string {
	if r.Cursor == nil || *r.Cursor == "" {
		return SentinelCursor
	}
	return *r.Cursor
}

// FormatCursor renders a write timestamp as a cursor.
func FormatCursor(t time.Time) string {
	return t.UTC().Format(CursorLayout)
}

// ParseCursor parses a cursor back into a timestamp.
func ParseCursor(s string) (time.Time, error) {
	t, err := time.Parse(CursorLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid cursor %q", core.ErrValidation, s)
	}
	return t, nil
}
