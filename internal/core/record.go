package core

import (
	"encoding/json"
	"fmt"
	"maps"
)

// RecordType is the closed set of persisted record kinds.
type RecordType string

const (
	RecordCategory             RecordType = "category"
	RecordTransaction          RecordType = "transaction"
	RecordRecurringTransaction RecordType = "recurring-transaction"
	RecordCarryOver            RecordType = "carry-over"
)

// RecordTypes returns every valid record type.
func RecordTypes() []RecordType {
	return []RecordType{RecordCategory, RecordTransaction, RecordRecurringTransaction, RecordCarryOver}
}

func (t RecordType) String() string { return string(t) }

// IsValid returns true if t belongs to the closed set.
func (t RecordType) IsValid() bool {
	switch t {
	case RecordCategory, RecordTransaction, RecordRecurringTransaction, RecordCarryOver:
		return true
	default:
		return false
	}
}

// Data is a record payload: a string-keyed map of JSON values.
type Data map[string]any

// Clone returns a shallow copy.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	return maps.Clone(d)
}

// State is either Active or Tombstone.
type State interface {
	isState()
}

// Active carries the live payload of a record.
type Active struct {
	Data Data
}

// Tombstone marks a soft-deleted record. It carries no payload.
type Tombstone struct{}

func (Active) isState()    {}
func (Tombstone) isState() {}

// Record is the persistence unit.
type Record struct {
	ID    string
	Type  RecordType
	State State
	Dirty bool
}

// Deleted reports whether the record is a tombstone.
func (r Record) Deleted() bool {
	_, ok := r.State.(Tombstone)
	return ok
}

// Data returns the payload, empty for tombstones.
func (r Record) Data() Data {
	if a, ok := r.State.(Active); ok && a.Data != nil {
		return a.Data
	}
	return Data{}
}

// ToData converts a domain value into a record payload.
func ToData(v any) (Data, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return d, nil
}

// FromData decodes a record payload into a domain value.
func FromData[T any](d Data) (T, error) {
	var v T
	b, err := json.Marshal(d)
	if err != nil {
		return v, fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("%w: decode payload: %v", ErrValidation, err)
	}
	return v, nil
}
