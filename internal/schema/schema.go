// Package schema is the record validation boundary shared by the local store
// and the authority.
package schema

import (
	"encoding/json"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/id"
)

// MaxDataBytes bounds the JSON-serialised size of a record payload.
const MaxDataBytes = 2048

// Validate checks a record's identity and payload. Errors wrap core.ErrValidation.
func Validate(recordID string, t core.RecordType, data core.Data) error {
	if len(recordID) != id.Length {
		return fmt.Errorf("%w: id %q must be %d characters", core.ErrValidation, recordID, id.Length)
	}
	if !t.IsValid() {
		return fmt.Errorf("%w: unknown record type %q", core.ErrValidation, t)
	}
	if data == nil {
		return nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: data is not serialisable: %v", core.ErrValidation, err)
	}
	if len(b) > MaxDataBytes {
		return fmt.Errorf("%w: data is %d bytes, max %d", core.ErrValidation, len(b), MaxDataBytes)
	}
	return nil
}

// ValidateRecord validates a store record. Tombstones are checked for identity only.
func ValidateRecord(r core.Record) error {
	return Validate(r.ID, r.Type, r.Data())
}

// DecodeData parses a raw JSON payload and validates it. Anything that is not
// a JSON object is rejected.
func DecodeData(recordID string, t core.RecordType, raw []byte) (core.Data, error) {
	if len(raw) > MaxDataBytes {
		return nil, fmt.Errorf("%w: data is %d bytes, max %d", core.ErrValidation, len(raw), MaxDataBytes)
	}
	var data core.Data
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("%w: data is not a JSON object: %v", core.ErrValidation, err)
		}
	}
	if data == nil {
		data = core.Data{}
	}
	if err := Validate(recordID, t, data); err != nil {
		return nil, err
	}
	return data, nil
}
