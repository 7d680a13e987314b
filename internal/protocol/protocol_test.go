package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

const goodID = "abcdefghij0123456789"

func TestRequestJSONNullCursor(t *testing.T) {
	req := Request{Namespace: "family", Records: []Record{}}
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"records":[],"namespace":"family","cursor":null}`, string(b))
	assert.Equal(t, SentinelCursor, req.CursorOrSentinel())

	c := "2025-01-01T10:00:00.000Z"
	req.Cursor = &c
	assert.Equal(t, c, req.CursorOrSentinel())
}

func TestFromRecord(t *testing.T) {
	live := core.Record{ID: goodID, Type: core.RecordCategory, State: core.Active{Data: core.Data{"name": "Casa"}}, Dirty: true}
	got := FromRecord(live)
	assert.Equal(t, StateUpdated, got.State)
	assert.Equal(t, "Casa", got.Data["name"])

	dead := core.Record{ID: goodID, Type: core.RecordCategory, State: core.Tombstone{}, Dirty: true}
	got = FromRecord(dead)
	assert.True(t, got.Deleted())
	assert.Empty(t, got.Data)
}

func TestRecordValidate(t *testing.T) {
	r := Record{ID: goodID, Type: core.RecordTransaction, State: StateUpdated, Data: core.Data{}}
	assert.NoError(t, r.Validate())

	r.State = "patched"
	assert.ErrorIs(t, r.Validate(), core.ErrValidation)

	r.State = StateDeleted
	r.ID = "x"
	assert.ErrorIs(t, r.Validate(), core.ErrValidation)
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 30, 15, 123456789, time.FixedZone("CET", 3600))
	c := FormatCursor(ts)
	assert.Equal(t, "2025-03-01T11:30:15.123Z", c)

	back, err := ParseCursor(c)
	require.NoError(t, err)
	assert.Equal(t, ts.Truncate(time.Millisecond).UnixMilli(), back.UnixMilli())

	_, err = ParseCursor("yesterday")
	assert.ErrorIs(t, err, core.ErrValidation)

	assert.Less(t, SentinelCursor, c)
}
