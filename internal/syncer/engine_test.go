package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/authority"
	"ledger/internal/core"
	"ledger/internal/protocol"
	"ledger/internal/storage"
	"ledger/internal/store"
)

const (
	namespace = "family"
	idA       = "aaaaaaaaaaaaaaaaaaaa"
	idB       = "bbbbbbbbbbbbbbbbbbbb"
)

// localRemote runs exchanges against an in-process authority. Requests and
// responses pass through JSON so neither side shares maps with the other.
type localRemote struct {
	service *authority.Service
}

func (r localRemote) Exchange(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	var wireReq protocol.Request
	if err := roundTrip(req, &wireReq); err != nil {
		return protocol.Response{}, err
	}
	resp, err := r.service.Exchange(ctx, wireReq)
	if err != nil {
		return protocol.Response{}, err
	}
	var wireResp protocol.Response
	if err := roundTrip(resp, &wireResp); err != nil {
		return protocol.Response{}, err
	}
	return wireResp, nil
}

func roundTrip(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.Open(context.Background(), storage.NewMemoryBackend(), nil)
	require.NoError(t, s.WaitReady(context.Background()))
	return s
}

func newDevice(t *testing.T, remote Remote) (*store.Store, *Engine) {
	t.Helper()
	s := openStore(t)
	return s, NewEngine(s, remote, nil)
}

func unsynced(t *testing.T, s *store.Store) []core.Record {
	t.Helper()
	recs, err := s.GetUnsynced(context.Background())
	require.NoError(t, err)
	return recs
}

type remoteFunc func(context.Context, protocol.Request) (protocol.Response, error)

func (f remoteFunc) Exchange(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	return f(ctx, req)
}

func TestSync_TwoDevicesConverge(t *testing.T) {
	ctx := context.Background()
	remote := localRemote{service: authority.NewService(authority.NewMemoryRepository())}
	laptop, laptopSync := newDevice(t, remote)
	phone, phoneSync := newDevice(t, remote)

	require.NoError(t, laptop.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa"}, false))

	res, err := laptopSync.Sync(ctx, namespace)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 1, res.Pulled, "the echo acknowledges the push")
	assert.Empty(t, unsynced(t, laptop))

	res, err = phoneSync.Sync(ctx, namespace)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pushed)
	assert.Equal(t, 1, res.Pulled)

	got, err := phone.Get(core.RecordCategory, idA)
	require.NoError(t, err)
	assert.Equal(t, "Casa", got["name"])
	assert.Empty(t, unsynced(t, phone), "pulled records are clean")
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	remote := localRemote{service: authority.NewService(authority.NewMemoryRepository())}
	s, e := newDevice(t, remote)

	require.NoError(t, s.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa"}, false))
	first, err := e.Sync(ctx, namespace)
	require.NoError(t, err)

	second, err := e.Sync(ctx, namespace)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Pushed)
	assert.Equal(t, 0, second.Pulled)
	assert.Equal(t, first.Cursor, second.Cursor)

	cursor, ok, err := s.Cursor(ctx, namespace)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first.Cursor, cursor)
}

func TestSync_TombstoneSymmetry(t *testing.T) {
	ctx := context.Background()
	remote := localRemote{service: authority.NewService(authority.NewMemoryRepository())}
	laptop, laptopSync := newDevice(t, remote)
	phone, phoneSync := newDevice(t, remote)

	require.NoError(t, laptop.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa"}, false))
	_, err := laptopSync.Sync(ctx, namespace)
	require.NoError(t, err)
	_, err = phoneSync.Sync(ctx, namespace)
	require.NoError(t, err)

	require.NoError(t, laptop.Delete(ctx, core.RecordCategory, idA))
	assert.Empty(t, laptop.GetAll(core.RecordCategory))
	pending := unsynced(t, laptop)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Deleted())

	_, err = laptopSync.Sync(ctx, namespace)
	require.NoError(t, err)
	assert.Empty(t, unsynced(t, laptop), "the echoed deletion clears the dirty flag")
	_, err = laptop.Get(core.RecordCategory, idA)
	assert.ErrorIs(t, err, core.ErrNotFound, "the tombstone is not resurrected")

	_, err = phoneSync.Sync(ctx, namespace)
	require.NoError(t, err)
	_, err = phone.Get(core.RecordCategory, idA)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, unsynced(t, phone))
}

func TestSync_FailureKeepsCursorAndDirtyFlags(t *testing.T) {
	ctx := context.Background()
	s, e := newDevice(t, remoteFunc(func(context.Context, protocol.Request) (protocol.Response, error) {
		return protocol.Response{}, errors.New("connection refused")
	}))

	require.NoError(t, s.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa"}, false))
	_, err := e.Sync(ctx, namespace)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSync)

	_, ok, err := s.Cursor(ctx, namespace)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, unsynced(t, s), 1)
}

func TestSync_InvalidPulledRecordAbortsAll(t *testing.T) {
	ctx := context.Background()
	s, e := newDevice(t, remoteFunc(func(context.Context, protocol.Request) (protocol.Response, error) {
		return protocol.Response{
			Records: []protocol.Record{
				{ID: idB, Type: core.RecordCategory, State: protocol.StateUpdated, Data: core.Data{"name": "ok"}},
				{ID: "short", Type: core.RecordCategory, State: protocol.StateUpdated, Data: core.Data{}},
			},
			Cursor: "2024-03-01T09:00:00.000Z",
		}, nil
	}))

	require.NoError(t, s.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa"}, false))
	_, err := e.Sync(ctx, namespace)
	assert.ErrorIs(t, err, core.ErrSync)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = s.Get(core.RecordCategory, idB)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, ok, err := s.Cursor(ctx, namespace)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, unsynced(t, s), 1)
}

func TestSync_SendsSentinelThenCursor(t *testing.T) {
	ctx := context.Background()
	var cursors []*string
	_, e := newDevice(t, remoteFunc(func(_ context.Context, req protocol.Request) (protocol.Response, error) {
		cursors = append(cursors, req.Cursor)
		return protocol.Response{Cursor: "2024-03-01T09:00:00.000Z"}, nil
	}))

	_, err := e.Sync(ctx, namespace)
	require.NoError(t, err)
	_, err = e.Sync(ctx, namespace)
	require.NoError(t, err)

	require.Len(t, cursors, 2)
	assert.Nil(t, cursors[0])
	require.NotNil(t, cursors[1])
	assert.Equal(t, "2024-03-01T09:00:00.000Z", *cursors[1])
}

func TestSync_StripsBookkeeping(t *testing.T) {
	ctx := context.Background()
	var pushed []protocol.Record
	s, e := newDevice(t, remoteFunc(func(_ context.Context, req protocol.Request) (protocol.Response, error) {
		pushed = req.Records
		return protocol.Response{Cursor: protocol.SentinelCursor}, nil
	}))

	require.NoError(t, s.Set(ctx, core.RecordCategory, idA, core.Data{"name": "Casa", "dirty": true, "deleted": false}, false))
	_, err := e.Sync(ctx, namespace)
	require.NoError(t, err)

	require.Len(t, pushed, 1)
	assert.Equal(t, core.Data{"name": "Casa"}, pushed[0].Data)
	assert.Equal(t, protocol.StateUpdated, pushed[0].State)
}

func TestSync_ConcurrentCallIsNoOp(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	_, e := newDevice(t, remoteFunc(func(context.Context, protocol.Request) (protocol.Response, error) {
		calls.Add(1)
		close(entered)
		<-release
		return protocol.Response{Cursor: protocol.SentinelCursor}, nil
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := e.Sync(ctx, namespace)
		assert.NoError(t, err)
	}()

	<-entered
	res, err := e.Sync(ctx, namespace)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSync_RemoteLastWriteWins(t *testing.T) {
	ctx := context.Background()
	remote := localRemote{service: authority.NewService(authority.NewMemoryRepository())}
	laptop, laptopSync := newDevice(t, remote)
	phone, phoneSync := newDevice(t, remote)

	require.NoError(t, laptop.Set(ctx, core.RecordCategory, idA, core.Data{"name": "laptop"}, false))
	require.NoError(t, phone.Set(ctx, core.RecordCategory, idA, core.Data{"name": "phone"}, false))

	_, err := laptopSync.Sync(ctx, namespace)
	require.NoError(t, err)
	_, err = phoneSync.Sync(ctx, namespace)
	require.NoError(t, err)
	_, err = laptopSync.Sync(ctx, namespace)
	require.NoError(t, err)

	for _, s := range []*store.Store{laptop, phone} {
		got, err := s.Get(core.RecordCategory, idA)
		require.NoError(t, err)
		assert.Equal(t, "phone", got["name"])
	}
}
