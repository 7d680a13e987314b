package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/protocol"
)

func TestProcessor_Lifecycle(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	_, e := newDevice(t, remoteFunc(func(context.Context, protocol.Request) (protocol.Response, error) {
		calls.Add(1)
		return protocol.Response{Cursor: protocol.SentinelCursor}, nil
	}))

	p := NewProcessor(e, namespace, ProcessorConfig{Interval: time.Hour, Debounce: 10 * time.Millisecond}, nil)
	require.NoError(t, p.Start(ctx))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(ctx), "second start is rejected")

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond, "syncs on startup")

	require.NoError(t, p.Stop(ctx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(ctx), "stopping twice is harmless")
}

func TestProcessor_LocalWritesTriggerDebouncedSync(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	s, e := newDevice(t, remoteFunc(func(_ context.Context, req protocol.Request) (protocol.Response, error) {
		calls.Add(1)
		out := protocol.Response{Records: req.Records, Cursor: protocol.SentinelCursor}
		return out, nil
	}))

	p := NewProcessor(e, namespace, ProcessorConfig{Interval: time.Hour, Debounce: 20 * time.Millisecond}, nil)
	stop := p.Watch(s)
	defer stop()
	require.NoError(t, p.Start(ctx))
	defer p.Stop(ctx)

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	for _, id := range []string{idA, idB} {
		require.NoError(t, s.Set(ctx, core.RecordCategory, id, core.Data{"name": id}, false))
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		recs, err := s.GetUnsynced(ctx)
		return err == nil && len(recs) == 0
	}, time.Second, 5*time.Millisecond)

	// The echo applied by the sync is not itself a trigger.
	settled := calls.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, settled, calls.Load())
}
