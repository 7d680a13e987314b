package authority

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/protocol"
)

// openPG connects to AUTHORITY_DATABASE_URL and hands out a namespace no
// other test uses. Its rows are removed when the test ends.
func openPG(t *testing.T) (*PGRepository, string) {
	t.Helper()
	url := os.Getenv("AUTHORITY_DATABASE_URL")
	if url == "" {
		t.Skip("AUTHORITY_DATABASE_URL not set")
	}
	ctx := context.Background()
	repo, err := NewPGRepository(ctx, url)
	require.NoError(t, err)

	namespace := fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = repo.pool.Exec(ctx, `DELETE FROM sync_records WHERE namespace = $1`, namespace)
		_ = repo.Close()
	})
	return repo, namespace
}

func roundTripJSON(in any, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func TestPGRepository_EmptyNamespace(t *testing.T) {
	repo, namespace := openPG(t)
	ctx := context.Background()

	require.NoError(t, repo.WithNamespace(ctx, namespace, func(tx Tx) error {
		last, err := tx.LastWrite(ctx)
		require.NoError(t, err)
		assert.True(t, last.IsZero())

		recs, err := tx.Since(ctx, time.Time{})
		require.NoError(t, err)
		assert.Empty(t, recs)

		_, ok, err := tx.Get(ctx, core.RecordCategory, idA)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))

	// EnsureSchema is safe to repeat.
	require.NoError(t, repo.EnsureSchema(ctx))
}

func TestPGRepository_PutGetRoundTrip(t *testing.T) {
	repo, namespace := openPG(t)
	ctx := context.Background()
	stamp := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// Decoded the way a pushed request body would be.
	var pushed core.Data
	require.NoError(t, roundTripJSON(core.Data{
		"name":    "Rent",
		"amount":  "500.00",
		"nested":  map[string]any{"interval": "month", "multiplier": 1},
		"enabled": true,
	}, &pushed))
	rec := StoredRecord{ID: idA, Type: core.RecordRecurringTransaction, Data: pushed, UpdatedAt: stamp}

	require.NoError(t, repo.WithNamespace(ctx, namespace, func(tx Tx) error {
		if err := tx.Put(ctx, rec); err != nil {
			return err
		}
		return tx.Put(ctx, StoredRecord{ID: idB, Type: core.RecordCategory, Deleted: true, Data: core.Data{"name": "gone"}, UpdatedAt: stamp.Add(time.Millisecond)})
	}))

	require.NoError(t, repo.WithNamespace(ctx, namespace, func(tx Tx) error {
		got, ok, err := tx.Get(ctx, core.RecordRecurringTransaction, idA)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, stamp, got.UpdatedAt)
		assert.True(t, sameState(got, rec), "stored %v, pushed %v", got.Data, rec.Data)

		tomb, ok, err := tx.Get(ctx, core.RecordCategory, idB)
		require.NoError(t, err)
		require.True(t, ok)
		assert.True(t, tomb.Deleted)
		assert.Empty(t, tomb.Data)

		last, err := tx.LastWrite(ctx)
		require.NoError(t, err)
		assert.Equal(t, stamp.Add(time.Millisecond), last)

		recs, err := tx.Since(ctx, stamp)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, idB, recs[0].ID)
		return nil
	}))
}

func TestPGRepository_RollbackOnError(t *testing.T) {
	repo, namespace := openPG(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithNamespace(ctx, namespace, func(tx Tx) error {
		require.NoError(t, tx.Put(ctx, StoredRecord{ID: idA, Type: core.RecordCategory, Data: core.Data{"name": "Casa"}, UpdatedAt: time.Now().UTC()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, repo.WithNamespace(ctx, namespace, func(tx Tx) error {
		_, ok, err := tx.Get(ctx, core.RecordCategory, idA)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	}))
}

func TestPGRepository_SerializesNamespace(t *testing.T) {
	repo, namespace := openPG(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.WithNamespace(ctx, namespace, func(tx Tx) error {
				cur, _, err := tx.Get(ctx, core.RecordCategory, idA)
				if err != nil {
					return err
				}
				n, _ := cur.Data["n"].(float64)
				// Widen the window between read and write.
				time.Sleep(10 * time.Millisecond)
				return tx.Put(ctx, StoredRecord{ID: idA, Type: core.RecordCategory, Data: core.Data{"n": n + 1}, UpdatedAt: time.Now().UTC()})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, repo.WithNamespace(ctx, namespace, func(tx Tx) error {
		got, ok, err := tx.Get(ctx, core.RecordCategory, idA)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, float64(workers), got.Data["n"], "no read-modify-write was lost")
		return nil
	}))
}

func TestPGService_IdempotentReplay(t *testing.T) {
	repo, namespace := openPG(t)
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	svc := NewService(repo, WithClock(clock.Now), WithNotifier(notifier))

	req := protocol.Request{Namespace: namespace, Records: []protocol.Record{
		updated(idA, core.Data{"name": "Casa", "icon": "home"}),
		deleted(idB),
	}}
	first, err := svc.Exchange(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T09:00:00.000Z", first.Cursor)

	clock.Advance(time.Hour)
	second, err := svc.Exchange(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.Cursor, second.Cursor)
	assert.ElementsMatch(t, first.Records, second.Records)
	assert.Len(t, notifier.cursors, 1, "a replay writes nothing and notifies nobody")
}
