package worker

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/authority"
	"ledger/internal/backend"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/syncer"
)

const (
	secret    = "0123456789abcdef0123456789abcdef"
	namespace = "family"
)

type handlerFunc = func(context.Context, *amqp.NamespaceChangedMessage) error

// fakeNotifications hands the registered handler to the test and blocks like
// a real consumer until cancelled.
type fakeNotifications struct {
	handlers chan handlerFunc
}

func (f *fakeNotifications) ConsumeNamespaceChanged(ctx context.Context, _ string, handler handlerFunc) error {
	f.handlers <- handler
	<-ctx.Done()
	return ctx.Err()
}

func newDevice(t *testing.T, url, token string) *backend.Backend {
	t.Helper()
	b, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{
		Type:              backend.MemoryBackend,
		Namespace:         namespace,
		CarryOverMemoSize: 24,
		AuthorityURL:      url,
		AuthorityToken:    token,
		SyncTimeout:       5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	require.NoError(t, b.Store.WaitReady(context.Background()))
	return b
}

func newAuthority(t *testing.T) (url, token string) {
	t.Helper()
	auth := authority.NewAuthenticator(secret)
	svc := authority.NewService(authority.NewMemoryRepository())
	srv := httptest.NewServer(authority.NewRouter(svc, auth, log.Discard(), authority.RouterOptions{}))
	t.Cleanup(srv.Close)
	token, err := auth.IssueToken(namespace, "test", time.Hour)
	require.NoError(t, err)
	return srv.URL, token
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Sync = syncer.ProcessorConfig{Interval: time.Hour, Debounce: 10 * time.Millisecond, Timeout: 5 * time.Second}
	cfg.CacheSweepInterval = 10 * time.Millisecond
	cfg.StopTimeout = time.Second
	return cfg
}

func TestNewSyncWorker_RequiresAuthority(t *testing.T) {
	b, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend, Namespace: namespace})
	require.NoError(t, err)
	defer b.Close()

	_, err = NewSyncWorker(b, nil, testConfig(), nil)
	assert.Error(t, err)
}

func TestSyncWorker_NotificationPullsRemoteChanges(t *testing.T) {
	url, token := newAuthority(t)
	laptop := newDevice(t, url, token)
	phone := newDevice(t, url, token)

	notifications := &fakeNotifications{handlers: make(chan handlerFunc, 1)}
	w, err := NewSyncWorker(phone, notifications, testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var handler handlerFunc
	select {
	case handler = <-notifications.handlers:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer not started")
	}

	txID, err := laptop.Ledger.AddTransaction(ctx, core.Transaction{
		Type: core.Expense, Name: "Rent", Amount: decimal.NewFromInt(700), Date: core.MustParseDate("2025-02-01"),
	})
	require.NoError(t, err)
	_, err = laptop.Engine.Sync(ctx, namespace)
	require.NoError(t, err)

	require.NoError(t, handler(ctx, amqp.NewNamespaceChangedMessage(namespace, "")))
	assert.Eventually(t, func() bool {
		_, err := phone.Store.Get(core.RecordTransaction, txID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestSyncWorker_LocalWritesArePushed(t *testing.T) {
	url, token := newAuthority(t)
	phone := newDevice(t, url, token)

	w, err := NewSyncWorker(phone, nil, testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	_, err = phone.Ledger.SaveCategory(ctx, core.Category{Name: "Food"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		recs, err := phone.Store.GetUnsynced(ctx)
		return err == nil && len(recs) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandleNamespaceChanged_OtherNamespace(t *testing.T) {
	url, token := newAuthority(t)
	w, err := NewSyncWorker(newDevice(t, url, token), nil, testConfig(), nil)
	require.NoError(t, err)

	msg := amqp.NewNamespaceChangedMessage("someone-else", "")
	assert.NoError(t, w.HandleNamespaceChanged(context.Background(), msg))
}
