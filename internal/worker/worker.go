// Package worker runs the long-lived sync loop of a device: scheduled and
// debounced syncs, authority change notifications and cache sweeps.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cache"
	"ledger/internal/log"
	"ledger/internal/store"
	"ledger/internal/syncer"
)

// Notifications delivers namespace-changed events from the authority.
type Notifications interface {
	ConsumeNamespaceChanged(ctx context.Context, namespace string, handler func(context.Context, *amqp.NamespaceChangedMessage) error) error
}

type Config struct {
	Sync               syncer.ProcessorConfig
	CacheSweepInterval time.Duration
	StopTimeout        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Sync:               syncer.DefaultProcessorConfig(),
		CacheSweepInterval: 5 * time.Minute,
		StopTimeout:        10 * time.Second,
	}
}

// SyncWorker keeps one namespace in sync with the authority.
type SyncWorker struct {
	namespace     string
	store         *store.Store
	processor     *syncer.Processor
	notifications Notifications
	caches        *cache.Manager
	config        Config
	logger        *log.Logger
}

// NewSyncWorker builds a worker over an assembled backend. notifications may
// be nil, in which case only the interval and local writes trigger syncs.
func NewSyncWorker(b *backend.Backend, notifications Notifications, config Config, logger *log.Logger) (*SyncWorker, error) {
	if b.Engine == nil {
		return nil, errors.New("worker requires an authority: set AUTHORITY_URL")
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		namespace:     b.Namespace,
		store:         b.Store,
		processor:     syncer.NewProcessor(b.Engine, b.Namespace, config.Sync, logger),
		notifications: notifications,
		caches:        b.Caches,
		config:        config,
		logger:        logger.WithComponent(log.ComponentWorker).WithNamespace(b.Namespace),
	}, nil
}

// Run blocks until ctx is cancelled or a component fails.
func (w *SyncWorker) Run(ctx context.Context) error {
	stopWatch := w.processor.Watch(w.store)
	defer stopWatch()

	if err := w.processor.Start(ctx); err != nil {
		return fmt.Errorf("start sync processor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if w.notifications != nil {
		g.Go(func() error {
			err := w.notifications.ConsumeNamespaceChanged(gctx, w.namespace, w.HandleNamespaceChanged)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	if w.caches != nil && w.config.CacheSweepInterval > 0 {
		g.Go(func() error { return w.caches.Run(gctx, w.config.CacheSweepInterval) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	w.logger.InfoContext(ctx, "Sync worker started",
		"notifications", w.notifications != nil,
		"cache_sweep", w.caches != nil)

	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), w.config.StopTimeout)
	defer cancel()
	if stopErr := w.processor.Stop(stopCtx); stopErr != nil {
		w.logger.WarnContext(ctx, "Sync processor did not stop cleanly", log.FieldError, stopErr)
	}

	if err != nil {
		w.logger.ErrorContext(ctx, "Sync worker failed", log.FieldError, err)
		return err
	}
	w.logger.InfoContext(ctx, "Sync worker stopped")
	return nil
}

// HandleNamespaceChanged triggers a sync when another device wrote to this
// worker's namespace.
func (w *SyncWorker) HandleNamespaceChanged(ctx context.Context, msg *amqp.NamespaceChangedMessage) error {
	if msg.Namespace != w.namespace {
		w.logger.DebugContext(ctx, "Ignoring change for another namespace", "other", msg.Namespace)
		return nil
	}
	w.logger.InfoContext(ctx, "Authority reported changes",
		log.FieldCursor, msg.Cursor,
		"timestamp", msg.Timestamp)
	w.processor.Trigger()
	return nil
}
