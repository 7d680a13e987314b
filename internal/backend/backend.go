// Package backend wires the local ledger stack: the storage backend, the
// record store, the carry-over memo, the ledger service and, when an
// authority is configured, the sync engine.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/cache"
	"ledger/internal/carryover"
	"ledger/internal/config"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/storage"
	"ledger/internal/store"
	"ledger/internal/syncer"
)

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string
	Namespace    string

	// CarryOverMemoSize bounds the carry-over memo; 0 disables it.
	CarryOverMemoSize int

	// Authority, optional. Without a URL no sync engine is built.
	AuthorityURL   string
	AuthorityToken string
	SyncTimeout    time.Duration
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	backendType := BackendType(appConfig.Backend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.Backend)
	}
	return Config{
		Type:              backendType,
		SQLiteDBPath:      appConfig.DBPath,
		Namespace:         appConfig.Namespace,
		CarryOverMemoSize: appConfig.CarryOverMemoSize,
		AuthorityURL:      appConfig.AuthorityURL,
		AuthorityToken:    appConfig.AuthorityToken,
		SyncTimeout:       appConfig.SyncTimeout,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == SQLiteBackend && c.SQLiteDBPath == "" {
		return errors.New("SQLite database path is required for sqlite backend")
	}
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	return nil
}

// Backend is the assembled local stack.
type Backend struct {
	Namespace string
	Store     *store.Store
	Ledger    *ledger.Service
	Carry     *carryover.Calculator
	// Caches sweeps the carry-over memo; nil when the memo is disabled.
	Caches *cache.Manager
	// Engine is nil when no authority is configured.
	Engine *syncer.Engine

	cleanup []func() error
}

// Close stops store subscriptions and releases the storage backend.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanup) - 1; i >= 0; i-- {
		if err := b.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Backend, error)
}

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend. The store hydrates in the
// background; callers that need data wait on Store.WaitReady.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := f.logger.WithNamespace(config.Namespace)

	durable, err := f.openStorage(config)
	if err != nil {
		return nil, err
	}

	s := store.Open(ctx, durable, logger)
	b := &Backend{Namespace: config.Namespace, Store: s}
	b.cleanup = append(b.cleanup, s.Close)

	opts := []carryover.Option{carryover.WithNamespace(config.Namespace), carryover.WithLogger(logger)}
	if config.CarryOverMemoSize > 0 {
		memo := cache.NewLRU[carryover.Entry](config.CarryOverMemoSize, time.Hour)
		b.Caches = cache.NewManager(logger)
		b.Caches.Register(memo)
		opts = append(opts, carryover.WithMemo(memo))
	}
	b.Carry = carryover.New(s, opts...)
	stopWatch := b.Carry.Watch(s)
	b.cleanup = append(b.cleanup, func() error { stopWatch(); return nil })

	b.Ledger = ledger.NewService(s, b.Carry, logger)

	if config.AuthorityURL != "" {
		remote := syncer.NewHTTPRemote(config.AuthorityURL, config.AuthorityToken, config.SyncTimeout)
		b.Engine = syncer.NewEngine(s, remote, logger)
	}

	f.logger.Info("Initialized local backend",
		"type", config.Type.String(),
		"db_path", config.SQLiteDBPath,
		log.FieldNamespace, config.Namespace,
		"memo_size", config.CarryOverMemoSize,
		"sync_enabled", b.Engine != nil)
	return b, nil
}

func (f *DefaultFactory) openStorage(config Config) (storage.Backend, error) {
	switch config.Type {
	case SQLiteBackend:
		db, err := storage.NewSQLiteBackend(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
		}
		return db, nil
	case MemoryBackend:
		return storage.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
