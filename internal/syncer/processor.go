package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/log"
	"ledger/internal/store"
)

// ProcessorConfig holds configuration for the sync processor
type ProcessorConfig struct {
	// Interval is how often to sync when nothing triggers it (default: 30s)
	Interval time.Duration

	// Debounce delays a triggered sync until writes stop for this long (default: 2s)
	Debounce time.Duration

	// Timeout bounds a single sync call (default: 15s)
	Timeout time.Duration
}

// DefaultProcessorConfig returns sensible defaults
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Interval: 30 * time.Second,
		Debounce: 2 * time.Second,
		Timeout:  15 * time.Second,
	}
}

// Processor runs the engine on an interval and shortly after local writes.
type Processor struct {
	engine    *Engine
	namespace string
	config    ProcessorConfig
	logger    *log.Logger

	trigger chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewProcessor(engine *Engine, namespace string, config ProcessorConfig, logger *log.Logger) *Processor {
	def := DefaultProcessorConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Debounce < 0 {
		config.Debounce = 0
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Processor{
		engine:    engine,
		namespace: namespace,
		config:    config,
		logger:    logger.WithComponent(log.ComponentSync).WithNamespace(namespace),
		trigger:   make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Sync processor started",
		"interval", p.config.Interval,
		"debounce", p.config.Debounce)
	return nil
}

// Stop stops the processor and waits for the loop to exit.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning returns whether the processor is currently running
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger requests a sync after the debounce delay. It never blocks.
func (p *Processor) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Watch triggers a sync for every local write to s. Writes applied by a sync
// are ignored.
func (p *Processor) Watch(s *store.Store) (stop func()) {
	return s.Subscribe(func(ch store.Change) {
		if !ch.Synced {
			p.Trigger()
		}
	})
}

func (p *Processor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	p.syncOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.syncOnce(ctx)
		case <-p.trigger:
			debounce.Reset(p.config.Debounce)
		case <-debounce.C:
			p.syncOnce(ctx)
		}
	}
}

func (p *Processor) syncOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	if _, err := p.engine.Sync(ctx, p.namespace); err != nil {
		p.logger.WarnContext(ctx, "Scheduled sync failed, will retry", log.FieldError, err)
	}
}
