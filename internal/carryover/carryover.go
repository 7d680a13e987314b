// Package carryover computes the balance rolled into each month from the
// months before it.
package carryover

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/dataset"
	"ledger/internal/log"
)

// IDPrefix prefixes the synthetic carry-over transaction id.
const IDPrefix = "carryover-"

// Name labels the synthetic carry-over transaction.
const Name = "Carry-over"

// Entry is a memoised month result. An empty Kind means the month precedes
// the dataset cutoff.
type Entry struct {
	Amount decimal.Decimal
	Kind   core.CarryOverKind
}

// Source is the store a calculator reads. Generation tells whether a loaded
// snapshot still matches it.
type Source interface {
	dataset.Reader
	Generation() uint64
}

type Calculator struct {
	source    Source
	namespace string
	logger    *log.Logger

	// memoMu orders memo writes against invalidation.
	memoMu sync.Mutex
	memo   cache.Cache[Entry]
}

type Option func(*Calculator)

// WithMemo caches month results. Results must be invalidated through
// Invalidate or Watch when records change.
func WithMemo(memo cache.Cache[Entry]) Option {
	return func(c *Calculator) { c.memo = memo }
}

// WithNamespace scopes memo keys, so one memo can serve several ledgers.
func WithNamespace(namespace string) Option {
	return func(c *Calculator) { c.namespace = namespace }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Calculator) { c.logger = logger.WithComponent(log.ComponentCarryOver) }
}

func New(source Source, opts ...Option) *Calculator {
	c := &Calculator{source: source, logger: log.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CarryOverFor returns the synthetic carryover transaction of a month.
func (c *Calculator) CarryOverFor(ctx context.Context, year int, month time.Month) (core.Transaction, error) {
	snap, err := dataset.Load(c.source)
	if err != nil {
		return core.Transaction{}, err
	}
	return c.ForMonth(ctx, snap, core.YearMonth{Year: year, Month: month})
}

// ForMonth computes against an already loaded snapshot. The memo is consulted
// and filled only while the snapshot is current.
func (c *Calculator) ForMonth(ctx context.Context, snap *dataset.Snapshot, ym core.YearMonth) (core.Transaction, error) {
	start := time.Now()
	cutoff, ok := snap.Cutoff()
	e, err := c.compute(snap, ym, cutoff, ok)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("carry-over for %s: %w", ym, err)
	}
	c.logger.DebugContext(ctx, "Carry-over computed",
		log.FieldMonth, ym.String(),
		"amount", e.Amount.String(),
		"kind", string(e.Kind),
		log.FieldDuration, time.Since(start).Milliseconds())
	return transaction(ym, e), nil
}

func (c *Calculator) compute(snap *dataset.Snapshot, ym core.YearMonth, cutoff core.Date, hasCutoff bool) (Entry, error) {
	key := c.key(ym)
	if c.memo != nil && c.current(snap) {
		if e, ok := c.memo.Get(key); ok {
			return e, nil
		}
	}

	var e Entry
	switch manual, isManual := snap.ManualCarryOver(ym); {
	case !hasCutoff || ym.Before(cutoff.YearMonth()):
		e = Entry{Amount: decimal.Zero}
	case isManual:
		e = Entry{Amount: manual.Amount.Round(2), Kind: core.CarryOverManual}
	default:
		prev := ym.Prev()
		prevEntry, err := c.compute(snap, prev, cutoff, hasCutoff)
		if err != nil {
			return Entry{}, err
		}
		txs, err := snap.MonthTransactions(prev)
		if err != nil {
			return Entry{}, err
		}
		txs = append(txs, transaction(prev, prevEntry))
		e = Entry{Amount: core.Summarize(txs).Total, Kind: core.CarryOverAuto}
	}

	c.remember(snap, key, e)
	return e, nil
}

// remember memoises e unless the source has moved on since snap was loaded.
// A write always bumps the generation before Invalidate runs, so checking
// under memoMu keeps a stale result out of the memo.
func (c *Calculator) remember(snap *dataset.Snapshot, key string, e Entry) {
	if c.memo == nil {
		return
	}
	c.memoMu.Lock()
	defer c.memoMu.Unlock()
	if !c.current(snap) {
		return
	}
	c.memo.Set(key, e)
}

func (c *Calculator) current(snap *dataset.Snapshot) bool {
	return c.source == nil || c.source.Generation() == snap.Generation
}

func (c *Calculator) key(ym core.YearMonth) string {
	return c.namespace + "|" + ym.String()
}

func transaction(ym core.YearMonth, e Entry) core.Transaction {
	t := core.Transaction{
		ID:             IDPrefix + ym.String(),
		Type:           core.Rollover,
		Name:           Name,
		Amount:         e.Amount,
		Date:           ym.First(),
		YearMonthIndex: ym.String(),
	}
	if e.Kind != "" {
		t.CarryOver = &core.CarryOverMarker{Type: e.Kind}
	}
	return t
}
