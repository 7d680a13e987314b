// Package dataset decodes the local store's records into a consistent
// snapshot of ledger facts that month views and carry-over read from.
package dataset

import (
	"fmt"
	"sort"

	"ledger/internal/core"
	"ledger/internal/recurrence"
)

// Reader is the read side of the local store. Snapshot reads every requested
// type at once and reports the store generation it reflects.
type Reader interface {
	Snapshot(types ...core.RecordType) (map[core.RecordType][]core.Data, uint64)
}

// Snapshot is an immutable view of the ledger at one point in time.
type Snapshot struct {
	// Generation is the store generation the records were read at.
	Generation uint64

	Transactions []core.Transaction
	Templates    []core.Transaction
	Categories   []core.Category
	// CarryOvers holds manual overrides keyed by yearMonthIndex.
	CarryOvers map[string]core.CarryOver
}

// Load decodes every live record. A malformed payload fails the load.
func Load(r Reader) (*Snapshot, error) {
	records, gen := r.Snapshot(core.RecordTransaction, core.RecordRecurringTransaction, core.RecordCarryOver, core.RecordCategory)
	s := &Snapshot{Generation: gen, CarryOvers: map[string]core.CarryOver{}}

	for _, d := range records[core.RecordTransaction] {
		t, err := core.FromData[core.Transaction](d)
		if err != nil {
			return nil, fmt.Errorf("decode transaction %v: %w", d["id"], err)
		}
		s.Transactions = append(s.Transactions, t)
	}
	for _, d := range records[core.RecordRecurringTransaction] {
		t, err := core.FromData[core.Transaction](d)
		if err != nil {
			return nil, fmt.Errorf("decode recurring transaction %v: %w", d["id"], err)
		}
		s.Templates = append(s.Templates, t)
	}
	for _, d := range records[core.RecordCarryOver] {
		c, err := core.FromData[core.CarryOver](d)
		if err != nil {
			return nil, fmt.Errorf("decode carry-over %v: %w", d["id"], err)
		}
		if _, err := c.Month(); err != nil {
			return nil, fmt.Errorf("%w: carry-over %s: %v", core.ErrValidation, c.ID, err)
		}
		// Two overrides for one month: the greater id wins so the pick is stable.
		if prev, ok := s.CarryOvers[c.YearMonthIndex]; !ok || c.ID > prev.ID {
			s.CarryOvers[c.YearMonthIndex] = c
		}
	}
	for _, d := range records[core.RecordCategory] {
		c, err := core.FromData[core.Category](d)
		if err != nil {
			return nil, fmt.Errorf("decode category %v: %w", d["id"], err)
		}
		s.Categories = append(s.Categories, c)
	}
	sort.Slice(s.Categories, func(i, j int) bool { return s.Categories[i].Name < s.Categories[j].Name })
	return s, nil
}

// Cutoff is the earliest date among transactions, template anchors and manual
// carry-over months. ok is false for an empty ledger.
func (s *Snapshot) Cutoff() (cutoff core.Date, ok bool) {
	consider := func(d core.Date) {
		if d.IsZero() {
			return
		}
		if !ok || d.Before(cutoff) {
			cutoff, ok = d, true
		}
	}
	for _, t := range s.Transactions {
		consider(t.Date)
	}
	for _, t := range s.Templates {
		consider(t.Date)
	}
	for _, c := range s.CarryOvers {
		if ym, err := c.Month(); err == nil {
			consider(ym.First())
		}
	}
	return cutoff, ok
}

// ManualCarryOver returns the override for a month, if any.
func (s *Snapshot) ManualCarryOver(ym core.YearMonth) (core.CarryOver, bool) {
	c, ok := s.CarryOvers[ym.String()]
	return c, ok
}

// MonthTransactions returns the persisted transactions of a month plus every
// recurring occurrence dated in it, ordered by date then id.
func (s *Snapshot) MonthTransactions(ym core.YearMonth) ([]core.Transaction, error) {
	key := ym.String()
	var out []core.Transaction
	for _, t := range s.Transactions {
		if t.YearMonthIndex == key {
			out = append(out, t)
		}
	}
	occs, err := s.Occurrences(ym)
	if err != nil {
		return nil, err
	}
	for _, o := range occs {
		out = append(out, o.Transaction)
	}
	SortTransactions(out)
	return out, nil
}

// Occurrences expands every template within the month.
func (s *Snapshot) Occurrences(ym core.YearMonth) ([]recurrence.Occurrence, error) {
	first, last := ym.First(), ym.Last()
	var out []recurrence.Occurrence
	for _, tpl := range s.Templates {
		if tpl.Date.After(last) {
			continue
		}
		occs, err := recurrence.Expand(tpl, first, last)
		if err != nil {
			return nil, err
		}
		out = append(out, occs...)
	}
	return out, nil
}

// SortTransactions orders by date, then id.
func SortTransactions(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if c := txs[i].Date.Compare(txs[j].Date); c != 0 {
			return c < 0
		}
		return txs[i].ID < txs[j].ID
	})
}
