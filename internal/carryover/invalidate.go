package carryover

import (
	"strings"

	"ledger/internal/core"
	"ledger/internal/store"
)

// Invalidate drops memoised months a change can affect: the earliest month
// the old or new payload touches, and every month after it.
func (c *Calculator) Invalidate(ch store.Change) {
	if c.memo == nil || ch.Type == core.RecordCategory {
		return
	}
	from, ok := earliestMonth(ch.Type, ch.Data, ch.Previous)
	prefix := c.namespace + "|"
	c.memoMu.Lock()
	defer c.memoMu.Unlock()
	c.memo.DeleteFunc(func(key string) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		// Unknown month: drop the whole namespace.
		return !ok || strings.TrimPrefix(key, prefix) >= from.String()
	})
}

// Watch keeps the memo in step with a store until the returned function is called.
func (c *Calculator) Watch(s *store.Store) (stop func()) {
	return s.Subscribe(c.Invalidate)
}

func earliestMonth(t core.RecordType, payloads ...core.Data) (core.YearMonth, bool) {
	var (
		earliest core.YearMonth
		found    bool
	)
	for _, d := range payloads {
		if d == nil {
			continue
		}
		ym, ok := monthOf(t, d)
		if !ok {
			return core.YearMonth{}, false
		}
		if !found || ym.Before(earliest) {
			earliest, found = ym, true
		}
	}
	return earliest, found
}

func monthOf(t core.RecordType, d core.Data) (core.YearMonth, bool) {
	if t != core.RecordRecurringTransaction {
		if s, ok := d["yearMonthIndex"].(string); ok {
			if ym, err := core.ParseYearMonth(s); err == nil {
				return ym, true
			}
		}
	}
	if s, ok := d["date"].(string); ok {
		if date, err := core.ParseDate(s); err == nil {
			return date.YearMonth(), true
		}
	}
	return core.YearMonth{}, false
}
