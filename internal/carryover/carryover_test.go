package carryover

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/dataset"
	"ledger/internal/storage"
	"ledger/internal/store"
)

const (
	idSalary = "salary00000000000000"
	idRent   = "rent0000000000000000"
	idFood   = "food0000000000000000"
	idManual = "manual00000000000000"
	idSeries = "series00000000000000"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *store.Store
}

func newFixture(t *testing.T) *fixture {
	ctx := context.Background()
	s := store.Open(ctx, storage.NewMemoryBackend(), nil)
	require.NoError(t, s.WaitReady(ctx))
	return &fixture{t: t, ctx: ctx, store: s}
}

func (f *fixture) put(recordType core.RecordType, id string, v any) {
	f.t.Helper()
	data, err := core.ToData(v)
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.Set(f.ctx, recordType, id, data, false))
}

func (f *fixture) tx(id, date string, typ core.TransactionType, amount string) {
	f.t.Helper()
	t := core.Transaction{ID: id, Type: typ, Name: id, Amount: dec(amount), Date: core.MustParseDate(date)}
	t.Normalize()
	f.put(core.RecordTransaction, id, t)
}

func (f *fixture) manual(month, amount string) {
	f.t.Helper()
	f.put(core.RecordCarryOver, idManual, core.CarryOver{ID: idManual, YearMonthIndex: month, Amount: dec(amount)})
}

func (f *fixture) carry(c *Calculator, year int, month int) core.Transaction {
	f.t.Helper()
	got, err := c.CarryOverFor(f.ctx, year, timeMonth(month))
	require.NoError(f.t, err)
	return got
}

func TestBaseCaseBeforeCutoff(t *testing.T) {
	f := newFixture(t)
	f.tx(idSalary, "2025-03-05", core.Income, "1000")
	c := New(f.store)

	for _, m := range []int{1, 2} {
		got := f.carry(c, 2025, m)
		assert.True(t, got.Amount.IsZero())
		assert.Nil(t, got.CarryOver)
		assert.Equal(t, core.Rollover, got.Type)
	}
	got := f.carry(c, 2024, 12)
	assert.Equal(t, "carryover-2024-12", got.ID)
	assert.True(t, got.Amount.IsZero())
	assert.Nil(t, got.CarryOver)

	// The cutoff month itself has nothing before it.
	got = f.carry(c, 2025, 3)
	assert.True(t, got.Amount.IsZero())
	require.NotNil(t, got.CarryOver)
	assert.Equal(t, core.CarryOverAuto, got.CarryOver.Type)
}

func TestEmptyLedger(t *testing.T) {
	f := newFixture(t)
	got := f.carry(New(f.store), 2025, 6)
	assert.True(t, got.Amount.IsZero())
	assert.Nil(t, got.CarryOver)
}

func TestRecursiveRollover(t *testing.T) {
	f := newFixture(t)
	f.tx(idSalary, "2025-01-05", core.Income, "1000.00")
	f.tx(idRent, "2025-01-10", core.Expense, "250.50")
	f.tx(idFood, "2025-02-10", core.Expense, "40")
	c := New(f.store)

	feb := f.carry(c, 2025, 2)
	assert.True(t, feb.Amount.Equal(dec("749.50")), "feb %s", feb.Amount)
	assert.Equal(t, "2025-02-01", feb.Date.String())
	assert.Equal(t, "2025-02", feb.YearMonthIndex)

	mar := f.carry(c, 2025, 3)
	assert.True(t, mar.Amount.Equal(dec("709.50")), "mar %s", mar.Amount)

	// Empty months carry the balance forward unchanged.
	jun := f.carry(c, 2025, 6)
	assert.True(t, jun.Amount.Equal(dec("709.50")))
}

func TestRolloverIncludesRecurringOccurrences(t *testing.T) {
	f := newFixture(t)
	tpl := core.Transaction{
		ID: idSeries, Type: core.Expense, Name: "Rent", Amount: dec("100"),
		Date:       core.MustParseDate("2025-01-31"),
		Recurrency: &core.Recurrency{Interval: core.IntervalMonth, Multiplier: 1},
	}
	tpl.Normalize()
	f.put(core.RecordRecurringTransaction, idSeries, tpl)
	c := New(f.store)

	// Jan (template) + Feb 28 + Mar 31.
	apr := f.carry(c, 2025, 4)
	assert.True(t, apr.Amount.Equal(dec("-300")), "apr %s", apr.Amount)
}

func TestManualOverridePrecedence(t *testing.T) {
	f := newFixture(t)
	f.tx(idSalary, "2025-01-05", core.Income, "1000")
	f.tx(idFood, "2025-03-10", core.Expense, "30")
	f.manual("2025-02", "500")
	c := New(f.store)

	feb := f.carry(c, 2025, 2)
	assert.True(t, feb.Amount.Equal(dec("500")))
	require.NotNil(t, feb.CarryOver)
	assert.Equal(t, core.CarryOverManual, feb.CarryOver.Type)

	apr := f.carry(c, 2025, 4)
	assert.True(t, apr.Amount.Equal(dec("470")), "apr %s", apr.Amount)

	// Editing January (M-1) leaves the overridden month alone.
	f.tx(idSalary, "2025-01-05", core.Income, "2000")
	feb = f.carry(c, 2025, 2)
	assert.True(t, feb.Amount.Equal(dec("500")))

	// Editing the overridden month itself ripples into later auto months.
	f.tx(idFood, "2025-02-10", core.Expense, "30")
	mar := f.carry(c, 2025, 3)
	assert.True(t, mar.Amount.Equal(dec("470")), "mar %s", mar.Amount)
	require.NotNil(t, mar.CarryOver)
	assert.Equal(t, core.CarryOverAuto, mar.CarryOver.Type)

	// Removing the override restores the computed value.
	require.NoError(t, f.store.Delete(f.ctx, core.RecordCarryOver, idManual))
	feb = f.carry(c, 2025, 2)
	assert.True(t, feb.Amount.Equal(dec("2000")), "feb %s", feb.Amount)
}

func TestManualOverrideMovesCutoff(t *testing.T) {
	f := newFixture(t)
	f.tx(idSalary, "2025-05-05", core.Income, "10")
	f.manual("2025-01", "-40")
	c := New(f.store)

	jan := f.carry(c, 2025, 1)
	assert.True(t, jan.Amount.Equal(dec("-40")))
	jun := f.carry(c, 2025, 6)
	assert.True(t, jun.Amount.Equal(dec("-30")), "jun %s", jun.Amount)
}

func TestCorruptTemplatePropagates(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, core.RecordRecurringTransaction, idSeries,
		core.Data{"id": idSeries, "type": "expense", "name": "x", "amount": "1", "date": "2025-01-01", "yearMonthIndex": "2025-01"}, false))
	_, err := New(f.store).CarryOverFor(f.ctx, 2025, 3)
	assert.ErrorIs(t, err, core.ErrCorruptRecurrency)
}

func TestMemoMatchesRecomputation(t *testing.T) {
	f := newFixture(t)
	f.tx(idSalary, "2025-01-05", core.Income, "1000")
	f.tx(idRent, "2025-02-10", core.Expense, "300")

	memo := cache.NewLRU[Entry](128, 0)
	memoised := New(f.store, WithMemo(memo), WithNamespace("family"))
	stop := memoised.Watch(f.store)
	defer stop()
	plain := New(f.store)

	check := func(month int) {
		t.Helper()
		a := f.carry(memoised, 2025, month)
		b := f.carry(plain, 2025, month)
		assert.True(t, a.Amount.Equal(b.Amount), "month %d: memo %s, plain %s", month, a.Amount, b.Amount)
	}

	check(4)
	assert.Positive(t, memo.Size())

	f.tx(idRent, "2025-02-10", core.Expense, "350")
	check(4)

	// Moving a transaction to a later month invalidates from the old month.
	f.tx(idRent, "2025-03-10", core.Expense, "350")
	check(3)
	check(4)

	f.manual("2025-03", "0")
	check(4)
	require.NoError(t, f.store.Delete(f.ctx, core.RecordCarryOver, idManual))
	check(4)
}

func TestSnapshotOlderThanWriteIsNotMemoised(t *testing.T) {
	f := newFixture(t)
	f.tx(idSalary, "2025-01-05", core.Income, "1000")

	memo := cache.NewLRU[Entry](128, 0)
	memoised := New(f.store, WithMemo(memo), WithNamespace("family"))
	stop := memoised.Watch(f.store)
	defer stop()

	snap, err := dataset.Load(f.store)
	require.NoError(t, err)

	// The write commits and invalidates before the older snapshot is used.
	f.tx(idRent, "2025-01-10", core.Expense, "300")

	stale, err := memoised.ForMonth(f.ctx, snap, core.YearMonth{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.True(t, stale.Amount.Equal(dec("1000")), "got %s", stale.Amount)
	assert.Zero(t, memo.Size())

	got := f.carry(memoised, 2025, 3)
	want := f.carry(New(f.store), 2025, 3)
	assert.True(t, want.Amount.Equal(dec("700")), "got %s", want.Amount)
	assert.True(t, got.Amount.Equal(want.Amount), "memo %s, plain %s", got.Amount, want.Amount)
	assert.Positive(t, memo.Size())
}

func TestInvalidateScopesNamespace(t *testing.T) {
	memo := cache.NewLRU[Entry](16, 0)
	c := New(nil, WithMemo(memo), WithNamespace("a"))
	memo.Set("a|2025-01", Entry{})
	memo.Set("a|2025-03", Entry{})
	memo.Set("b|2025-03", Entry{})

	c.Invalidate(store.Change{Type: core.RecordTransaction, Data: core.Data{"yearMonthIndex": "2025-02"}})
	_, ok := memo.Get("a|2025-01")
	assert.True(t, ok)
	_, ok = memo.Get("a|2025-03")
	assert.False(t, ok)
	_, ok = memo.Get("b|2025-03")
	assert.True(t, ok)

	c.Invalidate(store.Change{Type: core.RecordCategory, Data: core.Data{}})
	assert.Equal(t, 2, memo.Size())

	c.Invalidate(store.Change{Type: core.RecordTransaction, Data: core.Data{"bogus": true}})
	_, ok = memo.Get("a|2025-01")
	assert.False(t, ok)
}

func timeMonth(m int) time.Month { return time.Month(m) }
