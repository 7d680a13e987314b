package sheets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMonthRows(t *testing.T) {
	ym := core.YearMonth{Year: 2025, Month: time.March}
	carry := core.Transaction{Type: core.Rollover, Amount: dec("-40"), Date: ym.First()}
	txs := []core.Transaction{
		{Type: core.Income, Name: "Salary", Amount: dec("1000"), Date: core.MustParseDate("2025-03-01")},
		{Type: core.Expense, Name: "Groceries", Amount: dec("250.50"), Date: core.MustParseDate("2025-03-12"), CategoryID: "food"},
	}
	view := ledger.MonthView{
		Month:        ym,
		CarryOver:    carry,
		Transactions: txs,
		Summary:      core.Summarize(append([]core.Transaction{carry}, txs...)),
		Categories:   map[string]core.Category{"food": {ID: "food", Name: "Food"}},
	}

	rows := MonthRows(view)
	require.Len(t, rows, 9)

	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []any{"2025-03-01", "Carry-over", "carryover", "", -40.0}, rows[1])
	assert.Equal(t, []any{"2025-03-01", "Salary", "income", "", 1000.0}, rows[2])
	assert.Equal(t, []any{"2025-03-12", "Groceries", "expense", "Food", -250.5}, rows[3])
	assert.Empty(t, rows[4])
	assert.Equal(t, []any{"Total", "", "", "", 709.5}, rows[8])
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "2025-03", SheetName(core.YearMonth{Year: 2025, Month: time.March}))
}
