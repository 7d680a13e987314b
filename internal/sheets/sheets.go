// Package sheets lays out month views as spreadsheet rows for export.
package sheets

import (
	"context"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

// Ports for outbound adapters.
type (
	// MonthExporter writes one month to a sheet named after the month.
	MonthExporter interface {
		ExportMonth(ctx context.Context, view ledger.MonthView) (ref string, err error)
	}
)

// Header is the first row of every exported month.
var Header = []any{"Date", "Name", "Type", "Category", "Amount"}

// SheetName is the tab a month is exported to.
func SheetName(ym core.YearMonth) string { return ym.String() }

// MonthRows lays out a month: the header, the carry-over, one row per
// transaction with its signed amount, a blank row and the summary.
func MonthRows(view ledger.MonthView) [][]any {
	rows := make([][]any, 0, len(view.Transactions)+8)
	rows = append(rows, Header)
	rows = append(rows, transactionRow(view, view.CarryOver))
	for _, t := range view.Transactions {
		rows = append(rows, transactionRow(view, t))
	}
	rows = append(rows,
		[]any{},
		[]any{"Income", "", "", "", view.Summary.TotalIncome.InexactFloat64()},
		[]any{"Expenses", "", "", "", view.Summary.TotalExpenses.InexactFloat64()},
		[]any{"Carry-over", "", "", "", view.Summary.CarryOver.InexactFloat64()},
		[]any{"Total", "", "", "", view.Summary.Total.InexactFloat64()},
	)
	return rows
}

func transactionRow(view ledger.MonthView, t core.Transaction) []any {
	name := t.Name
	if name == "" && t.Type == core.Rollover {
		name = "Carry-over"
	}
	category := ""
	if c, ok := view.Categories[t.CategoryID]; ok {
		category = c.Name
	}
	return []any{t.Date.String(), name, string(t.Type), category, t.Signed().InexactFloat64()}
}
