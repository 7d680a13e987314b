package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Summary totals a set of transactions. Total = TotalIncome - TotalExpenses + CarryOver.
type Summary struct {
	TotalIncome   decimal.Decimal
	TotalExpenses decimal.Decimal
	CarryOver     decimal.Decimal
	Total         decimal.Decimal
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string
	Amount     decimal.Decimal
}

// Summarize applies the summary rule to txs. Carryover-type amounts are taken
// with their own sign.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch t.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case Expense:
			s.TotalExpenses = s.TotalExpenses.Add(t.Amount)
		case Rollover:
			s.CarryOver = s.CarryOver.Add(t.Amount)
		}
	}
	s.TotalIncome = s.TotalIncome.Round(2)
	s.TotalExpenses = s.TotalExpenses.Round(2)
	s.CarryOver = s.CarryOver.Round(2)
	s.Total = s.TotalIncome.Sub(s.TotalExpenses).Add(s.CarryOver)
	return s
}

// ExpensesByCategory sums expense amounts per category, largest first.
func ExpensesByCategory(txs []Transaction) []CategoryAmount {
	sums := map[string]decimal.Decimal{}
	for _, t := range txs {
		if t.Type != Expense {
			continue
		}
		sums[t.CategoryID] = sums[t.CategoryID].Add(t.Amount)
	}
	out := make([]CategoryAmount, 0, len(sums))
	for id, amt := range sums {
		out = append(out, CategoryAmount{CategoryID: id, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}
