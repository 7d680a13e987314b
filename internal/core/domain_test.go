package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func validTransaction() Transaction {
	t := Transaction{
		ID:     "aaaaaaaaaaaaaaaaaaaa",
		Type:   Expense,
		Name:   " Groceries ",
		Amount: decimal.RequireFromString("12.345"),
		Date:   NewDate(2025, 3, 14),
	}
	t.Normalize()
	return t
}

func TestTransactionNormalize(t *testing.T) {
	tx := validTransaction()
	if tx.YearMonthIndex != "2025-03" {
		t.Fatalf("expected 2025-03, got %s", tx.YearMonthIndex)
	}
	if tx.Name != "Groceries" {
		t.Fatalf("expected trimmed name, got %q", tx.Name)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("12.35")) {
		t.Fatalf("expected 12.35, got %s", tx.Amount)
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTransaction().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	end := NewDate(2025, 1, 1)
	bads := map[string]func(*Transaction){
		"bad type":        func(tx *Transaction) { tx.Type = "transfer" },
		"zero date":       func(tx *Transaction) { tx.Date = Date{} },
		"index mismatch":  func(tx *Transaction) { tx.YearMonthIndex = "2025-04" },
		"empty name":      func(tx *Transaction) { tx.Name = "" },
		"negative amount": func(tx *Transaction) { tx.Amount = decimal.NewFromInt(-1) },
		"marker on expense": func(tx *Transaction) {
			tx.CarryOver = &CarryOverMarker{Type: CarryOverManual}
		},
		"bad interval": func(tx *Transaction) {
			tx.Recurrency = &Recurrency{Interval: "day", Multiplier: 1}
		},
		"zero multiplier": func(tx *Transaction) {
			tx.Recurrency = &Recurrency{Interval: IntervalWeek}
		},
		"end before start": func(tx *Transaction) {
			tx.Recurrency = &Recurrency{Interval: IntervalMonth, Multiplier: 1, EndDate: &end}
		},
	}
	for name, mutate := range bads {
		t.Run(name, func(t *testing.T) {
			tx := validTransaction()
			mutate(&tx)
			if err := tx.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRolloverMayBeNegative(t *testing.T) {
	tx := Transaction{
		ID:        "carryover-2025-03",
		Type:      Rollover,
		Amount:    decimal.NewFromInt(-40),
		Date:      NewDate(2025, 3, 1),
		CarryOver: &CarryOverMarker{Type: CarryOverAuto},
	}
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !tx.Signed().Equal(decimal.NewFromInt(-40)) {
		t.Fatalf("unexpected signed amount %s", tx.Signed())
	}
}

func TestSignedExpense(t *testing.T) {
	tx := validTransaction()
	if !tx.Signed().Equal(decimal.RequireFromString("-12.35")) {
		t.Fatalf("unexpected signed amount %s", tx.Signed())
	}
}

func TestTransactionDataRoundTrip(t *testing.T) {
	tx := validTransaction()
	tx.Recurrency = &Recurrency{Interval: IntervalMonth, Multiplier: 1}
	d, err := ToData(tx)
	if err != nil {
		t.Fatalf("ToData: %v", err)
	}
	if d["date"] != "2025-03-14" || d["yearMonthIndex"] != "2025-03" {
		t.Fatalf("unexpected payload %v", d)
	}
	back, err := FromData[Transaction](d)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	if !back.Amount.Equal(tx.Amount) || back.Recurrency == nil || back.Recurrency.Interval != IntervalMonth {
		t.Fatalf("unexpected transaction %+v", back)
	}
}

func TestFromDataRejectsMalformed(t *testing.T) {
	_, err := FromData[Transaction](Data{"date": "not-a-date"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCarryOverValidate(t *testing.T) {
	if err := (CarryOver{YearMonthIndex: "2025-02"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (CarryOver{YearMonthIndex: "02-2025"}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCategoryValidate(t *testing.T) {
	if err := (Category{Name: "Casa", Type: Expense}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Category{Name: "  "}).Validate(); err == nil {
		t.Fatalf("expected error for blank name")
	}
}
