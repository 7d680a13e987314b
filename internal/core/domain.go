package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	Expense  TransactionType = "expense"
	Income   TransactionType = "income"
	Rollover TransactionType = "carryover"

	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"

	CarryOverManual CarryOverKind = "manual"
	CarryOverAuto   CarryOverKind = "auto"
)

type (
	TransactionType string

	Interval string

	CarryOverKind string

	// Recurrency describes how a recurring template repeats.
	Recurrency struct {
		Interval   Interval `json:"interval"`
		Multiplier int      `json:"multiplier"`
		EndDate    *Date    `json:"endDate,omitempty"`
	}

	// CarryOverMarker is only present on carryover-type transactions.
	CarryOverMarker struct {
		Type CarryOverKind `json:"type"`
	}

	// Transaction is the payload of transaction and recurring-transaction records.
	Transaction struct {
		ID             string           `json:"id"`
		Type           TransactionType  `json:"type"`
		Name           string           `json:"name"`
		Amount         decimal.Decimal  `json:"amount"`
		Date           Date             `json:"date"`
		YearMonthIndex string           `json:"yearMonthIndex"`
		CategoryID     string           `json:"categoryId,omitempty"`
		Recurrency     *Recurrency      `json:"recurrency,omitempty"`
		CarryOver      *CarryOverMarker `json:"carryOver,omitempty"`
	}

	// CarryOver is a user-confirmed override of a month's rollover.
	CarryOver struct {
		ID             string          `json:"id"`
		YearMonthIndex string          `json:"yearMonthIndex"`
		Amount         decimal.Decimal `json:"amount"`
	}

	// Category groups transactions for reporting.
	Category struct {
		ID   string          `json:"id"`
		Name string          `json:"name"`
		Type TransactionType `json:"type"`
		Icon string          `json:"icon,omitempty"`
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidType       = errors.New("invalid transaction type")
	ErrInvalidInterval   = errors.New("invalid recurrency interval")
	ErrInvalidMultiplier = errors.New("recurrency multiplier must be positive")
	ErrMonthIndex        = errors.New("yearMonthIndex does not match date")
)

const maxNameLength = 200

func (t TransactionType) IsValid() bool {
	switch t {
	case Expense, Income, Rollover:
		return true
	default:
		return false
	}
}

func (i Interval) IsValid() bool {
	switch i {
	case IntervalWeek, IntervalMonth, IntervalYear:
		return true
	default:
		return false
	}
}

// Normalize derives yearMonthIndex from the date and rounds the amount to cents.
func (t *Transaction) Normalize() {
	t.YearMonthIndex = t.Date.YearMonth().String()
	t.Amount = t.Amount.Round(2)
	t.Name = strings.TrimSpace(t.Name)
}

// IsRecurring reports whether the transaction carries a recurrency.
func (t Transaction) IsRecurring() bool { return t.Recurrency != nil }

// Signed returns the amount with the sign implied by the type.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t Transaction) Validate() error {
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, t.Type)
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if t.YearMonthIndex != t.Date.YearMonth().String() {
		return fmt.Errorf("%w: %s vs %s", ErrMonthIndex, t.YearMonthIndex, t.Date)
	}
	if t.Type != Rollover {
		if len(t.Name) == 0 {
			return ErrEmptyName
		}
		if t.Amount.IsNegative() {
			return ErrInvalidAmount
		}
	}
	if len(t.Name) > maxNameLength {
		return errors.New("name too long (max 200 characters)")
	}
	if t.CarryOver != nil && t.Type != Rollover {
		return errors.New("carryOver marker only allowed on carryover transactions")
	}
	if t.Recurrency != nil {
		if err := t.Recurrency.Validate(t.Date); err != nil {
			return err
		}
	}
	return nil
}

func (r Recurrency) Validate(start Date) error {
	if !r.Interval.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidInterval, r.Interval)
	}
	if r.Multiplier < 1 {
		return ErrInvalidMultiplier
	}
	if r.EndDate != nil && r.EndDate.Before(start) {
		return errors.New("end date must not be before start date")
	}
	return nil
}

// Month returns the month the override applies to.
func (c CarryOver) Month() (YearMonth, error) {
	return ParseYearMonth(c.YearMonthIndex)
}

func (c CarryOver) Validate() error {
	if _, err := c.Month(); err != nil {
		return err
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Type != "" && !c.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, c.Type)
	}
	return nil
}
