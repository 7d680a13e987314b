// Package recurrence expands recurring transaction templates into dated
// occurrences and edits series at a given occurrence.
//
// Each interval has its own Stepper. A stepper computes the date of
// occurrence k directly from the template's anchor date, so month-end and
// clamped days never drift over long series.
package recurrence

import (
	"fmt"

	"ledger/internal/core"
)

// Stepper is the strategy interface for one recurrency interval.
type Stepper interface {
	// Step returns the date of occurrence k (k >= 0) of a series anchored at
	// anchor that advances multiplier intervals per occurrence.
	Step(anchor core.Date, multiplier, k int) core.Date
}

// WeeklyStepper advances 7 days per interval.
type WeeklyStepper struct{}

func (WeeklyStepper) Step(anchor core.Date, multiplier, k int) core.Date {
	return anchor.AddDays(7 * multiplier * k)
}

// MonthlyStepper advances calendar months, keeping month-end anchors on the
// last day of every month.
type MonthlyStepper struct{}

func (MonthlyStepper) Step(anchor core.Date, multiplier, k int) core.Date {
	return anchor.AddMonths(multiplier * k)
}

// YearlyStepper advances calendar years. A Feb 29 anchor lands on Feb 28 in
// common years.
type YearlyStepper struct{}

func (YearlyStepper) Step(anchor core.Date, multiplier, k int) core.Date {
	return anchor.AddYears(multiplier * k)
}

var steppers = map[core.Interval]Stepper{
	core.IntervalWeek:  WeeklyStepper{},
	core.IntervalMonth: MonthlyStepper{},
	core.IntervalYear:  YearlyStepper{},
}

// GetStepper returns the stepper for an interval.
func GetStepper(interval core.Interval) (Stepper, error) {
	s, ok := steppers[interval]
	if !ok {
		return nil, fmt.Errorf("unknown recurrency interval: %s", interval)
	}
	return s, nil
}

// RegisterStepper adds or replaces the stepper for an interval.
func RegisterStepper(interval core.Interval, s Stepper) {
	steppers[interval] = s
}
