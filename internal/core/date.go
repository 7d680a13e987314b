package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DateFormat is the canonical calendar-day layout.
const DateFormat = "2006-01-02"

// YearMonthFormat is the layout of a month index such as "2025-03".
const YearMonthFormat = "2006-01"

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidYearMonth = errors.New("invalid year-month")
)

// Date is a calendar day with no time-of-day component.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date, so NewDate(2025, 2, 30) is 2025-03-02.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{t.Year(), t.Month(), t.Day()}
}

// DateFromTime returns the calendar day t falls on in the local time zone.
func DateFromTime(t time.Time) Date {
	y, m, d := t.In(time.Local).Date()
	return Date{y, m, d}
}

// Today returns the current local day.
func Today() Date { return DateFromTime(time.Now()) }

// FromYearMonth returns the first day of the given month.
func FromYearMonth(year int, month time.Month) Date {
	return NewDate(year, month, 1)
}

// ParseDate parses a "YYYY-MM-DD" string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return Date{t.Year(), t.Month(), t.Day()}, nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) Year() int { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int { return d.d }
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }
func (d Date) String() string { return d.utc().Format(DateFormat) }
func (d Date) YearMonth() YearMonth { return YearMonth{Year: d.y, Month: d.m} }

// Time returns local midnight of the day.
func (d Date) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.Local) }

// UnixMilli is the epoch of local midnight. Every comparison uses it.
func (d Date) UnixMilli() int64 { return d.Time().UnixMilli() }

func (d Date) utc() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Compare returns -1, 0 or +1.
func (d Date) Compare(x Date) int {
	a, b := d.UnixMilli(), x.UnixMilli()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (d Date) Before(x Date) bool { return d.Compare(x) < 0 }
func (d Date) After(x Date) bool { return d.Compare(x) > 0 }
func (d Date) Equal(x Date) bool { return d.Compare(x) == 0 }

// AddDays returns the day n days later (or earlier when n is negative).
func (d Date) AddDays(n int) Date { return NewDate(d.y, d.m, d.d+n) }

// EndOfMonth returns the last day of d's month.
func (d Date) EndOfMonth() Date { return NewDate(d.y, d.m+1, 0) }

// IsLastDayOfMonth reports whether d is the final day of its month.
func (d Date) IsLastDayOfMonth() bool { return d.AddDays(1).d == 1 }

// AddMonths steps n months. A last-day-of-month date lands on the last day of
// the target month (add one day, add n months, subtract one day). Any other day
// keeps its number, clamped to the length of the target month.
func (d Date) AddMonths(n int) Date {
	if d.IsLastDayOfMonth() {
		first := d.AddDays(1)
		return NewDate(first.y, first.m+time.Month(n), 1).AddDays(-1)
	}
	last := NewDate(d.y, d.m+time.Month(n)+1, 0)
	if d.d > last.d {
		return last
	}
	return Date{last.y, last.m, d.d}
}

// AddYears steps n years following the AddMonths rule, so Feb 29 becomes Feb 28.
func (d Date) AddYears(n int) Date { return d.AddMonths(12 * n) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var (
	_ json.Marshaler   = Date{}
	_ json.Unmarshaler = (*Date)(nil)
)

// YearMonth identifies a calendar month. Its string form is the yearMonthIndex.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth parses "YYYY-MM".
func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(YearMonthFormat, s)
	if err != nil {
		return YearMonth{}, fmt.Errorf("%w %q: %v", ErrInvalidYearMonth, s, err)
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }
func (ym YearMonth) First() Date { return FromYearMonth(ym.Year, ym.Month) }
func (ym YearMonth) Last() Date { return ym.First().EndOfMonth() }
func (ym YearMonth) Next() YearMonth {
	return ym.First().AddMonths(1).YearMonth()
}
func (ym YearMonth) Prev() YearMonth {
	return ym.First().AddMonths(-1).YearMonth()
}
func (ym YearMonth) Before(x YearMonth) bool { return ym.First().Before(x.First()) }
func (ym YearMonth) After(x YearMonth) bool { return ym.First().After(x.First()) }

// Contains reports whether d falls inside the month.
func (ym YearMonth) Contains(d Date) bool { return d.y == ym.Year && d.m == ym.Month }
