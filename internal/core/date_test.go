package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2025-01-01", true},
		{"2024-02-29", true},
		{"2025-02-29", false},
		{"2025-13-01", false},
		{"2025-1-1", false},
		{"", false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseDate(tc.in)
			if !tc.ok {
				require.ErrorIs(t, err, ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.in, d.String())
		})
	}
}

func TestDateFromTimeDropsClock(t *testing.T) {
	ts := time.Date(2025, 3, 14, 23, 59, 0, 0, time.Local)
	d := DateFromTime(ts)
	assert.Equal(t, "2025-03-14", d.String())
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local).UnixMilli(), d.UnixMilli())
}

func TestNewDateNormalizes(t *testing.T) {
	assert.Equal(t, "2025-03-02", NewDate(2025, 2, 30).String())
	assert.Equal(t, "2024-12-31", NewDate(2025, 1, 0).String())
}

func TestAddDays(t *testing.T) {
	d := MustParseDate("2024-02-28")
	assert.Equal(t, "2024-02-29", d.AddDays(1).String())
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, "2024-02-21", d.AddDays(-7).String())
}

func TestAddMonthsEndOfMonth(t *testing.T) {
	cases := []struct {
		start string
		n     int
		want  string
	}{
		{"2025-01-31", 1, "2025-02-28"}, // non-leap February
		{"2024-01-31", 1, "2024-02-29"}, // leap February
		{"2025-02-28", 1, "2025-03-31"}, // anchored at month end
		{"2025-04-30", 1, "2025-05-31"}, // 30 to 31
		{"2025-05-31", 1, "2025-06-30"}, // 31 to 30
		{"2025-11-30", 3, "2026-02-28"},
		{"2025-01-31", -2, "2024-11-30"},
	}
	for _, tc := range cases {
		t.Run(tc.start, func(t *testing.T) {
			got := MustParseDate(tc.start).AddMonths(tc.n)
			assert.Equal(t, tc.want, got.String())
			assert.True(t, got.IsLastDayOfMonth())
		})
	}
}

func TestAddMonthsClamps(t *testing.T) {
	assert.Equal(t, "2025-02-28", MustParseDate("2025-01-30").AddMonths(1).String())
	assert.Equal(t, "2025-03-30", MustParseDate("2025-01-30").AddMonths(2).String())
	assert.Equal(t, "2025-02-15", MustParseDate("2025-01-15").AddMonths(1).String())
}

func TestAddYearsLeapDay(t *testing.T) {
	assert.Equal(t, "2025-02-28", MustParseDate("2024-02-29").AddYears(1).String())
	assert.Equal(t, "2028-02-29", MustParseDate("2024-02-29").AddYears(4).String())
}

func TestDateCompare(t *testing.T) {
	a := MustParseDate("2025-01-01")
	b := MustParseDate("2025-01-02")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.True(t, a.Equal(NewDate(2025, 1, 1)))
	assert.Equal(t, 0, a.Compare(a))
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		D Date `json:"d"`
	}
	b, err := json.Marshal(wrapper{D: MustParseDate("2025-06-30")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"2025-06-30"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"d":"2024-02-29"}`), &w))
	assert.Equal(t, "2024-02-29", w.D.String())

	require.NoError(t, json.Unmarshal([]byte(`{"d":""}`), &w))
	assert.True(t, w.D.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"d":"29/02/2024"}`), &w))
}

func TestYearMonth(t *testing.T) {
	ym, err := ParseYearMonth("2025-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-01", ym.String())
	assert.Equal(t, "2024-12", ym.Prev().String())
	assert.Equal(t, "2025-02", ym.Next().String())
	assert.Equal(t, "2025-01-31", ym.Last().String())
	assert.Equal(t, "2025-01-01", ym.First().String())
	assert.True(t, ym.Prev().Before(ym))
	assert.True(t, ym.Contains(MustParseDate("2025-01-17")))
	assert.False(t, ym.Contains(MustParseDate("2025-02-01")))

	_, err = ParseYearMonth("2025-1")
	assert.ErrorIs(t, err, ErrInvalidYearMonth)
}
