package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecurrenceUnit is the granularity a plan cost is billed at
type RecurrenceUnit string

const (
	RecurrenceOnce   RecurrenceUnit = "0"
	RecurrenceSecond RecurrenceUnit = "1"
	RecurrenceMinute RecurrenceUnit = "2"
	RecurrenceHour   RecurrenceUnit = "3"
	RecurrenceDay    RecurrenceUnit = "4"
	RecurrenceWeek   RecurrenceUnit = "5"
	RecurrenceMonth  RecurrenceUnit = "6"
	RecurrenceYear   RecurrenceUnit = "7"
)

var (
	// ErrInvalidRecurrenceUnit is returned for codes outside 0-7
	ErrInvalidRecurrenceUnit = errors.New("invalid recurrence unit")
	// ErrInvalidRecurrencePeriod is returned for periods below 1
	ErrInvalidRecurrencePeriod = errors.New("recurrence period must be at least 1")
)

// Mean Gregorian month and year lengths in days
var (
	daysPerMonth = decimal.RequireFromString("30.4368")
	daysPerYear  = decimal.RequireFromString("365.2425")
)

const microsPerDay = 86400 * 1000 * 1000

type unitInfo struct {
	name     string
	singular string
	plural   string
	micros   int64
}

var units = map[RecurrenceUnit]unitInfo{
	RecurrenceOnce:   {name: "once", singular: "one-time"},
	RecurrenceSecond: {name: "second", singular: "per second", plural: "seconds", micros: 1000 * 1000},
	RecurrenceMinute: {name: "minute", singular: "per minute", plural: "minutes", micros: 60 * 1000 * 1000},
	RecurrenceHour:   {name: "hour", singular: "per hour", plural: "hours", micros: 3600 * 1000 * 1000},
	RecurrenceDay:    {name: "day", singular: "per day", plural: "days", micros: microsPerDay},
	RecurrenceWeek:   {name: "week", singular: "per week", plural: "weeks", micros: 7 * microsPerDay},
	RecurrenceMonth:  {name: "month", singular: "per month", plural: "months"},
	RecurrenceYear:   {name: "year", singular: "per year", plural: "years"},
}

// RecurrenceUnits lists every unit in code order
func RecurrenceUnits() []RecurrenceUnit {
	return []RecurrenceUnit{
		RecurrenceOnce, RecurrenceSecond, RecurrenceMinute, RecurrenceHour,
		RecurrenceDay, RecurrenceWeek, RecurrenceMonth, RecurrenceYear,
	}
}

// ParseRecurrenceUnit accepts either the stored code ("6") or the name ("month")
func ParseRecurrenceUnit(s string) (RecurrenceUnit, error) {
	u := RecurrenceUnit(strings.TrimSpace(s))
	if u.Valid() {
		return u, nil
	}
	for code, info := range units {
		if strings.EqualFold(info.name, string(u)) {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRecurrenceUnit, s)
}

// Valid reports whether u is a known unit code
func (u RecurrenceUnit) Valid() bool {
	_, ok := units[u]
	return ok
}

// Name returns the short name of the unit ("month")
func (u RecurrenceUnit) Name() string {
	return units[u].name
}

// Delta returns the length of period units in microseconds.
// The second result is false for one-time and unknown units.
func (u RecurrenceUnit) Delta(period uint16) (int64, bool) {
	switch u {
	case RecurrenceOnce:
		return 0, false
	case RecurrenceMonth:
		return approximateDays(daysPerMonth, period), true
	case RecurrenceYear:
		return approximateDays(daysPerYear, period), true
	}
	info, ok := units[u]
	if !ok {
		return 0, false
	}
	return info.micros * int64(period), true
}

// approximateDays multiplies the fractional day count by period before
// converting, then rounds to the nearest microsecond.
func approximateDays(days decimal.Decimal, period uint16) int64 {
	return days.Mul(decimal.NewFromInt(int64(period))).
		Mul(decimal.NewFromInt(microsPerDay)).
		Round(0).
		IntPart()
}

// addMicros adds a microsecond offset without overflowing time.Duration
func addMicros(t time.Time, micros int64) time.Time {
	secs := micros / 1e6
	rem := micros % 1e6
	return time.Unix(t.Unix()+secs, int64(t.Nanosecond())+rem*1000).In(t.Location())
}
