// Package studiotime holds the studio's wall clock: its time zone and the
// civil-date helpers used for class dates, payment validity and monthly
// buckets.
package studiotime

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// fallback to a fixed offset if tzdata is missing (Guatemala has no DST)
var loc = func() *time.Location {
	l, err := time.LoadLocation("America/Guatemala")
	if err != nil {
		return time.FixedZone("CST", -6*3600)
	}
	return l
}()

func Loc() *time.Location { return loc }

// SetLocation switches the studio zone. On error the zone is left unchanged.
func SetLocation(name string) error {
	if name == "" {
		return nil
	}
	l, err := time.LoadLocation(name)
	if err != nil {
		return fmt.Errorf("load location %q: %w", name, err)
	}
	loc = l
	return nil
}

// DateOf returns the studio-local calendar date of t, stored as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a civil date value.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today is the civil date at now in the studio zone.
func Today(now time.Time) time.Time { return DateOf(now) }

// ParseDate parses YYYY-MM-DD into a civil date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(d time.Time) string { return d.UTC().Format(DateLayout) }

// MonthRange returns the first civil date of the month and the first of the next.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	first := Date(year, month, 1)
	return first, first.AddDate(0, 1, 0)
}

// MonthBounds returns the instant range [start, end) covering the given
// month in the studio zone, for bucketing payments and sales.
func MonthBounds(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}

// DayBounds is the instant range of a civil date in the studio zone.
func DayBounds(d time.Time) (time.Time, time.Time) {
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

// YearMonth buckets an instant into the studio-local month.
func YearMonth(t time.Time) (int, time.Month) {
	local := t.In(loc)
	return local.Year(), local.Month()
}

// WeekRange returns Monday and Sunday of d's week.
func WeekRange(d time.Time) (time.Time, time.Time) {
	offset := (int(d.Weekday()) + 6) % 7
	monday := d.AddDate(0, 0, -offset)
	return monday, monday.AddDate(0, 0, 6)
}

var dayCodes = [...]string{"SUN", "MON", "TUE", "WED", "THU", "FRI", "SAT"}

// DayCode maps a civil date to the schedule day code (MON..SUN).
func DayCode(d time.Time) string { return dayCodes[d.Weekday()] }

func ValidDayCode(code string) bool {
	for _, c := range dayCodes {
		if c == code {
			return true
		}
	}
	return false
}

// SlotStart combines a civil date with an "HH:MM" slot in the studio zone.
func SlotStart(d time.Time, slot string) (time.Time, error) {
	hm, err := time.Parse("15:04", slot)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time slot %q: %w", slot, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), hm.Hour(), hm.Minute(), 0, 0, loc), nil
}
