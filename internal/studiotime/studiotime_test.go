package studiotime

import (
	"testing"
	"time"
)

func TestDateOfUsesStudioZone(t *testing.T) {
	// 03:00 UTC on the 2nd is still the 1st in Guatemala (UTC-6).
	instant := time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC)
	got := DateOf(instant)
	if want := Date(2025, 3, 1); !got.Equal(want) {
		t.Errorf("DateOf: want %s, got %s", want, got)
	}
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(2025, time.December)
	if y, m := YearMonth(start); y != 2025 || m != time.December {
		t.Errorf("start bucket: want 2025-12, got %d-%02d", y, m)
	}
	if y, m := YearMonth(end); y != 2026 || m != time.January {
		t.Errorf("end bucket: want 2026-01, got %d-%02d", y, m)
	}
	if y, m := YearMonth(end.Add(-time.Second)); y != 2025 || m != time.December {
		t.Errorf("last second: want 2025-12, got %d-%02d", y, m)
	}
}

func TestWeekRange(t *testing.T) {
	// 2025-06-05 is a Thursday.
	mon, sun := WeekRange(Date(2025, 6, 5))
	if !mon.Equal(Date(2025, 6, 2)) {
		t.Errorf("monday: got %s", FormatDate(mon))
	}
	if !sun.Equal(Date(2025, 6, 8)) {
		t.Errorf("sunday: got %s", FormatDate(sun))
	}
	mon, _ = WeekRange(Date(2025, 6, 8))
	if !mon.Equal(Date(2025, 6, 2)) {
		t.Errorf("sunday's monday: got %s", FormatDate(mon))
	}
}

func TestDayCode(t *testing.T) {
	cases := map[string]string{
		"2025-06-02": "MON",
		"2025-06-07": "SAT",
		"2025-06-08": "SUN",
	}
	for in, want := range cases {
		d, err := ParseDate(in)
		if err != nil {
			t.Fatal(err)
		}
		if got := DayCode(d); got != want {
			t.Errorf("DayCode(%s): want %s, got %s", in, want, got)
		}
	}
	if ValidDayCode("XYZ") {
		t.Error("XYZ should not be a day code")
	}
}

func TestSlotStart(t *testing.T) {
	start, err := SlotStart(Date(2025, 6, 2), "07:30")
	if err != nil {
		t.Fatal(err)
	}
	local := start.In(Loc())
	if local.Hour() != 7 || local.Minute() != 30 || local.Day() != 2 {
		t.Errorf("unexpected slot start %s", local)
	}
	if _, err := SlotStart(Date(2025, 6, 2), "7am"); err == nil {
		t.Error("expected parse error")
	}
}
