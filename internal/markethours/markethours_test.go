package markethours

import (
	"strings"
	"testing"
	"time"
)

func ist(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, IST)
}

func TestPhaseAt(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want Phase
	}{
		{"early morning", ist(2026, 1, 5, 8, 59), PhaseClosed},
		{"pre-open", ist(2026, 1, 5, 9, 0), PhasePreOpen},
		{"pre-open end", ist(2026, 1, 5, 9, 14), PhasePreOpen},
		{"open", ist(2026, 1, 5, 9, 15), PhaseOpen},
		{"mid-session", ist(2026, 1, 5, 11, 0), PhaseOpen},
		{"at close", ist(2026, 1, 5, 15, 30), PhaseClosed},
		{"post-close", ist(2026, 1, 5, 15, 45), PhasePostClose},
		{"evening", ist(2026, 1, 5, 16, 0), PhaseClosed},
		{"saturday", ist(2026, 1, 3, 11, 0), PhaseClosed},
		{"republic day", ist(2026, 1, 26, 11, 0), PhaseClosed},
		{"utc input", time.Date(2026, 1, 5, 5, 0, 0, 0, time.UTC), PhaseOpen},
	}
	for _, tc := range cases {
		if got := PhaseAt(tc.t); got != tc.want {
			t.Errorf("%s: PhaseAt = %s, want %s", tc.name, got, tc.want)
		}
		if got, want := IsMarketOpen(tc.t), tc.want == PhaseOpen; got != want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, want)
		}
	}
}

func TestAcceptsAMO(t *testing.T) {
	cases := []struct {
		t    time.Time
		want bool
	}{
		{ist(2026, 1, 5, 8, 0), true},
		{ist(2026, 1, 5, 9, 5), false},
		{ist(2026, 1, 5, 15, 50), false},
		{ist(2026, 1, 5, 17, 0), true},
		{ist(2026, 1, 3, 12, 0), true},
	}
	for _, tc := range cases {
		if got := AcceptsAMO(tc.t); got != tc.want {
			t.Errorf("AcceptsAMO(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
}

func TestNextOpen(t *testing.T) {
	cases := []struct {
		name     string
		in, want time.Time
	}{
		{"before open same day", ist(2026, 1, 5, 7, 0), ist(2026, 1, 5, 9, 15)},
		{"during session", ist(2026, 1, 5, 10, 0), ist(2026, 1, 6, 9, 15)},
		// Friday 23 Jan after close -> Monday 26 Jan is Republic Day -> Tuesday 27.
		{"weekend and holiday", ist(2026, 1, 23, 16, 0), ist(2026, 1, 27, 9, 15)},
		{"dussehra run", ist(2026, 10, 19, 16, 0), ist(2026, 10, 22, 9, 15)},
	}
	for _, tc := range cases {
		if got := NextOpen(tc.in); !got.Equal(tc.want) {
			t.Errorf("%s: NextOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestKiteSessionExpiry(t *testing.T) {
	cases := []struct {
		in, want time.Time
	}{
		{ist(2026, 1, 5, 10, 0), ist(2026, 1, 6, 6, 0)},
		{ist(2026, 1, 5, 5, 59), ist(2026, 1, 5, 6, 0)},
		{ist(2026, 1, 5, 6, 0), ist(2026, 1, 6, 6, 0)},
	}
	for _, tc := range cases {
		if got := KiteSessionExpiry(tc.in); !got.Equal(tc.want) {
			t.Errorf("KiteSessionExpiry(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMidnightExpiry(t *testing.T) {
	got := MidnightExpiry(ist(2026, 1, 5, 23, 59))
	if want := ist(2026, 1, 6, 0, 0); !got.Equal(want) {
		t.Errorf("MidnightExpiry = %v, want %v", got, want)
	}
	// 23:00 UTC on the 5th is already the 6th in IST.
	got = MidnightExpiry(time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC))
	if want := ist(2026, 1, 7, 0, 0); !got.Equal(want) {
		t.Errorf("MidnightExpiry(utc) = %v, want %v", got, want)
	}
}

func TestHolidays(t *testing.T) {
	if name, ok := HolidayName(ist(2026, 10, 20, 12, 0)); !ok || name != "Dussehra" {
		t.Errorf("HolidayName = %q, %v", name, ok)
	}

	day := ist(2027, 3, 4, 0, 0)
	if IsHoliday(day) {
		t.Fatal("unexpected holiday before registration")
	}
	AddHolidays(day)
	if !IsHoliday(day.Add(10 * time.Hour)) {
		t.Error("expected registered day to be a holiday")
	}
	AddHolidays(ist(2026, 1, 26, 0, 0))
	if name, _ := HolidayName(ist(2026, 1, 26, 0, 0)); name != "Republic Day" {
		t.Errorf("AddHolidays renamed an existing holiday to %q", name)
	}
}

func TestStatusString(t *testing.T) {
	if s := StatusString(ist(2026, 1, 5, 11, 0)); s != "OPEN, closes in 4h30m0s" {
		t.Errorf("unexpected status %q", s)
	}
	s := StatusString(ist(2026, 10, 20, 12, 0))
	if !strings.HasPrefix(s, "CLOSED (Dussehra), opens Thu 09:15") {
		t.Errorf("unexpected status %q", s)
	}
}
