// Package markethours models the NSE/BSE cash-market day in IST: session
// phases, holidays, and the daily expiry of broker access tokens.
package markethours

import (
	"fmt"
	"time"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Phase is a segment of the exchange day.
type Phase string

const (
	PhaseClosed    Phase = "CLOSED"     // non-trading day, or outside every window below
	PhasePreOpen   Phase = "PRE_OPEN"   // 09:00-09:15, call auction
	PhaseOpen      Phase = "OPEN"       // 09:15-15:30, continuous matching
	PhasePostClose Phase = "POST_CLOSE" // 15:40-16:00, closing price session
)

// Session boundaries as minutes after midnight IST.
const (
	preOpenStart   = 9 * 60
	openStart      = 9*60 + 15
	openEnd        = 15*60 + 30
	postCloseStart = 15*60 + 40
	postCloseEnd   = 16 * 60

	// Kite flushes access tokens at 06:00 IST.
	kiteFlushHour = 6
)

// OpenHour and OpenMinute are the start of continuous trading.
const (
	OpenHour   = openStart / 60
	OpenMinute = openStart % 60
)

func minuteOfDay(ist time.Time) int { return ist.Hour()*60 + ist.Minute() }

func at(day time.Time, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minute/60, minute%60, 0, 0, IST)
}

// PhaseAt returns the exchange phase at t.
func PhaseAt(t time.Time) Phase {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return PhaseClosed
	}
	switch m := minuteOfDay(ist); {
	case m >= preOpenStart && m < openStart:
		return PhasePreOpen
	case m >= openStart && m < openEnd:
		return PhaseOpen
	case m >= postCloseStart && m < postCloseEnd:
		return PhasePostClose
	}
	return PhaseClosed
}

// IsMarketOpen reports whether regular orders match immediately at t.
func IsMarketOpen(t time.Time) bool {
	return PhaseAt(t) == PhaseOpen
}

// IsTradingDay reports whether t falls on a weekday that is not a holiday.
func IsTradingDay(t time.Time) bool {
	ist := t.In(IST)
	switch ist.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !IsHoliday(ist)
}

// AcceptsAMO reports whether an after-market order placed at t would be
// queued for the next session: any time outside 09:00-16:00 on a trading
// day, and all day on a closed day.
func AcceptsAMO(t time.Time) bool {
	ist := t.In(IST)
	if !IsTradingDay(ist) {
		return true
	}
	m := minuteOfDay(ist)
	return m < preOpenStart || m >= postCloseEnd
}

// NextOpen returns the next start of continuous trading at or after t.
func NextOpen(t time.Time) time.Time {
	ist := t.In(IST)
	if IsTradingDay(ist) && minuteOfDay(ist) < openStart {
		return at(ist, openStart)
	}
	// Holiday runs are short; a month bounds the search.
	for d := ist.AddDate(0, 0, 1); d.Before(ist.AddDate(0, 1, 0)); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			return at(d, openStart)
		}
	}
	return at(ist.AddDate(0, 0, 1), openStart)
}

// CloseOf returns the end of continuous trading on t's IST day.
func CloseOf(t time.Time) time.Time {
	return at(t.In(IST), openEnd)
}

// KiteSessionExpiry returns the first 06:00 IST strictly after t.
func KiteSessionExpiry(t time.Time) time.Time {
	ist := t.In(IST)
	flush := at(ist, kiteFlushHour*60)
	if !ist.Before(flush) {
		flush = flush.AddDate(0, 0, 1)
	}
	return flush
}

// MidnightExpiry returns the next 00:00 IST after t.
func MidnightExpiry(t time.Time) time.Time {
	return at(t.In(IST).AddDate(0, 0, 1), 0)
}

// ParseIST parses an exchange timestamp that carries no zone.
func ParseIST(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, IST)
}

// StatusString describes the market at t for humans, e.g.
// "OPEN, closes in 4h30m" or "CLOSED (Dussehra), opens Thu 09:15 in 2h15m".
func StatusString(t time.Time) string {
	phase := PhaseAt(t)
	if phase == PhaseOpen {
		return fmt.Sprintf("%s, closes in %s", phase, CloseOf(t).Sub(t).Round(time.Minute))
	}
	label := string(phase)
	if name, ok := HolidayName(t); ok {
		label += " (" + name + ")"
	}
	next := NextOpen(t)
	return fmt.Sprintf("%s, opens %s in %s", label,
		next.Format("Mon 15:04"), next.Sub(t).Round(time.Minute))
}
