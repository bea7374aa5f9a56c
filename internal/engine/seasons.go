package engine

import (
	"fmt"
	"time"
)

// Season names.
const (
	SeasonSpring = "Spring"
	SeasonSummer = "Summer"
	SeasonAutumn = "Autumn"
	SeasonWinter = "Winter"
)

// Default day boundaries, in simulated hours.
const (
	DayStartHour   = 6
	NightStartHour = 20
)

// SeasonFor maps a calendar month to its season (northern hemisphere).
func SeasonFor(t time.Time) string {
	switch t.Month() {
	case time.March, time.April, time.May:
		return SeasonSpring
	case time.June, time.July, time.August:
		return SeasonSummer
	case time.September, time.October, time.November:
		return SeasonAutumn
	default:
		return SeasonWinter
	}
}

// IsDaytime reports whether dayStart <= hour < nightStart.
func IsDaytime(t time.Time, dayStart, nightStart int) bool {
	h := t.Hour()
	return h >= dayStart && h < nightStart
}

// SimTime returns a human-readable simulation clock string.
func SimTime(t time.Time) string {
	period := "night"
	if IsDaytime(t, DayStartHour, NightStartHour) {
		period = "day"
	}
	return fmt.Sprintf("%s %s, %d:%02d (%s %s)",
		t.Weekday(), t.Format("Jan 2 2006"), t.Hour(), t.Minute(), SeasonFor(t), period)
}
