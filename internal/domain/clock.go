package domain

import (
	"fmt"
	"time"
)

// clockLayout is the wall-clock form planned start times are stored in.
const clockLayout = "15:04"

// ParseClock converts an "HH:MM" value to minutes since midnight.
func ParseClock(value string) (int, error) {
	t, err := time.Parse(clockLayout, value)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock converts minutes since midnight back to "HH:MM", wrapping past
// midnight so reorder arithmetic never produces an unparseable value.
func FormatClock(minutes int) string {
	minutes %= 24 * 60
	if minutes < 0 {
		minutes += 24 * 60
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ResolveClockOn anchors an "HH:MM" value to the calendar date of the given
// day. Statistics uses this to compare planned wall-clock starts against
// actual timestamps.
func ResolveClockOn(day time.Time, value string) (time.Time, error) {
	minutes, err := ParseClock(value)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, minutes/60, minutes%60, 0, 0, day.Location()), nil
}
