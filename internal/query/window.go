package query

import (
	"strconv"
	"time"
)

// DefaultWindow is the lookback used when a window string cannot be parsed:
// the last calendar day.
const DefaultWindow = 24 * time.Hour

// ParseWindow turns a relative-time string into a lookback duration. The
// grammar is a signed integer followed by a unit suffix: m (minutes),
// h (hours) or d (days), e.g. "-30m", "-24h", "-7d". An unrecognized suffix
// or malformed string falls back to DefaultWindow.
func ParseWindow(window string) time.Duration {
	if len(window) < 2 {
		return DefaultWindow
	}

	unit := window[len(window)-1]
	value, err := strconv.Atoi(window[:len(window)-1])
	if err != nil {
		return DefaultWindow
	}

	if value < 0 {
		value = -value
	}
	if value == 0 {
		return DefaultWindow
	}

	switch unit {
	case 'm':
		return time.Duration(value) * time.Minute
	case 'h':
		return time.Duration(value) * time.Hour
	case 'd':
		return time.Duration(value) * 24 * time.Hour
	default:
		return DefaultWindow
	}
}

// WindowStart resolves a window string against now.
func WindowStart(window string, now time.Time) time.Time {
	return now.Add(-ParseWindow(window))
}
