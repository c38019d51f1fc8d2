package market

import (
	"fmt"
	"time"
)

// Interval is a candle timeframe. The zero value is invalid.
type Interval time.Duration

const (
	M1  Interval = Interval(time.Minute)
	M3  Interval = Interval(3 * time.Minute)
	M5  Interval = Interval(5 * time.Minute)
	M15 Interval = Interval(15 * time.Minute)
	M30 Interval = Interval(30 * time.Minute)
	H1  Interval = Interval(time.Hour)
	H4  Interval = Interval(4 * time.Hour)
	D1  Interval = Interval(24 * time.Hour)
)

var intervalNames = map[Interval]string{
	M1:  "1m",
	M3:  "3m",
	M5:  "5m",
	M15: "15m",
	M30: "30m",
	H1:  "1h",
	H4:  "4h",
	D1:  "1d",
}

// ParseInterval converts a timeframe label like "5m" or "1h" to an Interval.
func ParseInterval(s string) (Interval, error) {
	for iv, name := range intervalNames {
		if name == s {
			return iv, nil
		}
	}
	return 0, fmt.Errorf("unknown interval %q", s)
}

// String returns the exchange label for the interval ("1m", "5m", ...).
// Intervals outside the known set fall back to Go duration notation.
func (iv Interval) String() string {
	if name, ok := intervalNames[iv]; ok {
		return name
	}
	return time.Duration(iv).String()
}

// Duration returns the interval as a time.Duration.
func (iv Interval) Duration() time.Duration { return time.Duration(iv) }

// Truncate aligns t down to the interval boundary in UTC.
func (iv Interval) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Duration(iv))
}

// Valid reports whether the interval is positive.
func (iv Interval) Valid() bool { return iv > 0 }
