// Package timespan provides the signed duration type used for split times,
// offsets and game time values, together with its textual form.
package timespan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned when a textual time value cannot be parsed.
var ErrInvalid = errors.New("invalid time span")

// TimeSpan is a signed duration with nanosecond resolution.
type TimeSpan time.Duration

// Zero is the empty time span.
const Zero TimeSpan = 0

// FromDuration converts a time.Duration.
func FromDuration(d time.Duration) TimeSpan {
	return TimeSpan(d)
}

// FromSeconds converts a number of seconds.
func FromSeconds(secs float64) TimeSpan {
	return TimeSpan(secs * float64(time.Second))
}

// Duration returns the span as a time.Duration.
func (t TimeSpan) Duration() time.Duration {
	return time.Duration(t)
}

// TotalSeconds returns the span in fractional seconds.
func (t TimeSpan) TotalSeconds() float64 {
	return time.Duration(t).Seconds()
}

// Ptr returns a pointer to a copy of t.
func (t TimeSpan) Ptr() *TimeSpan {
	return &t
}

// String formats the span as [-]hh:mm:ss[.fffffff]. The fraction is only
// written when non-zero and always carries seven digits.
func (t TimeSpan) String() string {
	d := time.Duration(t)
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	d -= seconds * time.Second
	ticks := d / 100 // 100ns ticks

	if ticks == 0 {
		return fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, minutes, seconds)
	}
	return fmt.Sprintf("%s%02d:%02d:%02d.%07d", sign, hours, minutes, seconds, ticks)
}

func (t TimeSpan) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeSpan) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse reads values of the form [-][[h:]m:]s[.fraction], for example
// "90", "1:30", "00:01:30" or "-0:05.25".
func Parse(s string) (TimeSpan, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalid)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q has too many components", ErrInvalid, s)
	}

	whole, frac, hasFrac := strings.Cut(parts[len(parts)-1], ".")
	secs, err := parseComponent(whole)
	if err != nil {
		return 0, err
	}

	var nanos int64
	if hasFrac {
		if nanos, err = parseFraction(frac); err != nil {
			return 0, err
		}
	}

	total := time.Duration(secs)*time.Second + time.Duration(nanos)
	units := []time.Duration{time.Minute, time.Hour}
	for i, j := len(parts)-2, 0; i >= 0; i, j = i-1, j+1 {
		v, err := parseComponent(parts[i])
		if err != nil {
			return 0, err
		}
		total += time.Duration(v) * units[j]
	}

	if neg {
		total = -total
	}
	return TimeSpan(total), nil
}

func parseComponent(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty component", ErrInvalid)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return v, nil
}

func parseFraction(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty fraction", ErrInvalid)
	}
	if len(s) > 9 {
		s = s[:9]
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: fraction %q", ErrInvalid, s)
		}
	}
	s += strings.Repeat("0", 9-len(s))
	return strconv.ParseInt(s, 10, 64)
}
