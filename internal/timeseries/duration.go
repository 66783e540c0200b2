package timeseries

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDuration  = errors.New("invalid ISO 8601 duration")
	ErrNominalDuration  = errors.New("nominal durations (years, months) are not supported")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

const day = 24 * time.Hour

// ParseDuration parses an ISO 8601 duration such as PT15M, P1DT2H or -PT40M.
// Only exact durations are supported: weeks, days, hours, minutes and seconds.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	seen := false
	// designators must appear at most once and in W, D, H, M, S order
	lastRank := 0
	for len(s) > 0 {
		if s[0] == 'T' {
			if inTime {
				return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
			}
			inTime = true
			s = s[1:]
			if len(s) == 0 {
				return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
			}
			continue
		}
		i := 0
		for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
			i++
		}
		if i == 0 || i == len(s) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		n, err := strconv.ParseFloat(s[:i], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		var unit time.Duration
		var rank int
		switch designator := s[i]; {
		case designator == 'Y' && !inTime, designator == 'M' && !inTime:
			return 0, fmt.Errorf("%w: %q", ErrNominalDuration, orig)
		case designator == 'W' && !inTime:
			unit, rank = 7*day, 1
		case designator == 'D' && !inTime:
			unit, rank = day, 2
		case designator == 'H' && inTime:
			unit, rank = time.Hour, 3
		case designator == 'M' && inTime:
			unit, rank = time.Minute, 4
		case designator == 'S' && inTime:
			unit, rank = time.Second, 5
		default:
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		if rank <= lastRank {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
		}
		lastRank = rank
		total += time.Duration(n * float64(unit))
		seen = true
		s = s[i+1:]
	}
	if !seen {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, orig)
	}
	if neg {
		total = -total
	}
	return total, nil
}

// FormatDuration renders d as an ISO 8601 duration, e.g. PT1H30M or -P1DT13H.
func FormatDuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteByte('P')
	if days := d / day; days > 0 {
		fmt.Fprintf(&b, "%dD", days)
		d -= days * day
	}
	if d == 0 {
		return b.String()
	}
	b.WriteByte('T')
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if d > 0 {
		b.WriteString(strconv.FormatFloat(d.Seconds(), 'f', -1, 64))
		b.WriteByte('S')
	}
	return b.String()
}

// ParseHorizon parses a belief horizon. A leading "R/" marks a rolling
// horizon, which applies to each event instead of to the whole period.
func ParseHorizon(s string) (time.Duration, bool, error) {
	rolling := false
	if strings.HasPrefix(s, "R/") {
		rolling = true
		s = s[2:]
	}
	d, err := ParseDuration(s)
	return d, rolling, err
}

var frequencyUnits = map[string]time.Duration{
	"s":   time.Second,
	"S":   time.Second,
	"sec": time.Second,
	"T":   time.Minute,
	"min": time.Minute,
	"m":   time.Minute,
	"h":   time.Hour,
	"H":   time.Hour,
	"D":   day,
	"d":   day,
	"W":   7 * day,
	"w":   7 * day,
}

// ParseFrequency parses a resampling rule. It accepts ISO 8601 durations
// (PT1H) and pandas-style offset aliases (1h, 15min, 15T, 1D, 30s).
func ParseFrequency(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		d, err := ParseDuration(s)
		if err != nil {
			return 0, err
		}
		if d <= 0 {
			return 0, fmt.Errorf("%w: %q must be positive", ErrInvalidFrequency, s)
		}
		return d, nil
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	n := 1
	if i > 0 {
		var err error
		if n, err = strconv.Atoi(s[:i]); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
		}
	}
	unit, ok := frequencyUnits[s[i:]]
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
	return time.Duration(n) * unit, nil
}

// ParseTime parses an RFC 3339 timestamp. Offsets whose plus sign was lost to
// URL decoding ("2022-01-01T00:00:00 00:00") are accepted too.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, ' '); i > 0 && strings.Contains(s[:i], "T") {
		s = s[:i] + "+" + s[i+1:]
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
