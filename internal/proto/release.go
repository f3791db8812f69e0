package proto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidRelease is returned for release identifiers that do not parse.
var ErrInvalidRelease = errors.New("invalid release identifier")

// Release identifies the client build, e.g. "october_5_2017".
type Release struct {
	Raw  string
	Date time.Time
}

// ParseRelease parses a "<month>_<day>_<year>" release identifier.
func ParseRelease(raw string) (Release, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	parts := strings.Split(raw, "_")
	if len(parts) != 3 {
		return Release{}, fmt.Errorf("%w: %q", ErrInvalidRelease, raw)
	}

	month, ok := months[parts[0]]
	if !ok {
		return Release{}, fmt.Errorf("%w: unknown month %q", ErrInvalidRelease, parts[0])
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 || day > 31 {
		return Release{}, fmt.Errorf("%w: bad day %q", ErrInvalidRelease, parts[1])
	}
	year, err := strconv.Atoi(parts[2])
	if err != nil || year < 2015 || year > 2100 {
		return Release{}, fmt.Errorf("%w: bad year %q", ErrInvalidRelease, parts[2])
	}

	return Release{
		Raw:  raw,
		Date: time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
	}, nil
}

// Year returns the release year as used by guild exclusions ("2016").
func (r Release) Year() string {
	if r.Date.IsZero() {
		return ""
	}
	return strconv.Itoa(r.Date.Year())
}

// Before reports whether the build predates the given date.
func (r Release) Before(year int, month time.Month, day int) bool {
	return r.Date.Before(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// ExpectsReadyHeartbeat reports whether the build reads the heartbeat interval
// from READY instead of Hello.
func (r Release) ExpectsReadyHeartbeat() bool {
	return !r.Date.IsZero() && r.Before(2016, time.January, 1)
}

var months = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}
