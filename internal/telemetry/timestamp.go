package telemetry

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the canonical second-resolution UTC form
const TimestampLayout = "2006-01-02T15:04:05Z"

// epochMillisThreshold separates epoch seconds from epoch milliseconds
const epochMillisThreshold = 10_000_000_000

var (
	fractionalRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2})\.(\d+)$`)
	offsetRe     = regexp.MustCompile(`^(.*\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?)[+-]\d{2}:?\d{2}$`)
	digitsRe     = regexp.MustCompile(`^\d{9,13}(\.\d+)?$`)

	layouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006/01/02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseTimestamp converts an epoch number or one of the supported date-time
// strings into a UTC, second-truncated time. Offsets are stripped, not
// converted: "10:00:00+03:00" becomes 10:00:00Z.
func ParseTimestamp(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return canonical(v)
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case string:
		return parseString(v)
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in the canonical form
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// SyntheticTimestamp derives a stand-in time for row when no timestamp
// could be recovered: reference - 7 days + row minutes.
func SyntheticTimestamp(reference time.Time, row int) time.Time {
	base := reference.UTC().Truncate(time.Second).Add(-7 * 24 * time.Hour)
	return base.Add(time.Duration(row) * time.Minute)
}

func fromEpoch(f float64) (time.Time, bool) {
	if f < 0 {
		return time.Time{}, false
	}
	if f > epochMillisThreshold {
		f /= 1000
	}
	return canonical(time.Unix(int64(f), 0))
}

func parseString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if digitsRe.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	}

	s = strings.TrimSuffix(s, "Z")
	if m := offsetRe.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	if m := fractionalRe.FindStringSubmatch(s); m != nil {
		frac := (m[2] + "000000")[:6]
		base := strings.Replace(m[1], " ", "T", 1)
		if t, err := time.Parse("2006-01-02T15:04:05.000000", base+"."+frac); err == nil {
			return canonical(t)
		}
		s = m[1]
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return canonical(t)
		}
	}
	return time.Time{}, false
}

func canonical(t time.Time) (time.Time, bool) {
	t = t.UTC().Truncate(time.Second)
	if t.Year() < 1 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t, true
}
