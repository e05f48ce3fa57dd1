package normalization

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// segmentMax bounds the free-form part of an event_type
const segmentMax = 30

var (
	domainRe  = regexp.MustCompile(`^(?:https?://)?(?:www\.)?([^/:]+)`)
	segmentRe = regexp.MustCompile(`[^a-z0-9_]+`)
)

// Has reports whether key is present, even with an empty value
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// String returns the first non-empty value among keys as a string.
// "-" is treated as empty, as Windows and access logs use it for null.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		if s := asString(r[k]); s != "" && s != "-" {
			return s
		}
	}
	return ""
}

// Map returns r[key] as a nested record, decoding JSON strings
func (r Record) Map(key string) Record {
	switch v := r[key].(type) {
	case map[string]any:
		return Record(v)
	case Record:
		return v
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(v), &m) == nil {
			return Record(m)
		}
	}
	return nil
}

// decodeJSON parses s as a JSON value, nil when it is not JSON
func decodeJSON(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	return v
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// asInt converts numbers and numeric strings (including 0x hex) to int
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	}
	s := asString(v)
	if s == "" || s == "-" {
		return 0, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, err := strconv.ParseInt(s[2:], 16, 64)
		return int(n), err == nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// asFloat converts v to float64, 0 when missing or malformed
func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	}
	f, err := strconv.ParseFloat(asString(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// extractDomain returns the host part of a URL or bare domain
func extractDomain(url string) string {
	m := domainRe.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return ""
	}
	return m[1]
}

// emailDomain returns the part after @
func emailDomain(email string) string {
	_, d, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return d
}

// localPart returns the part before @
func localPart(email string) string {
	l, _, _ := strings.Cut(email, "@")
	return l
}

// eventSegment turns a free-form operation name into an event_type segment
func eventSegment(s string, max int) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = truncateRunes(s, max)
	s = segmentRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

func truncateRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// containsAny reports whether s contains one of needles
func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// lowerHeaders lowercases header names for sniffing
func lowerHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return out
}

func countTrue(indicators ...bool) int {
	n := 0
	for _, ok := range indicators {
		if ok {
			n++
		}
	}
	return n
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
