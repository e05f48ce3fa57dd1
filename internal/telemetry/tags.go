package telemetry

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Tags is an insertion-ordered set of labels
type Tags []string

// NewTags builds a tag set from labels, dropping duplicates and empties
func NewTags(labels ...string) Tags {
	var t Tags
	return t.Add(labels...)
}

// Add appends labels not already present
func (t Tags) Add(labels ...string) Tags {
	for _, l := range labels {
		if l == "" || slices.Contains(t, l) {
			continue
		}
		t = append(t, l)
	}
	return t
}

// Has reports whether label is present
func (t Tags) Has(label string) bool {
	return slices.Contains(t, label)
}

// UserEmail returns the actor email or ""
func (e *Event) UserEmail() string {
	if e.User == nil {
		return ""
	}
	return e.User.Email
}

// SrcIP returns the source address or ""
func (e *Event) SrcIP() string {
	if e.Network == nil {
		return ""
	}
	return e.Network.SrcIP
}

// DstIP returns the destination address or ""
func (e *Event) DstIP() string {
	if e.Network == nil {
		return ""
	}
	return e.Network.DstIP
}

// SrcCountry returns the source geo country or ""
func (e *Event) SrcCountry() string {
	if e.Network == nil || e.Network.SrcGeo == nil {
		return ""
	}
	return e.Network.SrcGeo.Country
}

// SrcLocation renders "City, Country" for the source geo
func (e *Event) SrcLocation() string {
	city, country := "Unknown", "Unknown"
	if e.Network != nil && e.Network.SrcGeo != nil {
		if e.Network.SrcGeo.City != "" {
			city = e.Network.SrcGeo.City
		}
		if e.Network.SrcGeo.Country != "" {
			country = e.Network.SrcGeo.Country
		}
	}
	return city + ", " + country
}

// Hostname returns the device hostname or ""
func (e *Event) Hostname() string {
	if e.Device == nil {
		return ""
	}
	return e.Device.Hostname
}

// DeviceUnknown reports a login from an unnamed or "unknown" device
func (e *Event) DeviceUnknown() bool {
	h := strings.TrimSpace(e.Hostname())
	return h == "" || strings.EqualFold(h, "unknown")
}

// HasIOC reports whether enrichment attached any IOC match
func (e *Event) HasIOC() bool {
	return len(e.IOCMatches) > 0
}

// AddIOCMatch appends m unless an identical match exists
func (e *Event) AddIOCMatch(m IOCMatch) bool {
	if slices.Contains(e.IOCMatches, m) {
		return false
	}
	e.IOCMatches = append(e.IOCMatches, m)
	return true
}

// Detail returns details[key] rendered as a string
func (e *Event) Detail(key string) string {
	v, ok := e.Details[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []string:
		return strings.Join(t, ";")
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprint(t)
	}
}

// DetailInt returns details[key] as an int, 0 when absent or malformed
func (e *Event) DetailInt(key string) int {
	switch t := e.Details[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Since returns e.Timestamp - other.Timestamp
func (e *Event) Since(other *Event) time.Duration {
	return e.Timestamp.Sub(other.Timestamp)
}
