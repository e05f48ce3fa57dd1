package normalization

import (
	"maps"
	"slices"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

const genericRawFields = 10

// Generic is the fallback adapter. It sniffs timestamp, user and IP columns
// by header name. Headers fixes the column order for CSV input; JSON input
// leaves it empty and each record's keys are used in sorted order.
type Generic struct {
	Headers []string
	JSON    bool
}

// NewGenericCSV returns the fallback for a CSV file with the given header row
func NewGenericCSV(headers []string) Generic {
	return Generic{Headers: slices.Clone(headers)}
}

// NewGenericJSON returns the fallback for unrecognized JSON records
func NewGenericJSON() Generic {
	return Generic{JSON: true}
}

func (g Generic) Family() Family {
	if g.JSON {
		return FamilyGenericJSON
	}
	return FamilyGenericCSV
}

func (g Generic) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	headers := g.Headers
	if len(headers) == 0 {
		headers = slices.Sorted(maps.Keys(rec))
	}

	var tsRaw any
	for _, h := range headers {
		if containsAny(strings.ToLower(h), "time", "date", "timestamp") {
			if _, ok := telemetry.ParseTimestamp(rec[h]); ok {
				tsRaw = rec[h]
				break
			}
		}
	}
	ts, synthetic, err := rc.timestamp(g.Family(), "timestamp", tsRaw, row, true)
	if err != nil {
		return nil, err
	}

	ev := &telemetry.Event{
		EventID:     rc.IDs.NextEvent("gen"),
		Timestamp:   ts,
		SyntheticTS: synthetic,
		Source:      telemetry.SourceGeneric,
		EventType:   telemetry.EventGeneric,
		Severity:    2,
		Tags:        telemetry.NewTags("simulated", "normalized", "generic"),
		IOCMatches:  []telemetry.IOCMatch{},
	}

	for _, h := range headers {
		if !containsAny(strings.ToLower(h), "user", "email", "account", "name") {
			continue
		}
		val := rec.String(h)
		if val == "" {
			continue
		}
		if !strings.Contains(val, "@") {
			val += "@temp.local"
		}
		u := rc.Pseudo.Email(val)
		ev.User = &u
		break
	}

	for _, h := range headers {
		lower := strings.ToLower(h)
		if !containsAny(lower, "ip", "address", "src", "dst") {
			continue
		}
		val := rec.String(h)
		if !strings.Contains(val, ".") {
			continue
		}
		if ev.Network == nil {
			ev.Network = &telemetry.Network{}
		}
		if containsAny(lower, "src", "source") {
			ev.Network.SrcIP = rc.Pseudo.IP(val, true)
		} else {
			ev.Network.DstIP = rc.Pseudo.IP(val, false)
		}
	}

	ev.Raw = make(map[string]any, genericRawFields)
	for i, h := range headers {
		if i == genericRawFields {
			break
		}
		ev.Raw[h] = truncateRunes(asString(rec[h]), 100)
	}

	return ev, nil
}
