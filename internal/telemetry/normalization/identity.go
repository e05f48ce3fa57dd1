package normalization

import (
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// IdentityProvider normalizes IdP sign-in and MFA logs
type IdentityProvider struct{}

func (IdentityProvider) Family() Family { return FamilyIdentityProvider }

func (IdentityProvider) Detect(rec Record) bool {
	if !rec.Has("event") {
		return false
	}
	return countTrue(
		rec.Has("user"),
		rec.Has("event"),
		rec.Has("result"),
		rec.Has("mfa_method"),
		rec.Has("device_id"),
		rec.Has("session_id"),
	) >= 3
}

func (IdentityProvider) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	event := rec.String("event")
	if event == "" {
		return nil, notFamily(FamilyIdentityProvider, "event")
	}
	ts, _, err := rc.timestamp(FamilyIdentityProvider, "timestamp", rec["timestamp"], row, false)
	if err != nil {
		return nil, err
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("idp"),
		Timestamp:  ts,
		Source:     telemetry.SourceIdentityProvider,
		EventType:  "auth." + eventSegment(event, segmentMax),
		Severity:   2,
		User:       plainUser(rec.String("user")),
		Tags:       baseTags(FamilyIdentityProvider, "authentication"),
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}
	if rec.String("result") == "fail" {
		ev.Severity = 5
	}

	host := rec.String("device_id")
	if host == "" {
		host = "unknown"
	}
	os := rec.String("device_os")
	if os == "" {
		os = "Unknown"
	}
	ev.Device = &telemetry.Device{ID: DeviceID(host), Hostname: host, OS: os, UserAgent: rec.String("device_agent")}

	if ip := rec.String("src_ip"); ip != "" {
		ev.Network = &telemetry.Network{SrcIP: ip, SrcGeo: LookupGeo(ip)}
	}
	ev.Details = pickDetails(rec, "event", "result", "mfa_method", "session_id", "reason", "action", "actor")
	return ev, nil
}
