package normalization

import (
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// CloudMailbox normalizes hosted mailbox audit records
type CloudMailbox struct{}

func (CloudMailbox) Family() Family { return FamilyCloudMailbox }

func (CloudMailbox) Detect(rec Record) bool {
	if !rec.Has("operation") {
		return false
	}
	return countTrue(
		rec.Has("operation"),
		rec.Has("user"),
		rec.Has("client_ip"),
		rec.Has("client_info"),
		rec.Has("rule_actions") || rec.Has("operation_count"),
		rec.Has("session_id"),
	) >= 2
}

func (CloudMailbox) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	operation := rec.String("operation")
	if operation == "" {
		return nil, notFamily(FamilyCloudMailbox, "operation")
	}
	ts, _, err := rc.timestamp(FamilyCloudMailbox, "timestamp", rec["timestamp"], row, false)
	if err != nil {
		return nil, err
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("mbx"),
		Timestamp:  ts,
		Source:     telemetry.SourceCloudMailbox,
		EventType:  "mailbox." + eventSegment(strings.ReplaceAll(operation, "-", "_"), segmentMax),
		Severity:   2,
		User:       plainUser(rec.String("user")),
		Tags:       baseTags(FamilyCloudMailbox, "email"),
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}
	if strings.Contains(operation, "Rule") {
		ev.Severity = 5
	}
	if ua := rec.String("client_info"); ua != "" {
		ev.Device = &telemetry.Device{UserAgent: ua}
	}
	if ip := rec.String("client_ip"); ip != "" {
		ev.Network = &telemetry.Network{SrcIP: ip, SrcGeo: LookupGeo(ip)}
	}
	ev.Details = pickDetails(rec, "operation", "session_id", "rule_name", "rule_conditions", "rule_actions",
		"query", "results_count", "operation_count", "actor", "reason", "client_ip")
	return ev, nil
}
