package normalization

import (
	"slices"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// EmailGateway normalizes mail gateway delivery logs
type EmailGateway struct{}

func (EmailGateway) Family() Family { return FamilyEmailGateway }

func (EmailGateway) DetectHeaders(headers []string) bool {
	h := lowerHeaders(headers)
	return countTrue(
		slices.Contains(h, "message_id"),
		slices.Contains(h, "sender"),
		slices.Contains(h, "recipient"),
		slices.Contains(h, "direction"),
		slices.Contains(h, "spf_result") || slices.Contains(h, "dkim_result"),
	) >= 3
}

func (EmailGateway) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	direction := strings.ToLower(rec.String("direction"))
	if direction == "" {
		return nil, notFamily(FamilyEmailGateway, "direction")
	}
	ts, _, err := rc.timestamp(FamilyEmailGateway, "timestamp", rec["timestamp"], row, false)
	if err != nil {
		return nil, err
	}

	sender, recipient := rec.String("sender"), rec.String("recipient")
	actor, counterpart := sender, recipient
	if direction == "inbound" {
		actor, counterpart = recipient, sender
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("eml"),
		Timestamp:  ts,
		Source:     telemetry.SourceEmailGateway,
		EventType:  "email." + eventSegment(direction, segmentMax),
		Severity:   2,
		User:       plainUser(actor),
		Network:    &telemetry.Network{DstDomain: emailDomain(counterpart)},
		Tags:       baseTags(FamilyEmailGateway, "email"),
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}
	ev.Details = pickDetails(rec, "message_id", "sender", "recipient", "subject", "urls",
		"spf_result", "dkim_result", "attachment_hashes")
	return ev, nil
}

// plainUser builds a user from an address that is already fictitious
func plainUser(email string) *telemetry.User {
	if email == "" {
		return nil
	}
	return &telemetry.User{ID: UserID(email), Email: email, Display: localPart(email)}
}

// pickDetails copies the present keys of rec into a details map
func pickDetails(rec Record, keys ...string) map[string]any {
	details := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			details[k] = v
		}
	}
	return details
}
