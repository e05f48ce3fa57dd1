package normalization

import (
	"slices"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/pseudo"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var attackSeverity = map[string]telemetry.Severity{
	"malware":       7,
	"ddos":          6,
	"intrusion":     8,
	"phishing":      6,
	"ransomware":    9,
	"apt":           9,
	"brute_force":   5,
	"sql_injection": 7,
	"xss":           5,
	"data_breach":   8,
}

// Attack normalizes cybersecurity attack datasets (one attack per row)
type Attack struct{}

func (Attack) Family() Family { return FamilyAttackDataset }

func (Attack) DetectHeaders(headers []string) bool {
	h := lowerHeaders(headers)
	return countTrue(
		slices.Contains(h, "timestamp"),
		slices.ContainsFunc(h, func(s string) bool { return strings.Contains(s, "ip") }),
		slices.Contains(h, "attack type") || slices.Contains(h, "attack_type"),
		slices.Contains(h, "severity") || slices.Contains(h, "severity level"),
		slices.Contains(h, "protocol"),
		slices.Contains(h, "action taken") || slices.Contains(h, "action_taken"),
	) >= 3
}

func (Attack) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	ts, synthetic, err := rc.timestamp(FamilyAttackDataset, "Timestamp",
		firstPresent(rec, "Timestamp", "timestamp", "time", "Time", "datetime"), row, true)
	if err != nil {
		return nil, err
	}

	attackType := strings.ToLower(rec.String("Attack Type", "attack_type", "attack"))
	if attackType == "" {
		attackType = "unknown"
	}

	ev := &telemetry.Event{
		EventID:     rc.IDs.NextEvent("atk"),
		Timestamp:   ts,
		SyntheticTS: synthetic,
		Source:      telemetry.SourceAttackDataset,
		EventType:   "attack." + eventSegment(attackType, segmentMax),
		IOCMatches:  []telemetry.IOCMatch{},
	}

	src := rec.String("Source IP Address", "source_ip", "src_ip")
	dst := rec.String("Destination IP Address", "dest_ip", "dst_ip")
	if src != "" || dst != "" {
		n := &telemetry.Network{}
		if src != "" {
			n.SrcIP = rc.Pseudo.IP(src, true)
			n.SrcGeo = telemetry.GeoFromCode(pseudo.GeoCode(src))
		}
		if dst != "" {
			n.DstIP = rc.Pseudo.IP(dst, false)
			n.DstGeo = telemetry.GeoFromCode(pseudo.GeoCode(dst))
		}
		if port, ok := asInt(firstPresent(rec, "Source Port", "source_port")); ok {
			n.SrcPort = port
		}
		if port, ok := asInt(firstPresent(rec, "Destination Port", "dest_port")); ok {
			n.Ports = []int{port}
		}
		n.Protocol = strings.ToUpper(rec.String("Protocol", "protocol"))
		ev.Network = n
	}

	if info := rec.String("User Information", "user", "username"); info != "" {
		u := rc.Pseudo.Email(info + "@temp.local")
		ev.User = &u
	}

	if info := rec.String("Device Information", "device"); info != "" {
		d := &telemetry.Device{ID: DeviceID(info), Hostname: rc.Pseudo.Hostname(truncateRunes(info, 30))}
		if len([]rune(info)) > 30 {
			d.UserAgent = truncateRunes(info, 200)
		}
		ev.Device = d
	}

	level := strings.ToLower(rec.String("Severity Level", "severity", "Severity"))
	var sev telemetry.Severity
	switch level {
	case "critical", "high":
		sev = 8
	case "medium":
		sev = 5
	case "low":
		sev = 3
	default:
		var ok bool
		if sev, ok = attackSeverity[attackType]; !ok {
			sev = 5
		}
	}

	anomaly := asFloat(firstPresent(rec, "Anomaly Scores", "anomaly_score"))
	switch {
	case anomaly > 70:
		sev = (sev + 2).Clamp()
	case anomaly > 50:
		sev = (sev + 1).Clamp()
	}

	tags := baseTags(FamilyAttackDataset, "attack:"+attackType)
	if strings.Contains(strings.ToLower(rec.String("Malware Indicators", "malware_indicators")), "detected") {
		tags = tags.Add("malware_detected")
		sev = sev.Floor(7)
	}
	if strings.Contains(strings.ToLower(rec.String("Alerts/Warnings", "alerts")), "triggered") {
		tags = tags.Add("alert_triggered")
	}
	action := strings.ToLower(rec.String("Action Taken", "action_taken", "action"))
	if action != "" {
		tags = tags.Add("action:" + action)
		if strings.Contains(action, "blocked") {
			tags = tags.Add("blocked")
		}
	}
	ev.Severity = sev
	ev.Tags = tags

	ev.Raw = map[string]any{
		"attack_type":    attackType,
		"severity_level": level,
		"action_taken":   action,
		"anomaly_score":  anomaly,
	}
	if payload := rec.String("Payload Data", "payload"); payload != "" {
		ev.Raw["payload_snippet"] = truncateRunes(payload, 100)
	}

	return ev, nil
}
