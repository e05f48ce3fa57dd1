package normalization

import (
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// EndpointEDR normalizes endpoint agent telemetry
type EndpointEDR struct{}

func (EndpointEDR) Family() Family { return FamilyEndpointEDR }

func (EndpointEDR) Detect(rec Record) bool {
	if !rec.Has("host") {
		return false
	}
	return countTrue(
		rec.Has("host"),
		rec.Has("event_type"),
		rec.Has("process"),
		rec.Has("pid"),
		rec.Has("command_line"),
		rec.Has("parent_process"),
	) >= 2
}

func (EndpointEDR) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	host := rec.String("host")
	if host == "" {
		return nil, notFamily(FamilyEndpointEDR, "host")
	}
	ts, _, err := rc.timestamp(FamilyEndpointEDR, "timestamp", rec["timestamp"], row, false)
	if err != nil {
		return nil, err
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("edr"),
		Timestamp:  ts,
		Source:     telemetry.SourceEndpointEDR,
		EventType:  "endpoint." + eventSegment(rec.String("event_type"), segmentMax),
		Severity:   2,
		Device:     &telemetry.Device{ID: DeviceID(host), Hostname: host},
		Tags:       baseTags(FamilyEndpointEDR, "endpoint"),
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}
	if user := rec.String("user"); user != "" {
		if !strings.Contains(user, "@") {
			user += "@" + rc.CorporateDomain
		}
		ev.User = plainUser(user)
	}

	if name := rec.String("process"); name != "" {
		p := &telemetry.Process{
			Name:       name,
			Cmdline:    rec.String("command_line"),
			ParentName: rec.String("parent_process"),
			SHA256:     rec.String("hash"),
		}
		if pid, ok := asInt(rec["pid"]); ok {
			p.PID = pid
		}
		ev.Process = p
	}
	if path := rec.String("file_path"); path != "" {
		ev.Artifact = &telemetry.Artifact{FilePath: path, FileName: baseName(strings.ReplaceAll(path, "/", `\`))}
	}
	if dst := rec.String("dest_ip", "dst_ip"); dst != "" {
		ev.Network = &telemetry.Network{
			DstIP:    dst,
			DstGeo:   LookupGeo(dst),
			Protocol: strings.ToUpper(rec.String("protocol")),
		}
		if port, ok := asInt(rec["dest_port"]); ok {
			ev.Network.Ports = []int{port}
		}
	}

	ev.Severity = edrSeverity(ev)
	return ev, nil
}

// edrSeverity raises severity for script hosts and LOLBins
func edrSeverity(ev *telemetry.Event) telemetry.Severity {
	sev := ev.Severity
	if ev.Process == nil {
		return sev
	}
	name := strings.ToLower(ev.Process.Name)
	if containsAny(name, "powershell", "rundll32", "mshta", "certutil", "regsvr32") {
		sev = sev.Floor(5)
	}
	if strings.Contains(strings.ToLower(ev.Process.Cmdline), "-enc") {
		sev = sev.Floor(6)
	}
	return sev
}
