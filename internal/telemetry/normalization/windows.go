package normalization

import (
	"fmt"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/pseudo"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var windowsEventTypes = map[int]string{
	4624:  "auth.login_success",
	4625:  "auth.login_fail",
	4634:  "auth.logoff",
	4647:  "auth.logoff_user",
	4648:  "auth.login_explicit",
	4662:  "ad.object_access",
	4663:  "file.access",
	4688:  "process.start",
	4689:  "process.stop",
	4697:  "service.install",
	4698:  "task.create",
	4699:  "task.delete",
	4700:  "task.enable",
	4701:  "task.disable",
	4702:  "task.update",
	4720:  "account.create",
	4722:  "account.enable",
	4723:  "account.password_change",
	4724:  "account.password_reset",
	4725:  "account.disable",
	4726:  "account.delete",
	4728:  "group.member_add",
	4729:  "group.member_remove",
	4732:  "group.member_add_local",
	4733:  "group.member_remove_local",
	4738:  "account.modify",
	4740:  "account.lockout",
	4756:  "group.member_add_universal",
	4757:  "group.member_remove_universal",
	4768:  "kerberos.tgt_request",
	4769:  "kerberos.service_ticket",
	4770:  "kerberos.ticket_renew",
	4771:  "kerberos.preauth_fail",
	4776:  "ntlm.auth",
	4778:  "session.reconnect",
	4779:  "session.disconnect",
	5136:  "ad.object_modify",
	5137:  "ad.object_create",
	5138:  "ad.object_undelete",
	5139:  "ad.object_move",
	5140:  "share.access",
	5141:  "ad.object_delete",
	5145:  "share.access_check",
	5156:  "network.connection_allowed",
	5157:  "network.connection_blocked",
	7045:  "service.install_scm",
	1:     "sysmon.process_create",
	3:     "sysmon.network_connect",
	11:    "sysmon.file_create",
	13:    "sysmon.registry_value",
	18:    "sysmon.pipe_connect",
	412:   "adfs.audit",
	501:   "adfs.claims",
	33205: "sql.audit",
}

var windowsSeverity = map[int]telemetry.Severity{
	4625: 6,
	4662: 5,
	4688: 3,
	4720: 7,
	4726: 7,
	4728: 6,
	4740: 7,
	4771: 6,
	7045: 7,
}

// Windows normalizes Windows Security / Sysmon event log records
type Windows struct{}

func (Windows) Family() Family { return FamilyWindows }

// Detect matches when at least two Windows event log markers are present
func (Windows) Detect(rec Record) bool {
	return countTrue(
		rec.Has("EventID"),
		rec.Has("Computer"),
		rec.String("Type") == "SecurityEvent",
		rec.String("SourceSystem") == "OpsManager",
		rec.Has("EventSourceName"),
		strings.Contains(rec.String("Channel"), "Security"),
	) >= 2
}

func (w Windows) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	if !rec.Has("EventID") || rec["EventID"] == nil {
		return nil, notFamily(FamilyWindows, "EventID")
	}
	code, ok := asInt(rec["EventID"])
	if !ok {
		return nil, malformed(FamilyWindows, "EventID", fmt.Errorf("not numeric: %v", rec["EventID"]))
	}

	tsRaw := firstPresent(rec, "TimeGenerated", "timestamp", "TimeCollected")
	ts, _, err := rc.timestamp(FamilyWindows, "TimeGenerated", tsRaw, row, false)
	if err != nil {
		return nil, err
	}

	eventType, ok := windowsEventTypes[code]
	if !ok {
		eventType = fmt.Sprintf("windows.event_%d", code)
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("win"),
		Timestamp:  ts,
		Source:     telemetry.SourceWindows,
		EventType:  eventType,
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}

	userRaw := rec.String("TargetUserName", "Account", "TargetAccount", "SubjectUserName")
	if userRaw != "" {
		u := rc.Pseudo.Username(userRaw)
		ev.User = &u
	}

	if host := rec.String("Computer"); host != "" {
		os := "Windows 10"
		if containsAny(strings.ToLower(host), "dc", "srv", "adfs") {
			os = "Windows Server"
		}
		ev.Device = &telemetry.Device{ID: DeviceID(host), Hostname: rc.Pseudo.Hostname(host), OS: os}
	}

	if ip := rec.String("IpAddress", "ClientIPAddress"); ip != "" {
		ev.Network = &telemetry.Network{
			SrcIP:  rc.Pseudo.IP(ip, true),
			SrcGeo: telemetry.GeoFromCode(pseudo.GeoCode(ip)),
		}
		if port, ok := asInt(rec["IpPort"]); ok {
			ev.Network.SrcPort = port
		}
	}

	ev.Process = windowsProcess(code, rec)

	sev := windowsSeverity[code]
	if sev == 0 {
		sev = 2
	}
	activity := strings.ToLower(rec.String("Activity"))
	if containsAny(activity, "fail", "denied") {
		sev = sev.Floor(5)
	}
	if strings.Contains(strings.ToLower(userRaw), "admin") {
		sev = sev.Floor(4)
	}
	ev.Severity = sev

	ev.Tags = baseTags(FamilyWindows)
	switch code {
	case 4624, 4625, 4648:
		ev.Tags = ev.Tags.Add("authentication")
	case 4662, 5136, 5137:
		ev.Tags = ev.Tags.Add("ad_access")
	case 4688, 1:
		ev.Tags = ev.Tags.Add("process")
	}
	if lt := rec.String("LogonType"); lt != "" {
		ev.Tags = ev.Tags.Add("logon_type_" + lt)
	}

	return ev, nil
}

func windowsProcess(code int, rec Record) *telemetry.Process {
	switch code {
	case 4688, 1:
		path := rec.String("ProcessName", "Process", "Image")
		if path == "" {
			return nil
		}
		p := &telemetry.Process{
			Name:    baseName(path),
			Path:    path,
			Cmdline: rec.String("CommandLine", "ProcessCommandLine"),
		}
		if pid, ok := asInt(firstPresent(rec, "ProcessId", "ProcessId_string")); ok {
			p.PID = pid
		}
		return p
	case 18:
		image := rec.String("Image")
		return &telemetry.Process{Name: baseName(image), Path: image}
	}
	return nil
}

func baseName(path string) string {
	if i := strings.LastIndex(path, `\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func firstPresent(rec Record, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil && asString(v) != "" {
			return v
		}
	}
	return nil
}
