package normalization

import (
	"slices"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/pseudo"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var m365ActionTypes = map[string]string{
	"LdapSearch":                           "ad.ldap_search",
	"LdapModify":                           "ad.ldap_modify",
	"LdapAdd":                              "ad.ldap_add",
	"LdapDelete":                           "ad.ldap_delete",
	"Directory Services replication":       "ad.dcsync",
	"ProcessCreated":                       "endpoint.process_start",
	"FileCreated":                          "endpoint.file_create",
	"FileModified":                         "endpoint.file_modify",
	"FileDeleted":                          "endpoint.file_delete",
	"FileRenamed":                          "endpoint.file_rename",
	"RegistryValueSet":                     "endpoint.registry_set",
	"RegistryKeyCreated":                   "endpoint.registry_create",
	"NetworkConnectionCreated":             "endpoint.network_connect",
	"DnsQueryResponse":                     "network.dns_response",
	"ConnectionSuccess":                    "network.connection_success",
	"ConnectionFailed":                     "network.connection_failed",
	"MailItemsAccessed":                    "email.mailbox_access",
	"Add delegated permission grant.":      "idp.permission_grant",
	"Consent to application.":              "idp.app_consent",
	"AntivirusDetection":                   "endpoint.av_detect",
	"BehaviorDetection":                    "endpoint.behavior_detect",
	"ExploitGuardNetworkProtectionBlocked": "endpoint.network_blocked",
}

var m365HighActions = []string{
	"Directory Services replication",
	"AntivirusDetection",
	"BehaviorDetection",
	"ExploitGuardNetworkProtectionBlocked",
}

var m365MediumActions = []string{
	"MailItemsAccessed",
	"Add delegated permission grant",
	"Consent to application",
	"LdapSearch",
}

var m365Applications = []string{"Active Directory", "Microsoft Exchange Online", "Office 365"}

// M365Defender normalizes Microsoft 365 Defender advanced hunting records
type M365Defender struct{}

func (M365Defender) Family() Family { return FamilyM365Defender }

func (M365Defender) Detect(rec Record) bool {
	return countTrue(
		rec.Has("ActionType"),
		rec.Has("DeviceName") || rec.Has("DeviceId"),
		rec.Has("InitiatingProcessFileName"),
		rec.Has("Timestamp") && strings.Contains(rec.String("Timestamp"), "T"),
		rec.Has("ReportId") || rec.Has("ReportId_long"),
		slices.Contains(m365Applications, rec.String("Application")),
	) >= 2
}

func (M365Defender) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	action := rec.String("ActionType")
	if action == "" {
		action = "unknown"
	}
	eventType, ok := m365ActionTypes[action]
	if !ok {
		eventType = "m365." + eventSegment(action, segmentMax)
	}

	ts, _, err := rc.timestamp(FamilyM365Defender, "Timestamp", rec["Timestamp"], row, false)
	if err != nil {
		return nil, err
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("m365"),
		Timestamp:  ts,
		Source:     telemetry.SourceM365Defender,
		EventType:  eventType,
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}

	if upn := rec.String("AccountUpn", "InitiatingProcessAccountUpn", "AccountDisplayName", "AccountName", "UserId"); upn != "" {
		u := rc.Pseudo.Email(upn)
		ev.User = &u
	} else if nested := m365RawData(rec); nested != nil {
		if id := nested.String("UserId", "MailboxOwnerUPN"); id != "" {
			u := rc.Pseudo.Email(id)
			ev.User = &u
		}
	}

	if host := rec.String("DeviceName"); host != "" {
		os := rec.String("OSPlatform")
		if os == "" {
			os = "Windows"
		}
		ev.Device = &telemetry.Device{ID: DeviceID(host), Hostname: rc.Pseudo.Hostname(host), OS: os}
	}

	src := rec.String("IPAddress", "LocalIP")
	dst := rec.String("DestinationIPAddress", "RemoteIP")
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
		if port, ok := asInt(firstPresent(rec, "DestinationPort", "RemotePort")); ok {
			n.Ports = []int{port}
		}
		ev.Network = n
	}

	if name := rec.String("InitiatingProcessFileName", "FileName"); name != "" {
		p := &telemetry.Process{
			Name:       name,
			Path:       rec.String("InitiatingProcessFolderPath"),
			Cmdline:    rec.String("InitiatingProcessCommandLine", "ProcessCommandLine"),
			ParentName: rec.String("InitiatingProcessParentFileName"),
			SHA256:     rec.String("InitiatingProcessSHA256", "SHA256"),
		}
		if pid, ok := asInt(rec["InitiatingProcessId"]); ok {
			p.PID = pid
		}
		ev.Process = p
	}

	if path := rec.String("FolderPath", "FilePath"); path != "" {
		ev.Artifact = &telemetry.Artifact{FilePath: path, FileName: rec.String("FileName")}
		if sha := rec.String("SHA256"); sha != "" {
			ev.Artifact.Hash = "sha256:" + sha
		}
	}

	lowerAction := strings.ToLower(action)
	var sev telemetry.Severity
	switch {
	case slices.Contains(m365HighActions, action):
		sev = 8
	case slices.Contains(m365MediumActions, action):
		sev = 5
	case containsAny(lowerAction, "fail", "blocked"):
		sev = 6
	default:
		sev = 3
	}
	if strings.Contains(eventType, "dcsync") || strings.Contains(lowerAction, "replication") {
		sev = 9
	}
	if ev.Process != nil && strings.EqualFold(ev.Process.Name, "powershell.exe") {
		sev = sev.Floor(5)
	}
	ev.Severity = sev

	ev.Tags = baseTags(FamilyM365Defender)
	if app := rec.String("Application"); app != "" {
		ev.Tags = ev.Tags.Add("app:" + truncateRunes(strings.ReplaceAll(strings.ToLower(app), " ", "_"), 20))
	}
	if strings.Contains(lowerAction, "ldap") {
		ev.Tags = ev.Tags.Add("ldap", "reconnaissance")
	}
	if strings.Contains(lowerAction, "mail") {
		ev.Tags = ev.Tags.Add("email")
	}
	if strings.Contains(lowerAction, "replication") {
		ev.Tags = ev.Tags.Add("mitre:T1003.006")
	}
	if containsAny(lowerAction, "permission", "consent") {
		ev.Tags = ev.Tags.Add("oauth")
	}

	return ev, nil
}

func m365RawData(rec Record) Record {
	if m := rec.Map("RawEventData"); m != nil {
		return m
	}
	return rec.Map("rawData")
}
