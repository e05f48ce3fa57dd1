package normalization

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yatuk/SOC-case-study-project/internal/pseudo"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var reference = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func rawContext(t *testing.T) *RunContext {
	t.Helper()
	p, err := pseudo.New(false, 0)
	require.NoError(t, err)
	return NewRunContext(p, reference, "acmecorp.example.com")
}

func pseudoContext(t *testing.T) *RunContext {
	t.Helper()
	p, err := pseudo.New(true, 0)
	require.NoError(t, err)
	return NewRunContext(p, reference, "acmecorp.example.com")
}

// =============================================================================
// Windows
// =============================================================================

func TestWindows_FailedLogon(t *testing.T) {
	rc := rawContext(t)
	rec := Record{
		"EventID":        float64(4625),
		"TimeGenerated":  "2024-03-01T08:00:00Z",
		"Computer":       "WS-FIN-01",
		"TargetUserName": "jdoe",
		"IpAddress":      "203.0.113.5",
		"IpPort":         "51234",
		"LogonType":      "3",
		"Type":           "SecurityEvent",
	}
	require.True(t, Windows{}.Detect(rec))

	ev, err := Windows{}.Normalize(rc, rec, 0)
	require.NoError(t, err)

	assert.Equal(t, "win-000001", ev.EventID)
	assert.Equal(t, telemetry.SourceWindows, ev.Source)
	assert.Equal(t, telemetry.EventLoginFail, ev.EventType)
	assert.Equal(t, telemetry.Severity(6), ev.Severity)
	assert.Equal(t, "2024-03-01T08:00:00Z", telemetry.FormatTimestamp(ev.Timestamp))
	require.NotNil(t, ev.User)
	require.NotNil(t, ev.Network)
	assert.Equal(t, "203.0.113.5", ev.Network.SrcIP)
	assert.Equal(t, 51234, ev.Network.SrcPort)
	assert.True(t, ev.Tags.Has("authentication"))
	assert.True(t, ev.Tags.Has("logon_type_3"))
	assert.Equal(t, "Windows 10", ev.Device.OS)
	assert.NotNil(t, ev.IOCMatches)
}

func TestWindows_UnknownCodeAndServerHost(t *testing.T) {
	rc := rawContext(t)
	ev, err := Windows{}.Normalize(rc, Record{
		"EventID":       "9999",
		"TimeGenerated": "2024-03-01 08:00:00",
		"Computer":      "corp-dc-02",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "windows.event_9999", ev.EventType)
	assert.Equal(t, telemetry.Severity(2), ev.Severity)
	assert.Equal(t, "Windows Server", ev.Device.OS)
}

func TestWindows_Errors(t *testing.T) {
	rc := rawContext(t)

	_, err := Windows{}.Normalize(rc, Record{"Computer": "x"}, 0)
	assert.ErrorIs(t, err, ErrNotFamily)

	_, err = Windows{}.Normalize(rc, Record{"EventID": "abc", "TimeGenerated": "2024-03-01T08:00:00Z"}, 0)
	var recErr *RecordError
	require.ErrorAs(t, err, &recErr)
	assert.Equal(t, "EventID", recErr.Field)
	assert.False(t, errors.Is(err, ErrNotFamily))

	_, err = Windows{}.Normalize(rc, Record{"EventID": 4624, "TimeGenerated": "garbage"}, 0)
	assert.ErrorIs(t, err, ErrNoTimestamp)
}

func TestWindows_ProcessCreation(t *testing.T) {
	rc := rawContext(t)
	ev, err := Windows{}.Normalize(rc, Record{
		"EventID":       4688,
		"TimeGenerated": "2024-03-01T08:00:00Z",
		"ProcessName":   `C:\Windows\System32\cmd.exe`,
		"CommandLine":   "cmd /c whoami",
		"ProcessId":     "0x1f4",
	}, 0)
	require.NoError(t, err)
	require.NotNil(t, ev.Process)
	assert.Equal(t, "cmd.exe", ev.Process.Name)
	assert.Equal(t, 500, ev.Process.PID)
	assert.True(t, ev.Tags.Has("process"))
}

// =============================================================================
// Azure AD
// =============================================================================

func TestAAD_ConsentWithNestedActor(t *testing.T) {
	rc := rawContext(t)
	rec := Record{
		"TimeGenerated":   "2024-03-01T09:30:00Z",
		"OperationName":   "Consent to application",
		"Category":        "ApplicationManagement",
		"SourceSystem":    "Azure AD",
		"InitiatedBy":     `{"user":{"userPrincipalName":"alice@contoso.com"}}`,
		"TargetResources": `[{"displayName":"Mail Sync App","id":"abc"}]`,
		"Result":          "success",
	}
	require.True(t, AAD{}.Detect(rec))

	ev, err := AAD{}.Normalize(rc, rec, 0)
	require.NoError(t, err)
	assert.Equal(t, "idp.app_consent", ev.EventType)
	assert.Equal(t, telemetry.Severity(6), ev.Severity)
	require.NotNil(t, ev.User)
	assert.Equal(t, "alice@contoso.com", ev.User.Email)
	require.NotNil(t, ev.Artifact)
	assert.Equal(t, "Mail Sync App", ev.Artifact.Target)
	assert.True(t, ev.Tags.Has("oauth"))
	assert.True(t, ev.Tags.Has("category:applicationmanagement"))
}

func TestAAD_AppActorAndRoleFloor(t *testing.T) {
	rc := rawContext(t)
	ev, err := AAD{}.Normalize(rc, Record{
		"TimeGenerated": "2024-03-01T09:30:00Z",
		"OperationName": "Add member to role",
		"InitiatedBy":   map[string]any{"app": map[string]any{"displayName": "Provisioner"}},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "idp.role_assign", ev.EventType)
	assert.Equal(t, telemetry.Severity(7), ev.Severity)
	require.NotNil(t, ev.User)
	assert.Equal(t, "App: Provisioner", ev.User.Display)
}

// =============================================================================
// M365 Defender
// =============================================================================

func TestM365Defender_ActionMapping(t *testing.T) {
	tests := []struct {
		action   string
		process  string
		wantType string
		wantSev  telemetry.Severity
	}{
		{"Directory Services replication", "", "ad.dcsync", 9},
		{"LdapSearch", "", "ad.ldap_search", 5},
		{"ConnectionFailed", "", "network.connection_failed", 6},
		{"ProcessCreated", "powershell.exe", "endpoint.process_start", 5},
		{"ProcessCreated", "notepad.exe", "endpoint.process_start", 3},
		{"Some New Action", "", "m365.some_new_action", 3},
	}
	for _, tt := range tests {
		t.Run(tt.action+"/"+tt.process, func(t *testing.T) {
			rc := rawContext(t)
			rec := Record{
				"Timestamp":  "2024-03-01T10:00:00.1234567Z",
				"ActionType": tt.action,
				"DeviceName": "ws-101",
				"AccountUpn": "bob@contoso.com",
			}
			if tt.process != "" {
				rec["InitiatingProcessFileName"] = tt.process
			}
			ev, err := M365Defender{}.Normalize(rc, rec, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, ev.EventType)
			assert.Equal(t, tt.wantSev, ev.Severity)
			assert.Equal(t, "Windows", ev.Device.OS)
		})
	}
}

func TestM365Defender_TagsAndNestedUser(t *testing.T) {
	rc := rawContext(t)
	ev, err := M365Defender{}.Normalize(rc, Record{
		"Timestamp":    "2024-03-01T10:00:00Z",
		"ActionType":   "MailItemsAccessed",
		"Application":  "Microsoft Exchange Online",
		"RawEventData": `{"MailboxOwnerUPN":"carol@contoso.com"}`,
		"IPAddress":    "198.51.100.7",
		"RemotePort":   443,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "email.mailbox_access", ev.EventType)
	assert.True(t, ev.Tags.Has("email"))
	assert.True(t, ev.Tags.Has("app:microsoft_exchange_o"))
	require.NotNil(t, ev.User)
	assert.Equal(t, "carol@contoso.com", ev.User.Email)
	assert.Equal(t, []int{443}, ev.Network.Ports)
}

// =============================================================================
// Phishing IOCs
// =============================================================================

func TestPhishingURL_Confidence(t *testing.T) {
	tests := []struct {
		name      string
		label     string
		source    string
		wantLabel string
		wantConf  float64
	}{
		{"phishtank phishing", "1", "PhishTank", telemetry.LabelPhishing, 0.9},
		{"tranco benign", "0", "tranco", telemetry.LabelBenign, 0.9},
		{"unknown source phishing", "1", "feedx", telemetry.LabelPhishing, 0.5},
		{"non-integer label", "bad", "urlhaus", telemetry.LabelUnknown, 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := rawContext(t)
			ioc, err := PhishingURL{}.NormalizeIOC(rc, Record{
				"url": "http://secure-login.bad.test/path", "label": tt.label, "source": tt.source,
			}, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLabel, ioc.Label)
			assert.InDelta(t, tt.wantConf, ioc.Confidence, 1e-9)
			assert.Equal(t, telemetry.IOCTypeURL, ioc.Type)
			assert.Equal(t, "secure-login.bad.test", ioc.Domain)
			assert.Equal(t, tt.wantLabel == telemetry.LabelPhishing, ioc.Tags.Has("malicious"))
		})
	}
}

func TestPhishingURL_MissingURL(t *testing.T) {
	_, err := PhishingURL{}.NormalizeIOC(rawContext(t), Record{"label": "1"}, 0)
	assert.ErrorIs(t, err, ErrNotFamily)
}

func TestPhishingFeatures_Confidence(t *testing.T) {
	rc := rawContext(t)
	ioc, err := PhishingFeatures{}.NormalizeIOC(rc, Record{
		"url": "http://192.0.2.1/login", "label": "1",
		"suspicious_words": "2", "has_ip": "1", "url_length": "80", "entropy": "4.8123",
	}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, ioc.Confidence, 1e-9)
	assert.Equal(t, "dataset:phishing_features", ioc.Source)
	assert.Equal(t, true, ioc.Features["has_ip"])
	assert.Equal(t, 80, ioc.Features["url_length"])
	assert.InDelta(t, 4.81, ioc.Features["entropy"], 1e-9)

	benign, err := PhishingFeatures{}.NormalizeIOC(rc, Record{"url": "https://example.org", "label": "0"}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, benign.Confidence, 1e-9)
	assert.Equal(t, "ioc-000002", benign.IOCID)
}

// =============================================================================
// Attack dataset
// =============================================================================

func TestAttack_SeverityAndTags(t *testing.T) {
	rc := rawContext(t)
	ev, err := Attack{}.Normalize(rc, Record{
		"Timestamp":              "2023-05-30 06:33:58",
		"Attack Type":            "Malware",
		"Source IP Address":      "103.216.15.12",
		"Destination IP Address": "84.9.164.252",
		"Source Port":            "31225",
		"Destination Port":       "17616",
		"Protocol":               "icmp",
		"Anomaly Scores":         "75.5",
		"Malware Indicators":     "IoC Detected",
		"Alerts/Warnings":        "Alert Triggered",
		"Action Taken":           "Blocked",
		"User Information":       "Reyansh Dugal",
		"Payload Data":           "Qui natus odio asperiores nam.",
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, "attack.malware", ev.EventType)
	assert.Equal(t, telemetry.Severity(9), ev.Severity)
	assert.False(t, ev.SyntheticTS)
	assert.Equal(t, "ICMP", ev.Network.Protocol)
	assert.Equal(t, 31225, ev.Network.SrcPort)
	assert.Equal(t, []int{17616}, ev.Network.Ports)
	for _, tag := range []string{"attack_dataset", "attack:malware", "malware_detected", "alert_triggered", "action:blocked", "blocked"} {
		assert.True(t, ev.Tags.Has(tag), tag)
	}
	assert.Equal(t, "Reyansh Dugal@temp.local", ev.User.Email)
	assert.Equal(t, "Qui natus odio asperiores nam.", ev.Raw["payload_snippet"])
}

func TestAttack_LevelAndSyntheticTimestamp(t *testing.T) {
	rc := rawContext(t)
	ev, err := Attack{}.Normalize(rc, Record{
		"Attack Type":    "DDoS",
		"Severity Level": "Low",
		"Anomaly Scores": "55",
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, telemetry.Severity(4), ev.Severity)
	assert.True(t, ev.SyntheticTS)
	assert.Equal(t, reference.Add(-7*24*time.Hour+10*time.Minute), ev.Timestamp)
}

// =============================================================================
// Generic
// =============================================================================

func TestGenericCSV_FieldSniffing(t *testing.T) {
	rc := rawContext(t)
	headers := []string{"event_time", "username", "src_ip", "dst_ip", "note"}
	g := NewGenericCSV(headers)
	assert.Equal(t, FamilyGenericCSV, g.Family())

	ev, err := g.Normalize(rc, Record{
		"event_time": "2024-03-01T11:00:00Z",
		"username":   "bob",
		"src_ip":     "198.51.100.20",
		"dst_ip":     "203.0.113.80",
		"note":       "hello",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, telemetry.EventGeneric, ev.EventType)
	assert.Equal(t, telemetry.Severity(2), ev.Severity)
	assert.Equal(t, "bob@temp.local", ev.User.Email)
	assert.Equal(t, "198.51.100.20", ev.Network.SrcIP)
	assert.Equal(t, "203.0.113.80", ev.Network.DstIP)
	assert.Len(t, ev.Raw, 5)
	assert.True(t, ev.Tags.Has("generic"))
	assert.False(t, ev.SyntheticTS)
}

func TestGenericJSON_SyntheticFallback(t *testing.T) {
	rc := rawContext(t)
	ev, err := NewGenericJSON().Normalize(rc, Record{"foo": "bar"}, 2)
	require.NoError(t, err)
	assert.True(t, ev.SyntheticTS)
	assert.Nil(t, ev.User)
	assert.Equal(t, "bar", ev.Raw["foo"])
}

// =============================================================================
// Pipeline-source families
// =============================================================================

func TestIdentityProvider_LoginWithGeo(t *testing.T) {
	rc := pseudoContext(t)
	rec := Record{
		"timestamp":  "2026-01-10T09:05:00Z",
		"user":       "jdoe@acmecorp.example.com",
		"event":      "login.success",
		"result":     "success",
		"src_ip":     "89.34.126.77",
		"session_id": "s-1",
	}
	require.True(t, IdentityProvider{}.Detect(rec))

	ev, err := IdentityProvider{}.Normalize(rc, rec, 0)
	require.NoError(t, err)
	assert.Equal(t, telemetry.EventLoginSuccess, ev.EventType)
	assert.Equal(t, "jdoe@acmecorp.example.com", ev.User.Email, "pipeline sources keep their identities")
	assert.Equal(t, "89.34.126.77", ev.Network.SrcIP)
	assert.Equal(t, "RO", ev.SrcCountry())
	assert.Equal(t, "Bucharest, RO", ev.SrcLocation())
	assert.True(t, ev.DeviceUnknown())
	assert.Equal(t, "s-1", ev.Detail("session_id"))
}

func TestIdentityProvider_FailSeverity(t *testing.T) {
	ev, err := IdentityProvider{}.Normalize(rawContext(t), Record{
		"timestamp": "2026-01-10T09:05:00Z", "user": "a@b.c", "event": "login_fail", "result": "fail",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, telemetry.Severity(5), ev.Severity)
	assert.Nil(t, ev.Network)
}

func TestCloudMailbox_InboxRule(t *testing.T) {
	rec := Record{
		"timestamp":    "2026-01-10T10:00:00Z",
		"user":         "jdoe@acmecorp.example.com",
		"operation":    "New-InboxRule",
		"client_ip":    "185.220.101.45",
		"rule_actions": "ForwardTo: attacker@evil.example",
	}
	require.True(t, CloudMailbox{}.Detect(rec))
	ev, err := CloudMailbox{}.Normalize(rawContext(t), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, telemetry.EventNewInboxRule, ev.EventType)
	assert.Equal(t, telemetry.Severity(5), ev.Severity)
	assert.Equal(t, "ForwardTo: attacker@evil.example", ev.Detail("rule_actions"))
	assert.Equal(t, "185.220.101.45", ev.Detail("client_ip"))
}

func TestEmailGateway_Inbound(t *testing.T) {
	ev, err := EmailGateway{}.Normalize(rawContext(t), Record{
		"timestamp": "2026-01-10T08:00:00Z",
		"direction": "inbound",
		"sender":    "it-support@secure-login.bad",
		"recipient": "jdoe@acmecorp.example.com",
		"subject":   "Password expiry",
		"urls":      "http://secure-login.bad/reset",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, telemetry.EventEmailInbound, ev.EventType)
	assert.Equal(t, "jdoe@acmecorp.example.com", ev.User.Email)
	assert.Equal(t, "jdoe", ev.User.Display)
	assert.Equal(t, "secure-login.bad", ev.Network.DstDomain)
	assert.Equal(t, "Password expiry", ev.Detail("subject"))
}

func TestEndpointEDR_Process(t *testing.T) {
	rec := Record{
		"timestamp":    "2026-01-10T10:30:00Z",
		"host":         "WS-JDOE",
		"user":         "jdoe",
		"event_type":   "process_start",
		"process":      "powershell.exe",
		"pid":          float64(4242),
		"command_line": "powershell -enc AAAA",
		"dest_ip":      "185.220.101.45",
		"dest_port":    float64(443),
	}
	require.True(t, EndpointEDR{}.Detect(rec))
	ev, err := EndpointEDR{}.Normalize(rawContext(t), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, "endpoint.process_start", ev.EventType)
	assert.Equal(t, "jdoe@acmecorp.example.com", ev.User.Email)
	assert.Equal(t, 4242, ev.Process.PID)
	assert.Equal(t, []int{443}, ev.Network.Ports)
	assert.Equal(t, telemetry.Severity(6), ev.Severity)
}

func TestParseAccessLogLine(t *testing.T) {
	line := `192.168.10.45 - jdoe [10/Jan/2026:08:17:45 +0200] "GET http://secure-login.bad/reset HTTP/1.1" 200 5120 "-" "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"`
	rec, err := ParseAccessLogLine(line)
	require.NoError(t, err)
	assert.Equal(t, "2026-01-10T08:17:45", rec["timestamp"])
	assert.Equal(t, 200, rec["status"])
	assert.True(t, WebProxy{}.Detect(rec))

	ev, err := WebProxy{}.Normalize(rawContext(t), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 10, 8, 17, 45, 0, time.UTC), ev.Timestamp)
	assert.Equal(t, "web.get", ev.EventType)
	assert.Equal(t, "jdoe@acmecorp.example.com", ev.User.Email)
	assert.Equal(t, "Windows 10", ev.Device.OS)
	assert.Equal(t, "secure-login.bad", ev.Network.DstDomain)
	assert.Equal(t, "New York, US", ev.SrcLocation())

	_, err = ParseAccessLogLine("not a log line")
	assert.ErrorIs(t, err, ErrNotAccessLog)
}

func TestWebProxy_AnonymousUser(t *testing.T) {
	ev, err := WebProxy{}.Normalize(rawContext(t), Record{
		"timestamp": "2026-01-10T08:00:00Z", "method": "POST", "url": "example.org/x", "user": "-",
	}, 0)
	require.NoError(t, err)
	assert.Nil(t, ev.User)
	assert.Equal(t, "Unknown", ev.Device.OS)
}

// =============================================================================
// Detection
// =============================================================================

func TestDetectCSV(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		want    Family
	}{
		{"features before url", []string{"url", "label", "url_length", "num_dots", "entropy"}, FamilyPhishingFeatures},
		{"phishing url", []string{"url", "label", "source"}, FamilyPhishingURL},
		{"email gateway", []string{"timestamp", "message_id", "sender", "recipient", "direction", "subject"}, FamilyEmailGateway},
		{"attack dataset", []string{"Timestamp", "Source IP Address", "Attack Type", "Severity Level", "Protocol"}, FamilyAttackDataset},
		{"generic", []string{"when", "who", "what"}, FamilyGenericCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCSV(tt.headers).Family())
		})
	}
}

func TestDetectJSON(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
		want    Family
	}{
		{"windows", []Record{{"EventID": 4624, "Computer": "dc01"}}, FamilyWindows},
		{"aad", []Record{{"OperationName": "Add user", "AADTenantId": "t"}}, FamilyAAD},
		{"m365", []Record{{"ActionType": "LdapSearch", "DeviceName": "dc01"}}, FamilyM365Defender},
		{"identity", []Record{{"event": "login.success", "user": "a@b.c", "result": "success"}}, FamilyIdentityProvider},
		{"mailbox", []Record{{"operation": "MailItemsAccessed", "user": "a@b.c"}}, FamilyCloudMailbox},
		{"edr", []Record{{"host": "WS1", "event_type": "process_start", "pid": 4}}, FamilyEndpointEDR},
		{"proxy json", []Record{{"method": "GET", "url": "x", "status": 200}}, FamilyWebProxy},
		{"later record", []Record{{"foo": 1}, {"EventID": 1, "Channel": "Security"}}, FamilyWindows},
		{"unknown", []Record{{"foo": 1}}, FamilyGenericJSON},
		{"empty", nil, FamilyGenericJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectJSON(tt.records).Family())
		})
	}
}

func TestDetectJSON_SampleLimit(t *testing.T) {
	records := make([]Record, 0, 7)
	for range 6 {
		records = append(records, Record{"foo": 1})
	}
	records = append(records, Record{"EventID": 1, "Computer": "x"})
	assert.Equal(t, FamilyGenericJSON, DetectJSON(records).Family())
}

// =============================================================================
// Helpers
// =============================================================================

func TestEventSegment(t *testing.T) {
	assert.Equal(t, "some_new_action", eventSegment("Some New Action", 30))
	assert.Equal(t, "reset_password", eventSegment("Reset Password!", 30))
	assert.Equal(t, "unknown", eventSegment("  ", 30))
	assert.Equal(t, "login_success", eventSegment("login.success", 0))
}

func TestEventSegment_BoundedAcrossAdapters(t *testing.T) {
	long := "Very Long Operation Name That Keeps Going And Going"
	want := "very_long_operation_name_that"
	assert.Equal(t, want, eventSegment(long, segmentMax))

	ev, err := IdentityProvider{}.Normalize(rawContext(t), Record{
		"timestamp": "2026-01-10T08:40:00Z",
		"user":      "jdoe@acmecorp.example.com",
		"event":     long,
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, "auth."+want, ev.EventType)
}

func TestIDs(t *testing.T) {
	g := NewIDGenerator()
	assert.Equal(t, "win-000001", g.NextEvent("win"))
	assert.Equal(t, "aad-000002", g.NextEvent("aad"))
	assert.Equal(t, "ioc-000001", g.NextIOC())
	g.Reset()
	assert.Equal(t, "gen-000001", g.NextEvent("gen"))

	assert.Equal(t, UserID("Bob@X.com"), UserID("bob@x.com"))
	assert.Equal(t, "dev-unknown", DeviceID(""))
}

func TestPseudonymizedDatasetFamily(t *testing.T) {
	rc := pseudoContext(t)
	ev, err := Windows{}.Normalize(rc, Record{
		"EventID": 4624, "TimeGenerated": "2024-03-01T08:00:00Z",
		"Computer": "FIN-WS-01", "TargetUserName": `CORP\jdoe`, "IpAddress": "203.0.113.5",
	}, 0)
	require.NoError(t, err)
	assert.Contains(t, ev.User.Email, "@"+pseudo.SimDomain)
	assert.NotEqual(t, "203.0.113.5", ev.Network.SrcIP)
	assert.NotNil(t, ev.Network.SrcGeo)
	assert.NotEqual(t, "FIN-WS-01", ev.Device.Hostname)
}
