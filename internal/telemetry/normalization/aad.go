package normalization

import (
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var aadOperations = map[string]string{
	"Update application": "idp.app_update",
	"Update application – Certificates and secrets management": "idp.app_secret_update",
	"Add delegated permission grant":                           "idp.permission_grant",
	"Consent to application":                                   "idp.app_consent",
	"Add application":                                          "idp.app_create",
	"Add service principal":                                    "idp.sp_create",
	"Add member to role":                                       "idp.role_assign",
	"Add user":                                                 "idp.user_create",
	"Update user":                                              "idp.user_update",
	"Delete user":                                              "idp.user_delete",
	"Change user password":                                     "idp.password_change",
	"Reset user password":                                      "idp.password_reset",
	"Sign-in activity":                                         "auth.login",
	"Sign-in from unknown source":                              "auth.login_suspicious",
	"Risky sign-in":                                            "auth.login_risky",
	"Add owner to application":                                 "idp.app_owner_add",
	"Add owner to service principal":                           "idp.sp_owner_add",
}

var aadCategorySeverity = map[string]telemetry.Severity{
	"ApplicationManagement": 5,
	"UserManagement":        4,
	"GroupManagement":       4,
	"RoleManagement":        7,
	"PolicyManagement":      6,
	"DeviceManagement":      4,
}

// AAD normalizes Azure AD audit log records
type AAD struct{}

func (AAD) Family() Family { return FamilyAAD }

func (AAD) Detect(rec Record) bool {
	typ := rec.String("Type")
	return countTrue(
		rec.String("SourceSystem") == "Azure AD",
		rec.Has("OperationName"),
		rec.Has("AADTenantId"),
		typ == "AuditLogs" || typ == "Application" || typ == "ServicePrincipal",
		rec.Has("InitiatedBy") || rec.Has("InitiatingUserOrApp"),
		rec.Has("ActivityDisplayName"),
	) >= 2
}

func (AAD) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	operation := rec.String("OperationName", "ActivityDisplayName")

	ts, _, err := rc.timestamp(FamilyAAD, "TimeGenerated",
		firstPresent(rec, "TimeGenerated", "ActivityDateTime", "Timestamp"), row, false)
	if err != nil {
		return nil, err
	}

	eventType, ok := aadOperations[operation]
	if !ok {
		eventType = "idp." + eventSegment(strings.NewReplacer("–", "_", "-", "_").Replace(operation), segmentMax)
	}

	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("aad"),
		Timestamp:  ts,
		Source:     telemetry.SourceAAD,
		EventType:  eventType,
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}
	ev.User = aadActor(rc, rec)

	category := rec.String("Category")
	sev, ok := aadCategorySeverity[category]
	if !ok {
		sev = 3
	}
	op := strings.ToLower(operation)
	if containsAny(op, "secret", "credential", "password", "permission", "consent") {
		sev = sev.Floor(6)
	}
	if containsAny(op, "admin", "role", "privilege") {
		sev = sev.Floor(7)
	}
	if result := strings.ToLower(rec.String("Result")); result == "failure" || result == "failed" {
		sev = sev.Floor(5)
	}
	ev.Severity = sev

	ev.Tags = baseTags(FamilyAAD, "idp")
	if category != "" {
		ev.Tags = ev.Tags.Add("category:" + strings.ToLower(category))
	}
	if containsAny(op, "permission", "consent") {
		ev.Tags = ev.Tags.Add("oauth", "mitre:T1550.001")
	}
	if strings.Contains(op, "application") {
		ev.Tags = ev.Tags.Add("app_management")
	}

	if target := aadTarget(rec); target != "" {
		ev.Artifact = &telemetry.Artifact{Target: target, Type: rec.String("Type", "targetType")}
	}
	if perms := rec.String("Permissions"); perms != "" {
		if ev.Artifact == nil {
			ev.Artifact = &telemetry.Artifact{}
		}
		ev.Artifact.Permissions = perms
	}
	if ua := rec.String("UserAgent"); ua != "" {
		ev.Device = &telemetry.Device{UserAgent: truncateRunes(ua, 200)}
	}

	return ev, nil
}

// aadActor resolves InitiatedBy: user UPN, then user display name, then app
func aadActor(rc *RunContext, rec Record) *telemetry.User {
	initiated := rec.Map("InitiatedBy")
	if initiated == nil {
		raw := rec.String("InitiatedBy", "InitiatingUserOrApp", "InitiatingUser")
		if raw == "" {
			return nil
		}
		u := rc.Pseudo.Email(raw)
		return &u
	}

	if user := initiated.Map("user"); user != nil {
		if upn := user.String("userPrincipalName"); upn != "" {
			u := rc.Pseudo.Email(upn)
			return &u
		}
		if display := user.String("displayName"); display != "" {
			u := rc.Pseudo.Email(display + "@temp.local")
			return &u
		}
	}
	if app := initiated.Map("app"); app != nil {
		if name := app.String("displayName", "appId"); name != "" {
			return &telemetry.User{ID: "app-" + truncateRunes(name, 8), Display: "App: " + name}
		}
	}
	return nil
}

// aadTarget resolves the first target resource display name or id
func aadTarget(rec Record) string {
	raw := firstPresent(rec, "target", "TargetResources")
	if raw == nil {
		return rec.String("targetDisplayName")
	}
	if s, ok := raw.(string); ok {
		decoded := decodeJSON(s)
		if decoded == nil {
			return truncateRunes(s, 100)
		}
		raw = decoded
	}
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return ""
		}
		raw = list[0]
	}
	if m, ok := raw.(map[string]any); ok {
		return Record(m).String("displayName", "id")
	}
	return truncateRunes(asString(raw), 100)
}
