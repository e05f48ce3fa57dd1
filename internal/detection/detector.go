// Package detection turns correlations and risk scores into alerts.
package detection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/mitre"
	"github.com/yatuk/SOC-case-study-project/internal/playbooks"
	"github.com/yatuk/SOC-case-study-project/internal/scoring"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// Alert names
const (
	NamePhishing          = "Phishing Email Clicked - Credential Submission Suspected"
	NameImpossibleTravel  = "Impossible Travel Detected"
	NamePostCompromise    = "Suspicious Mailbox Activity After Risky Login"
	NameMailboxForwarding = "Suspicious Mailbox Forwarding Rule"
	NameAccountCompromise = "Account Compromise - Multiple Indicators"
)

const forwardingMinScore = 30

// template is the fixed part of an alert
type template struct {
	kind       string
	name       string
	severity   telemetry.Level
	confidence telemetry.Level
	hypothesis string
	mitre      []mitre.Use
}

var patternTemplates = map[string]template{
	telemetry.PatternPhishingClickLogin: {
		kind:       playbooks.KindPhishingClickLogin,
		name:       NamePhishing,
		severity:   telemetry.LevelHigh,
		confidence: telemetry.LevelHigh,
		hypothesis: "User received a phishing email, clicked the malicious link, and submitted credentials to a fake login page. " +
			"This represents a successful phishing attack with high probability of credential compromise.",
		mitre: []mitre.Use{{Technique: "T1566.002", Tactic: "initial-access"}, {Technique: "T1589.001", Tactic: "reconnaissance"}},
	},
	telemetry.PatternImpossibleTravel: {
		kind:       playbooks.KindImpossibleTravel,
		name:       NameImpossibleTravel,
		severity:   telemetry.LevelHigh,
		confidence: telemetry.LevelHigh,
		mitre:      []mitre.Use{{Technique: "T1078.004", Tactic: "initial-access"}, {Technique: "T1078", Tactic: "defense-evasion"}},
	},
	telemetry.PatternPostCompromise: {
		kind:       playbooks.KindPostCompromise,
		name:       NamePostCompromise,
		severity:   telemetry.LevelHigh,
		confidence: telemetry.LevelMedium,
		hypothesis: "A sign-in flagged as risky was followed by mailbox rule or search activity. " +
			"An attacker with the session may be collecting mail or hiding replies from the user.",
		mitre: []mitre.Use{{Technique: "T1114.002", Tactic: "collection"}, {Technique: "T1564.008", Tactic: "defense-evasion"}},
	},
}

var forwardingTemplate = template{
	kind:       playbooks.KindMailboxForwarding,
	name:       NameMailboxForwarding,
	severity:   telemetry.LevelCritical,
	confidence: telemetry.LevelHigh,
	hypothesis: "A mailbox rule was created to forward emails to an external address. " +
		"This is a common persistence technique used by attackers to maintain access to sensitive email communications after initial compromise.",
	mitre: []mitre.Use{{Technique: "T1114.003", Tactic: "collection"}, {Technique: "T1114.002", Tactic: "collection"}},
}

var compromiseTemplate = template{
	kind:       playbooks.KindAccountCompromise,
	name:       NameAccountCompromise,
	confidence: telemetry.LevelHigh,
	mitre: []mitre.Use{
		{Technique: "T1078.004", Tactic: "initial-access"},
		{Technique: "T1087", Tactic: "discovery"},
		{Technique: "T1114", Tactic: "collection"},
	},
}

// Config holds detector settings
type Config struct {
	CorporateDomain string
	// Seed namespaces alert IDs so a seeded run is reproducible
	Seed int64
}

// Detector generates alerts from scored events, entity scores and
// correlations. The three passes are independent and do not deduplicate.
type Detector struct {
	config    Config
	namespace uuid.UUID
	catalog   *mitre.Catalog
	playbooks *playbooks.PlaybookManager
	logger    *zap.Logger
}

// NewDetector creates a detector
func NewDetector(cfg Config, catalog *mitre.Catalog, pm *playbooks.PlaybookManager, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CorporateDomain == "" {
		cfg.CorporateDomain = scoring.DefaultConfig().CorporateDomain
	}
	if catalog == nil {
		catalog = mitre.NewCatalog(logger)
	}
	if pm == nil {
		pm = playbooks.NewPlaybookManager(logger)
	}
	return &Detector{
		config:    cfg,
		namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("soc-alerts/%d", cfg.Seed))),
		catalog:   catalog,
		playbooks: pm,
		logger:    logger,
	}
}

// Detect runs the pattern, forwarding-rule and account-compromise passes
func (d *Detector) Detect(ctx context.Context, risk *telemetry.RiskResult, corr *telemetry.CorrelationResult) ([]telemetry.Alert, error) {
	if risk == nil {
		risk = &telemetry.RiskResult{}
	}
	byID := make(map[string]*telemetry.ScoredEvent, len(risk.ScoredEvents))
	for i := range risk.ScoredEvents {
		byID[risk.ScoredEvents[i].EventID] = &risk.ScoredEvents[i]
	}

	alerts := make([]telemetry.Alert, 0)

	if corr != nil {
		for _, c := range corr.Correlations {
			tmpl, ok := patternTemplates[c.Pattern]
			if !ok {
				d.logger.Debug("no alert template for pattern", zap.String("pattern", c.Pattern))
				continue
			}
			evidence := lookup(byID, c.Events)
			if len(evidence) == 0 {
				continue
			}
			hypothesis := tmpl.hypothesis
			if c.Pattern == telemetry.PatternImpossibleTravel {
				hypothesis = travelHypothesis(evidence)
			}
			alert, err := d.build(ctx, tmpl, c.CorrelationID, c.User, tmpl.severity, hypothesis, c.Events, evidence)
			if err != nil {
				return nil, err
			}
			alerts = append(alerts, alert)
		}
	}

	for i := range risk.ScoredEvents {
		ev := &risk.ScoredEvents[i]
		if ev.RiskScore < forwardingMinScore {
			continue
		}
		if _, ok := scoring.ExternalForward(&ev.Event, d.config.CorporateDomain); !ok {
			continue
		}
		alert, err := d.build(ctx, forwardingTemplate, "forwarding/"+ev.EventID, ev.UserEmail(),
			forwardingTemplate.severity, forwardingTemplate.hypothesis, []string{ev.EventID}, []*telemetry.ScoredEvent{ev})
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	users := make([]string, 0, len(risk.EntityScores))
	for user := range risk.EntityScores {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		entity := risk.EntityScores[user]
		if !entity.Severity.AtLeast(telemetry.LevelHigh) {
			continue
		}
		evidence := lookup(byID, entity.Events)
		if len(evidence) == 0 {
			continue
		}
		alert, err := d.build(ctx, compromiseTemplate, "compromise/"+user, user,
			entity.Severity, compromiseHypothesis(entity.Reasons), entity.Events, evidence)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	for _, a := range alerts {
		d.logger.Info("alert generated",
			zap.String("name", a.Name),
			zap.String("severity", string(a.Severity)),
			zap.String("user", a.Entity.User),
		)
	}
	d.logger.Info("detection complete", zap.Int("alerts", len(alerts)))
	return alerts, nil
}

func (d *Detector) build(ctx context.Context, tmpl template, key, user string, severity telemetry.Level,
	hypothesis string, ids []string, evidence []*telemetry.ScoredEvent) (telemetry.Alert, error) {
	actions, err := d.playbooks.RecommendedActions(ctx, tmpl.kind)
	if err != nil {
		return telemetry.Alert{}, fmt.Errorf("recommended actions for %s: %w", tmpl.kind, err)
	}

	window := telemetry.TimeWindow{Start: evidence[0].Timestamp, End: evidence[0].Timestamp}
	ips := make([]string, 0)
	devices := make([]string, 0)
	for _, ev := range evidence {
		if ev.Timestamp.Before(window.Start) {
			window.Start = ev.Timestamp
		}
		if ev.Timestamp.After(window.End) {
			window.End = ev.Timestamp
		}
		ips = appendDistinct(ips, ev.SrcIP())
		devices = appendDistinct(devices, ev.Hostname())
	}

	return telemetry.Alert{
		AlertID:            uuid.NewSHA1(d.namespace, []byte(tmpl.kind+"/"+key)).String(),
		Name:               tmpl.name,
		Severity:           severity,
		Confidence:         tmpl.confidence,
		Entity:             telemetry.AlertEntity{User: user, IPs: ips, Devices: devices},
		TimeWindow:         window,
		Evidence:           append([]string(nil), ids...),
		Hypothesis:         hypothesis,
		RecommendedActions: actions,
		Mitre:              d.catalog.Refs(tmpl.mitre...),
	}, nil
}

func lookup(byID map[string]*telemetry.ScoredEvent, ids []string) []*telemetry.ScoredEvent {
	out := make([]*telemetry.ScoredEvent, 0, len(ids))
	for _, id := range ids {
		if ev, ok := byID[id]; ok {
			out = append(out, ev)
		}
	}
	return out
}

func appendDistinct(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func travelHypothesis(evidence []*telemetry.ScoredEvent) string {
	from, to := evidence[0].SrcLocation(), evidence[len(evidence)-1].SrcLocation()
	return fmt.Sprintf("User authenticated from geographically distant locations within a short timeframe (%s followed by %s). "+
		"This is physically impossible and indicates account compromise or credential theft.", from, to)
}

func compromiseHypothesis(reasons []telemetry.Reason) string {
	top := append([]telemetry.Reason(nil), reasons...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Points > top[j].Points })
	if len(top) > 3 {
		top = top[:3]
	}
	parts := make([]string, len(top))
	for i, r := range top {
		parts[i] = r.Description
	}
	return "Multiple indicators of account compromise detected: " + strings.Join(parts, "; ") +
		". These combined indicators suggest the account has been compromised and is being actively misused."
}
