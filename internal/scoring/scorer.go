// Package scoring applies point-additive risk rules to enriched events and
// rolls the results up per user.
package scoring

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// Rule names as they appear in score breakdowns
const (
	RuleIOCMatch             = "ioc_match"
	RuleNewDevice            = "new_device"
	RuleNewGeo               = "new_geo"
	RuleImpossibleTravel     = "impossible_travel"
	RuleMailboxRuleExternal  = "mailbox_rule_external"
	RuleFailedMFAThenSuccess = "failed_mfa_then_success"
	RuleBulkMailboxExport    = "bulk_mailbox_export"
	RulePhishingLinkClick    = "phishing_link_click"
)

// Points awarded per rule
var Points = map[string]int{
	RuleIOCMatch:             40,
	RuleNewDevice:            30,
	RuleNewGeo:               30,
	RuleImpossibleTravel:     50,
	RuleMailboxRuleExternal:  35,
	RuleFailedMFAThenSuccess: 25,
	RuleBulkMailboxExport:    30,
	RulePhishingLinkClick:    35,
}

const (
	maxScore          = 100
	mfaFailureWindow  = 5 * time.Minute
	mfaFailureMinimum = 2
	bulkExportItems   = 20
)

// Config holds the corporate identity the rules compare against
type Config struct {
	CorporateDomain   string
	CorporateNetworks []netip.Prefix
}

// DefaultConfig returns the sample tenant's domain and private ranges
func DefaultConfig() Config {
	return Config{
		CorporateDomain: "acmecorp.example.com",
		CorporateNetworks: []netip.Prefix{
			netip.MustParsePrefix("10.0.0.0/8"),
			netip.MustParsePrefix("192.168.0.0/16"),
		},
	}
}

// Scorer calculates event and entity risk scores
type Scorer struct {
	config Config
	logger *zap.Logger
}

// NewScorer creates a scorer. Empty config fields take defaults.
func NewScorer(cfg Config, logger *zap.Logger) *Scorer {
	def := DefaultConfig()
	if cfg.CorporateDomain == "" {
		cfg.CorporateDomain = def.CorporateDomain
	}
	if len(cfg.CorporateNetworks) == 0 {
		cfg.CorporateNetworks = def.CorporateNetworks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{config: cfg, logger: logger}
}

// scoringState is the cross-event context a single pass needs
type scoringState struct {
	travel   map[string]bool
	failures map[string][]time.Time
}

// Score applies every rule to every event. Entity scores are the maximum
// event score per user, with reasons deduplicated by rule and points.
func (s *Scorer) Score(ctx context.Context, events []telemetry.Event, corr *telemetry.CorrelationResult) (*telemetry.RiskResult, error) {
	state := newScoringState(events, corr)

	result := &telemetry.RiskResult{
		ScoredEvents: make([]telemetry.ScoredEvent, 0, len(events)),
		EntityScores: make(map[string]telemetry.EntityScore),
	}
	seen := make(map[string]map[telemetry.Reason]bool)

	for i := range events {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ev := &events[i]
		reasons, err := s.scoreEvent(ev, state)
		if err != nil {
			s.logger.Error("scoring failed for event", zap.String("event_id", ev.EventID), zap.Error(err))
		}
		score := 0
		for _, r := range reasons {
			score += r.Points
		}
		score = min(score, maxScore)
		if reasons == nil {
			reasons = []telemetry.Reason{}
		}
		result.ScoredEvents = append(result.ScoredEvents, telemetry.ScoredEvent{
			Event:          *ev,
			RiskScore:      score,
			RiskLevel:      telemetry.LevelForScore(score),
			ScoreBreakdown: reasons,
		})

		user := ev.UserEmail()
		if user == "" {
			continue
		}
		entity, ok := result.EntityScores[user]
		if !ok {
			entity = telemetry.EntityScore{Reasons: []telemetry.Reason{}, Events: []string{}}
			seen[user] = make(map[telemetry.Reason]bool)
		}
		entity.Score = max(entity.Score, score)
		for _, r := range reasons {
			key := telemetry.Reason{Rule: r.Rule, Points: r.Points}
			if seen[user][key] {
				continue
			}
			seen[user][key] = true
			entity.Reasons = append(entity.Reasons, r)
		}
		if score > 0 {
			entity.Events = append(entity.Events, ev.EventID)
		}
		entity.Severity = telemetry.LevelForScore(entity.Score)
		result.EntityScores[user] = entity
	}

	highRisk := 0
	for _, e := range result.EntityScores {
		if e.Severity.AtLeast(telemetry.LevelHigh) {
			highRisk++
		}
	}
	s.logger.Info("risk scoring complete",
		zap.Int("events", len(result.ScoredEvents)),
		zap.Int("entities", len(result.EntityScores)),
		zap.Int("high_risk_entities", highRisk),
	)
	return result, nil
}

func newScoringState(events []telemetry.Event, corr *telemetry.CorrelationResult) *scoringState {
	state := &scoringState{
		travel:   make(map[string]bool),
		failures: make(map[string][]time.Time),
	}
	if corr != nil {
		for _, c := range corr.Correlations {
			if c.Pattern != telemetry.PatternImpossibleTravel {
				continue
			}
			for _, id := range c.Events {
				state.travel[c.User+"|"+id] = true
			}
		}
	}
	for i := range events {
		ev := &events[i]
		if user := ev.UserEmail(); user != "" && strings.HasPrefix(ev.EventType, telemetry.EventLoginFail) {
			state.failures[user] = append(state.failures[user], ev.Timestamp)
		}
	}
	return state
}

// scoreEvent returns the triggered reasons for ev. A panic inside a rule
// is reported as an error and the event scores zero.
func (s *Scorer) scoreEvent(ev *telemetry.Event, state *scoringState) (reasons []telemetry.Reason, err error) {
	defer func() {
		if r := recover(); r != nil {
			reasons, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	add := func(rule, desc string) {
		reasons = append(reasons, telemetry.Reason{Rule: rule, Points: Points[rule], Description: desc})
	}

	if ev.HasIOC() {
		values := make([]string, len(ev.IOCMatches))
		for i, m := range ev.IOCMatches {
			values[i] = m.Value
		}
		add(RuleIOCMatch, "Event matches known IOC: "+strings.Join(values, ", "))
	}

	if ev.EventType == telemetry.EventLoginSuccess {
		if ev.DeviceUnknown() {
			add(RuleNewDevice, "Login from previously unseen device")
		}
		if ip := ev.SrcIP(); ip != "" && !s.corporateIP(ip) {
			country := ev.SrcCountry()
			if country == "" {
				country = "Unknown"
			}
			add(RuleNewGeo, "Login from non-corporate network: "+country)
		}
		if state.travel[ev.UserEmail()+"|"+ev.EventID] {
			add(RuleImpossibleTravel, "Impossible travel detected: logins from distant locations within short time")
		}
		if n := state.recentFailures(ev); n >= mfaFailureMinimum {
			add(RuleFailedMFAThenSuccess, fmt.Sprintf("%d failed login attempts followed by success", n))
		}
	}

	if target, ok := ExternalForward(ev, s.config.CorporateDomain); ok {
		add(RuleMailboxRuleExternal, "Mailbox rule forwarding to external address: "+target)
	}

	if isMailboxAccess(ev.EventType) {
		if n := ev.DetailInt("operation_count"); n > bulkExportItems {
			add(RuleBulkMailboxExport, fmt.Sprintf("Bulk mailbox access: %d items", n))
		}
	}

	if strings.HasPrefix(ev.EventType, "web.") && ev.HasIOC() {
		add(RulePhishingLinkClick, "User clicked known phishing link")
	}
	return reasons, nil
}

func (s *Scorer) corporateIP(raw string) bool {
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range s.config.CorporateNetworks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// recentFailures counts the user's failed logins in the five minutes
// leading up to ev.
func (st *scoringState) recentFailures(ev *telemetry.Event) int {
	n := 0
	for _, ts := range st.failures[ev.UserEmail()] {
		d := ev.Timestamp.Sub(ts)
		if d >= 0 && d < mfaFailureWindow {
			n++
		}
	}
	return n
}

func isMailboxAccess(eventType string) bool {
	t := strings.ToLower(eventType)
	return strings.Contains(t, "mailitemsaccessed") || strings.Contains(t, "email.mailbox_access")
}

// ExternalForward reports the forwarding target of a new-inbox-rule event
// when it points outside corporateDomain. rule_actions look like
// "ForwardTo:someone@example.net", possibly among other actions separated
// by ";" or ",".
func ExternalForward(ev *telemetry.Event, corporateDomain string) (string, bool) {
	if !strings.Contains(ev.EventType, telemetry.EventNewInboxRule) {
		return "", false
	}
	target := forwardTarget(ev.Detail("rule_actions"))
	at := strings.LastIndex(target, "@")
	if at < 0 {
		return "", false
	}
	domain := strings.ToLower(target[at+1:])
	corp := strings.ToLower(corporateDomain)
	if domain == corp || strings.HasSuffix(domain, "."+corp) {
		return "", false
	}
	return target, true
}

// forwardTarget reads the address of the ForwardTo action, up to the next
// action separator or whitespace.
func forwardTarget(actions string) string {
	i := strings.Index(actions, "ForwardTo")
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(actions[i+len("ForwardTo"):], ": \t")
	if end := strings.IndexAny(rest, ";, \t\r\n"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}
