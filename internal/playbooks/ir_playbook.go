// Package playbooks provides the incident response playbooks attached to
// alerts. The ordered step names of the matching playbook become an
// alert's recommended actions.
package playbooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Alert kinds playbooks are triggered by
const (
	KindPhishingClickLogin = "phishing_click_login"
	KindImpossibleTravel   = "impossible_travel"
	KindPostCompromise     = "post_compromise_activity"
	KindMailboxForwarding  = "mailbox_forwarding_rule"
	KindAccountCompromise  = "account_compromise"
)

const triggerSource = "detection"

var (
	ErrPlaybookNotFound = errors.New("playbook not found")
	ErrInvalidPlaybook  = errors.New("invalid playbook")
)

// IRPlaybook represents an incident response playbook
type IRPlaybook struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Category    string     `yaml:"category" json:"category"` // phishing, identity, email
	Severity    string     `yaml:"severity" json:"severity"` // critical, high, medium, low
	Triggers    []Trigger  `yaml:"triggers" json:"triggers"`
	Steps       []Step     `yaml:"steps" json:"steps"`
	Escalation  Escalation `yaml:"escalation" json:"escalation"`
	Metadata    Metadata   `yaml:"metadata" json:"metadata"`
}

// Trigger defines when a playbook should be activated
type Trigger struct {
	Type      string            `yaml:"type" json:"type"`           // alert, manual
	Condition string            `yaml:"condition" json:"condition"` // e.g., "severity >= high"
	Source    string            `yaml:"source" json:"source"`       // e.g., "detection"
	Tags      map[string]string `yaml:"tags" json:"tags"`
}

// Step represents a single step in the playbook
type Step struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string        `yaml:"type" json:"type"`   // manual, automated
	Owner       string        `yaml:"owner" json:"owner"` // role responsible
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// Escalation defines escalation procedures
type Escalation struct {
	TimeLimit   time.Duration `yaml:"time_limit" json:"time_limit"`
	NotifyRoles []string      `yaml:"notify_roles" json:"notify_roles"`
	Channels    []string      `yaml:"channels" json:"channels"` // slack, email, pagerduty
}

// Metadata contains playbook metadata
type Metadata struct {
	Author       string   `yaml:"author" json:"author"`
	Version      string   `yaml:"version" json:"version"`
	MITRETactics []string `yaml:"mitre_tactics" json:"mitre_tactics"`
}

// PlaybookManager manages IR playbooks
type PlaybookManager struct {
	mu        sync.RWMutex
	playbooks map[string]*IRPlaybook
	order     []string
	logger    *zap.Logger
}

// NewPlaybookManager creates a new playbook manager
func NewPlaybookManager(logger *zap.Logger) *PlaybookManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	pm := &PlaybookManager{
		playbooks: make(map[string]*IRPlaybook),
		logger:    logger,
	}

	// Load default playbooks
	for _, pb := range defaultPlaybooks() {
		pm.add(pb)
	}

	return pm
}

func (pm *PlaybookManager) add(pb *IRPlaybook) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, ok := pm.playbooks[pb.ID]; ok {
		for i, id := range pm.order {
			if id == pb.ID {
				pm.order = append(pm.order[:i], pm.order[i+1:]...)
				break
			}
		}
	}
	pm.playbooks[pb.ID] = pb
	pm.order = append(pm.order, pb.ID)
}

// GetPlaybook returns a playbook by ID
func (pm *PlaybookManager) GetPlaybook(id string) (*IRPlaybook, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	pb, ok := pm.playbooks[id]
	return pb, ok
}

// GetPlaybooksByCategory returns playbooks for a category, sorted by ID
func (pm *PlaybookManager) GetPlaybooksByCategory(category string) []*IRPlaybook {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	result := make([]*IRPlaybook, 0)
	for _, pb := range pm.playbooks {
		if pb.Category == category {
			result = append(result, pb)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetPlaybookForTrigger finds the matching playbook for a trigger. The most
// recently loaded playbook wins, so files override the defaults.
func (pm *PlaybookManager) GetPlaybookForTrigger(ctx context.Context, triggerType, source string, tags map[string]string) (*IRPlaybook, error) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	for i := len(pm.order) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pb := pm.playbooks[pm.order[i]]
		for _, trigger := range pb.Triggers {
			if trigger.Type == triggerType && (trigger.Source == "" || trigger.Source == source) {
				// Check tag match
				if matchesTags(trigger.Tags, tags) {
					return pb, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %s trigger from %s %v", ErrPlaybookNotFound, triggerType, source, tags)
}

func matchesTags(required, provided map[string]string) bool {
	for k, v := range required {
		if provided[k] != v {
			return false
		}
	}
	return true
}

// RecommendedActions returns the ordered step names of the playbook
// triggered by an alert of kind.
func (pm *PlaybookManager) RecommendedActions(ctx context.Context, kind string) ([]string, error) {
	pb, err := pm.GetPlaybookForTrigger(ctx, "alert", triggerSource, map[string]string{"alert_kind": kind})
	if err != nil {
		return nil, err
	}
	actions := make([]string, len(pb.Steps))
	for i, s := range pb.Steps {
		actions[i] = s.Name
	}
	return actions, nil
}

// LoadPlaybook loads a playbook from YAML
func (pm *PlaybookManager) LoadPlaybook(yamlData []byte) error {
	var pb IRPlaybook
	if err := yaml.Unmarshal(yamlData, &pb); err != nil {
		return fmt.Errorf("parsing playbook YAML: %w", err)
	}
	if pb.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPlaybook)
	}
	if len(pb.Steps) == 0 {
		return fmt.Errorf("%w: %s has no steps", ErrInvalidPlaybook, pb.ID)
	}

	pm.add(&pb)
	pm.logger.Info("Playbook loaded",
		zap.String("id", pb.ID),
		zap.String("name", pb.Name),
	)

	return nil
}

// LoadDir loads every .yaml/.yml file in dir in name order
func (pm *PlaybookManager) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading playbook dir: %w", err)
	}
	loaded := 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return loaded, err
		}
		if err := pm.LoadPlaybook(data); err != nil {
			return loaded, fmt.Errorf("%s: %w", e.Name(), err)
		}
		loaded++
	}
	return loaded, nil
}

// ExportPlaybook exports a playbook to YAML
func (pm *PlaybookManager) ExportPlaybook(id string) ([]byte, error) {
	pb, ok := pm.GetPlaybook(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, id)
	}

	return yaml.Marshal(pb)
}

func alertTrigger(kind string) []Trigger {
	return []Trigger{{Type: "alert", Source: triggerSource, Tags: map[string]string{"alert_kind": kind}}}
}

func analystSteps(names ...string) []Step {
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{
			ID:      fmt.Sprintf("step-%d", i+1),
			Name:    name,
			Type:    "manual",
			Owner:   "security_analyst",
			Timeout: time.Hour,
		}
	}
	return steps
}

func defaultPlaybooks() []*IRPlaybook {
	soc := Metadata{Author: "Security Team", Version: "1.0"}

	phishing := &IRPlaybook{
		ID:          "pb-phishing-001",
		Name:        "Phishing Click Response",
		Description: "Response procedure for a clicked phishing link followed by a login",
		Category:    "phishing",
		Severity:    "high",
		Triggers:    alertTrigger(KindPhishingClickLogin),
		Steps: analystSteps(
			"Immediately reset user password",
			"Revoke all active sessions",
			"Review recent account activity for unauthorized actions",
			"Check for mailbox rules, forwarding, or OAuth consents",
			"Notify user about phishing incident",
			"Block phishing domain at proxy/firewall",
		),
		Escalation: Escalation{
			TimeLimit:   2 * time.Hour,
			NotifyRoles: []string{"security_lead"},
			Channels:    []string{"slack", "email"},
		},
		Metadata: soc,
	}
	phishing.Steps[0].Type = "automated"
	phishing.Steps[1].Type = "automated"
	phishing.Metadata.MITRETactics = []string{"TA0001", "TA0043"}

	travel := &IRPlaybook{
		ID:          "pb-identity-001",
		Name:        "Impossible Travel Investigation",
		Description: "Verify geographically inconsistent sign-ins",
		Category:    "identity",
		Severity:    "high",
		Triggers:    alertTrigger(KindImpossibleTravel),
		Steps: analystSteps(
			"Verify user's actual location and travel schedule",
			"Review which session performed unauthorized actions",
			"Revoke suspicious sessions immediately",
			"Force password reset",
			"Enable stricter conditional access policies",
		),
		Metadata: soc,
	}
	travel.Metadata.MITRETactics = []string{"TA0001", "TA0005"}

	postCompromise := &IRPlaybook{
		ID:          "pb-email-001",
		Name:        "Post-Compromise Mailbox Review",
		Description: "Review mailbox activity that followed a risky sign-in",
		Category:    "email",
		Severity:    "high",
		Triggers:    alertTrigger(KindPostCompromise),
		Steps: analystSteps(
			"Revoke active sessions for the account",
			"Review inbox rules created after the login",
			"Review mailbox search and export activity",
			"Force password reset with MFA",
			"Notify user and security team",
		),
		Metadata: soc,
	}
	postCompromise.Metadata.MITRETactics = []string{"TA0009", "TA0005"}

	forwarding := &IRPlaybook{
		ID:          "pb-email-002",
		Name:        "Mailbox Forwarding Rule Response",
		Description: "Remove external forwarding and assess exposure",
		Category:    "email",
		Severity:    "critical",
		Triggers:    alertTrigger(KindMailboxForwarding),
		Steps: analystSteps(
			"Delete the malicious forwarding rule immediately",
			"Review all emails that were forwarded",
			"Check for other persistence mechanisms (OAuth apps, additional rules)",
			"Investigate how the rule was created (compromised account vs. insider threat)",
			"Notify affected user and security team",
		),
		Escalation: Escalation{
			TimeLimit:   time.Hour,
			NotifyRoles: []string{"security_lead", "ciso"},
			Channels:    []string{"pagerduty", "email"},
		},
		Metadata: soc,
	}
	forwarding.Steps[0].Type = "automated"
	forwarding.Steps[0].Timeout = 15 * time.Minute
	forwarding.Metadata.MITRETactics = []string{"TA0009"}

	compromise := &IRPlaybook{
		ID:          "pb-identity-002",
		Name:        "Account Compromise Containment",
		Description: "Contain and recover an account with multiple compromise indicators",
		Category:    "identity",
		Severity:    "critical",
		Triggers:    alertTrigger(KindAccountCompromise),
		Steps: analystSteps(
			"Contain: Revoke all active sessions immediately",
			"Contain: Force password reset with MFA",
			"Investigate: Review all actions taken during suspicious sessions",
			"Investigate: Check for data exfiltration attempts",
			"Eradicate: Remove any persistence mechanisms (rules, OAuth apps)",
			"Recover: Re-enable account with enhanced security controls",
			"Document: Create incident report with timeline and impact",
		),
		Escalation: Escalation{
			TimeLimit:   4 * time.Hour,
			NotifyRoles: []string{"security_lead", "ciso"},
			Channels:    []string{"pagerduty", "email"},
		},
		Metadata: soc,
	}
	compromise.Steps[len(compromise.Steps)-1].Owner = "security_lead"
	compromise.Metadata.MITRETactics = []string{"TA0001", "TA0007", "TA0009"}

	return []*IRPlaybook{phishing, travel, postCompromise, forwarding, compromise}
}
