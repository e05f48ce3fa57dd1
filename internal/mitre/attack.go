// Package mitre provides the MITRE ATT&CK techniques and tactics referenced
// by alert templates.
package mitre

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// Catalog resolves ATT&CK technique and tactic identifiers
type Catalog struct {
	techniques map[string]*Technique
	tactics    map[string]*Tactic
	mu         sync.RWMutex
	logger     *zap.Logger
}

// Technique represents a MITRE ATT&CK technique
type Technique struct {
	ID      string   `json:"id"`      // e.g., "T1078.004"
	Name    string   `json:"name"`    // e.g., "Valid Accounts: Cloud Accounts"
	Tactics []string `json:"tactics"` // e.g., ["initial-access"]
	URL     string   `json:"url"`
}

// Tactic represents a MITRE ATT&CK tactic
type Tactic struct {
	ID        string `json:"id"`         // e.g., "TA0001"
	Name      string `json:"name"`       // e.g., "Initial Access"
	ShortName string `json:"short_name"` // e.g., "initial-access"
	URL       string `json:"url"`
}

// Use names a technique in the role of one of its tactics
type Use struct {
	Technique string
	Tactic    string
}

// NewCatalog creates a catalog with the techniques used by detection content
func NewCatalog(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Catalog{
		techniques: make(map[string]*Technique),
		tactics:    make(map[string]*Tactic),
		logger:     logger,
	}

	c.initializeTactics()
	c.initializeTechniques()

	return c
}

// Technique returns a technique by ID
func (c *Catalog) Technique(id string) (*Technique, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.techniques[strings.ToUpper(id)]
	return t, ok
}

// Tactic returns a tactic by ID or short name
func (c *Catalog) Tactic(id string) (*Tactic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tactics[strings.ToLower(id)]
	return t, ok
}

// TechniquesByTactic returns all techniques for a given tactic, sorted by ID
func (c *Catalog) TechniquesByTactic(tactic string) []*Technique {
	c.mu.RLock()
	defer c.mu.RUnlock()

	short := strings.ToLower(tactic)
	if t, ok := c.tactics[short]; ok {
		short = t.ShortName
	}

	result := make([]*Technique, 0)
	for _, t := range c.techniques {
		for _, name := range t.Tactics {
			if name == short {
				result = append(result, t)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Ref renders one technique use as an alert reference. The tactic must be
// one the technique belongs to.
func (c *Catalog) Ref(u Use) (telemetry.MitreRef, error) {
	tech, ok := c.Technique(u.Technique)
	if !ok {
		return telemetry.MitreRef{}, fmt.Errorf("unknown technique %q", u.Technique)
	}
	tactic, ok := c.Tactic(u.Tactic)
	if !ok {
		return telemetry.MitreRef{}, fmt.Errorf("unknown tactic %q", u.Tactic)
	}
	member := false
	for _, name := range tech.Tactics {
		if name == tactic.ShortName {
			member = true
			break
		}
	}
	if !member {
		return telemetry.MitreRef{}, fmt.Errorf("technique %s is not part of tactic %s", tech.ID, tactic.ShortName)
	}
	return telemetry.MitreRef{ID: tech.ID, Name: tech.Name, Tactic: tactic.Name}, nil
}

// Refs renders uses in order, skipping and logging any that do not resolve
func (c *Catalog) Refs(uses ...Use) []telemetry.MitreRef {
	refs := make([]telemetry.MitreRef, 0, len(uses))
	for _, u := range uses {
		ref, err := c.Ref(u)
		if err != nil {
			c.logger.Warn("Skipping unresolved ATT&CK reference", zap.Error(err))
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

func (c *Catalog) initializeTechniques() {
	c.mu.Lock()
	defer c.mu.Unlock()

	techniques := []*Technique{
		{ID: "T1566", Name: "Phishing", Tactics: []string{"initial-access"}},
		{ID: "T1566.002", Name: "Phishing: Spearphishing Link", Tactics: []string{"initial-access"}},
		{ID: "T1589", Name: "Gather Victim Identity Information", Tactics: []string{"reconnaissance"}},
		{ID: "T1589.001", Name: "Gather Victim Identity Information: Credentials", Tactics: []string{"reconnaissance"}},
		{ID: "T1078", Name: "Valid Accounts", Tactics: []string{"defense-evasion", "persistence", "privilege-escalation", "initial-access"}},
		{ID: "T1078.004", Name: "Valid Accounts: Cloud Accounts", Tactics: []string{"defense-evasion", "persistence", "privilege-escalation", "initial-access"}},
		{ID: "T1087", Name: "Account Discovery", Tactics: []string{"discovery"}},
		{ID: "T1114", Name: "Email Collection", Tactics: []string{"collection"}},
		{ID: "T1114.002", Name: "Email Collection: Remote Email Collection", Tactics: []string{"collection"}},
		{ID: "T1114.003", Name: "Email Collection: Email Forwarding Rule", Tactics: []string{"collection"}},
		{ID: "T1564", Name: "Hide Artifacts", Tactics: []string{"defense-evasion"}},
		{ID: "T1564.008", Name: "Hide Artifacts: Email Hiding Rules", Tactics: []string{"defense-evasion"}},
		{ID: "T1110", Name: "Brute Force", Tactics: []string{"credential-access"}},
		{ID: "T1003", Name: "OS Credential Dumping", Tactics: []string{"credential-access"}},
		{ID: "T1003.006", Name: "OS Credential Dumping: DCSync", Tactics: []string{"credential-access"}},
		{ID: "T1059.001", Name: "Command and Scripting Interpreter: PowerShell", Tactics: []string{"execution"}},
		{ID: "T1071", Name: "Application Layer Protocol", Tactics: []string{"command-and-control"}},
	}

	for _, t := range techniques {
		t.URL = fmt.Sprintf("https://attack.mitre.org/techniques/%s/", strings.ReplaceAll(t.ID, ".", "/"))
		c.techniques[t.ID] = t
	}
}

func (c *Catalog) initializeTactics() {
	c.mu.Lock()
	defer c.mu.Unlock()

	tactics := []*Tactic{
		{ID: "TA0043", Name: "Reconnaissance", ShortName: "reconnaissance"},
		{ID: "TA0001", Name: "Initial Access", ShortName: "initial-access"},
		{ID: "TA0002", Name: "Execution", ShortName: "execution"},
		{ID: "TA0003", Name: "Persistence", ShortName: "persistence"},
		{ID: "TA0004", Name: "Privilege Escalation", ShortName: "privilege-escalation"},
		{ID: "TA0005", Name: "Defense Evasion", ShortName: "defense-evasion"},
		{ID: "TA0006", Name: "Credential Access", ShortName: "credential-access"},
		{ID: "TA0007", Name: "Discovery", ShortName: "discovery"},
		{ID: "TA0008", Name: "Lateral Movement", ShortName: "lateral-movement"},
		{ID: "TA0009", Name: "Collection", ShortName: "collection"},
		{ID: "TA0010", Name: "Exfiltration", ShortName: "exfiltration"},
		{ID: "TA0011", Name: "Command and Control", ShortName: "command-and-control"},
		{ID: "TA0040", Name: "Impact", ShortName: "impact"},
	}

	for _, t := range tactics {
		t.URL = fmt.Sprintf("https://attack.mitre.org/tactics/%s/", t.ID)
		c.tactics[t.ShortName] = t
		c.tactics[strings.ToLower(t.ID)] = t
	}
}
