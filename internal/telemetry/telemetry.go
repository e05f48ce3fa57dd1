// Package telemetry defines the canonical security event schema shared by
// every stage of the pipeline: family adapters emit Events and IOCs, the
// correlator links them into Correlations, the scorer rolls them up into
// EntityScores and the detector turns both into Alerts.
package telemetry

import (
	"context"
	"strings"
	"time"
)

// Source identifies the log family an event originated from
type Source string

const (
	SourceWindows          Source = "windows"
	SourceAAD              Source = "aad"
	SourceM365Defender     Source = "m365defender"
	SourceAttackDataset    Source = "attack_dataset"
	SourceGeneric          Source = "generic"
	SourceEmailGateway     Source = "email_gateway"
	SourceIdentityProvider Source = "identity_provider"
	SourceWebProxy         Source = "web_proxy"
	SourceCloudMailbox     Source = "cloud_mailbox"
	SourceEndpointEDR      Source = "endpoint_edr"
)

// Event types the correlator and scorer key on
const (
	EventEmailInbound      = "email.inbound"
	EventLoginSuccess      = "auth.login_success"
	EventLoginFail         = "auth.login_fail"
	EventNewInboxRule      = "mailbox.new_inboxrule"
	EventMailItemsAccessed = "mailbox.mailitemsaccessed"
	EventGeneric           = "generic.event"
)

// Event is the canonical normalized security event.
// Once emitted only IOCMatches and Tags are appended to, by enrichment.
type Event struct {
	EventID     string         `json:"event_id" validate:"required"`
	Timestamp   time.Time      `json:"timestamp" validate:"required"`
	SyntheticTS bool           `json:"synthetic_ts,omitempty"`
	Source      Source         `json:"source" validate:"required,oneof=windows aad m365defender attack_dataset generic email_gateway identity_provider web_proxy cloud_mailbox endpoint_edr"`
	EventType   string         `json:"event_type" validate:"required,event_type"`
	Severity    Severity       `json:"severity" validate:"gte=0,lte=10"`
	User        *User          `json:"user,omitempty"`
	Device      *Device        `json:"device,omitempty"`
	Network     *Network       `json:"network,omitempty"`
	Process     *Process       `json:"process,omitempty"`
	Artifact    *Artifact      `json:"artifact,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Tags        Tags           `json:"tags"`
	IOCMatches  []IOCMatch     `json:"ioc_matches"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// User is the acting identity of an event
type User struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Display string `json:"display"`
}

// Device is the host an event was observed on
type Device struct {
	ID        string `json:"id,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	OS        string `json:"os,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Network holds connection attributes
type Network struct {
	SrcIP     string `json:"src_ip,omitempty"`
	SrcGeo    *Geo   `json:"src_geo,omitempty"`
	SrcPort   int    `json:"src_port,omitempty"`
	DstIP     string `json:"dst_ip,omitempty"`
	DstGeo    *Geo   `json:"dst_geo,omitempty"`
	DstDomain string `json:"dst_domain,omitempty"`
	Ports     []int  `json:"ports,omitempty"`
	Protocol  string `json:"protocol,omitempty"`
}

// Geo is a coarse location. Code carries the simulated geo code (TR-IST, NL).
type Geo struct {
	Code    string `json:"code,omitempty"`
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
}

// GeoFromCode splits a simulated geo code such as "TR-IST" into country and city
func GeoFromCode(code string) *Geo {
	if code == "" {
		return nil
	}
	country, city, _ := strings.Cut(code, "-")
	return &Geo{Code: code, Country: country, City: city}
}

// Process holds endpoint process detail
type Process struct {
	Name       string `json:"name,omitempty"`
	Path       string `json:"path,omitempty"`
	Cmdline    string `json:"cmdline,omitempty"`
	PID        int    `json:"pid,omitempty"`
	ParentName string `json:"parent_name,omitempty"`
	SHA256     string `json:"sha256,omitempty"`
}

// Artifact holds the object an event acted on
type Artifact struct {
	Target      string `json:"target,omitempty"`
	Type        string `json:"type,omitempty"`
	Permissions string `json:"permissions,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	FileName    string `json:"file_name,omitempty"`
	Hash        string `json:"hash,omitempty"`
}

// IOCMatch records a hit of an event attribute against an IOC list
type IOCMatch struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	List  string `json:"list"`
}

// IOC types
const (
	IOCTypeDomain = "domain"
	IOCTypeIP     = "ip"
	IOCTypeURL    = "url"
	IOCTypeHash   = "hash"
)

// IOC labels
const (
	LabelPhishing   = "phishing"
	LabelBenign     = "benign"
	LabelMalicious  = "malicious"
	LabelSuspicious = "suspicious"
	LabelUnknown    = "unknown"
)

// IOC is an indicator of compromise extracted from a dataset
type IOC struct {
	IOCID      string         `json:"ioc_id" validate:"required"`
	Type       string         `json:"type" validate:"required,oneof=domain ip url hash"`
	Value      string         `json:"value" validate:"required"`
	Label      string         `json:"label" validate:"required,oneof=phishing benign malicious suspicious unknown"`
	Source     string         `json:"source"`
	Confidence float64        `json:"confidence" validate:"gte=0,lte=1"`
	Tags       Tags           `json:"tags"`
	Domain     string         `json:"domain,omitempty"`
	Features   map[string]any `json:"features,omitempty"`
}

// Malicious reports whether the IOC should be used for cross-referencing
func (i IOC) Malicious() bool {
	return i.Label == LabelPhishing || i.Label == LabelMalicious
}

// Correlation patterns
const (
	PatternPhishingClickLogin = "phishing_click_login"
	PatternImpossibleTravel   = "impossible_travel"
	PatternPostCompromise     = "post_compromise_activity"
)

// Correlation is a derived chain of related events for one user
type Correlation struct {
	CorrelationID string   `json:"correlation_id"`
	Pattern       string   `json:"pattern"`
	User          string   `json:"user"`
	Events        []string `json:"events"`
	Description   string   `json:"description"`
}

// CorrelationResult is the correlator output document
type CorrelationResult struct {
	Correlations  []Correlation       `json:"correlations"`
	UserTimelines map[string][]string `json:"user_timelines"`
}

// Reason explains one triggered scoring rule
type Reason struct {
	Rule        string `json:"rule"`
	Points      int    `json:"points"`
	Description string `json:"description"`
}

// ScoredEvent is an event with its risk breakdown
type ScoredEvent struct {
	Event
	RiskScore      int      `json:"risk_score"`
	RiskLevel      Level    `json:"risk_level"`
	ScoreBreakdown []Reason `json:"score_breakdown"`
}

// EntityScore is the per-user risk roll-up
type EntityScore struct {
	Score    int      `json:"score"`
	Severity Level    `json:"severity"`
	Reasons  []Reason `json:"reasons"`
	Events   []string `json:"events"`
}

// RiskResult is the scorer output document
type RiskResult struct {
	ScoredEvents []ScoredEvent          `json:"scored_events"`
	EntityScores map[string]EntityScore `json:"entity_scores"`
}

// Alert is a detection produced from correlations and scores
type Alert struct {
	AlertID            string      `json:"alert_id"`
	Name               string      `json:"name"`
	Severity           Level       `json:"severity"`
	Confidence         Level       `json:"confidence"`
	Entity             AlertEntity `json:"entity"`
	TimeWindow         TimeWindow  `json:"time_window"`
	Evidence           []string    `json:"evidence"`
	Hypothesis         string      `json:"hypothesis"`
	RecommendedActions []string    `json:"recommended_actions"`
	Mitre              []MitreRef  `json:"mitre"`
}

// AlertEntity lists the identities an alert concerns
type AlertEntity struct {
	User    string   `json:"user"`
	IPs     []string `json:"ips"`
	Devices []string `json:"devices"`
}

// TimeWindow spans the evidence of an alert
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MitreRef is an ATT&CK technique reference on an alert
type MitreRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tactic string `json:"tactic"`
}

// Correlator correlates related events into attack chains
type Correlator interface {
	Correlate(ctx context.Context, events []Event) (*CorrelationResult, error)
}
