// Package normalization converts raw records from heterogeneous security
// log families into canonical telemetry events and IOCs.
package normalization

import (
	"errors"
	"fmt"
	"time"

	"github.com/yatuk/SOC-case-study-project/internal/pseudo"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// Family names a raw log format recognized by an adapter
type Family string

const (
	FamilyWindows          Family = "windows"
	FamilyAAD              Family = "aad"
	FamilyM365Defender     Family = "m365defender"
	FamilyIdentityProvider Family = "identity_provider"
	FamilyCloudMailbox     Family = "cloud_mailbox"
	FamilyEndpointEDR      Family = "endpoint_edr"
	FamilyWebProxy         Family = "web_proxy"
	FamilyEmailGateway     Family = "email_gateway"
	FamilyPhishingURL      Family = "phishing_url"
	FamilyPhishingFeatures Family = "phishing_features"
	FamilyAttackDataset    Family = "attack_dataset"
	FamilyGenericCSV       Family = "generic_csv"
	FamilyGenericJSON      Family = "generic_json"
)

var (
	// ErrNotFamily is returned when a record lacks the fields that identify its family
	ErrNotFamily = errors.New("record does not belong to family")
	// ErrNoTimestamp is returned when no timestamp could be recovered
	ErrNoTimestamp = errors.New("no parseable timestamp")
)

// RecordError describes a record that belongs to a family but is malformed
type RecordError struct {
	Family Family
	Field  string
	Err    error
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Family, e.Err)
	}
	return fmt.Sprintf("%s: field %s: %v", e.Family, e.Field, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func malformed(f Family, field string, err error) error {
	return &RecordError{Family: f, Field: field, Err: err}
}

func notFamily(f Family, field string) error {
	return &RecordError{Family: f, Field: field, Err: ErrNotFamily}
}

// Record is one raw input row or object
type Record map[string]any

// Adapter is implemented by every family. Adapters additionally implement
// EventNormalizer or IOCNormalizer.
type Adapter interface {
	Family() Family
}

// EventNormalizer converts a record into a canonical event
type EventNormalizer interface {
	Adapter
	Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error)
}

// IOCNormalizer converts a record into an IOC
type IOCNormalizer interface {
	Adapter
	NormalizeIOC(rc *RunContext, rec Record, row int) (*telemetry.IOC, error)
}

// RecordDetector recognizes JSON records of a family
type RecordDetector interface {
	Adapter
	Detect(rec Record) bool
}

// HeaderDetector recognizes CSV files of a family by header names
type HeaderDetector interface {
	Adapter
	DetectHeaders(headers []string) bool
}

// RunContext carries the per-run state shared by adapters. It is owned by
// the caller of a pipeline run; independent runs use independent contexts.
type RunContext struct {
	Pseudo          *pseudo.Pseudonymizer
	IDs             *IDGenerator
	Reference       time.Time
	CorporateDomain string
}

// NewRunContext creates a context with fresh ID counters
func NewRunContext(p *pseudo.Pseudonymizer, reference time.Time, corporateDomain string) *RunContext {
	return &RunContext{
		Pseudo:          p,
		IDs:             NewIDGenerator(),
		Reference:       reference.UTC(),
		CorporateDomain: corporateDomain,
	}
}

// timestamp parses v, falling back to a synthetic row-derived time when
// synthetic is allowed
func (rc *RunContext) timestamp(f Family, field string, v any, row int, synthetic bool) (time.Time, bool, error) {
	if ts, ok := telemetry.ParseTimestamp(v); ok {
		return ts, false, nil
	}
	if synthetic {
		return telemetry.SyntheticTimestamp(rc.Reference, row), true, nil
	}
	return time.Time{}, false, malformed(f, field, ErrNoTimestamp)
}

// baseTags are carried by every event a family emits
func baseTags(f Family, extra ...string) telemetry.Tags {
	return telemetry.NewTags(append([]string{"simulated", "normalized", string(f)}, extra...)...)
}
