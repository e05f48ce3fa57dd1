// Package pipeline runs normalization, IOC cross-reference, correlation,
// risk scoring and alert detection over a datasets directory and writes
// the results for the dashboard.
package pipeline

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/config"
	"github.com/yatuk/SOC-case-study-project/internal/detection"
	"github.com/yatuk/SOC-case-study-project/internal/enrichment"
	"github.com/yatuk/SOC-case-study-project/internal/forwarding"
	"github.com/yatuk/SOC-case-study-project/internal/mitre"
	"github.com/yatuk/SOC-case-study-project/internal/observability"
	"github.com/yatuk/SOC-case-study-project/internal/playbooks"
	"github.com/yatuk/SOC-case-study-project/internal/pseudo"
	"github.com/yatuk/SOC-case-study-project/internal/scoring"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/correlation"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/ingestion"
	"github.com/yatuk/SOC-case-study-project/internal/telemetry/normalization"
)

// Output file names beyond the normalization outputs
const (
	CorrelationsFile = "correlations.json"
	RiskScoresFile   = "risk_scores.json"
	AlertsFile       = "alerts.jsonl"
)

// Pipeline runs the stages of one batch. It is safe to call Run more than
// once; every run gets fresh ID counters and pseudonym caches.
type Pipeline struct {
	config    *config.Config
	tel       *observability.Telemetry
	logger    *zap.Logger
	catalog   *mitre.Catalog
	playbooks *playbooks.PlaybookManager
	networks  []netip.Prefix
	// forwarder is nil unless forwarding is enabled
	forwarder *forwarding.HECSender
}

// Summary describes the outcome of a run
type Summary struct {
	OutputDir     string
	Profile       *ingestion.DatasetProfile
	Events        int
	IOCs          int
	EventsMatched int
	Correlations  map[string]int
	Entities      map[telemetry.Level]int
	Alerts        []telemetry.Alert
	Forwarded     int
	Exported      bool
	Duration      time.Duration
}

// New creates a pipeline. Playbooks found in the configured directory
// override the built-in ones.
func New(cfg *config.Config, tel *observability.Telemetry) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nets, err := cfg.CorporateNetworks()
	if err != nil {
		return nil, err
	}
	logger := tel.Logger().Named("pipeline")

	pm := playbooks.NewPlaybookManager(tel.Logger())
	if cfg.PlaybooksDir != "" {
		n, err := pm.LoadDir(cfg.PlaybooksDir)
		if err != nil {
			return nil, fmt.Errorf("load playbooks: %w", err)
		}
		logger.Info("playbooks loaded", zap.String("dir", cfg.PlaybooksDir), zap.Int("count", n))
	}

	var fwd *forwarding.HECSender
	if cfg.Forwarding.Enabled {
		if fwd, err = forwarding.NewHECSender(cfg.Forwarding, tel.Logger()); err != nil {
			return nil, fmt.Errorf("alert forwarding: %w", err)
		}
	}

	return &Pipeline{
		config:    cfg,
		tel:       tel,
		logger:    logger,
		catalog:   mitre.NewCatalog(tel.Logger()),
		playbooks: pm,
		networks:  nets,
		forwarder: fwd,
	}, nil
}

// Normalize runs only the normalization stage and writes its outputs
func (p *Pipeline) Normalize(ctx context.Context) (*ingestion.Result, error) {
	res, err := p.normalize(ctx)
	if err != nil {
		return nil, err
	}
	if err := res.Write(p.config.OutputDir); err != nil {
		return nil, fmt.Errorf("write normalization outputs: %w", err)
	}
	p.finish()
	return res, nil
}

// Run executes every stage and writes all outputs
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	res, err := p.normalize(ctx)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		OutputDir:    p.config.OutputDir,
		Profile:      res.Profile,
		Events:       len(res.Events),
		IOCs:         len(res.IOCs),
		Correlations: make(map[string]int),
		Entities:     make(map[telemetry.Level]int),
	}

	if sum.EventsMatched, err = p.enrich(ctx, res); err != nil {
		return nil, err
	}
	if err := res.Write(p.config.OutputDir); err != nil {
		return nil, fmt.Errorf("write normalization outputs: %w", err)
	}

	corr, err := p.correlate(ctx, res.Events)
	if err != nil {
		return nil, err
	}
	for _, c := range corr.Correlations {
		sum.Correlations[c.Pattern]++
	}

	risk, err := p.score(ctx, res.Events, corr)
	if err != nil {
		return nil, err
	}
	for _, es := range risk.EntityScores {
		sum.Entities[es.Severity]++
	}

	if sum.Alerts, err = p.detect(ctx, risk, corr); err != nil {
		return nil, err
	}

	out := p.config.OutputDir
	if err := multierr.Combine(
		ingestion.WriteJSON(filepath.Join(out, CorrelationsFile), corr),
		ingestion.WriteJSON(filepath.Join(out, RiskScoresFile), risk),
		ingestion.WriteJSONL(filepath.Join(out, AlertsFile), sum.Alerts),
	); err != nil {
		return nil, fmt.Errorf("write outputs: %w", err)
	}
	if p.forwarder != nil {
		sum.Forwarded = p.forward(ctx, sum.Alerts)
	}
	p.finish()

	if p.config.DashboardDir != "" {
		if err := Export(out, p.config.DashboardDir); err != nil {
			return nil, err
		}
		sum.Exported = true
		p.logger.Info("outputs exported", zap.String("dir", p.config.DashboardDir))
	}

	sum.Duration = time.Since(start)
	p.logger.Info("pipeline run complete",
		zap.Int("events", sum.Events),
		zap.Int("correlations", len(corr.Correlations)),
		zap.Int("alerts", len(sum.Alerts)),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func (p *Pipeline) normalize(ctx context.Context) (res *ingestion.Result, err error) {
	ctx, done := p.tel.StartStage(ctx, "normalize")
	defer func() { done(err) }()

	ps, err := pseudo.New(p.config.Pseudonymization.Enabled, p.config.Pseudonymization.CacheSize)
	if err != nil {
		return nil, err
	}
	rc := normalization.NewRunContext(ps, p.config.Reference(), p.config.Corporate.Domain)
	driver := ingestion.NewDriver(p.config.Caps, rc, p.tel.Logger().Named("ingestion"))

	res, err = driver.Run(ctx, p.config.DatasetsDir)
	if err != nil {
		return nil, fmt.Errorf("normalize %s: %w", p.config.DatasetsDir, err)
	}

	m := p.tel.Metrics()
	for _, fp := range res.Profile.Files {
		m.FilesProcessed.WithLabelValues(fp.Family, fp.Format).Inc()
		m.RecordErrors.WithLabelValues(fp.Family).Add(float64(fp.ErrorCount))
		if fp.Truncated {
			m.FilesTruncated.WithLabelValues("output_cap").Inc()
		}
		if fp.TruncatedInput {
			m.FilesTruncated.WithLabelValues("input_cap").Inc()
		}
		if isIOCFamily(fp.Family) {
			m.IOCsExtracted.WithLabelValues(fp.Family).Add(float64(fp.NormalizedCount))
		} else {
			m.EventsNormalized.WithLabelValues(fp.Family).Add(float64(fp.NormalizedCount))
		}
	}
	return res, nil
}

func isIOCFamily(family string) bool {
	switch normalization.Family(family) {
	case normalization.FamilyPhishingURL, normalization.FamilyPhishingFeatures:
		return true
	}
	return false
}

// enrich cross-references events against the indicator lists and the
// malicious IOCs of this run
func (p *Pipeline) enrich(ctx context.Context, res *ingestion.Result) (matched int, err error) {
	ctx, done := p.tel.StartStage(ctx, "enrich")
	defer func() { done(err) }()

	store, err := p.indicatorStore(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	n, err := enrichment.Load(ctx, store,
		enrichment.ListFileProvider{Dir: p.config.IOCListsDir},
		enrichment.ExtractedProvider{IOCs: res.IOCs},
	)
	if err != nil {
		return 0, fmt.Errorf("load indicators: %w", err)
	}
	p.logger.Debug("indicators loaded", zap.Int("count", n))

	matcher, err := enrichment.NewMatcher(ctx, store, p.tel.Logger().Named("enrichment"))
	if err != nil {
		return 0, fmt.Errorf("build matcher: %w", err)
	}
	matched, err = matcher.Enrich(ctx, res.Events)
	if err != nil {
		return 0, err
	}
	p.tel.Metrics().EventsMatched.Add(float64(matched))
	return matched, nil
}

func (p *Pipeline) indicatorStore(ctx context.Context) (enrichment.Store, error) {
	if !p.config.Redis.Enabled {
		return enrichment.NewMemoryStore(), nil
	}
	store, err := enrichment.NewRedisStore(ctx, p.config.Redis.StoreConfig())
	if err != nil {
		return nil, err
	}
	p.logger.Info("using redis indicator store", zap.String("addr", p.config.Redis.Addr))
	return store, nil
}

func (p *Pipeline) correlate(ctx context.Context, events []telemetry.Event) (res *telemetry.CorrelationResult, err error) {
	ctx, done := p.tel.StartStage(ctx, "correlate")
	defer func() { done(err) }()

	c := correlation.NewCorrelator(p.config.Correlation, p.tel.Logger())
	res, err = c.Correlate(ctx, events)
	if err != nil {
		return nil, fmt.Errorf("correlate: %w", err)
	}
	for _, corr := range res.Correlations {
		p.tel.Metrics().Correlations.WithLabelValues(corr.Pattern).Inc()
	}
	return res, nil
}

func (p *Pipeline) score(ctx context.Context, events []telemetry.Event, corr *telemetry.CorrelationResult) (res *telemetry.RiskResult, err error) {
	ctx, done := p.tel.StartStage(ctx, "score")
	defer func() { done(err) }()

	s := scoring.NewScorer(scoring.Config{
		CorporateDomain:   p.config.Corporate.Domain,
		CorporateNetworks: p.networks,
	}, p.tel.Logger())
	res, err = s.Score(ctx, events, corr)
	if err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	m := p.tel.Metrics()
	for _, se := range res.ScoredEvents {
		m.RiskScores.Observe(float64(se.RiskScore))
	}
	m.EntitiesBySeverity.Reset()
	for _, es := range res.EntityScores {
		m.EntitiesBySeverity.WithLabelValues(string(es.Severity)).Inc()
	}
	return res, nil
}

func (p *Pipeline) detect(ctx context.Context, risk *telemetry.RiskResult, corr *telemetry.CorrelationResult) (alerts []telemetry.Alert, err error) {
	ctx, done := p.tel.StartStage(ctx, "detect")
	defer func() { done(err) }()

	d := detection.NewDetector(detection.Config{
		CorporateDomain: p.config.Corporate.Domain,
		Seed:            p.config.Seed,
	}, p.catalog, p.playbooks, p.tel.Logger())
	alerts, err = d.Detect(ctx, risk, corr)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	for _, a := range alerts {
		p.tel.Metrics().AlertsRaised.WithLabelValues(a.Name, string(a.Severity)).Inc()
	}
	return alerts, nil
}

// forward ships alerts to the HEC collector. Failures are logged and
// counted; the written outputs stand either way.
func (p *Pipeline) forward(ctx context.Context, alerts []telemetry.Alert) int {
	var err error
	ctx, done := p.tel.StartStage(ctx, "forward")
	defer func() { done(err) }()

	m := p.tel.Metrics()
	var sent int
	sent, err = p.forwarder.Send(ctx, alerts)
	m.AlertsForwarded.Add(float64(sent))
	if err != nil {
		m.ForwardingFailures.Inc()
		p.logger.Warn("alert forwarding incomplete",
			zap.Int("sent", sent),
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
		return sent
	}
	p.logger.Info("alerts forwarded", zap.Int("count", sent))
	return sent
}

// finish stamps the run and writes the metrics textfile when enabled
func (p *Pipeline) finish() {
	m := p.tel.Metrics()
	m.LastRunTime.SetToCurrentTime()
	if !p.config.Metrics.Enabled || p.config.Metrics.TextfilePath == "" {
		return
	}
	path := p.config.Metrics.TextfilePath
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.config.OutputDir, path)
	}
	if err := m.WriteTextfile(path); err != nil {
		p.logger.Warn("metrics textfile not written", zap.String("path", path), zap.Error(err))
	}
}

// Export copies every regular file of outDir into dashboardDir
func Export(outDir, dashboardDir string) error {
	if err := os.MkdirAll(dashboardDir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(outDir, e.Name()), filepath.Join(dashboardDir, e.Name())); err != nil {
			return fmt.Errorf("export %s: %w", e.Name(), err)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
