// Package observability provides logging, metrics, and tracing capabilities
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Telemetry provides unified observability for a pipeline process
type Telemetry struct {
	logger       *zap.Logger
	tracer       trace.Tracer
	metrics      *Metrics
	config       Config
	shutdownOnce sync.Once
	shutdownFns  []func(context.Context) error
}

// Config configures telemetry
type Config struct {
	ServiceName    string
	ServiceVersion string

	// Logging
	LogLevel  string
	LogFormat string // json, console

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
	OTLPInsecure   bool
	SamplingRate   float64
}

// New creates a new Telemetry instance. A tracing exporter that cannot be
// created is logged and tracing stays disabled.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	t := &Telemetry{config: cfg}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}
	t.logger = logger

	if cfg.TracingEnabled {
		if err := t.initTracer(ctx); err != nil {
			logger.Warn("Failed to initialize tracer", zap.Error(err))
		}
	}
	t.tracer = otel.Tracer(cfg.ServiceName)
	t.metrics = NewMetrics()

	return t, nil
}

// NewLogger builds the process logger. The console format uses zap's
// development encoder; anything else is production JSON.
func NewLogger(level, format, service, version string) (*zap.Logger, error) {
	var config zap.Config

	if format == "console" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	config.InitialFields = map[string]interface{}{
		"service": service,
		"version": version,
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

func (t *Telemetry) initTracer(ctx context.Context) error {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(t.config.OTLPEndpoint)}
	if t.config.OTLPInsecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(t.config.ServiceName),
			semconv.ServiceVersion(t.config.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(t.config.SamplingRate))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.shutdownFns = append(t.shutdownFns, tp.Shutdown)
	return nil
}

// Metrics holds the Prometheus metrics of a pipeline process. Each
// instance owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	// Normalization
	FilesProcessed   *prometheus.CounterVec
	FilesTruncated   *prometheus.CounterVec
	EventsNormalized *prometheus.CounterVec
	IOCsExtracted    *prometheus.CounterVec
	RecordErrors     *prometheus.CounterVec

	// Enrichment
	EventsMatched prometheus.Counter

	// Correlation, scoring and detection
	Correlations       *prometheus.CounterVec
	RiskScores         prometheus.Histogram
	EntitiesBySeverity *prometheus.GaugeVec
	AlertsRaised       *prometheus.CounterVec

	// Forwarding
	AlertsForwarded    prometheus.Counter
	ForwardingFailures prometheus.Counter

	// Runs
	StageDuration *prometheus.HistogramVec
	LastRunTime   prometheus.Gauge

	// API
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics registers every metric on a fresh registry
func NewMetrics() *Metrics {
	const namespace = "soc"
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Dataset files processed by detected family and container format",
		}, []string{"family", "format"}),
		FilesTruncated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_truncated_total",
			Help:      "Dataset files cut short by an output or input cap",
		}, []string{"reason"}),
		EventsNormalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_normalized_total",
			Help:      "Canonical events emitted by family",
		}, []string{"family"}),
		IOCsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iocs_extracted_total",
			Help:      "IOCs extracted by family",
		}, []string{"family"}),
		RecordErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_errors_total",
			Help:      "Records that failed normalization by family",
		}, []string{"family"}),
		EventsMatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ioc_matched_total",
			Help:      "Events carrying at least one IOC match",
		}),
		Correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlations_total",
			Help:      "Correlated chains by pattern",
		}, []string{"pattern"}),
		RiskScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_risk_score",
			Help:      "Distribution of per-event risk scores",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		EntitiesBySeverity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Scored entities by severity in the last run",
		}, []string{"severity"}),
		AlertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by name and severity",
		}, []string{"name", "severity"}),
		AlertsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_forwarded_total",
			Help:      "Alerts accepted by the HEC collector",
		}),
		ForwardingFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_forwarding_failures_total",
			Help:      "Forwarding attempts that gave up after retries",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"stage"}),
		LastRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Completion time of the last pipeline run",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		m.FilesProcessed, m.FilesTruncated, m.EventsNormalized, m.IOCsExtracted, m.RecordErrors,
		m.EventsMatched, m.Correlations, m.RiskScores, m.EntitiesBySeverity, m.AlertsRaised,
		m.AlertsForwarded, m.ForwardingFailures, m.StageDuration, m.LastRunTime, m.RequestsTotal, m.RequestDuration,
	)
	return m
}

// Registry returns the registry holding m's metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves m's registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the registry for the node exporter textfile collector
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Logger returns the logger
func (t *Telemetry) Logger() *zap.Logger {
	return t.logger
}

// Tracer returns the tracer
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Metrics returns the metrics
func (t *Telemetry) Metrics() *Metrics {
	return t.metrics
}

// StartStage opens a span for one pipeline stage. The returned function
// ends the span, records err on it and observes the stage duration.
func (t *Telemetry) StartStage(ctx context.Context, stage string) (context.Context, func(err error)) {
	ctx, span := t.tracer.Start(ctx, "pipeline."+stage,
		trace.WithAttributes(attribute.String("soc.stage", stage)),
	)
	start := time.Now()
	return ctx, func(err error) {
		t.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// RecordError records an error to the current span and logs it
func (t *Telemetry) RecordError(ctx context.Context, err error, fields ...zap.Field) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
	}
	t.logger.Error(err.Error(), fields...)
}

// Shutdown flushes spans and the logger
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	t.shutdownOnce.Do(func() {
		for _, fn := range t.shutdownFns {
			err = multierr.Append(err, fn(ctx))
		}
		// stderr/stdout sync fails on some terminals
		_ = t.logger.Sync()
	})
	return err
}
