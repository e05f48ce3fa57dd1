// Package forwarding ships detection alerts to a Splunk HTTP Event
// Collector so a SIEM can consume them alongside its own detections.
package forwarding

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var (
	ErrNoToken  = errors.New("HEC token not set")
	ErrNoHECURL = errors.New("HEC URL is required")

	// errPermanent marks responses a retry cannot fix
	errPermanent = errors.New("permanent HEC failure")
)

// HECEvent represents a Splunk HEC event.
type HECEvent struct {
	Time       float64        `json:"time,omitempty"`
	Host       string         `json:"host,omitempty"`
	Source     string         `json:"source,omitempty"`
	SourceType string         `json:"sourcetype,omitempty"`
	Index      string         `json:"index,omitempty"`
	Event      any            `json:"event"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// SenderConfig holds HEC sender configuration.
type SenderConfig struct {
	Enabled      bool          `yaml:"enabled"`
	HECURL       string        `yaml:"hec_url"`
	TokenEnv     string        `yaml:"token_env"`
	Index        string        `yaml:"index"`
	SourceType   string        `yaml:"sourcetype"`
	Source       string        `yaml:"source"`
	BatchSize    int           `yaml:"batch_size"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	VerifySSL    bool          `yaml:"verify_ssl"`
}

// DefaultSenderConfig returns sensible defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		TokenEnv:     "SOC_HEC_TOKEN",
		Index:        "soc_alerts",
		SourceType:   "soc:alert",
		Source:       "soc-pipeline",
		BatchSize:    100,
		Timeout:      30 * time.Second,
		RetryCount:   3,
		RetryBackoff: time.Second,
		VerifySSL:    true,
	}
}

// SenderStats tracks sender metrics.
type SenderStats struct {
	AlertsSent    int64
	BatchesFailed int64
	BytesSent     int64
	LastSendAt    time.Time
}

// HECSender sends alerts to Splunk via HEC.
type HECSender struct {
	config     SenderConfig
	token      string
	httpClient *http.Client
	logger     *zap.Logger
	mu         sync.RWMutex
	stats      SenderStats
}

// NewHECSender creates a sender. The token is read once from the
// environment variable named by TokenEnv.
func NewHECSender(config SenderConfig, logger *zap.Logger) (*HECSender, error) {
	if config.HECURL == "" {
		return nil, ErrNoHECURL
	}
	token := os.Getenv(config.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%w: env var %s is empty", ErrNoToken, config.TokenEnv)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !config.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &HECSender{
		config:     config,
		token:      token,
		httpClient: &http.Client{Timeout: config.Timeout, Transport: transport},
		logger:     logger.Named("hec"),
	}, nil
}

// Send forwards alerts in batches of BatchSize and returns how many were
// accepted. It stops at the first batch that fails every retry.
func (s *HECSender) Send(ctx context.Context, alerts []telemetry.Alert) (int, error) {
	sent := 0
	for start := 0; start < len(alerts); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(alerts))
		if err := s.sendBatch(ctx, alerts[start:end]); err != nil {
			return sent, err
		}
		sent += end - start
	}
	return sent, nil
}

func (s *HECSender) sendBatch(ctx context.Context, alerts []telemetry.Alert) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range alerts {
		if err := enc.Encode(s.event(&alerts[i])); err != nil {
			return fmt.Errorf("encode alert %s: %w", alerts[i].AlertID, err)
		}
	}

	if err := s.sendWithRetry(ctx, buf.Bytes()); err != nil {
		s.mu.Lock()
		s.stats.BatchesFailed++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.stats.AlertsSent += int64(len(alerts))
	s.stats.BytesSent += int64(buf.Len())
	s.stats.LastSendAt = time.Now()
	s.mu.Unlock()
	return nil
}

// event wraps an alert, stamped with the start of its evidence window
func (s *HECSender) event(a *telemetry.Alert) HECEvent {
	ts := a.TimeWindow.Start
	if ts.IsZero() {
		ts = time.Now()
	}
	return HECEvent{
		Time:       float64(ts.UnixMilli()) / 1000,
		Host:       a.Entity.User,
		Source:     s.config.Source,
		SourceType: s.config.SourceType,
		Index:      s.config.Index,
		Event:      a,
		Fields: map[string]any{
			"alert_name": a.Name,
			"severity":   string(a.Severity),
			"confidence": string(a.Confidence),
		},
	}
}

// sendWithRetry backs off quadratically between attempts
func (s *HECSender) sendWithRetry(ctx context.Context, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= s.config.RetryCount; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt*attempt) * s.config.RetryBackoff
			s.logger.Debug("retrying HEC batch", zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := s.send(ctx, data)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, errPermanent) {
			break
		}
	}
	return fmt.Errorf("HEC send failed after %d retries: %w", s.config.RetryCount, lastErr)
}

func (s *HECSender) send(ctx context.Context, data []byte) error {
	url := strings.TrimSuffix(s.config.HECURL, "/") + "/services/collector/event"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Splunk "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HEC request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("HEC returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", errPermanent, err)
		}
		return err
	}
	return nil
}

// Stats returns current sender statistics.
func (s *HECSender) Stats() SenderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// HealthCheck verifies connectivity to Splunk HEC.
func (s *HECSender) HealthCheck(ctx context.Context) error {
	url := strings.TrimSuffix(s.config.HECURL, "/") + "/services/collector/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HEC health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HEC health check returned status %d", resp.StatusCode)
	}
	return nil
}
