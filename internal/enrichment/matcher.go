package enrichment

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// TagIOCMatch is added to every event with at least one match
const TagIOCMatch = "ioc_match"

// Matcher checks event attributes against a snapshot of indicator lists.
// IPs match exactly; domains match as substrings of domain, URL and
// sender fields. Known-good IPs never match.
type Matcher struct {
	ips       map[string]string
	domains   []Indicator
	knownGood map[string]struct{}
	logger    *zap.Logger
}

// NewMatcher snapshots the indicators held by store.
func NewMatcher(ctx context.Context, store Store, logger *zap.Logger) (*Matcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inds, err := store.All(ctx)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		ips:       make(map[string]string),
		knownGood: make(map[string]struct{}),
		logger:    logger,
	}
	for _, ind := range inds {
		switch {
		case ind.List == ListKnownGoodIPs:
			m.knownGood[ind.Value] = struct{}{}
		case ind.Type == IOCTypeIP:
			if _, ok := m.ips[ind.Value]; !ok {
				m.ips[ind.Value] = ind.List
			}
		case ind.Type == IOCTypeDomain:
			m.domains = append(m.domains, ind)
		}
	}
	logger.Debug("indicator snapshot loaded",
		zap.Int("ips", len(m.ips)),
		zap.Int("domains", len(m.domains)),
		zap.Int("known_good", len(m.knownGood)),
	)
	return m, nil
}

// Match appends IOC matches to ev and reports whether any were found.
func (m *Matcher) Match(ev *telemetry.Event) bool {
	var ips []string
	if ev.Network != nil {
		ips = append(ips, ev.Network.SrcIP, ev.Network.DstIP)
	}
	ips = append(ips, ev.Detail("client_ip"))
	for _, ip := range ips {
		if ip == "" {
			continue
		}
		if _, ok := m.knownGood[ip]; ok {
			continue
		}
		if list, ok := m.ips[ip]; ok {
			ev.AddIOCMatch(telemetry.IOCMatch{Type: telemetry.IOCTypeIP, Value: ip, List: list})
		}
	}

	var fields []string
	if ev.Network != nil {
		fields = append(fields, ev.Network.DstDomain)
	}
	fields = append(fields, ev.Detail("url"), ev.Detail("urls"), ev.Detail("sender"))
	for _, field := range fields {
		if field == "" {
			continue
		}
		for _, d := range m.domains {
			if strings.Contains(field, d.Value) {
				ev.AddIOCMatch(telemetry.IOCMatch{Type: telemetry.IOCTypeDomain, Value: d.Value, List: d.List})
			}
		}
	}

	if !ev.HasIOC() {
		return false
	}
	ev.Tags = ev.Tags.Add(TagIOCMatch)
	return true
}

// Enrich matches every event in place and returns the number matched.
func (m *Matcher) Enrich(ctx context.Context, events []telemetry.Event) (int, error) {
	matched := 0
	for i := range events {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return matched, err
			}
		}
		if m.Match(&events[i]) {
			matched++
		}
	}
	m.logger.Info("ioc cross-reference complete",
		zap.Int("events", len(events)),
		zap.Int("matched", matched),
	)
	return matched, nil
}
