package normalization

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// IDGenerator hands out sequential event and IOC identifiers for one run
type IDGenerator struct {
	mu     sync.Mutex
	events int
	iocs   int
}

// NewIDGenerator returns a generator starting at 1
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NextEvent returns "<prefix>-NNNNNN". The counter is shared by all prefixes.
func (g *IDGenerator) NextEvent(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events++
	return fmt.Sprintf("%s-%06d", prefix, g.events)
}

// NextIOC returns "ioc-NNNNNN"
func (g *IDGenerator) NextIOC() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.iocs++
	return fmt.Sprintf("ioc-%06d", g.iocs)
}

// Reset restarts both counters
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events, g.iocs = 0, 0
}

// UserID derives a stable user identifier from an email or name
func UserID(emailOrName string) string {
	if emailOrName == "" {
		return "usr-unknown"
	}
	return "usr-" + sha1Prefix(emailOrName)
}

// DeviceID derives a stable device identifier from a hostname
func DeviceID(hostname string) string {
	if hostname == "" {
		return "dev-unknown"
	}
	return "dev-" + sha1Prefix(hostname)
}

func sha1Prefix(s string) string {
	sum := sha1.Sum([]byte(strings.ToLower(s)))
	return hex.EncodeToString(sum[:])[:8]
}
