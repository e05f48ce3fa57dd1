// Package pseudo maps raw identifiers onto a fictitious identity space.
//
// Mappings are derived from a SHA-256 of the lowercased input, so they are
// stable across runs; the per-instance LRU caches only save recomputation.
// A Pseudonymizer is owned by one pipeline run and is safe for concurrent use.
package pseudo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

const (
	// SimDomain is the mail domain of the simulated organization
	SimDomain = "anadolufinans.example.tr"
	// SimOrg is the simulated organization name
	SimOrg = "Anadolu Finans Holding"

	// DefaultCacheSize bounds each identifier cache
	DefaultCacheSize = 4096
)

var firstNames = []string{
	"Ayşe", "Mehmet", "Elif", "Mustafa", "Zeynep", "Ali", "Fatma", "Ahmet",
	"Selin", "Emre", "Deniz", "Burak", "Ceren", "Oğuz", "Gülşen", "Cem",
	"Derya", "Kemal", "Leyla", "Murat", "Nalan", "Orhan", "Pınar", "Serkan",
	"Tuğba", "Uğur", "Vildan", "Yusuf", "Zehra", "Barış", "Cansu", "Doğan",
}

var lastNames = []string{
	"Demir", "Kaya", "Yılmaz", "Arslan", "Çelik", "Öztürk", "Şahin", "Aksoy",
	"Korkmaz", "Aydın", "Polat", "Erdoğan", "Tekin", "Doğan", "Güneş", "Özdemir",
	"Yıldırım", "Koç", "Kara", "Eren", "Çetin", "Kurt", "Özkan", "Şen",
	"Acar", "Bulut", "Tunç", "Kaplan", "Yalçın", "Güler", "Aslan", "Taş",
}

var cities = []string{"IST", "ANK", "IZM", "BRS", "ANT", "ADN", "KON", "GZT"}

var geoCodes = []string{"TR-IST", "TR-ANK", "TR-IZM", "NL", "DE", "US", "RO", "RU", "CN"}

var safeDomainPatterns = []string{".example.", ".test.", ".local", ".internal", "localhost"}

var suspiciousDomainWords = []string{
	"login", "secure", "verify", "account", "bank", "update",
	"microsoft", "google", "apple", "paypal", "amazon",
}

var hostTypes = []struct {
	needles []string
	kind    string
}{
	{[]string{"dc", "domain"}, "DC"},
	{[]string{"srv", "server"}, "SRV"},
	{[]string{"adfs"}, "ADFS"},
	{[]string{"ws", "workstation"}, "WS"},
	{[]string{"lt", "laptop"}, "LT"},
	{[]string{"vdi"}, "VDI"},
}

var (
	turkishFold = strings.NewReplacer("ş", "s", "ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ü", "u")
	urlRe       = regexp.MustCompile(`^(https?://)?([^/:]+)(.*)$`)
)

// UnknownUser is returned for empty identities
var UnknownUser = telemetry.User{ID: "usr-unknown", Email: "", Display: "Unknown"}

// Pseudonymizer substitutes identifiers. With enabled=false it runs in raw
// passthrough mode for the lifetime of the instance.
type Pseudonymizer struct {
	enabled bool
	size    int
	users   *lru.Cache[string, telemetry.User]
	hosts   *lru.Cache[string, string]
	ips     *lru.Cache[string, string]
	domains *lru.Cache[string, string]
}

// New creates a Pseudonymizer. cacheSize <= 0 selects DefaultCacheSize.
func New(enabled bool, cacheSize int) (*Pseudonymizer, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	p := &Pseudonymizer{enabled: enabled, size: cacheSize}
	if err := p.Reset(); err != nil {
		return nil, err
	}
	return p, nil
}

// Enabled reports whether identifiers are substituted
func (p *Pseudonymizer) Enabled() bool {
	return p.enabled
}

// Reset drops all cached mappings
func (p *Pseudonymizer) Reset() error {
	var err error
	if p.users, err = lru.New[string, telemetry.User](p.size); err != nil {
		return fmt.Errorf("user cache: %w", err)
	}
	if p.hosts, err = lru.New[string, string](p.size); err != nil {
		return fmt.Errorf("host cache: %w", err)
	}
	if p.ips, err = lru.New[string, string](p.size); err != nil {
		return fmt.Errorf("ip cache: %w", err)
	}
	if p.domains, err = lru.New[string, string](p.size); err != nil {
		return fmt.Errorf("domain cache: %w", err)
	}
	return nil
}

// Email maps an email address to a fictitious user drawn from the name pools
func (p *Pseudonymizer) Email(email string) telemetry.User {
	email = strings.TrimSpace(email)
	if email == "" {
		return UnknownUser
	}
	if !p.enabled {
		display, _, _ := strings.Cut(email, "@")
		return telemetry.User{ID: "usr-" + stableHash(email, 8), Email: email, Display: display}
	}

	key := strings.ToLower(email)
	if u, ok := p.users.Get(key); ok {
		return u
	}

	idx := stableIndex(key, len(firstNames)*len(lastNames))
	first := firstNames[idx%len(firstNames)]
	last := lastNames[(idx/len(firstNames))%len(lastNames)]
	local := turkishFold.Replace(strings.ToLower(first) + "." + strings.ToLower(last))

	u := telemetry.User{
		ID:      "usr-" + stableHash(key, 8),
		Email:   local + "@" + SimDomain,
		Display: first + " " + last,
	}
	p.users.Add(key, u)
	return u
}

// Username maps a bare or DOMAIN\user account name
func (p *Pseudonymizer) Username(username string) telemetry.User {
	username = strings.TrimSpace(username)
	if username == "" {
		return UnknownUser
	}
	if i := strings.LastIndex(username, `\`); i >= 0 {
		username = username[i+1:]
	}
	return p.Email(username + "@temp.local")
}

// IP maps a public address into 10.x.x.x (source) or 172.16.x.x
// (destination). Private, loopback and link-local values pass through.
func (p *Pseudonymizer) IP(ip string, source bool) string {
	ip = strings.TrimSpace(ip)
	if !p.enabled || ip == "" || isPassthroughIP(ip) {
		return ip
	}

	key := ip + "_" + strconv.FormatBool(source)
	if v, ok := p.ips.Get(key); ok {
		return v
	}

	h := stableInt(ip, 8)
	var out string
	if source {
		out = fmt.Sprintf("10.%d.%d.%d", (h>>16)%256, (h>>8)%256, h%254+1)
	} else {
		out = fmt.Sprintf("172.16.%d.%d", (h>>8)%256, h%254+1)
	}
	p.ips.Add(key, out)
	return out
}

// Hostname maps a host name to CITY-TYPE-NNN
func (p *Pseudonymizer) Hostname(hostname string) string {
	if !p.enabled {
		return hostname
	}
	key := strings.ToLower(strings.TrimSpace(hostname))
	if key == "" {
		return ""
	}
	if v, ok := p.hosts.Get(key); ok {
		return v
	}

	h := stableInt(key, 8)
	out := fmt.Sprintf("%s-%s-%03d", cities[h%uint64(len(cities))], hostType(key), h%999+1)
	p.hosts.Add(key, out)
	return out
}

// Domain maps a domain name. Safe suffixes pass through, lookalike domains
// keep their shape under .phishing.example, the rest become domain-xxxxxx.example.tr.
func (p *Pseudonymizer) Domain(domain string) string {
	if !p.enabled {
		return domain
	}
	domain = strings.TrimSpace(domain)
	key := strings.ToLower(domain)
	if key == "" {
		return ""
	}
	if v, ok := p.domains.Get(key); ok {
		return v
	}

	out := ""
	for _, pat := range safeDomainPatterns {
		if strings.Contains(key, pat) {
			out = domain
			break
		}
	}
	if out == "" {
		for _, w := range suspiciousDomainWords {
			if strings.Contains(key, w) {
				out = strings.ReplaceAll(domain, ".", "-") + ".phishing.example"
				break
			}
		}
	}
	if out == "" {
		out = "domain-" + stableHash(key, 6) + ".example.tr"
	}
	p.domains.Add(key, out)
	return out
}

// URL substitutes the host of rawURL and truncates long paths
func (p *Pseudonymizer) URL(rawURL string) string {
	if !p.enabled || rawURL == "" {
		return rawURL
	}
	m := urlRe.FindStringSubmatch(rawURL)
	if m == nil {
		return rawURL
	}
	scheme, host, path := m[1], m[2], m[3]
	if scheme == "" {
		scheme = "https://"
	}
	if r := []rune(path); len(r) > 50 {
		path = string(r[:47]) + "..."
	}
	return scheme + p.Domain(host) + path
}

// GeoCode assigns a simulated location code to a raw address
func GeoCode(ip string) string {
	switch {
	case ip == "":
		return "XX"
	case strings.HasPrefix(ip, "10."), strings.HasPrefix(ip, "192.168."):
		return "TR-IST"
	case strings.HasPrefix(ip, "172.16."):
		return "TR-ANK"
	}
	return geoCodes[stableInt(ip, 4)%uint64(len(geoCodes))]
}

func hostType(host string) string {
	for _, ht := range hostTypes {
		for _, n := range ht.needles {
			if strings.Contains(host, n) {
				return ht.kind
			}
		}
	}
	return "WS"
}

func isPassthroughIP(ip string) bool {
	for _, prefix := range []string{"10.", "192.168.", "172.", "127.", "fe80:"} {
		if strings.HasPrefix(ip, prefix) {
			return true
		}
	}
	return ip == "localhost"
}

func stableHash(value string, n int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(value)))
	return hex.EncodeToString(sum[:])[:n]
}

func stableInt(value string, n int) uint64 {
	v, _ := strconv.ParseUint(stableHash(value, n), 16, 64)
	return v
}

func stableIndex(value string, max int) int {
	return int(stableInt(value, 8) % uint64(max))
}
