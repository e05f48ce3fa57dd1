package pseudo

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPseudonymizer(t *testing.T, enabled bool) *Pseudonymizer {
	t.Helper()
	p, err := New(enabled, 16)
	require.NoError(t, err)
	return p
}

// =============================================================================
// Email / Username
// =============================================================================

func TestEmail_Idempotent(t *testing.T) {
	p := newTestPseudonymizer(t, true)

	first := p.Email("Sarah.Chen@AcmeCorp.example.com")
	second := p.Email("sarah.chen@acmecorp.example.com")

	assert.Equal(t, first, second)
	assert.True(t, strings.HasSuffix(first.Email, "@"+SimDomain))
	assert.Regexp(t, `^usr-[0-9a-f]{8}$`, first.ID)
	assert.Regexp(t, `^[a-z]+\.[a-z]+@`, first.Email, "turkish characters must be folded")
	assert.Contains(t, first.Display, " ")
}

func TestEmail_StableAcrossInstancesAndReset(t *testing.T) {
	a := newTestPseudonymizer(t, true)
	b := newTestPseudonymizer(t, true)

	want := a.Email("analyst@corp.com")
	require.NoError(t, a.Reset())

	assert.Equal(t, want, a.Email("analyst@corp.com"))
	assert.Equal(t, want, b.Email("analyst@corp.com"))
}

func TestEmail_EvictionDoesNotChangeMapping(t *testing.T) {
	p := newTestPseudonymizer(t, true)
	want := p.Email("victim@corp.com")

	for i := 0; i < 64; i++ {
		p.Email(strings.Repeat("x", i+1) + "@corp.com")
	}

	assert.Equal(t, want, p.Email("victim@corp.com"))
}

func TestEmail_Empty(t *testing.T) {
	p := newTestPseudonymizer(t, true)
	assert.Equal(t, UnknownUser, p.Email("  "))
	assert.Equal(t, UnknownUser, p.Username(""))
}

func TestEmail_RawMode(t *testing.T) {
	p := newTestPseudonymizer(t, false)

	u := p.Email("john.doe@corp.com")

	assert.False(t, p.Enabled())
	assert.Equal(t, "john.doe@corp.com", u.Email)
	assert.Equal(t, "john.doe", u.Display)
	assert.Regexp(t, `^usr-[0-9a-f]{8}$`, u.ID)
}

func TestUsername_StripsDomainPrefix(t *testing.T) {
	p := newTestPseudonymizer(t, true)

	assert.Equal(t, p.Username("jdoe"), p.Username(`CORP\jdoe`))
	assert.Equal(t, p.Email("jdoe@temp.local"), p.Username("jdoe"))
}

// =============================================================================
// IP
// =============================================================================

func TestIP(t *testing.T) {
	p := newTestPseudonymizer(t, true)

	tests := []struct {
		name   string
		ip     string
		source bool
		match  string
	}{
		{"public source", "89.34.126.77", true, `^10\.\d{1,3}\.\d{1,3}\.\d{1,3}$`},
		{"public destination", "89.34.126.77", false, `^172\.16\.\d{1,3}\.\d{1,3}$`},
		{"private passthrough", "192.168.10.45", true, `^192\.168\.10\.45$`},
		{"rfc1918 passthrough", "10.1.2.3", false, `^10\.1\.2\.3$`},
		{"loopback passthrough", "127.0.0.1", true, `^127\.0\.0\.1$`},
		{"localhost passthrough", "localhost", true, `^localhost$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.IP(tt.ip, tt.source)
			assert.Regexp(t, tt.match, got)
			assert.Equal(t, got, p.IP(tt.ip, tt.source))
		})
	}
}

func TestIP_LastOctetNeverZero(t *testing.T) {
	p := newTestPseudonymizer(t, true)
	for _, ip := range []string{"1.1.1.1", "8.8.8.8", "203.0.113.9", "198.51.100.200"} {
		got := p.IP(ip, true)
		parts := strings.Split(got, ".")
		require.Len(t, parts, 4)
		assert.NotEqual(t, "0", parts[3])
		assert.NotEqual(t, "255", parts[3])
	}
}

// =============================================================================
// Hostname / Domain / URL / Geo
// =============================================================================

func TestHostname(t *testing.T) {
	p := newTestPseudonymizer(t, true)
	pattern := regexp.MustCompile(`^(IST|ANK|IZM|BRS|ANT|ADN|KON|GZT)-([A-Z]+)-\d{3}$`)

	tests := []struct {
		host string
		kind string
	}{
		{"CORP-DC01", "DC"},
		{"fileserver02", "SRV"},
		{"adfs-prod", "ADFS"},
		{"ws-1042", "WS"},
		{"LAPTOP-7Q2", "LT"},
		{"vdi-pool-3", "VDI"},
		{"reception-pc", "WS"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			got := p.Hostname(tt.host)
			m := pattern.FindStringSubmatch(got)
			require.NotNil(t, m, got)
			assert.Equal(t, tt.kind, m[2])
			assert.Equal(t, got, p.Hostname(strings.ToUpper(tt.host)))
		})
	}
	assert.Empty(t, p.Hostname(""))
}

func TestDomain(t *testing.T) {
	p := newTestPseudonymizer(t, true)

	assert.Equal(t, "intranet.example.com", p.Domain("intranet.example.com"))
	assert.Equal(t, "dc01.corp.local", p.Domain("dc01.corp.local"))
	assert.Equal(t, "secure-login-bank-com.phishing.example", p.Domain("secure-login-bank.com"))
	assert.Regexp(t, `^domain-[0-9a-f]{6}\.example\.tr$`, p.Domain("wikipedia.org"))
	assert.Equal(t, p.Domain("Wikipedia.org"), p.Domain("wikipedia.org"))
}

func TestURL(t *testing.T) {
	p := newTestPseudonymizer(t, true)

	got := p.URL("http://paypal-verify.com/signin")
	assert.Equal(t, "http://paypal-verify-com.phishing.example/signin", got)

	got = p.URL("evil.org/" + strings.Repeat("a", 80))
	assert.True(t, strings.HasPrefix(got, "https://domain-"))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, got[strings.Index(got, ".example.tr")+len(".example.tr"):], 50)

	got = p.URL("evil.org/" + strings.Repeat("ğ", 80))
	assert.True(t, utf8.ValidString(got))
	path := got[strings.Index(got, ".example.tr")+len(".example.tr"):]
	assert.Equal(t, 50, utf8.RuneCountInString(path))
	assert.Equal(t, "/"+strings.Repeat("ğ", 46)+"...", path)
}

func TestRawModePassthrough(t *testing.T) {
	p := newTestPseudonymizer(t, false)

	assert.Equal(t, "89.34.126.77", p.IP("89.34.126.77", true))
	assert.Equal(t, "CORP-DC01", p.Hostname("CORP-DC01"))
	assert.Equal(t, "wikipedia.org", p.Domain("wikipedia.org"))
	assert.Equal(t, "http://evil.org/x", p.URL("http://evil.org/x"))
}

func TestGeoCode(t *testing.T) {
	assert.Equal(t, "XX", GeoCode(""))
	assert.Equal(t, "TR-IST", GeoCode("10.0.0.1"))
	assert.Equal(t, "TR-IST", GeoCode("192.168.1.1"))
	assert.Equal(t, "TR-ANK", GeoCode("172.16.4.4"))
	assert.Contains(t, geoCodes, GeoCode("89.34.126.77"))
	assert.Equal(t, GeoCode("89.34.126.77"), GeoCode("89.34.126.77"))
}
