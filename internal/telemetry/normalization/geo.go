package normalization

import "github.com/yatuk/SOC-case-study-project/internal/telemetry"

// sampleGeo locates the addresses that appear in the bundled pipeline
// sample logs. Addresses not listed have no geo.
var sampleGeo = map[string]telemetry.Geo{
	"89.34.126.77":   {Country: "RO", City: "Bucharest"},
	"185.220.101.45": {Country: "RO", City: "Bucharest"},
	"192.168.10.45":  {Country: "US", City: "New York"},
	"192.168.10.88":  {Country: "US", City: "New York"},
	"192.168.10.120": {Country: "US", City: "New York"},
	"192.168.1.100":  {Country: "US", City: "New York"},
}

// LookupGeo returns the sample geo for ip, nil when unknown
func LookupGeo(ip string) *telemetry.Geo {
	g, ok := sampleGeo[ip]
	if !ok {
		return nil
	}
	return &g
}
