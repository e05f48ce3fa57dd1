// Package enrichment cross-references normalized events against local
// indicator lists and the IOCs extracted from phishing datasets.
package enrichment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// IOCType represents the type of indicator of compromise.
type IOCType string

const (
	IOCTypeIP     IOCType = telemetry.IOCTypeIP
	IOCTypeDomain IOCType = telemetry.IOCTypeDomain
)

// Indicator list names, reported as IOCMatch.List
const (
	ListMaliciousIPs     = "malicious_ips"
	ListMaliciousDomains = "malicious_domains"
	ListKnownGoodIPs     = "known_good_ips"
	ListExtracted        = "extracted_iocs"
)

var listFiles = []struct {
	file string
	typ  IOCType
	list string
}{
	{"malicious_domains.txt", IOCTypeDomain, ListMaliciousDomains},
	{"malicious_ips.txt", IOCTypeIP, ListMaliciousIPs},
	{"known_good_ips.txt", IOCTypeIP, ListKnownGoodIPs},
}

// Indicator is one value on a named list.
type Indicator struct {
	Type  IOCType `json:"type"`
	Value string  `json:"value"`
	List  string  `json:"list"`
}

// Provider is a source of indicators.
type Provider interface {
	Name() string
	Indicators(ctx context.Context) ([]Indicator, error)
}

// ListFileProvider reads one-value-per-line list files from a directory.
// Blank lines and lines starting with # are skipped; missing files are
// treated as empty lists.
type ListFileProvider struct {
	Dir string
}

func (p ListFileProvider) Name() string { return "list_files" }

func (p ListFileProvider) Indicators(ctx context.Context) ([]Indicator, error) {
	var out []Indicator
	for _, lf := range listFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		values, err := readList(filepath.Join(p.Dir, lf.file))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", lf.file, err)
		}
		for _, v := range values {
			out = append(out, Indicator{Type: lf.typ, Value: v, List: lf.list})
		}
	}
	return out, nil
}

func readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		values = append(values, line)
	}
	return values, sc.Err()
}

// ExtractedProvider offers the domains of malicious dataset IOCs.
type ExtractedProvider struct {
	IOCs []telemetry.IOC
}

func (p ExtractedProvider) Name() string { return "extracted_iocs" }

func (p ExtractedProvider) Indicators(_ context.Context) ([]Indicator, error) {
	var out []Indicator
	for _, ioc := range p.IOCs {
		if !ioc.Malicious() || ioc.Domain == "" {
			continue
		}
		out = append(out, Indicator{Type: IOCTypeDomain, Value: ioc.Domain, List: ListExtracted})
	}
	return out, nil
}
