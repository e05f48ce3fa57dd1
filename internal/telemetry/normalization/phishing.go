package normalization

import (
	"slices"
	"strconv"
	"strings"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

var sourceConfidence = map[string]float64{
	"urlhaus":   0.85,
	"phishtank": 0.9,
	"openphish": 0.85,
	"tranco":    0.1,
	"alexa":     0.1,
}

// PhishingURL turns labelled URL feeds into IOCs
type PhishingURL struct{}

func (PhishingURL) Family() Family { return FamilyPhishingURL }

func (PhishingURL) DetectHeaders(headers []string) bool {
	h := lowerHeaders(headers)
	return countTrue(
		slices.Contains(h, "url"),
		slices.Contains(h, "label"),
		slices.ContainsFunc(h, func(s string) bool { return strings.Contains(s, "phish") }),
		slices.Contains(h, "source"),
	) >= 2
}

func (PhishingURL) NormalizeIOC(rc *RunContext, rec Record, _ int) (*telemetry.IOC, error) {
	url := rec.String("url")
	if url == "" {
		return nil, notFamily(FamilyPhishingURL, "url")
	}
	label := phishingLabel(rec)

	source := strings.ToLower(rec.String("source"))
	if source == "" {
		source = "unknown"
	}
	confidence, ok := sourceConfidence[source]
	if !ok {
		confidence = 0.5
	}
	if label == telemetry.LabelBenign {
		confidence = 1 - confidence
	}

	ioc := newURLIOC(rc, url, label, "dataset:"+source)
	ioc.Confidence = round2(confidence)
	return ioc, nil
}

// PhishingFeatures turns URL feature datasets into IOCs with heuristic confidence
type PhishingFeatures struct{}

func (PhishingFeatures) Family() Family { return FamilyPhishingFeatures }

func (PhishingFeatures) DetectHeaders(headers []string) bool {
	h := lowerHeaders(headers)
	return countTrue(
		slices.Contains(h, "url"),
		slices.Contains(h, "label"),
		slices.Contains(h, "url_length"),
		slices.Contains(h, "num_dots"),
		slices.Contains(h, "has_https") || slices.Contains(h, "entropy"),
	) >= 3
}

func (PhishingFeatures) NormalizeIOC(rc *RunContext, rec Record, _ int) (*telemetry.IOC, error) {
	url := rec.String("url")
	if url == "" {
		return nil, notFamily(FamilyPhishingFeatures, "url")
	}
	label := phishingLabel(rec)

	suspiciousWords := asFloat(rec["suspicious_words"])
	hasIP := rec.String("has_ip") == "1"
	urlLength := asFloat(rec["url_length"])
	entropy := asFloat(rec["entropy"])

	confidence := 0.3
	if label == telemetry.LabelPhishing {
		confidence = 0.6
		if suspiciousWords > 0 {
			confidence += 0.1
		}
		if hasIP {
			confidence += 0.1
		}
		if urlLength > 75 {
			confidence += 0.05
		}
		if entropy > 4.5 {
			confidence += 0.05
		}
	}
	confidence = min(confidence, 0.95)

	ioc := newURLIOC(rc, url, label, "dataset:phishing_features")
	ioc.Confidence = round2(confidence)
	ioc.Features = map[string]any{
		"url_length":       int(urlLength),
		"suspicious_words": int(suspiciousWords),
		"has_ip":           hasIP,
		"entropy":          round2(entropy),
	}
	return ioc, nil
}

// phishingLabel reads the integer label column: 1 is phishing, any other
// integer benign, anything else unknown
func phishingLabel(rec Record) string {
	n, err := strconv.Atoi(rec.String("label"))
	switch {
	case err != nil:
		return telemetry.LabelUnknown
	case n == 1:
		return telemetry.LabelPhishing
	default:
		return telemetry.LabelBenign
	}
}

func newURLIOC(rc *RunContext, url, label, source string) *telemetry.IOC {
	ioc := &telemetry.IOC{
		IOCID:  rc.IDs.NextIOC(),
		Type:   telemetry.IOCTypeURL,
		Value:  rc.Pseudo.URL(url),
		Label:  label,
		Source: source,
		Tags:   telemetry.NewTags("simulated", "normalized"),
	}
	if label == telemetry.LabelPhishing {
		ioc.Tags = ioc.Tags.Add("malicious", "mitre:T1566.002")
	}
	if domain := extractDomain(url); domain != "" {
		ioc.Domain = rc.Pseudo.Domain(domain)
	}
	return ioc
}
