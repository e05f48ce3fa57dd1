package normalization

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

const (
	accessLogTime = "02/Jan/2006:15:04:05 -0700"
	// wall clock of the log line, offset dropped like every other source
	accessLogWallClock = "2006-01-02T15:04:05"
)

var accessLogRe = regexp.MustCompile(`^(\S+) \S+ (\S+) \[(.*?)\] "(\w+) (.*?) HTTP/\d\.\d" (\d+) (\d+) "(.*?)" "(.*?)"$`)

// ErrNotAccessLog is returned for lines that are not extended access log entries
var ErrNotAccessLog = errors.New("not an access log line")

// ParseAccessLogLine parses one Apache extended access log line into a
// web proxy record
func ParseAccessLogLine(line string) (Record, error) {
	m := accessLogRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, ErrNotAccessLog
	}
	ts, err := time.Parse(accessLogTime, m[3])
	if err != nil {
		return nil, fmt.Errorf("access log time %q: %w", m[3], err)
	}
	status, _ := strconv.Atoi(m[6])
	size, _ := strconv.Atoi(m[7])
	return Record{
		"src_ip":     m[1],
		"user":       m[2],
		"timestamp":  ts.Format(accessLogWallClock),
		"method":     m[4],
		"url":        m[5],
		"status":     status,
		"size":       size,
		"referrer":   m[8],
		"user_agent": m[9],
	}, nil
}

// IsAccessLogLine reports whether line looks like an access log entry
func IsAccessLogLine(line string) bool {
	return accessLogRe.MatchString(strings.TrimSpace(line))
}

// WebProxy normalizes forward proxy request logs
type WebProxy struct{}

func (WebProxy) Family() Family { return FamilyWebProxy }

func (WebProxy) Detect(rec Record) bool {
	return countTrue(
		rec.Has("method"),
		rec.Has("url"),
		rec.Has("status"),
		rec.Has("user_agent"),
		rec.Has("src_ip"),
	) >= 3
}

func (WebProxy) Normalize(rc *RunContext, rec Record, row int) (*telemetry.Event, error) {
	method := rec.String("method")
	if method == "" {
		return nil, notFamily(FamilyWebProxy, "method")
	}
	ts, _, err := rc.timestamp(FamilyWebProxy, "timestamp", rec["timestamp"], row, false)
	if err != nil {
		return nil, err
	}

	url := rec.String("url")
	ua := rec.String("user_agent")
	ev := &telemetry.Event{
		EventID:    rc.IDs.NextEvent("web"),
		Timestamp:  ts,
		Source:     telemetry.SourceWebProxy,
		EventType:  "web." + eventSegment(method, segmentMax),
		Severity:   2,
		Device:     &telemetry.Device{OS: osFromUserAgent(ua), UserAgent: ua},
		Network:    &telemetry.Network{DstDomain: extractDomain(url)},
		Tags:       baseTags(FamilyWebProxy, "web"),
		IOCMatches: []telemetry.IOCMatch{},
		Raw:        telemetry.TruncateRaw(rec, telemetry.RawKeyBudget),
	}
	if user := rec.String("user"); user != "" {
		if !strings.Contains(user, "@") {
			user += "@" + rc.CorporateDomain
		}
		ev.User = plainUser(user)
	}
	if ip := rec.String("src_ip"); ip != "" {
		ev.Network.SrcIP = ip
		ev.Network.SrcGeo = LookupGeo(ip)
	}
	ev.Details = pickDetails(rec, "method", "url", "status", "referrer", "size")
	return ev, nil
}

func osFromUserAgent(ua string) string {
	switch {
	case strings.Contains(ua, "Windows NT 10.0"):
		return "Windows 10"
	case strings.Contains(ua, "Windows NT"):
		return "Windows"
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS X"):
		return "macOS"
	case strings.Contains(ua, "Linux"), strings.Contains(ua, "X11"):
		return "Linux"
	}
	return "Unknown"
}
