// Package correlation links a user's events into named attack chains.
package correlation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yatuk/SOC-case-study-project/internal/telemetry"
)

// Strategy selects how many chains per user and pattern are reported
type Strategy string

const (
	// StrategyExhaustive emits every non-overlapping chain in time order
	StrategyExhaustive Strategy = "exhaustive"
	// StrategyFirstMatch stops at the first chain per user and pattern
	StrategyFirstMatch Strategy = "first_match"
)

const (
	descPhishing       = "User received phishing email, clicked link, and suspicious login followed"
	descTravel         = "User authenticated from geographically distant locations within short timeframe"
	descPostCompromise = "Suspicious mailbox activity detected after suspicious login"
)

// CorrelatorConfig holds configuration for the correlator
type CorrelatorConfig struct {
	Strategy                    Strategy `yaml:"strategy"`
	ClickWindowMinutes          int      `yaml:"click_window_minutes"`
	LoginWindowMinutes          int      `yaml:"login_window_minutes"`
	TravelWindowMinutes         int      `yaml:"travel_window_minutes"`
	PostCompromiseWindowMinutes int      `yaml:"post_compromise_window_minutes"`
	MaxLoginsPerChain           int      `yaml:"max_logins_per_chain"`
}

// DefaultConfig returns the windows used by the detection content
func DefaultConfig() CorrelatorConfig {
	return CorrelatorConfig{
		Strategy:                    StrategyExhaustive,
		ClickWindowMinutes:          30,
		LoginWindowMinutes:          60,
		TravelWindowMinutes:         60,
		PostCompromiseWindowMinutes: 60,
		MaxLoginsPerChain:           3,
	}
}

// Correlator correlates related events into attack chains
type Correlator struct {
	config CorrelatorConfig
	logger *zap.Logger
}

// NewCorrelator creates a new correlator. Zero config fields take defaults.
func NewCorrelator(cfg CorrelatorConfig, logger *zap.Logger) *Correlator {
	def := DefaultConfig()
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	if cfg.ClickWindowMinutes <= 0 {
		cfg.ClickWindowMinutes = def.ClickWindowMinutes
	}
	if cfg.LoginWindowMinutes <= 0 {
		cfg.LoginWindowMinutes = def.LoginWindowMinutes
	}
	if cfg.TravelWindowMinutes <= 0 {
		cfg.TravelWindowMinutes = def.TravelWindowMinutes
	}
	if cfg.PostCompromiseWindowMinutes <= 0 {
		cfg.PostCompromiseWindowMinutes = def.PostCompromiseWindowMinutes
	}
	if cfg.MaxLoginsPerChain <= 0 {
		cfg.MaxLoginsPerChain = def.MaxLoginsPerChain
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{config: cfg, logger: logger}
}

var _ telemetry.Correlator = (*Correlator)(nil)

// Correlate groups events by user email into time-sorted timelines and
// searches each timeline for the phishing, impossible travel and
// post-compromise patterns.
func (c *Correlator) Correlate(ctx context.Context, events []telemetry.Event) (*telemetry.CorrelationResult, error) {
	users, byUser := groupByUser(events)

	result := &telemetry.CorrelationResult{
		Correlations:  []telemetry.Correlation{},
		UserTimelines: make(map[string][]string, len(users)),
	}
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		timeline := byUser[user]
		ids := make([]string, len(timeline))
		for i, ev := range timeline {
			ids[i] = ev.EventID
		}
		result.UserTimelines[user] = ids

		found, err := c.correlateUser(user, timeline)
		if err != nil {
			c.logger.Error("correlation failed for user", zap.String("user", user), zap.Error(err))
			continue
		}
		result.Correlations = append(result.Correlations, found...)
	}

	c.logger.Info("correlation complete",
		zap.Int("users", len(users)),
		zap.Int("correlations", len(result.Correlations)),
		zap.String("strategy", string(c.config.Strategy)),
	)
	return result, nil
}

// correlateUser runs every pattern over one timeline. A panic in a pattern
// is reported as an error for this user only.
func (c *Correlator) correlateUser(user string, timeline []*telemetry.Event) (out []telemetry.Correlation, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	out = append(out, c.chains(user, telemetry.PatternPhishingClickLogin, "phishing_chain_", descPhishing, c.phishingChains(timeline))...)
	out = append(out, c.chains(user, telemetry.PatternImpossibleTravel, "impossible_travel_", descTravel, c.travelChains(timeline))...)
	out = append(out, c.chains(user, telemetry.PatternPostCompromise, "post_compromise_", descPostCompromise, c.postCompromiseChains(timeline))...)
	return out, nil
}

func (c *Correlator) chains(user, pattern, idPrefix, desc string, found [][]string) []telemetry.Correlation {
	out := make([]telemetry.Correlation, 0, len(found))
	for i, ids := range found {
		id := idPrefix + user
		if i > 0 {
			id = fmt.Sprintf("%s_%d", id, i+1)
		}
		out = append(out, telemetry.Correlation{
			CorrelationID: id,
			Pattern:       pattern,
			User:          user,
			Events:        ids,
			Description:   desc,
		})
	}
	return out
}

func (c *Correlator) exhaustive() bool {
	return c.config.Strategy != StrategyFirstMatch
}

// phishingChains finds inbound emails with an IOC match, followed by an IOC
// web click within the click window, followed by successful logins within
// the login window of the click.
func (c *Correlator) phishingChains(timeline []*telemetry.Event) [][]string {
	clickWindow := minutes(c.config.ClickWindowMinutes)
	loginWindow := minutes(c.config.LoginWindowMinutes)
	used := make(map[*telemetry.Event]bool)

	var found [][]string
	for _, email := range timeline {
		if email.EventType != telemetry.EventEmailInbound || !email.HasIOC() || used[email] {
			continue
		}
		click := firstAfter(timeline, email, clickWindow, func(ev *telemetry.Event) bool {
			return !used[ev] && isWeb(ev) && ev.HasIOC()
		})
		if click == nil {
			continue
		}
		var logins []*telemetry.Event
		for _, ev := range timeline {
			if len(logins) == c.config.MaxLoginsPerChain {
				break
			}
			if !used[ev] && ev.EventType == telemetry.EventLoginSuccess && within(ev, click, loginWindow) {
				logins = append(logins, ev)
			}
		}
		if len(logins) == 0 {
			continue
		}

		chain := append([]*telemetry.Event{email, click}, logins...)
		found = append(found, markUsed(used, chain))
		if !c.exhaustive() {
			break
		}
	}
	return found
}

// travelChains flags adjacent successful logins from different countries
// closer together than the travel window.
func (c *Correlator) travelChains(timeline []*telemetry.Event) [][]string {
	window := minutes(c.config.TravelWindowMinutes)
	var logins []*telemetry.Event
	for _, ev := range timeline {
		if ev.EventType == telemetry.EventLoginSuccess {
			logins = append(logins, ev)
		}
	}

	var found [][]string
	for i := 0; i+1 < len(logins); i++ {
		a, b := logins[i], logins[i+1]
		ca, cb := a.SrcCountry(), b.SrcCountry()
		if ca == "" || cb == "" || ca == cb || b.Since(a) >= window {
			continue
		}
		found = append(found, []string{a.EventID, b.EventID})
		if !c.exhaustive() {
			break
		}
		i++
	}
	return found
}

// postCompromiseChains finds suspicious logins (IOC match or unknown
// device) followed within the window by mailbox rule or search activity.
func (c *Correlator) postCompromiseChains(timeline []*telemetry.Event) [][]string {
	window := minutes(c.config.PostCompromiseWindowMinutes)
	used := make(map[*telemetry.Event]bool)

	var found [][]string
	for _, login := range timeline {
		if login.EventType != telemetry.EventLoginSuccess || used[login] {
			continue
		}
		if !login.HasIOC() && !login.DeviceUnknown() {
			continue
		}
		chain := []*telemetry.Event{login}
		for _, ev := range timeline {
			if !used[ev] && isMailboxFollowOn(ev) && within(ev, login, window) {
				chain = append(chain, ev)
			}
		}
		if len(chain) == 1 {
			continue
		}
		found = append(found, markUsed(used, chain))
		if !c.exhaustive() {
			break
		}
	}
	return found
}

func isWeb(ev *telemetry.Event) bool {
	return strings.HasPrefix(ev.EventType, "web.")
}

func isMailboxFollowOn(ev *telemetry.Event) bool {
	if ev.Source != telemetry.SourceCloudMailbox && !strings.HasPrefix(ev.EventType, "mailbox.") {
		return false
	}
	typ := strings.ToLower(ev.EventType)
	return strings.Contains(typ, "rule") ||
		strings.Contains(typ, "search") ||
		strings.Contains(strings.ToLower(ev.Detail("operation")), "search")
}

// within reports 0 <= ev - anchor < window
func within(ev, anchor *telemetry.Event, window time.Duration) bool {
	d := ev.Since(anchor)
	return d >= 0 && d < window
}

func firstAfter(timeline []*telemetry.Event, anchor *telemetry.Event, window time.Duration, match func(*telemetry.Event) bool) *telemetry.Event {
	for _, ev := range timeline {
		if ev != anchor && within(ev, anchor, window) && match(ev) {
			return ev
		}
	}
	return nil
}

func markUsed(used map[*telemetry.Event]bool, chain []*telemetry.Event) []string {
	ids := make([]string, len(chain))
	for i, ev := range chain {
		used[ev] = true
		ids[i] = ev.EventID
	}
	return ids
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// groupByUser returns users in order of first appearance and their
// timelines sorted by timestamp, then event_id. Events without a user
// email are skipped.
func groupByUser(events []telemetry.Event) ([]string, map[string][]*telemetry.Event) {
	var users []string
	byUser := make(map[string][]*telemetry.Event)
	for i := range events {
		email := events[i].UserEmail()
		if email == "" {
			continue
		}
		if _, ok := byUser[email]; !ok {
			users = append(users, email)
		}
		byUser[email] = append(byUser[email], &events[i])
	}
	for _, timeline := range byUser {
		sort.SliceStable(timeline, func(i, j int) bool {
			a, b := timeline[i], timeline[j]
			if !a.Timestamp.Equal(b.Timestamp) {
				return a.Timestamp.Before(b.Timestamp)
			}
			return a.EventID < b.EventID
		})
	}
	return users, byUser
}
