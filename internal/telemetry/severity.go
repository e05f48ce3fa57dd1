package telemetry

// Severity is the 0-10 event severity assigned by family adapters
type Severity int

// Level is the categorical severity used for risk scores and alerts
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Clamp bounds s to 0-10
func (s Severity) Clamp() Severity {
	switch {
	case s < 0:
		return 0
	case s > 10:
		return 10
	}
	return s
}

// Floor raises s to at least min
func (s Severity) Floor(min Severity) Severity {
	if s < min {
		return min
	}
	return s
}

// Level maps the 0-10 scale onto the categorical scale:
// 0-2 low, 3-5 medium, 6-7 high, 8-10 critical.
func (s Severity) Level() Level {
	switch c := s.Clamp(); {
	case c >= 8:
		return LevelCritical
	case c >= 6:
		return LevelHigh
	case c >= 3:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Severity maps a level back to a representative 0-10 value
func (l Level) Severity() Severity {
	switch l {
	case LevelCritical:
		return 9
	case LevelHigh:
		return 7
	case LevelMedium:
		return 5
	default:
		return 2
	}
}

// Rank orders levels for comparisons (low=0 .. critical=3)
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 3
	case LevelHigh:
		return 2
	case LevelMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is as severe as other
func (l Level) AtLeast(other Level) bool {
	return l.Rank() >= other.Rank()
}

// LevelForScore bands a 0-100 risk score:
// [0,30) low, [30,60) medium, [60,80) high, [80,100] critical.
func LevelForScore(score int) Level {
	switch {
	case score < 30:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}
