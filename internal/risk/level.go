package risk

import (
	"fmt"
	"strings"
)

// Level is the risk classification of a composite score.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

const (
	criticalThreshold = 75.0
	highThreshold     = 50.0
	moderateThreshold = 25.0
)

// ClassifyScore maps a 0-100 composite score onto the fixed threshold table.
func ClassifyScore(score float64) Level {
	switch {
	case score >= criticalThreshold:
		return LevelCritical
	case score >= highThreshold:
		return LevelHigh
	case score >= moderateThreshold:
		return LevelModerate
	default:
		return LevelLow
	}
}

// ParseLevel accepts the labels the backend and the dashboard use.
// WARNING is the dashboard name of the high tier; HEALTHY of the low one.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LOW", "HEALTHY", "STABLE", "OPTIMAL":
		return LevelLow, nil
	case "MODERATE":
		return LevelModerate, nil
	case "HIGH", "WARNING":
		return LevelHigh, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return "", fmt.Errorf("unknown risk level %q", raw)
	}
}

func (l Level) String() string { return string(l) }

// Hex is the display color of the level.
func (l Level) Hex() string {
	switch l {
	case LevelCritical:
		return "#ef4444"
	case LevelHigh:
		return "#f59e0b"
	case LevelModerate:
		return "#eab308"
	default:
		return "#22c55e"
	}
}
