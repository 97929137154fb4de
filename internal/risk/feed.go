package risk

import "time"

// FeedEntry is one human-readable finding in the live feed.
type FeedEntry struct {
	Color      string    `json:"color"`
	AgentLabel string    `json:"agent_label"`
	Timestamp  time.Time `json:"timestamp"`
	Text       string    `json:"text"`
}

// ContributionColor maps a 0-1 agent contribution onto the feed palette.
func ContributionColor(c float64) string {
	switch {
	case c >= 0.8:
		return "#ef4444"
	case c >= 0.6:
		return "#f97316"
	case c >= 0.4:
		return "#eab308"
	default:
		return "#22c55e"
	}
}

// NewFeedEntry describes a completed agent for the live feed.
func NewFeedEntry(k AgentKey, r AgentResult, at time.Time) FeedEntry {
	return FeedEntry{
		Color:      ContributionColor(r.RiskContribution),
		AgentLabel: k.Label(),
		Timestamp:  at,
		Text:       r.Reasoning,
	}
}
