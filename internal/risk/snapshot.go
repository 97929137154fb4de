package risk

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// AgentReport is an agent result as it appears on the wire, tagged with the
// agent name.
type AgentReport struct {
	Agent string `json:"agent"`
	AgentResult
}

// Snapshot is the full analysis document returned by GET /api/analysis and
// carried by the risk_score_ready stream event.
type Snapshot struct {
	RiskScore          float64            `json:"risk_score"`
	RiskLevel          string             `json:"risk_level"`
	AgentScores        map[string]float64 `json:"agent_scores"`
	DominantRisk       string             `json:"dominant_risk"`
	InteractionPenalty float64            `json:"interaction_penalty"`
	Agents             []AgentReport      `json:"agents"`
	Signals            Signals            `json:"signals"`
	Timestamp          string             `json:"timestamp"`
	FormulaVersion     string             `json:"formula_version"`
}

// Validate rejects snapshots whose score cannot be classified.
func (s Snapshot) Validate() error {
	if math.IsNaN(s.RiskScore) || math.IsInf(s.RiskScore, 0) || s.RiskScore < 0 || s.RiskScore > 100 {
		return fmt.Errorf("risk_score %v out of range", s.RiskScore)
	}
	if s.InteractionPenalty < 0 || math.IsNaN(s.InteractionPenalty) {
		return fmt.Errorf("interaction_penalty %v is invalid", s.InteractionPenalty)
	}
	return nil
}

// Score classifies the snapshot's composite score with the fixed table. The
// backend's own label is not trusted for classification.
func (s Snapshot) Score() Score { return NewScore(s.RiskScore) }

// LevelMismatch reports whether the backend label disagrees with the fixed
// table. Unparseable labels count as a mismatch.
func (s Snapshot) LevelMismatch() bool {
	lvl, err := ParseLevel(s.RiskLevel)
	return err != nil || lvl != s.Score().Level
}

// Results returns agent results keyed by agent, in wire order. Reports for
// unknown agents are skipped and returned in skipped.
func (s Snapshot) Results() (results map[AgentKey]AgentResult, order []AgentKey, skipped []string) {
	results = make(map[AgentKey]AgentResult, len(s.Agents))
	for _, rep := range s.Agents {
		k, err := ParseAgentKey(rep.Agent)
		if err != nil {
			skipped = append(skipped, rep.Agent)
			continue
		}
		if _, ok := results[k]; !ok {
			order = append(order, k)
		}
		results[k] = rep.AgentResult.clone()
	}
	return results, order, skipped
}

// Scores returns the per-agent scores keyed by agent.
func (s Snapshot) Scores() map[AgentKey]float64 {
	if len(s.AgentScores) == 0 {
		return nil
	}
	out := make(map[AgentKey]float64, len(s.AgentScores))
	for name, v := range s.AgentScores {
		if k, err := ParseAgentKey(name); err == nil {
			out[k] = v
		}
	}
	return out
}

// Time returns the server-reported completion time, or now when absent or
// unparseable.
func (s Snapshot) Time(now time.Time) time.Time {
	if t, ok := ParseTimestamp(s.Timestamp); ok {
		return t
	}
	return now
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses the ISO-8601 forms the backend emits.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ReadyState builds a terminal state that wholly reflects the snapshot.
func (s Snapshot) ReadyState(runID string, source Source, now time.Time) *AnalysisState {
	results, order, _ := s.Results()
	score := s.Score()
	st := &AnalysisState{
		RunID:              runID,
		Status:             StatusReady,
		Score:              &score,
		AgentResults:       results,
		AgentOrder:         order,
		AgentScores:        s.Scores(),
		Signals:            s.Signals.Known(),
		InteractionPenalty: s.InteractionPenalty,
		FormulaVersion:     s.FormulaVersion,
		Timestamp:          s.Time(now),
		Source:             source,
	}
	st.DominantRisk = Dominant(results, s.DominantRisk)
	return st
}

// Dominant recomputes the dominant agent, falling back to the
// backend-reported key when no agent results are present.
func Dominant(results map[AgentKey]AgentResult, reported string) AgentKey {
	if k, ok := DominantAgent(results); ok {
		return k
	}
	k, _ := ParseAgentKey(reported)
	return k
}
