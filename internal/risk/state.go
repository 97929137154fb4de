package risk

import (
	"time"
)

// Status is the lifecycle position of an analysis run.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusStreaming  Status = "streaming"
	StatusFinalizing Status = "finalizing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a run in this status is finished.
func (s Status) Terminal() bool { return s == StatusReady || s == StatusFailed }

// Source records where the final state came from.
type Source string

const (
	SourceStream   Source = "stream"
	SourceFallback Source = "fallback"
)

// Score holds the composite score together with its classification so the
// two can never be observed independently.
type Score struct {
	Composite float64 `json:"composite"`
	Level     Level   `json:"level"`
}

// NewScore classifies composite with the fixed threshold table.
func NewScore(composite float64) Score {
	return Score{Composite: composite, Level: ClassifyScore(composite)}
}

// AnalysisState is the view of the current analysis shared by every observer.
// Values handed out by the session store are never mutated afterwards. Seq
// increases with every published transition, so a later state always has a
// larger Seq.
type AnalysisState struct {
	RunID              string                   `json:"run_id,omitempty"`
	Seq                uint64                   `json:"seq"`
	Status             Status                   `json:"status"`
	Score              *Score                   `json:"score,omitempty"`
	AgentResults       map[AgentKey]AgentResult `json:"agent_results"`
	AgentOrder         []AgentKey               `json:"agent_order,omitempty"`
	AgentScores        map[AgentKey]float64     `json:"agent_scores,omitempty"`
	Signals            Signals                  `json:"signals"`
	DominantRisk       AgentKey                 `json:"dominant_risk,omitempty"`
	InteractionPenalty float64                  `json:"interaction_penalty"`
	FormulaVersion     string                   `json:"formula_version,omitempty"`
	Timestamp          time.Time                `json:"timestamp,omitzero"`
	Source             Source                   `json:"source,omitempty"`
	Error              string                   `json:"error,omitempty"`
}

// NewIdleState is the state of a session before its first run.
func NewIdleState() *AnalysisState {
	return &AnalysisState{
		Status:       StatusIdle,
		AgentResults: map[AgentKey]AgentResult{},
	}
}

// CompositeScore returns the composite score once it is known.
func (s *AnalysisState) CompositeScore() (float64, bool) {
	if s == nil || s.Score == nil {
		return 0, false
	}
	return s.Score.Composite, true
}

// RiskLevel returns the classification once the composite score is known.
func (s *AnalysisState) RiskLevel() (Level, bool) {
	if s == nil || s.Score == nil {
		return "", false
	}
	return s.Score.Level, true
}

// Clone returns a deep copy.
func (s *AnalysisState) Clone() *AnalysisState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Score != nil {
		sc := *s.Score
		out.Score = &sc
	}
	out.AgentResults = make(map[AgentKey]AgentResult, len(s.AgentResults))
	for k, v := range s.AgentResults {
		out.AgentResults[k] = v.clone()
	}
	out.AgentOrder = append([]AgentKey(nil), s.AgentOrder...)
	if s.AgentScores != nil {
		out.AgentScores = make(map[AgentKey]float64, len(s.AgentScores))
		for k, v := range s.AgentScores {
			out.AgentScores[k] = v
		}
	}
	out.Signals = s.Signals.clone()
	return &out
}

// PutAgentResult stores r under k, replacing any earlier result for the same
// agent. Arrival order is kept in AgentOrder.
func (s *AnalysisState) PutAgentResult(k AgentKey, r AgentResult) {
	if s.AgentResults == nil {
		s.AgentResults = map[AgentKey]AgentResult{}
	}
	if _, ok := s.AgentResults[k]; !ok {
		s.AgentOrder = append(s.AgentOrder, k)
	}
	s.AgentResults[k] = r.clone()
}
