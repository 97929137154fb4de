package backend

// MutationRequest is the body of POST /api/simulate. Only the field matching
// Type is set.
type MutationRequest struct {
	Type      string `json:"type"`
	Count     int    `json:"count,omitempty"`
	Days      int    `json:"days,omitempty"`
	TaskCount int    `json:"task_count,omitempty"`
	PRCount   int    `json:"pr_count,omitempty"`
}

// Outcome is a scored project state on one side of a simulation.
type Outcome struct {
	TotalScore  float64            `json:"total_score"`
	RiskLevel   string             `json:"risk_level"`
	AgentScores map[string]float64 `json:"agent_scores"`
}

type Delta struct {
	TotalScore       float64            `json:"total_score"`
	RiskLevelChanged bool               `json:"risk_level_changed"`
	AgentDeltas      map[string]float64 `json:"agent_deltas"`
}

type SimulationResponse struct {
	Baseline          Outcome        `json:"baseline"`
	Simulated         Outcome        `json:"simulated"`
	Delta             Delta          `json:"delta"`
	MutationApplied   map[string]any `json:"mutation_applied,omitempty"`
	SimulationVersion string         `json:"simulation_version,omitempty"`
}

type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// MonteCarlo is the distributional summary returned by GET /api/monte-carlo.
type MonteCarlo struct {
	NSimulations            int                `json:"n_simulations"`
	MeanScore               float64            `json:"mean_score"`
	MedianScore             float64            `json:"median_score"`
	StdDeviation            float64            `json:"std_deviation"`
	Percentile5             float64            `json:"percentile_5"`
	Percentile95            float64            `json:"percentile_95"`
	ConfidenceInterval      ConfidenceInterval `json:"confidence_interval"`
	RiskLevelDistribution   map[string]float64 `json:"risk_level_distribution"`
	ProbabilityCritical     float64            `json:"probability_critical"`
	ProbabilityAboveCurrent float64            `json:"probability_above_current"`
	CurrentScore            float64            `json:"current_score"`
	Verdict                 string             `json:"verdict"`
}
