package risk

// SignalKey identifies one of the fifteen normalized project measurements.
type SignalKey string

const (
	SignalBlockedTaskRatio        SignalKey = "blocked_task_ratio"
	SignalCriticalPathDepth       SignalKey = "critical_path_depth"
	SignalDependencyCentralityMax SignalKey = "dependency_centrality_max"
	SignalOverloadedDevRatio      SignalKey = "overloaded_dev_ratio"
	SignalTaskConcentrationIndex  SignalKey = "task_concentration_index"
	SignalUnassignedTaskRatio     SignalKey = "unassigned_task_ratio"
	SignalMidSprintTaskAdditions  SignalKey = "mid_sprint_task_additions"
	SignalScopeGrowthRate         SignalKey = "scope_growth_rate"
	SignalOutOfScopePRCount       SignalKey = "out_of_scope_pr_count"
	SignalOverdueTaskRatio        SignalKey = "overdue_task_ratio"
	SignalStaleTaskRatio          SignalKey = "stale_task_ratio"
	SignalAvgPRAgeDays            SignalKey = "avg_pr_age_days"
	SignalSilentDevRatio          SignalKey = "silent_dev_ratio"
	SignalUnansweredThreadRatio   SignalKey = "unanswered_thread_ratio"
	SignalEscalationKeywordCount  SignalKey = "escalation_keyword_count"
)

var signalGroups = map[SignalKey]AgentKey{
	SignalBlockedTaskRatio:        AgentDependency,
	SignalCriticalPathDepth:       AgentDependency,
	SignalDependencyCentralityMax: AgentDependency,
	SignalOverloadedDevRatio:      AgentWorkload,
	SignalTaskConcentrationIndex:  AgentWorkload,
	SignalUnassignedTaskRatio:     AgentWorkload,
	SignalMidSprintTaskAdditions:  AgentScope,
	SignalScopeGrowthRate:         AgentScope,
	SignalOutOfScopePRCount:       AgentScope,
	SignalOverdueTaskRatio:        AgentDelay,
	SignalStaleTaskRatio:          AgentDelay,
	SignalAvgPRAgeDays:            AgentDelay,
	SignalSilentDevRatio:          AgentComms,
	SignalUnansweredThreadRatio:   AgentComms,
	SignalEscalationKeywordCount:  AgentComms,
}

// Known reports whether k is one of the fixed signal keys.
func (k SignalKey) Known() bool {
	_, ok := signalGroups[k]
	return ok
}

// Group is the agent whose score the signal feeds.
func (k SignalKey) Group() AgentKey { return signalGroups[k] }

// Signal is a raw measurement and its normalized 0-1 score.
type Signal struct {
	Value float64 `json:"value"`
	Score float64 `json:"score"`
}

// Signals is the extracted signal set plus backend metadata such as
// simulated_now and extraction_timestamp.
type Signals struct {
	Values   map[SignalKey]Signal `json:"signals"`
	Metadata map[string]any       `json:"metadata,omitempty"`
}

// Known drops keys outside the fixed signal set.
func (s Signals) Known() Signals {
	out := Signals{Values: make(map[SignalKey]Signal, len(s.Values))}
	for k, v := range s.Values {
		if k.Known() {
			out.Values[k] = v
		}
	}
	if len(s.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (s Signals) clone() Signals {
	if s.Values == nil && s.Metadata == nil {
		return Signals{}
	}
	return s.Known()
}
