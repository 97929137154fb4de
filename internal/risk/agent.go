package risk

import (
	"fmt"
	"strings"
)

// AgentKey identifies one of the five backend analysis agents.
type AgentKey string

const (
	AgentDependency AgentKey = "dependency"
	AgentWorkload   AgentKey = "workload"
	AgentScope      AgentKey = "scope"
	AgentDelay      AgentKey = "delay"
	AgentComms      AgentKey = "comms"
)

// AgentKeys lists every agent in canonical order. Ties on risk contribution
// resolve to the earlier key.
var AgentKeys = []AgentKey{AgentDependency, AgentWorkload, AgentScope, AgentDelay, AgentComms}

// ParseAgentKey accepts both "dependency" and the stream's "dependency_agent".
func ParseAgentKey(raw string) (AgentKey, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.TrimSuffix(name, "_agent")
	for _, k := range AgentKeys {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown agent %q", raw)
}

// Label is the upper-case name shown in the live feed.
func (k AgentKey) Label() string { return strings.ToUpper(string(k)) }

func (k AgentKey) order() int {
	for i, key := range AgentKeys {
		if key == k {
			return i
		}
	}
	return len(AgentKeys)
}

// AgentResult is one agent's finding.
type AgentResult struct {
	RiskContribution float64     `json:"risk_contribution"`
	Confidence       float64     `json:"confidence"`
	TopRisks         []string    `json:"top_risks"`
	Evidence         []string    `json:"evidence"`
	Reasoning        string      `json:"reasoning"`
	SignalRefs       []SignalKey `json:"signal_refs"`
}

func (r AgentResult) clone() AgentResult {
	r.TopRisks = append([]string(nil), r.TopRisks...)
	r.Evidence = append([]string(nil), r.Evidence...)
	r.SignalRefs = append([]SignalKey(nil), r.SignalRefs...)
	return r
}

// DominantAgent returns the agent with the highest risk contribution.
// ok is false when results is empty.
func DominantAgent(results map[AgentKey]AgentResult) (AgentKey, bool) {
	var (
		best    AgentKey
		bestVal float64
		found   bool
	)
	for k, r := range results {
		if !found || r.RiskContribution > bestVal ||
			(r.RiskContribution == bestVal && k.order() < best.order()) {
			best, bestVal, found = k, r.RiskContribution, true
		}
	}
	return best, found
}
