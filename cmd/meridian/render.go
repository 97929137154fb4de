package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"meridian/internal/backend"
	"meridian/internal/risk"
	"meridian/internal/simulation"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// writeStructured encodes v as JSON or YAML. YAML output keeps the JSON field
// names and order.
func writeStructured(w io.Writer, format string, v any) error {
	if format != formatYAML {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// blockStyle drops the flow and quoting styles carried over from JSON.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

func writeSummary(w io.Writer, st *risk.AnalysisState) {
	fmt.Fprintf(w, "Run:       %s\n", st.RunID)
	fmt.Fprintf(w, "Status:    %s\n", st.Status)
	if st.Source != "" {
		fmt.Fprintf(w, "Source:    %s\n", st.Source)
	}
	if score, ok := st.CompositeScore(); ok {
		lvl, _ := st.RiskLevel()
		fmt.Fprintf(w, "Score:     %.1f (%s)\n", score, lvl)
	}
	if st.DominantRisk != "" {
		fmt.Fprintf(w, "Dominant:  %s\n", st.DominantRisk.Label())
	}
	if st.InteractionPenalty > 0 {
		fmt.Fprintf(w, "Penalty:   %.3f\n", st.InteractionPenalty)
	}
	if !st.Timestamp.IsZero() {
		fmt.Fprintf(w, "Completed: %s\n", st.Timestamp.Format("2006-01-02 15:04:05Z07:00"))
	}
	if st.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", st.Error)
	}
	if len(st.AgentOrder) > 0 {
		fmt.Fprintf(w, "Agents:\n")
		for _, k := range st.AgentOrder {
			fmt.Fprintf(w, "  %s\n", formatAgent(k, st.AgentResults[k]))
		}
	}
}

func formatAgent(k risk.AgentKey, r risk.AgentResult) string {
	line := fmt.Sprintf("%-10s %.2f", k.Label(), r.RiskContribution)
	if text := firstLine(r.Reasoning); text != "" {
		line += "  " + text
	}
	return line
}

func formatFeedEntry(e risk.FeedEntry) string {
	return fmt.Sprintf("%s %-10s %s", e.Timestamp.Format("15:04:05"), e.AgentLabel, firstLine(e.Text))
}

func writeResult(w io.Writer, label string, res *simulation.Result) {
	changed := ""
	if res.Delta.RiskLevelChanged {
		changed = " level changed"
	}
	cached := ""
	if res.Cached {
		cached = " (cached)"
	}
	fmt.Fprintf(w, "%s: %.1f %s -> %.1f %s  delta %+.1f%s%s\n", label,
		res.Baseline.TotalScore, res.Baseline.RiskLevel,
		res.Simulated.TotalScore, res.Simulated.RiskLevel,
		res.Delta.TotalScore, changed, cached)
	for _, k := range sortedAgents(res.Delta.AgentDeltas) {
		fmt.Fprintf(w, "  %-10s %+.3f\n", k.Label(), res.Delta.AgentDeltas[k])
	}
}

func writeMonteCarlo(w io.Writer, mc backend.MonteCarlo) {
	fmt.Fprintf(w, "Simulations:   %d\n", mc.NSimulations)
	fmt.Fprintf(w, "Current:       %.1f\n", mc.CurrentScore)
	fmt.Fprintf(w, "Mean/median:   %.1f / %.1f (sd %.2f)\n", mc.MeanScore, mc.MedianScore, mc.StdDeviation)
	fmt.Fprintf(w, "P5-P95:        %.1f - %.1f\n", mc.Percentile5, mc.Percentile95)
	fmt.Fprintf(w, "Interval:      %.1f - %.1f\n", mc.ConfidenceInterval.Lower, mc.ConfidenceInterval.Upper)
	fmt.Fprintf(w, "P(critical):   %.1f%%\n", mc.ProbabilityCritical*100)
	fmt.Fprintf(w, "P(> current):  %.1f%%\n", mc.ProbabilityAboveCurrent*100)
	if len(mc.RiskLevelDistribution) > 0 {
		levels := make([]string, 0, len(mc.RiskLevelDistribution))
		for lvl := range mc.RiskLevelDistribution {
			levels = append(levels, lvl)
		}
		sort.Strings(levels)
		fmt.Fprintf(w, "Distribution:\n")
		for _, lvl := range levels {
			fmt.Fprintf(w, "  %-9s %.1f%%\n", lvl, mc.RiskLevelDistribution[lvl])
		}
	}
	if mc.Verdict != "" {
		fmt.Fprintf(w, "Verdict:       %s\n", mc.Verdict)
	}
}

func sortedAgents(m map[risk.AgentKey]float64) []risk.AgentKey {
	out := make([]risk.AgentKey, 0, len(m))
	for _, k := range risk.AgentKeys {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
