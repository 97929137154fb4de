package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"meridian/internal/risk"
)

// Store persists the final analysis of each run, keyed by run ID.
type Store interface {
	Put(ctx context.Context, report Report) error
	Get(ctx context.Context, runID string) (Report, error)
	// List returns the archived run IDs in ascending order.
	List(ctx context.Context) ([]string, error)
}

var ErrNotFound = errors.New("report not found")

// Report is an archived terminal analysis.
type Report struct {
	RunID      string              `json:"run_id"`
	ArchivedAt time.Time           `json:"archived_at"`
	State      *risk.AnalysisState `json:"state"`
}

// NewReport archives st as of at.
func NewReport(st *risk.AnalysisState, at time.Time) Report {
	return Report{RunID: st.RunID, ArchivedAt: at.UTC(), State: st}
}

func (r Report) validate() error {
	if _, err := cleanRunID(r.RunID); err != nil {
		return err
	}
	if r.State == nil {
		return fmt.Errorf("report %s has no state", r.RunID)
	}
	return nil
}

func cleanRunID(runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return "", fmt.Errorf("run_id is required")
	}
	if strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return "", fmt.Errorf("invalid run_id: %s", runID)
	}
	return runID, nil
}

func encode(r Report) ([]byte, error) {
	return json.Marshal(r)
}

func decode(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	return r, nil
}
