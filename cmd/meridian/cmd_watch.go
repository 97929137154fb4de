package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"meridian/internal/app"
	"meridian/internal/risk"
)

var watchFlags struct {
	timeout time.Duration
	json    bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run an analysis and follow it until it finishes",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.DurationVar(&watchFlags.timeout, "timeout", 5*time.Minute, "Give up after this long")
	f.BoolVar(&watchFlags.json, "json", false, "Print only the final state as JSON")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), watchFlags.timeout)
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	if !watchFlags.json {
		p := &progress{w: out}
		unsubscribe := a.Session.Subscribe(p.observe)
		defer unsubscribe()
		out = p
	}

	runID, err := a.Session.StartRun(ctx)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	st, err := a.Session.Wait(ctx, runID)
	if err != nil {
		return fmt.Errorf("wait for run %s: %w", runID, err)
	}

	if watchFlags.json {
		if err := writeStructured(out, formatJSON, st); err != nil {
			return err
		}
	} else {
		fmt.Fprintln(out)
		writeSummary(out, st)
	}
	if st.Status == risk.StatusFailed {
		return errors.New(st.Error)
	}
	return nil
}

// progress prints status transitions and agent completions as they are
// observed. Observers run on the session loop, so writes are serialized
// with the final summary. Each agent is printed once per run, whatever order
// a fallback snapshot lists it in.
type progress struct {
	mu      sync.Mutex
	w       io.Writer
	runID   string
	status  risk.Status
	printed map[risk.AgentKey]bool
}

func (p *progress) observe(st *risk.AnalysisState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st.Status == risk.StatusIdle {
		return
	}
	if st.RunID != p.runID || p.printed == nil {
		p.runID = st.RunID
		p.status = ""
		p.printed = make(map[risk.AgentKey]bool)
	}
	if st.Status != p.status {
		p.status = st.Status
		fmt.Fprintf(p.w, "[%s] run %s\n", st.Status, st.RunID)
	}
	for _, k := range st.AgentOrder {
		if p.printed[k] {
			continue
		}
		p.printed[k] = true
		fmt.Fprintf(p.w, "  %s\n", formatAgent(k, st.AgentResults[k]))
	}
}

func (p *progress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w.Write(b)
}
