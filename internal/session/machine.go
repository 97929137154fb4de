package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"meridian/internal/risk"
	"meridian/internal/transport"
)

const unavailablePrefix = "backend unavailable"

var _ transport.Handler = (*machine)(nil)

// machine holds the loop-owned part of the store. Only the loop goroutine
// touches it.
type machine struct {
	s     *Store
	state *risk.AnalysisState

	// gen identifies the current run; events and fallback results carry the
	// gen they were issued under and are dropped when it no longer matches.
	gen     uint64
	channel transport.Channel

	fallbackPending bool
	cancelFallback  context.CancelFunc

	stopped bool
}

func (m *machine) startRun() string {
	m.gen++
	m.stopFallback()
	m.closeChannel()

	runID := m.s.newRunID()
	m.s.feed.Clear()
	m.s.log.Info("run started", "run_id", runID)
	m.apply(&risk.AnalysisState{
		RunID:        runID,
		Status:       risk.StatusConnecting,
		AgentResults: map[risk.AgentKey]risk.AgentResult{},
	})

	if m.s.dialer == nil {
		m.fallback("no stream configured")
		return runID
	}
	gen := m.gen
	m.channel = m.s.dialer.Open(m.s.ctx, func(ev transport.Event) {
		m.s.inbox.post(func() { m.deliver(gen, ev) })
	})
	return runID
}

func (m *machine) deliver(gen uint64, ev transport.Event) {
	switch {
	case gen != m.gen || m.channel == nil:
		m.s.log.Debug("dropping event from closed channel", "kind", ev.Kind())
		return
	case m.state.Status.Terminal(), m.fallbackPending:
		m.s.log.Debug("dropping event", "kind", ev.Kind(), "status", m.state.Status, "run_id", m.state.RunID)
		return
	}
	ev.Dispatch(m)
}

func (m *machine) OnConnected(transport.Connected) {
	if m.state.Status != risk.StatusConnecting {
		m.ignore(transport.KindConnected)
		return
	}
	next := m.state.Clone()
	next.Status = risk.StatusStreaming
	m.apply(next)
}

func (m *machine) OnSignalsReady(ev transport.SignalsReady) {
	if m.state.Status != risk.StatusStreaming {
		m.ignore(transport.KindSignalsReady)
		return
	}
	next := m.state.Clone()
	next.Signals = ev.Signals.Known()
	m.apply(next)
}

func (m *machine) OnAgentStarted(ev transport.AgentStarted) {
	m.s.log.Debug("agent started", "agent", ev.Agent, "run_id", m.state.RunID)
}

func (m *machine) OnAgentCompleted(ev transport.AgentCompleted) {
	if m.state.Status != risk.StatusStreaming {
		m.ignore(transport.KindAgentComplete)
		return
	}
	next := m.state.Clone()
	next.PutAgentResult(ev.Agent, ev.Result)
	m.s.feed.Push(risk.NewFeedEntry(ev.Agent, ev.Result, m.s.now()))
	m.apply(next)
}

func (m *machine) OnScoreReady(ev transport.ScoreReady) {
	if m.state.Status != risk.StatusStreaming {
		m.ignore(transport.KindRiskScoreReady)
		return
	}
	snap := ev.Snapshot
	if snap.LevelMismatch() {
		m.s.log.Warn("backend risk level disagrees with score",
			"run_id", m.state.RunID, "score", snap.RiskScore, "reported", snap.RiskLevel)
	}

	next := m.state.Clone()
	results, order, skipped := snap.Results()
	for _, k := range order {
		next.PutAgentResult(k, results[k])
	}
	if len(skipped) > 0 {
		m.s.log.Debug("skipping unknown agents", "agents", skipped)
	}
	score := snap.Score()
	next.Score = &score
	if scores := snap.Scores(); scores != nil {
		next.AgentScores = scores
	}
	if len(snap.Signals.Values) > 0 {
		next.Signals = snap.Signals.Known()
	}
	next.DominantRisk = risk.Dominant(next.AgentResults, snap.DominantRisk)
	next.InteractionPenalty = snap.InteractionPenalty
	next.FormulaVersion = snap.FormulaVersion
	next.Timestamp = snap.Time(m.s.now())
	next.Status = risk.StatusFinalizing
	m.apply(next)
}

func (m *machine) OnStreamComplete(transport.StreamComplete) {
	if m.state.Status != risk.StatusFinalizing {
		m.fallback("stream completed without a final score")
		return
	}
	m.closeChannel()
	next := m.state.Clone()
	next.Status = risk.StatusReady
	next.Source = risk.SourceStream
	m.s.log.Info("run ready", "run_id", next.RunID, "score", next.Score.Composite, "level", next.Score.Level)
	m.apply(next)
}

func (m *machine) OnStreamError(ev transport.StreamError) {
	m.fallback(ev.Message)
}

// fallback closes the stream and fetches the final snapshot once. The result
// returns to the loop tagged with the current gen.
func (m *machine) fallback(reason string) {
	m.closeChannel()
	m.fallbackPending = true
	runID := m.state.RunID
	m.s.log.Warn("stream failed, fetching analysis", "run_id", runID, "reason", reason)

	if m.s.fetcher == nil {
		m.fallbackDone(m.gen, risk.Snapshot{}, errors.New("no analysis endpoint configured"))
		return
	}
	ctx, cancel := context.WithTimeout(m.s.ctx, m.s.fallbackTimeout)
	m.cancelFallback = cancel
	gen := m.gen
	go func() {
		defer cancel()
		snap, err := m.s.fetcher.Analysis(ctx)
		if err == nil {
			if verr := snap.Validate(); verr != nil {
				err = fmt.Errorf("invalid analysis: %w", verr)
			}
		}
		m.s.inbox.post(func() { m.fallbackDone(gen, snap, err) })
	}()
}

func (m *machine) fallbackDone(gen uint64, snap risk.Snapshot, err error) {
	if gen != m.gen || !m.fallbackPending {
		return
	}
	m.fallbackPending = false
	m.cancelFallback = nil

	if err != nil {
		next := m.state.Clone()
		next.Status = risk.StatusFailed
		next.Score = nil
		next.Error = failureText(err)
		next.Timestamp = m.s.now().UTC()
		m.s.log.Error("run failed", "run_id", next.RunID, "error", err)
		m.apply(next)
		return
	}
	next := snap.ReadyState(m.state.RunID, risk.SourceFallback, m.s.now())
	m.s.log.Info("run ready from fallback", "run_id", next.RunID, "score", next.Score.Composite)
	m.apply(next)
}

func (m *machine) shutdown() {
	m.gen++
	m.stopFallback()
	m.closeChannel()
	m.s.inbox.close()
	m.stopped = true
}

func (m *machine) apply(next *risk.AnalysisState) {
	m.state = next
	m.s.publish(next)
}

func (m *machine) ignore(kind transport.Kind) {
	m.s.log.Debug("event not valid in state", "kind", kind, "status", m.state.Status, "run_id", m.state.RunID)
}

func (m *machine) closeChannel() {
	if m.channel == nil {
		return
	}
	if err := m.channel.Close(); err != nil {
		m.s.log.Debug("close channel", "error", err)
	}
	m.channel = nil
}

func (m *machine) stopFallback() {
	if m.cancelFallback != nil {
		m.cancelFallback()
		m.cancelFallback = nil
	}
	m.fallbackPending = false
}

func failureText(err error) string {
	msg := err.Error()
	if strings.HasPrefix(msg, unavailablePrefix) {
		return msg
	}
	return unavailablePrefix + ": " + msg
}
