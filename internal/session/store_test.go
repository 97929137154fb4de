package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/risk"
	"meridian/internal/transport"
)

type fakeChannel struct {
	mu     sync.Mutex
	sink   transport.Sink
	closed bool
}

// emit behaves like a real channel: nothing is delivered after Close.
func (c *fakeChannel) emit(ev transport.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.sink(ev)
	}
}

// leak delivers ev even after Close, standing in for a misbehaving channel.
func (c *fakeChannel) leak(ev transport.Event) { c.sink(ev) }

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu         sync.Mutex
	channels   []*fakeChannel
	violations int
}

func (d *fakeDialer) Open(_ context.Context, sink transport.Sink) transport.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.channels {
		if !ch.isClosed() {
			d.violations++
		}
	}
	ch := &fakeChannel{sink: sink}
	d.channels = append(d.channels, ch)
	return ch
}

func (d *fakeDialer) last() *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[len(d.channels)-1]
}

func (d *fakeDialer) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.channels)
}

type recorder struct {
	mu     sync.Mutex
	states []*risk.AnalysisState
}

func (r *recorder) record(st *risk.AnalysisState) {
	r.mu.Lock()
	r.states = append(r.states, st)
	r.mu.Unlock()
}

func (r *recorder) statuses() []risk.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]risk.Status, 0, len(r.states))
	for _, st := range r.states {
		out = append(out, st.Status)
	}
	return out
}

func newTestStore(t *testing.T, d transport.Dialer, f Fetcher) *Store {
	t.Helper()
	seq := 0
	s := New(Options{
		Dialer:  d,
		Fetcher: f,
		Now:     func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) },
		NewRunID: func() string {
			seq++
			return fmt.Sprintf("run-%d", seq)
		},
	})
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// flush waits until everything posted to the loop so far has been applied.
func flush(t *testing.T, s *Store) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, s.inbox.post(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("store loop did not drain")
	}
}

func waitRun(t *testing.T, s *Store, runID string) *risk.AnalysisState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := s.Wait(ctx, runID)
	require.NoError(t, err)
	return st
}

func fullSnapshot(score float64) risk.Snapshot {
	snap := risk.Snapshot{
		RiskScore:    score,
		RiskLevel:    string(risk.ClassifyScore(score)),
		DominantRisk: "delay",
		Timestamp:    "2024-03-15T10:00:00Z",
	}
	for i, k := range risk.AgentKeys {
		snap.Agents = append(snap.Agents, risk.AgentReport{
			Agent:       string(k) + "_agent",
			AgentResult: risk.AgentResult{RiskContribution: 0.1 * float64(i+1)},
		})
	}
	return snap
}

func staticFetcher(snap risk.Snapshot, err error) FetcherFunc {
	return func(context.Context) (risk.Snapshot, error) { return snap, err }
}

func TestScenarioStreamToReady(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, risk.StatusConnecting, s.CurrentState().Status)

	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.AgentCompleted{
		Agent:  risk.AgentDependency,
		Result: risk.AgentResult{RiskContribution: 0.82, Reasoning: "critical path blocked"},
	})
	ch.emit(transport.ScoreReady{Snapshot: risk.Snapshot{
		RiskScore:          78.8,
		RiskLevel:          "CRITICAL",
		InteractionPenalty: 0.05,
		Timestamp:          "2024-03-15T10:00:00Z",
	}})
	ch.emit(transport.StreamComplete{})

	st := waitRun(t, s, runID)
	assert.Equal(t, risk.StatusReady, st.Status)
	assert.Equal(t, risk.SourceStream, st.Source)
	score, ok := st.CompositeScore()
	require.True(t, ok)
	assert.Equal(t, 78.8, score)
	lvl, _ := st.RiskLevel()
	assert.Equal(t, risk.LevelCritical, lvl)
	assert.Equal(t, 0.82, st.AgentResults[risk.AgentDependency].RiskContribution)
	assert.Equal(t, risk.AgentDependency, st.DominantRisk)
	assert.Equal(t, 0.05, st.InteractionPenalty)
	assert.True(t, ch.isClosed())

	entries := s.Feed()
	require.Len(t, entries, 1)
	assert.Equal(t, "DEPENDENCY", entries[0].AgentLabel)
	assert.Equal(t, "#ef4444", entries[0].Color)
}

func TestScenarioFallbackAfterStreamError(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, staticFetcher(fullSnapshot(65), nil))

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.StreamError{Message: "socket closed"})

	st := waitRun(t, s, runID)
	assert.Equal(t, risk.StatusReady, st.Status)
	assert.Equal(t, risk.SourceFallback, st.Source)
	score, _ := st.CompositeScore()
	assert.Equal(t, 65.0, score)
	lvl, _ := st.RiskLevel()
	assert.Equal(t, risk.LevelHigh, lvl)
	assert.Equal(t, runID, st.RunID)
	assert.True(t, ch.isClosed())
}

func TestScenarioFallbackFailure(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, staticFetcher(risk.Snapshot{}, errors.New("dial tcp: connection refused")))

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	d.last().emit(transport.StreamError{Message: "connect: refused"})

	st := waitRun(t, s, runID)
	assert.Equal(t, risk.StatusFailed, st.Status)
	assert.Equal(t, "backend unavailable: dial tcp: connection refused", st.Error)
	_, ok := st.CompositeScore()
	assert.False(t, ok)
	_, ok = st.RiskLevel()
	assert.False(t, ok)
}

func TestFallbackReplacesPartialAgents(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, staticFetcher(fullSnapshot(55), nil))

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.AgentCompleted{Agent: risk.AgentDependency, Result: risk.AgentResult{RiskContribution: 0.99}})
	ch.emit(transport.AgentCompleted{Agent: risk.AgentWorkload, Result: risk.AgentResult{RiskContribution: 0.98}})
	ch.emit(transport.StreamError{Message: "socket closed"})

	st := waitRun(t, s, runID)
	require.Len(t, st.AgentResults, 5)
	assert.Equal(t, 0.1, st.AgentResults[risk.AgentDependency].RiskContribution)
	assert.Equal(t, risk.AgentComms, st.DominantRisk)
}

func TestStreamErrorAfterScoreStillFetches(t *testing.T) {
	d := &fakeDialer{}
	var calls int
	var mu sync.Mutex
	s := newTestStore(t, d, FetcherFunc(func(context.Context) (risk.Snapshot, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return fullSnapshot(40), nil
	}))

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.ScoreReady{Snapshot: risk.Snapshot{RiskScore: 90}})
	ch.emit(transport.StreamError{Message: "reset"})

	st := waitRun(t, s, runID)
	score, _ := st.CompositeScore()
	assert.Equal(t, 40.0, score)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestSingleActiveChannel(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	for i := 0; i < 5; i++ {
		_, err := s.StartRun(context.Background())
		require.NoError(t, err)
		d.last().emit(transport.Connected{})
	}
	flush(t, s)

	assert.Equal(t, 5, d.opened())
	assert.Zero(t, d.violations)
	for _, ch := range d.channels[:4] {
		assert.True(t, ch.isClosed())
	}
	assert.False(t, d.last().isClosed())
}

func TestStaleChannelEventsAreDropped(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	_, err := s.StartRun(context.Background())
	require.NoError(t, err)
	old := d.last()
	old.emit(transport.Connected{})

	second, err := s.StartRun(context.Background())
	require.NoError(t, err)
	old.leak(transport.AgentCompleted{Agent: risk.AgentScope, Result: risk.AgentResult{RiskContribution: 0.5}})
	old.leak(transport.Connected{})
	flush(t, s)

	st := s.CurrentState()
	assert.Equal(t, second, st.RunID)
	assert.Equal(t, risk.StatusConnecting, st.Status)
	assert.Empty(t, st.AgentResults)
	assert.Empty(t, s.Feed())
}

func TestTerminalStateIsStable(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.ScoreReady{Snapshot: risk.Snapshot{RiskScore: 30}})
	ch.emit(transport.StreamComplete{})
	ready := waitRun(t, s, runID)

	ch.leak(transport.AgentCompleted{Agent: risk.AgentDelay, Result: risk.AgentResult{RiskContribution: 1}})
	ch.leak(transport.StreamError{Message: "late"})
	flush(t, s)

	assert.Same(t, ready, s.CurrentState())
	assert.Equal(t, 1, d.opened())
}

func TestFanOutCompleteness(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, staticFetcher(fullSnapshot(20), nil))

	recs := []*recorder{{}, {}, {}}
	for _, r := range recs {
		s.Subscribe(r.record)
	}

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.AgentStarted{Agent: risk.AgentDelay})
	ch.emit(transport.StreamError{Message: "socket closed"})
	waitRun(t, s, runID)

	want := []risk.Status{risk.StatusConnecting, risk.StatusStreaming, risk.StatusReady}
	for _, r := range recs {
		assert.Equal(t, want, r.statuses())
	}
}

func TestScoreAndLevelAreAtomic(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	var bad int
	s.Subscribe(func(st *risk.AnalysisState) {
		score, hasScore := st.CompositeScore()
		lvl, hasLevel := st.RiskLevel()
		if hasScore != hasLevel || (hasScore && risk.ClassifyScore(score) != lvl) {
			bad++
		}
	})

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.ScoreReady{Snapshot: risk.Snapshot{RiskScore: 60, RiskLevel: "CRITICAL"}})
	ch.emit(transport.StreamComplete{})
	st := waitRun(t, s, runID)

	assert.Zero(t, bad)
	lvl, _ := st.RiskLevel()
	assert.Equal(t, risk.LevelHigh, lvl)
}

func TestAgentCompletionReplacesByKey(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	_, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})
	ch.emit(transport.AgentCompleted{Agent: risk.AgentScope, Result: risk.AgentResult{RiskContribution: 0.2}})
	ch.emit(transport.AgentCompleted{Agent: risk.AgentScope, Result: risk.AgentResult{RiskContribution: 0.7}})
	flush(t, s)

	st := s.CurrentState()
	assert.Len(t, st.AgentResults, 1)
	assert.Equal(t, 0.7, st.AgentResults[risk.AgentScope].RiskContribution)
	assert.Len(t, s.Feed(), 2)
}

func TestNewRunClearsFeed(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	_, err := s.StartRun(context.Background())
	require.NoError(t, err)
	d.last().emit(transport.Connected{})
	d.last().emit(transport.AgentCompleted{Agent: risk.AgentComms, Result: risk.AgentResult{RiskContribution: 0.3}})
	flush(t, s)
	require.Len(t, s.Feed(), 1)

	_, err = s.StartRun(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Feed())
	assert.Empty(t, s.CurrentState().AgentResults)
}

func TestStartRunCancelsPendingFallback(t *testing.T) {
	d := &fakeDialer{}
	release := make(chan struct{})
	s := newTestStore(t, d, FetcherFunc(func(ctx context.Context) (risk.Snapshot, error) {
		select {
		case <-release:
			return fullSnapshot(99), nil
		case <-ctx.Done():
			return risk.Snapshot{}, ctx.Err()
		}
	}))

	first, err := s.StartRun(context.Background())
	require.NoError(t, err)
	d.last().emit(transport.StreamError{Message: "boom"})
	flush(t, s)

	second, err := s.StartRun(context.Background())
	require.NoError(t, err)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = s.Wait(ctx, first)
	assert.ErrorIs(t, err, ErrSuperseded)

	flush(t, s)
	st := s.CurrentState()
	assert.Equal(t, second, st.RunID)
	assert.Equal(t, risk.StatusConnecting, st.Status)
}

func TestStreamCompleteWithoutScoreFallsBack(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, staticFetcher(fullSnapshot(10), nil))

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	d.last().emit(transport.Connected{})
	d.last().emit(transport.StreamComplete{})

	st := waitRun(t, s, runID)
	assert.Equal(t, risk.SourceFallback, st.Source)
	lvl, _ := st.RiskLevel()
	assert.Equal(t, risk.LevelLow, lvl)
}

func TestCloseStopsStore(t *testing.T) {
	d := &fakeDialer{}
	s := New(Options{Dialer: d})

	_, err := s.StartRun(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, d.last().isClosed())
	_, err = s.StartRun(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscribeWithCurrentSeesEveryLaterTransition(t *testing.T) {
	d := &fakeDialer{}
	s := newTestStore(t, d, nil)

	runID, err := s.StartRun(context.Background())
	require.NoError(t, err)
	ch := d.last()
	ch.emit(transport.Connected{})

	rec := &recorder{}
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < 50; i++ {
			ch.emit(transport.AgentCompleted{Agent: risk.AgentDelay, Result: risk.AgentResult{RiskContribution: 0.5}})
		}
		ch.emit(transport.ScoreReady{Snapshot: fullSnapshot(60)})
		ch.emit(transport.StreamComplete{})
	}()
	unsubscribe := s.SubscribeWithCurrent(rec.record)
	defer unsubscribe()
	<-emitted
	waitRun(t, s, runID)
	flush(t, s)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.states)
	for i := 1; i < len(rec.states); i++ {
		assert.Equal(t, rec.states[i-1].Seq+1, rec.states[i].Seq, "transition %d", i)
	}
	assert.Equal(t, risk.StatusReady, rec.states[len(rec.states)-1].Status)
	assert.Same(t, s.CurrentState(), rec.states[len(rec.states)-1])
}

func TestSubscribeWithCurrentAfterClose(t *testing.T) {
	s := New(Options{})
	require.NoError(t, s.Close())

	rec := &recorder{}
	unsubscribe := s.SubscribeWithCurrent(rec.record)
	unsubscribe()
	assert.Equal(t, []risk.Status{risk.StatusIdle}, rec.statuses())
}
