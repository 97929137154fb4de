package transport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meridian/internal/risk"
)

func TestDecodeEveryKind(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind Kind
	}{
		{"connected", `{"event":"connected","message":"Meridian analysis starting"}`, KindConnected},
		{"signals", `{"event":"signals_ready","data":{"signals":{"blocked_task_ratio":{"value":0.2,"score":0.4}},"metadata":{"simulated_now":"2024-03-15T10:00:00Z"}}}`, KindSignalsReady},
		{"agent start", `{"event":"agent_start","agent":"delay_agent"}`, KindAgentStart},
		{"agent complete", `{"event":"agent_complete","agent":"dependency_agent","data":{"agent":"dependency_agent","risk_contribution":0.82,"confidence":0.9,"top_risks":["x"],"evidence":["y"],"reasoning":"z","signal_refs":["blocked_task_ratio"]}}`, KindAgentComplete},
		{"score", `{"event":"risk_score_ready","data":{"risk_score":78.8,"risk_level":"CRITICAL","agents":[]}}`, KindRiskScoreReady},
		{"complete", `{"event":"complete","message":"Analysis complete"}`, KindComplete},
		{"error", `{"event":"error","message":"boom"}`, KindError},
		{"kind alias", `{"kind":"complete"}`, KindComplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, ev.Kind())
		})
	}
}

func TestDecodeAgentComplete(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"agent_complete","agent":"dependency_agent","data":{"risk_contribution":0.82,"reasoning":"blocked"}}`))
	require.NoError(t, err)
	done, ok := ev.(AgentCompleted)
	require.True(t, ok)
	assert.Equal(t, risk.AgentDependency, done.Agent)
	assert.Equal(t, 0.82, done.Result.RiskContribution)
	assert.Equal(t, "blocked", done.Result.Reasoning)
}

func TestDecodeAgentNameFromPayload(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"agent_complete","data":{"agent":"comms_agent","risk_contribution":0.1}}`))
	require.NoError(t, err)
	assert.Equal(t, risk.AgentComms, ev.(AgentCompleted).Agent)
}

func TestDecodeErrorDefaultsMessage(t *testing.T) {
	ev, err := Decode([]byte(`{"event":"error"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, ev.(StreamError).Message)
	assert.True(t, ev.Terminal())
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"event":"bogus"}`,
		`{}`,
		`{"event":"agent_start","agent":"finance_agent"}`,
		`{"event":"agent_complete","agent":"delay_agent"}`,
		`{"event":"risk_score_ready","data":{"risk_score":140}}`,
		`{"event":"signals_ready","data":"nope"}`,
	} {
		_, err := Decode([]byte(raw))
		assert.True(t, errors.Is(err, ErrMalformed), "raw %s: err = %v", raw, err)
	}
}

type recordingHandler struct{ calls []string }

func (h *recordingHandler) OnConnected(Connected)           { h.calls = append(h.calls, "connected") }
func (h *recordingHandler) OnSignalsReady(SignalsReady)     { h.calls = append(h.calls, "signals") }
func (h *recordingHandler) OnAgentStarted(AgentStarted)     { h.calls = append(h.calls, "start") }
func (h *recordingHandler) OnAgentCompleted(AgentCompleted) { h.calls = append(h.calls, "done") }
func (h *recordingHandler) OnScoreReady(ScoreReady)         { h.calls = append(h.calls, "score") }
func (h *recordingHandler) OnStreamComplete(StreamComplete) { h.calls = append(h.calls, "complete") }
func (h *recordingHandler) OnStreamError(StreamError)       { h.calls = append(h.calls, "error") }

func TestDispatchRoutesToHandler(t *testing.T) {
	h := &recordingHandler{}
	for _, ev := range []Event{
		Connected{}, SignalsReady{}, AgentStarted{}, AgentCompleted{},
		ScoreReady{}, StreamComplete{}, StreamError{},
	} {
		ev.Dispatch(h)
	}
	assert.Equal(t, []string{"connected", "signals", "start", "done", "score", "complete", "error"}, h.calls)
}
