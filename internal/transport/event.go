package transport

import "meridian/internal/risk"

// Kind is the wire discriminator of a stream message.
type Kind string

const (
	KindConnected      Kind = "connected"
	KindSignalsReady   Kind = "signals_ready"
	KindAgentStart     Kind = "agent_start"
	KindAgentComplete  Kind = "agent_complete"
	KindRiskScoreReady Kind = "risk_score_ready"
	KindComplete       Kind = "complete"
	KindError          Kind = "error"
)

// Event is the closed set of messages a Channel emits. Consumers handle it
// through Dispatch so that adding an event forces every Handler to change.
type Event interface {
	Kind() Kind
	Dispatch(h Handler)
	// Terminal reports whether no further events follow on the channel.
	Terminal() bool
}

// Handler receives one callback per event type.
type Handler interface {
	OnConnected(Connected)
	OnSignalsReady(SignalsReady)
	OnAgentStarted(AgentStarted)
	OnAgentCompleted(AgentCompleted)
	OnScoreReady(ScoreReady)
	OnStreamComplete(StreamComplete)
	OnStreamError(StreamError)
}

type Connected struct {
	Message string
}

type SignalsReady struct {
	Signals risk.Signals
}

type AgentStarted struct {
	Agent risk.AgentKey
}

type AgentCompleted struct {
	Agent  risk.AgentKey
	Result risk.AgentResult
}

// ScoreReady carries the composite score, classification, agent results,
// dominant agent, interaction penalty and timestamp in one snapshot.
type ScoreReady struct {
	Snapshot risk.Snapshot
}

type StreamComplete struct {
	Message string
}

// StreamError covers backend-reported errors and transport failures alike.
type StreamError struct {
	Message string
}

func (Connected) Kind() Kind      { return KindConnected }
func (SignalsReady) Kind() Kind   { return KindSignalsReady }
func (AgentStarted) Kind() Kind   { return KindAgentStart }
func (AgentCompleted) Kind() Kind { return KindAgentComplete }
func (ScoreReady) Kind() Kind     { return KindRiskScoreReady }
func (StreamComplete) Kind() Kind { return KindComplete }
func (StreamError) Kind() Kind    { return KindError }

func (e Connected) Dispatch(h Handler)      { h.OnConnected(e) }
func (e SignalsReady) Dispatch(h Handler)   { h.OnSignalsReady(e) }
func (e AgentStarted) Dispatch(h Handler)   { h.OnAgentStarted(e) }
func (e AgentCompleted) Dispatch(h Handler) { h.OnAgentCompleted(e) }
func (e ScoreReady) Dispatch(h Handler)     { h.OnScoreReady(e) }
func (e StreamComplete) Dispatch(h Handler) { h.OnStreamComplete(e) }
func (e StreamError) Dispatch(h Handler)    { h.OnStreamError(e) }

func (Connected) Terminal() bool      { return false }
func (SignalsReady) Terminal() bool   { return false }
func (AgentStarted) Terminal() bool   { return false }
func (AgentCompleted) Terminal() bool { return false }
func (ScoreReady) Terminal() bool     { return false }
func (StreamComplete) Terminal() bool { return true }
func (StreamError) Terminal() bool    { return true }
