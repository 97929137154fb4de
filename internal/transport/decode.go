package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meridian/internal/risk"
)

// ErrMalformed marks a stream message that cannot be turned into an Event.
var ErrMalformed = errors.New("malformed stream message")

type wireMessage struct {
	Event   string          `json:"event"`
	Kind    string          `json:"kind"`
	Agent   string          `json:"agent"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Decode parses one raw stream message.
func Decode(raw []byte) (Event, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := strings.ToLower(strings.TrimSpace(msg.Event))
	if kind == "" {
		kind = strings.ToLower(strings.TrimSpace(msg.Kind))
	}

	switch Kind(kind) {
	case KindConnected:
		return Connected{Message: msg.Message}, nil
	case KindSignalsReady:
		var sig risk.Signals
		if err := decodeData(msg.Data, &sig); err != nil {
			return nil, err
		}
		return SignalsReady{Signals: sig.Known()}, nil
	case KindAgentStart:
		agent, err := risk.ParseAgentKey(msg.Agent)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return AgentStarted{Agent: agent}, nil
	case KindAgentComplete:
		var rep risk.AgentReport
		if err := decodeData(msg.Data, &rep); err != nil {
			return nil, err
		}
		name := msg.Agent
		if strings.TrimSpace(name) == "" {
			name = rep.Agent
		}
		agent, err := risk.ParseAgentKey(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return AgentCompleted{Agent: agent, Result: rep.AgentResult}, nil
	case KindRiskScoreReady:
		var snap risk.Snapshot
		if err := decodeData(msg.Data, &snap); err != nil {
			return nil, err
		}
		if err := snap.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return ScoreReady{Snapshot: snap}, nil
	case KindComplete:
		return StreamComplete{Message: msg.Message}, nil
	case KindError:
		message := strings.TrimSpace(msg.Message)
		if message == "" {
			message = "backend reported an error"
		}
		return StreamError{Message: message}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformed, kind)
	}
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
