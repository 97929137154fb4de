package dashboard

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meridian/internal/risk"
)

const (
	stateWSWriteWait = 10 * time.Second
	stateWSPongWait  = 60 * time.Second
	stateWSPingEvery = (stateWSPongWait * 9) / 10
	stateWSBuffer    = 64
)

var stateWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type stateWSOutbound struct {
	Type  string              `json:"type"`
	State *risk.AnalysisState `json:"state"`
	Feed  []risk.FeedEntry    `json:"feed"`
}

// stateWS streams the current state and then every transition. States older
// than the last one written are dropped. A client that cannot keep up is
// disconnected instead of silently missing states.
func (h *Handler) stateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := stateWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(stateWSPongWait)); err != nil {
		h.log.Debug("state ws set read deadline failed", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(stateWSPongWait))
	})

	writeCh := make(chan stateWSOutbound, stateWSBuffer)
	var slowOnce sync.Once
	slow := make(chan struct{})
	push := func(st *risk.AnalysisState) {
		select {
		case writeCh <- stateWSOutbound{Type: "state", State: st, Feed: h.session.Feed()}:
		default:
			slowOnce.Do(func() { close(slow) })
		}
	}

	unsubscribe := h.session.SubscribeWithCurrent(push)
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		defer conn.Close()
		h.writeStates(ctx, conn, writeCh, slow)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			cancel()
			<-writerDone
			return
		}
	}
}

func (h *Handler) writeStates(ctx context.Context, conn *websocket.Conn, writeCh <-chan stateWSOutbound, slow <-chan struct{}) {
	ticker := time.NewTicker(stateWSPingEvery)
	defer ticker.Stop()

	var last *risk.AnalysisState
	for {
		select {
		case <-ctx.Done():
			return
		case <-slow:
			h.log.Warn("disconnecting slow state subscriber")
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "slow consumer")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(stateWSWriteWait))
			return
		case out := <-writeCh:
			if out.State == nil || (last != nil && out.State.Seq <= last.Seq) {
				continue
			}
			last = out.State
			if err := conn.SetWriteDeadline(time.Now().Add(stateWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(out); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(stateWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
