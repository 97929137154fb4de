package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

func newCollector() *collector {
	return &collector{signal: make(chan struct{}, 64)}
}

func (c *collector) sink(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *collector) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func (c *collector) kinds() []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Kind, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Kind())
	}
	return out
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func scriptedServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analysis"
}

func TestWebSocketChannelDeliversInOrderAndDropsMalformed(t *testing.T) {
	srv := scriptedServer(t, func(conn *websocket.Conn) {
		for _, msg := range []string{
			`{"event":"connected"}`,
			`garbage`,
			`{"event":"agent_start","agent":"dependency_agent"}`,
			`{"event":"agent_complete","agent":"dependency_agent","data":{"risk_contribution":0.82}}`,
			`{"event":"risk_score_ready","data":{"risk_score":78.8,"risk_level":"CRITICAL"}}`,
			`{"event":"complete"}`,
			`{"event":"connected"}`,
		} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
		}
		time.Sleep(100 * time.Millisecond)
	})

	c := newCollector()
	ch := NewWebSocketDialer(wsURL(srv), time.Second).Open(context.Background(), c.sink)
	defer ch.Close()

	c.waitFor(t, 5)
	<-ch.(*wsChannel).Done()

	assert.Equal(t, []Kind{KindConnected, KindAgentStart, KindAgentComplete, KindRiskScoreReady, KindComplete}, c.kinds())
}

func TestWebSocketChannelReportsAbruptClose(t *testing.T) {
	srv := scriptedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"connected"}`))
	})

	c := newCollector()
	ch := NewWebSocketDialer(wsURL(srv), time.Second).Open(context.Background(), c.sink)
	defer ch.Close()

	events := c.waitFor(t, 2)
	require.Equal(t, KindError, events[1].Kind())
}

func TestWebSocketChannelReportsDialFailure(t *testing.T) {
	c := newCollector()
	ch := NewWebSocketDialer("ws://127.0.0.1:1/ws/analysis", time.Second).Open(context.Background(), c.sink)
	defer ch.Close()

	events := c.waitFor(t, 1)
	se, ok := events[0].(StreamError)
	require.True(t, ok)
	assert.Contains(t, se.Message, "connect")
}

func TestWebSocketChannelCloseStopsEvents(t *testing.T) {
	release := make(chan struct{})
	srv := scriptedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"connected"}`))
		<-release
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"complete"}`))
	})
	defer close(release)

	c := newCollector()
	ch := NewWebSocketDialer(wsURL(srv), time.Second).Open(context.Background(), c.sink)
	c.waitFor(t, 1)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())

	select {
	case <-ch.(*wsChannel).Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("reader did not exit after Close")
	}
	assert.Equal(t, []Kind{KindConnected}, c.kinds())
}

func TestWebSocketChannelIdleTimeout(t *testing.T) {
	srv := scriptedServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"connected"}`))
		time.Sleep(500 * time.Millisecond)
	})

	c := newCollector()
	d := NewWebSocketDialer(wsURL(srv), 100*time.Millisecond)
	d.Dialer = &websocket.Dialer{HandshakeTimeout: time.Second}
	ch := d.Open(context.Background(), c.sink)
	defer ch.Close()

	events := c.waitFor(t, 2)
	assert.Equal(t, KindError, events[1].Kind())
}
