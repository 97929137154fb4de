package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meridian/internal/logging"
)

// Sink receives events from a Channel. It must not block: the channel holds
// its close lock while delivering so that nothing is emitted after Close.
type Sink func(Event)

// Channel is one streaming connection to the analysis event source.
type Channel interface {
	// Close releases the connection. It is idempotent; once it returns the
	// sink receives no further events.
	Close() error
}

// Dialer opens channels. Open returns immediately; connection failures are
// reported to sink as StreamError.
type Dialer interface {
	Open(ctx context.Context, sink Sink) Channel
}

const (
	defaultIdleTimeout = 60 * time.Second
	controlWriteWait   = 10 * time.Second
)

// WebSocketDialer opens channels over a websocket.
type WebSocketDialer struct {
	URL         string
	Header      http.Header
	IdleTimeout time.Duration
	Dialer      *websocket.Dialer
	Logger      *slog.Logger
}

func NewWebSocketDialer(url string, idleTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{
		URL:         strings.TrimSpace(url),
		IdleTimeout: idleTimeout,
	}
}

func (d *WebSocketDialer) Open(ctx context.Context, sink Sink) Channel {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	log := d.Logger
	if log == nil {
		log = logging.New("transport")
	}
	ch := &wsChannel{
		sink:   sink,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    log,
	}
	go ch.run(ctx, d)
	return ch
}

type wsChannel struct {
	mu     sync.Mutex
	closed bool
	conn   *websocket.Conn

	sink   Sink
	cancel context.CancelFunc
	done   chan struct{}
	log    *slog.Logger
}

func (c *wsChannel) run(ctx context.Context, d *WebSocketDialer) {
	defer close(c.done)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	idle := d.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		c.emit(StreamError{Message: "connect: " + err.Error()})
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
		c.emit(StreamError{Message: "set read deadline: " + err.Error()})
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.ping(pingCtx, conn, (idle*9)/10)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.emit(StreamError{Message: describeReadError(err)})
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))

		ev, err := Decode(data)
		if err != nil {
			c.log.Debug("dropping stream message", "error", err)
			continue
		}
		if !c.emit(ev) {
			return
		}
		if ev.Terminal() {
			return
		}
	}
}

func (c *wsChannel) ping(ctx context.Context, conn *websocket.Conn, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(controlWriteWait)); err != nil {
				return
			}
		}
	}
}

// emit delivers ev unless the channel was closed. It reports whether the
// event was delivered.
func (c *wsChannel) emit(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sink == nil {
		return false
	}
	c.sink(ev)
	return true
}

func (c *wsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
		_ = conn.Close()
	}
	return nil
}

// Done is closed once the channel's reader has exited.
func (c *wsChannel) Done() <-chan struct{} { return c.done }

func describeReadError(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Sprintf("stream closed by backend (code %d)", closeErr.Code)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "stream idle timeout"
	}
	return "stream read: " + err.Error()
}
