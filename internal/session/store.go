package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"meridian/internal/feed"
	"meridian/internal/logging"
	"meridian/internal/observer"
	"meridian/internal/risk"
	"meridian/internal/transport"
)

var (
	// ErrClosed is returned by operations on a store after Close.
	ErrClosed = errors.New("session closed")
	// ErrSuperseded is returned by Wait when a newer run replaced the one
	// being waited on before it finished.
	ErrSuperseded = errors.New("run superseded by a newer run")
)

const defaultFallbackTimeout = 30 * time.Second

// Fetcher returns the final analysis snapshot over request/response. The
// store uses it only when the stream fails.
type Fetcher interface {
	Analysis(ctx context.Context) (risk.Snapshot, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) (risk.Snapshot, error)

func (f FetcherFunc) Analysis(ctx context.Context) (risk.Snapshot, error) { return f(ctx) }

type Options struct {
	Dialer  transport.Dialer
	Fetcher Fetcher
	// FeedCapacity bounds the live feed; zero means feed.DefaultCapacity.
	FeedCapacity    int
	FallbackTimeout time.Duration
	Logger          *slog.Logger
	Now             func() time.Time
	NewRunID        func() string
}

// Store owns the analysis state of one session. Every transition runs on a
// single loop goroutine, one event at a time; readers get immutable
// snapshots and observers are notified synchronously on the loop after each
// transition.
//
// Observer callbacks must not call StartRun or Close synchronously.
type Store struct {
	dialer          transport.Dialer
	fetcher         Fetcher
	fallbackTimeout time.Duration
	log             *slog.Logger
	now             func() time.Time
	newRunID        func() string

	feed      *feed.Ring
	observers *observer.Registry[*risk.AnalysisState]
	current   atomic.Pointer[risk.AnalysisState]
	seq       uint64

	inbox   *mailbox
	machine *machine
	ctx     context.Context
	cancel  context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logging.New("session")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	timeout := opts.FallbackTimeout
	if timeout <= 0 {
		timeout = defaultFallbackTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Store{
		dialer:          opts.Dialer,
		fetcher:         opts.Fetcher,
		fallbackTimeout: timeout,
		log:             log,
		now:             now,
		newRunID:        newRunID,
		feed:            feed.New(opts.FeedCapacity),
		observers:       observer.New[*risk.AnalysisState](),
		inbox:           newMailbox(),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	idle := risk.NewIdleState()
	s.current.Store(idle)
	s.machine = &machine{s: s, state: idle}
	go s.loop()
	return s
}

func (s *Store) loop() {
	defer close(s.done)
	for {
		<-s.inbox.ready
		for _, fn := range s.inbox.drain() {
			fn()
			if s.machine.stopped {
				return
			}
		}
	}
}

// StartRun begins a new analysis run, closing any channel still open for a
// previous run first. It returns once the run is Connecting.
func (s *Store) StartRun(ctx context.Context) (string, error) {
	reply := make(chan string, 1)
	if !s.inbox.post(func() { reply <- s.machine.startRun() }) {
		return "", ErrClosed
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
}

// Subscribe registers fn for every subsequent transition and returns the
// function that removes it.
func (s *Store) Subscribe(fn func(*risk.AnalysisState)) func() {
	return s.observers.Subscribe(fn)
}

// SubscribeWithCurrent registers fn and hands it the current state first.
// Both happen on the loop, so fn sees the current state and then every later
// transition, in order. It must not be called from an observer callback.
func (s *Store) SubscribeWithCurrent(fn func(*risk.AnalysisState)) func() {
	var unsubscribe func()
	registered := make(chan struct{})
	posted := s.inbox.post(func() {
		unsubscribe = s.observers.Subscribe(fn)
		close(registered)
		fn(s.current.Load())
	})
	if posted {
		select {
		case <-registered:
			return unsubscribe
		case <-s.done:
		}
		select {
		case <-registered:
			return unsubscribe
		default:
		}
	}
	// Closed: no transition follows.
	fn(s.CurrentState())
	return func() {}
}

// CurrentState returns the latest state. The value is shared with every other
// reader and must not be modified.
func (s *Store) CurrentState() *risk.AnalysisState {
	return s.current.Load()
}

// Feed returns the live feed, newest first.
func (s *Store) Feed() []risk.FeedEntry {
	return s.feed.Entries()
}

// Wait blocks until run runID reaches Ready or Failed and returns that state.
func (s *Store) Wait(ctx context.Context, runID string) (*risk.AnalysisState, error) {
	type outcome struct {
		state *risk.AnalysisState
		err   error
	}
	result := make(chan outcome, 1)
	check := func(st *risk.AnalysisState) bool {
		var o outcome
		switch {
		case st.RunID != runID && st.Status != risk.StatusIdle:
			o.err = ErrSuperseded
		case st.RunID == runID && st.Status.Terminal():
			o.state = st
		default:
			return false
		}
		select {
		case result <- o:
		default:
		}
		return true
	}

	unsubscribe := s.Subscribe(func(st *risk.AnalysisState) { check(st) })
	defer unsubscribe()
	check(s.CurrentState())

	select {
	case o := <-result:
		return o.state, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

// Close ends the session: the open channel is closed, a pending fallback is
// cancelled and the loop stops. It is idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if !s.inbox.post(s.machine.shutdown) {
			return
		}
		<-s.done
		s.cancel()
	})
	return nil
}

// Done is closed once the store has shut down.
func (s *Store) Done() <-chan struct{} { return s.done }

// publish stamps st with the next sequence number and shares it. Only the
// loop calls it.
func (s *Store) publish(st *risk.AnalysisState) {
	s.seq++
	st.Seq = s.seq
	s.current.Store(st)
	s.observers.Notify(st)
}
