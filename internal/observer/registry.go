package observer

import (
	"log/slog"
	"sync"

	"meridian/internal/logging"
)

// Registry fans a value out to every subscribed callback. Notify calls the
// callbacks synchronously, in subscription order, on the caller's goroutine.
type Registry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber[T]
	log    *slog.Logger
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

func New[T any]() *Registry[T] {
	return &Registry[T]{log: logging.New("observer")}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function is safe to call more than once and from inside a callback.
func (r *Registry[T]) Subscribe(fn func(T)) func() {
	if r == nil || fn == nil {
		return func() {}
	}
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscriber[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Notify delivers v to the subscribers registered when Notify was called.
// Subscribers removed mid-delivery still receive v; a panicking callback is
// logged and does not stop delivery to the rest.
func (r *Registry[T]) Notify(v T) {
	if r == nil {
		return
	}
	r.mu.Lock()
	subs := append([]subscriber[T](nil), r.subs...)
	r.mu.Unlock()

	for _, s := range subs {
		r.deliver(s, v)
	}
}

func (r *Registry[T]) deliver(s subscriber[T], v T) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("subscriber panicked", "subscriber", s.id, "panic", rec)
		}
	}()
	s.fn(v)
}

// Len reports the number of active subscribers.
func (r *Registry[T]) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
