// Package live fans out leaderboard change signals to websocket subscribers.
// Signals carry only the session code; subscribers re-read the board.
package live

import (
	"context"
	"sync"
)

// Notifier announces that a session's leaderboard changed
type Notifier interface {
	Notify(ctx context.Context, sessionCode string) error
}

// Hub tracks local subscribers per session code
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]map[chan struct{}]struct{}
	hooks []func(sessionCode string)
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Subscribe registers interest in a session. The returned channel receives a
// value after every change; bursts collapse into a single pending signal.
// Call the cancel func to unsubscribe.
func (h *Hub) Subscribe(sessionCode string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	set, ok := h.subs[sessionCode]
	if !ok {
		set = make(map[chan struct{}]struct{})
		h.subs[sessionCode] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[sessionCode], ch)
			if len(h.subs[sessionCode]) == 0 {
				delete(h.subs, sessionCode)
			}
		})
	}
}

// OnPublish registers fn to run before subscribers are signalled.
// PublishAll passes an empty session code.
func (h *Hub) OnPublish(fn func(sessionCode string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, fn)
}

// Publish signals every local subscriber of the session without blocking
func (h *Hub) Publish(sessionCode string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.hooks {
		fn(sessionCode)
	}
	for ch := range h.subs[sessionCode] {
		signal(ch)
	}
}

// PublishAll signals every subscriber of every session
func (h *Hub) PublishAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, fn := range h.hooks {
		fn("")
	}
	for _, set := range h.subs {
		for ch := range set {
			signal(ch)
		}
	}
}

// Notify implements Notifier for single-instance deployments
func (h *Hub) Notify(_ context.Context, sessionCode string) error {
	h.Publish(sessionCode)
	return nil
}

// Subscribers returns the number of local subscribers for a session
func (h *Hub) Subscribers(sessionCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionCode])
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
