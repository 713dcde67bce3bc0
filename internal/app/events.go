package app

import (
	"log/slog"
	"sync"

	"github.com/ramadascd1-rgb/FUNtastic/internal/buddy"
)

// subscriberBuffer is how many snapshots a slow stream may fall behind
// before updates to it are dropped.
const subscriberBuffer = 16

// hub fans controller snapshots out to streaming subscribers.
type hub struct {
	mu     sync.Mutex
	subs   map[chan buddy.Snapshot]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan buddy.Snapshot]struct{})}
}

// subscribe returns a channel of future snapshots and a function that
// releases it. The channel is closed by unsubscribe or by close.
func (h *hub) subscribe() (<-chan buddy.Snapshot, func()) {
	ch := make(chan buddy.Snapshot, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// publish never blocks.
func (h *hub) publish(s buddy.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- s:
		default:
			slog.Debug("buddy events: subscriber lagging, snapshot dropped", "state", s.State)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
