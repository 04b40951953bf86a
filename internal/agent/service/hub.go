package service

import (
	"sync"

	"github.com/concertbot/server/internal/agent/model"
	logx "github.com/concertbot/server/pkg/logger"
)

const subscriberBuffer = 16

// Hub fans delayed replies out to live subscribers (websocket, terminal).
// Replies for a session without subscribers are queued until drained.
type Hub struct {
	mu         sync.Mutex
	subs       map[string]map[chan *model.Reply]struct{}
	pending    map[string][]*model.Reply
	maxPending int
}

func NewHub(maxPending int) *Hub {
	if maxPending <= 0 {
		maxPending = 20
	}
	return &Hub{
		subs:       make(map[string]map[chan *model.Reply]struct{}),
		pending:    make(map[string][]*model.Reply),
		maxPending: maxPending,
	}
}

// Subscribe returns a channel of pushed replies. Queued replies are
// delivered first. The channel is closed by the returned func or when the
// session is forgotten.
func (h *Hub) Subscribe(sessionID string) (<-chan *model.Reply, func()) {
	ch := make(chan *model.Reply, subscriberBuffer+h.maxPending)

	h.mu.Lock()
	for _, r := range h.pending[sessionID] {
		ch <- r
	}
	delete(h.pending, sessionID)
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan *model.Reply]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.unsubscribe(sessionID, ch) })
	}
}

func (h *Hub) unsubscribe(sessionID string, ch chan *model.Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sessionID]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
}

// Notify pushes a reply to subscribers or queues it.
func (h *Hub) Notify(sessionID string, reply *model.Reply) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[sessionID]
	if len(set) == 0 {
		q := append(h.pending[sessionID], reply)
		if len(q) > h.maxPending {
			q = q[len(q)-h.maxPending:]
		}
		h.pending[sessionID] = q
		return
	}
	for ch := range set {
		select {
		case ch <- reply:
		default:
			logx.Warn().Str("session_id", sessionID).Msg("subscriber too slow, dropping reply")
		}
	}
}

// Drain returns and clears the queued replies of a session.
func (h *Hub) Drain(sessionID string) []*model.Reply {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.pending[sessionID]
	delete(h.pending, sessionID)
	if q == nil {
		return []*model.Reply{}
	}
	return q
}

// Forget closes the session's subscribers and drops its queue.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[sessionID] {
		close(ch)
	}
	delete(h.subs, sessionID)
	delete(h.pending, sessionID)
}
