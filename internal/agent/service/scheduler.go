package service

import (
	"sync"
	"time"
)

// Scheduler owns the delayed-reply timers of every session.
type Scheduler struct {
	mu     sync.Mutex
	seq    uint64
	timers map[string]map[uint64]*time.Timer
	closed bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]map[uint64]*time.Timer)}
}

// After runs fn once d has elapsed unless the session's timers are
// cancelled first. It is a no-op after Close.
func (s *Scheduler) After(sessionID string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.seq++
	id := s.seq
	timers, ok := s.timers[sessionID]
	if !ok {
		timers = make(map[uint64]*time.Timer)
		s.timers[sessionID] = timers
	}
	timers[id] = time.AfterFunc(d, func() {
		if !s.release(sessionID, id) {
			return
		}
		fn()
	})
}

// release drops a fired timer; false means it was cancelled meanwhile.
func (s *Scheduler) release(sessionID string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers, ok := s.timers[sessionID]
	if !ok {
		return false
	}
	if _, ok := timers[id]; !ok {
		return false
	}
	delete(timers, id)
	if len(timers) == 0 {
		delete(s.timers, sessionID)
	}
	return true
}

// Cancel stops every pending timer of the session and returns how many
// were stopped.
func (s *Scheduler) Cancel(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	timers := s.timers[sessionID]
	for _, t := range timers {
		t.Stop()
	}
	delete(s.timers, sessionID)
	return len(timers)
}

// Pending returns the number of timers waiting for the session.
func (s *Scheduler) Pending(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers[sessionID])
}

// Close stops all timers and rejects new ones.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, timers := range s.timers {
		for _, t := range timers {
			t.Stop()
		}
	}
	s.timers = make(map[string]map[uint64]*time.Timer)
	s.closed = true
}
