package events

import (
	"context"
	"slices"
	"sync"

	"github.com/concertbot/server/internal/agent/model"
)

// MemoryCache is the in-process concert cache: one map per session, no
// TTL, no eviction until Forget.
type MemoryCache struct {
	mu       sync.RWMutex
	sessions map[string]map[model.QueryKey][]model.ConcertRecord
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string]map[model.QueryKey][]model.ConcertRecord)}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string, key model.QueryKey) ([]model.ConcertRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	recs, ok := c.sessions[sessionID][key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(recs), true, nil
}

func (c *MemoryCache) Put(_ context.Context, sessionID string, key model.QueryKey, records []model.ConcertRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.sessions[sessionID]
	if !ok {
		entries = make(map[model.QueryKey][]model.ConcertRecord)
		c.sessions[sessionID] = entries
	}
	if _, exists := entries[key]; exists {
		return nil
	}
	entries[key] = slices.Clone(records)
	return nil
}

func (c *MemoryCache) Forget(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

// Len returns the number of entries held for a session.
func (c *MemoryCache) Len(sessionID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions[sessionID])
}

var _ model.ConcertCache = (*MemoryCache)(nil)
