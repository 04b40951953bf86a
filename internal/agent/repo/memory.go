package repo

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/concertbot/server/internal/agent/model"
	errx "github.com/concertbot/server/internal/core/error"
)

// MemorySessionRepository is used when no Redis URL is configured.
// Sessions live until Delete; IdleSince lets a sweeper expire them.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	session model.Session
	touched time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]memorySession), now: time.Now}
}

func (r *MemorySessionRepository) Get(_ context.Context, sessionID string) (*model.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, errx.ErrSessionNotFound
	}
	s := e.session
	return &s, nil
}

func (r *MemorySessionRepository) Save(_ context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = memorySession{session: *session, touched: r.now()}
	return nil
}

func (r *MemorySessionRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

// IdleSince lists sessions not saved after cutoff.
func (r *MemorySessionRepository) IdleSince(cutoff time.Time) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, e := range r.sessions {
		if e.touched.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// MemoryConversationRepository keeps at most limit messages per session.
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	limit    int
	messages map[string][]*schema.Message
}

func NewMemoryConversationRepository(limit int) *MemoryConversationRepository {
	return &MemoryConversationRepository{limit: limit, messages: make(map[string][]*schema.Message)}
}

func (r *MemoryConversationRepository) AddMessage(_ context.Context, sessionID string, message *schema.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := append(r.messages[sessionID], message)
	if r.limit > 0 && len(msgs) > r.limit {
		msgs = append([]*schema.Message(nil), msgs[len(msgs)-r.limit:]...)
	}
	r.messages[sessionID] = msgs
	return nil
}

func (r *MemoryConversationRepository) LoadHistory(_ context.Context, sessionID string) (*model.ConversationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msgs := make([]*schema.Message, len(r.messages[sessionID]))
	copy(msgs, r.messages[sessionID])
	return &model.ConversationHistory{SessionID: sessionID, Messages: msgs}, nil
}

func (r *MemoryConversationRepository) ClearHistory(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, sessionID)
	return nil
}

func (r *MemoryConversationRepository) GetMessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages[sessionID]), nil
}

var (
	_ model.SessionRepository      = (*MemorySessionRepository)(nil)
	_ model.ConversationRepository = (*MemoryConversationRepository)(nil)
)
