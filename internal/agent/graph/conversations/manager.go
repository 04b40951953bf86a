package conversations

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/concertbot/server/internal/agent/model"
)

// Entry is one history line as exposed over the API.
type Entry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type MessagesManager struct {
	conversationRepo model.ConversationRepository
	historyLimit     int
}

func NewMessagesManager(conversationRepo model.ConversationRepository, config model.ConversationConfig) *MessagesManager {
	return &MessagesManager{
		conversationRepo: conversationRepo,
		historyLimit:     config.HistoryLimit,
	}
}

func (cm *MessagesManager) SaveUserMessage(ctx context.Context, sessionID string, text string) error {
	return cm.conversationRepo.AddMessage(ctx, sessionID, schema.UserMessage(text))
}

func (cm *MessagesManager) SaveResponse(ctx context.Context, sessionID string, content string) error {
	assistantMsg := schema.AssistantMessage(content, nil)
	return cm.conversationRepo.AddMessage(ctx, sessionID, assistantMsg)
}

// History returns the most recent messages, oldest first.
func (cm *MessagesManager) History(ctx context.Context, sessionID string) ([]Entry, error) {
	history, err := cm.conversationRepo.LoadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	recent := trimTail(history.Messages, cm.historyLimit)
	out := make([]Entry, 0, len(recent))
	for _, msg := range recent {
		if msg == nil || msg.Content == "" {
			continue
		}
		out = append(out, Entry{Role: string(msg.Role), Text: msg.Content})
	}
	return out, nil
}

// Transcript renders the history as "role: text" lines.
func (cm *MessagesManager) Transcript(ctx context.Context, sessionID string) (string, error) {
	entries, err := cm.History(ctx, sessionID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Role)
		b.WriteString(": ")
		b.WriteString(e.Text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (cm *MessagesManager) Clear(ctx context.Context, sessionID string) error {
	return cm.conversationRepo.ClearHistory(ctx, sessionID)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if maxTurns <= 0 || len(messages) <= maxTurns {
		result := make([]*schema.Message, len(messages))
		copy(result, messages)
		return result
	}
	source := messages[len(messages)-maxTurns:]
	result := make([]*schema.Message, len(source))
	copy(result, source)
	return result
}
