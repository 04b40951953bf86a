package model

import (
	"context"
	"time"
)

// Stage is the position of a session in the two-state conversation flow.
type Stage string

const (
	StageAwaitingName Stage = "awaiting_name"
	StageConversing   Stage = "conversing"
)

// Location is a city/country pair used as the default search area.
type Location struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// Session is the state kept for one visitor between turns.
// Stage only moves forward: AwaitingName -> Conversing.
type Session struct {
	ID              string    `json:"id"`
	UserName        string    `json:"user_name,omitempty"`
	Stage           Stage     `json:"stage"`
	DefaultLocation Location  `json:"default_location"`
	CreatedAt       time.Time `json:"created_at"`
}

// NameCollected reports whether the session left the AwaitingName stage.
func (s *Session) NameCollected() bool {
	return s.Stage == StageConversing
}

// CollectName stores the cleaned name and moves the session to Conversing.
func (s *Session) CollectName(name string) {
	s.UserName = name
	s.Stage = StageConversing
}

type SessionRepository interface {
	// Get returns the session or errx.ErrSessionNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Save creates or replaces the session and refreshes its expiry.
	Save(ctx context.Context, session *Session) error

	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// USCities is the set of cities the agent knows by name. Classification
// matches them in this order and random locations are drawn from it.
var USCities = []string{
	"New York", "Los Angeles", "Chicago", "Houston", "Phoenix",
	"Philadelphia", "San Diego", "Dallas", "Austin", "Seattle",
	"Denver", "Boston", "Nashville", "Las Vegas", "Miami",
}
