package model

import "time"

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
//   - Cross-turn data lives in Session (SessionRepository) and the
//     conversation history (ConversationRepository), never here.
type AppState struct {
	SessionID  string
	Session    *Session           // loaded by the input converter
	Classified *ClassifiedMessage // set by the classifier post-handler
}

// QueryInput represents the input for processing one user turn.
type QueryInput struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// ReplyKind tells the presentation layer how to render a reply.
type ReplyKind string

const (
	ReplyText    ReplyKind = "text"
	ReplyListing ReplyKind = "listing"
)

// Reply is what the agent answers for one turn, or pushes later.
type Reply struct {
	Kind    ReplyKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Listing *Listing  `json:"listing,omitempty"`
	Intent  Intent    `json:"intent,omitempty"`

	// FollowUps are delivered by the service after their delay; never serialized.
	FollowUps []DelayedReply `json:"-"`
}

// DelayedReply is a reply scheduled for later delivery.
type DelayedReply struct {
	Delay time.Duration
	Reply *Reply
}

// TextReply builds a plain text reply.
func TextReply(intent Intent, text string) *Reply {
	return &Reply{Kind: ReplyText, Text: text, Intent: intent}
}

// ListingReply builds a concert listing reply.
func ListingReply(intent Intent, listing *Listing) *Reply {
	return &Reply{Kind: ReplyListing, Listing: listing, Intent: intent}
}
