// Package memory provides durable conversation storage.
//
// A conversation is the unit of persistence: an append-only, ordered
// list of role-tagged messages owned by a (user_id, thread_id) pair.
// At most one conversation exists per pair, and its conversation_id is
// stable for the lifetime of the pair. All mutation goes through
// [Store.AppendMessage], which also bumps the conversation's
// updated_at stamp.
package memory

import "time"

// Message represents a single message in a conversation. Messages are
// immutable once written.
type Message struct {
	ID        string         `json:"id"`
	Role      string         `json:"role"` // user, assistant, system
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Conversation is a complete conversation document.
type Conversation struct {
	ConversationID string         `json:"conversation_id"`
	UserID         string         `json:"user_id"`
	ThreadID       string         `json:"thread_id"`
	Messages       []Message      `json:"messages"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Roles used throughout the store and the routing layer.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
