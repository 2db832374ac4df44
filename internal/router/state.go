package router

import "time"

// ChatMessage is one entry in the ephemeral turn state. It mirrors the
// persisted message shape but carries only what a single turn needs.
type ChatMessage struct {
	Role      string
	Content   string
	Timestamp string
}

// TurnState carries the working data for one turn through the routing
// flow. It is created fresh per turn and folded back into the caller's
// state when the turn completes; it is never persisted as-is.
type TurnState struct {
	Messages      []ChatMessage
	UserID        string
	UserQuestion  string
	Query         string
	Response      string
	SearchResults []map[string]any
	Timestamp     string
	CreatedAt     time.Time

	// Agent records which agent type produced Response. Set by
	// Dispatch; empty until a turn has run.
	Agent string
}

// Clean returns a copy with empty-valued optional fields normalized
// away so that no absent keys materialize between hops: nil-content
// message entries are dropped and empty collections become nil.
func (s *TurnState) Clean() *TurnState {
	out := *s

	if len(s.Messages) > 0 {
		msgs := make([]ChatMessage, 0, len(s.Messages))
		for _, m := range s.Messages {
			if m.Role == "" && m.Content == "" {
				continue
			}
			msgs = append(msgs, m)
		}
		out.Messages = msgs
	} else {
		out.Messages = nil
	}

	if len(s.SearchResults) == 0 {
		out.SearchResults = nil
	}

	return &out
}

// Question resolves the text the agents should answer: the explicit
// user question, falling back to the most recent user-authored message,
// then to the raw query field. May be empty.
func (s *TurnState) Question() string {
	if s.UserQuestion != "" {
		return s.UserQuestion
	}
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "user" {
			return s.Messages[i].Content
		}
	}
	return s.Query
}

// lastRole returns the role of the most recent message, or "" when the
// turn has no messages yet.
func (s *TurnState) lastRole() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Role
}

// appendExchange merges a skill's output into the state: the question
// is echoed as a user message unless the latest message already is one,
// then the answer lands as an assistant message and becomes the turn's
// response.
func (s *TurnState) appendExchange(question, answer string) {
	if question != "" && s.lastRole() != "user" {
		s.Messages = append(s.Messages, ChatMessage{Role: "user", Content: question})
	}
	s.Messages = append(s.Messages, ChatMessage{Role: "assistant", Content: answer})
	s.Response = answer
}
