// Package session wires a stable (user_id, thread_id) pair to the
// routing flow and orchestrates conversation-history load and save
// around each turn.
package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/heraldchat/herald/internal/memory"
	"github.com/heraldchat/herald/internal/router"
)

// Store is the slice of the conversation store the controller needs.
// *memory.Store satisfies it.
type Store interface {
	AppendMessage(userID, threadID, role, content string, metadata map[string]any) (string, error)
	GetMessages(userID, threadID string, limit int) ([]memory.Message, error)
}

// DefaultHistoryLimit is how many persisted messages seed a turn whose
// incoming state carries no history.
const DefaultHistoryLimit = 10

// Controller runs turns for one conversation thread. It loads prior
// history before each turn and persists the new user and assistant
// messages around the routing call.
type Controller struct {
	logger       *slog.Logger
	store        Store
	router       *router.Router
	userID       string
	threadID     string
	historyLimit int
}

// New creates a session controller bound to one (userID, threadID)
// pair. historyLimit <= 0 selects DefaultHistoryLimit.
func New(logger *slog.Logger, store Store, r *router.Router, userID, threadID string, historyLimit int) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Controller{
		logger:       logger.With("component", "session", "user_id", userID, "thread_id", threadID),
		store:        store,
		router:       r,
		userID:       userID,
		threadID:     threadID,
		historyLimit: historyLimit,
	}
}

// HistoryLoader returns a router.HistoryFunc that reads recent
// persisted messages for one thread, oldest first, in turn-state form.
// The same loader backs both the router's classification context and
// the controller's per-turn history seeding.
func HistoryLoader(store Store, userID, threadID string) router.HistoryFunc {
	return func(ctx context.Context, limit int) ([]router.ChatMessage, error) {
		msgs, err := store.GetMessages(userID, threadID, limit)
		if err != nil {
			return nil, err
		}

		out := make([]router.ChatMessage, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, router.ChatMessage{
				Role:      m.Role,
				Content:   m.Content,
				Timestamp: m.Timestamp.Format(time.RFC3339),
			})
		}
		return out, nil
	}
}

// History loads up to limit recent persisted messages for this thread,
// oldest first, in turn-state form.
func (c *Controller) History(ctx context.Context, limit int) ([]router.ChatMessage, error) {
	return HistoryLoader(c.store, c.userID, c.threadID)(ctx, limit)
}

// Run executes one turn. Persistence is best-effort: a failed history
// load or message save is logged and the turn continues in degraded
// form. Routing and skill failures are not best-effort: they
// propagate to the caller, who decides whether to keep the loop alive.
func (c *Controller) Run(ctx context.Context, state *router.TurnState) (*router.TurnState, error) {
	// Seed history only when the incoming state carries none.
	if len(state.Messages) == 0 {
		history, err := c.History(ctx, c.historyLimit)
		if err != nil {
			c.logger.Warn("history load failed, starting turn with empty history", "error", err)
		} else {
			state.Messages = history
		}
	}

	state = state.Clean()
	if state.UserID == "" {
		state.UserID = c.userID
	}

	// Persist the user's utterance before routing so it survives a
	// failed model or search call.
	if state.UserQuestion != "" {
		if _, err := c.store.AppendMessage(c.userID, c.threadID, memory.RoleUser, state.UserQuestion, nil); err != nil {
			c.logger.Warn("user message not saved", "error", err)
		}
	}

	result, err := c.router.Dispatch(ctx, state)
	if err != nil {
		return nil, err
	}

	if result.Response != "" {
		meta := map[string]any{
			"agent_type":           result.Agent,
			"processing_timestamp": time.Now().Format(time.RFC3339),
		}
		if _, err := c.store.AppendMessage(c.userID, c.threadID, memory.RoleAssistant, result.Response, meta); err != nil {
			c.logger.Warn("assistant message not saved", "error", err)
		}
	}

	c.logger.Info("turn completed",
		"agent", result.Agent,
		"messages", len(result.Messages),
		"response_len", len(result.Response),
	)

	return result, nil
}
