// Package router implements the agent-routing core: one classification
// call decides which skill handles the turn, a two-node flow dispatches
// to it, and the skill's output is merged back into the turn state.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heraldchat/herald/internal/llm"
	"github.com/heraldchat/herald/internal/prompts"
)

// Skill is a leaf handler that produces response text for a classified
// intent.
type Skill interface {
	// Answer produces the response for the resolved question text.
	Answer(ctx context.Context, question string) (string, error)
}

// HistoryFunc loads up to limit recent persisted messages for the
// conversation this router serves, oldest first. Used to give the
// classification call conversational context; failures degrade to an
// empty context rather than aborting the turn.
type HistoryFunc func(ctx context.Context, limit int) ([]ChatMessage, error)

// Config holds the router's collaborators. All fields are injected at
// construction; the router keeps no ambient global state.
type Config struct {
	// Classifier is the model used for the routing decision.
	Classifier llm.Client

	// Params are the completion settings for classification calls.
	Params llm.Params

	// General handles turns classified as general conversation.
	General Skill

	// Search handles turns that need current web information.
	Search Skill

	// History is optional; nil means classification runs without
	// conversation context.
	History HistoryFunc
}

// Router classifies a turn and dispatches it to exactly one skill.
type Router struct {
	logger *slog.Logger
	cfg    Config
}

// NewRouter creates a router. A nil logger falls back to slog.Default.
func NewRouter(logger *slog.Logger, cfg Config) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		logger: logger.With("component", "router"),
		cfg:    cfg,
	}
}

// decisionHistoryLoad is how many persisted messages Decide loads, and
// decisionHistoryUse is how many of those actually enter the prompt.
const (
	decisionHistoryLoad = 5
	decisionHistoryUse  = 3
)

// Decide classifies the turn. A classification failure propagates to
// the caller; there is no retry and no fallback skill.
func (r *Router) Decide(ctx context.Context, state *TurnState) (AgentType, error) {
	question := state.Question()

	historyContext := r.historyContext(ctx)

	prompt := prompts.Routing(question, historyContext)
	raw, err := r.cfg.Classifier.Complete(ctx,
		[]llm.Message{{Role: "user", Content: prompt}}, r.cfg.Params)
	if err != nil {
		return AgentGeneral, fmt.Errorf("classify turn: %w", err)
	}

	agent := ParseAgentType(raw)
	r.logger.Debug("turn classified",
		"agent", agent.String(),
		"question_len", len(question),
		"raw", strings.TrimSpace(raw),
	)
	return agent, nil
}

// historyContext renders recent persisted history as "{role}: {content}"
// lines for the classification prompt. At most the last
// decisionHistoryUse of the last decisionHistoryLoad entries are used.
func (r *Router) historyContext(ctx context.Context) string {
	if r.cfg.History == nil {
		return ""
	}

	history, err := r.cfg.History(ctx, decisionHistoryLoad)
	if err != nil {
		r.logger.Warn("history load failed, classifying without context", "error", err)
		return ""
	}
	if len(history) > decisionHistoryUse {
		history = history[len(history)-decisionHistoryUse:]
	}

	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}

// skillFor returns the skill bound to an agent type.
func (r *Router) skillFor(agent AgentType) Skill {
	if agent == AgentInternetSearch {
		return r.cfg.Search
	}
	return r.cfg.General
}
