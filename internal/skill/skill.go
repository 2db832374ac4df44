// Package skill holds the leaf handlers the router dispatches to. Each
// skill turns a resolved question into response text; everything else
// (routing, history, persistence) happens around them.
package skill

import (
	"context"
	"log/slog"

	"github.com/heraldchat/herald/internal/llm"
	"github.com/heraldchat/herald/internal/prompts"
	"github.com/heraldchat/herald/internal/search"
)

// General answers directly from the language model.
type General struct {
	logger *slog.Logger
	client llm.Client
	params llm.Params
}

// NewGeneral creates the direct-responder skill.
func NewGeneral(logger *slog.Logger, client llm.Client, params llm.Params) *General {
	if logger == nil {
		logger = slog.Default()
	}
	return &General{
		logger: logger.With("skill", "general"),
		client: client,
		params: params,
	}
}

// Answer produces a single completion for the question. An empty
// question short-circuits to a fixed fallback reply without calling
// the model.
func (g *General) Answer(ctx context.Context, question string) (string, error) {
	if question == "" {
		return prompts.EmptyQuestionFallback, nil
	}

	g.logger.Debug("answering directly", "question_len", len(question))

	return g.client.Complete(ctx, []llm.Message{
		{Role: "system", Content: prompts.GeneralSystem},
		{Role: "user", Content: question},
	}, g.params)
}

// Search answers via the configured web answer provider.
type Search struct {
	logger *slog.Logger
	mgr    *search.Manager
}

// NewSearch creates the web-search skill.
func NewSearch(logger *slog.Logger, mgr *search.Manager) *Search {
	if logger == nil {
		logger = slog.Default()
	}
	return &Search{
		logger: logger.With("skill", "internet_search"),
		mgr:    mgr,
	}
}

// Answer runs the question through the search provider and returns the
// composed answer. Provider failures propagate; there is no fallback
// to the general skill.
func (s *Search) Answer(ctx context.Context, question string) (string, error) {
	s.logger.Debug("answering via web search", "question_len", len(question))
	return s.mgr.Answer(ctx, question)
}
