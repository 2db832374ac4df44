package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/heraldchat/herald/internal/llm"
)

// stubClient is an llm.Client returning a canned classification reply.
type stubClient struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubClient) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	if len(messages) > 0 {
		s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	}
	return s.reply, s.err
}

func (s *stubClient) Ping(ctx context.Context) error { return nil }

// funcSkill adapts a function to the Skill interface.
type funcSkill func(ctx context.Context, question string) (string, error)

func (f funcSkill) Answer(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

func fixedSkill(answer string) funcSkill {
	return func(context.Context, string) (string, error) { return answer, nil }
}

func newTestRouter(classifier *stubClient, general, search Skill, history HistoryFunc) *Router {
	return NewRouter(slog.Default(), Config{
		Classifier: classifier,
		Params:     llm.FastParams("test-model"),
		General:    general,
		Search:     search,
		History:    history,
	})
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  AgentType
	}{
		{name: "general", reply: "general", want: AgentGeneral},
		{name: "search", reply: "internet_search", want: AgentInternetSearch},
		{name: "hedged search", reply: "Probably internet_search here.", want: AgentInternetSearch},
		{name: "malformed defaults to general", reply: "shrug", want: AgentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(&stubClient{reply: tt.reply}, nil, nil, nil)

			got, err := r.Decide(context.Background(), &TurnState{UserQuestion: "hi"})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecide_PromptContents(t *testing.T) {
	history := func(ctx context.Context, limit int) ([]ChatMessage, error) {
		if limit != decisionHistoryLoad {
			t.Errorf("history loaded with limit %d, want %d", limit, decisionHistoryLoad)
		}
		return []ChatMessage{
			{Role: "user", Content: "one"},
			{Role: "assistant", Content: "two"},
			{Role: "user", Content: "three"},
			{Role: "assistant", Content: "four"},
			{Role: "user", Content: "five"},
		}, nil
	}

	c := &stubClient{reply: "general"}
	r := newTestRouter(c, nil, nil, history)

	if _, err := r.Decide(context.Background(), &TurnState{UserQuestion: "where to?"}); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if len(c.prompts) != 1 {
		t.Fatalf("classifier called %d times, want 1", len(c.prompts))
	}
	prompt := c.prompts[0]

	if !strings.Contains(prompt, "Current Question: where to?") {
		t.Errorf("prompt missing question:\n%s", prompt)
	}
	// Only the last 3 of the 5 loaded entries enter the context.
	if strings.Contains(prompt, "user: one") || strings.Contains(prompt, "assistant: two") {
		t.Errorf("prompt contains entries beyond the context window:\n%s", prompt)
	}
	for _, line := range []string{"user: three", "assistant: four", "user: five"} {
		if !strings.Contains(prompt, line) {
			t.Errorf("prompt missing history line %q:\n%s", line, prompt)
		}
	}
}

func TestDecide_HistoryFailureDegrades(t *testing.T) {
	history := func(ctx context.Context, limit int) ([]ChatMessage, error) {
		return nil, errors.New("store offline")
	}

	r := newTestRouter(&stubClient{reply: "general"}, nil, nil, history)

	got, err := r.Decide(context.Background(), &TurnState{UserQuestion: "hi"})
	if err != nil {
		t.Fatalf("Decide should proceed without history, got %v", err)
	}
	if got != AgentGeneral {
		t.Errorf("Decide() = %v, want AgentGeneral", got)
	}
}

func TestDecide_ClassifierErrorPropagates(t *testing.T) {
	wantErr := errors.New("model down")
	r := newTestRouter(&stubClient{err: wantErr}, nil, nil, nil)

	_, err := r.Decide(context.Background(), &TurnState{UserQuestion: "hi"})
	if !errors.Is(err, wantErr) {
		t.Errorf("Decide error = %v, want wrapped %v", err, wantErr)
	}
}

func TestDispatch_GeneralPath(t *testing.T) {
	r := newTestRouter(&stubClient{reply: "general"}, fixedSkill("4"), fixedSkill("unused"), nil)

	result, err := r.Dispatch(context.Background(), &TurnState{UserQuestion: "What's 2+2?"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if result.Response != "4" {
		t.Errorf("Response = %q, want %q", result.Response, "4")
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Role != "assistant" || last.Content != "4" {
		t.Errorf("last message = %+v", last)
	}
	if result.Agent != "general" {
		t.Errorf("Agent = %q, want %q", result.Agent, "general")
	}
}

func TestDispatch_SearchPath(t *testing.T) {
	var searched string
	search := funcSkill(func(ctx context.Context, q string) (string, error) {
		searched = q
		return "sunny, 22C", nil
	})

	r := newTestRouter(&stubClient{reply: "internet_search"}, fixedSkill("unused"), search, nil)

	result, err := r.Dispatch(context.Background(), &TurnState{UserQuestion: "weather in Lisbon?"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if searched != "weather in Lisbon?" {
		t.Errorf("search skill got %q", searched)
	}
	if result.Response != "sunny, 22C" {
		t.Errorf("Response = %q", result.Response)
	}
	if result.Agent != "internet_search" {
		t.Errorf("Agent = %q", result.Agent)
	}
	// Both paths echo the user message before the assistant reply.
	if len(result.Messages) != 2 || result.Messages[0].Role != "user" {
		t.Errorf("messages = %+v, want user echo then assistant", result.Messages)
	}
}

func TestDispatch_NoDuplicateUserEcho(t *testing.T) {
	r := newTestRouter(&stubClient{reply: "general"}, fixedSkill("hello"), nil, nil)

	state := &TurnState{
		UserQuestion: "hi",
		Messages:     []ChatMessage{{Role: "user", Content: "hi"}},
	}

	result, err := r.Dispatch(context.Background(), state)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(result.Messages) != 2 {
		t.Fatalf("got %d messages, want 2: %+v", len(result.Messages), result.Messages)
	}
}

func TestDispatch_SkillErrorPropagates(t *testing.T) {
	wantErr := errors.New("search provider down")
	failing := funcSkill(func(context.Context, string) (string, error) { return "", wantErr })

	r := newTestRouter(&stubClient{reply: "internet_search"}, fixedSkill("unused"), failing, nil)

	_, err := r.Dispatch(context.Background(), &TurnState{UserQuestion: "hi"})
	if !errors.Is(err, wantErr) {
		t.Errorf("Dispatch error = %v, want wrapped %v", err, wantErr)
	}
}

func TestDispatch_StateKeptClean(t *testing.T) {
	r := newTestRouter(&stubClient{reply: "general"}, fixedSkill("ok"), nil, nil)

	state := &TurnState{
		UserQuestion:  "hi",
		Messages:      []ChatMessage{{}, {Role: "user", Content: "hi"}},
		SearchResults: []map[string]any{},
	}

	result, err := r.Dispatch(context.Background(), state)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	for _, m := range result.Messages {
		if m.Role == "" && m.Content == "" {
			t.Errorf("empty message survived dispatch: %+v", result.Messages)
		}
	}
	if result.SearchResults != nil {
		t.Errorf("empty search results survived dispatch")
	}
}
