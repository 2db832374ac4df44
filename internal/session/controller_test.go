package session

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/heraldchat/herald/internal/llm"
	"github.com/heraldchat/herald/internal/memory"
	"github.com/heraldchat/herald/internal/router"
)

// fakeStore records store traffic and can be made to fail.
type fakeStore struct {
	messages   []memory.Message
	appendMeta []map[string]any
	loadCalls  int
	appendErr  error
	loadErr    error
}

func (f *fakeStore) AppendMessage(userID, threadID, role, content string, metadata map[string]any) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.messages = append(f.messages, memory.Message{Role: role, Content: content, Metadata: metadata})
	f.appendMeta = append(f.appendMeta, metadata)
	return "conv-1", nil
}

func (f *fakeStore) GetMessages(userID, threadID string, limit int) ([]memory.Message, error) {
	f.loadCalls++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if limit > 0 && len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

// stubClient is an llm.Client with a fixed classification reply.
type stubClient struct {
	reply string
	err   error
}

func (s *stubClient) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	return s.reply, s.err
}

func (s *stubClient) Ping(ctx context.Context) error { return nil }

type funcSkill func(ctx context.Context, question string) (string, error)

func (f funcSkill) Answer(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

func newTestController(store Store, classifier *stubClient, general, search router.Skill) *Controller {
	r := router.NewRouter(slog.Default(), router.Config{
		Classifier: classifier,
		Params:     llm.FastParams("test-model"),
		General:    general,
		Search:     search,
	})
	return New(slog.Default(), store, r, "alice", "trip", 0)
}

func answer(text string) funcSkill {
	return func(context.Context, string) (string, error) { return text, nil }
}

func TestRun_EndToEnd(t *testing.T) {
	store := &fakeStore{}
	ctrl := newTestController(store, &stubClient{reply: "general"}, answer("4"), nil)

	result, err := ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "What's 2+2?"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Response != "4" {
		t.Errorf("Response = %q, want %q", result.Response, "4")
	}
	last := result.Messages[len(result.Messages)-1]
	if last.Role != "assistant" || last.Content != "4" {
		t.Errorf("last message = %+v", last)
	}
	if result.UserID != "alice" {
		t.Errorf("UserID = %q", result.UserID)
	}

	// Both sides of the exchange were persisted.
	if len(store.messages) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(store.messages))
	}
	if store.messages[0].Role != memory.RoleUser || store.messages[0].Content != "What's 2+2?" {
		t.Errorf("persisted user message = %+v", store.messages[0])
	}
	if store.messages[1].Role != memory.RoleAssistant || store.messages[1].Content != "4" {
		t.Errorf("persisted assistant message = %+v", store.messages[1])
	}
}

func TestRun_AssistantMetadata(t *testing.T) {
	store := &fakeStore{}
	ctrl := newTestController(store, &stubClient{reply: "internet_search"}, nil, answer("found it"))

	if _, err := ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "latest news?"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.appendMeta) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(store.appendMeta))
	}
	meta := store.appendMeta[1]
	if meta["agent_type"] != "internet_search" {
		t.Errorf("agent_type = %v", meta["agent_type"])
	}
	if ts, _ := meta["processing_timestamp"].(string); ts == "" {
		t.Errorf("processing_timestamp missing: %#v", meta)
	}
}

func TestRun_HistoryLoadCount(t *testing.T) {
	t.Run("empty messages loads once", func(t *testing.T) {
		store := &fakeStore{messages: []memory.Message{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "reply"},
		}}
		ctrl := newTestController(store, &stubClient{reply: "general"}, answer("ok"), nil)

		result, err := ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "next"})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if store.loadCalls != 1 {
			t.Errorf("history loaded %d times, want 1", store.loadCalls)
		}
		if result.Messages[0].Content != "earlier" {
			t.Errorf("history not seeded: %+v", result.Messages)
		}
	})

	t.Run("non-empty messages loads zero times", func(t *testing.T) {
		store := &fakeStore{}
		ctrl := newTestController(store, &stubClient{reply: "general"}, answer("ok"), nil)

		state := &router.TurnState{
			UserQuestion: "next",
			Messages:     []router.ChatMessage{{Role: "user", Content: "next"}},
		}
		if _, err := ctrl.Run(context.Background(), state); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if store.loadCalls != 0 {
			t.Errorf("history loaded %d times, want 0", store.loadCalls)
		}
	})
}

func TestRun_PersistenceFailuresDegrade(t *testing.T) {
	t.Run("load failure", func(t *testing.T) {
		store := &fakeStore{loadErr: errors.New("db locked")}
		ctrl := newTestController(store, &stubClient{reply: "general"}, answer("ok"), nil)

		result, err := ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "hi"})
		if err != nil {
			t.Fatalf("Run should degrade on load failure, got %v", err)
		}
		if result.Response != "ok" {
			t.Errorf("Response = %q", result.Response)
		}
	})

	t.Run("save failure", func(t *testing.T) {
		store := &fakeStore{appendErr: errors.New("disk full")}
		ctrl := newTestController(store, &stubClient{reply: "general"}, answer("ok"), nil)

		result, err := ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "hi"})
		if err != nil {
			t.Fatalf("Run should degrade on save failure, got %v", err)
		}
		if result.Response != "ok" {
			t.Errorf("Response = %q", result.Response)
		}
	})
}

func TestRun_SkillFailurePropagates(t *testing.T) {
	wantErr := errors.New("provider unreachable")
	failing := funcSkill(func(context.Context, string) (string, error) { return "", wantErr })

	store := &fakeStore{}
	ctrl := newTestController(store, &stubClient{reply: "general"}, failing, nil)

	_, err := ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "hi"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want wrapped %v", err, wantErr)
	}

	// The user message was persisted before the failing call.
	if len(store.messages) != 1 || store.messages[0].Role != memory.RoleUser {
		t.Errorf("user message not durable across skill failure: %+v", store.messages)
	}
}

// TestRun_SQLiteStore exercises the controller against the real store:
// the user message must be retrievable after a failed turn.
func TestRun_SQLiteStore(t *testing.T) {
	store, err := memory.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	wantErr := errors.New("model down")
	failing := funcSkill(func(context.Context, string) (string, error) { return "", wantErr })
	ctrl := newTestController(store, &stubClient{reply: "general"}, failing, nil)

	_, err = ctrl.Run(context.Background(), &router.TurnState{UserQuestion: "is anyone there?"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want wrapped %v", err, wantErr)
	}

	msgs, err := store.GetMessages("alice", "trip", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "is anyone there?" {
		t.Fatalf("persisted messages = %+v", msgs)
	}
}
