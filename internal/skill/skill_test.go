package skill

import (
	"context"
	"errors"
	"testing"

	"github.com/heraldchat/herald/internal/llm"
	"github.com/heraldchat/herald/internal/prompts"
	"github.com/heraldchat/herald/internal/search"
)

type stubClient struct {
	reply    string
	err      error
	calls    int
	messages []llm.Message
}

func (s *stubClient) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	s.calls++
	s.messages = messages
	return s.reply, s.err
}

func (s *stubClient) Ping(ctx context.Context) error { return nil }

func TestGeneralAnswer(t *testing.T) {
	client := &stubClient{reply: "the answer is 4"}
	g := NewGeneral(nil, client, llm.FastParams("m"))

	got, err := g.Answer(context.Background(), "what is 2+2?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "the answer is 4" {
		t.Errorf("Answer() = %q", got)
	}

	if len(client.messages) != 2 {
		t.Fatalf("model got %d messages, want 2", len(client.messages))
	}
	if client.messages[0].Role != "system" || client.messages[0].Content != prompts.GeneralSystem {
		t.Errorf("system message = %+v", client.messages[0])
	}
	if client.messages[1].Role != "user" || client.messages[1].Content != "what is 2+2?" {
		t.Errorf("user message = %+v", client.messages[1])
	}
}

func TestGeneralAnswer_EmptyQuestion(t *testing.T) {
	client := &stubClient{reply: "should not be used"}
	g := NewGeneral(nil, client, llm.FastParams("m"))

	got, err := g.Answer(context.Background(), "")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != prompts.EmptyQuestionFallback {
		t.Errorf("Answer() = %q", got)
	}
	if client.calls != 0 {
		t.Errorf("model was called %d times for an empty question", client.calls)
	}
}

func TestGeneralAnswer_ModelError(t *testing.T) {
	wantErr := errors.New("model down")
	g := NewGeneral(nil, &stubClient{err: wantErr}, llm.FastParams("m"))

	if _, err := g.Answer(context.Background(), "hi"); !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

type stubProvider struct {
	query string
	reply string
	err   error
}

func (p *stubProvider) Name() string { return "perplexity" }

func (p *stubProvider) Answer(ctx context.Context, query string) (string, error) {
	p.query = query
	return p.reply, p.err
}

func TestSearchAnswer(t *testing.T) {
	prov := &stubProvider{reply: "search says hi"}
	mgr := search.NewManager("perplexity")
	mgr.Register(prov)
	s := NewSearch(nil, mgr)

	got, err := s.Answer(context.Background(), "latest news")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if got != "search says hi" {
		t.Errorf("Answer() = %q", got)
	}
	if prov.query != "latest news" {
		t.Errorf("provider query = %q", prov.query)
	}
}

func TestSearchAnswer_ProviderError(t *testing.T) {
	mgr := search.NewManager("perplexity")
	mgr.Register(&stubProvider{err: search.ErrNoAPIKey})
	s := NewSearch(nil, mgr)

	if _, err := s.Answer(context.Background(), "q"); !errors.Is(err, search.ErrNoAPIKey) {
		t.Errorf("error = %v, want ErrNoAPIKey", err)
	}
}
