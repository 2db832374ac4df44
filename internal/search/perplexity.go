package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/heraldchat/herald/internal/config"
	"github.com/heraldchat/herald/internal/httpkit"
	"github.com/heraldchat/herald/internal/prompts"
)

const perplexityAPIURL = "https://api.perplexity.ai/chat/completions"

// Perplexity implements the Provider interface for the Perplexity
// chat-completions API, which performs the web search server-side and
// returns a composed answer.
type Perplexity struct {
	apiKey     string
	model      string
	apiURL     string
	httpClient *http.Client
}

// NewPerplexity creates a Perplexity answer provider. The API key is
// not validated here; a missing key fails on the first call.
func NewPerplexity(apiKey, model string) *Perplexity {
	if model == "" {
		model = "sonar"
	}
	return &Perplexity{
		apiKey: apiKey,
		model:  model,
		apiURL: perplexityAPIURL,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(config.RequestTimeout),
		),
	}
}

func (p *Perplexity) Name() string { return "perplexity" }

// perplexityRequest is the JSON payload for the chat-completions call.
type perplexityRequest struct {
	Model                  string              `json:"model"`
	Messages               []perplexityMessage `json:"messages"`
	MaxTokens              int                 `json:"max_tokens"`
	Temperature            float64             `json:"temperature"`
	TopP                   float64             `json:"top_p"`
	ReturnCitations        bool                `json:"return_citations"`
	SearchDomainFilter     []string            `json:"search_domain_filter"`
	ReturnImages           bool                `json:"return_images"`
	ReturnRelatedQuestions bool                `json:"return_related_questions"`
	SearchRecencyFilter    string              `json:"search_recency_filter"`
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityResponse struct {
	Choices []struct {
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
}

// Answer sends the query to Perplexity and extracts the first answer.
func (p *Perplexity) Answer(ctx context.Context, query string) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("perplexity: %w", ErrNoAPIKey)
	}

	payload := perplexityRequest{
		Model: p.model,
		Messages: []perplexityMessage{
			{Role: "system", Content: prompts.SearchSystem},
			{Role: "user", Content: query},
		},
		MaxTokens:              500,
		Temperature:            0.2,
		TopP:                   0.9,
		ReturnCitations:        true,
		SearchDomainFilter:     []string{"perplexity.ai"},
		ReturnImages:           false,
		ReturnRelatedQuestions: false,
		SearchRecencyFilter:    "month",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("perplexity: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("perplexity: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: "perplexity", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", &ProviderError{
			Provider:   "perplexity",
			StatusCode: resp.StatusCode,
			Err:        errors.New(body),
		}
	}

	var pr perplexityResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", &ProviderError{Provider: "perplexity", Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(pr.Choices) == 0 {
		return "", &ProviderError{Provider: "perplexity", Err: errors.New("response contained no choices")}
	}

	return pr.Choices[0].Message.Content, nil
}
