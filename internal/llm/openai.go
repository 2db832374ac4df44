package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/heraldchat/herald/internal/config"
	"github.com/heraldchat/herald/internal/httpkit"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIClient is a client for OpenAI-compatible chat completion APIs.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	usage      UsageRecorder
}

// SetUsageRecorder attaches a recorder that receives token usage after
// each successful completion.
func (c *OpenAIClient) SetUsageRecorder(r UsageRecorder) {
	c.usage = r
}

// NewOpenAIClient creates a new OpenAI client. baseURL may point at any
// OpenAI-compatible server; empty means the public endpoint.
func NewOpenAIClient(apiKey, baseURL string, logger *slog.Logger) *OpenAIClient {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		logger:  logger.With("provider", "openai"),
		// Per-request deadlines come from Params.Timeout via the
		// context, so the client itself carries no global timeout.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
}

// OpenAI request/response types

type openaiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a non-streaming chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	req := openaiRequest{
		Model:       params.Model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Log(ctx, config.LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &ProviderError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", &ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Err:        errors.New(body),
		}
	}

	var oaResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return "", &ProviderError{Provider: "openai", Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(oaResp.Choices) == 0 {
		return "", &ProviderError{Provider: "openai", Err: errors.New("response contained no choices")}
	}

	c.logger.Debug("completion received",
		"model", oaResp.Model,
		"finish_reason", oaResp.Choices[0].FinishReason,
		"prompt_tokens", oaResp.Usage.PromptTokens,
		"completion_tokens", oaResp.Usage.CompletionTokens,
	)

	if c.usage != nil {
		model := oaResp.Model
		if model == "" {
			model = params.Model
		}
		u := Usage{
			Model:            model,
			Provider:         "openai",
			Purpose:          params.Purpose,
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
		}
		if err := c.usage.RecordUsage(ctx, u); err != nil {
			c.logger.Warn("record usage failed", "error", err)
		}
	}

	return oaResp.Choices[0].Message.Content, nil
}

// Ping checks that the API endpoint is reachable and the key is accepted.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Provider: "openai", Err: err}
	}
	httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return &ProviderError{Provider: "openai", StatusCode: resp.StatusCode, Err: errors.New("ping rejected")}
	}
	return nil
}
