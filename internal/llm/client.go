// Package llm provides LLM client implementations.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/heraldchat/herald/internal/config"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params control a single completion request. Providers apply these
// per call; there is no ambient global configuration.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds the whole request. A call either returns within
	// this window or fails; there is no retry.
	Timeout time.Duration
	// Purpose labels the call for usage accounting ("classify",
	// "general"). It is never sent to the provider.
	Purpose string
}

// Usage reports token consumption for a single completed call.
type Usage struct {
	Model            string
	Provider         string
	Purpose          string
	PromptTokens     int
	CompletionTokens int
}

// UsageRecorder receives token usage after each successful completion.
// Recording is best-effort; failures are logged by the client and never
// fail the completion itself.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u Usage) error
}

// FastParams returns low-latency settings for routing decisions and
// short conversational replies.
func FastParams(model string) Params {
	return Params{
		Model:       model,
		Temperature: 0.5,
		MaxTokens:   200,
		Timeout:     config.RequestTimeout,
	}
}

// BalancedParams returns settings that trade a little latency for
// answer quality.
func BalancedParams(model string) Params {
	return Params{
		Model:       model,
		Temperature: 0.7,
		MaxTokens:   200,
		Timeout:     config.RequestTimeout,
	}
}

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Complete sends a chat completion request and returns the
	// assistant's text.
	Complete(ctx context.Context, messages []Message, params Params) (string, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// ProviderError reports a transport failure or non-success response
// from a model provider.
type ProviderError struct {
	Provider   string
	StatusCode int // zero when the request never completed
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
