// Package search provides a pluggable web answer interface for the agent.
//
// Each provider implements the [Provider] interface and is registered by
// name. The [Manager] selects a provider based on configuration and
// exposes a single [Manager.Answer] method that the skill layer calls.
// Unlike a raw result-list search API, providers here return a composed
// answer string ready to show to the user.
package search

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoAPIKey reports a missing provider credential. It surfaces on
// first use rather than at startup so that configurations without a
// search provider can still run general conversations.
var ErrNoAPIKey = errors.New("search: API key is not set")

// Provider is the interface that answer backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "perplexity").
	Name() string

	// Answer executes a query and returns the composed answer text.
	Answer(ctx context.Context, query string) (string, error)
}

// ProviderError reports a transport failure, a non-success response, or
// an unexpected response shape from a search provider.
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

// Manager holds configured providers and routes queries.
type Manager struct {
	providers map[string]Provider
	primary   string
}

// NewManager creates a search manager. The primary provider name
// determines which backend is used by default.
func NewManager(primary string) *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		primary:   primary,
	}
}

// Register adds a provider to the manager.
func (m *Manager) Register(p Provider) {
	m.providers[p.Name()] = p
}

// Answer runs a query against the primary provider.
func (m *Manager) Answer(ctx context.Context, query string) (string, error) {
	p, ok := m.providers[m.primary]
	if !ok {
		return "", fmt.Errorf("search provider %q not configured", m.primary)
	}
	return p.Answer(ctx, query)
}

// AnswerWith runs a query against a specific named provider.
func (m *Manager) AnswerWith(ctx context.Context, provider, query string) (string, error) {
	p, ok := m.providers[provider]
	if !ok {
		return "", fmt.Errorf("search provider %q not configured", provider)
	}
	return p.Answer(ctx, query)
}

// Providers returns the names of all registered providers.
func (m *Manager) Providers() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	return names
}

// Configured reports whether at least one provider is registered.
func (m *Manager) Configured() bool {
	return len(m.providers) > 0
}
