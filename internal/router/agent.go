package router

import "strings"

// AgentType is the closed routing decision domain: every turn is
// handled by exactly one of these agents.
type AgentType int

const (
	// AgentGeneral answers directly from the language model.
	AgentGeneral AgentType = iota

	// AgentInternetSearch answers via the web search provider.
	AgentInternetSearch
)

func (a AgentType) String() string {
	switch a {
	case AgentInternetSearch:
		return "internet_search"
	default:
		return "general"
	}
}

// ParseAgentType maps a raw classification reply to an agent type.
// The match is substring containment on the lower-cased reply, not
// exact equality: anything mentioning "internet_search" routes to the
// search agent, and everything else (including malformed or hedged
// replies) defaults to the general agent.
func ParseAgentType(raw string) AgentType {
	if strings.Contains(strings.ToLower(raw), "internet_search") {
		return AgentInternetSearch
	}
	return AgentGeneral
}
