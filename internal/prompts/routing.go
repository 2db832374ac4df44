package prompts

import "fmt"

// Routing builds the classification prompt that decides which agent
// handles a turn. The model is instructed to answer with exactly one
// of the two agent type tokens; parsing of the reply is deliberately
// permissive (see router.ParseAgentType).
func Routing(question, historyContext string) string {
	return fmt.Sprintf(`Given the user's question and conversation history, determine which agent would be most appropriate to handle it:
- Use 'general' for general conversation, basic questions, or tasks not requiring external data
- Use 'internet_search' if the question requires current information, fact checking, or web search

Conversation History:
%s

Current Question: %s

Respond with just the agent type: either 'general' or 'internet_search'`, historyContext, question)
}
