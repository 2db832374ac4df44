// Package prompts contains all LLM prompt templates used internally by Herald.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests. User-facing configuration lives in herald.yaml;
// this package holds the instructions we send to models (agent routing, the
// general responder's system prompt, search query shaping).
//
// Convention: each prompt category gets its own file with an exported
// function or constant that accepts the dynamic parts and returns the
// fully interpolated prompt string.
package prompts
