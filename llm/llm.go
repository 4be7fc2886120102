// Package llm defines the single external LLM call contract (spec §6) the
// nucleus depends on, plus reference adapters for Anthropic, OpenAI, and AWS
// Bedrock. The LLM planner and provider adapters are explicitly out of
// scope for the core (spec §1); this package exists only so the nucleus has
// something real to call in a runnable repository (spec SPEC_FULL.md
// "Supplemented features").
package llm

import "context"

// ToolSpec describes a tool the model may call, in provider-agnostic form.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a single tool invocation the model requested.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// Config parameterizes a single call.
type Config struct {
	Provider    string
	Model       string
	Temperature *float64
	Seed        *int64
	MaxTokens   int
}

// Result is the provider-agnostic response to a single call.
type Result struct {
	Reasoning string
	ToolCalls []ToolCall
	Raw       any
}

// Call is the single function contract: llmCall(prompt, tools, config).
type Call func(ctx context.Context, prompt string, tools []ToolSpec, cfg Config) (Result, error)
