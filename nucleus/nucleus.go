// Package nucleus implements the Nucleus Lifecycle (spec §4.2): a per-task
// reasoning component adapting an opaque llm.Call into a three-phase,
// bounded loop (preflight -> invoke -> postcheck) that can request
// additional context, emit structured tool calls, and self-assess
// completion. Grounded on the teacher's planner.Planner three-call shape
// (PlanStart/PlanResume/tool-result loop, planner/planner.go) adapted from
// an open-ended chat planner to the spec's closed three-phase contract.
package nucleus

import (
	"context"
	"strings"

	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/llm"
	"github.com/acmrt/acm/model"
	"github.com/acmrt/acm/policy"
	"github.com/acmrt/acm/telemetry"
)

// Built-in tool names the nucleus always offers in addition to the task's
// own tools (spec §4.2 "Built-in tools").
const (
	ToolQueryContext            = "query_context"
	ToolRequestContextRetrieval = "request_context_retrieval"
)

// PreflightStatus enumerates preflight() outcomes.
type PreflightStatus string

const (
	PreflightOK           PreflightStatus = "OK"
	PreflightNeedsContext PreflightStatus = "NEEDS_CONTEXT"
)

// PreflightResult is the result of a preflight() call.
type PreflightResult struct {
	Status     PreflightStatus
	Directives []string
}

// PostcheckStatus enumerates postcheck() outcomes.
type PostcheckStatus string

const (
	PostcheckComplete          PostcheckStatus = "COMPLETE"
	PostcheckNeedsCompensation PostcheckStatus = "NEEDS_COMPENSATION"
	PostcheckEscalate          PostcheckStatus = "ESCALATE"
)

// PostcheckResult is the result of a postcheck() call.
type PostcheckResult struct {
	Status PostcheckStatus
	Reason string
}

// InvokeResult is the result of a bounded invoke() call.
type InvokeResult struct {
	// Output is the structured answer the model settled on.
	Output map[string]any
	// Narrative is free-form reasoning text accumulated across rounds.
	Narrative string
	// ToolCalls forwards model-issued calls to tools outside the built-in
	// set, for the caller (the task body / executor) to execute.
	ToolCalls []llm.ToolCall
	// BudgetExhausted is true when the round or token budget was hit before
	// the model produced a final answer; this is not an error (spec §4.2).
	BudgetExhausted bool
}

// Config bounds one nucleus's resource usage.
type Config struct {
	MaxContextTokens int // default implementation-specific; 0 disables the check
	MaxQueryRounds   int // default 25
	// Caps additionally bounds the tool-call loop by count and by
	// consecutive tool-call failures (§4.2's bounded tool loop); a zero
	// value disables both checks.
	Caps policy.CapsState
}

func (c Config) withDefaults() Config {
	if c.MaxQueryRounds <= 0 {
		c.MaxQueryRounds = 25
	}
	if c.Caps.MaxToolCalls > 0 && c.Caps.RemainingToolCalls == 0 {
		c.Caps.RemainingToolCalls = c.Caps.MaxToolCalls
	}
	if c.Caps.MaxConsecutiveFailedToolCalls > 0 && c.Caps.RemainingConsecutiveFailedToolCalls == 0 {
		c.Caps.RemainingConsecutiveFailedToolCalls = c.Caps.MaxConsecutiveFailedToolCalls
	}
	return c
}

// Nucleus is bound to a single task's identity, scope, and allowed tools
// for the duration of one task (spec §4.1 step 3). It is not re-entrant:
// concurrent calls from one task are an implementation error (spec §9).
type Nucleus struct {
	GoalID       string
	PlanID       string
	TaskID       string
	ContextRef   string
	AllowedTools []string
	Scope        *model.InternalContextScope
	Ledger       *ledger.Ledger
	LLMCall      llm.Call
	Telemetry    telemetry.Telemetry
	Config       Config
}

// Preflight examines the bound scope and emits either OK or
// NEEDS_CONTEXT(directives). It asks the model, via the
// request_context_retrieval tool, whether the current scope is sufficient;
// a nucleus with no LLMCall configured always returns OK.
func (n *Nucleus) Preflight(ctx context.Context) (PreflightResult, error) {
	if n.LLMCall == nil {
		return PreflightResult{Status: PreflightOK}, nil
	}
	prompt := n.preflightPrompt()
	res, err := n.LLMCall(ctx, prompt, []llm.ToolSpec{requestContextToolSpec()}, llm.Config{})
	if err != nil {
		return PreflightResult{}, err
	}
	n.emitInference(res, "preflight")
	for _, tc := range res.ToolCalls {
		if tc.Name == ToolRequestContextRetrieval {
			return PreflightResult{Status: PreflightNeedsContext, Directives: directivesFrom(tc.Input)}, nil
		}
	}
	return PreflightResult{Status: PreflightOK}, nil
}

// Invoke runs the bounded tool-call loop described in spec §4.2: each round
// calls the LLM with the prompt plus tools ∪ {query_context,
// request_context_retrieval}; built-in tool calls are handled locally,
// caller tool calls are forwarded in the result. Token budget is estimated
// with a char/4 heuristic (×0.9 when the prompt looks code-heavy); once
// estimated usage exceeds 85% of MaxContextTokens the next round strips the
// built-in tools and forces a final answer. A round that issues any tool
// calls is also charged against Config.Caps, which can end the loop early
// on a tool-call-count or consecutive-failure budget. Stops after
// Config.MaxQueryRounds.
func (n *Nucleus) Invoke(ctx context.Context, prompt string, callerTools []llm.ToolSpec) (InvokeResult, error) {
	cfg := n.Config.withDefaults()
	prompt = prompt + "\n" + n.groundingDirectives()
	var narrative strings.Builder
	var forwarded []llm.ToolCall
	budgetExhausted := false

	for round := 1; round <= cfg.MaxQueryRounds; round++ {
		estTokens := estimateTokens(prompt) + estimateTokens(narrative.String())
		overBudget := cfg.MaxContextTokens > 0 && estTokens > (cfg.MaxContextTokens*85)/100

		tools := append([]llm.ToolSpec{}, callerTools...)
		if !overBudget {
			tools = append(tools, queryContextToolSpec(), requestContextToolSpec())
		} else {
			budgetExhausted = true
		}

		res, err := n.LLMCall(ctx, prompt, tools, llm.Config{})
		if err != nil {
			return InvokeResult{}, err
		}
		n.emitInference(res, "invoke")
		if res.Reasoning != "" {
			narrative.WriteString(res.Reasoning)
			narrative.WriteByte('\n')
		}

		if len(res.ToolCalls) == 0 {
			return InvokeResult{
				Output:          finalOutput(res),
				Narrative:       narrative.String(),
				ToolCalls:       forwarded,
				BudgetExhausted: budgetExhausted,
			}, nil
		}

		var anyBuiltin, anyFailed bool
		for _, tc := range res.ToolCalls {
			switch tc.Name {
			case ToolQueryContext:
				anyBuiltin = true
				result := n.handleQueryContext(tc.Input)
				if _, failed := result["error"]; failed {
					anyFailed = true
				}
				prompt = appendToolResult(prompt, tc, result)
			case ToolRequestContextRetrieval:
				anyBuiltin = true
				// Surfaced to the executor via a NEEDS_CONTEXT-shaped return is not
				// modeled mid-invoke by spec; the executor only consults preflight
				// between rounds. We honor the directive by recording it in the
				// narrative so the caller can decide to re-run preflight.
				narrative.WriteString("requested context: " + strings.Join(directivesFrom(tc.Input), ", ") + "\n")
			default:
				forwarded = append(forwarded, tc)
			}
		}
		if !cfg.Caps.RecordToolCall(anyFailed) {
			return InvokeResult{
				Output:          finalOutput(res),
				Narrative:       narrative.String(),
				ToolCalls:       forwarded,
				BudgetExhausted: true,
			}, nil
		}
		if overBudget && !anyBuiltin {
			// Built-in tools were stripped and the model still produced only
			// caller tool calls; treat as the forced final answer.
			return InvokeResult{
				Output:          finalOutput(res),
				Narrative:       narrative.String(),
				ToolCalls:       forwarded,
				BudgetExhausted: true,
			}, nil
		}
	}

	return InvokeResult{Narrative: narrative.String(), ToolCalls: forwarded, BudgetExhausted: true}, nil
}

// Postcheck returns COMPLETE | NEEDS_COMPENSATION{reason} | ESCALATE{reason}
// as a pure function of scope + output, consulting the model via a
// postcheck tool call when LLMCall is configured.
func (n *Nucleus) Postcheck(ctx context.Context, output map[string]any) (PostcheckResult, error) {
	if n.LLMCall == nil {
		return PostcheckResult{Status: PostcheckComplete}, nil
	}
	prompt := n.postcheckPrompt(output)
	res, err := n.LLMCall(ctx, prompt, []llm.ToolSpec{postcheckToolSpec()}, llm.Config{})
	if err != nil {
		return PostcheckResult{}, err
	}
	n.emitInference(res, "postcheck")
	for _, tc := range res.ToolCalls {
		if tc.Name != "postcheck_result" {
			continue
		}
		status, _ := tc.Input["status"].(string)
		reason, _ := tc.Input["reason"].(string)
		switch PostcheckStatus(status) {
		case PostcheckNeedsCompensation:
			return PostcheckResult{Status: PostcheckNeedsCompensation, Reason: reason}, nil
		case PostcheckEscalate:
			return PostcheckResult{Status: PostcheckEscalate, Reason: reason}, nil
		}
	}
	return PostcheckResult{Status: PostcheckComplete}, nil
}

func (n *Nucleus) emitInference(res llm.Result, phase string) {
	n.Ledger.Append(ledger.NucleusInference, map[string]any{
		"taskId":        n.TaskID,
		"phase":         phase,
		"reasoning":     res.Reasoning,
		"toolCallCount": len(res.ToolCalls),
	})
}

// handleQueryContext answers the "list" and "read_artifact" ops from the
// bound scope. The other ops the query_context tool advertises
// (read_fact, read_augmentation, read_assumptions) are not answered: they
// return an "unsupported op" error result, as does any unknown op.
func (n *Nucleus) handleQueryContext(input map[string]any) map[string]any {
	op, _ := input["op"].(string)
	key, _ := input["key"].(string)
	switch op {
	case "list":
		var ids []string
		for _, a := range n.Scope.Artifacts() {
			ids = append(ids, a.ID)
		}
		return map[string]any{"artifactIds": ids}
	case "read_artifact":
		if a, ok := n.Scope.Get(key); ok {
			return map[string]any{"artifact": a}
		}
		return map[string]any{"error": "not found"}
	default:
		return map[string]any{"error": "unsupported op"}
	}
}

// The grounding directives below implement spec §4.2's grounding contract:
// the model must call query_context before producing structured output,
// cite which fact keys or artifact ids informed its answer, and call
// request_context_retrieval rather than fabricate. preflightPrompt and
// Invoke append them to the prompt; postcheckPrompt, which offers only the
// postcheck_result tool, is sent without them.
func (n *Nucleus) groundingDirectives() string {
	return "Before producing structured output you MUST call query_context at least once. " +
		"Cite the fact keys or artifact IDs that informed your answer. " +
		"If information is missing, call request_context_retrieval instead of fabricating an answer."
}

func (n *Nucleus) preflightPrompt() string {
	return "Task " + n.TaskID + ": does the current scope contain enough information to proceed? " +
		n.groundingDirectives()
}

func (n *Nucleus) postcheckPrompt(output map[string]any) string {
	return "Task " + n.TaskID + " produced output; assess completeness and call postcheck_result."
}

func directivesFrom(input map[string]any) []string {
	raw, ok := input["directives"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func finalOutput(res llm.Result) map[string]any {
	return map[string]any{"reasoning": res.Reasoning}
}

func appendToolResult(prompt string, tc llm.ToolCall, result map[string]any) string {
	return prompt + "\n[tool_result " + tc.Name + "]: " + formatResult(result)
}

func formatResult(result map[string]any) string {
	var b strings.Builder
	for k, v := range result {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(stringify(v))
		b.WriteString(" ")
	}
	return b.String()
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "?"
}

// estimateTokens applies the spec's char/4 heuristic with a 0.9 discount
// when the text looks code-heavy (contains fenced code blocks or tabs).
func estimateTokens(s string) int {
	base := float64(len(s)) / 4
	if strings.Contains(s, "```") || strings.Contains(s, "\t") {
		base *= 0.9
	}
	return int(base)
}

func queryContextToolSpec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ToolQueryContext,
		Description: "Read from the current task scope without mutating it.",
		InputSchema: map[string]any{
			"op":  map[string]any{"type": "string", "enum": []string{"list", "read_fact", "read_augmentation", "read_assumptions", "read_artifact"}},
			"key": map[string]any{"type": "string"},
		},
	}
}

func requestContextToolSpec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ToolRequestContextRetrieval,
		Description: "Request retrieval of additional context by directive instead of fabricating an answer.",
		InputSchema: map[string]any{
			"directives": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
	}
}

func postcheckToolSpec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        "postcheck_result",
		Description: "Report whether the task output is complete, needs compensation, or must escalate.",
		InputSchema: map[string]any{
			"status": map[string]any{"type": "string", "enum": []string{"COMPLETE", "NEEDS_COMPENSATION", "ESCALATE"}},
			"reason": map[string]any{"type": "string"},
		},
	}
}
