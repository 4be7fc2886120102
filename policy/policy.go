// Package policy implements the policy engine external interface (spec §6):
// evaluate(action, payload) -> PolicyDecision over the three enumerated
// actions plan.admit, task.pre, task.post. Grounded on the teacher's
// policy.Engine/Decide contract (agents/runtime/policy/policy.go) and
// runtime/workflow_policy.go, narrowed from per-turn tool allowlisting to
// the spec's task-boundary admit/pre/post decisions, and its CapsState
// concept reused for the nucleus's resource caps (§4.2's bounded tool loop).
package policy

import (
	"context"

	"github.com/acmrt/acm/model"
)

// Action enumerates the points at which the executor consults the policy
// engine.
type Action string

const (
	// ActionPlanAdmit is evaluated once before a plan begins executing.
	ActionPlanAdmit Action = "plan.admit"
	// ActionTaskPre is evaluated before a task's execute body runs (§4.1 step 5).
	ActionTaskPre Action = "task.pre"
	// ActionTaskPost is evaluated after a task completes (§4.1 step 8 companion).
	ActionTaskPost Action = "task.post"
)

// PlanAdmitPayload is the payload for ActionPlanAdmit.
type PlanAdmitPayload struct {
	Plan model.Plan
	Goal model.Goal
}

// TaskPrePayload is the payload for ActionTaskPre: {action=capability, input, context}.
type TaskPrePayload struct {
	TaskID     string
	Capability string
	Input      map[string]any
	Context    model.Context
}

// TaskPostPayload is the payload for ActionTaskPost.
type TaskPostPayload struct {
	TaskID     string
	Capability string
	Output     map[string]any
	Context    model.Context
}

// Engine decides whether an action is admitted. A nil Engine is treated by
// callers as "always allow" (see NoopEngine).
type Engine interface {
	Evaluate(ctx context.Context, action Action, payload any) (model.PolicyDecision, error)
}

// NoopEngine allows every action unconditionally, matching the spec's note
// that a policy engine is optional ("if a policy engine is configured").
type NoopEngine struct{}

// Evaluate implements Engine.
func (NoopEngine) Evaluate(context.Context, Action, any) (model.PolicyDecision, error) {
	return model.PolicyDecision{Allow: true}, nil
}

// CapsState tracks remaining resource budgets for a single task's nucleus
// invocation loop: bounded tool-call rounds and consecutive-failure circuit
// breaking, mirroring the teacher's policy.CapsState.
type CapsState struct {
	MaxToolCalls                        int
	RemainingToolCalls                  int
	MaxConsecutiveFailedToolCalls       int
	RemainingConsecutiveFailedToolCalls int
}

// RecordToolCall charges one tool call (failed or not) against the budgets
// and reports whether that call fit within them; it returns false once a
// call arrives after a budget has reached zero.
func (c *CapsState) RecordToolCall(failed bool) (allowed bool) {
	if c.MaxToolCalls > 0 {
		if c.RemainingToolCalls <= 0 {
			return false
		}
		c.RemainingToolCalls--
	}
	if c.MaxConsecutiveFailedToolCalls > 0 {
		if failed {
			if c.RemainingConsecutiveFailedToolCalls <= 0 {
				return false
			}
			c.RemainingConsecutiveFailedToolCalls--
		} else {
			c.RemainingConsecutiveFailedToolCalls = c.MaxConsecutiveFailedToolCalls
		}
	}
	return true
}
