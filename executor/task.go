package executor

import (
	"context"
	"time"

	"github.com/acmrt/acm/acmerr"
	"github.com/acmrt/acm/guard"
	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/model"
	"github.com/acmrt/acm/nucleus"
	"github.com/acmrt/acm/policy"
)

const defaultTaskTimeout = 30 * time.Second

// runTask executes steps 2-9 of spec §4.1's per-task algorithm for an
// eligible task. Step 1 (eligibility) has already run in schedule().
func (r *run) runTask(ctx context.Context, task model.TaskSpec) *Failure {
	rec := r.records[task.ID]

	impl, ok := r.req.Capabilities.Resolve(task.Capability)
	if !ok {
		return r.recordFailure(acmerr.ForTask(acmerr.CapabilityMissing, task.ID, task.Capability))
	}

	n := r.buildNucleus(task)

	if failure := r.preflightLoop(ctx, n, task); failure != nil {
		return failure
	}

	retryPolicy := task.Retry.WithDefaults()
	if failure := r.policyPre(ctx, task); failure != nil {
		return failure
	} else if r.lastPolicyLimits != nil && r.lastPolicyLimits.Retries > 0 && r.lastPolicyLimits.Retries < retryPolicy.Attempts {
		retryPolicy.Attempts = r.lastPolicyLimits.Retries
	}

	r.req.Ledger.Append(ledger.TaskStart, map[string]any{
		"taskId":     task.ID,
		"capability": task.Capability,
	})
	rec.Status = model.TaskRunning

	output, err := r.executeWithRetry(ctx, n, impl.Execute, task, retryPolicy)
	if err != nil {
		return r.finishFailed(task, acmerr.Wrap(acmerr.TaskError, task.ID, err))
	}

	if failure := r.verify(task, output); failure != nil {
		return failure
	}

	if failure := r.policyPost(ctx, task, output); failure != nil {
		return failure
	}

	postResult, err := n.Postcheck(ctx, output)
	if err != nil {
		return r.finishFailed(task, acmerr.Wrap(acmerr.TaskError, task.ID, err))
	}
	switch postResult.Status {
	case nucleus.PostcheckNeedsCompensation:
		return r.finishFailed(task, acmerr.ForTask(acmerr.TaskError, task.ID, "needs compensation: "+postResult.Reason))
	case nucleus.PostcheckEscalate:
		// Spec makes an ESCALATE postcheck unconditionally run-fatal: it does
		// not get a chance to route around via a downstream compensation edge.
		return r.finishFailedFatal(task, acmerr.ForTask(acmerr.VerificationFailed, task.ID, "escalated: "+postResult.Reason))
	}

	rec.Status = model.TaskSuccess
	rec.Output = output
	r.outputs[task.ID] = output
	r.req.Ledger.Append(ledger.TaskEnd, map[string]any{
		"taskId":     task.ID,
		"capability": task.Capability,
		"status":     string(model.TaskSuccess),
	})
	return nil
}

// buildNucleus instantiates a Nucleus bound to this task's identity and a
// fresh InternalContextScope (spec §4.1 step 3).
func (r *run) buildNucleus(task model.TaskSpec) *nucleus.Nucleus {
	contextRef, _ := r.ctxData.ContextRef()
	allowed := append([]string{}, task.Tools...)
	return &nucleus.Nucleus{
		GoalID:       r.req.Goal.ID,
		PlanID:       r.req.Plan.ID,
		TaskID:       task.ID,
		ContextRef:   contextRef,
		AllowedTools: allowed,
		Scope:        model.NewInternalContextScope(task.ID, 0, 0),
		Ledger:       r.req.Ledger,
		LLMCall:      r.req.LLMCall,
		Telemetry:    r.req.Telemetry,
		Config: nucleus.Config{
			MaxContextTokens: r.req.MaxContextTokens,
			MaxQueryRounds:   r.req.MaxQueryRounds,
		},
	}
}

// preflightLoop implements spec §4.1 step 4: call preflight; on
// NEEDS_CONTEXT, fulfill the directives through the retrieval pipeline and
// retry, up to MaxPreflightRounds, then fail with ContextUnavailable.
func (r *run) preflightLoop(ctx context.Context, n *nucleus.Nucleus, task model.TaskSpec) *Failure {
	if r.req.Retrieval == nil {
		res, err := n.Preflight(ctx)
		if err != nil {
			return r.finishFailed(task, acmerr.Wrap(acmerr.TaskError, task.ID, err))
		}
		if res.Status == nucleus.PreflightNeedsContext {
			return r.finishFailed(task, acmerr.ForTask(acmerr.ContextUnavailable, task.ID, "no retrieval pipeline configured"))
		}
		return nil
	}
	for round := 0; round < r.req.MaxPreflightRounds; round++ {
		res, err := n.Preflight(ctx)
		if err != nil {
			return r.finishFailed(task, acmerr.Wrap(acmerr.TaskError, task.ID, err))
		}
		if res.Status == nucleus.PreflightOK {
			return nil
		}
		updated, err := r.req.Retrieval.Fulfill(ctx, res.Directives, n.Scope, r.ctxData)
		if err != nil {
			return r.finishFailed(task, acmerr.Wrap(acmerr.TaskError, task.ID, err))
		}
		r.ctxData = updated
		n.ContextRef, _ = r.ctxData.ContextRef()
	}
	return r.finishFailed(task, acmerr.ForTask(acmerr.ContextUnavailable, task.ID, "preflight still needs context after max rounds"))
}

// policyPre implements spec §4.1 step 5.
func (r *run) policyPre(ctx context.Context, task model.TaskSpec) *Failure {
	decision, err := r.req.Policy.Evaluate(ctx, policy.ActionTaskPre, policy.TaskPrePayload{
		TaskID:     task.ID,
		Capability: task.Capability,
		Input:      task.Input,
		Context:    r.ctxData,
	})
	if err != nil {
		return r.finishFailed(task, acmerr.Wrap(acmerr.PolicyDenied, task.ID, err))
	}
	r.req.Ledger.Append(ledger.PolicyPre, map[string]any{
		"taskId":  task.ID,
		"allowed": decision.Allow,
		"reason":  decision.Reason,
	})
	r.lastPolicyLimits = decision.Limits
	if !decision.Allow {
		return r.finishFailed(task, acmerr.ForTask(acmerr.PolicyDenied, task.ID, decision.Reason))
	}
	return nil
}

// policyPost implements spec §4.1 step 8's policy post-check: the policy
// engine is consulted once more after verification passes, over the task's
// produced output, and a denial fails the task the same way a task.pre
// denial does.
func (r *run) policyPost(ctx context.Context, task model.TaskSpec, output map[string]any) *Failure {
	decision, err := r.req.Policy.Evaluate(ctx, policy.ActionTaskPost, policy.TaskPostPayload{
		TaskID:     task.ID,
		Capability: task.Capability,
		Output:     output,
		Context:    r.ctxData,
	})
	if err != nil {
		return r.finishFailed(task, acmerr.Wrap(acmerr.PolicyDenied, task.ID, err))
	}
	r.req.Ledger.Append(ledger.PolicyPost, map[string]any{
		"taskId":  task.ID,
		"allowed": decision.Allow,
		"reason":  decision.Reason,
	})
	if !decision.Allow {
		return r.finishFailed(task, acmerr.ForTask(acmerr.PolicyDenied, task.ID, decision.Reason))
	}
	return nil
}

type execFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// executeWithRetry implements spec §4.1 step 6: call execute, retrying on
// error per the task's (possibly policy-tightened) retry policy with the
// configured backoff.
func (r *run) executeWithRetry(ctx context.Context, n *nucleus.Nucleus, exec execFunc, task model.TaskSpec, retryPolicy model.RetryPolicy) (map[string]any, error) {
	taskCtx := nucleus.WithContext(ctx, n)
	timeout := defaultTaskTimeout
	if r.lastPolicyLimits != nil && r.lastPolicyLimits.TimeoutMs > 0 {
		timeout = time.Duration(r.lastPolicyLimits.TimeoutMs) * time.Millisecond
	}
	var lastErr error
	for attempt := 1; attempt <= retryPolicy.Attempts; attempt++ {
		if attempt > 1 {
			delayMs := backoffDelayMs(retryPolicy, attempt-1)
			r.req.Ledger.Append(ledger.TaskRetry, map[string]any{
				"taskId":  task.ID,
				"attempt": attempt - 1,
				"delayMs": delayMs,
			})
			r.records[task.ID].Status = model.TaskRetrying
			sleep(delayMs)
			r.records[task.ID].Status = model.TaskRunning
		}
		output, err := r.runWithTimeout(taskCtx, exec, task.Input, timeout)
		if err == nil {
			return output, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// runWithTimeout bounds a single execute attempt at timeout, translating a
// context deadline exceeded into a retryable error (spec §5 "on timeout,
// the task is treated as a retryable error").
func (r *run) runWithTimeout(ctx context.Context, exec execFunc, input map[string]any, timeout time.Duration) (map[string]any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		output map[string]any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		output, err := exec(attemptCtx, input)
		done <- result{output, err}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-attemptCtx.Done():
		return nil, attemptCtx.Err()
	}
}

func sleep(ms int) {
	if ms <= 0 {
		return
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

// verify implements spec §4.1 step 7: every verification expression must
// evaluate true over {output}.
func (r *run) verify(task model.TaskSpec, output map[string]any) *Failure {
	for _, expr := range task.Verification {
		passed, err := guard.Eval(expr, guard.Env{Output: output})
		if err != nil {
			return r.finishFailed(task, acmerr.ForTask(acmerr.VerificationFailed, task.ID, "invalid verification expression: "+err.Error()))
		}
		r.req.Ledger.Append(ledger.Verification, map[string]any{
			"taskId":     task.ID,
			"expression": expr,
			"passed":     passed,
		})
		if !passed {
			return r.finishFailed(task, acmerr.ForTask(acmerr.VerificationFailed, task.ID, "verification failed: "+expr))
		}
	}
	return nil
}

// finishFailed records the mandated dual ERROR + TASK_END{status:"failed"}
// emission (spec §9's resolution of the source's ambiguity). It returns nil,
// letting the run continue, when some guarded outgoing edge still admits a
// path; otherwise it returns a run-fatal Failure, which ends the run even if
// independent tasks are still pending.
func (r *run) finishFailed(task model.TaskSpec, err *acmerr.Error) *Failure {
	r.recordTaskFailure(task, err)
	if r.anyDownstreamAdmits(task.ID) {
		return nil
	}
	return &Failure{Kind: err.Kind, TaskID: task.ID, Message: err.Message}
}

// finishFailedFatal records the same dual ERROR + TASK_END emission as
// finishFailed but always returns a run-fatal Failure, for outcomes spec §7
// makes unconditionally fatal regardless of downstream compensation edges
// (an ESCALATE postcheck).
func (r *run) finishFailedFatal(task model.TaskSpec, err *acmerr.Error) *Failure {
	r.recordTaskFailure(task, err)
	return &Failure{Kind: err.Kind, TaskID: task.ID, Message: err.Message}
}

func (r *run) recordTaskFailure(task model.TaskSpec, err *acmerr.Error) {
	rec := r.records[task.ID]
	rec.Status = model.TaskFailed
	rec.Error = err.Error()
	r.req.Ledger.Append(ledger.ErrorEvent, map[string]any{
		"kind":    string(err.Kind),
		"taskId":  task.ID,
		"message": err.Message,
	})
	r.req.Ledger.Append(ledger.TaskEnd, map[string]any{
		"taskId":     task.ID,
		"capability": task.Capability,
		"status":     string(model.TaskFailed),
	})
}

// anyDownstreamAdmits reports whether any outgoing edge from taskID could
// still lead to a runnable task, per spec §7's propagation policy: a
// task-fatal error aborts only that task if some outgoing path remains
// reachable via a guard that does not require this task's output.
func (r *run) anyDownstreamAdmits(taskID string) bool {
	env := r.guardEnv()
	for _, e := range r.req.Plan.Edges {
		if e.From != taskID {
			continue
		}
		if e.Guard == "" {
			continue
		}
		ok, err := guard.Eval(e.Guard, env)
		if err == nil && ok {
			return true
		}
	}
	return false
}
