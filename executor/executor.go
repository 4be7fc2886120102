// Package executor implements the Plan Executor (spec §4.1): given a goal,
// context, and plan, it runs every task exactly once in an order consistent
// with the plan's edges, applying guards, retries, policy checks, and
// verification, recording every decision into the ledger. Grounded on the
// teacher's Runtime.Run loop shape (runtime/runtime.go) and its
// workflow_policy.go helper decomposition (small, single-purpose functions
// threaded through a struct holding the run's collaborators).
package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/acmrt/acm/acmerr"
	"github.com/acmrt/acm/capability"
	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/guard"
	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/llm"
	"github.com/acmrt/acm/model"
	"github.com/acmrt/acm/policy"
	"github.com/acmrt/acm/retrieval"
	"github.com/acmrt/acm/telemetry"
	"github.com/acmrt/acm/toolregistry"
)

// Request bundles everything one execute() call needs (spec §4.1's
// "(goal, context, plan, registries, hooks)").
type Request struct {
	Goal         model.Goal
	Context      model.Context
	Plan         model.Plan
	Capabilities *capability.Registry
	Tools        *toolregistry.Registry
	Policy       policy.Engine
	LLMCall      llm.Call
	Retrieval    *retrieval.Pipeline
	Ledger       *ledger.Ledger
	Telemetry    telemetry.Telemetry

	// Checkpoints, when non-nil, enables the resumable execution layer:
	// a checkpoint is written after every CheckpointInterval completed
	// tasks (default 1).
	Checkpoints        checkpoint.Store
	CheckpointInterval int
	RunID              string

	// MaxContextTokens and MaxQueryRounds bound every task's nucleus.
	MaxContextTokens int
	MaxQueryRounds   int

	// MaxPreflightRounds bounds the preflight/retrieval loop of step 4
	// before a task fails with ContextUnavailable. Default 3.
	MaxPreflightRounds int

	// ResumeFrom, when set, loads this checkpoint index before scheduling
	// begins (spec §4.4 resume algorithm).
	ResumeFrom *int
}

// Result is the outcome of Execute: the per-task outputs produced so far,
// the complete ledger, and, on a run-fatal outcome, the failure that ended
// the run (spec §7 "aggregate result").
type Result struct {
	OutputsByTask map[string]TaskOutput
	Ledger        *ledger.Ledger
	Failure       *Failure
}

// TaskOutput is the public per-task result shape (spec §4.1: "outputsByTask
// is a mapping taskId -> {output, narrative?}").
type TaskOutput struct {
	Output    map[string]any
	Narrative string
}

// Failure describes why a run ended without completing every task.
type Failure struct {
	Kind    acmerr.Kind
	TaskID  string
	Message string
}

// run carries the mutable state of one Execute call: the task table, the
// current context (which may be replaced by retrieval promotions), and the
// collaborators from Request. Splitting this out of Request keeps the
// public contract immutable while the scheduler mutates run state freely.
type run struct {
	req Request

	ctxData model.Context
	records map[string]*model.TaskRecord
	outputs map[string]map[string]any

	completedCount int
	checkpointIdx  int

	// lastPolicyLimits holds the most recent task.pre decision's limits, so
	// runTask can apply a policy-tightened retry count and executeWithRetry a
	// policy-set timeout (spec §4.1 step 5).
	lastPolicyLimits *model.PolicyLimits
}

// Execute runs req.Plan to completion or to its first run-fatal failure.
func Execute(ctx context.Context, req Request) (Result, error) {
	if req.Ledger == nil {
		req.Ledger = ledger.New(nil)
	}
	if req.Policy == nil {
		req.Policy = policy.NoopEngine{}
	}
	if req.Telemetry.Logger == nil {
		req.Telemetry = telemetry.Noop()
	}
	if req.CheckpointInterval <= 0 {
		req.CheckpointInterval = 1
	}
	if req.MaxPreflightRounds <= 0 {
		req.MaxPreflightRounds = 3
	}

	if err := validatePlan(req.Plan, req.Capabilities); err != nil {
		return Result{Ledger: req.Ledger}, err
	}

	r := &run{
		req:     req,
		ctxData: req.Context,
		records: make(map[string]*model.TaskRecord, len(req.Plan.Tasks)),
		outputs: make(map[string]map[string]any, len(req.Plan.Tasks)),
	}
	for _, t := range req.Plan.Tasks {
		r.records[t.ID] = &model.TaskRecord{TaskID: t.ID, Status: model.TaskPending}
	}

	if req.ResumeFrom != nil {
		if err := r.resumeFromCheckpoint(ctx, *req.ResumeFrom); err != nil {
			return Result{Ledger: req.Ledger}, err
		}
	} else {
		contextRef, err := r.ctxData.ContextRef()
		if err != nil {
			return Result{Ledger: req.Ledger}, fmt.Errorf("executor: hashing context: %w", err)
		}
		req.Ledger.Append(ledger.PlanSelected, map[string]any{
			"planId":     req.Plan.ID,
			"goalId":     req.Goal.ID,
			"contextRef": contextRef,
		})
	}

	if decision, err := req.Policy.Evaluate(ctx, policy.ActionPlanAdmit, policy.PlanAdmitPayload{Plan: req.Plan, Goal: req.Goal}); err != nil {
		return r.result(), err
	} else if !decision.Allow {
		return r.fail(acmerr.ForTask(acmerr.PolicyDenied, "", decision.Reason))
	}

	failure := r.schedule(ctx)
	if failure != nil {
		return r.failResult(failure), nil
	}
	return r.result(), nil
}

// validatePlan rejects cycles, dangling edges, and unknown capabilities
// before any task runs (spec §4.1 "PlanInvalid").
func validatePlan(plan model.Plan, capabilities *capability.Registry) error {
	known := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		known[t.ID] = true
		if capabilities != nil {
			if _, ok := capabilities.Resolve(t.Capability); !ok {
				return acmerr.ForTask(acmerr.PlanInvalid, t.ID, fmt.Sprintf("unknown capability %q", t.Capability))
			}
		}
	}
	for _, e := range plan.Edges {
		if !known[e.From] || !known[e.To] {
			return acmerr.New(acmerr.PlanInvalid, fmt.Sprintf("dangling edge %s->%s", e.From, e.To))
		}
	}
	if hasCycle(plan) {
		return acmerr.New(acmerr.PlanInvalid, "plan contains a cycle")
	}
	return nil
}

func hasCycle(plan model.Plan) bool {
	adj := make(map[string][]string, len(plan.Tasks))
	for _, e := range plan.Edges {
		adj[e.From] = append(adj[e.From], e.To)
	}
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(plan.Tasks))
	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, next := range adj[id] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	ids := make([]string, 0, len(plan.Tasks))
	for _, t := range plan.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

func (r *run) result() Result {
	out := make(map[string]TaskOutput, len(r.outputs))
	for id, output := range r.outputs {
		rec := r.records[id]
		out[id] = TaskOutput{Output: output, Narrative: rec.Narrative}
	}
	return Result{OutputsByTask: out, Ledger: r.req.Ledger}
}

func (r *run) failResult(f *Failure) Result {
	res := r.result()
	res.Failure = f
	return res
}

func (r *run) fail(err *acmerr.Error) (Result, error) {
	return r.failResult(&Failure{Kind: err.Kind, TaskID: err.TaskID, Message: err.Message}), nil
}

func (r *run) maybeCheckpoint(ctx context.Context) {
	if r.req.Checkpoints == nil || r.req.RunID == "" {
		return
	}
	r.completedCount++
	if r.completedCount%r.req.CheckpointInterval != 0 {
		return
	}
	r.checkpointIdx++
	chk := model.Checkpoint{
		RunID:            r.req.RunID,
		Index:            r.checkpointIdx,
		CreatedAt:        time.Now().UnixNano(),
		Plan:             r.req.Plan,
		Goal:             r.req.Goal,
		Context:          r.ctxData,
		CompletedOutputs: r.completedOutputs(),
		LedgerPrefix:     ledgerRefs(r.req.Ledger.Entries()),
	}
	if err := r.req.Checkpoints.Save(ctx, r.req.RunID, r.checkpointIdx, chk); err != nil {
		r.req.Telemetry.Logger.Error(ctx, "checkpoint save failed", "runId", r.req.RunID, "index", r.checkpointIdx, "error", err)
		return
	}
	r.req.Ledger.Append(ledger.CheckpointWritten, map[string]any{
		"runId": r.req.RunID,
		"index": r.checkpointIdx,
	})
}

func (r *run) completedOutputs() map[string]model.TaskRecord {
	out := make(map[string]model.TaskRecord, len(r.records))
	for id, rec := range r.records {
		if rec.Status == model.TaskSuccess {
			out[id] = *rec
		}
	}
	return out
}

func ledgerRefs(entries []ledger.Entry) []model.LedgerEntryRef {
	out := make([]model.LedgerEntryRef, len(entries))
	for i, e := range entries {
		out[i] = model.LedgerEntryRef{ID: e.ID, TS: e.TS, Type: string(e.Type), Details: e.Details}
	}
	return out
}

// resumeFromCheckpoint loads a stored checkpoint and seeds run state from it
// (spec §4.4 resume algorithm steps 1-3). Step 4, re-running scheduling, is
// handled by the normal call to r.schedule in Execute.
func (r *run) resumeFromCheckpoint(ctx context.Context, index int) error {
	if r.req.Checkpoints == nil || r.req.RunID == "" {
		return acmerr.New(acmerr.PlanInvalid, "resume requested without a checkpoint store or runId")
	}
	chk, err := r.req.Checkpoints.Load(ctx, r.req.RunID, index)
	if err != nil {
		return fmt.Errorf("executor: loading checkpoint %s/%d: %w", r.req.RunID, index, err)
	}
	if chk.Plan.ID != r.req.Plan.ID || chk.Goal.ID != r.req.Goal.ID {
		return acmerr.New(acmerr.PlanInvalid, "checkpoint plan/goal id does not match current call")
	}
	r.ctxData = chk.Context
	r.checkpointIdx = chk.Index
	for id, rec := range chk.CompletedOutputs {
		copyRec := rec
		r.records[id] = &copyRec
		if output, ok := rec.Output.(map[string]any); ok {
			r.outputs[id] = output
		}
		r.completedCount++
	}
	r.req.Ledger.Append(ledger.TaskResumed, map[string]any{
		"runId":        r.req.RunID,
		"checkpointId": fmt.Sprintf("chk-%d", chk.Index),
	})
	return nil
}

// guardEnv builds the guard.Env used to evaluate edge guards: {context,
// outputs, policy}.
func (r *run) guardEnv() guard.Env {
	outputs := make(map[string]any, len(r.outputs))
	for id, o := range r.outputs {
		outputs[id] = o
	}
	policyView := make(map[string]any, len(r.records))
	for id, rec := range r.records {
		policyView[id] = map[string]any{"status": string(rec.Status)}
	}
	return guard.Env{Context: r.ctxData.Facts, Outputs: outputs, Policy: policyView}
}
