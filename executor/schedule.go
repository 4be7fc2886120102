package executor

import (
	"context"
	"sort"

	"github.com/acmrt/acm/acmerr"
	"github.com/acmrt/acm/guard"
	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/model"
)

// schedule drives the topological loop described in spec §4.1: repeatedly
// pick the ready tasks (ascending taskId for determinism), evaluate their
// eligibility, and run them to a terminal status, until every task is
// terminal or a run-fatal failure occurs.
func (r *run) schedule(ctx context.Context) *Failure {
	for {
		ready := r.readyTasks()
		if len(ready) == 0 {
			return nil
		}
		for _, taskID := range ready {
			task, _ := r.req.Plan.TaskByID(taskID)

			eligible, err := r.evaluateEligibility(task)
			if err != nil {
				return r.recordFailure(err)
			}
			if !eligible {
				r.records[taskID].Status = model.TaskSkipped
				r.maybeCheckpoint(ctx)
				continue
			}

			if failure := r.runTask(ctx, task); failure != nil {
				return failure
			}
			r.maybeCheckpoint(ctx)
		}
	}
}

// readyTasks returns the ids, in ascending order, of every pending task all
// of whose source tasks (per incoming edges) have reached a terminal
// status. A task with no incoming edges is ready immediately.
func (r *run) readyTasks() []string {
	var ready []string
	for _, t := range r.req.Plan.Tasks {
		rec := r.records[t.ID]
		if rec.Status != model.TaskPending {
			continue
		}
		if r.sourcesTerminal(t.ID) {
			ready = append(ready, t.ID)
		}
	}
	sort.Strings(ready)
	return ready
}

func (r *run) sourcesTerminal(taskID string) bool {
	for _, e := range r.req.Plan.IncomingEdges(taskID) {
		src := r.records[e.From]
		if src == nil || !isTerminal(src.Status) {
			return false
		}
	}
	return true
}

func isTerminal(s model.TaskStatus) bool {
	return s == model.TaskSuccess || s == model.TaskFailed || s == model.TaskSkipped
}

// evaluateEligibility implements spec §4.1 step 1: a task is eligible if it
// has no incoming edges, or at least one incoming edge's guard evaluates
// true (an edge without a guard is always true). Every incoming edge is
// evaluated and emits GUARD_EVAL regardless of short-circuiting, so the
// ledger records the full picture.
func (r *run) evaluateEligibility(task model.TaskSpec) (bool, error) {
	edges := r.req.Plan.IncomingEdges(task.ID)
	if len(edges) == 0 {
		return true, nil
	}
	env := r.guardEnv()
	anyTrue := false
	for _, e := range edges {
		result := true
		var err error
		if e.Guard != "" {
			result, err = guard.Eval(e.Guard, env)
			if err != nil {
				return false, acmerr.ForTask(acmerr.PlanInvalid, task.ID, "invalid guard expression: "+err.Error())
			}
		}
		r.req.Ledger.Append(ledger.GuardEval, map[string]any{
			"from":   e.From,
			"to":     e.To,
			"guard":  e.Guard,
			"result": result,
		})
		if result {
			anyTrue = true
		}
	}
	return anyTrue, nil
}

func (r *run) recordFailure(err error) *Failure {
	kind, ok := acmerr.KindOf(err)
	if !ok {
		kind = acmerr.TaskError
	}
	var taskID string
	var e *acmerr.Error
	if errAs(err, &e) {
		taskID = e.TaskID
	}
	r.req.Ledger.Append(ledger.ErrorEvent, map[string]any{
		"kind":    string(kind),
		"taskId":  taskID,
		"message": err.Error(),
	})
	return &Failure{Kind: kind, TaskID: taskID, Message: err.Error()}
}

func errAs(err error, target **acmerr.Error) bool {
	e, ok := err.(*acmerr.Error)
	if ok {
		*target = e
	}
	return ok
}
