package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmrt/acm/capability"
	"github.com/acmrt/acm/checkpoint/inmem"
	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/llm"
	"github.com/acmrt/acm/model"
	"github.com/acmrt/acm/policy"
)

func echoTask(ctx context.Context, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out, nil
}

func newRegistry(t *testing.T, names ...string) *capability.Registry {
	t.Helper()
	reg := capability.NewRegistry()
	for _, name := range names {
		require.NoError(t, reg.Register(capability.Metadata{Name: name}, capability.TaskFunc(echoTask)))
	}
	return reg
}

func TestExecuteRunsLinearPlanToCompletion(t *testing.T) {
	plan := model.Plan{
		ID: "p1",
		Tasks: []model.TaskSpec{
			{ID: "t1", Capability: "echo", Input: map[string]any{"n": 1}},
			{ID: "t2", Capability: "echo", Input: map[string]any{"n": 2}},
		},
		Edges: []model.Edge{{From: "t1", To: "t2"}},
	}
	result, err := Execute(context.Background(), Request{
		Goal:         model.Goal{ID: "g1"},
		Plan:         plan,
		Capabilities: newRegistry(t, "echo"),
	})
	require.NoError(t, err)
	require.Nil(t, result.Failure)
	require.Equal(t, map[string]any{"n": 1}, result.OutputsByTask["t1"].Output)
	require.Equal(t, map[string]any{"n": 2}, result.OutputsByTask["t2"].Output)

	var starts, ends int
	for _, e := range result.Ledger.Entries() {
		switch e.Type {
		case ledger.TaskStart:
			starts++
		case ledger.TaskEnd:
			ends++
			require.Equal(t, "succeeded", e.Details["status"])
		}
	}
	require.Equal(t, 2, starts)
	require.Equal(t, 2, ends)
}

func TestExecuteSkipsTaskWhenGuardFalse(t *testing.T) {
	plan := model.Plan{
		ID: "p1",
		Tasks: []model.TaskSpec{
			{ID: "t1", Capability: "echo", Input: map[string]any{"ok": false}},
			{ID: "t2", Capability: "echo"},
		},
		Edges: []model.Edge{{From: "t1", To: "t2", Guard: `outputs.t1.ok === true`}},
	}
	result, err := Execute(context.Background(), Request{
		Plan:         plan,
		Capabilities: newRegistry(t, "echo"),
	})
	require.NoError(t, err)
	require.Nil(t, result.Failure)
	_, ran := result.OutputsByTask["t2"]
	require.False(t, ran, "t2 must be skipped when its guard is false")
}

func TestExecuteRejectsPlanWithCycle(t *testing.T) {
	plan := model.Plan{
		Tasks: []model.TaskSpec{{ID: "t1", Capability: "echo"}, {ID: "t2", Capability: "echo"}},
		Edges: []model.Edge{{From: "t1", To: "t2"}, {From: "t2", To: "t1"}},
	}
	_, err := Execute(context.Background(), Request{Plan: plan, Capabilities: newRegistry(t, "echo")})
	require.Error(t, err)
}

func TestExecuteRejectsUnknownCapability(t *testing.T) {
	plan := model.Plan{Tasks: []model.TaskSpec{{ID: "t1", Capability: "does-not-exist"}}}
	_, err := Execute(context.Background(), Request{Plan: plan, Capabilities: capability.NewRegistry()})
	require.Error(t, err)
}

func TestExecuteRetriesFailingTaskThenSucceeds(t *testing.T) {
	attempts := 0
	flaky := capability.TaskFunc(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		attempts++
		if attempts < 3 {
			return nil, context.Canceled
		}
		return map[string]any{"attempt": attempts}, nil
	})
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(capability.Metadata{Name: "flaky"}, flaky))

	plan := model.Plan{
		Tasks: []model.TaskSpec{{
			ID:         "t1",
			Capability: "flaky",
			Retry:      model.RetryPolicy{Attempts: 3, Backoff: model.BackoffFixed, BaseMs: 0},
		}},
	}
	result, err := Execute(context.Background(), Request{Plan: plan, Capabilities: reg})
	require.NoError(t, err)
	require.Nil(t, result.Failure)
	require.Equal(t, 3, attempts)
	require.Equal(t, float64(3), toFloat(result.OutputsByTask["t1"].Output["attempt"]))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case float64:
		return n
	default:
		return -1
	}
}

func TestExecuteFailsRunWhenNoDownstreamAdmits(t *testing.T) {
	alwaysFails := capability.TaskFunc(func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, context.Canceled
	})
	reg := capability.NewRegistry()
	require.NoError(t, reg.Register(capability.Metadata{Name: "fails"}, alwaysFails))

	plan := model.Plan{
		Tasks: []model.TaskSpec{{ID: "t1", Capability: "fails", Retry: model.RetryPolicy{Attempts: 1}}},
	}
	result, err := Execute(context.Background(), Request{Plan: plan, Capabilities: reg})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	require.Equal(t, "t1", result.Failure.TaskID)
}

func TestExecuteFailsRunOnVerificationFailure(t *testing.T) {
	plan := model.Plan{
		Tasks: []model.TaskSpec{{
			ID:           "t1",
			Capability:   "echo",
			Input:        map[string]any{"ok": false},
			Verification: []string{`output.ok === true`},
		}},
	}
	result, err := Execute(context.Background(), Request{Plan: plan, Capabilities: newRegistry(t, "echo")})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	require.Equal(t, "t1", result.Failure.TaskID)
}

func TestExecuteTreatsEscalatePostcheckAsUnconditionallyRunFatal(t *testing.T) {
	escalate := func(ctx context.Context, prompt string, tools []llm.ToolSpec, cfg llm.Config) (llm.Result, error) {
		return llm.Result{ToolCalls: []llm.ToolCall{{
			Name:  "postcheck_result",
			Input: map[string]any{"status": "ESCALATE", "reason": "ambiguous"},
		}}}, nil
	}
	plan := model.Plan{
		Tasks: []model.TaskSpec{
			{ID: "t1", Capability: "echo"},
			{ID: "t2", Capability: "echo"},
		},
		// The guard never references t1's output, so a downstream path would
		// otherwise remain admitted; ESCALATE must fail the run regardless.
		Edges: []model.Edge{{From: "t1", To: "t2", Guard: `true`}},
	}
	result, err := Execute(context.Background(), Request{
		Plan:         plan,
		Capabilities: newRegistry(t, "echo"),
		LLMCall:      escalate,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	require.Equal(t, "t1", result.Failure.TaskID)
	_, ran := result.OutputsByTask["t2"]
	require.False(t, ran, "an ESCALATE postcheck must not fall through to a compensation edge")
}

type recordingPolicyEngine struct {
	calls []policy.Action
	deny  policy.Action
}

func (p *recordingPolicyEngine) Evaluate(ctx context.Context, action policy.Action, payload any) (model.PolicyDecision, error) {
	p.calls = append(p.calls, action)
	if action == p.deny {
		return model.PolicyDecision{Allow: false, Reason: "denied for test"}, nil
	}
	return model.PolicyDecision{Allow: true}, nil
}

func TestExecuteEvaluatesPolicyPostAfterVerification(t *testing.T) {
	plan := model.Plan{Tasks: []model.TaskSpec{{ID: "t1", Capability: "echo"}}}
	eng := &recordingPolicyEngine{}
	result, err := Execute(context.Background(), Request{
		Plan:         plan,
		Capabilities: newRegistry(t, "echo"),
		Policy:       eng,
	})
	require.NoError(t, err)
	require.Nil(t, result.Failure)
	require.Contains(t, eng.calls, policy.ActionTaskPost)

	var posts int
	for _, e := range result.Ledger.Entries() {
		if e.Type == ledger.PolicyPost {
			posts++
			require.Equal(t, true, e.Details["allowed"])
		}
	}
	require.Equal(t, 1, posts)
}

func TestExecuteFailsTaskWhenPolicyPostDenies(t *testing.T) {
	plan := model.Plan{Tasks: []model.TaskSpec{{ID: "t1", Capability: "echo"}}}
	eng := &recordingPolicyEngine{deny: policy.ActionTaskPost}
	result, err := Execute(context.Background(), Request{
		Plan:         plan,
		Capabilities: newRegistry(t, "echo"),
		Policy:       eng,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Failure)
	require.Equal(t, "t1", result.Failure.TaskID)
}

func TestExecuteCheckpointsAndResumes(t *testing.T) {
	fullPlan := model.Plan{
		ID: "p1",
		Tasks: []model.TaskSpec{
			{ID: "t1", Capability: "echo", Input: map[string]any{"n": 1}},
			{ID: "t2", Capability: "echo", Input: map[string]any{"n": 2}},
		},
		Edges: []model.Edge{{From: "t1", To: "t2"}},
	}
	goal := model.Goal{ID: "g1"}
	store := inmem.New()

	result, err := Execute(context.Background(), Request{
		Goal:               goal,
		Plan:               fullPlan,
		Capabilities:       newRegistry(t, "echo"),
		Checkpoints:        store,
		CheckpointInterval: 1,
		RunID:              "run-1",
	})
	require.NoError(t, err)
	require.Nil(t, result.Failure)

	latest, ok, err := store.Latest(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, latest)

	resumeFrom := 1
	resumed, err := Execute(context.Background(), Request{
		Goal:         goal,
		Plan:         fullPlan,
		Capabilities: newRegistry(t, "echo"),
		Checkpoints:  store,
		RunID:        "run-1",
		ResumeFrom:   &resumeFrom,
	})
	require.NoError(t, err)
	require.Nil(t, resumed.Failure)
	require.Equal(t, map[string]any{"n": 2}, resumed.OutputsByTask["t2"].Output)
}
