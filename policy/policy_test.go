package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopEngineAlwaysAllows(t *testing.T) {
	decision, err := NoopEngine{}.Evaluate(context.Background(), ActionTaskPre, TaskPrePayload{TaskID: "t1"})
	require.NoError(t, err)
	require.True(t, decision.Allow)
	require.Nil(t, decision.Limits)
}

func TestCapsStateEnforcesMaxToolCalls(t *testing.T) {
	c := &CapsState{MaxToolCalls: 2, RemainingToolCalls: 2}
	require.True(t, c.RecordToolCall(false))
	require.True(t, c.RecordToolCall(false))
	require.False(t, c.RecordToolCall(false), "third call exceeds the budget")
}

func TestCapsStateResetsConsecutiveFailuresOnSuccess(t *testing.T) {
	c := &CapsState{MaxConsecutiveFailedToolCalls: 1, RemainingConsecutiveFailedToolCalls: 1}
	require.True(t, c.RecordToolCall(true))
	require.True(t, c.RecordToolCall(false), "a success resets the consecutive-failure budget")
	require.True(t, c.RecordToolCall(true))
	require.False(t, c.RecordToolCall(true), "two consecutive failures exceed the budget of one")
}

func TestCapsStateZeroValueIsUnbounded(t *testing.T) {
	c := &CapsState{}
	for i := 0; i < 100; i++ {
		require.True(t, c.RecordToolCall(true))
	}
}
