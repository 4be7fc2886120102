package acmerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorStringIncludesTaskID(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "no task", err: New(PlanInvalid, "cycle detected"), want: "PlanInvalid: cycle detected"},
		{name: "with task", err: ForTask(VerificationFailed, "t1", "expr false"), want: "VerificationFailed[t1]: expr false"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(TaskError, "t1", cause)
	require.Equal(t, cause, errors.Unwrap(err))
	require.ErrorIs(t, err, cause)
}

func TestIsMatchesByKindOnly(t *testing.T) {
	a := ForTask(PolicyDenied, "t1", "denied")
	b := ForTask(PolicyDenied, "t2", "different message")
	c := ForTask(TaskError, "t1", "denied")

	require.True(t, errors.Is(a, b))
	require.False(t, errors.Is(a, c))
}

func TestKindOfExtractsKindThroughWrapping(t *testing.T) {
	inner := ForTask(ContextUnavailable, "t1", "no provider")
	outer := errors.New("context: " + inner.Error())

	kind, ok := KindOf(inner)
	require.True(t, ok)
	require.Equal(t, ContextUnavailable, kind)

	kind, ok = KindOf(fmt.Errorf("context: %w", inner))
	require.True(t, ok)
	require.Equal(t, ContextUnavailable, kind)

	_, ok = KindOf(outer)
	require.False(t, ok)
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := Errorf(TaskError, "t1", "attempt %d of %d failed", 2, 3)
	require.Equal(t, "TaskError[t1]: attempt 2 of 3 failed", err.Error())
}
