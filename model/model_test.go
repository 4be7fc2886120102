package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArtifactIDIsStableAndContentAddressed(t *testing.T) {
	id1, err := ArtifactID("doc", map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	id2, err := ArtifactID("doc", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	require.Equal(t, id1, id2, "key order must not affect content address")

	id3, err := ArtifactID("doc", map[string]any{"a": 1, "b": 3})
	require.NoError(t, err)
	require.NotEqual(t, id1, id3)

	id4, err := ArtifactID("other", map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	require.NotEqual(t, id1, id4, "artifact type participates in the content address")
}

func TestContextRefChangesWithFactsOrAugmentations(t *testing.T) {
	c := Context{ID: "c1", Facts: map[string]any{"x": 1}}
	ref1, err := c.ContextRef()
	require.NoError(t, err)

	withAug := c.WithAugmentation(Artifact{ID: "a1", Type: "doc", Content: "hello"})
	ref2, err := withAug.ContextRef()
	require.NoError(t, err)
	require.NotEqual(t, ref1, ref2)
	require.Equal(t, 1, withAug.Version)
	require.Equal(t, 0, c.Version, "WithAugmentation must not mutate the receiver")
}

func TestInternalContextScopeAppendIsIdempotentAndBudgeted(t *testing.T) {
	s := NewInternalContextScope("t1", 2, 0)
	ok, truncated := s.Append(Artifact{ID: "a1", SizeBytes: 10})
	require.True(t, ok)
	require.False(t, truncated)

	ok, truncated = s.Append(Artifact{ID: "a1", SizeBytes: 10})
	require.False(t, ok)
	require.False(t, truncated)
	require.Equal(t, 10, s.SizeBytes())

	_, _ = s.Append(Artifact{ID: "a2"})
	ok, truncated = s.Append(Artifact{ID: "a3"})
	require.False(t, ok)
	require.True(t, truncated, "third artifact exceeds maxArtifacts=2")
}

func TestInternalContextScopePromoteIsIdempotent(t *testing.T) {
	s := NewInternalContextScope("t1", 0, 0)
	s.Append(Artifact{ID: "a1"})
	s.Append(Artifact{ID: "a2"})

	require.True(t, s.Promote("a1"))
	require.False(t, s.Promote("a1"))

	unpromoted := s.Unpromoted()
	require.Len(t, unpromoted, 1)
	require.Equal(t, "a2", unpromoted[0].ID)
}

func TestRetryPolicyWithDefaults(t *testing.T) {
	r := RetryPolicy{}.WithDefaults()
	require.Equal(t, 1, r.Attempts)
	require.Equal(t, BackoffFixed, r.Backoff)

	explicit := RetryPolicy{Attempts: 5, Backoff: BackoffExp}.WithDefaults()
	require.Equal(t, 5, explicit.Attempts)
	require.Equal(t, BackoffExp, explicit.Backoff)
}

func TestPlanTaskByIDAndIncomingEdges(t *testing.T) {
	p := Plan{
		Tasks: []TaskSpec{{ID: "t1"}, {ID: "t2"}},
		Edges: []Edge{{From: "t1", To: "t2", Guard: "true"}},
	}
	task, ok := p.TaskByID("t2")
	require.True(t, ok)
	require.Equal(t, "t2", task.ID)

	_, ok = p.TaskByID("missing")
	require.False(t, ok)

	edges := p.IncomingEdges("t2")
	require.Len(t, edges, 1)
	require.Equal(t, "t1", edges[0].From)
}
