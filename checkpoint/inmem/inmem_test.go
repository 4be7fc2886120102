package inmem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/model"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	s := New()
	chk := model.Checkpoint{RunID: "r1", Index: 1, Plan: model.Plan{ID: "p1"}}
	require.NoError(t, s.Save(context.Background(), "r1", 1, chk))

	got, err := s.Load(context.Background(), "r1", 1)
	require.NoError(t, err)
	require.Equal(t, chk, got)
}

func TestSaveRejectsCollision(t *testing.T) {
	s := New()
	require.NoError(t, s.Save(context.Background(), "r1", 1, model.Checkpoint{RunID: "r1", Index: 1}))
	err := s.Save(context.Background(), "r1", 1, model.Checkpoint{RunID: "r1", Index: 1})
	require.Error(t, err)

	got, loadErr := s.Load(context.Background(), "r1", 1)
	require.NoError(t, loadErr)
	require.Equal(t, model.Checkpoint{RunID: "r1", Index: 1}, got, "the original checkpoint must be left untouched")
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "r1", 1)
	var notFound *checkpoint.ErrNotFound
	require.True(t, errors.As(err, &notFound))
}

func TestListAndLatestAreAscendingPerRun(t *testing.T) {
	s := New()
	require.NoError(t, s.Save(context.Background(), "r1", 2, model.Checkpoint{}))
	require.NoError(t, s.Save(context.Background(), "r1", 1, model.Checkpoint{}))
	require.NoError(t, s.Save(context.Background(), "r2", 5, model.Checkpoint{}))

	indices, err := s.List(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, indices)

	latest, ok, err := s.Latest(context.Background(), "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, latest)

	_, ok, err = s.Latest(context.Background(), "unknown-run")
	require.NoError(t, err)
	require.False(t, ok)
}
