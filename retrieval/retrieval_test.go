package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/model"
)

func TestFulfillResolvesMatchingProviderAndPromotes(t *testing.T) {
	led := ledger.New(nil)
	p := New(led)
	p.Register(Provider{
		Match:      func(d string) bool { return d == "need:docs" },
		BuildInput: func(d string, ctx model.Context) (map[string]any, error) { return nil, nil },
		Call: func(ctx context.Context, input map[string]any) ([]model.Artifact, error) {
			return []model.Artifact{{Type: "doc", Content: "hello", Promote: true}}, nil
		},
	})

	scope := model.NewInternalContextScope("t1", 0, 0)
	ctxData, err := p.Fulfill(context.Background(), []string{"need:docs"}, scope, model.Context{ID: "c1"})
	require.NoError(t, err)
	require.Len(t, ctxData.Augmentations, 1)
	require.Len(t, scope.Artifacts(), 1)

	var statuses []string
	for _, e := range led.Entries() {
		if e.Type == ledger.ContextInternalized {
			statuses = append(statuses, e.Details["status"].(string))
		}
	}
	require.Equal(t, []string{"requested", "resolved"}, statuses)
}

func TestFulfillRecordsUnmatchedDirective(t *testing.T) {
	led := ledger.New(nil)
	p := New(led)
	scope := model.NewInternalContextScope("t1", 0, 0)

	_, err := p.Fulfill(context.Background(), []string{"need:unknown"}, scope, model.Context{})
	require.NoError(t, err)

	var statuses []string
	for _, e := range led.Entries() {
		statuses = append(statuses, e.Details["status"].(string))
	}
	require.Equal(t, []string{"requested", "unmatched"}, statuses)
}

func TestFulfillDeduplicatesArtifactsAcrossDirectives(t *testing.T) {
	led := ledger.New(nil)
	p := New(led)
	calls := 0
	p.Register(Provider{
		Match:      func(string) bool { return true },
		BuildInput: func(d string, ctx model.Context) (map[string]any, error) { return nil, nil },
		Call: func(ctx context.Context, input map[string]any) ([]model.Artifact, error) {
			calls++
			return []model.Artifact{{Type: "doc", Content: "same"}}, nil
		},
	})

	scope := model.NewInternalContextScope("t1", 0, 0)
	_, err := p.Fulfill(context.Background(), []string{"a", "b"}, scope, model.Context{})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, scope.Artifacts(), 1, "identical content must be de-duplicated by content address")
}

func TestFulfillTruncatesAtMaxArtifacts(t *testing.T) {
	led := ledger.New(nil)
	p := New(led)
	p.Register(Provider{
		Match:        func(string) bool { return true },
		BuildInput:   func(d string, ctx model.Context) (map[string]any, error) { return nil, nil },
		MaxArtifacts: 1,
		Call: func(ctx context.Context, input map[string]any) ([]model.Artifact, error) {
			return []model.Artifact{{Type: "doc", Content: "a"}, {Type: "doc", Content: "b"}}, nil
		},
	})

	scope := model.NewInternalContextScope("t1", 0, 0)
	_, err := p.Fulfill(context.Background(), []string{"x"}, scope, model.Context{})
	require.NoError(t, err)
	require.Len(t, scope.Artifacts(), 1)

	var sawTruncated bool
	for _, e := range led.Entries() {
		if e.Details["status"] == "truncated" {
			sawTruncated = true
		}
	}
	require.True(t, sawTruncated)
}
