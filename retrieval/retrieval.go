// Package retrieval implements the Context Retrieval Pipeline (spec §4.3):
// matching free-form retrieval directives to registered provider tools,
// fulfilling them, and promoting returned artifacts into scope and/or
// context with provenance, deduplication, and per-provider artifact
// budgets. Grounded on the teacher's reminder.Engine (rate-limited,
// tier-aware emission bookkeeping, reminder/engine.go) and tools.ToolSpec
// registration shape (tools/spec.go), adapted from prompt-reminder
// injection to directive-to-artifact resolution.
package retrieval

import (
	"context"
	"fmt"

	"github.com/acmrt/acm/ledger"
	"github.com/acmrt/acm/model"
)

// Provider matches a directive, builds tool input from it, and calls the
// bound tool to produce artifacts. Providers are first-match-wins in
// registration order (spec §4.3).
type Provider struct {
	// Match reports whether this provider handles the given directive.
	Match func(directive string) bool
	// BuildInput constructs the tool input from the directive and the
	// current context.
	BuildInput func(directive string, ctx model.Context) (map[string]any, error)
	// Call invokes the bound provider tool, returning one or more artifacts.
	Call func(ctx context.Context, input map[string]any) ([]model.Artifact, error)
	// AutoPromote, when true, promotes every artifact this provider returns
	// into Context.augmentations regardless of the artifact's own Promote flag.
	AutoPromote bool
	// MaxArtifacts caps how many artifacts from one Call are kept; zero means
	// unlimited.
	MaxArtifacts int
	// Describe returns a human-readable description of the provider. The
	// pipeline itself never calls it.
	Describe func() string
}

// Pipeline holds the registered providers and resolves directives against
// a task's scope and the run's context.
type Pipeline struct {
	providers []Provider
	ledger    *ledger.Ledger
}

// New creates a Pipeline that emits CONTEXT_INTERNALIZED entries to led.
func New(led *ledger.Ledger) *Pipeline {
	return &Pipeline{ledger: led}
}

// Register adds a provider. Matching is first-match-wins in registration
// order, so registration order is significant.
func (p *Pipeline) Register(prov Provider) {
	p.providers = append(p.providers, prov)
}

// Fulfill resolves each directive in order, appending resolved artifacts to
// scope and, when promoted, producing a new Context. It returns the
// (possibly unchanged) resulting Context.
//
// Within one Fulfill call providers are invoked sequentially to preserve
// deterministic artifact ordering (spec §4.3 "Concurrency").
func (p *Pipeline) Fulfill(ctx context.Context, directives []string, scope *model.InternalContextScope, ctxData model.Context) (model.Context, error) {
	for _, directive := range directives {
		p.ledger.Append(ledger.ContextInternalized, map[string]any{
			"status":    "requested",
			"directive": directive,
		})

		prov, ok := p.find(directive)
		if !ok {
			p.ledger.Append(ledger.ContextInternalized, map[string]any{
				"status":    "unmatched",
				"directive": directive,
			})
			continue
		}

		input, err := prov.BuildInput(directive, ctxData)
		if err != nil {
			p.ledger.Append(ledger.ContextInternalized, map[string]any{
				"status":    "failed",
				"directive": directive,
				"error":     err.Error(),
			})
			continue
		}

		artifacts, err := prov.Call(ctx, input)
		if err != nil {
			p.ledger.Append(ledger.ContextInternalized, map[string]any{
				"status":    "failed",
				"directive": directive,
				"error":     err.Error(),
			})
			continue
		}

		truncated := false
		if prov.MaxArtifacts > 0 && len(artifacts) > prov.MaxArtifacts {
			artifacts = artifacts[:prov.MaxArtifacts]
			truncated = true
		}

		var resolvedIDs []string
		for _, a := range artifacts {
			id, err := model.ArtifactID(a.Type, a.Content)
			if err != nil {
				return ctxData, fmt.Errorf("retrieval: hashing artifact: %w", err)
			}
			a.ID = id

			added, dropped := scope.Append(a)
			if dropped {
				// The scope's own budget refused it; it is not resolved.
				truncated = true
				continue
			}
			if !added {
				// Already present: idempotent per spec §4.3 step 4.
				resolvedIDs = append(resolvedIDs, id)
				continue
			}
			resolvedIDs = append(resolvedIDs, id)

			if (a.Promote || prov.AutoPromote) && !ctxData.HasAugmentation(id) {
				ctxData = ctxData.WithAugmentation(a)
				scope.Promote(id)
			}
		}

		if truncated {
			p.ledger.Append(ledger.ContextInternalized, map[string]any{
				"status":    "truncated",
				"directive": directive,
			})
		}

		p.ledger.Append(ledger.ContextInternalized, map[string]any{
			"status":      "resolved",
			"directive":   directive,
			"artifactIds": resolvedIDs,
		})
	}
	return ctxData, nil
}

func (p *Pipeline) find(directive string) (Provider, bool) {
	for _, prov := range p.providers {
		if prov.Match(directive) {
			return prov, true
		}
	}
	return Provider{}, false
}
