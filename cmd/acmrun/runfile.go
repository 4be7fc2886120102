package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acmrt/acm/model"
)

// runFile is the YAML shape accepted by acmrun: a goal, a seed context, and
// a plan. It is a thin, directly-convertible mirror of model.Goal/Context/
// Plan, grounded on the same load-then-convert split the config package
// uses for the runtime's own options.
type runFile struct {
	Goal    goalYAML    `yaml:"goal"`
	Context contextYAML `yaml:"context"`
	Plan    planYAML    `yaml:"plan"`
}

type goalYAML struct {
	ID          string         `yaml:"id"`
	Intent      string         `yaml:"intent"`
	Constraints map[string]any `yaml:"constraints"`
}

type contextYAML struct {
	ID    string         `yaml:"id"`
	Facts map[string]any `yaml:"facts"`
}

type planYAML struct {
	ID                   string     `yaml:"id"`
	ContextRef           string     `yaml:"contextRef"`
	CapabilityMapVersion string     `yaml:"capabilityMapVersion"`
	Rationale            string     `yaml:"rationale"`
	Tasks                []taskYAML `yaml:"tasks"`
	Edges                []edgeYAML `yaml:"edges"`
}

type taskYAML struct {
	ID           string         `yaml:"id"`
	Capability   string         `yaml:"capability"`
	Input        map[string]any `yaml:"input"`
	Retry        retryYAML      `yaml:"retry"`
	Verification []string       `yaml:"verification"`
	Tools        []string       `yaml:"tools"`
}

type retryYAML struct {
	Attempts int               `yaml:"attempts"`
	Backoff  model.BackoffKind `yaml:"backoff"`
	BaseMs   int               `yaml:"baseMs"`
	Jitter   bool              `yaml:"jitter"`
}

type edgeYAML struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Guard string `yaml:"guard"`
}

// loadRunFile reads and parses a run file from path.
func loadRunFile(path string) (runFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return runFile{}, fmt.Errorf("acmrun: reading %s: %w", path, err)
	}
	var rf runFile
	if err := yaml.Unmarshal(raw, &rf); err != nil {
		return runFile{}, fmt.Errorf("acmrun: parsing %s: %w", path, err)
	}
	return rf, nil
}

func (g goalYAML) toModel() model.Goal {
	return model.Goal{ID: g.ID, Intent: g.Intent, Constraints: g.Constraints}
}

func (c contextYAML) toModel() model.Context {
	return model.Context{ID: c.ID, Facts: c.Facts}
}

func (p planYAML) toModel() model.Plan {
	tasks := make([]model.TaskSpec, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		tasks = append(tasks, model.TaskSpec{
			ID:         t.ID,
			Capability: t.Capability,
			Input:      t.Input,
			Retry: model.RetryPolicy{
				Attempts: t.Retry.Attempts,
				Backoff:  t.Retry.Backoff,
				BaseMs:   t.Retry.BaseMs,
				Jitter:   t.Retry.Jitter,
			},
			Verification: t.Verification,
			Tools:        t.Tools,
		})
	}
	edges := make([]model.Edge, 0, len(p.Edges))
	for _, e := range p.Edges {
		edges = append(edges, model.Edge{From: e.From, To: e.To, Guard: e.Guard})
	}
	return model.Plan{
		ID:                   p.ID,
		ContextRef:           p.ContextRef,
		CapabilityMapVersion: p.CapabilityMapVersion,
		Rationale:            p.Rationale,
		Tasks:                tasks,
		Edges:                edges,
	}
}
