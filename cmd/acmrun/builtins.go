package main

import (
	"context"
	"time"

	"github.com/acmrt/acm/capability"
)

// registerBuiltins binds a small set of diagnostic capabilities useful for
// exercising a plan end to end without a domain-specific capability set.
// Real deployments register their own capabilities against reg before
// calling run; these exist so acmrun is runnable standalone.
func registerBuiltins(reg *capability.Registry) error {
	if err := reg.Register(capability.Metadata{Name: "echo"}, capability.TaskFunc(echoTask)); err != nil {
		return err
	}
	return reg.Register(capability.Metadata{Name: "sleep"}, capability.TaskFunc(sleepTask))
}

// echoTask returns its input unchanged as output, useful for wiring up a
// plan's guard/verification expressions against known values.
func echoTask(ctx context.Context, input map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out, nil
}

// sleepTask blocks for input["ms"] milliseconds, honoring ctx cancellation.
func sleepTask(ctx context.Context, input map[string]any) (map[string]any, error) {
	ms, _ := input["ms"].(int)
	if ms <= 0 {
		if f, ok := input["ms"].(float64); ok {
			ms = int(f)
		}
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return map[string]any{"slept_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
