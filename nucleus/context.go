package nucleus

import "context"

// nucleusCtxKey is the private context key used to stash the bound Nucleus
// inside the context passed to a task's capability.Task.Execute, so a task
// body can call back into its own nucleus.Invoke when it needs reasoning
// mid-execution (spec §9 "the task body MAY invoke the nucleus multiple
// times"). Grounded on the teacher's WithWorkflowContext/
// WorkflowContextFromContext pair (engine/context.go).
type nucleusCtxKey struct{}

// WithContext returns a child context carrying n, for the executor to pass
// to a task's Execute call.
func WithContext(ctx context.Context, n *Nucleus) context.Context {
	return context.WithValue(ctx, nucleusCtxKey{}, n)
}

// FromContext extracts the Nucleus bound to ctx, if any.
func FromContext(ctx context.Context) (*Nucleus, bool) {
	n, ok := ctx.Value(nucleusCtxKey{}).(*Nucleus)
	return n, ok
}
