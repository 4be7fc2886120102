// Package capability implements the capability registry external interface
// (spec §6): named, versioned bindings from a capability name to an
// executable Task implementation, with optional JSON Schema validation of
// task input/output. Grounded on the teacher's tools.ToolSpec/TypeSpec
// metadata shape (tools/spec.go), adapted from tool metadata to task
// capability metadata.
package capability

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Task is the executable implementation bound to a capability name.
type Task interface {
	// Execute runs the task body given the current run context and the
	// task's resolved input. It may suspend (spec §5 suspension point b).
	Execute(ctx context.Context, input map[string]any) (output map[string]any, err error)
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Execute implements Task.
func (f TaskFunc) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}

// Metadata describes a registered capability.
type Metadata struct {
	Name         string
	SideEffects  bool
	InputSchema  []byte
	OutputSchema []byte
}

type entry struct {
	meta         Metadata
	task         Task
	inputSchema  *jsonschema.Schema
	outputSchema *jsonschema.Schema
}

// Registry is the capability registry. It is effectively immutable after
// construction: registration is not permitted once a run has begun (spec
// §5), enforced here by the caller's discipline rather than a runtime lock,
// mirroring the teacher's registries which are built once at startup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register binds a capability name to a task implementation. Schemas, if
// non-empty, are compiled eagerly so malformed schemas fail at registration
// time rather than at validation time.
func (r *Registry) Register(meta Metadata, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[meta.Name]; exists {
		return fmt.Errorf("capability: %q already registered", meta.Name)
	}
	e := &entry{meta: meta, task: task}
	if len(meta.InputSchema) > 0 {
		s, err := compileSchema(meta.Name+"#input", meta.InputSchema)
		if err != nil {
			return fmt.Errorf("capability: compiling input schema for %q: %w", meta.Name, err)
		}
		e.inputSchema = s
	}
	if len(meta.OutputSchema) > 0 {
		s, err := compileSchema(meta.Name+"#output", meta.OutputSchema)
		if err != nil {
			return fmt.Errorf("capability: compiling output schema for %q: %w", meta.Name, err)
		}
		e.outputSchema = s
	}
	r.entries[meta.Name] = e
	return nil
}

func compileSchema(uri string, raw []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	if err := c.AddResource(uri, doc); err != nil {
		return nil, err
	}
	return c.Compile(uri)
}

// Resolve looks up the task implementation bound to name.
func (r *Registry) Resolve(name string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.task, true
}

// List returns the metadata for every registered capability.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.meta)
	}
	return out
}

// InputSchema returns the compiled input schema for name, if any.
func (r *Registry) InputSchema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.inputSchema == nil {
		return nil, false
	}
	return e.inputSchema, true
}

// OutputSchema returns the compiled output schema for name, if any.
func (r *Registry) OutputSchema(name string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.outputSchema == nil {
		return nil, false
	}
	return e.outputSchema, true
}

// ValidateInput validates input against name's input schema, if registered.
// Capabilities without an input schema accept any input.
func (r *Registry) ValidateInput(name string, input map[string]any) error {
	s, ok := r.InputSchema(name)
	if !ok {
		return nil
	}
	return s.Validate(toAny(input))
}

// ValidateOutput validates output against name's output schema, if registered.
func (r *Registry) ValidateOutput(name string, output map[string]any) error {
	s, ok := r.OutputSchema(name)
	if !ok {
		return nil
	}
	return s.Validate(toAny(output))
}

func toAny(m map[string]any) any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
