// Package tool implements the Tool Registry & Dispatcher: a
// name-to-Tool mapping with schema-validated argument decoding and result
// normalization. The registry does not impose approval; a tool's own body
// calls the Approval Gate when it needs to.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/coreagent/runtime/internal/model"
)

// MaxToolNameLength bounds the length of a tool name accepted at dispatch.
const MaxToolNameLength = 256

// MaxToolParamsSize bounds the size in bytes of a tool call's raw
// arguments accepted at dispatch.
const MaxToolParamsSize = 10 << 20

// Tool is a named, schema-bound callable invocable by the model. Execute
// receives the raw JSON arguments after they have passed schema
// validation; decoding them into its own parameter struct is the tool's job.
type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, args json.RawMessage) (*model.ToolResultPart, error)
}

// Registry holds the name-to-Tool mapping.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry. It rejects a duplicate name and a
// schema that fails to compile, rather than silently replacing either.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}

	compiled, err := compileSchema(name, t.Schema())
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.schemas[name] = compiled
	return nil
}

// Unregister removes a tool, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the set of registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}

// Catalog returns the list of ToolSpecs for the LLM, ordered by tool name.
func (r *Registry) Catalog() []model.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]model.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, model.ToolSpec{
			Name:            t.Name(),
			Description:     t.Description(),
			ParameterSchema: t.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Dispatch runs the dispatch pipeline for one ToolCall: lookup, schema
// validation and argument decode, tool body execution, result
// normalization. It never returns a Go error for a tool-level failure —
// every failure mode becomes a normalized ToolResultPart rather than a Go error.
func (r *Registry) Dispatch(ctx context.Context, call model.ToolCall) model.ToolResultPart {
	if len(call.Name) > MaxToolNameLength {
		return errorResult(call.ID, "tool name exceeds maximum length")
	}
	if len(call.Arguments) > MaxToolParamsSize {
		return errorResult(call.ID, "tool arguments exceed maximum size")
	}

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()
	if !ok {
		return errorResult(call.ID, fmt.Sprintf("unknown tool: %s", call.Name))
	}

	raw := json.RawMessage(call.Arguments)
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return errorResult(call.ID, fmt.Sprintf("invalid arguments: %v", err))
	}
	if schema != nil {
		if err := schema.Validate(decoded); err != nil {
			return errorResult(call.ID, fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	result, err := t.Execute(ctx, raw)
	if err != nil {
		return errorResult(call.ID, err.Error())
	}
	return normalize(call.ID, result)
}

func errorResult(callID, message string) model.ToolResultPart {
	return model.ToolResultPart{
		CallID:  callID,
		Status:  model.ToolResultError,
		Message: model.TruncateMessage(message),
	}
}

func normalize(callID string, r *model.ToolResultPart) model.ToolResultPart {
	if r == nil {
		return errorResult(callID, "tool returned no result")
	}
	return model.ToolResultPart{
		CallID:  callID,
		Status:  model.NormalizeStatus(r.Status),
		Message: model.TruncateMessage(r.Message),
		Output:  r.Output,
	}
}

func compileSchema(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	compiler := jsonschema.NewCompiler()
	url := "tool://" + name + "/schema.json"
	if err := compiler.AddResource(url, bytesReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func bytesReader(raw json.RawMessage) io.Reader {
	return bytes.NewReader(raw)
}
