// Package tools provides the local function registry and the coordinator
// that executes remote-initiated function invocations and returns their
// results over the control channel.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/voxwire/voxwire/pkg/core/events"
)

// Handler executes one function invocation with its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Definition is a static function schema. Immutable after registration.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *JSONSchema `json:"parameters,omitempty"`
}

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Make creates a Tool from a typed handler, generating the parameter schema
// from the input struct.
//
// Example:
//
//	tool := tools.Make("get_weather", "Get weather for a location",
//	    func(ctx context.Context, input struct {
//	        Location string `json:"location" desc:"City name"`
//	        Units    string `json:"units,omitempty" enum:"celsius,fahrenheit"`
//	    }) (any, error) {
//	        return weather.Lookup(input.Location, input.Units)
//	    },
//	)
func Make[T any](name, description string, fn func(ctx context.Context, input T) (any, error)) Tool {
	return Tool{
		Definition: Definition{
			Name:        name,
			Description: description,
			Parameters:  SchemaFor[T](),
		},
		Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
			var input T
			if len(args) > 0 {
				if err := json.Unmarshal(args, &input); err != nil {
					return nil, err
				}
			}
			return fn(ctx, input)
		},
	}
}

// Registry maps function names to their definition and handler. Names are
// unique; definitions are immutable after registration.
type Registry struct {
	order   []string
	entries map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Tool),
	}
}

// Register adds a tool. Registering a duplicate or empty name is an error.
func (r *Registry) Register(tool Tool) error {
	name := strings.TrimSpace(tool.Definition.Name)
	if name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", name)
	}
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	tool.Definition.Name = name
	r.entries[name] = tool
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers a tool and panics on error. For static demo setup.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.entries[strings.TrimSpace(name)]
	return tool, ok
}

// Definitions returns all definitions in registration order, in the wire
// shape embedded in session.update.
func (r *Registry) Definitions() []events.ToolDefinition {
	defs := make([]events.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		entry := r.entries[name]
		def := events.ToolDefinition{
			Type:        "function",
			Name:        entry.Definition.Name,
			Description: entry.Definition.Description,
		}
		if entry.Definition.Parameters != nil {
			if raw, err := json.Marshal(entry.Definition.Parameters); err == nil {
				def.Parameters = raw
			}
		}
		defs = append(defs, def)
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.entries)
}
