package tool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"askbot/internal/domain"
)

// Registry holds all available tools. It is built once at startup and is
// read-only afterwards; lookups from concurrent requests are safe.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

func (r *Registry) Register(t domain.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	r.logger.Debug("registered tool", "name", t.Name())
}

// Get returns the tool with the given name, or nil when unregistered.
func (r *Registry) Get(name string) domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Execute validates input against the tool's schema and runs it.
// An unknown name yields domain.ErrToolNotFound; validation failures
// yield *domain.SchemaError; runtime failures yield *domain.ToolError.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	t := r.Get(name)
	if t == nil {
		return nil, domain.ErrToolNotFound
	}

	coerced, err := CoerceInput(name, t.Parameters(), input)
	if err != nil {
		return nil, err
	}

	out, err := t.Execute(ctx, coerced)
	if err != nil {
		var se *domain.SchemaError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &domain.ToolError{Tool: name, Err: err}
	}
	return out, nil
}

// Infos returns the tool catalogue sorted by name, for the /tools
// endpoint and for rendering into the system prompt.
func (r *Registry) Infos() []domain.ToolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]domain.ToolInfo, 0, len(r.tools))
	for _, t := range r.tools {
		infos = append(infos, describe(t))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// describe flattens a tool's JSON Schema into the catalogue form.
func describe(t domain.Tool) domain.ToolInfo {
	schema := t.Parameters()
	info := domain.ToolInfo{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  []domain.ParamInfo{},
	}

	required := map[string]bool{}
	for _, name := range requiredKeys(schema) {
		required[name] = true
	}

	props, _ := schema["properties"].(map[string]any)
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		pi := domain.ParamInfo{Name: name, Type: "string", Required: required[name]}
		if typ, ok := prop["type"].(string); ok {
			pi.Type = typ
		}
		if desc, ok := prop["description"].(string); ok {
			pi.Description = desc
		}
		info.Parameters = append(info.Parameters, pi)
	}
	return info
}

// Param describes a single tool parameter when building a schema.
type Param struct {
	Type        string
	Description string
	Default     any
}

// Schema builds a JSON Schema "parameters" object for a tool.
func Schema(properties map[string]Param, required []string) map[string]any {
	props := make(map[string]any)
	for name, p := range properties {
		prop := map[string]any{"type": p.Type, "description": p.Description}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// InputString reads a string value from a raw input map, rendering
// non-string values as JSON.
func InputString(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	v, ok := input[key]
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
