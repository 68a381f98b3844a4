package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/vault-city/internal/world"
)

// Result is the reported outcome of one action execution.
type Result struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Message: fmt.Sprintf(format, args...), Timestamp: time.Now()}
}

func success(format string, args ...any) Result {
	return Result{Success: true, Message: fmt.Sprintf(format, args...), Timestamp: time.Now()}
}

// Module is one named action an agent can perform. Modules validate their
// own parameters and report failures as results, never as faults.
type Module interface {
	Name() string
	Description() string
	ParameterSchema() map[string]string
	Execute(ctx context.Context, agentID world.EntityID, params map[string]any) Result
}

// Registry holds the available action modules. Lookups are case-sensitive.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module under its name.
func (r *Registry) Register(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[m.Name()] = m
}

// Lookup returns the module registered under name, exact match only.
func (r *Registry) Lookup(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Modules returns descriptions of every registered module.
func (r *Registry) Modules() []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ModuleInfo, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, ModuleInfo{
			Name:        m.Name(),
			Description: m.Description(),
			Parameters:  m.ParameterSchema(),
		})
	}
	return out
}

// ModuleInfo is the serializable description of one action module.
type ModuleInfo struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
