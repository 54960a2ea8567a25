package tool

import (
	"fmt"
	"sort"
	"sync"

	"github.com/craftpad-ai/artifact-platform/internal/llm"
)

// Registry holds all available tools and provides lookup. It is thread-safe
// and supports registration at runtime.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry. Returns an error if a tool with the
// same name already exists or the tool is malformed.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" || t.NewInput == nil || t.Handler == nil {
		return fmt.Errorf("invalid tool definition: %q", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool already registered: %s", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister registers a tool and panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", t.Name, err))
	}
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadOnlyNames returns the names of pure inspection tools, sorted.
func (r *Registry) ReadOnlyNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, t := range r.tools {
		if t.ReadOnly {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Manifest returns the adapter tool definitions for the given names,
// skipping names that are not registered.
func (r *Registry) Manifest(names []string) []llm.ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			defs = append(defs, t.Def())
		}
	}
	return defs
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
