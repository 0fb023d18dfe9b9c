package common_tools

import (
	"fmt"
	"sync"

	"github.com/Desarso/opsagent/models"
)

// Registry maps tool names to tools. Names keep registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]models.Tool
	order []string
}

func NewRegistry(tools ...models.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]models.Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t models.Tool) error {
	name := t.Declaration().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Lookup(name string) (models.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Subset returns a new registry holding only the named tools.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := &Registry{tools: make(map[string]models.Tool)}
	for _, name := range names {
		t, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown tool: %s", name)
		}
		if _, dup := sub.tools[name]; dup {
			continue
		}
		sub.tools[name] = t
		sub.order = append(sub.order, name)
	}
	return sub, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Declarations returns the declarations sent to the model.
func (r *Registry) Declarations() []models.FunctionDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]models.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}
