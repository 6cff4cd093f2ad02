package executor

import (
	"fmt"
	"sync"

	"github.com/ai-studio/workflow-core/pkg/models"
)

// Registry is a thread-safe map from node type to Executor.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.NodeType]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.NodeType]Executor)}
}

// Register adds or replaces the executor for nodeType.
func (r *Registry) Register(nodeType models.NodeType, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[nodeType] = e
}

// Get retrieves the executor for nodeType.
func (r *Registry) Get(nodeType models.NodeType) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[nodeType]
	return e, ok
}

// Has reports whether nodeType has a registered executor.
func (r *Registry) Has(nodeType models.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.executors[nodeType]
	return ok
}

// List returns all registered node types.
func (r *Registry) List() []models.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.NodeType, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	return out
}

// MustGet retrieves the executor for nodeType or returns an error naming it.
func (r *Registry) MustGet(nodeType models.NodeType) (Executor, error) {
	e, ok := r.Get(nodeType)
	if !ok {
		return nil, fmt.Errorf("no executor registered for node type %q", nodeType)
	}
	return e, nil
}
