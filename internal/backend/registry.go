package backend

import (
	"sort"
	"sync"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// Registry maps backend ids to implementations.
// It is safe for concurrent use.
type Registry struct {
	backends map[string]Backend
	mu       sync.RWMutex
}

// NewRegistry creates a registry holding the given backends.
func NewRegistry(backends ...Backend) (*Registry, error) {
	r := &Registry{backends: make(map[string]Backend)}
	for _, b := range backends {
		if err := r.Register(b); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a backend. Duplicate or empty ids are rejected.
func (r *Registry) Register(b Backend) error {
	if b == nil {
		return &models.ConfigurationError{Reason: "nil backend"}
	}
	id := b.ID()
	if id == "" {
		return &models.ConfigurationError{Reason: "empty backend id"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[id]; exists {
		return &models.ConfigurationError{BackendID: id, Reason: "already registered"}
	}
	r.backends[id] = b
	return nil
}

// Get returns the backend registered under id.
func (r *Registry) Get(id string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	return b, ok
}

// Resolve returns the backend for id or a RoutingError.
func (r *Registry) Resolve(id, taskID string) (Backend, error) {
	b, ok := r.Get(id)
	if !ok {
		return nil, &models.RoutingError{BackendID: id, TaskID: taskID}
	}
	return b, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered backends.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}
