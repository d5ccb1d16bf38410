// Package router selects backends for tasks.
package router

import (
	"sync"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// Predicate reports whether a rule applies to a task.
type Predicate func(task models.Task) bool

// Rule routes tasks matching Match to BackendID.
type Rule struct {
	// Name identifies the rule in logs and listings.
	Name      string
	Match     Predicate
	BackendID string
}

// Router picks a backend id per task. Rules are evaluated in registration
// order and the first match wins; a task's preferred backend overrides them
// all. It is safe for concurrent use.
type Router struct {
	mu             sync.RWMutex
	rules          []Rule
	defaultBackend string
}

// New creates a Router with the given default backend id.
func New(defaultBackend string, rules ...Rule) *Router {
	r := &Router{defaultBackend: defaultBackend}
	for _, rule := range rules {
		r.AddRule(rule)
	}
	return r
}

// AddRule appends a rule. Rules without a predicate are ignored.
func (r *Router) AddRule(rule Rule) {
	if rule.Match == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
}

// SetRules replaces the whole rule list atomically.
func (r *Router) SetRules(rules []Rule) {
	kept := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Match != nil {
			kept = append(kept, rule)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = kept
}

// Rules returns a copy of the current rules.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Rule(nil), r.rules...)
}

// Default returns the fallback backend id.
func (r *Router) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultBackend
}

// Route returns the backend id for task.
func (r *Router) Route(task models.Task) string {
	if task.PreferredBackendID != "" {
		return task.PreferredBackendID
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.Match(task) {
			return rule.BackendID
		}
	}
	return r.defaultBackend
}

// RouteCollaborative returns up to count distinct backend ids: the default
// first, then the backends of matching rules in rule order.
func (r *Router) RouteCollaborative(task models.Task, count int) []string {
	if count <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, count)
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] || len(ids) >= count {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	add(r.defaultBackend)
	for _, rule := range r.rules {
		if len(ids) >= count {
			break
		}
		if rule.Match(task) {
			add(rule.BackendID)
		}
	}
	return ids
}
