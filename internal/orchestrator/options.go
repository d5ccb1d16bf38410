package orchestrator

import (
	"github.com/google/uuid"

	"github.com/ShayCichocki/maestro/internal/aggregate"
	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/contextstore"
	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/internal/router"
	"github.com/ShayCichocki/maestro/internal/stream"
)

// RequiredConfig contains the minimal required configuration for an Orchestrator.
// Registry and Router have no defaults.
type RequiredConfig struct {
	// Registry holds the backends tasks can be routed to.
	Registry *backend.Registry
	// Router picks backends for tasks.
	Router *router.Router
	// Aggregator combines collaborative results. Defaults to aggregate.New().
	Aggregator *aggregate.Aggregator
	// Contexts stores conversation state. Defaults to an empty in-memory store.
	Contexts *contextstore.Store
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	emitter       *events.Emitter
	collaborators int
	streams       *stream.Manager
	newID         func() string
}

// DefaultCollaborators is the size of the backend set picked when a
// collaborative task names no backends.
const DefaultCollaborators = 2

func defaultOptions() *orchestratorOptions {
	return &orchestratorOptions{
		collaborators: DefaultCollaborators,
		newID:         uuid.NewString,
	}
}

// WithEmitter sets the emitter for task lifecycle events.
func WithEmitter(e *events.Emitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithCollaborators sets how many backends RouteCollaborative picks when a
// collaborative task names none.
func WithCollaborators(n int) Option {
	return func(o *orchestratorOptions) {
		if n > 0 {
			o.collaborators = n
		}
	}
}

// WithStreamManager sets the manager used by Stream (mainly for testing).
func WithStreamManager(m *stream.Manager) Option {
	return func(o *orchestratorOptions) { o.streams = m }
}

// WithIDGenerator sets the function used to assign ids to tasks that have none.
func WithIDGenerator(f func() string) Option {
	return func(o *orchestratorOptions) {
		if f != nil {
			o.newID = f
		}
	}
}
