package state

import (
	"io"
	"time"
)

// RunStore handles run journal persistence operations.
type RunStore interface {
	RecordRun(r *Run) error
	ListRuns(filter RunFilter) ([]Run, error)
	CountRuns() (int, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Journal defines the interface for the run journal.
// The CLI depends on this rather than the concrete SQLite implementation.
type Journal interface {
	io.Closer
	Migrator
	RunStore
	PurgeOldRuns(olderThan time.Duration) (int64, error)
	ListContexts() ([]ContextSummary, error)
	DeleteContextRuns(contextID string) (int64, error)
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Journal  = (*DB)(nil)
	_ Migrator = (*DB)(nil)
	_ RunStore = (*DB)(nil)
)
