package state

import (
	"fmt"

	"github.com/ShayCichocki/maestro/internal/contextstore"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// ContextSummary describes the journaled runs of one context id.
type ContextSummary struct {
	ContextID string `json:"context_id"`
	Runs      int    `json:"runs"`
	Completed int    `json:"completed"`
	LastRunAt string `json:"last_run_at"`
}

// ListContexts summarizes every context id in the journal, most recently
// active first.
func (db *DB) ListContexts() ([]ContextSummary, error) {
	rows, err := db.Query(`
		SELECT context_id, COUNT(*), SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), MAX(created_at)
		FROM runs
		WHERE context_id != ''
		GROUP BY context_id
		ORDER BY MAX(id) DESC
	`, string(RunCompleted))
	if err != nil {
		return nil, fmt.Errorf("list contexts: %w", err)
	}
	defer rows.Close()

	var summaries []ContextSummary
	for rows.Next() {
		var s ContextSummary
		if err := rows.Scan(&s.ContextID, &s.Runs, &s.Completed, &s.LastRunAt); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contexts: %w", err)
	}
	return summaries, nil
}

// DeleteContextRuns removes every run recorded against contextID and returns
// the number of rows removed.
func (db *DB) DeleteContextRuns(contextID string) (int64, error) {
	result, err := db.Exec("DELETE FROM runs WHERE context_id = ?", contextID)
	if err != nil {
		return 0, fmt.Errorf("delete context runs: %w", err)
	}
	return result.RowsAffected()
}

// Restore replays the completed runs of contextID into store as history,
// oldest first, and returns the number of entries restored.
func Restore(store *contextstore.Store, runs RunStore, contextID string) (int, error) {
	journaled, err := runs.ListRuns(RunFilter{ContextID: contextID, Status: RunCompleted})
	if err != nil {
		return 0, err
	}

	for i := len(journaled) - 1; i >= 0; i-- {
		r := journaled[i]
		task := models.Task{ID: r.TaskID, Type: r.TaskType, Input: r.Input, ContextID: contextID}
		result := models.TaskResult{
			TaskID:    r.TaskID,
			BackendID: resultBackend(r.Backends),
			Output:    r.Output,
			LatencyMs: r.LatencyMs,
			Timestamp: r.CreatedAt,
		}
		store.Update(contextID, contextstore.Patch{LastTask: &task, LastResult: &result})
	}
	return len(journaled), nil
}

func resultBackend(backends []string) string {
	switch len(backends) {
	case 0:
		return ""
	case 1:
		return backends[0]
	default:
		return models.AggregatedBackendID
	}
}
