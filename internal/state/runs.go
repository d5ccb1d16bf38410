package state

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RunStatus is the outcome of a journaled run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunStopped   RunStatus = "stopped"
)

// Run is one journaled task execution.
type Run struct {
	ID        int64     `json:"id"`
	TaskID    string    `json:"task_id"`
	TaskType  string    `json:"task_type"`
	ContextID string    `json:"context_id"`
	Backends  []string  `json:"backends"`
	Strategy  string    `json:"strategy"`
	Status    RunStatus `json:"status"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Error     string    `json:"error"`
	LatencyMs float64   `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	TaskID    string
	ContextID string
	Status    RunStatus
	// Limit caps the number of rows; 0 means no limit.
	Limit int
}

// RecordRun inserts a run and sets its ID.
func (db *DB) RecordRun(r *Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	backends, err := json.Marshal(r.Backends)
	if err != nil {
		return fmt.Errorf("marshal backends: %w", err)
	}

	result, err := db.Exec(`
		INSERT INTO runs (task_id, task_type, context_id, backends, strategy, status, input, output, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.TaskID, r.TaskType, r.ContextID, string(backends), r.Strategy, string(r.Status), r.Input, r.Output, r.Error, r.LatencyMs, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get run id: %w", err)
	}
	r.ID = id
	return nil
}

// ListRuns returns runs newest first.
func (db *DB) ListRuns(filter RunFilter) ([]Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.TaskID != "" {
		where = append(where, "task_id = ?")
		args = append(args, filter.TaskID)
	}
	if filter.ContextID != "" {
		where = append(where, "context_id = ?")
		args = append(args, filter.ContextID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT id, task_id, task_type, context_id, backends, strategy, status, input, output, error, latency_ms, created_at FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return db.queryRuns(query, args...)
}

// CountRuns returns the number of journaled runs.
func (db *DB) CountRuns() (int, error) {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

func (db *DB) queryRuns(query string, args ...any) ([]Run, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			backends  string
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.TaskType, &r.ContextID, &backends, &r.Strategy, &r.Status, &r.Input, &r.Output, &r.Error, &r.LatencyMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if backends != "" && backends != "null" {
			if err := json.Unmarshal([]byte(backends), &r.Backends); err != nil {
				return nil, fmt.Errorf("unmarshal backends: %w", err)
			}
		}
		r.CreatedAt, _ = parseTime(createdAt)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
