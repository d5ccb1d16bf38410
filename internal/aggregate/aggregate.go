// Package aggregate merges per-backend results into a single TaskResult.
package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// ParallelMetadata is stored on parallel aggregates.
type ParallelMetadata struct {
	Strategy   models.Strategy     `json:"strategy"`
	BackendIDs []string            `json:"backendIds"`
	Results    []models.TaskResult `json:"results"`
}

// Stage records one step of a sequential chain.
type Stage struct {
	BackendID string  `json:"backendId"`
	LatencyMs float64 `json:"latencyMs"`
}

// SequentialMetadata is stored on sequential aggregates.
type SequentialMetadata struct {
	Strategy models.Strategy `json:"strategy"`
	Stages   []Stage         `json:"stages"`
}

// VotingMetadata is stored on voting aggregates.
type VotingMetadata struct {
	Strategy   models.Strategy     `json:"strategy"`
	BackendIDs []string            `json:"backendIds"`
	Winner     string              `json:"winner"`
	Results    []models.TaskResult `json:"results"`
}

// Aggregator merges results according to a collaboration strategy.
type Aggregator struct {
	now func() time.Time
}

// New creates an Aggregator.
func New() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Aggregate merges results, which must be in invocation order.
// A single result is returned unchanged whatever the strategy.
func (a *Aggregator) Aggregate(results []models.TaskResult, strategy models.Strategy) (models.TaskResult, error) {
	if len(results) == 0 {
		return models.TaskResult{}, &models.AggregationError{Reason: "no results to aggregate"}
	}
	if len(results) == 1 {
		return results[0], nil
	}

	switch strategy {
	case models.StrategyParallel:
		return a.parallel(results), nil
	case models.StrategySequential:
		return a.sequential(results), nil
	case models.StrategyVoting:
		return a.voting(results), nil
	default:
		return models.TaskResult{}, &models.AggregationError{Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}
}

func (a *Aggregator) parallel(results []models.TaskResult) models.TaskResult {
	blocks := make([]string, len(results))
	var total float64
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%s]: %s", r.BackendID, r.Output)
		total += r.LatencyMs
	}

	return models.TaskResult{
		TaskID:    results[0].TaskID,
		BackendID: models.AggregatedBackendID,
		Output:    strings.Join(blocks, "\n"),
		Metadata: ParallelMetadata{
			Strategy:   models.StrategyParallel,
			BackendIDs: backendIDs(results),
			Results:    copyResults(results),
		},
		LatencyMs: total / float64(len(results)),
		Timestamp: a.timestamp(results),
	}
}

func (a *Aggregator) sequential(results []models.TaskResult) models.TaskResult {
	stages := make([]Stage, len(results))
	var total float64
	for i, r := range results {
		stages[i] = Stage{BackendID: r.BackendID, LatencyMs: r.LatencyMs}
		total += r.LatencyMs
	}

	last := results[len(results)-1]
	return models.TaskResult{
		TaskID:    results[0].TaskID,
		BackendID: models.AggregatedBackendID,
		Output:    last.Output,
		Metadata: SequentialMetadata{
			Strategy: models.StrategySequential,
			Stages:   stages,
		},
		LatencyMs: total,
		Timestamp: a.timestamp(results),
	}
}

// voting picks the fastest result. Ties go to the earliest invoked backend.
func (a *Aggregator) voting(results []models.TaskResult) models.TaskResult {
	winner := 0
	for i, r := range results {
		if r.LatencyMs < results[winner].LatencyMs {
			winner = i
		}
	}

	w := results[winner]
	return models.TaskResult{
		TaskID:    results[0].TaskID,
		BackendID: models.AggregatedBackendID,
		Output:    w.Output,
		Metadata: VotingMetadata{
			Strategy:   models.StrategyVoting,
			BackendIDs: backendIDs(results),
			Winner:     w.BackendID,
			Results:    copyResults(results),
		},
		LatencyMs: w.LatencyMs,
		Timestamp: a.timestamp(results),
	}
}

// timestamp is never earlier than any contributing result.
func (a *Aggregator) timestamp(results []models.TaskResult) time.Time {
	ts := a.now()
	for _, r := range results {
		if r.Timestamp.After(ts) {
			ts = r.Timestamp
		}
	}
	return ts
}

func backendIDs(results []models.TaskResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.BackendID
	}
	return ids
}

func copyResults(results []models.TaskResult) []models.TaskResult {
	return append([]models.TaskResult(nil), results...)
}
