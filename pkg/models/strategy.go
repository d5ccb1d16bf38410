package models

import "strings"

// Strategy is the collaboration topology used for multi-backend tasks.
type Strategy string

const (
	// StrategyParallel invokes all backends concurrently and concatenates outputs.
	StrategyParallel Strategy = "parallel"
	// StrategySequential pipes each backend's output into the next one's input.
	StrategySequential Strategy = "sequential"
	// StrategyVoting invokes all backends concurrently and picks a winner.
	StrategyVoting Strategy = "voting"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyParallel, StrategySequential, StrategyVoting:
		return true
	default:
		return false
	}
}

// Concurrent reports whether backends run as a fan-out.
func (s Strategy) Concurrent() bool {
	return s == StrategyParallel || s == StrategyVoting
}

// ParseStrategy converts user input to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	strategy := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !strategy.Valid() {
		return "", &AggregationError{Reason: "unknown strategy " + `"` + s + `"`}
	}
	return strategy, nil
}
