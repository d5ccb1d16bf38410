// Package orchestrator routes tasks to AI backends and records the outcome.
//
// The orchestrator package provides functionality for:
//   - Single-backend execution: routing a task and running it with its context attached
//   - Collaborative execution: fanning a task out to several backends (parallel, voting)
//     or chaining them (sequential), then aggregating the results
//   - Streaming: running a routed task through a cancellable stream session
//
// An Orchestrator is an explicit value wired from a backend registry, a router,
// an aggregator and a context store. Nothing is registered at import time.
//
// Example usage:
//
//	registry, _ := backend.NewRegistry(fast, heavy)
//	orch, err := orchestrator.New(
//		orchestrator.RequiredConfig{
//			Registry: registry,
//			Router:   router.New("fast"),
//		},
//		orchestrator.WithEmitter(emitter),
//	)
//	result, err := orch.ExecuteTask(ctx, models.Task{Input: "Summarize this"})
package orchestrator
