package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/ShayCichocki/maestro/internal/aggregate"
	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/contextstore"
	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/internal/router"
	"github.com/ShayCichocki/maestro/internal/stream"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// Orchestrator executes tasks against registered backends.
//
// Calls are safe for concurrent use. Overlapping calls that share a context
// id are not serialized: each one updates the context when it finishes and
// the last update wins.
type Orchestrator struct {
	registry      *backend.Registry
	router        *router.Router
	aggregator    *aggregate.Aggregator
	contexts      *contextstore.Store
	streams       *stream.Manager
	emitter       *events.Emitter
	collaborators int
	newID         func() string
}

// New creates an Orchestrator from its required components and options.
func New(req RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if req.Registry == nil {
		return nil, &models.ConfigurationError{Reason: "backend registry is required"}
	}
	if req.Router == nil {
		return nil, &models.ConfigurationError{Reason: "router is required"}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	aggregator := req.Aggregator
	if aggregator == nil {
		aggregator = aggregate.New()
	}
	contexts := req.Contexts
	if contexts == nil {
		contexts = contextstore.New(contextstore.WithEmitter(o.emitter))
	}
	streams := o.streams
	if streams == nil {
		streams = stream.NewManager(stream.WithEmitter(o.emitter))
	}

	return &Orchestrator{
		registry:      req.Registry,
		router:        req.Router,
		aggregator:    aggregator,
		contexts:      contexts,
		streams:       streams,
		emitter:       o.emitter,
		collaborators: o.collaborators,
		newID:         o.newID,
	}, nil
}

// Contexts returns the context store.
func (o *Orchestrator) Contexts() *contextstore.Store {
	return o.contexts
}

// Streams returns the stream manager used by Stream.
func (o *Orchestrator) Streams() *stream.Manager {
	return o.streams
}

// Registry returns the backend registry.
func (o *Orchestrator) Registry() *backend.Registry {
	return o.registry
}

// Router returns the task router.
func (o *Orchestrator) Router() *router.Router {
	return o.router
}

// ExecuteTask routes task to one backend, runs it with the task's context
// attached and records the exchange in the context history.
//
// An unregistered backend id fails with *models.RoutingError. Backend
// failures are returned as *models.BackendExecutionError and leave the
// context untouched.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task models.Task) (models.TaskResult, error) {
	task = o.prepare(task)
	task.Context = o.contexts.Get(task.ContextID)

	backendID := o.router.Route(task)
	b, err := o.registry.Resolve(backendID, task.ID)
	if err != nil {
		o.failed(task, []string{backendID}, "", err)
		return models.TaskResult{}, err
	}

	o.emit(events.Event{Type: events.TaskStarted, TaskID: task.ID, ContextID: task.ContextID, BackendIDs: []string{backendID}})

	result, err := o.invoke(ctx, b, task)
	if err != nil {
		o.failed(task, []string{backendID}, "", err)
		return models.TaskResult{}, err
	}

	o.contexts.Update(task.ContextID, contextstore.Patch{LastTask: &task, LastResult: &result})
	o.completed(task, []string{backendID}, "", result)
	return result, nil
}

// ExecuteCollaborativeTask runs task on several backends and aggregates the
// results with strategy. An empty backendIDs picks a set with
// Router.RouteCollaborative.
//
// Every backend id is resolved before any backend runs. In parallel and
// voting mode the backends run concurrently and the first failure fails the
// call without waiting for the others. In sequential mode each backend receives the previous output as its
// input and a failing stage aborts the chain.
func (o *Orchestrator) ExecuteCollaborativeTask(ctx context.Context, task models.Task, backendIDs []string, strategy models.Strategy) (models.TaskResult, error) {
	if !strategy.Valid() {
		return models.TaskResult{}, &models.AggregationError{Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}

	task = o.prepare(task)
	task.Context = o.contexts.Get(task.ContextID)

	if len(backendIDs) == 0 {
		backendIDs = o.router.RouteCollaborative(task, o.collaborators)
	}
	if len(backendIDs) == 0 {
		err := &models.AggregationError{Reason: "no backends selected"}
		o.failed(task, nil, strategy, err)
		return models.TaskResult{}, err
	}

	backends := make([]backend.Backend, len(backendIDs))
	for i, id := range backendIDs {
		b, err := o.registry.Resolve(id, task.ID)
		if err != nil {
			o.failed(task, backendIDs, strategy, err)
			return models.TaskResult{}, err
		}
		backends[i] = b
	}

	o.emit(events.Event{Type: events.TaskStarted, TaskID: task.ID, ContextID: task.ContextID, BackendIDs: backendIDs, Strategy: string(strategy)})

	var (
		results []models.TaskResult
		err     error
	)
	if strategy.Concurrent() {
		results, err = o.fanOut(ctx, backends, task)
	} else {
		results, err = o.chain(ctx, backends, task)
	}
	if err != nil {
		o.failed(task, backendIDs, strategy, err)
		return models.TaskResult{}, err
	}

	aggregated, err := o.aggregator.Aggregate(results, strategy)
	if err != nil {
		o.failed(task, backendIDs, strategy, err)
		return models.TaskResult{}, err
	}
	aggregated.TaskID = task.ID

	o.contexts.Update(task.ContextID, contextstore.Patch{
		LastTask:   &task,
		LastResult: &aggregated,
		RawResults: results,
	})
	o.completed(task, backendIDs, strategy, aggregated)
	return aggregated, nil
}

// Stream routes task and starts a stream session for it under the task id.
// When the session completes, the exchange is recorded in the context
// history before cb.OnComplete runs. Stopped or failed streams leave the
// context untouched.
func (o *Orchestrator) Stream(ctx context.Context, task models.Task, cb stream.Callbacks) (*stream.Session, error) {
	task = o.prepare(task)
	task.Context = o.contexts.Get(task.ContextID)

	backendID := o.router.Route(task)
	b, err := o.registry.Resolve(backendID, task.ID)
	if err != nil {
		return nil, err
	}

	onComplete := cb.OnComplete
	recorded := task
	cb.OnComplete = func(result models.TaskResult) {
		o.contexts.Update(recorded.ContextID, contextstore.Patch{LastTask: &recorded, LastResult: &result})
		if onComplete != nil {
			onComplete(result)
		}
	}

	return o.streams.Start(ctx, task.ID, b, task, cb)
}

// StopStream aborts the stream running under taskID.
func (o *Orchestrator) StopStream(taskID string) bool {
	return o.streams.Stop(taskID)
}

// prepare fills in the task id and context id when the caller left them empty.
func (o *Orchestrator) prepare(task models.Task) models.Task {
	if task.ID == "" {
		task.ID = o.newID()
	}
	if task.ContextID == "" {
		task.ContextID = models.DefaultContextID
	}
	return task
}

// fanOut runs every backend concurrently on the same task. Results keep
// invocation order. The first failure is returned as soon as it arrives;
// backends still running are left to finish on their own.
func (o *Orchestrator) fanOut(ctx context.Context, backends []backend.Backend, task models.Task) ([]models.TaskResult, error) {
	type outcome struct {
		index  int
		result models.TaskResult
		err    error
	}

	outcomes := make(chan outcome, len(backends))
	for i, b := range backends {
		go func() {
			result, err := o.invoke(ctx, b, task)
			outcomes <- outcome{index: i, result: result, err: err}
		}()
	}

	results := make([]models.TaskResult, len(backends))
	for range backends {
		out := <-outcomes
		if out.err != nil {
			return nil, out.err
		}
		results[out.index] = out.result
	}
	return results, nil
}

// chain runs backends one after another, feeding each output into the next input.
func (o *Orchestrator) chain(ctx context.Context, backends []backend.Backend, task models.Task) ([]models.TaskResult, error) {
	results := make([]models.TaskResult, 0, len(backends))
	input := task.Input
	for _, b := range backends {
		result, err := o.invoke(ctx, b, task.WithInput(input))
		if err != nil {
			return nil, err
		}
		results = append(results, result)
		input = result.Output
	}
	return results, nil
}

// invoke runs one backend and normalizes its result and error.
func (o *Orchestrator) invoke(ctx context.Context, b backend.Backend, task models.Task) (models.TaskResult, error) {
	result, err := b.Execute(ctx, task)
	if err != nil {
		return models.TaskResult{}, wrapBackendError(b.ID(), err)
	}
	if result.TaskID == "" {
		result.TaskID = task.ID
	}
	if result.BackendID == "" {
		result.BackendID = b.ID()
	}
	return result, nil
}

// wrapBackendError leaves taxonomy errors as they are and wraps anything
// else in a BackendExecutionError.
func wrapBackendError(backendID string, err error) error {
	var (
		execErr    *models.BackendExecutionError
		configErr  *models.ConfigurationError
		routingErr *models.RoutingError
	)
	if errors.As(err, &execErr) || errors.As(err, &configErr) || errors.As(err, &routingErr) {
		return err
	}
	return &models.BackendExecutionError{BackendID: backendID, Err: err}
}

func (o *Orchestrator) emit(event events.Event) {
	o.emitter.Emit(event)
}

func (o *Orchestrator) completed(task models.Task, backendIDs []string, strategy models.Strategy, result models.TaskResult) {
	o.emit(events.Event{
		Type:       events.TaskCompleted,
		TaskID:     task.ID,
		TaskType:   task.Type,
		ContextID:  task.ContextID,
		BackendIDs: backendIDs,
		Strategy:   string(strategy),
		Input:      task.Input,
		Output:     result.Output,
		LatencyMs:  result.LatencyMs,
	})
}

func (o *Orchestrator) failed(task models.Task, backendIDs []string, strategy models.Strategy, err error) {
	o.emit(events.Event{
		Type:       events.TaskFailed,
		TaskID:     task.ID,
		TaskType:   task.Type,
		ContextID:  task.ContextID,
		BackendIDs: backendIDs,
		Strategy:   string(strategy),
		Input:      task.Input,
		Error:      err,
	})
}
