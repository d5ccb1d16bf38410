package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/maestro/internal/api"
	"github.com/ShayCichocki/maestro/internal/backend"
	"github.com/ShayCichocki/maestro/internal/config"
	"github.com/ShayCichocki/maestro/internal/events"
	"github.com/ShayCichocki/maestro/internal/orchestrator"
	"github.com/ShayCichocki/maestro/internal/router"
	"github.com/ShayCichocki/maestro/internal/state"
	"github.com/ShayCichocki/maestro/internal/stream"
	"github.com/ShayCichocki/maestro/pkg/models"
)

// loadConfig loads --config when given, otherwise the layered user and
// project configuration, and validates the result.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logPath != "" {
		cfg.Log.Path = logPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runtime holds everything a command needs to execute tasks.
type runtime struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	journal *state.DB
	logger  *events.DebugLogger
	watcher *router.Watcher
}

// newRuntime wires backends, router, journal and logger from cfg. The rules
// file watcher, when configured, lives until ctx is done or Close is called.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	logger, err := events.NewDebugLogger(cfg.Log.Path)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger}
	emitter := events.NewEmitter(logger)

	if cfg.Journal.Enabled {
		db, err := openJournal(cfg)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.journal = db
		emitter.Subscribe(state.NewRecorder(db))
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	logger.Log("[runtime] %d backends: %s", registry.Count(), strings.Join(registry.IDs(), ", "))

	r, err := buildRouter(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.Routing.RulesFile != "" {
		path := cfg.Routing.RulesFile
		w, err := router.Watch(ctx, r, path,
			router.OnReload(func(n int) { logger.Log("[router] loaded %d rules from %s", n, path) }),
			router.OnReloadError(func(err error) { logger.Log("[router] reload of %s failed: %v", path, err) }),
		)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("load rules file: %w", err)
		}
		rt.watcher = w
	}
	logger.Log("[router] default backend %s, %d rules", r.Default(), len(r.Rules()))

	streams := stream.NewManager(
		stream.WithEmitter(emitter),
		stream.WithExpectedChunks(cfg.Stream.ExpectedChunks),
	)
	orch, err := orchestrator.New(
		orchestrator.RequiredConfig{Registry: registry, Router: r},
		orchestrator.WithEmitter(emitter),
		orchestrator.WithCollaborators(cfg.Routing.Collaborators),
		orchestrator.WithStreamManager(streams),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.orch = orch
	return rt, nil
}

// Close stops the watcher and releases the journal and log file.
func (rt *runtime) Close() {
	if rt.orch != nil {
		rt.orch.Streams().StopAll()
	}
	if rt.watcher != nil {
		rt.watcher.Close()
	}
	if rt.journal != nil {
		rt.journal.Close()
	}
	rt.logger.Close()
}

// tokenUsage sums the token counts of the Claude backends used so far.
func (rt *runtime) tokenUsage() (input, output int64, calls int) {
	registry := rt.orch.Registry()
	for _, id := range registry.IDs() {
		b, _ := registry.Get(id)
		claude, ok := b.(*api.ClaudeBackend)
		if !ok {
			continue
		}
		in, out := claude.Tracker().Total()
		input += in
		output += out
		calls += claude.Tracker().Calls()
	}
	return input, output, calls
}

// restore seeds contextID with its journaled history. It is a no-op when the
// journal is disabled.
func (rt *runtime) restore(contextID string) (int, error) {
	if rt.journal == nil || contextID == "" {
		return 0, nil
	}
	n, err := state.Restore(rt.orch.Contexts(), rt.journal, contextID)
	if err != nil {
		return 0, fmt.Errorf("restore context %s: %w", contextID, err)
	}
	return n, nil
}

// openJournal opens and migrates the run journal.
func openJournal(cfg *config.Config) (*state.DB, error) {
	path := cfg.Journal.Path
	if path == "" {
		path = state.DefaultPath()
	}
	db, err := state.Open(path, cfg.Journal.Driver)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return db, nil
}

// buildRegistry creates one backend per configured entry.
func buildRegistry(cfg *config.Config) (*backend.Registry, error) {
	backends := make([]backend.Backend, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		b, err := newBackend(cfg, bc)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backend.NewRegistry(backends...)
}

// newBackend creates the backend described by bc.
func newBackend(cfg *config.Config, bc config.BackendConfig) (backend.Backend, error) {
	switch bc.Provider {
	case config.ProviderEcho:
		return backend.NewEcho(backend.EchoConfig{ID: bc.ID, Prefix: bc.Prefix, Delay: bc.Delay}), nil

	case config.ProviderAnthropic, config.ProviderBedrock:
		clientCfg := api.ClientConfig{
			Model:         anthropic.Model(bc.Model),
			UseAWSBedrock: bc.Provider == config.ProviderBedrock,
			AWSRegion:     bc.AWSRegion,
			AWSProfile:    bc.AWSProfile,
		}
		if bc.Provider == config.ProviderAnthropic {
			key, err := config.ResolveAPIKey(cfg)
			if err != nil {
				return nil, &models.ConfigurationError{BackendID: bc.ID, Reason: err.Error()}
			}
			clientCfg.APIKey = key.Value
			clientCfg.BaseURL = cfg.Anthropic.BaseURL
		}

		client, err := api.NewClient(clientCfg)
		if err != nil {
			return nil, &models.ConfigurationError{BackendID: bc.ID, Reason: err.Error()}
		}
		return api.NewClaudeBackend(api.ClaudeBackendConfig{
			ID:         bc.ID,
			Client:     client,
			MaxTokens:  bc.MaxTokens,
			MaxHistory: bc.MaxHistory,
		})
	}
	return nil, &models.ConfigurationError{BackendID: bc.ID, Reason: fmt.Sprintf("unknown provider %q", bc.Provider)}
}

// buildRouter compiles the inline routing rules. A rules file, when set, is
// loaded by the watcher and replaces them.
func buildRouter(cfg *config.Config) (*router.Router, error) {
	rules, err := router.CompileAll(cfg.Routing.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile routing rules: %w", err)
	}
	return router.New(cfg.DefaultBackend(), rules...), nil
}

// taskContext bounds a command by timeouts.task. Interrupts are handled by
// the caller.
func taskContext(parent context.Context, cfg *config.Config) (context.Context, context.CancelFunc) {
	if cfg.Timeouts.Task > 0 {
		return context.WithTimeout(parent, cfg.Timeouts.Task)
	}
	return context.WithCancel(parent)
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
