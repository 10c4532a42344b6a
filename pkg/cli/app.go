package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dshills/cmdkit/pkg/builtin"
	"github.com/dshills/cmdkit/pkg/config"
	"github.com/dshills/cmdkit/pkg/domain/telemetry"
	"github.com/dshills/cmdkit/pkg/executor"
	"github.com/dshills/cmdkit/pkg/host/memhost"
	"github.com/dshills/cmdkit/pkg/plugin"
	"github.com/dshills/cmdkit/pkg/registry"
	"github.com/dshills/cmdkit/pkg/storage"
	observe "github.com/dshills/cmdkit/pkg/telemetry"
)

// ServiceName identifies cmdkit in traces.
const ServiceName = "cmdkit"

// App wires the runtime for one CLI invocation: an in-memory host standing
// in for the embedding application, a registry with the manifest and Go
// source loaders, an executor, and the telemetry repository.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Scene     *memhost.Host
	Registry  *registry.Registry
	Runner    executor.Runner
	Telemetry telemetry.Repository

	closers []func(context.Context) error
}

// NewApp builds the runtime described by cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	shutdown, err := observe.Setup(ctx, ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	if path := cfg.DatabaseFile(); path != "" {
		repo, err := storage.NewSQLiteTelemetryRepository(path)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("failed to open telemetry database: %w", err)
		}
		a.Telemetry = repo
		a.closers = append(a.closers, func(context.Context) error { return repo.Close() })
	} else {
		a.Telemetry = storage.NewMemoryRepository()
	}

	a.Scene = memhost.New(cfg.HostName,
		memhost.WithUndoDepth(cfg.HistoryDepth),
		memhost.WithLogger(logger),
	)

	modules := registry.NewModuleTable()
	for _, name := range registry.DefaultModules.Names() {
		defs, _ := registry.DefaultModules.Lookup(name)
		modules.Provide(name, defs...)
	}
	builtin.ProvideScene(modules, a.Scene)

	a.Registry = registry.New(logger,
		registry.WithModules(modules),
		registry.WithLoader(plugin.NewManifestLoader(a.Scene, logger)),
		registry.WithLoader(plugin.NewSourceLoader(logger)),
	)

	opts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithRecorder(observe.NewRecorder(a.Telemetry, logger)),
		executor.WithTracer(observe.Tracer()),
		executor.WithHostName(cfg.HostName),
		executor.WithHistoryDepth(cfg.HistoryDepth),
	}
	if cfg.HostIntegrated {
		a.Runner = executor.NewHostExecutor(a.Registry, a.Scene, a.Scene, opts...)
	} else {
		a.Runner = executor.New(a.Registry, opts...)
	}
	return a, nil
}

// Discover registers the builtin modules and then everything named by the
// configured command path variable. An unset variable is not an error here.
func (a *App) Discover() error {
	for _, name := range []string{builtin.Module, builtin.SceneModule} {
		defs, err := a.Registry.RegisterByModule(name)
		if err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
		a.Runner.Register(defs...)
	}

	if _, ok := os.LookupEnv(a.Config.CommandPathVar); !ok {
		a.Logger.Debug("command path not set", zap.String("variable", a.Config.CommandPathVar))
		return nil
	}
	if _, err := a.Runner.RegisterEnv(a.Config.CommandPathVar); err != nil {
		return err
	}
	return nil
}

// Close releases the database and flushes pending spans.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
