// Package app wires the pipeline's components into the two runnable
// processes: cmd/rce-server (Ingress Gate + HTTP surface) and
// cmd/rce-worker (Worker Loop).
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spicyneutrino/distributed-rce-engine/internal/artifact"
	"github.com/spicyneutrino/distributed-rce-engine/internal/common"
	"github.com/spicyneutrino/distributed-rce-engine/internal/eventbus"
	"github.com/spicyneutrino/distributed-rce-engine/internal/hub"
	"github.com/spicyneutrino/distributed-rce-engine/internal/interfaces"
	"github.com/spicyneutrino/distributed-rce-engine/internal/ledger"
	"github.com/spicyneutrino/distributed-rce-engine/internal/queue"
	"github.com/spicyneutrino/distributed-rce-engine/internal/registry"
	"github.com/spicyneutrino/distributed-rce-engine/internal/sandbox"
	"github.com/spicyneutrino/distributed-rce-engine/internal/scanner"
	"github.com/spicyneutrino/distributed-rce-engine/internal/services/ingress"
	"github.com/spicyneutrino/distributed-rce-engine/internal/services/pipeline"
)

// App holds every collaborator common to both processes, plus the
// role-specific service each one drives: Gate for rce-server, Pipeline
// for rce-worker.
type App struct {
	Config   *common.Config
	Logger   *common.Logger
	Artifact interfaces.ArtifactStore
	Registry interfaces.Registry
	Queue    interfaces.WorkQueue
	EventBus interfaces.EventBus
	Hub      *hub.Hub

	Gate     *ingress.Gate      // set by NewServerApp
	Pipeline *pipeline.Pipeline // set by NewWorkerApp

	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// resolveConfigPath applies the same provided-path -> env-var ->
// binary-dir -> development-fallback resolution order this codebase
// uses elsewhere for its config file.
func resolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("RCE_CONFIG")
	}
	if configPath == "" {
		candidate := filepath.Join(getBinaryDir(), "rce-service.toml")
		if _, err := os.Stat(candidate); err == nil {
			configPath = candidate
		} else {
			configPath = "config/rce-service.toml"
		}
	}
	return configPath
}

// bootstrap loads configuration and brings up the collaborators shared
// by both processes: the artifact store, registry, work queue, event
// bus, and live subscription hub.
func bootstrap(configPath string) (*App, error) {
	startupStart := time.Now()
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(resolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLoggerFromConfig(config.Logging)
	ctx := context.Background()

	artifactStore, err := artifact.New(ctx, logger, &config.ArtifactStore, filepath.Join(getBinaryDir(), "data/artifacts"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize artifact store: %w", err)
	}

	reg, err := registry.New(ctx, logger, &config.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize registry: %w", err)
	}

	q, err := queue.New(ctx, logger, &config.Queue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize work queue: %w", err)
	}

	bus, err := eventbus.New(&config.EventBus, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize event bus: %w", err)
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Artifact:    artifactStore,
		Registry:    reg,
		Queue:       q,
		EventBus:    bus,
		Hub:         hub.New(logger),
		StartupTime: startupStart,
	}
	return a, nil
}

// NewServerApp builds the App backing cmd/rce-server: the Ingress Gate
// and the live subscription hub, fed by the shared collaborators.
func NewServerApp(configPath string) (*App, error) {
	a, err := bootstrap(configPath)
	if err != nil {
		return nil, err
	}

	a.Gate = ingress.New(a.Artifact, a.Registry, a.Queue, a.Logger, a.Config.Ingress)

	events, _, err := a.EventBus.Subscribe(context.Background())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to subscribe live hub to event bus: %w", err)
	}
	go func() {
		for evt := range events {
			a.Hub.Deliver(evt)
		}
	}()

	a.Logger.Info().Dur("startup", time.Since(a.StartupTime)).Msg("server app initialized")
	return a, nil
}

// NewWorkerApp builds the App backing cmd/rce-worker: the Static
// Scanner, Sandbox Executor, worker local ledger, and Worker Loop, fed
// by the shared collaborators.
func NewWorkerApp(configPath string) (*App, error) {
	a, err := bootstrap(configPath)
	if err != nil {
		return nil, err
	}

	sb, err := sandbox.New(&a.Config.Sandbox, a.Logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize sandbox: %w", err)
	}

	sc := scanner.New(&a.Config.Scanner)

	ledgerPath := a.Config.Worker.LedgerPath
	if ledgerPath != "" && !filepath.IsAbs(ledgerPath) {
		ledgerPath = filepath.Join(getBinaryDir(), ledgerPath)
	}
	led, err := ledger.Open(a.Logger, ledgerPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open worker ledger: %w", err)
	}

	a.Pipeline = pipeline.New(a.Registry, a.Queue, a.Artifact, sc, sb, a.EventBus, a.Hub, led, a.Logger, a.Config.Worker)

	a.Logger.Info().Dur("startup", time.Since(a.StartupTime)).Msg("worker app initialized")
	return a, nil
}

// Close releases every resource the App holds, in reverse dependency
// order.
func (a *App) Close() {
	if a.Pipeline != nil {
		a.Pipeline.Stop()
		a.Pipeline = nil
	}
	if a.Queue != nil {
		a.Queue.Close()
		a.Queue = nil
	}
	if a.EventBus != nil {
		a.EventBus.Close()
		a.EventBus = nil
	}
	if a.Registry != nil {
		a.Registry.Close()
		a.Registry = nil
	}
	if a.Artifact != nil {
		a.Artifact.Close()
		a.Artifact = nil
	}
}
