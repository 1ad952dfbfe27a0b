// Package harness wires configuration, test specifiers and the run coordinator
// into the op-harness application lifecycle.
package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/service"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
	"github.com/ethereum-optimism/infra/op-harness/testbed"
)

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

// harness runs the requested test specifiers on every selected test bed once.
type harness struct {
	config      *Config
	version     string
	runID       string
	testBeds    []*config.ExpandedConfig
	specs       []specifier.Specifier
	coordinator *runner.Coordinator
	formatter   ResultFormatter
	reporter    MetricsReporter
	service     *service.Service
	result      *runner.RunResult

	running atomic.Bool

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New loads and validates the test configuration and the test specifiers and
// builds the coordinator. Every error is a RuntimeError.
func New(ctx context.Context, cfg *Config, version string, shutdownCallback func(error)) (*harness, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	runID := uuid.New().String()
	logger := cfg.Log.New("run_id", runID)

	specs, err := loadSpecifiers(cfg)
	if err != nil {
		return nil, NewRuntimeError(StageSpecifiers, err)
	}
	if len(specs) == 0 {
		return nil, NewRuntimeError(StageSpecifiers, errors.New("no test specifiers provided"))
	}

	testBeds, err := config.LoadAndExpand(cfg.ConfigFile, cfg.TestBeds, config.Overrides{
		LogPath:   cfg.LogPath,
		TestPaths: cfg.TestPaths,
		CLIArgs:   cfg.TestArgs,
		RunID:     runID,
	})
	if err != nil {
		return nil, NewRuntimeError(StageConfig, err)
	}
	if len(testBeds) == 0 {
		return nil, NewRuntimeError(StageConfig, errors.New("no test beds selected"))
	}

	logger.Debug("Creating harness",
		"config", cfg.ConfigFile,
		"testbeds", len(testBeds),
		"specifiers", len(specs),
		"repeat", cfg.Repeat,
		"parallel", cfg.Parallel,
		"parallelMode", cfg.ParallelMode)

	factory := testbed.NewFactory(testbed.Options{
		Log:             logger,
		StopGracePeriod: cfg.StopGracePeriod,
	})
	var worker runner.Worker
	if cfg.Parallel && cfg.ParallelMode == flags.ParallelModeProcess {
		pw, err := runner.NewProcessWorker(logger, cfg.WorkerArgs...)
		if err != nil {
			return nil, NewRuntimeError(StageSetup, err)
		}
		if cfg.StopGracePeriod > 0 {
			pw.Grace = cfg.StopGracePeriod
		}
		worker = pw
	}
	coordinator, err := runner.NewCoordinator(runner.Config{
		Factory: factory,
		Worker:  worker,
		Log:     logger,
	})
	if err != nil {
		return nil, NewRuntimeError(StageSetup, fmt.Errorf("failed to create coordinator: %w", err))
	}

	h := &harness{
		config:           cfg,
		version:          version,
		runID:            runID,
		testBeds:         testBeds,
		specs:            specs,
		coordinator:      coordinator,
		formatter:        NewConsoleResultFormatter(logger, os.Stdout),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}
	if cfg.Metrics.Enabled {
		h.service = service.New(logger, metrics.Registry)
	}
	return h, nil
}

func loadSpecifiers(cfg *Config) ([]specifier.Specifier, error) {
	if cfg.TestFile != "" {
		return specifier.ParseFile(cfg.TestFile)
	}
	return specifier.Parse(cfg.TestClasses)
}

// Start runs every test bed and returns once the run is over.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) error {
	h.running.Store(true)

	if h.service != nil {
		if err := h.service.Start(h.config.Metrics.ListenAddr, h.config.Metrics.ListenPort); err != nil {
			return NewRuntimeError(StageSetup, fmt.Errorf("failed to start metrics server: %w", err))
		}
	}

	mode := runner.ModeSequential
	if h.config.Parallel {
		mode = runner.ModeParallel
	}
	h.config.Log.Info("Starting test run",
		"run_id", h.runID,
		"version", h.version,
		"mode", mode,
		"testbeds", len(h.testBeds),
		"specifiers", len(h.specs),
		"repeat", h.config.Repeat)

	result, err := h.coordinator.Run(ctx, mode, h.testBeds, h.specs, h.config.Repeat)
	h.result = result
	if result != nil {
		if ferr := h.formatter.FormatResults(h.runID, result); ferr != nil {
			h.config.Log.Error("Failed to print results", "err", ferr)
		}
		h.reporter.ReportResults(h.runID, result)
	}

	switch {
	case errors.Is(err, runner.ErrInterrupted):
		h.config.Log.Warn("Test run interrupted", "run_id", h.runID)
		return err
	case err != nil:
		h.config.Log.Error("Test run failed", "run_id", h.runID, "err", err)
		metrics.RecordErrorDetails("run", err)
		return NewRuntimeError(StageRun, err)
	case !result.Passed:
		h.config.Log.Warn("Test run completed with failures", "run_id", h.runID)
		return NewTestFailureError(result)
	}

	h.config.Log.Info("Test run passed", "run_id", h.runID, "duration", result.Duration)
	go func() {
		h.shutdownCallback(nil)
	}()
	return nil
}

// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	if !h.running.Swap(false) {
		return nil
	}
	h.config.Log.Info("Stopping op-harness")
	if h.service != nil {
		return h.service.Stop(ctx)
	}
	return nil
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	return !h.running.Load()
}
