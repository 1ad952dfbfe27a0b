// Package testbed implements a runner.Runner that executes test class
// executables against one test bed.
//
// A test class executable is any program in the test paths named after its
// class. It is started with
//
//	<exe> --config <config.json> --logdir <dir> [--cases a,b]
//
// and reports progress as JSON lines (types.Event) on stdout.
package testbed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// DefaultStopGracePeriod is how long a class process gets after an interrupt
const DefaultStopGracePeriod = 10 * time.Second

var errStopped = errors.New("test bed runner is stopped")

var _ runner.Runner = (*Runner)(nil)

// Options tune a test bed Runner
type Options struct {
	Log             log.Logger
	StopGracePeriod time.Duration
	StderrTailBytes int
}

// Runner runs the requested test classes on one test bed
type Runner struct {
	cfg        *config.ExpandedConfig
	specs      []specifier.Specifier
	log        log.Logger
	tracer     trace.Tracer
	grace      time.Duration
	tailBytes  int
	logDir     string
	configPath string
	results    *types.Results

	mu         sync.Mutex
	iterations int
	cancel     context.CancelFunc // Cancels the in-flight Run
	stopped    bool
	stopOnce   sync.Once
	summaryMu  sync.Mutex
}

// NewFactory returns a runner.Factory building test bed Runners
func NewFactory(opts Options) runner.Factory {
	return runner.FactoryFunc(func(cfg *config.ExpandedConfig, specs []specifier.Specifier) (runner.Runner, error) {
		return New(cfg, specs, opts)
	})
}

// New creates a Runner, its log directory and the config file handed to test
// classes.
func New(cfg *config.ExpandedConfig, specs []specifier.Specifier, opts Options) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("test bed config is required")
	}
	if len(specs) == 0 {
		return nil, errors.New("no test specifiers")
	}
	if cfg.LogPath == "" {
		return nil, errors.New("log path is required")
	}
	for _, p := range cfg.TestPaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("invalid test path: %w", err)
		}
	}
	if opts.Log == nil {
		opts.Log = log.New()
	}
	if opts.StopGracePeriod <= 0 {
		opts.StopGracePeriod = DefaultStopGracePeriod
	}
	logger := opts.Log.New("testbed", cfg.TestBedName)

	logDir, err := createLogDir(logger, cfg.LogPath, cfg.TestBedName, time.Now())
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(logDir, configFileName)
	if err := writeJSONFile(configPath, cfg.Blob()); err != nil {
		return nil, fmt.Errorf("failed to write test class config: %w", err)
	}

	logger.Info("Created test bed runner", "logdir", logDir, "classes", len(specs))
	return &Runner{
		cfg:        cfg,
		specs:      specs,
		log:        logger,
		tracer:     otel.Tracer("testbed runner"),
		grace:      opts.StopGracePeriod,
		tailBytes:  opts.StderrTailBytes,
		logDir:     logDir,
		configPath: configPath,
		results:    types.NewResults(),
	}, nil
}

// LogDir returns the directory holding this runner's logs
func (r *Runner) LogDir() string {
	return r.logDir
}

// Results returns the records collected over every iteration so far
func (r *Runner) Results() *types.Results {
	return r.results
}

// Run executes every requested class once. Records accumulate across calls.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return errStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	iteration := r.iterations
	r.iterations++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
		cancel()
		if err := r.writeSummary(); err != nil {
			r.log.Error("Failed to write run summary", "err", err)
		}
	}()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("iteration %d", iteration))
	defer span.End()

	r.log.Info("Running test classes", "iteration", iteration, "classes", len(r.specs))
	for _, spec := range r.specs {
		if err := ctx.Err(); err != nil {
			return err
		}
		abortAll, err := r.runClass(ctx, spec, iteration)
		if err != nil {
			return err
		}
		if abortAll {
			return fmt.Errorf("test class %s: %w", spec.Class, runner.ErrAbortAll)
		}
	}
	return nil
}

func (r *Runner) runClass(ctx context.Context, spec specifier.Specifier, iteration int) (bool, error) {
	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("class %s", spec.Class))
	defer span.End()
	span.SetAttributes(attribute.String("class", spec.Class), attribute.Int("iteration", iteration))

	logger := r.log.New("class", spec.Class)
	run := newClassRun(r.cfg.TestBedName, spec.Class, iteration, logger, r.record)

	exe, err := findClassExecutable(r.cfg.TestPaths, spec.Class)
	if err != nil {
		logger.Error("Test class not found", "err", err)
		r.results.AddRequested(requestedCount(spec, nil))
		run.finish("", types.TestStatusError, err.Error(), nil, time.Now())
		return false, nil
	}

	classDir := filepath.Join(r.logDir, spec.Class, fmt.Sprintf("iteration_%d", iteration))
	if err := os.MkdirAll(classDir, defaultDirPerm); err != nil {
		return false, fmt.Errorf("failed to create class log directory: %w", err)
	}

	logger.Info("Running test class", "exe", exe, "cases", spec.Cases)
	err = runClassProcess(ctx, exe, buildClassArgs(r.configPath, classDir, spec), classDir, r.grace, r.tailBytes, run)
	r.results.AddRequested(requestedCount(spec, run.announced))
	if err != nil {
		return false, err
	}
	return run.abortAll, nil
}

func (r *Runner) record(rec *types.TestRecord) {
	r.results.Add(rec)
	metrics.RecordTestCase(rec.TestBed, rec.Class, rec.Status, rec.Duration())
	if rec.Status == types.TestStatusFail || rec.Status == types.TestStatusError {
		r.log.Error("Test case finished", "test", rec.Name(), "result", rec.Status, "details", rec.Details)
		return
	}
	r.log.Info("Test case finished", "test", rec.Name(), "result", rec.Status, "duration", rec.Duration())
}

// requestedCount is the number of cases the class announced, or what the
// specifier asked for when the class never announced any.
func requestedCount(spec specifier.Specifier, announced []string) int {
	switch {
	case announced != nil:
		return len(announced)
	case !spec.RunsAllCases():
		return len(spec.Cases)
	default:
		return 1
	}
}

// Stop cancels any in-flight class process and writes the final summary.
// Only the first call has an effect.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		cancel := r.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}

		if err := r.writeSummary(); err != nil {
			r.log.Error("Failed to write run summary", "err", err)
		}
		s := r.results.Summary()
		r.log.Info("Test bed summary",
			"requested", s.Requested,
			"executed", s.Executed,
			"passed", s.Passed,
			"failed", s.Failed,
			"skipped", s.Skipped,
			"error", s.Error,
		)
	})
}

// AllPassed reports whether no record failed or errored so far
func (r *Runner) AllPassed() bool {
	return r.results.AllPassed()
}

func (r *Runner) writeSummary() error {
	r.summaryMu.Lock()
	defer r.summaryMu.Unlock()
	return writeJSONFile(filepath.Join(r.logDir, summaryFileName), runSummary{
		Results: r.results.Records(),
		Summary: r.results.Summary(),
	})
}
