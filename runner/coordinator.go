package runner

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

// Mode selects how test beds are scheduled
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

// Coordinator drives one Runner per expanded test bed config
type Coordinator struct {
	executor *testBedExecutor
	worker   Worker
	log      log.Logger
}

// Config holds the coordinator dependencies
type Config struct {
	Factory Factory
	// Worker runs test beds in parallel mode. Defaults to an in-process worker
	// sharing Factory.
	Worker Worker
	Log    log.Logger
}

// NewCoordinator creates a new Coordinator
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Factory == nil {
		return nil, errors.New("runner factory is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	logger := cfg.Log.New("component", "coordinator")
	executor := newTestBedExecutor(cfg.Factory, logger)
	worker := cfg.Worker
	if worker == nil {
		worker = &InProcessWorker{executor: executor}
	}
	return &Coordinator{
		executor: executor,
		worker:   worker,
		log:      logger,
	}, nil
}

// Run executes every config in the requested mode
func (c *Coordinator) Run(ctx context.Context, mode Mode, configs []*config.ExpandedConfig, specs []specifier.Specifier, repeat int) (*RunResult, error) {
	if repeat < 1 {
		return nil, errors.New("repeat must be a positive integer")
	}
	if mode == ModeParallel {
		return c.RunParallel(ctx, configs, specs, repeat)
	}
	return c.RunSequential(ctx, configs, specs, repeat)
}

// RunSequential runs the configs one after another, in order. A runner
// construction failure stops the run and is returned. Cancelling ctx stops the
// live runner and returns ErrInterrupted.
func (c *Coordinator) RunSequential(ctx context.Context, configs []*config.ExpandedConfig, specs []specifier.Specifier, repeat int) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{}
	c.log.Info("Running test beds sequentially", "testbeds", len(configs), "repeat", repeat)

	for _, cfg := range configs {
		if ctx.Err() != nil {
			return c.finish(result, start), ErrInterrupted
		}
		tb := c.executor.execute(ctx, cfg, specs, repeat)
		result.TestBeds = append(result.TestBeds, tb)
		c.log.Info("Test bed finished", "testbed", tb.TestBed, "outcome", tb.Outcome, "iterations", tb.Iterations, "duration", tb.Duration)

		switch tb.Outcome {
		case OutcomeConstructionFailed:
			return c.finish(result, start), tb.Err
		case OutcomeInterrupted:
			return c.finish(result, start), ErrInterrupted
		}
	}
	return c.finish(result, start), nil
}

// RunParallel runs every config concurrently through the coordinator's Worker.
// With fewer than two configs it falls back to RunSequential. A construction
// failure in any worker cancels its siblings and is returned.
func (c *Coordinator) RunParallel(ctx context.Context, configs []*config.ExpandedConfig, specs []specifier.Specifier, repeat int) (*RunResult, error) {
	if len(configs) < 2 {
		c.log.Info("Parallel mode needs at least two test beds, running sequentially", "testbeds", len(configs))
		return c.RunSequential(ctx, configs, specs, repeat)
	}

	start := time.Now()
	c.log.Info("Running test beds in parallel", "testbeds", len(configs), "repeat", repeat)

	workCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	p := pool.NewWithResults[TestBedResult]()
	for _, cfg := range configs {
		p.Go(func() TestBedResult {
			tb := c.worker.Run(workCtx, cfg, specs, repeat)
			tb.TestBed = cfg.TestBedName
			c.log.Info("Test bed finished", "testbed", tb.TestBed, "outcome", tb.Outcome, "iterations", tb.Iterations, "duration", tb.Duration)
			if tb.Outcome == OutcomeConstructionFailed {
				cancel(tb.Err)
			}
			return tb
		})
	}
	collected := p.Wait()

	// Results arrive in completion order; report them in config order.
	byName := make(map[string]TestBedResult, len(collected))
	for _, tb := range collected {
		byName[tb.TestBed] = tb
	}
	result := &RunResult{}
	var constructionErr error
	for _, cfg := range configs {
		tb := byName[cfg.TestBedName]
		result.TestBeds = append(result.TestBeds, tb)
		if tb.Outcome == OutcomeConstructionFailed && constructionErr == nil {
			constructionErr = tb.Err
		}
	}

	switch {
	case constructionErr != nil:
		return c.finish(result, start), constructionErr
	case ctx.Err() != nil:
		return c.finish(result, start), ErrInterrupted
	}
	return c.finish(result, start), nil
}

func (c *Coordinator) finish(result *RunResult, start time.Time) *RunResult {
	result.Passed = reduce(result.TestBeds)
	result.Duration = time.Since(start)
	return result
}
