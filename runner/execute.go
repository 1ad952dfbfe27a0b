package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

// testBedExecutor builds a Runner for one test bed and drives its iterations.
type testBedExecutor struct {
	factory Factory
	log     log.Logger
	tracer  trace.Tracer
}

func newTestBedExecutor(factory Factory, logger log.Logger) *testBedExecutor {
	return &testBedExecutor{
		factory: factory,
		log:     logger,
		tracer:  otel.Tracer("test bed executor"),
	}
}

// execute creates the runner, stops it when ctx is cancelled and runs every
// iteration. The runner is always stopped before returning.
func (e *testBedExecutor) execute(ctx context.Context, cfg *config.ExpandedConfig, specs []specifier.Specifier, repeat int) TestBedResult {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("test bed %s", cfg.TestBedName))
	defer span.End()
	span.SetAttributes(attribute.String("testbed", cfg.TestBedName), attribute.Int("repeat", repeat))

	r, err := e.create(cfg, specs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "runner construction failed")
		e.log.Error("Failed to create runner", "testbed", cfg.TestBedName, "err", err)
		return TestBedResult{
			TestBed:  cfg.TestBedName,
			Outcome:  OutcomeConstructionFailed,
			Duration: time.Since(start),
			Err:      err,
		}
	}

	// A cancelled context reaches the runner through Stop, even while Run blocks.
	release := context.AfterFunc(ctx, func() {
		e.log.Warn("Stopping runner", "testbed", cfg.TestBedName, "reason", context.Cause(ctx))
		r.Stop()
	})
	defer release()

	result := ExecuteIterations(ctx, e.log, r, cfg.TestBedName, repeat)
	result.Duration = time.Since(start)
	span.SetAttributes(attribute.String("outcome", result.Outcome.String()), attribute.Int("iterations", result.Iterations))
	if result.Outcome != OutcomePassed {
		span.SetStatus(codes.Error, result.Outcome.String())
	}
	return result
}

func (e *testBedExecutor) create(cfg *config.ExpandedConfig, specs []specifier.Specifier) (r Runner, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &RunnerConstructionError{TestBed: cfg.TestBedName, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	r, err = e.factory.Create(cfg, specs)
	if err != nil {
		return nil, &RunnerConstructionError{TestBed: cfg.TestBedName, Err: err}
	}
	if r == nil {
		return nil, &RunnerConstructionError{TestBed: cfg.TestBedName, Err: errors.New("factory returned no runner")}
	}
	return r, nil
}

// ExecuteIterations calls r.Run up to repeat times and always calls r.Stop
// before returning.
//
// An ErrAbortAll from Run ends the loop with OutcomeAborted. Any other error or
// panic is logged with the test bed name and iteration index, ends the loop and
// marks the test bed failed. Otherwise the outcome follows r.AllPassed after the
// last iteration.
func ExecuteIterations(ctx context.Context, logger log.Logger, r Runner, testBed string, repeat int) TestBedResult {
	defer r.Stop()

	result := TestBedResult{TestBed: testBed}
	for i := 0; i < repeat; i++ {
		if ctx.Err() != nil {
			result.Outcome = OutcomeInterrupted
			result.Err = ErrInterrupted
			return result
		}
		result.Iterations++
		logger.Debug("Running test bed iteration", "testbed", testBed, "iteration", i, "repeat", repeat)

		err := runIteration(ctx, r)
		switch {
		case err == nil:
		case errors.Is(err, ErrAbortAll):
			logger.Warn("Abort all requested, stopping test bed", "testbed", testBed, "iteration", i)
			result.Outcome = OutcomeAborted
			return result
		case ctx.Err() != nil:
			logger.Warn("Test bed interrupted", "testbed", testBed, "iteration", i, "err", err)
			result.Outcome = OutcomeInterrupted
			result.Err = ErrInterrupted
			return result
		default:
			logger.Error("Exception while executing test bed", "testbed", testBed, "iteration", i, "err", err)
			result.Outcome = OutcomeFailed
			result.Err = err
			return result
		}
	}

	if ctx.Err() != nil {
		result.Outcome = OutcomeInterrupted
		result.Err = ErrInterrupted
	} else if r.AllPassed() {
		result.Outcome = OutcomePassed
	} else {
		result.Outcome = OutcomeFailed
	}
	return result
}

func runIteration(ctx context.Context, r Runner) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during run: %v", p)
		}
	}()
	return r.Run(ctx)
}
