package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

var (
	// ErrAbortAll is returned (possibly wrapped) by Runner.Run to request that
	// the runner stops immediately. It is not a test failure.
	ErrAbortAll = errors.New("abort all requested")

	// ErrInterrupted is returned by the coordinator when its context was
	// cancelled before every test bed finished.
	ErrInterrupted = errors.New("run interrupted")
)

// Runner executes the requested test specifiers against one test bed.
//
// Run may be called repeatedly. Stop must be idempotent, safe to call
// concurrently with an in-flight Run and must not block indefinitely.
// AllPassed is only meaningful after Run returns.
type Runner interface {
	Run(ctx context.Context) error
	Stop()
	AllPassed() bool
}

// Factory builds one Runner per expanded test bed config.
type Factory interface {
	Create(cfg *config.ExpandedConfig, specs []specifier.Specifier) (Runner, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(cfg *config.ExpandedConfig, specs []specifier.Specifier) (Runner, error)

// Create implements Factory
func (f FactoryFunc) Create(cfg *config.ExpandedConfig, specs []specifier.Specifier) (Runner, error) {
	return f(cfg, specs)
}

// RunnerConstructionError wraps any failure to build a Runner. It is fatal to
// the whole invocation and never retried.
type RunnerConstructionError struct {
	TestBed string
	Err     error
}

func (e *RunnerConstructionError) Error() string {
	return fmt.Sprintf("failed to create runner for test bed %s: %v", e.TestBed, e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RunnerConstructionError) Unwrap() error {
	return e.Err
}

// IsRunnerConstructionError checks if the error is or wraps a RunnerConstructionError
func IsRunnerConstructionError(err error) bool {
	var rcErr *RunnerConstructionError
	return err != nil && errors.As(err, &rcErr)
}

// Outcome is the final state of one test bed
type Outcome int

const (
	OutcomePassed Outcome = iota
	OutcomeFailed
	OutcomeAborted            // Abort-all was requested; neither pass nor fail
	OutcomeInterrupted        // The invocation was cancelled
	OutcomeConstructionFailed // The runner could not be built
)

// String implements the Stringer interface for Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "pass"
	case OutcomeFailed:
		return "fail"
	case OutcomeAborted:
		return "aborted"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeConstructionFailed:
		return "construction_failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// TestBedResult captures how one test bed run ended
type TestBedResult struct {
	TestBed    string
	Outcome    Outcome
	Iterations int // Number of Run calls that were started
	Duration   time.Duration
	Err        error
}

// RunResult captures the complete coordinator run
type RunResult struct {
	TestBeds []TestBedResult
	Passed   bool
	Duration time.Duration
}

// reduce computes the overall result. Aborted and interrupted test beds
// contribute neither a pass nor a failure.
func reduce(results []TestBedResult) bool {
	passed := true
	for _, r := range results {
		if r.Outcome == OutcomeFailed || r.Outcome == OutcomeConstructionFailed {
			passed = false
		}
	}
	return passed
}
