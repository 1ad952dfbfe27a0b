package harness

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-harness/runner"
)

// Stage names the phase of an invocation a RuntimeError came from
type Stage string

const (
	StageConfig     Stage = "config"
	StageSpecifiers Stage = "specifiers"
	StageSetup      Stage = "setup"
	StageRun        Stage = "run"
)

// RuntimeError is an operational error that stops the invocation before, or
// instead of, producing a test verdict.
type RuntimeError struct {
	Stage Stage
	Err   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Stage, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func NewRuntimeError(stage Stage, err error) *RuntimeError {
	return &RuntimeError{Stage: stage, Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return errors.As(err, &runtimeErr)
}

// TestFailureError reports a finished run in which at least one test bed
// failed or could not be created.
type TestFailureError struct {
	Failed int
	Total  int
	Result *runner.RunResult
}

func (e *TestFailureError) Error() string {
	if e.Result == nil {
		return fmt.Sprintf("test failure: %d of %d test beds failed", e.Failed, e.Total)
	}
	return fmt.Sprintf("test failure: %s", summarize(e.Result))
}

// NewTestFailureError builds a TestFailureError from a run result
func NewTestFailureError(result *runner.RunResult) *TestFailureError {
	e := &TestFailureError{Result: result}
	if result == nil {
		return e
	}
	e.Total = len(result.TestBeds)
	for _, tb := range result.TestBeds {
		if tb.Outcome == runner.OutcomeFailed || tb.Outcome == runner.OutcomeConstructionFailed {
			e.Failed++
		}
	}
	return e
}

// IsTestFailureError reports whether err is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return errors.As(err, &testErr)
}
