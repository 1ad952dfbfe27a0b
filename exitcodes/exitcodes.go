// Package exitcodes defines the standard exit codes used by op-harness.
package exitcodes

// Exit code constants used by op-harness
//
// * Success (0): every selected test bed passed
// * Failure (1): config or specifier errors, runner construction failures and
//   test failures
// * TestBedAborted (3): a run-testbed child stopped on an abort-all request
// * ConstructionFailed (4): a run-testbed child could not build its runner
// * Interrupted (130): the invocation was stopped by SIGINT or SIGTERM
const (
	Success            = 0
	Failure            = 1
	TestBedAborted     = 3
	ConstructionFailed = 4
	Interrupted        = 130
)
