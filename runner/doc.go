// Package runner coordinates the execution of one Runner per test bed.
//
// The main components are:
//   - Runner: the per test bed executable unit (Run, Stop, AllPassed)
//   - Factory: builds a Runner from an expanded test bed config
//   - Coordinator: drives runners sequentially or in parallel and reduces their
//     outcomes to a single pass/fail result
//   - Worker: executes every iteration of one test bed during parallel runs,
//     either in-process or in a child process (ProcessWorker)
//
// Cancellation flows through the context handed to the coordinator: when it is
// cancelled every live runner is stopped and no further iterations start.
package runner
