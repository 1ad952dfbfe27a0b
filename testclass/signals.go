package testclass

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Signal is an error that tells the SDK how to record the current test case.
// Returning any other non-nil error fails the case.
type Signal struct {
	Action types.EventAction
	Reason string
}

func (s *Signal) Error() string {
	return fmt.Sprintf("%s: %s", s.Action, s.Reason)
}

// Skip marks the current test case skipped
func Skip(reason string) error {
	return &Signal{Action: types.ActionSkip, Reason: reason}
}

// Fail marks the current test case failed
func Fail(reason string) error {
	return &Signal{Action: types.ActionFail, Reason: reason}
}

// AbortClass fails the current test case and skips the rest of the class
func AbortClass(reason string) error {
	return &Signal{Action: types.ActionAbortClass, Reason: reason}
}

// AbortAll fails the current test case and asks the harness to stop the test bed
func AbortAll(reason string) error {
	return &Signal{Action: types.ActionAbortAll, Reason: reason}
}

// classify maps an error returned by user code onto a protocol action
func classify(err error) (types.EventAction, string) {
	if err == nil {
		return types.ActionPass, ""
	}
	var sig *Signal
	if errors.As(err, &sig) {
		return sig.Action, sig.Reason
	}
	return types.ActionFail, err.Error()
}
