package types

import "time"

// EventAction is the kind of a protocol event written by test class executables
type EventAction string

// Protocol actions, one JSON object per line on the class executable's stdout
const (
	ActionClassStart EventAction = "class_start"
	ActionStart      EventAction = "start"
	ActionPass       EventAction = "pass"
	ActionFail       EventAction = "fail"
	ActionSkip       EventAction = "skip"
	ActionError      EventAction = "error"
	ActionAbortClass EventAction = "abort_class"
	ActionAbortAll   EventAction = "abort_all"
	ActionOutput     EventAction = "output"
)

// Event represents a single line of test class output
type Event struct {
	Time    time.Time      `json:"Time"`
	Action  EventAction    `json:"Action"`
	Class   string         `json:"Class"`
	Case    string         `json:"Case,omitempty"`
	Cases   []string       `json:"Cases,omitempty"` // Set on class_start
	Details string         `json:"Details,omitempty"`
	Extras  map[string]any `json:"Extras,omitempty"`
}

// IsTerminal reports whether the event finishes a test case
func (e Event) IsTerminal() bool {
	switch e.Action {
	case ActionPass, ActionFail, ActionSkip, ActionError:
		return true
	}
	return false
}

// Status maps a terminal action onto a test status
func (e Event) Status() TestStatus {
	switch e.Action {
	case ActionPass:
		return TestStatusPass
	case ActionFail:
		return TestStatusFail
	case ActionSkip:
		return TestStatusSkip
	default:
		return TestStatusError
	}
}
