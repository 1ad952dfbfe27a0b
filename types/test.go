// Package types contains shared types used across the harness and the test
// class executables it drives.
package types

import (
	"sync"
	"time"
)

// TestStatus represents the possible states of a test case execution
type TestStatus string

const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusSkip  TestStatus = "skip"
	TestStatusError TestStatus = "error"
)

// TestRecord captures the outcome of a single test case run
type TestRecord struct {
	TestBed   string         `json:"testbed"`
	Class     string         `json:"class"`
	Case      string         `json:"case,omitempty"` // Empty for class-level records
	Iteration int            `json:"iteration"`
	Status    TestStatus     `json:"result"`
	Details   string         `json:"details,omitempty"`
	Extras    map[string]any `json:"extras,omitempty"`
	Begin     time.Time      `json:"begin_time"`
	End       time.Time      `json:"end_time"`
}

// Duration returns how long the test case took
func (r *TestRecord) Duration() time.Duration {
	if r.Begin.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Begin)
}

// Name returns Class.Case, or only the class for class-level records
func (r *TestRecord) Name() string {
	if r.Case == "" {
		return r.Class
	}
	return r.Class + "." + r.Case
}

// Summary tracks counts of requested and executed test cases
type Summary struct {
	Requested int `json:"Requested"`
	Executed  int `json:"Executed"`
	Passed    int `json:"Passed"`
	Failed    int `json:"Failed"`
	Skipped   int `json:"Skipped"`
	Error     int `json:"Error"`
}

// Results accumulates test records over the lifetime of one runner.
// It is safe for concurrent use.
type Results struct {
	mu        sync.Mutex
	records   []*TestRecord
	requested int
}

// NewResults creates an empty result set
func NewResults() *Results {
	return &Results{}
}

// AddRequested bumps the number of requested test cases
func (r *Results) AddRequested(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requested += n
}

// Add appends a finished record
func (r *Results) Add(rec *TestRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of the records collected so far
func (r *Results) Records() []*TestRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TestRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Summary computes counters over the collected records
func (r *Results) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Requested: r.requested}
	for _, rec := range r.records {
		s.Executed++
		switch rec.Status {
		case TestStatusPass:
			s.Passed++
		case TestStatusFail:
			s.Failed++
		case TestStatusSkip:
			s.Skipped++
		default:
			s.Error++
		}
	}
	return s
}

// AllPassed reports whether no record failed or errored. Skips count as passes.
func (r *Results) AllPassed() bool {
	s := r.Summary()
	return s.Failed == 0 && s.Error == 0
}
