package harness

import (
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/runner"
)

// MetricsReporter is responsible for reporting metrics from run results.
type MetricsReporter interface {
	ReportResults(runID string, result *runner.RunResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the run results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, result *runner.RunResult) {
	for _, tb := range result.TestBeds {
		metrics.RecordTestBed(tb.TestBed, runID, tb.Outcome.String(), tb.Duration)
	}
	status := "pass"
	if !result.Passed {
		status = "fail"
	}
	metrics.RecordRun(runID, status, len(result.TestBeds), result.Duration)
}
