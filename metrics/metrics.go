package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	MetricsNamespace = "harness"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	// Registry holds every harness metric and is served by the metrics server
	Registry = opmetrics.NewRegistry()
	factory  = promauto.With(Registry)

	errorsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testCasesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_cases_total",
		Help:      "Count of finished test cases",
	}, []string{
		"testbed",
		"class",
		"result",
	})

	testCaseDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_case_duration_seconds",
		Help:      "Duration of test cases",
		Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{
		"testbed",
		"class",
	})

	testBedRunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "testbed_runs_total",
		Help:      "Count of test bed runs by outcome",
	}, []string{
		"testbed",
		"run_id",
		"outcome",
	})

	testBedDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "testbed_duration_seconds",
		Help:      "Duration of the last test bed run",
	}, []string{
		"testbed",
		"run_id",
	})

	runResults = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of a harness invocation",
	}, []string{
		"run_id",
		"result",
	})

	runTestBeds = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_testbeds",
		Help:      "Number of test beds in a harness invocation",
	}, []string{
		"run_id",
	})

	runDuration = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of a harness invocation",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordTestCase counts a finished test case and observes its duration
func RecordTestCase(testBed string, class string, result types.TestStatus, duration time.Duration) {
	if !isValidResult(result) {
		log.Error("RecordTestCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "test_cases_total",
			"testbed", testBed,
			"class", class,
			"result", result)
	}
	testCasesTotal.WithLabelValues(testBed, class, string(result)).Inc()
	if duration > 0 {
		testCaseDuration.WithLabelValues(testBed, class).Observe(duration.Seconds())
	}
}

// RecordTestBed records how one test bed run ended
func RecordTestBed(testBed string, runID string, outcome string, duration time.Duration) {
	testBedRunsTotal.WithLabelValues(testBed, runID, outcome).Inc()
	testBedDuration.WithLabelValues(testBed, runID).Set(duration.Seconds())
}

// RecordRun records the overall result of one invocation
func RecordRun(runID string, result string, testBeds int, duration time.Duration) {
	runResults.WithLabelValues(runID, result).Set(1)
	runTestBeds.WithLabelValues(runID).Set(float64(testBeds))
	runDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
