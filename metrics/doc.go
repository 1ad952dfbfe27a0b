// Package metrics exposes Prometheus metrics for test cases, test beds and
// whole harness invocations. All metrics live in Registry.
package metrics
