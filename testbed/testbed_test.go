package testbed

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const passingClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"PassTest","Cases":["test_a","test_b"]}'
echo '{"Action":"start","Class":"PassTest","Case":"test_a"}'
echo 'plain line that is not an event'
echo '{"Action":"pass","Class":"PassTest","Case":"test_a"}'
echo '{"Action":"start","Class":"PassTest","Case":"test_b"}'
echo '{"Action":"skip","Class":"PassTest","Case":"test_b","Details":"no device"}'
`

const failingClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"FailTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"FailTest","Case":"test_a"}'
echo '{"Action":"fail","Class":"FailTest","Case":"test_a","Details":"expected 1, got 2"}'
exit 1
`

const abortAllClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"AbortAllTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"AbortAllTest","Case":"test_a"}'
echo '{"Action":"abort_all","Class":"AbortAllTest","Case":"test_a","Details":"device on fire"}'
exit 1
`

const abortClassClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"AbortClassTest","Cases":["test_a","test_b"]}'
echo '{"Action":"start","Class":"AbortClassTest","Case":"test_a"}'
echo '{"Action":"abort_class","Class":"AbortClassTest","Case":"test_a","Details":"no signal"}'
exit 1
`

const crashingClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"CrashTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"CrashTest","Case":"test_a"}'
printf '\033[31mboom\033[0m\n' >&2
exit 2
`

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func writeClass(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

type fixture struct {
	testDir string
	logPath string
	cfg     *config.ExpandedConfig
}

func newFixture(t *testing.T) *fixture {
	requireShell(t)
	f := &fixture{testDir: t.TempDir(), logPath: t.TempDir()}
	f.cfg = &config.ExpandedConfig{
		TestBedName: "bed1",
		LogPath:     f.logPath,
		TestPaths:   []string{f.testDir},
		Params:      config.RawConfig{"user_param": "hello"},
		TestBed:     config.RawConfig{"name": "bed1"},
	}
	return f
}

func (f *fixture) newRunner(t *testing.T, items ...string) *Runner {
	t.Helper()
	specs, err := specifier.Parse(items)
	require.NoError(t, err)
	r, err := New(f.cfg, specs, Options{Log: log.NewLogger(log.DiscardHandler()), StopGracePeriod: time.Second})
	require.NoError(t, err)
	t.Cleanup(r.Stop)
	return r
}

func readSummary(t *testing.T, r *Runner) runSummary {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(r.LogDir(), summaryFileName))
	require.NoError(t, err)
	var s runSummary
	require.NoError(t, json.Unmarshal(data, &s))
	return s
}

func TestNew_CreatesLogDirAndConfig(t *testing.T) {
	f := newFixture(t)
	r := f.newRunner(t, "PassTest")

	assert.Equal(t, filepath.Join(f.logPath, "bed1"), filepath.Dir(r.LogDir()))
	target, err := os.Readlink(filepath.Join(f.logPath, "bed1", latestLinkName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(r.LogDir()), target)

	data, err := os.ReadFile(filepath.Join(r.LogDir(), configFileName))
	require.NoError(t, err)
	var blob map[string]any
	require.NoError(t, json.Unmarshal(data, &blob))
	assert.Equal(t, "hello", blob["user_param"])
	assert.Equal(t, map[string]any{"name": "bed1"}, blob["testbed"])
}

func TestNew_Errors(t *testing.T) {
	f := newFixture(t)
	specs, err := specifier.Parse([]string{"PassTest"})
	require.NoError(t, err)
	opts := Options{Log: log.NewLogger(log.DiscardHandler())}

	_, err = New(nil, specs, opts)
	require.Error(t, err)

	_, err = New(f.cfg, nil, opts)
	require.Error(t, err)

	f.cfg.TestPaths = []string{filepath.Join(f.testDir, "missing")}
	_, err = New(f.cfg, specs, opts)
	require.ErrorContains(t, err, "invalid test path")
}

func TestRun_PassingClass(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "PassTest", passingClass)
	r := f.newRunner(t, "PassTest")

	require.NoError(t, r.Run(context.Background()))
	assert.True(t, r.AllPassed())

	records := r.Results().Records()
	require.Len(t, records, 2)
	assert.Equal(t, "PassTest.test_a", records[0].Name())
	assert.Equal(t, types.TestStatusPass, records[0].Status)
	assert.Equal(t, types.TestStatusSkip, records[1].Status)
	assert.Equal(t, "no device", records[1].Details)

	s := readSummary(t, r)
	assert.Len(t, s.Results, 2)
	assert.Equal(t, types.Summary{Requested: 2, Executed: 2, Passed: 1, Skipped: 1}, s.Summary)

	events, err := os.ReadFile(filepath.Join(r.LogDir(), "PassTest", "iteration_0", eventsFileName))
	require.NoError(t, err)
	assert.Contains(t, string(events), "plain line that is not an event")
}

func TestRun_FailingClass(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "FailTest", failingClass)
	writeClass(t, f.testDir, "PassTest", passingClass)
	r := f.newRunner(t, "FailTest", "PassTest")

	require.NoError(t, r.Run(context.Background()))
	assert.False(t, r.AllPassed())

	records := r.Results().Records()
	require.Len(t, records, 3)
	assert.Equal(t, types.TestStatusFail, records[0].Status)
	assert.Equal(t, "expected 1, got 2", records[0].Details)
}

func TestRun_MissingClass(t *testing.T) {
	f := newFixture(t)
	r := f.newRunner(t, "MissingTest:test_a,test_b")

	require.NoError(t, r.Run(context.Background()))
	assert.False(t, r.AllPassed())

	records := r.Results().Records()
	require.Len(t, records, 1)
	assert.Equal(t, types.TestStatusError, records[0].Status)
	assert.Empty(t, records[0].Case)
	assert.Contains(t, records[0].Details, "unable to find test class MissingTest")
	assert.Equal(t, 2, r.Results().Summary().Requested)
}

func TestRun_AbortAll(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "AbortAllTest", abortAllClass)
	marker := filepath.Join(f.testDir, "ran")
	writeClass(t, f.testDir, "NextTest", "#!/bin/sh\ntouch "+marker+"\n")
	r := f.newRunner(t, "AbortAllTest", "NextTest")

	err := r.Run(context.Background())
	require.ErrorIs(t, err, runner.ErrAbortAll)
	assert.NoFileExists(t, marker)

	records := r.Results().Records()
	require.Len(t, records, 1)
	assert.Equal(t, types.TestStatusFail, records[0].Status)
	assert.Contains(t, records[0].Details, "device on fire")
}

func TestRun_AbortClassContinuesWithNextClass(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "AbortClassTest", abortClassClass)
	writeClass(t, f.testDir, "PassTest", passingClass)
	r := f.newRunner(t, "AbortClassTest", "PassTest")

	require.NoError(t, r.Run(context.Background()))
	records := r.Results().Records()
	require.Len(t, records, 3)
	assert.Equal(t, "AbortClassTest.test_a", records[0].Name())
	assert.Equal(t, types.TestStatusFail, records[0].Status)
	assert.Equal(t, "PassTest", records[1].Class)
}

func TestRun_CrashingClass(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "CrashTest", crashingClass)
	r := f.newRunner(t, "CrashTest")

	require.NoError(t, r.Run(context.Background()))
	assert.False(t, r.AllPassed())

	records := r.Results().Records()
	require.Len(t, records, 1)
	assert.Equal(t, types.TestStatusError, records[0].Status)
	assert.Contains(t, records[0].Details, "boom")
	assert.NotContains(t, records[0].Details, "\x1b[")
}

func TestRun_CrashingClassTruncatedStderr(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "NoisyTest", `#!/bin/sh
echo '{"Action":"class_start","Class":"NoisyTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"NoisyTest","Case":"test_a"}'
echo 'first line of a long stack trace' >&2
echo 'last words' >&2
exit 2
`)
	specs, err := specifier.Parse([]string{"NoisyTest"})
	require.NoError(t, err)
	r, err := New(f.cfg, specs, Options{
		Log:             log.NewLogger(log.DiscardHandler()),
		StopGracePeriod: time.Second,
		StderrTailBytes: 12,
	})
	require.NoError(t, err)
	t.Cleanup(r.Stop)

	require.NoError(t, r.Run(context.Background()))
	records := r.Results().Records()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Details, "stderr: ...")
	assert.Contains(t, records[0].Details, "last words")
	assert.NotContains(t, records[0].Details, "first line")
}

func TestRun_SilentClass(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "SilentTest", "#!/bin/sh\nexit 0\n")
	r := f.newRunner(t, "SilentTest")

	require.NoError(t, r.Run(context.Background()))
	records := r.Results().Records()
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Details, "no events")
}

func TestRun_PassesProtocolArgs(t *testing.T) {
	f := newFixture(t)
	argsFile := filepath.Join(f.testDir, "args")
	writeClass(t, f.testDir, "ArgsTest.sh", `#!/bin/sh
echo "$@" > `+argsFile+`
echo '{"Action":"pass","Class":"ArgsTest","Case":"test_a"}'
`)
	r := f.newRunner(t, "ArgsTest:test_a,test_b")

	require.NoError(t, r.Run(context.Background()))
	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Fields(string(data))
	require.Len(t, args, 6)
	assert.Equal(t, []string{ConfigFlag, filepath.Join(r.LogDir(), configFileName)}, args[0:2])
	assert.Equal(t, LogDirFlag, args[2])
	assert.Equal(t, []string{CasesFlag, "test_a,test_b"}, args[4:6])
}

func TestRun_RecordsAccumulateAcrossIterations(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "PassTest", passingClass)
	r := f.newRunner(t, "PassTest")

	require.NoError(t, r.Run(context.Background()))
	require.NoError(t, r.Run(context.Background()))

	records := r.Results().Records()
	require.Len(t, records, 4)
	assert.Equal(t, 0, records[0].Iteration)
	assert.Equal(t, 1, records[3].Iteration)
	assert.Equal(t, 4, readSummary(t, r).Summary.Executed)
}

func TestStop_InterruptsRunningClass(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "SlowTest", `#!/bin/sh
trap 'exit 130' INT
echo '{"Action":"class_start","Class":"SlowTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"SlowTest","Case":"test_a"}'
while true; do sleep 0.05; done
`)
	r := f.newRunner(t, "SlowTest")

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return r.Results().Summary().Requested == 0 && fileHasContent(filepath.Join(r.LogDir(), "SlowTest", "iteration_0", eventsFileName))
	}, 5*time.Second, 20*time.Millisecond)

	r.Stop()
	r.Stop()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	records := r.Results().Records()
	require.Len(t, records, 1)
	assert.Equal(t, types.TestStatusError, records[0].Status)
	assert.Contains(t, records[0].Details, "interrupted")

	assert.True(t, errors.Is(r.Run(context.Background()), errStopped))
}

func TestRunner_WithCoordinator(t *testing.T) {
	f := newFixture(t)
	writeClass(t, f.testDir, "PassTest", passingClass)
	second := *f.cfg
	second.TestBedName = "bed2"

	c, err := runner.NewCoordinator(runner.Config{
		Factory: NewFactory(Options{Log: log.NewLogger(log.DiscardHandler())}),
		Log:     log.NewLogger(log.DiscardHandler()),
	})
	require.NoError(t, err)
	specs, err := specifier.Parse([]string{"PassTest"})
	require.NoError(t, err)

	result, err := c.RunParallel(context.Background(), []*config.ExpandedConfig{f.cfg, &second}, specs, 2)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.DirExists(t, filepath.Join(f.logPath, "bed1"))
	assert.DirExists(t, filepath.Join(f.logPath, "bed2"))
}

func fileHasContent(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
