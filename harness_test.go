package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

const passingClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"PassTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"PassTest","Case":"test_a"}'
echo '{"Action":"pass","Class":"PassTest","Case":"test_a"}'
`

const failingClass = `#!/bin/sh
echo '{"Action":"class_start","Class":"FailTest","Cases":["test_a"]}'
echo '{"Action":"start","Class":"FailTest","Case":"test_a"}'
echo '{"Action":"fail","Class":"FailTest","Case":"test_a","Details":"nope"}'
exit 1
`

type harnessFixture struct {
	dir     string
	testDir string
	logDir  string
	config  string
}

func newHarnessFixture(t *testing.T, testBeds ...string) *harnessFixture {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()
	f := &harnessFixture{
		dir:     dir,
		testDir: filepath.Join(dir, "tests"),
		logDir:  filepath.Join(dir, "logs"),
		config:  filepath.Join(dir, "config.json"),
	}
	require.NoError(t, os.MkdirAll(f.testDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.testDir, "PassTest"), []byte(passingClass), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.testDir, "FailTest"), []byte(failingClass), 0o755))

	beds := ""
	for i, name := range testBeds {
		if i > 0 {
			beds += ","
		}
		beds += fmt.Sprintf(`{"name": %q}`, name)
	}
	content := fmt.Sprintf(`{"testbed": [%s], "logpath": %q, "testpaths": [%q]}`, beds, f.logDir, f.testDir)
	require.NoError(t, os.WriteFile(f.config, []byte(content), 0o644))
	return f
}

func (f *harnessFixture) cfg(classes ...string) *Config {
	return &Config{
		ConfigFile:   f.config,
		TestClasses:  classes,
		Repeat:       1,
		ParallelMode: flags.ParallelModeInProcess,
		Log:          log.NewLogger(log.DiscardHandler()),
	}
}

func newTestHarness(t *testing.T, cfg *Config) (*harness, *bytes.Buffer, chan error) {
	t.Helper()
	shutdown := make(chan error, 1)
	h, err := New(context.Background(), cfg, "test", func(err error) { shutdown <- err })
	require.NoError(t, err)
	out := &bytes.Buffer{}
	h.formatter = NewConsoleResultFormatter(cfg.Log, out)
	return h, out, shutdown
}

func TestNew_Errors(t *testing.T) {
	f := newHarnessFixture(t, "bed1")

	_, err := New(context.Background(), nil, "test", func(error) {})
	require.Error(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		check  func(t *testing.T, err error)
	}{
		{
			name:   "bad specifier",
			mutate: func(c *Config) { c.TestClasses = []string{"a:b:c"} },
			check: func(t *testing.T, err error) {
				assert.True(t, specifier.IsUserError(err))
			},
		},
		{
			name:   "no specifiers",
			mutate: func(c *Config) { c.TestClasses = nil },
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no test specifiers")
			},
		},
		{
			name:   "unknown test bed",
			mutate: func(c *Config) { c.TestBeds = []string{"bed9"} },
			check: func(t *testing.T, err error) {
				assert.True(t, config.IsConfigError(err))
			},
		},
		{
			name:   "missing config file",
			mutate: func(c *Config) { c.ConfigFile = filepath.Join(f.dir, "missing.json") },
			check:  func(t *testing.T, err error) {},
		},
		{
			name: "test file",
			mutate: func(c *Config) {
				c.TestClasses = nil
				c.TestFile = filepath.Join(f.dir, "tests.txt")
				require.NoError(t, os.WriteFile(c.TestFile, []byte("# nothing here\n"), 0o644))
			},
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "no test specifiers")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := f.cfg("PassTest")
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg, "test", func(error) {})
			require.Error(t, err)
			assert.True(t, IsRuntimeError(err))
			tt.check(t, err)
		})
	}
}

func TestStart_Passing(t *testing.T) {
	f := newHarnessFixture(t, "bed1", "bed2")
	h, out, shutdown := newTestHarness(t, f.cfg("PassTest"))

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, <-shutdown)
	assert.True(t, h.result.Passed)
	assert.Len(t, h.result.TestBeds, 2)
	assert.Contains(t, out.String(), "bed1")
	assert.Contains(t, out.String(), "2 test beds: 2 passed")
	latest, err := os.Stat(filepath.Join(f.logDir, "bed2", "latest"))
	require.NoError(t, err)
	assert.True(t, latest.IsDir())

	assert.False(t, h.Stopped())
	require.NoError(t, h.Stop(context.Background()))
	assert.True(t, h.Stopped())
}

func TestStart_FailureIsTestFailureError(t *testing.T) {
	f := newHarnessFixture(t, "bed1")
	h, out, _ := newTestHarness(t, f.cfg("PassTest", "FailTest"))

	err := h.Start(context.Background())
	require.Error(t, err)
	assert.True(t, IsTestFailureError(err))
	assert.Contains(t, out.String(), "1 failed")
}

func TestStart_ParallelInProcess(t *testing.T) {
	f := newHarnessFixture(t, "bed1", "bed2", "bed3")
	cfg := f.cfg("PassTest")
	cfg.Parallel = true
	cfg.Repeat = 2
	h, _, shutdown := newTestHarness(t, cfg)

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, <-shutdown)
	for _, tb := range h.result.TestBeds {
		assert.Equal(t, 2, tb.Iterations, tb.TestBed)
	}
}

func TestStart_TestBedFilterAndOverrides(t *testing.T) {
	f := newHarnessFixture(t, "bed1", "bed2")
	cfg := f.cfg("PassTest")
	cfg.TestBeds = []string{"bed2"}
	cfg.LogPath = filepath.Join(f.dir, "other-logs")
	h, _, _ := newTestHarness(t, cfg)

	require.NoError(t, h.Start(context.Background()))
	require.Len(t, h.result.TestBeds, 1)
	assert.Equal(t, "bed2", h.result.TestBeds[0].TestBed)
	assert.DirExists(t, filepath.Join(cfg.LogPath, "bed2"))
	assert.NoDirExists(t, filepath.Join(f.logDir, "bed2"))
}

func TestStart_Interrupted(t *testing.T) {
	f := newHarnessFixture(t, "bed1")
	h, _, _ := newTestHarness(t, f.cfg("PassTest"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.Start(ctx)
	require.ErrorIs(t, err, runner.ErrInterrupted)
	assert.False(t, IsTestFailureError(err))
}

func TestErrors(t *testing.T) {
	base := errors.New("boom")
	rt := NewRuntimeError(StageConfig, base)
	assert.True(t, IsRuntimeError(fmt.Errorf("wrapped: %w", rt)))
	assert.ErrorIs(t, rt, base)
	assert.Equal(t, "config error: boom", rt.Error())
	assert.False(t, IsRuntimeError(nil))

	tf := NewTestFailureError(&runner.RunResult{TestBeds: []runner.TestBedResult{
		{TestBed: "bed1", Outcome: runner.OutcomePassed},
		{TestBed: "bed2", Outcome: runner.OutcomeFailed},
		{TestBed: "bed3", Outcome: runner.OutcomeAborted},
	}})
	assert.True(t, IsTestFailureError(tf))
	assert.Equal(t, 1, tf.Failed)
	assert.Equal(t, 3, tf.Total)
	assert.Contains(t, tf.Error(), "test failure: 3 test beds: 1 passed, 1 failed, 1 aborted")
	assert.False(t, IsTestFailureError(base))

	assert.Equal(t, "test failure: 0 of 0 test beds failed", NewTestFailureError(nil).Error())
}
