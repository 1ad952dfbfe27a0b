package harness

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/flags"
)

// RunTestBedCommand is the hidden command that runs one test bed in a child process
const RunTestBedCommand = "run-testbed"

// Config holds the application configuration
type Config struct {
	ConfigFile      string             // Absolute path to the test configuration
	TestArgs        []string           // Free-form arguments handed to test classes
	TestClasses     []string           // Test specifiers from --testclass
	TestFile        string             // Absolute path of --testfile, empty when unset
	TestBeds        []string           // Test bed name filter
	Repeat          int                // Iterations per test bed
	Parallel        bool               // Run test beds in parallel
	ParallelMode    flags.ParallelMode // How parallel test beds are isolated
	LogPath         string             // Overrides the configured logpath when set
	TestPaths       []string           // Overrides the configured testpaths when set
	StopGracePeriod time.Duration      // Grace period before killing interrupted processes
	WorkerArgs      []string           // Arguments for run-testbed child processes
	Metrics         opmetrics.CLIConfig
	Log             log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	configFile, err := filepath.Abs(ctx.String(flags.Config.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for config '%s': %w", ctx.String(flags.Config.Name), err)
	}

	var testFile string
	if ctx.IsSet(flags.TestFile.Name) {
		testFile, err = filepath.Abs(ctx.String(flags.TestFile.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for test file '%s': %w", ctx.String(flags.TestFile.Name), err)
		}
	}

	mode := flags.ParallelMode(ctx.String(flags.ParallelModeFlag.Name))
	if !mode.IsValid() {
		return nil, fmt.Errorf("invalid parallel mode: %s. Must be one of: %s, %s",
			mode, flags.ParallelModeProcess, flags.ParallelModeInProcess)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	return &Config{
		ConfigFile:      configFile,
		TestArgs:        ctx.StringSlice(flags.TestArgs.Name),
		TestClasses:     ctx.StringSlice(flags.TestClass.Name),
		TestFile:        testFile,
		TestBeds:        ctx.StringSlice(flags.TestBed.Name),
		Repeat:          ctx.Int(flags.Repeat.Name),
		Parallel:        ctx.Bool(flags.Parallel.Name),
		ParallelMode:    mode,
		LogPath:         ctx.String(flags.LogPath.Name),
		TestPaths:       ctx.StringSlice(flags.TestPaths.Name),
		StopGracePeriod: ctx.Duration(flags.StopGracePeriod.Name),
		WorkerArgs:      workerArgs(ctx),
		Metrics:         metricsCfg,
		Log:             log,
	}, nil
}

// workerArgs forwards the logging flags to child processes so they log like
// the parent.
func workerArgs(ctx *cli.Context) []string {
	logCfg := oplog.ReadCLIConfig(ctx)
	args := []string{
		"--" + oplog.LevelFlagName, log.LevelString(logCfg.Level),
		"--" + oplog.FormatFlagName, string(logCfg.Format),
	}
	if ctx.IsSet(flags.StopGracePeriod.Name) {
		args = append(args, "--"+flags.StopGracePeriod.Name, ctx.Duration(flags.StopGracePeriod.Name).String())
	}
	return append(args, RunTestBedCommand)
}
