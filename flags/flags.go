package flags

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "OP_HARNESS"

// ParallelMode selects how test beds run when --parallel is set
type ParallelMode string

const (
	ParallelModeProcess   ParallelMode = "process"
	ParallelModeInProcess ParallelMode = "inprocess"
)

// IsValid reports whether m is a known parallel mode
func (m ParallelMode) IsValid() bool {
	return m == ParallelModeProcess || m == ParallelModeInProcess
}

var (
	Config = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to the test configuration file (JSON, YAML or TOML)",
	}
	TestArgs = &cli.StringSliceFlag{
		Name:    "test-args",
		Aliases: []string{"ta"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TEST_ARGS"),
		Usage:   "Free-form arguments handed to every test class as cli_args",
	}
	TestClass = &cli.StringSliceFlag{
		Name:    "testclass",
		Aliases: []string{"tc"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTCLASS"),
		Usage:   "Test specifier, <Class> or <Class>:<case>,<case>. May be repeated.",
	}
	TestFile = &cli.StringFlag{
		Name:    "testfile",
		Aliases: []string{"tf"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTFILE"),
		Usage:   "Path to a file with one test specifier per line",
	}
	TestBed = &cli.StringSliceFlag{
		Name:    "testbed",
		Aliases: []string{"tb"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTBED"),
		Usage:   "Only run on the named test beds. May be repeated.",
	}
	Repeat = &cli.IntFlag{
		Name:    "repeat",
		Aliases: []string{"r"},
		Value:   1,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REPEAT"),
		Usage:   "Number of times to run the test specifiers on each test bed",
	}
	Parallel = &cli.BoolFlag{
		Name:    "parallel",
		Aliases: []string{"p"},
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL"),
		Usage:   "Run test beds in parallel",
	}
	ParallelModeFlag = &cli.StringFlag{
		Name:    "parallel-mode",
		Value:   string(ParallelModeProcess),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARALLEL_MODE"),
		Usage:   fmt.Sprintf("How parallel test beds run: %s (one OS process per test bed) or %s", ParallelModeProcess, ParallelModeInProcess),
		Action: func(_ *cli.Context, v string) error {
			if !ParallelMode(v).IsValid() {
				return fmt.Errorf("invalid parallel mode %q, must be one of: %s, %s", v, ParallelModeProcess, ParallelModeInProcess)
			}
			return nil
		},
	}
	LogPath = &cli.StringFlag{
		Name:    "logpath",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGPATH"),
		Usage:   "Overrides the logpath from the test configuration",
	}
	TestPaths = &cli.StringSliceFlag{
		Name:    "testpaths",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TESTPATHS"),
		Usage:   "Overrides the testpaths from the test configuration",
	}
	StopGracePeriod = &cli.DurationFlag{
		Name:    "stop-grace-period",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STOP_GRACE_PERIOD"),
		Usage:   "Time a test class or test bed process gets to exit after an interrupt before it is killed. 0 uses the defaults.",
	}
)

// Job is the flag of the hidden run-testbed command
var Job = &cli.StringFlag{
	Name:     "job",
	Required: true,
	Usage:    "Path to the job file written by the parent process",
}

var requiredFlags = []cli.Flag{
	Config,
}

var optionalFlags = []cli.Flag{
	TestArgs,
	TestClass,
	TestFile,
	TestBed,
	Repeat,
	Parallel,
	ParallelModeFlag,
	LogPath,
	TestPaths,
	StopGracePeriod,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

// CheckRequired checks required flags and that exactly one of --testclass
// and --testfile is set.
func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	hasClass := ctx.IsSet(TestClass.Name)
	hasFile := ctx.IsSet(TestFile.Name)
	switch {
	case hasClass && hasFile:
		return errors.New("flags testclass and testfile are mutually exclusive")
	case !hasClass && !hasFile:
		return errors.New("one of flags testclass or testfile is required")
	}
	if ctx.Int(Repeat.Name) < 1 {
		return fmt.Errorf("flag repeat must be a positive integer, got %d", ctx.Int(Repeat.Name))
	}
	return nil
}
