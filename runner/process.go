package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
)

// DefaultStopGracePeriod is how long a child process gets to stop its runner
// after being interrupted before it is killed.
const DefaultStopGracePeriod = 30 * time.Second

// Job is everything a child process needs to run one test bed
type Job struct {
	Config     *config.ExpandedConfig `json:"config"`
	Specifiers []string               `json:"specifiers"`
	Repeat     int                    `json:"repeat"`
}

// NewJob creates a Job for one test bed
func NewJob(cfg *config.ExpandedConfig, specs []specifier.Specifier, repeat int) *Job {
	job := &Job{Config: cfg, Repeat: repeat, Specifiers: make([]string, len(specs))}
	for i, s := range specs {
		job.Specifiers[i] = s.String()
	}
	return job
}

// ParsedSpecifiers parses the job's specifier strings
func (j *Job) ParsedSpecifiers() ([]specifier.Specifier, error) {
	return specifier.Parse(j.Specifiers)
}

// WriteJob writes the job as JSON to a new temp file in dir and returns its path
func WriteJob(dir string, job *Job) (string, error) {
	f, err := os.CreateTemp(dir, "op-harness-job-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create job file: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write job file: %w", err)
	}
	return f.Name(), nil
}

// ReadJob reads a job file written by WriteJob
func ReadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}
	if job.Config == nil {
		return nil, fmt.Errorf("job file %s has no test bed config", path)
	}
	if job.Repeat < 1 {
		return nil, fmt.Errorf("job file %s has invalid repeat %d", path, job.Repeat)
	}
	return &job, nil
}

// RunJob executes a job in the current process. It is the body of the
// run-testbed child command.
func RunJob(ctx context.Context, job *Job, factory Factory, logger log.Logger) TestBedResult {
	specs, err := job.ParsedSpecifiers()
	if err != nil {
		return TestBedResult{
			TestBed: job.Config.TestBedName,
			Outcome: OutcomeConstructionFailed,
			Err:     &RunnerConstructionError{TestBed: job.Config.TestBedName, Err: err},
		}
	}
	executor := newTestBedExecutor(factory, logger.New("component", "child", "testbed", job.Config.TestBedName))
	return executor.execute(ctx, job.Config, specs, job.Repeat)
}

// ExitCode maps a test bed outcome to the child process exit code
func ExitCode(o Outcome) int {
	switch o {
	case OutcomePassed:
		return exitcodes.Success
	case OutcomeAborted:
		return exitcodes.TestBedAborted
	case OutcomeConstructionFailed:
		return exitcodes.ConstructionFailed
	case OutcomeInterrupted:
		return exitcodes.Interrupted
	default:
		return exitcodes.Failure
	}
}

// OutcomeFromExitCode maps a child exit code back to an outcome. Unknown codes,
// including crashes, count as failures.
func OutcomeFromExitCode(code int) Outcome {
	switch code {
	case exitcodes.Success:
		return OutcomePassed
	case exitcodes.TestBedAborted:
		return OutcomeAborted
	case exitcodes.ConstructionFailed:
		return OutcomeConstructionFailed
	case exitcodes.Interrupted:
		return OutcomeInterrupted
	default:
		return OutcomeFailed
	}
}

// ProcessWorker runs each test bed in a child process. The child is started as
// `<Executable> <Args...> --job <file>` and reports its outcome via exit code.
type ProcessWorker struct {
	Executable string
	Args       []string
	JobDir     string        // Directory for job files, defaults to os.TempDir
	Grace      time.Duration // Time between interrupt and kill, defaults to DefaultStopGracePeriod
	Stdout     io.Writer
	Stderr     io.Writer
	Log        log.Logger
}

// NewProcessWorker creates a worker that re-executes the current binary with
// the given subcommand arguments.
func NewProcessWorker(logger log.Logger, args ...string) (*ProcessWorker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate own executable: %w", err)
	}
	return &ProcessWorker{
		Executable: exe,
		Args:       args,
		Grace:      DefaultStopGracePeriod,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Log:        logger.New("component", "process-worker"),
	}, nil
}

// Run implements Worker
func (w *ProcessWorker) Run(ctx context.Context, cfg *config.ExpandedConfig, specs []specifier.Specifier, repeat int) TestBedResult {
	start := time.Now()
	result := TestBedResult{TestBed: cfg.TestBedName}

	jobFile, err := WriteJob(w.JobDir, NewJob(cfg, specs, repeat))
	if err != nil {
		result.Outcome = OutcomeConstructionFailed
		result.Err = &RunnerConstructionError{TestBed: cfg.TestBedName, Err: err}
		return result
	}
	defer os.Remove(jobFile)

	args := append(append([]string{}, w.Args...), "--job", jobFile)
	cmd := exec.CommandContext(ctx, w.Executable, args...)
	cmd.Stdout = w.Stdout
	cmd.Stderr = w.Stderr
	// Interrupt first so the child can stop its runner; kill after the grace period.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = w.grace()

	w.Log.Info("Starting test bed process", "testbed", cfg.TestBedName, "job", jobFile)
	err = cmd.Run()
	result.Duration = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Outcome = OutcomePassed
	case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
		result.Outcome = OutcomeFromExitCode(exitErr.ExitCode())
	case ctx.Err() != nil:
		result.Outcome = OutcomeInterrupted
	default:
		// The process could not be started or was killed by a signal.
		result.Outcome = OutcomeFailed
	}
	if result.Outcome != OutcomePassed {
		result.Err = w.outcomeError(cfg.TestBedName, result.Outcome, err)
	}
	w.Log.Info("Test bed process exited", "testbed", cfg.TestBedName, "outcome", result.Outcome, "err", err)
	return result
}

func (w *ProcessWorker) outcomeError(testBed string, o Outcome, err error) error {
	switch o {
	case OutcomeConstructionFailed:
		return &RunnerConstructionError{TestBed: testBed, Err: fmt.Errorf("child process: %w", err)}
	case OutcomeInterrupted:
		return ErrInterrupted
	case OutcomeAborted:
		return ErrAbortAll
	default:
		return err
	}
}

func (w *ProcessWorker) grace() time.Duration {
	if w.Grace <= 0 {
		return DefaultStopGracePeriod
	}
	return w.Grace
}
