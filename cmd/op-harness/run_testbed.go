package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/testbed"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

// runTestBed is the body of a child process in the process parallel mode. The
// outcome is reported through the exit code only.
func runTestBed(ctx *cli.Context) error {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())

	job, err := runner.ReadJob(ctx.String(flags.Job.Name))
	if err != nil {
		return cli.Exit(err.Error(), exitcodes.ConstructionFailed)
	}
	log = log.New("testbed", job.Config.TestBedName, "pid", os.Getpid())

	sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := testbed.NewFactory(testbed.Options{
		Log:             log,
		StopGracePeriod: ctx.Duration(flags.StopGracePeriod.Name),
	})
	result := runner.RunJob(sigCtx, job, factory, log)
	log.Info("Test bed finished", "outcome", result.Outcome, "iterations", result.Iterations, "duration", result.Duration)

	if code := runner.ExitCode(result.Outcome); code != exitcodes.Success {
		msg := fmt.Sprintf("test bed %s: %s", job.Config.TestBedName, result.Outcome)
		if result.Err != nil {
			msg = fmt.Sprintf("%s: %v", msg, result.Err)
		}
		return cli.Exit(msg, code)
	}
	return nil
}
