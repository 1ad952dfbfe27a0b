package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	harness "github.com/ethereum-optimism/infra/op-harness"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-harness"
	app.Usage = "Hardware-in-the-loop test harness"
	app.Description = "op-harness runs test classes against one or more test beds, sequentially or in parallel"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	// Specifiers carry comma-separated case lists and test args are forwarded verbatim
	app.DisableSliceFlagSeparator = true
	app.Action = cliapp.LifecycleCmd(run)
	app.Commands = []*cli.Command{
		{
			Name:   harness.RunTestBedCommand,
			Usage:  "Runs a single test bed job. Used internally by the parallel mode.",
			Hidden: true,
			Flags:  []cli.Flag{flags.Job},
			Action: runTestBed,
		},
	}
	app.ExitErrHandler = handleExitErr
	return app
}

// handleExitErr maps errors onto exit codes and prints a one-line diagnostic
func handleExitErr(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitErr cli.ExitCoder
	switch {
	case errors.As(err, &exitErr):
		// Use the exit code from the ExitCoder
		cli.HandleExitCoder(exitErr)
	case errors.Is(err, runner.ErrInterrupted):
		cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.Interrupted))
	default:
		// Runtime errors, test failures and anything unclassified
		cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.Failure))
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := harness.NewConfig(ctx, log)
	if err != nil {
		return nil, harness.NewRuntimeError(harness.StageConfig, fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg.ConfigFile, "testbeds", cfg.TestBeds, "parallel", cfg.Parallel)

	h, err := harness.New(ctx.Context, cfg, Version, closeApp)
	if err != nil {
		return nil, err
	}
	return h, nil
}
