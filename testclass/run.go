package testclass

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Main runs the class with the process arguments and returns the exit code.
// SIGINT and SIGTERM cancel the running case.
func Main(c *Class) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Run(ctx, c, os.Args, os.Stdout, os.Stderr)
}

// Run parses the protocol flags in args (args[0] is the program name), runs
// the requested cases and writes events to stdout. Logs go to stderr.
func Run(ctx context.Context, c *Class, args []string, stdout, stderr io.Writer) int {
	code := exitcodes.Success

	app := cli.NewApp()
	app.Name = c.Name
	app.Usage = "Test class executable driven by op-harness"
	app.Writer = stderr
	app.ErrWriter = stderr
	app.HideHelpCommand = true
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Usage:    "Path to the merged test bed config written by the harness",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "logdir",
			Usage: "Directory for test artifacts",
		},
		&cli.StringFlag{
			Name:  "cases",
			Usage: "Comma separated test cases to run. Runs every case when empty.",
		},
	}
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Action = func(cliCtx *cli.Context) error {
		code = runClass(cliCtx.Context, c, classArgs{
			configPath: cliCtx.String("config"),
			logDir:     cliCtx.String("logdir"),
			cases:      splitCases(cliCtx.String("cases")),
		}, stdout, stderr)
		return nil
	}

	if err := app.RunContext(ctx, args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", c.Name, err)
		return exitcodes.Failure
	}
	return code
}

type classArgs struct {
	configPath string
	logDir     string
	cases      []string
}

func splitCases(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func runClass(ctx context.Context, c *Class, args classArgs, stdout, stderr io.Writer) int {
	em := newEmitter(stdout, c.Name)
	logger := log.NewLogger(log.NewTerminalHandler(stderr, false)).New("class", c.Name)

	if err := c.Validate(); err != nil {
		em.emit(types.ActionError, "", err.Error(), nil)
		return exitcodes.Failure
	}
	raw, err := config.Load(args.configPath)
	if err != nil {
		em.emit(types.ActionError, "", err.Error(), nil)
		return exitcodes.Failure
	}
	if args.logDir != "" {
		if err := os.MkdirAll(args.logDir, 0o755); err != nil {
			em.emit(types.ActionError, "", fmt.Sprintf("failed to create log dir: %v", err), nil)
			return exitcodes.Failure
		}
	}

	x := &classExecutor{
		class: c,
		em:    em,
		root: &State{
			Config: raw,
			LogDir: args.logDir,
			Log:    logger,
			class:  c.Name,
			emit:   em.emit,
		},
	}
	cases, unknown := c.selectCases(args.cases)
	x.run(ctx, cases, unknown)

	switch {
	case ctx.Err() != nil:
		return exitcodes.Interrupted
	case x.failed:
		return exitcodes.Failure
	}
	return exitcodes.Success
}

// classExecutor runs fixtures and cases in order and reports each outcome
type classExecutor struct {
	class  *Class
	em     *emitter
	root   *State
	failed bool
}

func (x *classExecutor) run(ctx context.Context, cases []Case, unknown []string) {
	names := make([]string, 0, len(cases)+len(unknown))
	for _, tc := range cases {
		names = append(names, tc.Name)
	}
	names = append(names, unknown...)
	x.em.classStart(names)

	for _, name := range unknown {
		x.failed = true
		x.em.emit(types.ActionError, name, fmt.Sprintf("unknown test case %s in test class %s", name, x.class.Name), nil)
	}

	defer x.teardownClass(ctx)

	if err := call(ctx, x.class.SetupClass, x.root); err != nil {
		x.setupClassFailed(cases, err)
		return
	}

	for _, tc := range cases {
		if ctx.Err() != nil {
			x.root.Log.Warn("Interrupted, skipping remaining test cases")
			return
		}
		if stop := x.runCase(ctx, tc); stop {
			return
		}
	}
}

func (x *classExecutor) setupClassFailed(cases []Case, err error) {
	action, reason := classify(err)
	switch action {
	case types.ActionSkip:
		for _, tc := range cases {
			x.em.emit(types.ActionSkip, tc.Name, "setup_class: "+reason, nil)
		}
	case types.ActionAbortAll:
		x.failed = true
		x.em.emit(types.ActionAbortAll, "", "setup_class: "+reason, nil)
	default:
		x.failed = true
		for _, tc := range cases {
			x.em.emit(types.ActionError, tc.Name, "setup_class failed: "+reason, nil)
		}
	}
}

func (x *classExecutor) teardownClass(ctx context.Context) {
	if err := call(ctx, x.class.TeardownClass, x.root); err != nil {
		x.failed = true
		_, reason := classify(err)
		x.em.emit(types.ActionError, "", "teardown_class failed: "+reason, nil)
	}
}

// runCase runs Setup, the case and Teardown and reports whether the class must stop
func (x *classExecutor) runCase(ctx context.Context, tc Case) bool {
	s := x.root.forCase(tc.Name)
	x.em.emit(types.ActionStart, tc.Name, "", nil)

	action, reason := x.execute(ctx, tc, s)
	if ctx.Err() != nil && action != types.ActionPass && action != types.ActionSkip {
		action, reason = types.ActionError, "interrupted: "+reason
	}
	x.em.emit(action, tc.Name, reason, s.takeExtras())

	switch action {
	case types.ActionPass, types.ActionSkip:
		return false
	case types.ActionAbortClass, types.ActionAbortAll:
		x.failed = true
		return true
	default:
		x.failed = true
		return false
	}
}

func (x *classExecutor) execute(ctx context.Context, tc Case, s *State) (types.EventAction, string) {
	if err := call(ctx, x.class.Setup, s); err != nil {
		return fixtureOutcome("setup", err)
	}
	err := call(ctx, tc.Func, s)
	tdErr := call(ctx, x.class.Teardown, s)

	switch {
	case err != nil && isPanic(err):
		return types.ActionError, err.Error()
	case err != nil:
		return classify(err)
	case tdErr != nil:
		return fixtureOutcome("teardown", tdErr)
	}
	return types.ActionPass, ""
}

// fixtureOutcome reports fixture failures as errors unless they carry a signal
func fixtureOutcome(fixture string, err error) (types.EventAction, string) {
	action, reason := classify(err)
	if action == types.ActionFail {
		action = types.ActionError
	}
	return action, fmt.Sprintf("%s: %s", fixture, reason)
}

// emitter writes protocol events as JSON lines
type emitter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	class string
	now   func() time.Time
}

func newEmitter(w io.Writer, class string) *emitter {
	return &emitter{enc: json.NewEncoder(w), class: class, now: time.Now}
}

func (e *emitter) classStart(cases []string) {
	e.write(types.Event{Action: types.ActionClassStart, Cases: cases})
}

func (e *emitter) emit(action types.EventAction, tc, details string, extras map[string]any) {
	e.write(types.Event{Action: action, Case: tc, Details: details, Extras: extras})
}

func (e *emitter) write(ev types.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ev.Time = e.now()
	ev.Class = e.class
	// Nothing useful can be done if stdout is gone.
	_ = e.enc.Encode(ev)
}
