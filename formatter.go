package harness

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-harness/runner"
)

const maxErrorWidth = 80

// ResultFormatter is responsible for formatting and displaying run results.
type ResultFormatter interface {
	FormatResults(runID string, result *runner.RunResult) error
}

// ConsoleResultFormatter renders a results table.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter creates a new ConsoleResultFormatter.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	return &ConsoleResultFormatter{
		logger: logger,
		out:    out,
	}
}

// FormatResults formats and displays the run results, one row per test bed.
func (f *ConsoleResultFormatter) FormatResults(runID string, result *runner.RunResult) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Bed Results %s (%s)", runID, formatDuration(result.Duration)))

	t.AppendHeader(table.Row{
		"Test Bed", "Duration", "Iterations", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test Bed", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Iterations", Align: text.AlignRight},
		{Name: "Error", WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, tb := range result.TestBeds {
		t.AppendRow(table.Row{
			tb.TestBed,
			formatDuration(tb.Duration),
			tb.Iterations,
			getOutcomeString(tb.Outcome),
			firstLine(tb.Err),
		})
	}

	if result.Passed {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(result.Duration),
		"",
		getPassedString(result.Passed),
		"",
	})
	t.Render()

	fmt.Fprintln(f.out, summarize(result))
	return nil
}

// summarize counts test beds per outcome
func summarize(result *runner.RunResult) string {
	counts := make(map[runner.Outcome]int)
	for _, tb := range result.TestBeds {
		counts[tb.Outcome]++
	}
	return fmt.Sprintf("%d test beds: %d passed, %d failed, %d aborted, %d interrupted, %d not created",
		len(result.TestBeds),
		counts[runner.OutcomePassed],
		counts[runner.OutcomeFailed],
		counts[runner.OutcomeAborted],
		counts[runner.OutcomeInterrupted],
		counts[runner.OutcomeConstructionFailed])
}

// getOutcomeString returns a marked string representing the test bed outcome
func getOutcomeString(o runner.Outcome) string {
	switch o {
	case runner.OutcomePassed:
		return "✓ pass"
	case runner.OutcomeAborted, runner.OutcomeInterrupted:
		return "- " + o.String()
	default:
		return "✗ " + o.String()
	}
}

func getPassedString(passed bool) string {
	if passed {
		return getOutcomeString(runner.OutcomePassed)
	}
	return getOutcomeString(runner.OutcomeFailed)
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	line, _, _ := strings.Cut(err.Error(), "\n")
	return line
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
