package testbed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const maxEventLineBytes = 4 * 1024 * 1024

// classRun turns the event stream of one class process into test records.
type classRun struct {
	testBed   string
	class     string
	iteration int
	log       log.Logger
	now       func() time.Time
	onRecord  func(*types.TestRecord)

	announced  []string // Cases listed on class_start
	started    map[string]time.Time
	order      []string // Started cases in start order
	finished   map[string]bool
	records    int
	abortClass bool
	abortAll   bool
	events     int
}

func newClassRun(testBed, class string, iteration int, logger log.Logger, onRecord func(*types.TestRecord)) *classRun {
	return &classRun{
		testBed:   testBed,
		class:     class,
		iteration: iteration,
		log:       logger,
		now:       time.Now,
		onRecord:  onRecord,
		started:   make(map[string]time.Time),
		finished:  make(map[string]bool),
	}
}

// consume reads JSON-lines events until r is exhausted. Lines that are not
// events are logged and ignored.
func (c *classRun) consume(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil || ev.Action == "" {
			c.log.Debug("Class output", "class", c.class, "line", line)
			continue
		}
		c.handle(ev)
	}
	return scanner.Err()
}

func (c *classRun) handle(ev types.Event) {
	c.events++
	if ev.Time.IsZero() {
		ev.Time = c.now()
	}
	if ev.IsTerminal() {
		c.finish(ev.Case, ev.Status(), ev.Details, ev.Extras, ev.Time)
		return
	}
	switch ev.Action {
	case types.ActionClassStart:
		c.announced = ev.Cases
	case types.ActionStart:
		if _, ok := c.started[ev.Case]; !ok {
			c.order = append(c.order, ev.Case)
		}
		c.started[ev.Case] = ev.Time
	case types.ActionAbortClass, types.ActionAbortAll:
		if ev.Action == types.ActionAbortAll {
			c.abortAll = true
		} else {
			c.abortClass = true
		}
		details := fmt.Sprintf("%s: %s", ev.Action, ev.Details)
		if ev.Case != "" && !c.finished[ev.Case] {
			c.finish(ev.Case, types.TestStatusFail, details, ev.Extras, ev.Time)
		}
		c.log.Warn("Test class aborted", "class", c.class, "case", ev.Case, "action", ev.Action, "details", ev.Details)
	case types.ActionOutput:
		c.log.Info("Test output", "class", c.class, "case", ev.Case, "msg", ev.Details)
	default:
		c.log.Debug("Ignoring unknown event", "class", c.class, "action", ev.Action)
	}
}

func (c *classRun) finish(tc string, status types.TestStatus, details string, extras map[string]any, end time.Time) {
	begin, ok := c.started[tc]
	if !ok {
		begin = end
	}
	if tc != "" {
		c.finished[tc] = true
	}
	c.records++
	c.onRecord(&types.TestRecord{
		TestBed:   c.testBed,
		Class:     c.class,
		Case:      tc,
		Iteration: c.iteration,
		Status:    status,
		Details:   details,
		Extras:    extras,
		Begin:     begin,
		End:       end,
	})
}

// close reconciles the stream with the way the process ended. Cases that
// started but never finished become errors; a failed process that reported
// nothing becomes a class-level error.
func (c *classRun) close(procErr error, interrupted bool, stderrTail string) {
	reason := "test case did not finish"
	if interrupted {
		reason = "test case interrupted"
	} else if procErr != nil {
		reason = fmt.Sprintf("test case did not finish: %v", procErr)
	}
	for _, tc := range c.order {
		if !c.finished[tc] {
			c.finish(tc, types.TestStatusError, withTail(reason, stderrTail), nil, c.now())
		}
	}

	if c.records > 0 || c.abortAll || c.abortClass {
		return
	}
	switch {
	case interrupted:
		return
	case procErr != nil:
		c.finish("", types.TestStatusError, withTail(fmt.Sprintf("test class failed: %v", procErr), stderrTail), nil, c.now())
	case c.events == 0:
		c.finish("", types.TestStatusError, withTail("test class produced no events", stderrTail), nil, c.now())
	}
}

func withTail(msg, tail string) string {
	tail = strings.TrimSpace(tail)
	if tail == "" {
		return msg
	}
	return msg + "\nstderr: " + tail
}
