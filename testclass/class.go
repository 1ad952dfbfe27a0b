// Package testclass is the Go SDK for test class executables driven by
// op-harness. A test class executable defines a Class and calls Main:
//
//	func main() {
//		os.Exit(testclass.Main(&testclass.Class{
//			Name:  "WifiConnectTest",
//			Cases: []testclass.Case{{Name: "test_connect", Func: testConnect}},
//		}))
//	}
package testclass

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/specifier"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Func is the signature shared by test cases and fixtures
type Func func(ctx context.Context, s *State) error

// Case is one named test case
type Case struct {
	Name string
	Func Func
}

// Class groups test cases with their fixtures. Any fixture may be nil.
type Class struct {
	Name          string
	SetupClass    Func
	TeardownClass Func
	Setup         Func // Runs before every case
	Teardown      Func // Runs after every case whose Setup succeeded
	Cases         []Case
}

// Validate checks class and case naming and rejects duplicate cases
func (c *Class) Validate() error {
	if err := specifier.ValidateClassName(c.Name); err != nil {
		return err
	}
	if len(c.Cases) == 0 {
		return fmt.Errorf("test class %s has no test cases", c.Name)
	}
	seen := make(map[string]bool, len(c.Cases))
	for _, tc := range c.Cases {
		if err := specifier.ValidateCaseName(c.Name, tc.Name); err != nil {
			return err
		}
		if tc.Func == nil {
			return fmt.Errorf("test case %s.%s has no function", c.Name, tc.Name)
		}
		if seen[tc.Name] {
			return fmt.Errorf("duplicate test case %s in test class %s", tc.Name, c.Name)
		}
		seen[tc.Name] = true
	}
	return nil
}

// selectCases returns the requested cases in request order, or every case when
// none were requested. Names that do not exist are returned separately.
func (c *Class) selectCases(requested []string) ([]Case, []string) {
	if len(requested) == 0 {
		return c.Cases, nil
	}
	byName := make(map[string]Case, len(c.Cases))
	for _, tc := range c.Cases {
		byName[tc.Name] = tc
	}
	var (
		selected []Case
		unknown  []string
	)
	for _, name := range requested {
		if tc, ok := byName[name]; ok {
			selected = append(selected, tc)
		} else {
			unknown = append(unknown, name)
		}
	}
	return selected, unknown
}

// State is handed to every fixture and test case
type State struct {
	// Config is the merged test bed config the harness wrote for this class
	Config config.RawConfig
	// LogDir is where the class may write artifacts
	LogDir string
	Log    log.Logger

	class    string
	testCase string
	emit     func(action types.EventAction, tc, details string, extras map[string]any)

	mu     sync.Mutex
	extras map[string]any
}

// Param returns a user param from the config
func (s *State) Param(key string) (any, bool) {
	v, ok := s.Config[key]
	return v, ok
}

// TestBed returns the test bed section of the config
func (s *State) TestBed() map[string]any {
	tb, _ := s.Config[config.KeyTestBed].(map[string]any)
	return tb
}

// TestBedName returns the name of the test bed under test
func (s *State) TestBedName() string {
	name, _ := s.TestBed()[config.KeyTestBedName].(string)
	return name
}

// Class returns the test class name
func (s *State) Class() string {
	return s.class
}

// Case returns the running test case, empty inside class fixtures
func (s *State) Case() string {
	return s.testCase
}

// Logf sends a line of output to the harness log
func (s *State) Logf(format string, args ...any) {
	s.emit(types.ActionOutput, s.testCase, fmt.Sprintf(format, args...), nil)
}

// AddExtra attaches a value to the result record of the running test case
func (s *State) AddExtra(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extras == nil {
		s.extras = make(map[string]any)
	}
	s.extras[key] = value
}

func (s *State) forCase(tc string) *State {
	return &State{
		Config:   s.Config,
		LogDir:   s.LogDir,
		Log:      s.Log.New("case", tc),
		class:    s.class,
		testCase: tc,
		emit:     s.emit,
	}
}

func (s *State) takeExtras() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.extras
	s.extras = nil
	return out
}

// call runs fn, turning a panic into an error
func call(ctx context.Context, fn Func, s *State) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()
	return fn(ctx, s)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

func isPanic(err error) bool {
	var p *panicError
	return errors.As(err, &p)
}
