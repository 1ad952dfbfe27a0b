// Package specifier parses the test class and test case selectors given on the
// command line or in a test file.
//
// A specifier is either "ClassName", which selects every case of the class, or
// "ClassName:test_a,test_b", which selects the listed cases in order.
package specifier

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	classNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*Test$`)
	caseNameRegex  = regexp.MustCompile(`^test_[A-Za-z0-9_]+$`)
)

// Specifier selects a test class and, optionally, some of its cases.
type Specifier struct {
	Class string
	Cases []string // nil means every case in the class
}

// RunsAllCases reports whether the specifier selects the whole class
func (s Specifier) RunsAllCases() bool {
	return s.Cases == nil
}

// String renders the specifier in its command line form
func (s Specifier) String() string {
	if s.Cases == nil {
		return s.Class
	}
	return s.Class + ":" + strings.Join(s.Cases, ",")
}

// UserError reports malformed specifier syntax or a naming convention violation.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func newUserError(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// IsUserError checks if the error is or wraps a UserError
func IsUserError(err error) bool {
	var userErr *UserError
	return err != nil && errors.As(err, &userErr)
}

// ValidateClassName checks the test class naming convention.
func ValidateClassName(name string) error {
	if !classNameRegex.MatchString(name) {
		return newUserError("test class %q does not follow the test class naming convention *Test", name)
	}
	return nil
}

// ValidateCaseName checks the test case naming convention.
func ValidateCaseName(class, name string) error {
	if !caseNameRegex.MatchString(name) {
		return newUserError("requested test case %q in test class %q does not follow the test case naming convention test_*", name, class)
	}
	return nil
}

// Parse converts specifier strings into Specifiers, preserving order.
func Parse(items []string) ([]Specifier, error) {
	specs := make([]Specifier, 0, len(items))
	for _, item := range items {
		spec, err := parseOne(item)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func parseOne(item string) (Specifier, error) {
	tokens := strings.Split(item, ":")
	if len(tokens) > 2 {
		return Specifier{}, newUserError("syntax error in test specifier %q", item)
	}

	class := strings.TrimSpace(tokens[0])
	if err := ValidateClassName(class); err != nil {
		return Specifier{}, err
	}
	if len(tokens) == 1 {
		return Specifier{Class: class}, nil
	}

	pieces := strings.Split(tokens[1], ",")
	cases := make([]string, 0, len(pieces))
	for _, p := range pieces {
		name := strings.TrimSpace(p)
		if err := ValidateCaseName(class, name); err != nil {
			return Specifier{}, err
		}
		cases = append(cases, name)
	}
	return Specifier{Class: class, Cases: cases}, nil
}
