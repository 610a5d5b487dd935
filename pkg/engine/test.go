package engine

import (
	"fmt"
	"strings"
	"time"
)

// TestStatus is the lifecycle state of a registered test.
type TestStatus int

const (
	// StatusUnknown is the state of a test that never ran or was aborted.
	StatusUnknown TestStatus = iota
	// StatusQueued means the test waits in the run queue.
	StatusQueued
	// StatusRunning means the test is the active test.
	StatusRunning
	// StatusSuccess means the last run finished without failed checks.
	StatusSuccess
	// StatusError means the last run had at least one failed check.
	StatusError
)

func (s TestStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// TestFlags alter how a single test is run.
type TestFlags uint32

const (
	// TestFlagNoWarmup skips the warm-up frames before the test body.
	TestFlagNoWarmup TestFlags = 1 << iota
	// TestFlagNoAutoFinish keeps the test running after the body returns
	// until Context.Finish is called, typically from the GUI function.
	TestFlagNoAutoFinish
	// TestFlagNoRecoveryWarnings silences structural recovery warnings.
	TestFlagNoRecoveryWarnings
)

// RunFlags alter how a queued run is executed.
type RunFlags uint32

const (
	// RunFlagNoWarmup skips the warm-up frames.
	RunFlagNoWarmup RunFlags = 1 << iota
	// RunFlagNoGuiFunc runs the body without the GUI function.
	RunFlagNoGuiFunc
	// RunFlagNoTestFunc runs only the GUI function during warm-up.
	RunFlagNoTestFunc
	// RunFlagManualRun runs only the GUI function, without simulated input,
	// until Finish or Abort. A human operates the UI meanwhile.
	RunFlagManualRun
)

// TestOption configures a test at registration.
type TestOption func(*Test)

// WithGuiFunc sets the GUI function.
func WithGuiFunc(fn func(ctx *Context)) TestOption {
	return func(t *Test) { t.GuiFunc = fn }
}

// WithTestFunc sets the test body.
func WithTestFunc(fn func(ctx *Context)) TestOption {
	return func(t *Test) { t.TestFunc = fn }
}

// WithFlags sets the test flags.
func WithFlags(flags TestFlags) TestOption {
	return func(t *Test) { t.Flags = flags }
}

// Test is a registered test. GuiFunc and TestFunc are set with options at
// registration or assigned afterwards.
type Test struct {
	Category   string
	Name       string
	SourceFile string
	SourceLine int
	Flags      TestFlags

	// GuiFunc submits the UI under test. It runs once per frame during
	// warm-up and while the body runs.
	GuiFunc func(ctx *Context)
	// TestFunc is the test body. It runs as a coroutine that suspends at
	// every frame boundary.
	TestFunc func(ctx *Context)

	// UserData is free for the test author.
	UserData any

	Status TestStatus
	Log    TestLog

	// Results of the last run.
	RunID      string
	Frames     int
	Duration   time.Duration
	FirstError string
}

// FullName returns "category/name".
func (t *Test) FullName() string {
	return t.Category + "/" + t.Name
}

func (t *Test) String() string {
	return fmt.Sprintf("%s (%s)", t.FullName(), t.Status)
}

type runTask struct {
	test  *Test
	flags RunFlags
}

// matchFilter reports whether test name matches a filter. A filter is a
// comma-separated list of terms. A term matches by case-insensitive
// substring of the full name; a leading '^' anchors it to the start; a
// leading '-' excludes matches. An empty filter or "all" matches everything.
func matchFilter(filter, name string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" || strings.EqualFold(filter, "all") {
		return true
	}
	name = strings.ToLower(name)
	included := false
	hasInclude := false
	for _, term := range strings.Split(filter, ",") {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		exclude := strings.HasPrefix(term, "-")
		if exclude {
			term = term[1:]
		} else {
			hasInclude = true
		}
		var hit bool
		if rest, ok := strings.CutPrefix(term, "^"); ok {
			hit = strings.HasPrefix(name, rest)
		} else {
			hit = strings.Contains(name, term)
		}
		if hit && exclude {
			return false
		}
		if hit {
			included = true
		}
	}
	return included || !hasInclude
}
