// Package errors provides structured error handling for the test engine.
//
// Every failure a test script can produce is reported as a [TestError]
// carrying a [Kind]. Errors flow to a process-wide [Handler] so embedders can
// surface them in their own tooling; the default handler logs through zap.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the category of an error.
type Kind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown Kind = iota
	// KindAssert indicates a checked condition evaluated false.
	KindAssert
	// KindLookup indicates a referenced item was not found within the retry budget.
	KindLookup
	// KindStructural indicates a script left nested scopes open.
	KindStructural
	// KindUsage indicates an API misuse, such as re-queuing a queued test.
	KindUsage
	// KindDesync indicates the host frame counter drifted from the engine's
	// expectation. Hooks are not wired correctly; fatal to the whole queue.
	KindDesync
	// KindPanic indicates a recovered panic inside a test function.
	KindPanic
	// KindConfig indicates an invalid configuration.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindAssert:
		return "assert"
	case KindLookup:
		return "lookup"
	case KindStructural:
		return "structural"
	case KindUsage:
		return "usage"
	case KindDesync:
		return "desync"
	case KindPanic:
		return "panic"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// TestError represents a failure raised while running a test.
type TestError struct {
	// Op is the operation that failed (e.g., "ItemClick").
	Op string
	// Kind categorizes the error.
	Kind Kind
	// Test is the "category/name" of the running test, if any.
	Test string
	// Err is the underlying error.
	Err error
	// File and Line locate the script statement that raised the error.
	File string
	Line int
	// Frame is the engine frame counter at the time of the error.
	Frame int
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *TestError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	fmt.Fprintf(&sb, " [%s]", e.Kind)
	if e.Test != "" {
		fmt.Fprintf(&sb, " test=%s", e.Test)
	}
	if e.File != "" {
		fmt.Fprintf(&sb, " at=%s:%d", e.File, e.Line)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *TestError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "engine.TestFunc").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Handler receives errors reported by the engine.
type Handler interface {
	// HandleError is called when a test error occurs.
	HandleError(err *TestError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
