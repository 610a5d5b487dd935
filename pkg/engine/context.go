package engine

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zapcore"

	"github.com/go-drift/testengine/pkg/config"
	testerrors "github.com/go-drift/testengine/pkg/errors"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
	"github.com/go-drift/testengine/pkg/input"
	"github.com/go-drift/testengine/pkg/query"
)

// Phase is the part of a test currently executing.
type Phase int

const (
	// PhaseNone means neither test function runs (cool-down).
	PhaseNone Phase = iota
	// PhaseGui means only the GUI function runs (warm-up).
	PhaseGui
	// PhaseTest means the body runs, with the GUI function every frame.
	PhaseTest
)

// InputMode selects how item verbs interact with items.
type InputMode int

const (
	// InputModeMouse moves the simulated pointer and clicks.
	InputModeMouse InputMode = iota
	// InputModeNav moves navigation focus and presses NavActivate.
	InputModeNav
)

// OpFlags alter a single facade operation.
type OpFlags uint32

const (
	// OpNoError turns a failed lookup into a silent false result.
	OpNoError OpFlags = 1 << iota
	// OpNoCheckHoveredID skips the hover verification after a pointer move.
	OpNoCheckHoveredID
	// OpNoFocusWindow skips bringing the item's window to the front.
	OpNoFocusWindow
	// OpMoveToEdgeL aims at the left edge instead of the center.
	OpMoveToEdgeL
	// OpMoveToEdgeR aims at the right edge.
	OpMoveToEdgeR
	// OpMoveToEdgeU aims at the top edge.
	OpMoveToEdgeU
	// OpMoveToEdgeD aims at the bottom edge.
	OpMoveToEdgeD
)

type refEntry struct {
	id   host.ID
	path string
}

// Context is the per-run state handed to a test's GUI function and body. It
// carries the current reference base used to resolve relative paths and all
// the scripting verbs.
type Context struct {
	engine   *Engine
	test     *Test
	runFlags RunFlags
	phase    Phase
	co       *coroutine
	inGui    bool

	// RunID identifies this run in logs and exports.
	RunID string
	// InputMode selects pointer or navigation interaction.
	InputMode InputMode
	// OpFlags are added to every facade operation.
	OpFlags OpFlags

	refID    host.ID
	refPath  string
	refStack []refEntry

	aborted    atomic.Bool
	finished   bool
	errorCount int
}

func newContext(e *Engine, t *Test, flags RunFlags) *Context {
	return &Context{
		engine:   e,
		test:     t,
		runFlags: flags,
		RunID:    uuid.NewString(),
	}
}

// Test returns the running test.
func (c *Context) Test() *Test {
	return c.test
}

// Engine returns the owning engine.
func (c *Context) Engine() *Engine {
	return c.engine
}

// Config returns the engine configuration.
func (c *Context) Config() *config.Config {
	return c.engine.cfg
}

// IO returns the host input record.
func (c *Context) IO() *host.IO {
	return c.engine.host.IO()
}

// Inputs returns the simulated input overlay.
func (c *Context) Inputs() *input.Overlay {
	return &c.engine.inputs
}

// FrameCount returns the current frame number.
func (c *Context) FrameCount() int {
	return c.engine.frameCount
}

// IsAborted reports whether the run was aborted.
func (c *Context) IsAborted() bool {
	return c.aborted.Load() || c.engine.abort.Load()
}

// IsError reports whether a check failed during this run.
func (c *Context) IsError() bool {
	return c.errorCount > 0
}

// ErrorCount returns the number of failed checks during this run.
func (c *Context) ErrorCount() int {
	return c.errorCount
}

// Phase returns the active phase.
func (c *Context) Phase() Phase {
	return c.phase
}

// IsGuiFunc reports whether the caller runs inside the GUI function.
func (c *Context) IsGuiFunc() bool {
	return c.inGui
}

// Yield suspends the test body until the next frame has been rendered.
// Calling it from the GUI function is a usage error.
func (c *Context) Yield() {
	if c.inGui || c.co == nil {
		c.fail("Yield", testerrors.KindUsage, fmt.Errorf("Yield called outside of the test body"))
		return
	}
	if c.IsAborted() {
		panic(abortSignal{})
	}
	c.co.Yield()
	if c.IsAborted() {
		panic(abortSignal{})
	}
}

// YieldFrames yields n frames.
func (c *Context) YieldFrames(n int) {
	for ; n > 0; n-- {
		c.Yield()
	}
}

// Sleep yields frames until d of simulated frame time has passed. In fast
// mode it yields a single frame.
func (c *Context) Sleep(d time.Duration) {
	if c.engine.cfg.RunFast {
		c.Yield()
		return
	}
	remaining := d.Seconds()
	for remaining > 0 {
		c.Yield()
		remaining -= c.frameDelta()
	}
}

// SleepShort sleeps for a short human-like pause.
func (c *Context) SleepShort() {
	c.Sleep(300 * time.Millisecond)
}

func (c *Context) frameDelta() float64 {
	if dt := c.IO().DeltaTime; dt > 0 {
		return dt
	}
	return c.engine.cfg.FrameInterval().Seconds()
}

// Finish ends the test. From the body it unwinds the body immediately; from
// the GUI function it lets a TestFlagNoAutoFinish test complete.
func (c *Context) Finish() {
	c.finished = true
	if c.phase == PhaseTest && !c.inGui {
		panic(finishSignal{})
	}
}

// Check records a failure when cond is false and returns cond. The test goes
// on running.
func (c *Context) Check(cond bool, format string, args ...any) bool {
	if !cond {
		c.fail("Check", testerrors.KindAssert, fmt.Errorf(format, args...))
	}
	return cond
}

// Require is like Check but ends the test body (or the current GUI
// function call) on failure.
func (c *Context) Require(cond bool, format string, args ...any) {
	if cond {
		return
	}
	c.fail("Require", testerrors.KindAssert, fmt.Errorf(format, args...))
	panic(requireSignal{})
}

// CheckNoError checks that err is nil.
func (c *Context) CheckNoError(err error) bool {
	if err != nil {
		c.fail("CheckNoError", testerrors.KindAssert, err)
		return false
	}
	return true
}

// Errorf records a failure without a condition.
func (c *Context) Errorf(format string, args ...any) {
	c.fail("Error", testerrors.KindAssert, fmt.Errorf(format, args...))
}

// fail records a failed check, located at the script statement that caused
// it. Usage errors are logged as warnings and do not fail the test.
func (c *Context) fail(op string, kind testerrors.Kind, err error) {
	if c.IsAborted() && kind != testerrors.KindDesync {
		c.LogDebug("%s ignored after abort: %v", op, err)
		return
	}
	if kind == testerrors.KindUsage {
		c.LogWarning("%s: %v", op, err)
		return
	}
	te := &testerrors.TestError{
		Op:    op,
		Kind:  kind,
		Test:  c.test.FullName(),
		Err:   err,
		Frame: c.engine.frameCount,
	}
	te.File, te.Line = scriptLocation()
	te.StackTrace = testerrors.CaptureStack()
	c.errorCount++
	if c.test.FirstError == "" {
		c.test.FirstError = te.Error()
	}
	c.engine.logLine(c.test, zapcore.ErrorLevel, te.Error())
	testerrors.Report(te)
	if cfg := c.engine.cfg; cfg.BreakOnError && cfg.OnBreak != nil {
		cfg.OnBreak()
	}
}

const enginePackage = "github.com/go-drift/testengine/pkg/engine."

// scriptLocation returns the innermost caller outside the engine package.
func scriptLocation() (string, int) {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, enginePackage) || strings.HasSuffix(f.File, "_test.go") {
			return filepath.Base(f.File), f.Line
		}
		if !more {
			return "", 0
		}
	}
}

func (c *Context) failDesync(err error) {
	c.aborted.Store(true)
	c.fail("engine.frame", testerrors.KindDesync, err)
}

// LogDebug logs at debug level.
func (c *Context) LogDebug(format string, args ...any) {
	c.engine.logLine(c.test, zapcore.DebugLevel, fmt.Sprintf(format, args...))
}

// LogInfo logs at info level.
func (c *Context) LogInfo(format string, args ...any) {
	c.engine.logLine(c.test, zapcore.InfoLevel, fmt.Sprintf(format, args...))
}

// LogWarning logs at warning level.
func (c *Context) LogWarning(format string, args ...any) {
	c.engine.logLine(c.test, zapcore.WarnLevel, fmt.Sprintf(format, args...))
}

// LogError logs at error level. It does not fail the test.
func (c *Context) LogError(format string, args ...any) {
	c.engine.logLine(c.test, zapcore.ErrorLevel, fmt.Sprintf(format, args...))
}

// GetID resolves ref against the current reference base.
func (c *Context) GetID(ref idpath.Ref) host.ID {
	return ref.Resolve(c.refID)
}

// GetIDFrom resolves ref against an explicit seed.
func (c *Context) GetIDFrom(ref idpath.Ref, seed host.ID) host.ID {
	return ref.Resolve(seed)
}

// SetRef sets the reference base. Paths are resolved from the root.
func (c *Context) SetRef(ref idpath.Ref) {
	c.refID = ref.Resolve(0)
	c.refPath = ref.Path
	c.LogDebug("SetRef %s -> 0x%08X", ref, uint32(c.refID))
}

// Ref returns the current reference base.
func (c *Context) Ref() idpath.Ref {
	return idpath.Ref{ID: c.refID, Path: c.refPath}
}

// PushRef saves the reference base and sets a new one relative to it.
func (c *Context) PushRef(ref idpath.Ref) {
	c.refStack = append(c.refStack, refEntry{id: c.refID, path: c.refPath})
	c.refID = c.GetID(ref)
	c.refPath = ref.Path
}

// PopRef restores the reference base saved by the matching PushRef.
func (c *Context) PopRef() {
	n := len(c.refStack)
	if n == 0 {
		c.fail("PopRef", testerrors.KindUsage, fmt.Errorf("PopRef without matching PushRef"))
		return
	}
	top := c.refStack[n-1]
	c.refStack = c.refStack[:n-1]
	c.refID, c.refPath = top.id, top.path
}

// recoverRefStack pops reference scopes the body left open.
func (c *Context) recoverRefStack() {
	for len(c.refStack) > 0 {
		c.recoveryWarning("PopRef()")
		c.PopRef()
	}
}

func (c *Context) recoveryWarning(what string) {
	if c.test.Flags&TestFlagNoRecoveryWarnings != 0 {
		c.LogDebug("Recovered from missing %s", what)
		return
	}
	c.LogWarning("Recovered from missing %s", what)
}

// runTestFunc runs the body inside the coroutine and turns unwinds and
// panics into statuses.
func (c *Context) runTestFunc(fn func(*Context)) {
	defer testerrors.RecoverWithCallback("engine.TestFunc", func(r any) {
		c.recovered("engine.TestFunc", r)
	})
	fn(c)
}

// runGuiFunc runs the GUI function on the engine goroutine, then asks the
// host to close any scope it left open.
func (c *Context) runGuiFunc(fn func(*Context)) {
	c.inGui = true
	defer func() {
		c.inGui = false
		if rec, ok := c.engine.host.(host.StackRecoverer); ok {
			rec.RecoverStacks(c.recoveryWarning)
		}
	}()
	defer testerrors.RecoverWithCallback("engine.GuiFunc", func(r any) {
		c.recovered("engine.GuiFunc", r)
	})
	fn(c)
}

// recovered handles a value recovered from a test or GUI function. Panics
// that are not unwind signals fail the test.
func (c *Context) recovered(op string, r any) {
	switch r.(type) {
	case finishSignal, requireSignal:
	case abortSignal:
		c.aborted.Store(true)
	default:
		c.fail(op, testerrors.KindPanic, fmt.Errorf("panic: %v", r))
	}
}

// currentStatus returns the flags the host reported for info on the latest
// frame, or zero when it did not report the item then.
func (c *Context) currentStatus(info *query.ItemInfo) host.StatusFlags {
	return c.statusSince(info, c.engine.frameCount-1)
}

// statusSince returns the flags the host last reported for info when that
// report came after frame, or zero. Items that vanish once activated, such
// as menu entries, keep their last report.
func (c *Context) statusSince(info *query.ItemInfo, frame int) host.StatusFlags {
	if info.TimestampStatus <= frame {
		return 0
	}
	return info.StatusFlags
}

// recentStatus is like currentStatus but accepts flags up to LocateMaxAge
// frames old, the age ItemInfo accepts for geometry. Flags older than the
// geometry are never used.
func (c *Context) recentStatus(info *query.ItemInfo) host.StatusFlags {
	if info.TimestampStatus < info.TimestampMain || info.TimestampStatus+c.engine.cfg.LocateMaxAge < c.engine.frameCount {
		return 0
	}
	return info.StatusFlags
}

// ItemInfo locates ref, yielding frames between attempts. On failure it
// records a lookup error unless OpNoError is set.
func (c *Context) ItemInfo(ref idpath.Ref, flags OpFlags) (*query.ItemInfo, bool) {
	flags |= c.OpFlags
	id := c.GetID(ref)
	if id == 0 {
		c.fail("ItemInfo", testerrors.KindUsage, fmt.Errorf("invalid reference %q", ref))
		return nil, false
	}
	tr := c.engine.tracker
	label := ref.Path
	if info, ok := tr.Locate(c.engine.frameCount, id, label); ok {
		return info, true
	}
	for retry := 0; retry < c.engine.cfg.LocateRetries; retry++ {
		c.Yield()
		if info, ok := tr.Locate(c.engine.frameCount, id, label); ok {
			return info, true
		}
	}
	if flags&OpNoError == 0 {
		c.fail("ItemInfo", testerrors.KindLookup, fmt.Errorf("unable to locate item %q (0x%08X)", ref, uint32(id)))
	}
	return nil, false
}

// ItemExists reports whether ref can be located.
func (c *Context) ItemExists(ref idpath.Ref) bool {
	_, ok := c.ItemInfo(ref, OpNoError)
	return ok
}

// PerfCapture yields frames while timing them and logs the result.
func (c *Context) PerfCapture(name string) PerfStats {
	frames := 60 * c.engine.cfg.PerfStressAmount
	buf := NewFrameTimingBuffer(frames)
	c.engine.capture = buf
	defer func() { c.engine.capture = nil }()
	c.YieldFrames(frames)
	stats := buf.Stats()
	c.LogInfo("[perf] %s: %s", name, stats)
	return stats
}
