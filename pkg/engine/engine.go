// Package engine runs UI test scripts against an immediate-mode host.
//
// The engine owns a registry of tests and a run queue. ProcessQueue drives
// the host one frame at a time: for each queued test it renders a few
// warm-up frames with only the test's GUI function, then runs the test body
// as a coroutine that suspends at every frame boundary, then renders a few
// cool-down frames with both functions suppressed.
//
// The engine implements host.Hooks. The host calls those hooks while it
// builds a frame so the engine can stamp simulated input (PreNewFrame), run
// the GUI function (PostNewFrame), and record item geometry and status for
// queries (ItemAdd, ItemInfo).
package engine

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/go-drift/testengine/pkg/config"
	testerrors "github.com/go-drift/testengine/pkg/errors"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/input"
	"github.com/go-drift/testengine/pkg/query"
)

var (
	// ErrReentrant is returned when ProcessQueue is called while it runs.
	ErrReentrant = errors.New("engine: ProcessQueue is already running")
	// ErrDesync is wrapped when the host frame counter and the engine's
	// expectation drift apart.
	ErrDesync = errors.New("engine: host frame counter out of sync")
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. By default the engine builds one from the
// configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock sets the clock used for durations, sleeps and pacing.
func WithClock(clock Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// Results counts the outcome of the tests that ran.
type Results struct {
	Tested    int
	Succeeded int
	Failed    int
	Unknown   int
}

// OK reports whether every tested test succeeded.
func (r Results) OK() bool {
	return r.Tested == r.Succeeded
}

func (r Results) String() string {
	status := "OK"
	if !r.OK() {
		status = "KO"
	}
	return fmt.Sprintf("%s %d/%d", status, r.Succeeded, r.Tested)
}

// Engine is the test scheduler. Except for Abort and the debug server, it
// must be used from the goroutine that owns the host.
type Engine struct {
	host   host.Host
	cfg    *config.Config
	logger *zap.Logger
	clock  Clock

	liveLevel zapcore.Level

	tests []*Test
	queue []runTask

	tracker *query.Tracker
	inputs  input.Overlay

	ctx        *Context
	frameCount int
	processing bool
	abort      atomic.Bool

	frameStart time.Time
	lastFrame  time.Time
	perf       *FrameTimingBuffer
	capture    *FrameTimingBuffer

	settings Settings
	debug    *debugServer

	mu        sync.Mutex
	published publishedState
}

// New creates an engine driving h. The configuration is resolved; nil means
// defaults. The caller must register the engine as the host's hooks.
func New(h host.Host, cfg *config.Config, opts ...Option) (*Engine, error) {
	if h == nil {
		return nil, errors.New("engine: nil host")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Resolve(); err != nil {
		return nil, &testerrors.TestError{Op: "engine.New", Kind: testerrors.KindConfig, Err: err}
	}
	e := &Engine{
		host:      h,
		cfg:       cfg,
		clock:     realClock{},
		liveLevel: cfg.Verbosity.Level(),
		tracker: query.NewTracker(query.Options{
			LocateMaxAge: cfg.LocateMaxAge,
			GCFrames:     cfg.GCFrames,
		}),
		perf: NewFrameTimingBuffer(120),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		logger, err := cfg.Logger()
		if err != nil {
			return nil, fmt.Errorf("engine: build logger: %w", err)
		}
		e.logger = logger
	}
	e.frameCount = h.IO().FrameCount
	if cfg.DebugServerPort > 0 {
		if _, err := e.StartDebugServer(cfg.DebugServerPort); err != nil {
			e.logger.Warn("debug server unavailable", zap.Error(err))
		}
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// FrameCount returns the last frame number observed in PreNewFrame.
func (e *Engine) FrameCount() int {
	return e.frameCount
}

// Tracker returns the item query tracker.
func (e *Engine) Tracker() *query.Tracker {
	return e.tracker
}

// Inputs returns the simulated input overlay.
func (e *Engine) Inputs() *input.Overlay {
	return &e.inputs
}

// FrameTimings returns recent frame durations.
func (e *Engine) FrameTimings() *FrameTimingBuffer {
	return e.perf
}

// RegisterTest adds a test to the registry and returns it. The caller's
// source location is recorded.
func (e *Engine) RegisterTest(category, name string, opts ...TestOption) *Test {
	t := &Test{Category: category, Name: name}
	if _, file, line, ok := runtime.Caller(1); ok {
		t.SourceFile = file
		t.SourceLine = line
	}
	for _, opt := range opts {
		opt(t)
	}
	e.tests = append(e.tests, t)
	e.publish()
	return t
}

// Tests returns the registered tests in registration order.
func (e *Engine) Tests() []*Test {
	return e.tests
}

// FindTest returns the test with the given category and name, or nil.
func (e *Engine) FindTest(category, name string) *Test {
	for _, t := range e.tests {
		if t.Category == category && t.Name == name {
			return t
		}
	}
	return nil
}

// QueueTest appends t to the run queue. Queuing a test that is already
// queued or running is ignored.
func (e *Engine) QueueTest(t *Test, flags RunFlags) {
	e.queueTest(t, flags)
}

func (e *Engine) queueTest(t *Test, flags RunFlags) bool {
	if t == nil {
		return false
	}
	if t.Status == StatusRunning || e.isQueued(t) {
		e.logLine(nil, zapcore.DebugLevel, "QueueTest: "+t.FullName()+" already "+t.Status.String())
		return false
	}
	t.Status = StatusQueued
	e.queue = append(e.queue, runTask{test: t, flags: flags})
	e.publish()
	return true
}

// MatchTests returns the registered tests whose full name matches filter,
// in registration order. See matchFilter for the syntax.
func (e *Engine) MatchTests(filter string) []*Test {
	var out []*Test
	for _, t := range e.tests {
		if matchFilter(filter, t.FullName()) {
			out = append(out, t)
		}
	}
	return out
}

// QueueTests queues every registered test whose full name matches filter
// and returns how many were queued.
func (e *Engine) QueueTests(filter string, flags RunFlags) int {
	n := 0
	for _, t := range e.MatchTests(filter) {
		if e.queueTest(t, flags) {
			n++
		}
	}
	return n
}

// QueueLen returns the number of tests waiting to run.
func (e *Engine) QueueLen() int {
	return len(e.queue)
}

func (e *Engine) isQueued(t *Test) bool {
	for _, task := range e.queue {
		if task.test == t {
			return true
		}
	}
	return false
}

// Abort stops the running test at its next frame boundary and marks every
// remaining queued test as not run. Safe to call from any goroutine.
func (e *Engine) Abort() {
	e.abort.Store(true)
	e.mu.Lock()
	ctx := e.published.active
	e.mu.Unlock()
	if ctx != nil {
		ctx.aborted.Store(true)
	}
}

// IsAborting reports whether an abort is in progress.
func (e *Engine) IsAborting() bool {
	return e.abort.Load()
}

// IsRunning reports whether ProcessQueue is running.
func (e *Engine) IsRunning() bool {
	return e.processing
}

// ActiveContext returns the context of the running test, or nil.
func (e *Engine) ActiveContext() *Context {
	return e.ctx
}

// ProcessQueue runs every queued test to completion, driving the host frame
// by frame. It returns an error only when the run could not proceed (host
// failure or frame desync); test failures are reported through statuses.
func (e *Engine) ProcessQueue() error {
	if e.processing {
		return ErrReentrant
	}
	e.processing = true
	defer func() { e.processing = false }()

	e.abort.Store(false)
	e.frameCount = e.host.IO().FrameCount
	e.lastFrame = e.clock.Now()

	if keeper, ok := e.host.(host.FocusKeeper); ok && e.cfg.RestoreFocus {
		keeper.BackupFocus()
		defer keeper.RestoreFocus()
	}

	var runErr error
	ran := 0
	for len(e.queue) > 0 {
		task := e.queue[0]
		e.queue = e.queue[1:]
		if e.abort.Load() {
			task.test.Status = StatusUnknown
			e.publish()
			continue
		}
		ran++
		if err := e.runTest(task); err != nil {
			runErr = err
			e.abort.Store(true)
		}
		if e.cfg.StopOnError && task.test.Status == StatusError && !e.abort.Load() {
			e.logLine(nil, zapcore.WarnLevel, "stopping on first error")
			e.abort.Store(true)
		}
	}

	if ran > 0 {
		res := e.Results()
		level := zapcore.InfoLevel
		if !res.OK() {
			level = zapcore.WarnLevel
		}
		e.logLine(nil, level, "Tests Result: "+res.String())
	}
	e.publish()
	return runErr
}

// Results counts the statuses of the registered tests that ran.
func (e *Engine) Results() Results {
	var r Results
	for _, t := range e.tests {
		switch t.Status {
		case StatusSuccess:
			r.Tested++
			r.Succeeded++
		case StatusError:
			r.Tested++
			r.Failed++
		case StatusUnknown:
			if t.RunID != "" {
				r.Tested++
				r.Unknown++
			}
		}
	}
	return r
}

// Shutdown aborts any run, clears the registry and query tables, and stops
// the debug server.
func (e *Engine) Shutdown() {
	e.Abort()
	e.queue = nil
	e.tests = nil
	e.tracker.Clear()
	e.StopDebugServer()
	_ = e.logger.Sync()
}

// OpenSource asks the host to open the source location of t.
func (e *Engine) OpenSource(t *Test) error {
	opener, ok := e.host.(host.SourceOpener)
	if !ok {
		return errors.New("engine: host cannot open source files")
	}
	return opener.OpenSource(t.SourceFile, t.SourceLine)
}

func (e *Engine) runTest(task runTask) error {
	t := task.test
	ctx := newContext(e, t, task.flags)

	t.Log.Clear()
	t.Status = StatusRunning
	t.RunID = ctx.RunID
	t.FirstError = ""
	e.inputs.Reset()
	e.ctx = ctx
	e.setActive(ctx)
	defer func() {
		e.ctx = nil
		e.setActive(nil)
	}()

	start := e.clock.Now()
	firstFrame := e.frameCount
	ctx.LogDebug("----- Test %s ----- (run %s)", t.FullName(), ctx.RunID)

	var frameErr error
	frame := func() bool {
		if frameErr != nil {
			return false
		}
		if err := e.renderFrame(); err != nil {
			frameErr = err
			ctx.failDesync(err)
			return false
		}
		return true
	}

	if t.Flags&TestFlagNoWarmup == 0 && task.flags&RunFlagNoWarmup == 0 {
		ctx.phase = PhaseGui
		for i := 0; i < e.cfg.WarmupFrames && !ctx.IsAborted(); i++ {
			if !frame() {
				break
			}
		}
	}

	manual := task.flags&RunFlagManualRun != 0
	if t.TestFunc != nil && task.flags&RunFlagNoTestFunc == 0 && !manual && frameErr == nil && !ctx.IsAborted() {
		ctx.phase = PhaseTest
		ctx.co = startCoroutine(func() { ctx.runTestFunc(t.TestFunc) })
		for ctx.co.Resume() {
			frame()
		}
		ctx.co = nil
	}

	if t.Flags&TestFlagNoAutoFinish != 0 || manual {
		ctx.phase = PhaseGui
		for !ctx.finished && !ctx.IsAborted() && frame() {
		}
	}

	ctx.phase = PhaseNone
	ctx.recoverRefStack()

	switch {
	case ctx.errorCount > 0:
		t.Status = StatusError
	case ctx.IsAborted():
		t.Status = StatusUnknown
	default:
		t.Status = StatusSuccess
	}
	e.publish()

	if frameErr == nil {
		for i := 0; i < e.cfg.CooldownFrames; i++ {
			if !frame() {
				break
			}
		}
	}

	t.Frames = e.frameCount - firstFrame
	t.Duration = e.clock.Now().Sub(start)
	switch t.Status {
	case StatusSuccess:
		e.logLine(t, zapcore.InfoLevel, fmt.Sprintf("OK %s (%d frames, %s)", t.FullName(), t.Frames, t.Duration))
	case StatusError:
		e.logLine(t, zapcore.ErrorLevel, fmt.Sprintf("KO %s (%d frames, %s)", t.FullName(), t.Frames, t.Duration))
		e.replayLog(t)
	default:
		e.logLine(t, zapcore.WarnLevel, fmt.Sprintf("-- %s aborted", t.FullName()))
	}
	return frameErr
}

// renderFrame produces one host frame and checks that the hooks observed it.
func (e *Engine) renderFrame() error {
	expected := e.frameCount + 1
	if err := e.host.NewFrame(); err != nil {
		return fmt.Errorf("host NewFrame: %w", err)
	}
	if err := e.host.EndFrame(); err != nil {
		return fmt.Errorf("host EndFrame: %w", err)
	}
	if e.frameCount != expected {
		return fmt.Errorf("%w: expected frame %d, hooks observed %d", ErrDesync, expected, e.frameCount)
	}
	e.pace()
	return nil
}

func (e *Engine) pace() {
	if !e.cfg.Throttled() {
		return
	}
	next := e.lastFrame.Add(e.cfg.FrameInterval())
	if now := e.clock.Now(); now.Before(next) {
		e.clock.Sleep(next.Sub(now))
	}
	e.lastFrame = e.clock.Now()
}

// driving reports whether simulated input replaces host input this frame.
func (e *Engine) driving() bool {
	return e.ctx != nil && e.ctx.phase == PhaseTest && !e.abort.Load()
}

// PreNewFrame implements host.Hooks.
func (e *Engine) PreNewFrame(io *host.IO) {
	e.frameCount = io.FrameCount
	e.frameStart = e.clock.Now()
	e.inputs.Apply(io, e.driving())
}

// PostNewFrame implements host.Hooks.
func (e *Engine) PostNewFrame() {
	ctx := e.ctx
	if ctx == nil || ctx.phase == PhaseNone {
		return
	}
	if ctx.test.GuiFunc == nil || ctx.runFlags&RunFlagNoGuiFunc != 0 {
		return
	}
	ctx.runGuiFunc(ctx.test.GuiFunc)
}

// ItemAdd implements host.Hooks.
func (e *Engine) ItemAdd(item host.ItemSubmission) {
	e.tracker.ItemAdd(e.frameCount, item)
}

// ItemInfo implements host.Hooks.
func (e *Engine) ItemInfo(id host.ID, label string, flags host.StatusFlags) {
	e.tracker.ItemInfo(e.frameCount, id, label, flags)
}

// PostEndFrame implements host.Hooks.
func (e *Engine) PostEndFrame() {
	e.tracker.GarbageCollect(e.frameCount)
	d := e.clock.Now().Sub(e.frameStart)
	e.perf.Add(d)
	if e.capture != nil {
		e.capture.Add(d)
	}
	if e.debug != nil {
		e.publish()
	}
}

var _ host.Hooks = (*Engine)(nil)
