package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/go-drift/testengine/internal/testbed"
	"github.com/go-drift/testengine/pkg/config"
	testerrors "github.com/go-drift/testengine/pkg/errors"
	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/idpath"
)

type harness struct {
	eng   *Engine
	host  *testbed.Host
	logs  *observer.ObservedLogs
	clock *FakeClock
}

// newHarness wires an engine to a testbed host, in fast headless mode unless
// configure says otherwise. Live log output is captured at every level.
func newHarness(t *testing.T, configure ...func(*config.Config)) *harness {
	t.Helper()
	testerrors.SetHandler(nil)
	cfg := config.Default()
	cfg.RunFast = true
	cfg.Headless = true
	for _, fn := range configure {
		fn(cfg)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	clock := NewFakeClock()
	h := testbed.New()
	e, err := New(h, cfg, WithLogger(zap.New(core)), WithClock(clock))
	require.NoError(t, err)
	h.SetHooks(e)
	t.Cleanup(e.Shutdown)
	return &harness{eng: e, host: h, logs: logs, clock: clock}
}

// run queues every registered test and processes the queue.
func (hs *harness) run(t *testing.T) {
	t.Helper()
	hs.eng.QueueTests("", 0)
	require.NoError(t, hs.eng.ProcessQueue())
}

var (
	winPos  = graphics.Offset{X: 20, Y: 20}
	winSize = graphics.Size{Width: 320, Height: 300}
)

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Verbosity = "chatty"
	_, err := New(testbed.New(), cfg, WithLogger(zap.NewNop()))
	var te *testerrors.TestError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, testerrors.KindConfig, te.Kind)

	_, err = New(nil, nil)
	assert.Error(t, err)
}

func TestRegisterTest_RecordsSource(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "source")
	assert.True(t, strings.HasSuffix(tt.SourceFile, "engine_test.go"))
	assert.NotZero(t, tt.SourceLine)
	assert.Same(t, tt, hs.eng.FindTest("demo", "source"))
	assert.Nil(t, hs.eng.FindTest("demo", "missing"))

	require.NoError(t, hs.eng.OpenSource(tt))
	require.Len(t, hs.host.OpenedSources, 1)
	assert.Contains(t, hs.host.OpenedSources[0], "engine_test.go:")
}

func TestQueueTest_IgnoresDuplicates(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "once", WithTestFunc(func(ctx *Context) {}))
	hs.eng.QueueTest(tt, 0)
	hs.eng.QueueTest(tt, 0)
	assert.Equal(t, 1, hs.eng.QueueLen())
	assert.Equal(t, StatusQueued, tt.Status)
}

func TestQueueTests_Filter(t *testing.T) {
	hs := newHarness(t)
	hs.eng.RegisterTest("widgets", "button")
	hs.eng.RegisterTest("widgets", "checkbox")
	hs.eng.RegisterTest("menus", "file")
	assert.Equal(t, 2, hs.eng.QueueTests("^widgets", 0))
	assert.Equal(t, 1, hs.eng.QueueTests("menus,-widgets", 0))
	assert.Equal(t, 3, hs.eng.QueueLen())
}

func TestMatchTests_DoesNotQueue(t *testing.T) {
	hs := newHarness(t)
	button := hs.eng.RegisterTest("widgets", "button")
	hs.eng.RegisterTest("menus", "file")
	checkbox := hs.eng.RegisterTest("widgets", "checkbox")

	got := hs.eng.MatchTests("widgets")
	assert.Equal(t, []*Test{button, checkbox}, got)
	assert.Zero(t, hs.eng.QueueLen())
	for _, tt := range hs.eng.Tests() {
		assert.Equal(t, StatusUnknown, tt.Status, tt.FullName())
	}
	assert.Len(t, hs.eng.MatchTests(""), 3)
}

func TestProcessQueue_PhasesAndStatus(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) {
		c.WarmupFrames = 3
		c.CooldownFrames = 2
	})
	var phases []Phase
	var bodyFrames []int
	tt := hs.eng.RegisterTest("demo", "phases",
		WithGuiFunc(func(ctx *Context) {
			phases = append(phases, ctx.Phase())
		}),
		WithTestFunc(func(ctx *Context) {
			assert.Equal(t, StatusRunning, ctx.Test().Status)
			assert.Same(t, ctx, ctx.Engine().ActiveContext())
			bodyFrames = append(bodyFrames, ctx.FrameCount())
			ctx.YieldFrames(2)
			bodyFrames = append(bodyFrames, ctx.FrameCount())
		}))
	hs.run(t)

	assert.Equal(t, StatusSuccess, tt.Status)
	assert.Equal(t, []Phase{PhaseGui, PhaseGui, PhaseGui, PhaseTest, PhaseTest}, phases,
		"the GUI function runs during warm-up and the body, never during cool-down")
	require.Len(t, bodyFrames, 2)
	assert.Equal(t, 2, bodyFrames[1]-bodyFrames[0])
	assert.Equal(t, 7, tt.Frames)
	assert.NotEmpty(t, tt.RunID)
	assert.Nil(t, hs.eng.ActiveContext())
	assert.False(t, hs.eng.IsRunning())
	assert.Equal(t, Results{Tested: 1, Succeeded: 1}, hs.eng.Results())
}

func TestProcessQueue_RunFlags(t *testing.T) {
	hs := newHarness(t)
	guiCalls, bodyCalls := 0, 0
	tt := hs.eng.RegisterTest("demo", "flags",
		WithGuiFunc(func(ctx *Context) { guiCalls++ }),
		WithTestFunc(func(ctx *Context) { bodyCalls++; ctx.Yield() }))

	hs.eng.QueueTest(tt, RunFlagNoGuiFunc|RunFlagNoWarmup)
	require.NoError(t, hs.eng.ProcessQueue())
	assert.Equal(t, 0, guiCalls)
	assert.Equal(t, 1, bodyCalls)

	hs.eng.QueueTest(tt, RunFlagNoTestFunc)
	require.NoError(t, hs.eng.ProcessQueue())
	assert.Equal(t, 1, bodyCalls)
	assert.Equal(t, 2, guiCalls, "warm-up only")
	assert.Equal(t, StatusSuccess, tt.Status)
}

func TestProcessQueue_Reentrant(t *testing.T) {
	hs := newHarness(t)
	var inner error
	hs.eng.RegisterTest("demo", "reenter", WithTestFunc(func(ctx *Context) {
		inner = ctx.Engine().ProcessQueue()
	}))
	hs.run(t)
	assert.ErrorIs(t, inner, ErrReentrant)
}

func TestCheckFailure_LocatesScript(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "check", WithTestFunc(func(ctx *Context) {
		ctx.Check(1+1 == 3, "math is broken: %d", 2)
		ctx.Check(true, "never reported")
		ctx.Yield()
	}))
	hs.run(t)

	assert.Equal(t, StatusError, tt.Status)
	assert.Contains(t, tt.FirstError, "math is broken: 2")
	assert.Contains(t, tt.FirstError, "engine_test.go")
	assert.Equal(t, 1, tt.Log.Count(zapcore.ErrorLevel)-1, "one failure line plus the KO line")
	assert.Equal(t, Results{Tested: 1, Failed: 1}, hs.eng.Results())
}

func TestRequire_EndsBody(t *testing.T) {
	hs := newHarness(t)
	reached := false
	tt := hs.eng.RegisterTest("demo", "require", WithTestFunc(func(ctx *Context) {
		ctx.Require(false, "stop here")
		reached = true
	}))
	hs.run(t)
	assert.False(t, reached)
	assert.Equal(t, StatusError, tt.Status)
}

func TestPanic_FailsTest(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "panic", WithTestFunc(func(ctx *Context) {
		ctx.Yield()
		panic("kaboom")
	}))
	next := hs.eng.RegisterTest("demo", "after", WithTestFunc(func(ctx *Context) {}))
	hs.run(t)
	assert.Equal(t, StatusError, tt.Status)
	assert.Contains(t, tt.FirstError, "kaboom")
	assert.Equal(t, StatusSuccess, next.Status, "a panicking test does not stop the queue")
}

func TestUsageError_DoesNotFail(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "usage",
		WithGuiFunc(func(ctx *Context) {
			ctx.Yield()
		}),
		WithTestFunc(func(ctx *Context) {
			ctx.PopRef()
			ctx.Yield()
		}))
	hs.run(t)
	assert.Equal(t, StatusSuccess, tt.Status)
	assert.Positive(t, tt.Log.Count(zapcore.WarnLevel))
	assert.Contains(t, tt.Log.String(), "PopRef without matching PushRef")
	assert.Contains(t, tt.Log.String(), "Yield called outside of the test body")
}

func TestAbort_MarksRemainingUnknown(t *testing.T) {
	hs := newHarness(t)
	afterAbort := false
	first := hs.eng.RegisterTest("demo", "aborted", WithTestFunc(func(ctx *Context) {
		ctx.Yield()
		ctx.Engine().Abort()
		ctx.Yield()
		afterAbort = true
	}))
	ranSecond := false
	second := hs.eng.RegisterTest("demo", "never",
		WithGuiFunc(func(ctx *Context) { ranSecond = true }),
		WithTestFunc(func(ctx *Context) { ranSecond = true }))
	hs.run(t)

	assert.False(t, afterAbort, "the body unwinds at its next frame boundary")
	assert.Equal(t, StatusUnknown, first.Status)
	assert.Equal(t, StatusUnknown, second.Status)
	assert.Empty(t, second.RunID, "queued tests behind an abort never run")
	assert.False(t, ranSecond)
	assert.Equal(t, Results{Tested: 1, Unknown: 1}, hs.eng.Results())
	assert.False(t, hs.eng.Results().OK())
}

func TestAbort_KeepsEarlierError(t *testing.T) {
	hs := newHarness(t)
	afterAbort := false
	tt := hs.eng.RegisterTest("demo", "failed-then-aborted", WithTestFunc(func(ctx *Context) {
		ctx.Errorf("failed before abort")
		ctx.Engine().Abort()
		ctx.Yield()
		afterAbort = true
	}))
	hs.run(t)

	assert.False(t, afterAbort)
	assert.Equal(t, StatusError, tt.Status, "abort does not hide an earlier failure")
	assert.Contains(t, tt.FirstError, "failed before abort")
	assert.Equal(t, Results{Tested: 1, Failed: 1}, hs.eng.Results())
}

func TestAbort_FailuresAfterAbortAreIgnored(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "late-failure", WithTestFunc(func(ctx *Context) {
		ctx.Engine().Abort()
		ctx.Errorf("ignored")
	}))
	hs.run(t)
	assert.Equal(t, StatusUnknown, tt.Status)
	assert.Zero(t, tt.Log.Count(zapcore.ErrorLevel))
}

func TestStopOnError(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) { c.StopOnError = true })
	failing := hs.eng.RegisterTest("demo", "fails", WithTestFunc(func(ctx *Context) { ctx.Errorf("boom") }))
	skipped := hs.eng.RegisterTest("demo", "skipped", WithTestFunc(func(ctx *Context) {}))
	hs.run(t)
	assert.Equal(t, StatusError, failing.Status)
	assert.Equal(t, StatusUnknown, skipped.Status)
	assert.Empty(t, skipped.RunID)
}

func TestDesync_AbortsRun(t *testing.T) {
	hs := newHarness(t)
	tt := hs.eng.RegisterTest("demo", "desync", WithTestFunc(func(ctx *Context) {
		ctx.Yield()
		hs.host.FrameStep = 2
		ctx.Yield()
		ctx.Yield()
	}))
	after := hs.eng.RegisterTest("demo", "after", WithTestFunc(func(ctx *Context) {}))
	hs.eng.QueueTests("", 0)
	err := hs.eng.ProcessQueue()

	require.ErrorIs(t, err, ErrDesync)
	assert.Equal(t, StatusError, tt.Status)
	assert.Contains(t, tt.FirstError, "out of sync")
	assert.Equal(t, StatusUnknown, after.Status)
}

func TestNoAutoFinish_WaitsForFinish(t *testing.T) {
	hs := newHarness(t)
	guiFrames := 0
	tt := hs.eng.RegisterTest("demo", "manual-finish",
		WithFlags(TestFlagNoAutoFinish),
		WithGuiFunc(func(ctx *Context) {
			guiFrames++
			if guiFrames == 8 {
				ctx.Finish()
			}
		}),
		WithTestFunc(func(ctx *Context) {
			ctx.Yield()
		}))
	hs.run(t)
	assert.Equal(t, StatusSuccess, tt.Status)
	assert.Equal(t, 8, guiFrames)
}

func TestFinish_EndsBodyEarly(t *testing.T) {
	hs := newHarness(t)
	reached := false
	tt := hs.eng.RegisterTest("demo", "finish", WithTestFunc(func(ctx *Context) {
		ctx.Finish()
		reached = true
	}))
	hs.run(t)
	assert.False(t, reached)
	assert.Equal(t, StatusSuccess, tt.Status)
}

func TestStructuralRecovery(t *testing.T) {
	hs := newHarness(t)
	gui := func(ctx *Context) {
		hs.host.Begin("Leaky", winPos, winSize)
		hs.host.PushID("scope")
	}
	loud := hs.eng.RegisterTest("demo", "leaky", WithGuiFunc(gui), WithTestFunc(func(ctx *Context) {
		ctx.PushRef(idpath.RefPath("Leaky"))
		ctx.Yield()
	}))
	quiet := hs.eng.RegisterTest("demo", "quiet", WithGuiFunc(gui),
		WithFlags(TestFlagNoRecoveryWarnings),
		WithTestFunc(func(ctx *Context) { ctx.Yield() }))
	hs.run(t)

	assert.Equal(t, StatusSuccess, loud.Status)
	log := loud.Log.String()
	assert.Contains(t, log, "Recovered from missing PopID()")
	assert.Contains(t, log, "Recovered from missing End()")
	assert.Contains(t, log, "Recovered from missing PopRef()")

	assert.Equal(t, StatusSuccess, quiet.Status)
	assert.Zero(t, quiet.Log.Count(zapcore.WarnLevel))
	assert.Contains(t, quiet.Log.String(), "Recovered from missing End()")
	assert.Positive(t, hs.host.Recovered())
}

func TestLogReplayOnError(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) {
		c.Verbosity = config.VerbosityWarning
		c.VerbosityOnError = config.VerbosityDebug
	})
	hs.eng.RegisterTest("demo", "passes", WithTestFunc(func(ctx *Context) {
		ctx.LogInfo("quiet detail")
	}))
	hs.eng.RegisterTest("demo", "fails", WithTestFunc(func(ctx *Context) {
		ctx.LogInfo("useful detail")
		ctx.Errorf("boom")
	}))
	hs.run(t)

	assert.Zero(t, hs.logs.FilterMessage("quiet detail").Len(), "passing tests keep info lines buffered")
	replayed := hs.logs.FilterMessage("useful detail").All()
	require.Len(t, replayed, 1)
	assert.Equal(t, true, replayed[0].ContextMap()["replay"])
	assert.Equal(t, 1, hs.logs.FilterMessage("Tests Result: KO 1/2").Len())
}

func TestSleep_FrameTime(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) { c.RunFast = false })
	var frames int
	hs.eng.RegisterTest("demo", "sleep", WithTestFunc(func(ctx *Context) {
		start := ctx.FrameCount()
		ctx.Sleep(100 * time.Millisecond)
		frames = ctx.FrameCount() - start
	}))
	hs.run(t)
	assert.GreaterOrEqual(t, frames, 6)
	assert.LessOrEqual(t, frames, 7)
}

func TestPacing_UsesClock(t *testing.T) {
	hs := newHarness(t, func(c *config.Config) {
		c.RunFast = false
		c.Headless = false
	})
	tt := hs.eng.RegisterTest("demo", "paced", WithTestFunc(func(ctx *Context) { ctx.YieldFrames(3) }))
	hs.run(t)
	interval := hs.eng.Config().FrameInterval()
	assert.Equal(t, time.Duration(tt.Frames)*interval, hs.clock.Slept())
	assert.Equal(t, hs.clock.Slept(), tt.Duration)
}

func TestPerfCapture(t *testing.T) {
	hs := newHarness(t)
	var stats PerfStats
	tt := hs.eng.RegisterTest("perf", "idle", WithTestFunc(func(ctx *Context) {
		stats = ctx.PerfCapture("idle")
	}))
	hs.run(t)
	assert.Equal(t, 60, stats.Frames)
	assert.Equal(t, tt.Frames, hs.eng.FrameTimings().Count())
	assert.Contains(t, tt.Log.String(), "[perf] idle: 60 frames")
}

func TestShutdown_ClearsState(t *testing.T) {
	hs := newHarness(t)
	hs.eng.RegisterTest("demo", "x")
	hs.eng.QueueTests("", 0)
	hs.eng.Tracker().Locate(0, 42, "")
	hs.eng.Shutdown()
	assert.Empty(t, hs.eng.Tests())
	assert.Zero(t, hs.eng.QueueLen())
	assert.Zero(t, hs.eng.Tracker().Len())
	assert.True(t, hs.eng.IsAborting())
}

func TestErrorsReachHandler(t *testing.T) {
	hs := newHarness(t)
	var got []*testerrors.TestError
	testerrors.SetHandler(handlerFunc(func(err *testerrors.TestError) { got = append(got, err) }))
	t.Cleanup(func() { testerrors.SetHandler(nil) })
	hs.eng.RegisterTest("demo", "report", WithTestFunc(func(ctx *Context) { ctx.Errorf("reported") }))
	hs.run(t)
	require.Len(t, got, 1)
	assert.Equal(t, testerrors.KindAssert, got[0].Kind)
	assert.Equal(t, "demo/report", got[0].Test)
	assert.EqualError(t, got[0].Err, "reported")
	assert.Contains(t, got[0].StackTrace, "engine_test.go", "the stack starts at the failing script")
}

type recordingHandler struct {
	errors []*testerrors.TestError
	panics []*testerrors.PanicError
}

func (h *recordingHandler) HandleError(err *testerrors.TestError) { h.errors = append(h.errors, err) }
func (h *recordingHandler) HandlePanic(err *testerrors.PanicError) { h.panics = append(h.panics, err) }

func TestPanicsReachHandler(t *testing.T) {
	hs := newHarness(t)
	rec := &recordingHandler{}
	testerrors.SetHandler(rec)
	t.Cleanup(func() { testerrors.SetHandler(nil) })

	hs.eng.RegisterTest("demo", "body-panic", WithTestFunc(func(ctx *Context) { panic("body") }))
	guiPanicked := false
	gui := hs.eng.RegisterTest("demo", "gui-panic",
		WithGuiFunc(func(ctx *Context) {
			if ctx.Phase() == PhaseTest && !guiPanicked {
				guiPanicked = true
				panic("gui")
			}
		}),
		WithTestFunc(func(ctx *Context) { ctx.Yield() }))
	hs.eng.RegisterTest("demo", "require", WithTestFunc(func(ctx *Context) { ctx.Require(false, "stop") }))
	hs.eng.RegisterTest("demo", "finish", WithTestFunc(func(ctx *Context) { ctx.Finish() }))
	hs.run(t)

	require.Len(t, rec.panics, 2, "unwind signals are not reported as panics")
	assert.Equal(t, "engine.TestFunc", rec.panics[0].Op)
	assert.Equal(t, "body", rec.panics[0].Value)
	assert.NotEmpty(t, rec.panics[0].StackTrace)
	assert.Equal(t, "engine.GuiFunc", rec.panics[1].Op)
	assert.Equal(t, StatusError, gui.Status)

	var kinds []testerrors.Kind
	for _, err := range rec.errors {
		kinds = append(kinds, err.Kind)
	}
	assert.Equal(t, []testerrors.Kind{testerrors.KindPanic, testerrors.KindPanic, testerrors.KindAssert}, kinds)
}

type handlerFunc func(err *testerrors.TestError)

func (f handlerFunc) HandleError(err *testerrors.TestError) { f(err) }
func (f handlerFunc) HandlePanic(*testerrors.PanicError)    {}
