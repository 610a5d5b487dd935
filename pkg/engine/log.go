package engine

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry is one line of a test's log.
type LogEntry struct {
	Time    time.Time
	Frame   int
	Level   zapcore.Level
	Message string
}

// TestLog buffers every line a test logs, whatever the live verbosity, so a
// failed test can replay its detail.
type TestLog struct {
	entries []LogEntry
}

// Entries returns the buffered lines in order.
func (l *TestLog) Entries() []LogEntry {
	return l.entries
}

// Clear drops every line.
func (l *TestLog) Clear() {
	l.entries = nil
}

// Count returns how many lines are at or above level.
func (l *TestLog) Count(level zapcore.Level) int {
	n := 0
	for _, e := range l.entries {
		if e.Level >= level {
			n++
		}
	}
	return n
}

func (l *TestLog) String() string {
	var sb strings.Builder
	for _, e := range l.entries {
		fmt.Fprintf(&sb, "[%04d] %-5s %s\n", e.Frame, e.Level.CapitalString(), e.Message)
	}
	return sb.String()
}

func (l *TestLog) add(e LogEntry) {
	l.entries = append(l.entries, e)
}

// logLine records a line in t's log (when t is set) and emits it live when
// it passes the verbosity threshold.
func (e *Engine) logLine(t *Test, level zapcore.Level, msg string) {
	if t != nil {
		t.Log.add(LogEntry{Time: e.clock.Now(), Frame: e.frameCount, Level: level, Message: msg})
	}
	if level < e.liveLevel {
		return
	}
	if t != nil {
		e.logger.Log(level, msg, zap.String("test", t.FullName()), zap.Int("frame", e.frameCount))
		return
	}
	e.logger.Log(level, msg)
}

// replayLog emits the buffered lines of a failed test that were below the
// live threshold but pass the on-error threshold.
func (e *Engine) replayLog(t *Test) {
	onError := e.cfg.VerbosityOnError.Level()
	if onError >= e.liveLevel {
		return
	}
	for _, entry := range t.Log.Entries() {
		if entry.Level >= e.liveLevel || entry.Level < onError {
			continue
		}
		e.logger.Log(entry.Level, entry.Message,
			zap.String("test", t.FullName()),
			zap.Int("frame", entry.Frame),
			zap.Bool("replay", true))
	}
}
