package errors

import (
	"go.uber.org/zap"
)

// LogHandler is a Handler that writes errors to a zap logger.
type LogHandler struct {
	// Logger receives the records. A nil Logger discards them.
	Logger *zap.Logger
	// Verbose adds stack traces to the records.
	Verbose bool
	// PanicsOnly drops TestErrors. The engine already writes them to the
	// test log.
	PanicsOnly bool
}

// NewLogHandler returns a LogHandler writing to logger.
func NewLogHandler(logger *zap.Logger, verbose bool) *LogHandler {
	return &LogHandler{Logger: logger, Verbose: verbose}
}

func (h *LogHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// HandleError logs a TestError.
func (h *LogHandler) HandleError(err *TestError) {
	if err == nil || h.PanicsOnly {
		return
	}
	fields := []zap.Field{
		zap.String("op", err.Op),
		zap.Stringer("kind", err.Kind),
		zap.Error(err.Err),
	}
	if err.Test != "" {
		fields = append(fields, zap.String("test", err.Test))
	}
	if err.File != "" {
		fields = append(fields, zap.String("file", err.File), zap.Int("line", err.Line))
	}
	if err.Frame > 0 {
		fields = append(fields, zap.Int("frame", err.Frame))
	}
	if h.Verbose && err.StackTrace != "" {
		fields = append(fields, zap.String("stack", err.StackTrace))
	}
	h.logger().Error("test error", fields...)
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	fields := []zap.Field{zap.Any("value", err.Value)}
	if err.Op != "" {
		fields = append(fields, zap.String("op", err.Op))
	}
	if h.Verbose && err.StackTrace != "" {
		fields = append(fields, zap.String("stack", err.StackTrace))
	}
	h.logger().Error("recovered panic", fields...)
}
