package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOptional_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().LocateRetries, cfg.LocateRetries)
	assert.Equal(t, 20, cfg.GCFrames)
	assert.Equal(t, 2, cfg.WarmupFrames)
	assert.Equal(t, VerbosityWarning, cfg.Verbosity)
}

func TestLoadOptional_ParsesFile(t *testing.T) {
	path := writeConfig(t, `
run_fast: true
headless: true
stop_on_error: true
verbosity: DEBUG
mouse_speed: 1200
locate_retries: 5
gc_frames: 40
warmup_frames: 0
perf_stress_amount: 5
min_engine_version: 0.1.0
`)
	cfg, err := LoadOptional(path)
	require.NoError(t, err)
	assert.True(t, cfg.RunFast)
	assert.True(t, cfg.Headless)
	assert.True(t, cfg.StopOnError)
	assert.Equal(t, VerbosityDebug, cfg.Verbosity)
	assert.Equal(t, 1200.0, cfg.MouseSpeed)
	assert.Equal(t, 5, cfg.LocateRetries)
	assert.Equal(t, 40, cfg.GCFrames)
	assert.Equal(t, 0, cfg.WarmupFrames, "zero warm-up frames is a valid choice")
	assert.Equal(t, 5, cfg.PerfStressAmount)
	assert.Equal(t, "v0.1.0", cfg.MinEngineVersion)
	assert.Equal(t, 2, cfg.CooldownFrames, "unset fields keep defaults")
}

func TestLoadOptionalWith_FileRefinesBase(t *testing.T) {
	base := Default()
	base.RunFast = true
	base.Headless = true

	cfg, err := LoadOptionalWith(writeConfig(t, "run_fast: false\n"), base)
	require.NoError(t, err)
	assert.False(t, cfg.RunFast, "the file overrides the base")
	assert.True(t, cfg.Headless, "fields the file leaves out keep the base value")

	base = Default()
	base.Headless = true
	cfg, err = LoadOptionalWith(filepath.Join(t.TempDir(), "nope.yaml"), base)
	require.NoError(t, err)
	assert.True(t, cfg.Headless)
}

func TestLoadOptional_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "run_fast: [\n"},
		{"bad verbosity", "verbosity: chatty\n"},
		{"bad port", "debug_server_port: 70000\n"},
		{"bad version", "min_engine_version: banana\n"},
		{"too new", "min_engine_version: v99.0.0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOptional(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestVerbosityLevel(t *testing.T) {
	tests := []struct {
		v    Verbosity
		want zapcore.Level
	}{
		{VerbositySilent, zapcore.FatalLevel},
		{VerbosityError, zapcore.ErrorLevel},
		{VerbosityWarning, zapcore.WarnLevel},
		{VerbosityInfo, zapcore.InfoLevel},
		{VerbosityDebug, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		if got := tt.v.Level(); got != tt.want {
			t.Errorf("Verbosity(%q).Level() = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestThrottledAndInterval(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Throttled())
	assert.Equal(t, time.Second/60, cfg.FrameInterval())

	cfg.Headless = true
	assert.False(t, cfg.Throttled())

	cfg = Default()
	cfg.NoThrottle = true
	assert.False(t, cfg.Throttled())
}

func TestLogger(t *testing.T) {
	cfg := Default()
	cfg.Verbosity = VerbosityError
	cfg.VerbosityOnError = VerbosityError
	logger, err := cfg.Logger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	cfg.VerbosityOnError = VerbosityDebug
	logger, err = cfg.Logger()
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel), "replay on error needs debug lines")
}
