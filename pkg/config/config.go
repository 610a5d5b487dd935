// Package config holds the test engine configuration and its optional YAML
// file (uitest.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// EngineVersion is the version of the engine, compared against
// Config.MinEngineVersion.
const EngineVersion = "v0.4.0"

// DefaultFileName is the configuration file looked up by LoadOptional.
const DefaultFileName = "uitest.yaml"

// Verbosity controls which log lines reach the output.
type Verbosity string

const (
	VerbositySilent  Verbosity = "silent"
	VerbosityError   Verbosity = "error"
	VerbosityWarning Verbosity = "warning"
	VerbosityInfo    Verbosity = "info"
	VerbosityDebug   Verbosity = "debug"
)

// Level maps the verbosity to the lowest zap level that is emitted.
func (v Verbosity) Level() zapcore.Level {
	switch v {
	case VerbositySilent:
		return zapcore.FatalLevel
	case VerbosityError:
		return zapcore.ErrorLevel
	case VerbosityWarning:
		return zapcore.WarnLevel
	case VerbosityDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

func (v Verbosity) valid() bool {
	switch v {
	case "", VerbositySilent, VerbosityError, VerbosityWarning, VerbosityInfo, VerbosityDebug:
		return true
	}
	return false
}

// Config is the engine configuration.
type Config struct {
	// RunFast skips delays and snaps pointer motion.
	RunFast bool `yaml:"run_fast"`
	// Headless runs without a visible window; frame pacing is disabled.
	Headless bool `yaml:"headless"`
	// StopOnError aborts the rest of the queue after the first failed test.
	StopOnError bool `yaml:"stop_on_error"`
	// BreakOnError calls OnBreak on every failed check.
	BreakOnError bool `yaml:"break_on_error"`
	// Verbosity is the live log threshold.
	Verbosity Verbosity `yaml:"verbosity"`
	// VerbosityOnError is the threshold used to flush a failed test's
	// buffered log.
	VerbosityOnError Verbosity `yaml:"verbosity_on_error"`
	// NoThrottle disables frame pacing.
	NoThrottle bool `yaml:"no_throttle"`
	// TargetFPS is the paced frame rate when throttling.
	TargetFPS int `yaml:"target_fps"`

	// MouseSpeed is in pixels per second.
	MouseSpeed float64 `yaml:"mouse_speed"`
	// ScrollSpeed is in pixels per second.
	ScrollSpeed float64 `yaml:"scroll_speed"`
	// TypingSpeed is in characters per second.
	TypingSpeed float64 `yaml:"typing_speed"`
	// PerfStressAmount multiplies the frame count of throughput tests.
	PerfStressAmount int `yaml:"perf_stress_amount"`
	// RestoreFocus asks the host to restore UI focus after a run.
	RestoreFocus bool `yaml:"restore_focus"`

	// LocateRetries is how many frames a lookup waits before failing.
	LocateRetries int `yaml:"locate_retries"`
	// LocateMaxAge is how many frames a located record stays valid.
	LocateMaxAge int `yaml:"locate_max_age"`
	// GCFrames is the idle window before an unreferenced locate task is dropped.
	GCFrames int `yaml:"gc_frames"`
	// WarmupFrames run the GUI function only, before the test body.
	WarmupFrames int `yaml:"warmup_frames"`
	// CooldownFrames run with both test functions suppressed after the body.
	CooldownFrames int `yaml:"cooldown_frames"`

	// DebugServerPort enables the HTTP debug server (0 = disabled).
	DebugServerPort int `yaml:"debug_server_port"`
	// MinEngineVersion rejects the file when the engine is older.
	MinEngineVersion string `yaml:"min_engine_version,omitempty"`

	// OnBreak is invoked on failed checks when BreakOnError is set.
	OnBreak func() `yaml:"-"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Verbosity:        VerbosityWarning,
		VerbosityOnError: VerbosityDebug,
		TargetFPS:        60,
		MouseSpeed:       600,
		ScrollSpeed:      1400,
		TypingSpeed:      20,
		PerfStressAmount: 1,
		RestoreFocus:     true,
		LocateRetries:    2,
		LocateMaxAge:     2,
		GCFrames:         20,
		WarmupFrames:     2,
		CooldownFrames:   2,
	}
}

// LoadOptional reads a configuration file if present. A missing file
// yields the defaults. The result is resolved.
func LoadOptional(path string) (*Config, error) {
	return LoadOptionalWith(path, Default())
}

// LoadOptionalWith is like LoadOptional but reads the file over cfg instead
// of the defaults, so callers can change the defaults the file refines.
func LoadOptionalWith(path string, cfg *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve fills unset fields with defaults and validates the result.
func (c *Config) Resolve() error {
	d := Default()
	if c.Verbosity == "" {
		c.Verbosity = d.Verbosity
	}
	if c.VerbosityOnError == "" {
		c.VerbosityOnError = d.VerbosityOnError
	}
	c.Verbosity = Verbosity(strings.ToLower(string(c.Verbosity)))
	c.VerbosityOnError = Verbosity(strings.ToLower(string(c.VerbosityOnError)))
	if !c.Verbosity.valid() {
		return fmt.Errorf("unknown verbosity %q", c.Verbosity)
	}
	if !c.VerbosityOnError.valid() {
		return fmt.Errorf("unknown verbosity_on_error %q", c.VerbosityOnError)
	}

	if c.TargetFPS <= 0 {
		c.TargetFPS = d.TargetFPS
	}
	if c.MouseSpeed <= 0 {
		c.MouseSpeed = d.MouseSpeed
	}
	if c.ScrollSpeed <= 0 {
		c.ScrollSpeed = d.ScrollSpeed
	}
	if c.TypingSpeed <= 0 {
		c.TypingSpeed = d.TypingSpeed
	}
	if c.PerfStressAmount <= 0 {
		c.PerfStressAmount = d.PerfStressAmount
	}
	if c.LocateRetries <= 0 {
		c.LocateRetries = d.LocateRetries
	}
	if c.LocateMaxAge <= 0 {
		c.LocateMaxAge = d.LocateMaxAge
	}
	if c.GCFrames <= 0 {
		c.GCFrames = d.GCFrames
	}
	if c.WarmupFrames < 0 {
		c.WarmupFrames = 0
	}
	if c.CooldownFrames < 0 {
		c.CooldownFrames = 0
	}
	if c.DebugServerPort < 0 || c.DebugServerPort > 65535 {
		return fmt.Errorf("debug_server_port %d out of range", c.DebugServerPort)
	}

	if c.MinEngineVersion != "" {
		v := c.MinEngineVersion
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) {
			return fmt.Errorf("min_engine_version %q is not a semantic version", c.MinEngineVersion)
		}
		if semver.Compare(EngineVersion, v) < 0 {
			return fmt.Errorf("engine %s is older than required %s", EngineVersion, v)
		}
		c.MinEngineVersion = v
	}
	return nil
}

// FrameInterval returns the paced frame duration.
func (c *Config) FrameInterval() time.Duration {
	fps := c.TargetFPS
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}

// Throttled reports whether frames should be paced.
func (c *Config) Throttled() bool {
	return !c.NoThrottle && !c.Headless && !c.RunFast
}

// Logger builds a console zap logger. Its level is the more verbose of
// Verbosity and VerbosityOnError so failed tests can replay buffered lines;
// the engine filters live output against Verbosity itself.
func (c *Config) Logger() (*zap.Logger, error) {
	level := c.Verbosity.Level()
	if onErr := c.VerbosityOnError.Level(); onErr < level {
		level = onErr
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zc.Build()
}
