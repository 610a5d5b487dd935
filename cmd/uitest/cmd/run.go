package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-drift/testengine/internal/suite"
	"github.com/go-drift/testengine/internal/testbed"
	"github.com/go-drift/testengine/pkg/config"
	"github.com/go-drift/testengine/pkg/engine"
	testerrors "github.com/go-drift/testengine/pkg/errors"
	"github.com/go-drift/testengine/pkg/export"
)

// errTestsFailed is returned when the run completed with failures, so the
// process exits non-zero without cobra printing usage.
var errTestsFailed = errors.New("tests failed")

type runOptions struct {
	filter       string
	junitPath    string
	includeLog   bool
	settingsPath string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [filter]",
		Short: "Run the test catalog",
		Long: `Run queues every test whose "category/name" matches the filter and runs
the queue to completion.

A filter is a comma-separated list of terms. A term matches by
case-insensitive substring; "^" anchors it to the start of the name and
"-" excludes matches. An empty filter runs everything.

When --settings is given the filter is read from the settings file when not
passed, and the filter used is written back after the run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.filter = args[0]
			}
			return runTests(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.Bool("fast", true, "Teleport the pointer and skip delays")
	f.Bool("paced", false, "Pace frames at the configured frame rate (implies --fast=false)")
	f.Bool("stop-on-error", false, "Abort the queue after the first failed test")
	f.StringVar(&opts.junitPath, "junit", "", "Write a JUnit XML report to this file")
	f.BoolVar(&opts.includeLog, "junit-log", false, "Attach each test's log to the JUnit report")
	f.StringVar(&opts.settingsPath, "settings", "", "Settings file holding the last filter")
	f.Int("debug-port", 0, "Serve run state over HTTP on this port (0 = off)")
	return cmd
}

// applyRunFlags overrides cfg with the run flags given on the command line.
// Flags left unset keep the configured values.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("fast") {
		cfg.RunFast, _ = flags.GetBool("fast")
	}
	if flags.Changed("paced") {
		paced, _ := flags.GetBool("paced")
		cfg.Headless = !paced
		if paced {
			cfg.RunFast = false
		}
	}
	if flags.Changed("stop-on-error") {
		cfg.StopOnError, _ = flags.GetBool("stop-on-error")
	}
	if flags.Changed("debug-port") {
		cfg.DebugServerPort, _ = flags.GetInt("debug-port")
	}
}

func runTests(cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)

	logger, err := cfg.Logger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	// Failures reach the console through the engine's test log; the handler
	// adds the stack of recovered panics.
	testerrors.SetHandler(&testerrors.LogHandler{Logger: logger.Named("errors"), Verbose: true, PanicsOnly: true})
	defer testerrors.SetHandler(nil)

	h := testbed.New()
	e, err := engine.New(h, cfg, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	h.SetHooks(e)
	defer e.Shutdown()
	suite.Register(e, h)

	settings, err := loadSettings(opts.settingsPath)
	if err != nil {
		return err
	}
	if opts.filter == "" {
		opts.filter = settings.Filter
	}
	settings.Filter = opts.filter
	e.SetSettings(settings)

	// Ctrl-C aborts the queue at the next frame boundary; remaining tests
	// are reported as not run.
	interrupt := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(interrupt, os.Interrupt)
	defer func() {
		signal.Stop(interrupt)
		close(done)
	}()
	go func() {
		select {
		case <-interrupt:
			e.Abort()
		case <-done:
		}
	}()

	n := e.QueueTests(opts.filter, 0)
	if n == 0 {
		return fmt.Errorf("no test matches filter %q", opts.filter)
	}
	logger.Info("running tests", zap.Int("count", n), zap.String("filter", opts.filter))
	runErr := e.ProcessQueue()

	if err := export.WriteSummary(cmd.OutOrStdout(), e.Tests()); err != nil {
		return err
	}
	if opts.junitPath != "" {
		if err := writeJUnit(opts.junitPath, e.Tests(), opts.includeLog); err != nil {
			return err
		}
	}
	if err := saveSettings(opts.settingsPath, e.Settings()); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if !e.Results().OK() {
		return errTestsFailed
	}
	return nil
}

func writeJUnit(path string, tests []*engine.Test, includeLog bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := export.WriteJUnitXML(f, tests, export.JUnitOptions{IncludeLog: includeLog}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadSettings(path string) (engine.Settings, error) {
	if path == "" {
		return engine.Settings{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine.Settings{}, nil
		}
		return engine.Settings{}, fmt.Errorf("failed to read settings: %w", err)
	}
	defer f.Close()
	return engine.ReadSettings(f)
}

func saveSettings(path string, s engine.Settings) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := s.WriteLines(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
