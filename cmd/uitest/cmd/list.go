package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-drift/testengine/internal/suite"
	"github.com/go-drift/testengine/internal/testbed"
	"github.com/go-drift/testengine/pkg/engine"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [filter]",
		Short: "List the registered tests",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			h := testbed.New()
			e, err := engine.New(h, cfg, engine.WithLogger(zap.NewNop()))
			if err != nil {
				return err
			}
			defer e.Shutdown()
			suite.Register(e, h)

			tests := e.MatchTests(filter)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range tests {
				fmt.Fprintf(tw, "%s\t%s:%d\n", t.FullName(), shortPath(t.SourceFile), t.SourceLine)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tests\n", len(tests))
			return nil
		},
	}
}

func shortPath(p string) string {
	const keep = 2
	n := 0
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			n++
			if n == keep {
				return p[i+1:]
			}
		}
	}
	return p
}
