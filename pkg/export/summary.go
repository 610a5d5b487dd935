package export

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/go-drift/testengine/pkg/engine"
)

// WriteSummary writes one aligned line per test that ran, the first error of
// each failed test, and the overall result in the same "OK n/m" form the
// engine logs.
func WriteSummary(w io.Writer, tests []*engine.Test) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var res engine.Results
	var failed []*engine.Test
	for _, t := range tests {
		mark := "--"
		switch t.Status {
		case engine.StatusSuccess:
			mark = "OK"
			res.Tested++
			res.Succeeded++
		case engine.StatusError:
			mark = "KO"
			res.Tested++
			res.Failed++
		case engine.StatusUnknown:
			if t.RunID == "" {
				continue
			}
			res.Tested++
			res.Unknown++
		default:
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d frames\t%s\n", mark, t.FullName(), t.Frames, t.Duration)
		if t.Status == engine.StatusError {
			failed = append(failed, t)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, t := range failed {
		if _, err := fmt.Fprintf(w, "\n%s:\n  %s\n", t.FullName(), t.FirstError); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Tests Result: %s\n", res)
	return err
}
