// Package export writes test results in formats consumed outside the
// engine: JUnit XML for CI systems and a plain-text summary for terminals.
package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/go-drift/testengine/pkg/engine"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	ID       string       `xml:"id,attr"`
	Name     string       `xml:"name,attr"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Time     string       `xml:"time,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Time     string      `xml:"time,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name       string          `xml:"name,attr"`
	Classname  string          `xml:"classname,attr"`
	Time       string          `xml:"time,attr"`
	Properties *junitProps     `xml:"properties,omitempty"`
	Failure    *junitFailure   `xml:"failure,omitempty"`
	Skipped    *junitSkipped   `xml:"skipped,omitempty"`
	SystemOut  *junitSystemOut `xml:"system-out,omitempty"`
}

type junitProps struct {
	Props []junitProp `xml:"property"`
}

type junitProp struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

type junitSystemOut struct {
	Body string `xml:",cdata"`
}

// JUnitOptions tune WriteJUnitXML.
type JUnitOptions struct {
	// Name is the testsuites name. Defaults to "uitest".
	Name string
	// IncludeLog attaches each test's buffered log as system-out.
	IncludeLog bool
}

// WriteJUnitXML writes tests as a JUnit XML report with one testsuite per
// category, in first-seen order. Tests that never ran or were aborted are
// reported as skipped.
func WriteJUnitXML(w io.Writer, tests []*engine.Test, opts JUnitOptions) error {
	if opts.Name == "" {
		opts.Name = "uitest"
	}
	root := junitSuites{ID: uuid.NewString(), Name: opts.Name}
	index := make(map[string]int)
	var secsBySuite []float64
	var total float64

	for _, t := range tests {
		i, ok := index[t.Category]
		if !ok {
			i = len(root.Suites)
			index[t.Category] = i
			root.Suites = append(root.Suites, junitSuite{Name: t.Category})
			secsBySuite = append(secsBySuite, 0)
		}
		suite := &root.Suites[i]

		secs := t.Duration.Seconds()
		tc := junitCase{
			Name:      t.Name,
			Classname: t.Category,
			Time:      seconds(secs),
		}
		if t.RunID != "" {
			tc.Properties = &junitProps{Props: []junitProp{
				{Name: "run_id", Value: t.RunID},
				{Name: "frames", Value: fmt.Sprint(t.Frames)},
			}}
		}
		switch t.Status {
		case engine.StatusError:
			tc.Failure = &junitFailure{
				Message: firstLine(t.FirstError),
				Type:    "error",
				Body:    t.FirstError,
			}
			suite.Failures++
		case engine.StatusSuccess:
		default:
			reason := "not run"
			if t.RunID != "" {
				reason = "aborted"
			}
			tc.Skipped = &junitSkipped{Message: reason}
			suite.Skipped++
		}
		if opts.IncludeLog && len(t.Log.Entries()) > 0 {
			tc.SystemOut = &junitSystemOut{Body: t.Log.String()}
		}

		suite.Tests++
		suite.Cases = append(suite.Cases, tc)
		secsBySuite[i] += secs
		total += secs
	}

	for i := range root.Suites {
		s := &root.Suites[i]
		s.Time = seconds(secsBySuite[i])
		root.Tests += s.Tests
		root.Failures += s.Failures
		root.Skipped += s.Skipped
	}
	root.Time = seconds(total)

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("export: encode junit: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
