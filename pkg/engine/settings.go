package engine

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Settings is the small piece of engine UI state persisted between sessions
// as "Key=Value" lines.
type Settings struct {
	Filter      string
	PanelHeight float64
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	return e.settings
}

// SetSettings replaces the current settings.
func (e *Engine) SetSettings(s Settings) {
	e.settings = s
}

// WriteLines writes the settings as "Key=Value" lines.
func (s Settings) WriteLines(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Filter=%s\nPanelHeight=%s\n",
		s.Filter, strconv.FormatFloat(s.PanelHeight, 'g', -1, 64))
	return err
}

// ApplyLine applies one "Key=Value" line. Unknown keys and malformed values
// are ignored; it reports whether the line was applied.
func (s *Settings) ApplyLine(line string) bool {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return false
	}
	switch key {
	case "Filter":
		s.Filter = value
		return true
	case "PanelHeight":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false
		}
		s.PanelHeight = v
		return true
	}
	return false
}

// ReadSettings parses settings lines from r.
func ReadSettings(r io.Reader) (Settings, error) {
	var s Settings
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.ApplyLine(sc.Text())
	}
	return s, sc.Err()
}
