package testbed

import (
	"encoding/json"
	"math"

	"github.com/go-drift/testengine/pkg/graphics"
)

// DisplayOp is one widget drawn during the last frame.
type DisplayOp struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params,omitempty"`
}

func (h *Host) record(op, label string, rect graphics.Rect) {
	params := paramMap("rect", serializeRect(rect))
	if label != "" {
		params["label"] = label
	}
	h.displayList = append(h.displayList, DisplayOp{Op: op, Params: params})
}

// DisplayList returns the widgets drawn during the current or last frame.
func (h *Host) DisplayList() []DisplayOp {
	return append([]DisplayOp(nil), h.displayList...)
}

// Find returns the first op drawn with label.
func (h *Host) Find(op, label string) (DisplayOp, bool) {
	for _, d := range h.displayList {
		if d.Op == op && d.Params["label"] == label {
			return d, true
		}
	}
	return DisplayOp{}, false
}

// MarshalDisplayList encodes the display list as indented JSON. Map keys are
// emitted sorted, so the output is stable across runs.
func (h *Host) MarshalDisplayList() ([]byte, error) {
	return json.MarshalIndent(h.displayList, "", "  ")
}

func serializeRect(r graphics.Rect) map[string]any {
	return paramMap(
		"left", round2(r.Left),
		"top", round2(r.Top),
		"right", round2(r.Right),
		"bottom", round2(r.Bottom),
	)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// paramMap builds display op params from alternating key-value pairs.
func paramMap(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		m[kvs[i].(string)] = kvs[i+1]
	}
	return m
}
