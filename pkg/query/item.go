package query

import (
	"fmt"

	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
)

// ItemInfo is the engine's record of one submitted item.
//
// Geometry fields are written by the geometry hook and are current only when
// TimestampMain equals the current frame. StatusFlags and DebugLabel are
// written by the status hook, which may run later than the geometry hook in
// the same frame; they are current only when TimestampStatus equals the
// current frame.
type ItemInfo struct {
	ID       host.ID
	ParentID host.ID
	Window   host.WindowRef
	WindowID host.ID
	NavLayer host.NavLayer
	// Depth is the distance from the gather parent (0 = direct child).
	// Always 0 for located items.
	Depth int

	TimestampMain   int
	TimestampStatus int

	Rect        graphics.Rect
	RectClipped graphics.Rect
	StatusFlags host.StatusFlags
	DebugLabel  string

	// RefCount keeps the record alive across garbage collection.
	RefCount int
}

// IsFresh reports whether the geometry was refreshed on frame.
func (i *ItemInfo) IsFresh(frame int) bool {
	return i != nil && i.TimestampMain == frame
}

// HasStatus reports whether the status flags were refreshed on frame.
func (i *ItemInfo) HasStatus(frame int) bool {
	return i != nil && i.TimestampStatus == frame
}

func (i *ItemInfo) String() string {
	if i == nil {
		return "<nil>"
	}
	return fmt.Sprintf("0x%08X %q depth=%d layer=%s", uint32(i.ID), i.DebugLabel, i.Depth, i.NavLayer)
}

func (i *ItemInfo) fill(frame int, item host.ItemSubmission) {
	i.ID = item.ID
	i.Window = item.Window
	i.WindowID = item.WindowID
	i.NavLayer = item.NavLayer
	i.Rect = item.Rect
	if item.ClipRect.IsEmpty() {
		i.RectClipped = item.Rect
	} else {
		i.RectClipped = item.Rect.Intersect(item.ClipRect)
	}
	if n := len(item.IDStack); n > 0 {
		i.ParentID = item.IDStack[n-1]
	}
	i.TimestampMain = frame
}

// ItemList is an ordered set of gathered items keyed by id.
type ItemList struct {
	items []*ItemInfo
	index map[host.ID]int
}

// Len returns the number of items.
func (l *ItemList) Len() int {
	return len(l.items)
}

// Items returns all items in submission order.
func (l *ItemList) Items() []*ItemInfo {
	return l.items
}

// At returns the item at index. Panics if out of range.
func (l *ItemList) At(index int) *ItemInfo {
	if index < 0 || index >= len(l.items) {
		panic(fmt.Sprintf("ItemList index %d out of range (len %d)", index, len(l.items)))
	}
	return l.items[index]
}

// Get returns the item with id, or nil.
func (l *ItemList) Get(id host.ID) *ItemInfo {
	if i, ok := l.index[id]; ok {
		return l.items[i]
	}
	return nil
}

// Filter returns the items for which keep returns true.
func (l *ItemList) Filter(keep func(*ItemInfo) bool) []*ItemInfo {
	var out []*ItemInfo
	for _, it := range l.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// CountDepth returns how many items were gathered at depth.
func (l *ItemList) CountDepth(depth int) int {
	n := 0
	for _, it := range l.items {
		if it.Depth == depth {
			n++
		}
	}
	return n
}

// Reset empties the list.
func (l *ItemList) Reset() {
	l.items = l.items[:0]
	l.index = nil
}

// Add returns the record for id, appending an empty one when missing.
func (l *ItemList) Add(id host.ID) *ItemInfo {
	it, _ := l.getOrAdd(id)
	return it
}

// getOrAdd returns the record for id, appending a new one when missing.
func (l *ItemList) getOrAdd(id host.ID) (*ItemInfo, bool) {
	if it := l.Get(id); it != nil {
		return it, false
	}
	if l.index == nil {
		l.index = make(map[host.ID]int)
	}
	it := &ItemInfo{ID: id}
	l.index[id] = len(l.items)
	l.items = append(l.items, it)
	return it, true
}
