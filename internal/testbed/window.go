package testbed

import (
	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
)

const (
	titleHeight   = 19.0
	lineHeight    = 19.0
	framePaddingX = 4.0
	framePaddingY = 3.0
	itemSpacing   = 4.0
	windowPadding = 8.0
	treeIndent    = 16.0
	checkboxSize  = lineHeight
	collapseSize  = 13.0
	popupWidth    = 160.0
)

type window struct {
	id     host.ID
	name   string
	popup  bool
	depth  int
	pos    graphics.Offset
	size   graphics.Size
	rect   graphics.Rect
	clip   graphics.Rect
	z      int

	lastFrame int
	collapsed bool

	cursor   graphics.Offset
	indent   float64
	lastItem graphics.Rect
	sameLine bool

	inMenuBar bool
	menuX     float64
	bottom    float64
}

// WindowID returns the id of the window named name.
func WindowID(name string) host.ID {
	return idpath.Hash(name, 0)
}

func (h *Host) getWindow(id host.ID, name string, pos graphics.Offset, size graphics.Size, popup bool) *window {
	w, ok := h.windows[id]
	if !ok {
		w = &window{id: id, name: name, pos: pos, size: size, popup: popup}
		h.windows[id] = w
		h.zOrder = append(h.zOrder, w)
		if !popup {
			h.bringToFront(w)
		}
	}
	return w
}

// Begin opens the window name, creating it at pos with size the first time
// it is submitted. It returns false when the window is collapsed; End must
// be called either way.
func (h *Host) Begin(name string, pos graphics.Offset, size graphics.Size) bool {
	id := WindowID(name)
	w := h.getWindow(id, name, pos, size, false)
	h.pushScope(scopeWindow, w)
	h.idStack = append(h.idStack[:0], id)
	w.lastFrame = h.io.FrameCount

	full := graphics.RectFromLTWH(w.pos.X, w.pos.Y, w.size.Width, w.size.Height)
	title := graphics.RectFromLTWH(w.pos.X, w.pos.Y, w.size.Width, titleHeight)
	w.clip = full

	// The title bar is reported as an item carrying the window id.
	h.itemAdd(w, id, title, host.NavLayerMenu, []host.ID{})
	hoveredTitle := h.hovers(w, title, full)

	collapseID := idpath.Hash("#COLLAPSE", id)
	btn := graphics.RectFromLTWH(title.Left+framePaddingX, title.Top+(titleHeight-collapseSize)/2, collapseSize, collapseSize)
	h.itemAdd(w, collapseID, btn, host.NavLayerMenu, []host.ID{id})
	pressed, flags := h.buttonBehavior(collapseID, h.hovers(w, btn, full), false)
	if pressed {
		w.collapsed = !w.collapsed
	}
	h.itemInfo(collapseID, "#COLLAPSE", flags)

	titleFlags := host.StatusOpenable | host.StatusVisible
	if !w.collapsed {
		titleFlags |= host.StatusOpened
	}
	if hoveredTitle {
		titleFlags |= host.StatusHoveredRect
	}
	if h.hoveredWin == w {
		titleFlags |= host.StatusHoveredWindow
	}
	h.itemInfo(id, name, titleFlags)
	h.record("window", name, title)

	if w.collapsed {
		w.rect = title
		w.clip = graphics.Rect{}
		return false
	}
	w.rect = full
	w.clip = graphics.Rect{
		Left:   full.Left + windowPadding/2,
		Top:    title.Bottom,
		Right:  full.Right - windowPadding/2,
		Bottom: full.Bottom - windowPadding/2,
	}
	w.indent = 0
	w.cursor = graphics.Offset{X: full.Left + windowPadding, Y: title.Bottom + windowPadding}
	w.sameLine = false
	return true
}

// End closes the window opened by the matching Begin.
func (h *Host) End() {
	h.popKind(scopeWindow)
}

// SetWindowPos moves the window name.
func (h *Host) SetWindowPos(name string, pos graphics.Offset) {
	if w, ok := h.windows[WindowID(name)]; ok {
		w.pos = pos
	}
}

// IsWindowCollapsed reports whether the window name is collapsed.
func (h *Host) IsWindowCollapsed(name string) bool {
	w, ok := h.windows[WindowID(name)]
	return ok && w.collapsed
}

// WindowRect returns the outer rectangle of the window name as of its last
// submission.
func (h *Host) WindowRect(name string) graphics.Rect {
	if w, ok := h.windows[WindowID(name)]; ok {
		return w.rect
	}
	return graphics.Rect{}
}

// SameLine places the next item to the right of the previous one.
func (h *Host) SameLine() {
	if h.current != nil {
		h.current.sameLine = true
	}
}

// popKind pops the top scope when it has kind. Mismatched calls are ignored
// so stray closers cannot corrupt the stack.
func (h *Host) popKind(kind scopeKind) bool {
	n := len(h.scopes)
	if n == 0 || h.scopes[n-1].kind != kind {
		return false
	}
	h.popScope()
	return true
}

// layout reserves a rectangle of size at the window cursor.
func (h *Host) layout(size graphics.Size) graphics.Rect {
	w := h.current
	if w == nil {
		return graphics.Rect{}
	}
	if w.inMenuBar {
		r := graphics.RectFromLTWH(w.menuX, w.cursor.Y, size.Width, size.Height)
		w.menuX = r.Right + itemSpacing*2
		w.lastItem = r
		return r
	}
	var r graphics.Rect
	if w.sameLine && !w.lastItem.IsEmpty() {
		r = graphics.RectFromLTWH(w.lastItem.Right+itemSpacing, w.lastItem.Top, size.Width, size.Height)
	} else {
		r = graphics.RectFromLTWH(w.cursor.X+w.indent, w.cursor.Y, size.Width, size.Height)
	}
	w.sameLine = false
	w.lastItem = r
	if y := r.Bottom + itemSpacing; y > w.cursor.Y {
		w.cursor.Y = y
	}
	if r.Bottom > w.bottom {
		w.bottom = r.Bottom
	}
	return r
}

// hovers reports whether the pointer is over rect within clip, with w the
// hovered window.
func (h *Host) hovers(w *window, rect, clip graphics.Rect) bool {
	if h.hoveredWin != w {
		return false
	}
	visible := rect
	if !clip.IsEmpty() {
		visible = rect.Intersect(clip)
	}
	return visible.Contains(h.io.MousePos)
}

func (h *Host) itemAdd(w *window, id host.ID, rect graphics.Rect, layer host.NavLayer, stack []host.ID) {
	h.seen[id] = h.io.FrameCount
	if h.hooks == nil {
		return
	}
	if stack == nil {
		stack = append([]host.ID(nil), h.idStack...)
	}
	h.hooks.ItemAdd(host.ItemSubmission{
		ID:       id,
		Rect:     rect,
		ClipRect: w.clip,
		Window:   w,
		WindowID: w.id,
		NavLayer: layer,
		IDStack:  stack,
	})
}

func (h *Host) itemInfo(id host.ID, label string, flags host.StatusFlags) {
	if h.hooks != nil {
		h.hooks.ItemInfo(id, label, flags)
	}
}
