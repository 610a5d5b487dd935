// Package testbed provides a minimal immediate-mode UI host for exercising
// the test engine: windows with title bars and collapse buttons, menu bars
// and popup menus, buttons, checkboxes, tree nodes, text inputs and a drag
// source/target pair. Layout is a vertical cursor per window; labels are
// measured with the basic 7x13 bitmap font.
package testbed

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
)

const (
	// DefaultWidth is the default logical width of the surface.
	DefaultWidth = 1280
	// DefaultHeight is the default logical height of the surface.
	DefaultHeight = 800
	// DeltaTime is the simulated duration of every frame.
	DeltaTime = 1.0 / 60
	// DragThreshold is the pointer travel that turns a press into a drag.
	DragThreshold = 6.0
)

// ErrFrameState is returned when NewFrame/EndFrame are called out of order.
var ErrFrameState = errors.New("testbed: frame begin/end out of order")

type scopeKind int

const (
	scopeWindow scopeKind = iota
	scopeID
	scopeTree
	scopeMenuBar
	scopeMenu
)

func (k scopeKind) closer() string {
	switch k {
	case scopeWindow:
		return "End()"
	case scopeTree:
		return "TreePop()"
	case scopeMenuBar:
		return "EndMenuBar()"
	case scopeMenu:
		return "EndMenu()"
	default:
		return "PopID()"
	}
}

type scope struct {
	kind    scopeKind
	idStack []host.ID
	window  *window
	indent  float64
}

// Host is the testbed UI host. It implements host.Host and the optional
// host.StackRecoverer, host.Navigator, host.WindowFocuser,
// host.FocusKeeper and host.SourceOpener interfaces.
type Host struct {
	io    host.IO
	hooks host.Hooks
	face  font.Face

	// Frame is called every frame after the hooks' PostNewFrame, to submit
	// the application's own UI.
	Frame func(h *Host)
	// FrameStep is added to the frame counter per NewFrame. Anything but 1
	// desynchronizes the engine.
	FrameStep int

	inFrame bool
	idStack []host.ID
	scopes  []scope
	current *window

	windows    map[host.ID]*window
	zOrder     []*window
	nextZ      int
	hoveredWin *window

	prevMouse     uint32
	clicked       [host.MouseButtonCount]bool
	released      [host.MouseButtonCount]bool
	clickPos      [host.MouseButtonCount]graphics.Offset
	prevKeys      [host.KeyCount]bool
	prevNav       uint32
	navActivated  bool
	navFocus      host.ID
	navFocusSaved host.ID

	activeID      host.ID
	activatedID   host.ID
	deactivatedID host.ID
	hoveredID     host.ID
	inputFocus    host.ID

	storage map[host.ID]bool
	seen    map[host.ID]int

	openMenus      []host.ID
	menuClicked    bool
	clickOutside   bool
	dragPayload    string
	dragSourceID   host.ID
	dragging       bool
	displayList    []DisplayOp
	OpenedSources  []string
	recoveredCount int
}

// New creates a testbed host with the default surface size.
func New() *Host {
	h := &Host{
		face:      basicfont.Face7x13,
		FrameStep: 1,
		windows:   make(map[host.ID]*window),
		storage:   make(map[host.ID]bool),
		seen:      make(map[host.ID]int),
	}
	h.io.DisplaySize = graphics.Size{Width: DefaultWidth, Height: DefaultHeight}
	h.io.MouseDragThreshold = DragThreshold
	h.io.MousePos = graphics.Offset{X: -1, Y: -1}
	return h
}

// SetHooks installs the engine hooks.
func (h *Host) SetHooks(hooks host.Hooks) {
	h.hooks = hooks
}

// IO implements host.Host.
func (h *Host) IO() *host.IO {
	return &h.io
}

// NewFrame implements host.Host. It advances the frame counter, lets the
// hooks stamp input, derives edge-triggered input state and opens the frame
// for widget submission.
func (h *Host) NewFrame() error {
	if h.inFrame {
		return ErrFrameState
	}
	h.io.FrameCount += h.FrameStep
	h.io.DeltaTime = DeltaTime
	h.io.InputQueueCharacters = h.io.InputQueueCharacters[:0]
	if h.hooks != nil {
		h.hooks.PreNewFrame(&h.io)
	}

	h.updateMouse()
	navDown := h.io.IsNavDown(host.NavActivate)
	h.navActivated = navDown && h.prevNav&(1<<uint(host.NavActivate)) == 0
	h.prevNav = h.io.NavButtons

	h.hoveredWin = h.windowAt(h.io.MousePos)
	h.clickOutside = false
	h.menuClicked = false
	if h.clicked[host.MouseLeft] {
		if h.hoveredWin == nil || !h.hoveredWin.popup {
			h.clickOutside = true
		}
		if h.hoveredWin != nil && !h.hoveredWin.popup {
			h.bringToFront(h.hoveredWin)
		}
	}
	h.activatedID = 0
	h.deactivatedID = 0
	h.hoveredID = 0
	h.displayList = h.displayList[:0]
	h.idStack = h.idStack[:0]
	h.inFrame = true

	if h.hooks != nil {
		h.hooks.PostNewFrame()
	}
	if h.Frame != nil {
		h.Frame(h)
	}
	return nil
}

func (h *Host) updateMouse() {
	for b := 0; b < host.MouseButtonCount; b++ {
		bit := uint32(1) << uint(b)
		down := h.io.MouseButtons&bit != 0
		wasDown := h.prevMouse&bit != 0
		h.clicked[b] = down && !wasDown
		h.released[b] = !down && wasDown
		if h.clicked[b] {
			h.clickPos[b] = h.io.MousePos
			h.io.MouseDragMaxDistanceSqr[b] = 0
		}
		if down {
			d := h.io.MousePos.Sub(h.clickPos[b]).LengthSqr()
			if d > h.io.MouseDragMaxDistanceSqr[b] {
				h.io.MouseDragMaxDistanceSqr[b] = d
			}
		}
	}
	h.prevMouse = h.io.MouseButtons
}

// EndFrame implements host.Host.
func (h *Host) EndFrame() error {
	if !h.inFrame {
		return ErrFrameState
	}
	if n := len(h.scopes); n > 0 {
		h.scopes = h.scopes[:0]
		h.inFrame = false
		return fmt.Errorf("testbed: %d scopes left open at end of frame", n)
	}
	if h.activeID != 0 && !h.io.IsMouseDown(host.MouseLeft) {
		h.deactivate()
	}
	if h.clickOutside && !h.menuClicked {
		h.openMenus = h.openMenus[:0]
	}
	if h.released[host.MouseLeft] {
		h.dragging = false
		h.dragPayload = ""
		h.dragSourceID = 0
	}
	h.prevKeys = h.io.KeysDown
	h.inFrame = false
	if h.hooks != nil {
		h.hooks.PostEndFrame()
	}
	return nil
}

// FrameCount returns the current frame number.
func (h *Host) FrameCount() int {
	return h.io.FrameCount
}

// RecoverStacks implements host.StackRecoverer.
func (h *Host) RecoverStacks(warn func(msg string)) int {
	n := 0
	for len(h.scopes) > 0 {
		top := h.scopes[len(h.scopes)-1]
		if warn != nil {
			warn(top.kind.closer())
		}
		h.popScope()
		n++
	}
	h.recoveredCount += n
	return n
}

// Recovered returns how many scopes RecoverStacks has closed.
func (h *Host) Recovered() int {
	return h.recoveredCount
}

// SetNavFocus implements host.Navigator. Focus only lands on items
// submitted on the previous frame.
func (h *Host) SetNavFocus(id host.ID) bool {
	last, ok := h.seen[id]
	if !ok || last < h.io.FrameCount-1 {
		return false
	}
	h.navFocus = id
	return true
}

// NavFocus returns the focused item.
func (h *Host) NavFocus() host.ID {
	return h.navFocus
}

// FocusWindow implements host.WindowFocuser.
func (h *Host) FocusWindow(windowID host.ID) bool {
	w, ok := h.windows[windowID]
	if !ok || w.popup {
		return false
	}
	if len(h.zOrder) > 0 && h.topWindow() == w {
		return false
	}
	h.bringToFront(w)
	return true
}

// BackupFocus implements host.FocusKeeper.
func (h *Host) BackupFocus() {
	h.navFocusSaved = h.navFocus
}

// RestoreFocus implements host.FocusKeeper.
func (h *Host) RestoreFocus() {
	h.navFocus = h.navFocusSaved
}

// OpenSource implements host.SourceOpener by recording the request.
func (h *Host) OpenSource(file string, line int) error {
	h.OpenedSources = append(h.OpenedSources, fmt.Sprintf("%s:%d", file, line))
	return nil
}

// ActiveID returns the item currently held active.
func (h *Host) ActiveID() host.ID {
	return h.activeID
}

// IsDragging reports whether a drag payload is in flight.
func (h *Host) IsDragging() bool {
	return h.dragging
}

func (h *Host) topWindow() *window {
	var top *window
	for _, w := range h.zOrder {
		if !w.popup && (top == nil || w.z > top.z) {
			top = w
		}
	}
	return top
}

func (h *Host) bringToFront(w *window) {
	h.nextZ++
	w.z = h.nextZ
}

// windowAt returns the topmost window that was visible last frame and
// contains p. Popups are above regular windows.
func (h *Host) windowAt(p graphics.Offset) *window {
	candidates := make([]*window, 0, len(h.zOrder))
	for _, w := range h.zOrder {
		if w.lastFrame >= h.io.FrameCount-h.FrameStep && w.rect.Contains(p) {
			candidates = append(candidates, w)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.popup != b.popup {
			return a.popup
		}
		return a.z > b.z
	})
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0]
}

func (h *Host) pushScope(kind scopeKind, w *window) {
	h.scopes = append(h.scopes, scope{
		kind:    kind,
		idStack: append([]host.ID(nil), h.idStack...),
		window:  h.current,
		indent:  h.indent(),
	})
	if w != nil {
		h.current = w
	}
}

func (h *Host) popScope() scope {
	n := len(h.scopes)
	top := h.scopes[n-1]
	h.scopes = h.scopes[:n-1]
	h.idStack = append(h.idStack[:0], top.idStack...)
	if top.kind == scopeWindow || top.kind == scopeMenu {
		h.current = top.window
	}
	if h.current != nil {
		h.current.indent = top.indent
	}
	return top
}

func (h *Host) indent() float64 {
	if h.current == nil {
		return 0
	}
	return h.current.indent
}

func (h *Host) seed() host.ID {
	if n := len(h.idStack); n > 0 {
		return h.idStack[n-1]
	}
	return 0
}

func (h *Host) deactivate() {
	h.deactivatedID = h.activeID
	h.activeID = 0
}

func (h *Host) setActive(id host.ID) {
	if h.activeID != 0 && h.activeID != id {
		h.deactivate()
	}
	h.activeID = id
	h.activatedID = id
}

func (h *Host) measure(label string) float64 {
	return float64(font.MeasureString(h.face, label).Ceil())
}
