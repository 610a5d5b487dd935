// Package host defines the contract between the test engine and the
// immediate-mode UI framework it drives.
//
// The host owns its widget tree, windows and id stacks. The engine never
// reads that state directly; it only sees what the host passes through the
// [Hooks] calls and what it can read or write in the shared [IO] record.
//
// A host wires itself up in three steps:
//
//	eng := engine.New(app, cfg)   // app implements host.Host
//	app.SetHooks(eng)             // eng implements host.Hooks
//	eng.ProcessQueue()            // engine now drives app.NewFrame/EndFrame
package host

import (
	"image"

	"github.com/go-drift/testengine/pkg/graphics"
)

// ID is a stable widget identifier derived from a hashed path or label.
// Zero is never a valid item id.
type ID uint32

// WindowRef is an opaque handle to a host-owned window. The engine stores it
// and hands it back to scripts but never inspects it.
type WindowRef any

// NavLayer identifies the interaction layer an item was submitted on.
type NavLayer int

const (
	// NavLayerMain is the main interaction layer of a window.
	NavLayerMain NavLayer = iota
	// NavLayerMenu holds menu bars and title bar decorations.
	NavLayerMenu
)

func (l NavLayer) String() string {
	switch l {
	case NavLayerMain:
		return "main"
	case NavLayerMenu:
		return "menu"
	default:
		return "unknown"
	}
}

// StatusFlags describe the interaction state of an item, reported by the
// host once the item's own interaction result is known.
type StatusFlags uint32

const (
	// StatusHoveredRect is set when the pointer is over the item rectangle.
	StatusHoveredRect StatusFlags = 1 << iota
	// StatusHoveredWindow is set when the item's window is hovered.
	StatusHoveredWindow
	// StatusEdited is set on the frame the item's value changed.
	StatusEdited
	// StatusActivated is set on the frame the item became active.
	StatusActivated
	// StatusDeactivated is set on the frame the item stopped being active.
	StatusDeactivated
	// StatusActive is set while the item is held active.
	StatusActive
	// StatusOpenable marks items that can be opened (tree nodes, menus).
	StatusOpenable
	// StatusOpened is set while an openable item is open.
	StatusOpened
	// StatusCheckable marks toggles.
	StatusCheckable
	// StatusChecked is set while a checkable item is checked.
	StatusChecked
	// StatusInputable marks text inputs.
	StatusInputable
	// StatusVisible is set when the item is not clipped out.
	StatusVisible
)

// Has reports whether all bits of other are set.
func (f StatusFlags) Has(other StatusFlags) bool {
	return f&other == other
}

// Key identifies a keyboard key. KeyNone is the placeholder used to carry
// modifier changes without a concrete key.
type Key int

const (
	KeyNone Key = iota
	KeyTab
	KeyLeftArrow
	KeyRightArrow
	KeyUpArrow
	KeyDownArrow
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
	KeyInsert
	KeyDelete
	KeyBackspace
	KeySpace
	KeyEnter
	KeyEscape
	KeyA
	KeyC
	KeyV
	KeyX
	KeyY
	KeyZ
	// KeyCount is the number of keys tracked in IO.KeysDown.
	KeyCount
)

// Modifiers is a bitmask of modifier keys.
type Modifiers uint32

const (
	ModNone Modifiers = 0
	ModCtrl Modifiers = 1 << (iota - 1)
	ModShift
	ModAlt
	ModSuper
)

// MouseButton identifies a pointer button.
type MouseButton int

const (
	MouseLeft MouseButton = iota
	MouseRight
	MouseMiddle
	// MouseButtonCount is the number of buttons tracked in IO.
	MouseButtonCount = 5
)

// NavInput identifies a virtual navigation button.
type NavInput int

const (
	NavActivate NavInput = iota
	NavCancel
	NavInputText
	NavMenu
	NavDpadLeft
	NavDpadRight
	NavDpadUp
	NavDpadDown
	// NavInputCount is the number of virtual navigation buttons.
	NavInputCount
)

// IO is the host's per-frame input record. The host fills it from the
// platform before calling Hooks.PreNewFrame; while a test drives input the
// engine overwrites the pointer, button, key and nav fields.
type IO struct {
	// FrameCount is incremented by the host once per NewFrame.
	FrameCount int
	// DeltaTime is the simulated duration of the frame, in seconds.
	DeltaTime float64
	// DisplaySize is the logical size of the host surface.
	DisplaySize graphics.Size

	MousePos     graphics.Offset
	MouseButtons uint32
	MouseWheel   graphics.Offset
	KeyMods      Modifiers
	KeysDown     [KeyCount]bool
	NavButtons   uint32

	// MouseDragThreshold is the distance in pixels a held pointer must
	// travel before the host treats it as a drag rather than a click.
	MouseDragThreshold float64
	// MouseDragMaxDistanceSqr records, per button, the maximum squared
	// distance travelled since the button went down. Hosts only ever grow it
	// while the button is held.
	MouseDragMaxDistanceSqr [MouseButtonCount]float64

	// InputQueueCharacters receives text input for the current frame.
	InputQueueCharacters []rune
}

// AddInputCharacter queues a character for text input this frame.
func (io *IO) AddInputCharacter(r rune) {
	if r == 0 {
		return
	}
	io.InputQueueCharacters = append(io.InputQueueCharacters, r)
}

// IsMouseDown reports whether button b is held.
func (io *IO) IsMouseDown(b MouseButton) bool {
	return io.MouseButtons&(1<<uint(b)) != 0
}

// IsNavDown reports whether the virtual nav button n is held.
func (io *IO) IsNavDown(n NavInput) bool {
	return io.NavButtons&(1<<uint(n)) != 0
}

// ItemSubmission is the geometry the host reports for one interactive item.
type ItemSubmission struct {
	ID ID
	// Rect is the full bounding box of the item.
	Rect graphics.Rect
	// ClipRect is the clipping rectangle in effect (usually the window's
	// inner rect). The engine derives the visible rectangle from it.
	ClipRect graphics.Rect
	Window   WindowRef
	WindowID ID
	NavLayer NavLayer
	// IDStack is the host id stack at submission time, outermost first.
	// Its last entry is the seed the item id was hashed from.
	IDStack []ID
}

// Hooks are implemented by the engine and called by the host.
type Hooks interface {
	// PreNewFrame is called once before the host builds a frame, after it
	// has filled io from the platform.
	PreNewFrame(io *IO)
	// PostNewFrame is called once the frame is open and widgets may be
	// submitted. The engine runs the active test's GUI function here.
	PostNewFrame()
	// ItemAdd is called once per interactive item submitted this frame.
	ItemAdd(item ItemSubmission)
	// ItemInfo is called once the item's interaction status is final. It may
	// arrive later in the same frame than ItemAdd.
	ItemInfo(id ID, label string, flags StatusFlags)
	// PostEndFrame is called once after the frame has been rendered.
	PostEndFrame()
}

// Host is the application-side collaborator driven by the engine.
type Host interface {
	// NewFrame produces and pumps one new frame.
	NewFrame() error
	// EndFrame finishes and presents the current frame.
	EndFrame() error
	// IO returns the host's input record.
	IO() *IO
}

// StackRecoverer is implemented by hosts that can close scopes a script
// left open (windows, id scopes). RecoverStacks calls warn once per popped
// scope and returns the number of scopes popped.
type StackRecoverer interface {
	RecoverStacks(warn func(msg string)) int
}

// PixelReader reads back rendered pixels. It is consumed by capture tools
// built on top of the engine.
type PixelReader interface {
	ReadPixels(rect image.Rectangle, dst []byte) error
}

// SourceOpener opens a source location in the developer's editor.
type SourceOpener interface {
	OpenSource(file string, line int) error
}

// Navigator is implemented by hosts with keyboard/gamepad navigation. The
// engine moves navigation focus directly before pressing NavActivate when a
// test runs in navigation input mode.
type Navigator interface {
	SetNavFocus(id ID) bool
}

// WindowFocuser brings a window to the front so its items can be hovered.
type WindowFocuser interface {
	FocusWindow(windowID ID) bool
}

// FocusKeeper saves and restores UI focus around a test run.
type FocusKeeper interface {
	BackupFocus()
	RestoreFocus()
}
