// Package input implements the simulated input overlay.
//
// An Overlay keeps its own pointer, button, modifier and key state plus a
// FIFO of discrete events. While a test drives input, Apply stamps that state
// onto the host's IO every frame, fully replacing real input. When the test
// stops driving, the host's values from before the run are restored once and
// the overlay goes back to mirroring the real pointer.
package input

import (
	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
)

// EventKind identifies the type of a queued discrete event.
type EventKind int

const (
	// EventKey is a key down/up transition, possibly carrying modifiers.
	EventKey EventKind = iota
	// EventChar is a text input character.
	EventChar
	// EventNav is a virtual navigation button transition.
	EventNav
)

// Event is a queued discrete input event.
type Event struct {
	Kind EventKind
	Key  host.Key
	Mods host.Modifiers
	Down bool
	Char rune
	Nav  host.NavInput
}

// snapshot holds the host input fields the overlay overwrites.
type snapshot struct {
	mousePos     graphics.Offset
	mouseButtons uint32
	keyMods      host.Modifiers
	keysDown     [host.KeyCount]bool
	navButtons   uint32
}

// Overlay is the simulated input record. The zero value is ready to use.
type Overlay struct {
	// MousePos is the continuous pointer position. The host only ever sees
	// it floored, so slow multi-frame motion keeps its fractional progress.
	MousePos     graphics.Offset
	MouseButtons uint32
	KeyMods      host.Modifiers

	keysDown   [host.KeyCount]bool
	navButtons uint32
	wheel      graphics.Offset
	queue      []Event
	forceDrag  [host.MouseButtonCount]bool

	applying bool
	backup   snapshot
}

// Applying reports whether the overlay replaced host input on the last frame.
func (o *Overlay) Applying() bool {
	return o.applying
}

// Pending returns the number of queued discrete events.
func (o *Overlay) Pending() int {
	return len(o.queue)
}

// Apply runs once per frame before the host builds its UI.
func (o *Overlay) Apply(io *host.IO, driving bool) {
	if !driving {
		if o.applying {
			o.restore(io)
			o.applying = false
		}
		o.MousePos = io.MousePos
		return
	}

	if !o.applying {
		o.backup = snapshot{
			mousePos:     io.MousePos,
			mouseButtons: io.MouseButtons,
			keyMods:      io.KeyMods,
			keysDown:     io.KeysDown,
			navButtons:   io.NavButtons,
		}
		o.applying = true
	}

	for _, ev := range o.queue {
		switch ev.Kind {
		case EventKey:
			if ev.Down {
				o.KeyMods |= ev.Mods
			} else {
				o.KeyMods &^= ev.Mods
			}
			if ev.Key != host.KeyNone && ev.Key < host.KeyCount {
				o.keysDown[ev.Key] = ev.Down
			}
		case EventNav:
			bit := uint32(1) << uint(ev.Nav)
			if ev.Down {
				o.navButtons |= bit
			} else {
				o.navButtons &^= bit
			}
		case EventChar:
			// Consumed by the host this frame; no need to buffer.
			io.AddInputCharacter(ev.Char)
		}
	}
	o.queue = o.queue[:0]

	io.MousePos = o.MousePos.Floor()
	io.MouseButtons = o.MouseButtons
	io.KeyMods = o.KeyMods
	io.KeysDown = o.keysDown
	io.NavButtons = o.navButtons
	io.MouseWheel = o.wheel
	o.wheel = graphics.Offset{}

	for b, force := range o.forceDrag {
		if !force {
			continue
		}
		threshold := io.MouseDragThreshold
		forced := threshold*threshold + threshold*threshold
		if io.MouseDragMaxDistanceSqr[b] < forced {
			io.MouseDragMaxDistanceSqr[b] = forced
		}
		o.forceDrag[b] = false
	}
}

func (o *Overlay) restore(io *host.IO) {
	io.MousePos = o.backup.mousePos
	io.MouseButtons = o.backup.mouseButtons
	io.KeyMods = o.backup.keyMods
	io.KeysDown = o.backup.keysDown
	io.NavButtons = o.backup.navButtons
	io.MouseWheel = graphics.Offset{}
}

// QueueKey queues a key transition. Use host.KeyNone to change modifiers only.
func (o *Overlay) QueueKey(key host.Key, mods host.Modifiers, down bool) {
	o.queue = append(o.queue, Event{Kind: EventKey, Key: key, Mods: mods, Down: down})
}

// QueueChar queues a text input character.
func (o *Overlay) QueueChar(r rune) {
	o.queue = append(o.queue, Event{Kind: EventChar, Char: r})
}

// QueueNav queues a virtual navigation button transition.
func (o *Overlay) QueueNav(n host.NavInput, down bool) {
	o.queue = append(o.queue, Event{Kind: EventNav, Nav: n, Down: down})
}

// SetMousePos moves the simulated pointer.
func (o *Overlay) SetMousePos(p graphics.Offset) {
	o.MousePos = p
}

// MoveMouseBy moves the simulated pointer by delta.
func (o *Overlay) MoveMouseBy(delta graphics.Offset) {
	o.MousePos = o.MousePos.Add(delta)
}

// SetButton presses or releases a simulated button.
func (o *Overlay) SetButton(b host.MouseButton, down bool) {
	bit := uint32(1) << uint(b)
	if down {
		o.MouseButtons |= bit
	} else {
		o.MouseButtons &^= bit
	}
}

// IsButtonDown reports whether the simulated button b is held.
func (o *Overlay) IsButtonDown(b host.MouseButton) bool {
	return o.MouseButtons&(1<<uint(b)) != 0
}

// AnyButtonDown reports whether any simulated button is held.
func (o *Overlay) AnyButtonDown() bool {
	return o.MouseButtons != 0
}

// IsKeyDown reports whether the simulated key is held.
func (o *Overlay) IsKeyDown(key host.Key) bool {
	if key <= host.KeyNone || key >= host.KeyCount {
		return false
	}
	return o.keysDown[key]
}

// ForceDragDistance makes the host treat the held button b as dragging on the
// next frame, whatever distance the pointer actually travelled.
func (o *Overlay) ForceDragDistance(b host.MouseButton) {
	if int(b) < len(o.forceDrag) {
		o.forceDrag[b] = true
	}
}

// AddWheel accumulates a wheel delta for the next frame.
func (o *Overlay) AddWheel(delta graphics.Offset) {
	o.wheel = o.wheel.Add(delta)
}

// Reset releases every button, key and modifier and drops queued events.
// The pointer position is kept.
func (o *Overlay) Reset() {
	o.MouseButtons = 0
	o.KeyMods = 0
	o.keysDown = [host.KeyCount]bool{}
	o.navButtons = 0
	o.wheel = graphics.Offset{}
	o.queue = o.queue[:0]
	o.forceDrag = [host.MouseButtonCount]bool{}
}
