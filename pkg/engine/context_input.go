package engine

import (
	"fmt"
	"math"

	testerrors "github.com/go-drift/testengine/pkg/errors"
	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
)

// settleFrames are yielded after pointer motion so hover state catches up.
const settleFrames = 2

// MouseMove moves the pointer over the item ref and verifies it is hovered
// unless OpNoCheckHoveredID is set. Returns false when the item could not
// be located or hovered.
func (c *Context) MouseMove(ref idpath.Ref, flags OpFlags) bool {
	flags |= c.OpFlags
	info, ok := c.ItemInfo(ref, flags)
	if !ok {
		return false
	}
	id := info.ID
	c.engine.tracker.Hold(id)
	defer c.engine.tracker.Release(id)

	if flags&OpNoFocusWindow == 0 {
		if f, ok := c.engine.host.(host.WindowFocuser); ok && info.WindowID != 0 && f.FocusWindow(info.WindowID) {
			c.Yield()
		}
	}

	rect := info.RectClipped
	if rect.IsEmpty() {
		if flags&OpNoError == 0 {
			c.fail("MouseMove", testerrors.KindLookup, fmt.Errorf("item %q is clipped out", ref))
		}
		return false
	}
	c.MouseMoveToPos(targetPoint(rect, flags))

	if flags&OpNoCheckHoveredID != 0 {
		return true
	}
	if !c.currentStatus(info).Has(host.StatusHoveredRect) {
		if flags&OpNoError == 0 {
			c.fail("MouseMove", testerrors.KindAssert, fmt.Errorf("item %q not hovered after moving the mouse to %v", ref, c.Inputs().MousePos))
		}
		return false
	}
	return true
}

// targetPoint returns the point aimed at within rect: the center, or an edge
// inset by a few pixels.
func targetPoint(rect graphics.Rect, flags OpFlags) graphics.Offset {
	const inset = 3.0
	p := rect.Center()
	switch {
	case flags&OpMoveToEdgeL != 0:
		p.X = math.Min(rect.Left+inset, p.X)
	case flags&OpMoveToEdgeR != 0:
		p.X = math.Max(rect.Right-inset, p.X)
	}
	switch {
	case flags&OpMoveToEdgeU != 0:
		p.Y = math.Min(rect.Top+inset, p.Y)
	case flags&OpMoveToEdgeD != 0:
		p.Y = math.Max(rect.Bottom-inset, p.Y)
	}
	return p
}

// MouseMoveToPos moves the pointer to target at the configured speed, one
// step per frame, then yields settle frames. In fast mode it teleports.
func (c *Context) MouseMoveToPos(target graphics.Offset) {
	in := c.Inputs()
	if !c.engine.cfg.RunFast {
		for {
			delta := target.Sub(in.MousePos)
			dist := delta.Length()
			step := c.engine.cfg.MouseSpeed * c.frameDelta()
			if dist <= step || step <= 0 {
				break
			}
			in.MoveMouseBy(delta.Scale(step / dist))
			c.Yield()
		}
	}
	in.SetMousePos(target)
	c.YieldFrames(settleFrames)
}

// MouseTeleportToPos moves the pointer to target in one frame.
func (c *Context) MouseTeleportToPos(target graphics.Offset) {
	c.Inputs().SetMousePos(target)
	c.YieldFrames(settleFrames)
}

// MouseDown presses button and yields a frame.
func (c *Context) MouseDown(button host.MouseButton) {
	c.LogDebug("MouseDown %d", button)
	c.Inputs().SetButton(button, true)
	c.Yield()
}

// MouseUp releases button and yields a frame.
func (c *Context) MouseUp(button host.MouseButton) {
	c.LogDebug("MouseUp %d", button)
	c.Inputs().SetButton(button, false)
	c.Yield()
}

// MouseClick presses and releases button with a frame on each side. The
// button must be released beforehand.
func (c *Context) MouseClick(button host.MouseButton) {
	in := c.Inputs()
	if in.IsButtonDown(button) {
		c.fail("MouseClick", testerrors.KindUsage, fmt.Errorf("button %d already held", button))
		return
	}
	c.LogDebug("MouseClick %d", button)
	c.Yield()
	in.SetButton(button, true)
	c.Yield()
	in.SetButton(button, false)
	c.Yield()
	c.Yield()
}

// MouseDoubleClick clicks button twice in consecutive frames.
func (c *Context) MouseDoubleClick(button host.MouseButton) {
	in := c.Inputs()
	if in.IsButtonDown(button) {
		c.fail("MouseDoubleClick", testerrors.KindUsage, fmt.Errorf("button %d already held", button))
		return
	}
	c.LogDebug("MouseDoubleClick %d", button)
	c.Yield()
	for i := 0; i < 2; i++ {
		in.SetButton(button, true)
		c.Yield()
		in.SetButton(button, false)
		c.Yield()
	}
	c.Yield()
}

// MouseLiftDragThreshold makes the host consider the held button as
// dragging on the next frame.
func (c *Context) MouseLiftDragThreshold(button host.MouseButton) {
	c.Inputs().ForceDragDistance(button)
	c.Yield()
}

// MouseWheel scrolls by delta wheel units. Outside fast mode the delta is
// spread over frames at the configured scroll speed.
func (c *Context) MouseWheel(delta graphics.Offset) {
	in := c.Inputs()
	if c.engine.cfg.RunFast {
		in.AddWheel(delta)
		c.Yield()
		return
	}
	const lineHeight = 20.0
	remaining := delta
	for remaining.LengthSqr() > 0 {
		step := c.engine.cfg.ScrollSpeed * c.frameDelta() / lineHeight
		part := graphics.Offset{X: clampAbs(remaining.X, step), Y: clampAbs(remaining.Y, step)}
		in.AddWheel(part)
		remaining = remaining.Sub(part)
		c.Yield()
	}
}

func clampAbs(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// KeyDown presses key with mods and yields a frame.
func (c *Context) KeyDown(key host.Key, mods host.Modifiers) {
	c.LogDebug("KeyDown %d mods=%d", key, mods)
	c.Inputs().QueueKey(key, mods, true)
	c.Yield()
}

// KeyUp releases key with mods and yields a frame.
func (c *Context) KeyUp(key host.Key, mods host.Modifiers) {
	c.LogDebug("KeyUp %d mods=%d", key, mods)
	c.Inputs().QueueKey(key, mods, false)
	c.Yield()
}

// KeyPress presses and releases key count times.
func (c *Context) KeyPress(key host.Key, mods host.Modifiers, count int) {
	for ; count > 0; count-- {
		c.KeyDown(key, mods)
		c.KeyUp(key, mods)
	}
	c.Yield()
}

// KeyChars types text. Outside fast mode characters are spaced at the
// configured typing speed.
func (c *Context) KeyChars(text string) {
	c.LogDebug("KeyChars %q", text)
	in := c.Inputs()
	fast := c.engine.cfg.RunFast
	for _, r := range text {
		in.QueueChar(r)
		if !fast {
			c.Sleep(secondsToDuration(1 / c.engine.cfg.TypingSpeed))
		}
	}
	c.Yield()
}

// KeyCharsAppendEnter types text then presses Enter.
func (c *Context) KeyCharsAppendEnter(text string) {
	c.KeyChars(text)
	c.KeyPress(host.KeyEnter, host.ModNone, 1)
}

// NavPress presses and releases a virtual navigation button.
func (c *Context) NavPress(nav host.NavInput) {
	in := c.Inputs()
	in.QueueNav(nav, true)
	c.Yield()
	in.QueueNav(nav, false)
	c.Yield()
}
