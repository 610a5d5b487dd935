package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
)

func TestOverlay_IdleMirrorsHostPointer(t *testing.T) {
	var o Overlay
	io := &host.IO{MousePos: graphics.Offset{X: 12, Y: 34}}

	o.Apply(io, false)

	assert.Equal(t, graphics.Offset{X: 12, Y: 34}, o.MousePos)
	assert.False(t, o.Applying())
	assert.Equal(t, graphics.Offset{X: 12, Y: 34}, io.MousePos, "idle overlay must not touch host input")
}

func TestOverlay_DrivingOverwritesHostInput(t *testing.T) {
	var o Overlay
	io := &host.IO{MousePos: graphics.Offset{X: 1, Y: 1}, MouseButtons: 0b100}

	o.SetMousePos(graphics.Offset{X: 10.75, Y: 20.25})
	o.SetButton(host.MouseLeft, true)
	o.Apply(io, true)

	assert.True(t, o.Applying())
	assert.Equal(t, graphics.Offset{X: 10, Y: 20}, io.MousePos, "host sees the floored position")
	assert.Equal(t, graphics.Offset{X: 10.75, Y: 20.25}, o.MousePos, "overlay keeps the fractional position")
	assert.True(t, io.IsMouseDown(host.MouseLeft))
	assert.False(t, io.IsMouseDown(host.MouseMiddle), "real buttons are replaced, not merged")
}

func TestOverlay_SubPixelMotionAccumulates(t *testing.T) {
	var o Overlay
	io := &host.IO{}
	o.Apply(io, false)

	for i := 0; i < 10; i++ {
		o.SetMousePos(o.MousePos.Add(graphics.Offset{X: 0.25}))
		o.Apply(io, true)
		if i == 2 {
			assert.Equal(t, 0.0, io.MousePos.X, "0.75 px is still pixel 0 for the host")
		}
	}
	assert.Equal(t, 2.5, o.MousePos.X)
	assert.Equal(t, 2.0, io.MousePos.X)
}

func TestOverlay_RestoresOnceOnTransition(t *testing.T) {
	var o Overlay
	io := &host.IO{MousePos: graphics.Offset{X: 5, Y: 5}, KeyMods: host.ModAlt}

	o.Apply(io, false)
	o.SetMousePos(graphics.Offset{X: 50, Y: 60})
	o.SetButton(host.MouseLeft, true)
	o.QueueKey(host.KeyNone, host.ModCtrl, true)
	o.Apply(io, true)
	require.Equal(t, host.ModCtrl, io.KeyMods)

	o.Apply(io, false)
	assert.Equal(t, graphics.Offset{X: 5, Y: 5}, io.MousePos)
	assert.Equal(t, host.ModAlt, io.KeyMods)
	assert.Equal(t, uint32(0), io.MouseButtons)
	assert.False(t, o.Applying())

	// Subsequent idle frames leave the real input alone.
	io.MousePos = graphics.Offset{X: 7, Y: 8}
	o.Apply(io, false)
	assert.Equal(t, graphics.Offset{X: 7, Y: 8}, io.MousePos)
	assert.Equal(t, graphics.Offset{X: 7, Y: 8}, o.MousePos)
}

func TestOverlay_KeyEventsToggleModifiersAndKeys(t *testing.T) {
	var o Overlay
	io := &host.IO{}

	o.QueueKey(host.KeyA, host.ModCtrl|host.ModShift, true)
	o.Apply(io, true)
	assert.Equal(t, host.ModCtrl|host.ModShift, io.KeyMods)
	assert.True(t, io.KeysDown[host.KeyA])
	assert.True(t, o.IsKeyDown(host.KeyA))

	o.QueueKey(host.KeyA, host.ModShift, false)
	o.Apply(io, true)
	assert.Equal(t, host.ModCtrl, io.KeyMods)
	assert.False(t, io.KeysDown[host.KeyA])
	assert.Equal(t, 0, o.Pending())
}

func TestOverlay_NavAndCharEvents(t *testing.T) {
	var o Overlay
	io := &host.IO{}

	o.QueueNav(host.NavActivate, true)
	o.QueueChar('h')
	o.QueueChar('i')
	o.Apply(io, true)
	assert.True(t, io.IsNavDown(host.NavActivate))
	assert.Equal(t, "hi", string(io.InputQueueCharacters))

	o.QueueNav(host.NavActivate, false)
	o.Apply(io, true)
	assert.False(t, io.IsNavDown(host.NavActivate))
}

func TestOverlay_ForceDragDistance(t *testing.T) {
	var o Overlay
	io := &host.IO{MouseDragThreshold: 6}

	o.ForceDragDistance(host.MouseLeft)
	o.Apply(io, true)
	assert.Equal(t, 72.0, io.MouseDragMaxDistanceSqr[host.MouseLeft])

	io.MouseDragMaxDistanceSqr[host.MouseLeft] = 0
	o.Apply(io, true)
	assert.Equal(t, 0.0, io.MouseDragMaxDistanceSqr[host.MouseLeft], "forcing applies to a single frame")
}

func TestOverlay_WheelAppliesForOneFrame(t *testing.T) {
	var o Overlay
	io := &host.IO{}

	o.AddWheel(graphics.Offset{Y: -1})
	o.AddWheel(graphics.Offset{Y: -2})
	o.Apply(io, true)
	assert.Equal(t, -3.0, io.MouseWheel.Y)

	o.Apply(io, true)
	assert.Equal(t, 0.0, io.MouseWheel.Y)
}

func TestOverlay_Reset(t *testing.T) {
	var o Overlay
	o.SetMousePos(graphics.Offset{X: 3, Y: 4})
	o.SetButton(host.MouseRight, true)
	o.QueueKey(host.KeyEnter, 0, true)
	o.Reset()

	assert.False(t, o.AnyButtonDown())
	assert.Equal(t, 0, o.Pending())
	assert.Equal(t, graphics.Offset{X: 3, Y: 4}, o.MousePos)
}
