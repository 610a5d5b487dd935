package testbed

import (
	"strings"
	"unicode/utf8"

	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
)

const inputWidth = 120.0

// displayLabel strips the "##" suffix that only feeds the id hash.
func displayLabel(label string) string {
	if i := strings.Index(label, "##"); i >= 0 {
		return label[:i]
	}
	return label
}

// GetID returns the id label hashes to in the current scope.
func (h *Host) GetID(label string) host.ID {
	return idpath.Hash(label, h.seed())
}

// PushID opens an id scope seeded with label.
func (h *Host) PushID(label string) {
	id := h.GetID(label)
	h.pushScope(scopeID, nil)
	h.idStack = append(h.idStack, id)
}

// PushIDInt opens an id scope seeded with an integer.
func (h *Host) PushIDInt(n int) {
	id := idpath.HashInt(int32(n), h.seed())
	h.pushScope(scopeID, nil)
	h.idStack = append(h.idStack, id)
}

// PopID closes the scope opened by PushID.
func (h *Host) PopID() {
	h.popKind(scopeID)
}

// buttonBehavior updates activation state for an item. Items are pressed
// on release over the item, or on click when pressOnClick is set, or by
// navigation activation while focused.
func (h *Host) buttonBehavior(id host.ID, hovered, pressOnClick bool) (bool, host.StatusFlags) {
	flags := host.StatusVisible
	pressed := false
	if hovered {
		flags |= host.StatusHoveredRect
		h.hoveredID = id
		if h.clicked[host.MouseLeft] {
			h.setActive(id)
			if pressOnClick {
				pressed = true
			}
		}
	}
	if h.activeID == id && h.released[host.MouseLeft] {
		if !pressOnClick {
			pressed = hovered
		}
		h.deactivate()
	}
	if h.navFocus == id && h.navActivated {
		pressed = true
		h.activatedID = id
		h.deactivatedID = id
	}
	if h.activatedID == id {
		flags |= host.StatusActivated
	}
	if h.deactivatedID == id {
		flags |= host.StatusDeactivated
	}
	if h.activeID == id {
		flags |= host.StatusActive
	}
	if h.current != nil && h.hoveredWin == h.current {
		flags |= host.StatusHoveredWindow
	}
	return pressed, flags
}

// submit lays out an item of size, reports it to the hooks and returns its
// rectangle and hover state.
func (h *Host) submit(id host.ID, size graphics.Size) (graphics.Rect, bool) {
	w := h.current
	if w == nil {
		return graphics.Rect{}, false
	}
	rect := h.layout(size)
	layer := host.NavLayerMain
	if w.inMenuBar {
		layer = host.NavLayerMenu
	}
	h.itemAdd(w, id, rect, layer, nil)
	visible := rect
	if !w.clip.IsEmpty() {
		visible = rect.Intersect(w.clip)
	}
	return rect, !visible.IsEmpty() && h.hovers(w, rect, w.clip)
}

func (h *Host) labelSize(label string) graphics.Size {
	return graphics.Size{Width: h.measure(displayLabel(label)) + framePaddingX*2, Height: lineHeight}
}

// Text draws a line of text. It is not an interactive item.
func (h *Host) Text(text string) {
	if h.current == nil {
		return
	}
	rect := h.layout(graphics.Size{Width: h.measure(text), Height: lineHeight})
	h.record("text", text, rect)
}

// Button submits a push button and reports whether it was pressed.
func (h *Host) Button(label string) bool {
	id := h.GetID(label)
	rect, hovered := h.submit(id, h.labelSize(label))
	pressed, flags := h.buttonBehavior(id, hovered, false)
	h.itemInfo(id, label, flags)
	h.record("button", displayLabel(label), rect)
	return pressed
}

// Checkbox submits a checkbox bound to v and reports whether it toggled.
func (h *Host) Checkbox(label string, v *bool) bool {
	id := h.GetID(label)
	size := graphics.Size{Width: checkboxSize + itemSpacing + h.measure(displayLabel(label)), Height: lineHeight}
	rect, hovered := h.submit(id, size)
	pressed, flags := h.buttonBehavior(id, hovered, false)
	if pressed {
		*v = !*v
		flags |= host.StatusEdited
	}
	flags |= host.StatusCheckable
	if *v {
		flags |= host.StatusChecked
	}
	h.itemInfo(id, label, flags)
	h.record("checkbox", displayLabel(label), rect)
	return pressed
}

// TreeNode submits a collapsible node. When it returns true the node is
// open and its children are submitted in its id scope until TreePop.
func (h *Host) TreeNode(label string) bool {
	id := h.GetID(label)
	size := graphics.Size{Width: treeIndent + h.measure(displayLabel(label)) + framePaddingX*2, Height: lineHeight}
	rect, hovered := h.submit(id, size)
	pressed, flags := h.buttonBehavior(id, hovered, true)
	open := h.storage[id]
	if pressed {
		open = !open
		h.storage[id] = open
	}
	flags |= host.StatusOpenable
	if open {
		flags |= host.StatusOpened
	}
	h.itemInfo(id, label, flags)
	h.record("tree", displayLabel(label), rect)
	if !open {
		return false
	}
	h.pushScope(scopeTree, nil)
	h.idStack = append(h.idStack, id)
	h.current.indent += treeIndent
	return true
}

// TreePop closes an open TreeNode.
func (h *Host) TreePop() {
	h.popKind(scopeTree)
}

// SetTreeNodeOpen opens or closes the tree node label in the current scope.
func (h *Host) SetTreeNodeOpen(label string, open bool) {
	h.storage[h.GetID(label)] = open
}

// InputText submits a single-line text field bound to buf. Clicking it
// takes keyboard focus; typed characters and Backspace edit buf; Enter
// commits, releases focus and returns true.
func (h *Host) InputText(label string, buf *string) bool {
	id := h.GetID(label)
	size := graphics.Size{Width: inputWidth + itemSpacing + h.measure(displayLabel(label)), Height: lineHeight}
	rect, hovered := h.submit(id, size)
	_, flags := h.buttonBehavior(id, hovered, false)
	if h.activatedID == id {
		h.inputFocus = id
	}
	if h.inputFocus == id && h.clicked[host.MouseLeft] && !hovered {
		h.inputFocus = 0
	}

	entered := false
	if h.inputFocus == id {
		before := *buf
		for _, r := range h.io.InputQueueCharacters {
			*buf += string(r)
		}
		if h.keyPressed(host.KeyBackspace) && len(*buf) > 0 {
			_, n := utf8.DecodeLastRuneInString(*buf)
			*buf = (*buf)[:len(*buf)-n]
		}
		if h.keyPressed(host.KeyEnter) {
			entered = true
			h.inputFocus = 0
		}
		if *buf != before {
			flags |= host.StatusEdited
		}
		flags |= host.StatusActive
	}
	flags |= host.StatusInputable
	h.itemInfo(id, label, flags)
	h.record("input", *buf, rect)
	return entered
}

// DragSource submits an item that starts a drag carrying payload once the
// pointer pressed on it travels past the drag threshold. It reports whether
// this source is being dragged.
func (h *Host) DragSource(label, payload string) bool {
	id := h.GetID(label)
	rect, hovered := h.submit(id, h.labelSize(label))
	_, flags := h.buttonBehavior(id, hovered, false)
	threshold := h.io.MouseDragThreshold
	if h.activeID == id && h.io.IsMouseDown(host.MouseLeft) &&
		h.io.MouseDragMaxDistanceSqr[host.MouseLeft] >= threshold*threshold {
		h.dragging = true
		h.dragPayload = payload
		h.dragSourceID = id
	}
	h.itemInfo(id, label, flags)
	h.record("drag", displayLabel(label), rect)
	return h.dragging && h.dragSourceID == id
}

// DropTarget submits an item that accepts a dragged payload. It returns the
// payload and true on the frame it is dropped onto the target.
func (h *Host) DropTarget(label string) (string, bool) {
	id := h.GetID(label)
	rect, hovered := h.submit(id, h.labelSize(label))
	flags := host.StatusVisible
	if hovered {
		flags |= host.StatusHoveredRect
	}
	var payload string
	dropped := false
	if h.dragging && hovered && h.released[host.MouseLeft] {
		payload, dropped = h.dragPayload, true
		flags |= host.StatusEdited
	}
	h.itemInfo(id, label, flags)
	h.record("drop", displayLabel(label), rect)
	return payload, dropped
}

// IsItemHovered reports whether id was hovered on the current frame.
func (h *Host) IsItemHovered(id host.ID) bool {
	return id != 0 && h.hoveredID == id
}

func (h *Host) keyPressed(k host.Key) bool {
	return h.io.KeysDown[k] && !h.prevKeys[k]
}
