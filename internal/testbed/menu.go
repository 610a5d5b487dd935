package testbed

import (
	"fmt"

	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
)

// popupID returns the id of the popup window holding menu level depth.
// Menu items inside it are hashed from this id alone.
func popupID(depth int) host.ID {
	return idpath.Hash(fmt.Sprintf("##Menu_%02d", depth), 0)
}

func (h *Host) menuDepth() int {
	n := 0
	for _, s := range h.scopes {
		if s.kind == scopeMenu {
			n++
		}
	}
	return n
}

// BeginMenuBar opens the menu bar of the current window. Items submitted
// until EndMenuBar are laid out horizontally on the menu layer.
func (h *Host) BeginMenuBar() bool {
	w := h.current
	if w == nil || w.popup || w.collapsed {
		return false
	}
	h.pushScope(scopeMenuBar, nil)
	h.idStack = append(h.idStack, idpath.Hash("##menubar", h.seed()))
	w.inMenuBar = true
	w.menuX = w.cursor.X
	h.record("menubar", "", graphics.RectFromLTWH(w.rect.Left, w.cursor.Y, w.rect.Width(), lineHeight))
	return true
}

// EndMenuBar closes the menu bar.
func (h *Host) EndMenuBar() {
	w := h.current
	if !h.popKind(scopeMenuBar) {
		return
	}
	w.inMenuBar = false
	w.cursor.Y += lineHeight + itemSpacing
}

// BeginMenu submits a menu header. In a menu bar it toggles on click; in a
// popup it opens on hover. When it returns true the menu's popup is open
// and EndMenu must be called.
func (h *Host) BeginMenu(label string) bool {
	parent := h.current
	if parent == nil {
		return false
	}
	depth := h.menuDepth()
	id := h.GetID(label)
	size := h.labelSize(label)
	if !parent.inMenuBar {
		size.Width = popupWidth - windowPadding
	}
	rect, hovered := h.submit(id, size)

	open := depth < len(h.openMenus) && h.openMenus[depth] == id
	if hovered && h.clicked[host.MouseLeft] {
		h.menuClicked = true
	}
	switch {
	case parent.inMenuBar && hovered && h.clicked[host.MouseLeft]:
		h.openMenus = h.openMenus[:0]
		if !open {
			h.openMenus = append(h.openMenus, id)
		}
		open = !open
	case parent.inMenuBar && hovered && len(h.openMenus) > 0 && !open:
		// Another menu of the bar is open: follow the pointer.
		h.openMenus = append(h.openMenus[:0], id)
		open = true
	case !parent.inMenuBar && hovered && !open:
		h.openMenus = append(h.openMenus[:min(depth, len(h.openMenus))], id)
		open = true
	}
	if h.navFocus == id && h.navActivated {
		h.openMenus = append(h.openMenus[:min(depth, len(h.openMenus))], id)
		open = true
	}

	flags := host.StatusVisible | host.StatusOpenable
	if hovered {
		flags |= host.StatusHoveredRect
	}
	if open {
		flags |= host.StatusOpened
	}
	h.itemInfo(id, label, flags)
	h.record("menu", displayLabel(label), rect)
	if !open {
		return false
	}

	pos := graphics.Offset{X: rect.Left, Y: rect.Bottom}
	if !parent.inMenuBar {
		pos = graphics.Offset{X: parent.rect.Right, Y: rect.Top - windowPadding/2}
	}
	pid := popupID(depth)
	popup := h.getWindow(pid, fmt.Sprintf("##Menu_%02d", depth), pos, graphics.Size{Width: popupWidth}, true)
	popup.depth = depth
	popup.z = depth
	popup.pos = pos
	popup.lastFrame = h.io.FrameCount
	popup.clip = graphics.Rect{}
	popup.cursor = graphics.Offset{X: pos.X + windowPadding/2, Y: pos.Y + windowPadding/2}
	popup.indent = 0
	popup.sameLine = false
	popup.inMenuBar = false

	h.pushScope(scopeMenu, popup)
	h.idStack = append(h.idStack[:0], pid)
	return true
}

// EndMenu closes the popup opened by BeginMenu.
func (h *Host) EndMenu() {
	w := h.current
	if !h.popKind(scopeMenu) {
		return
	}
	height := w.cursor.Y - w.pos.Y - itemSpacing + windowPadding/2
	w.rect = graphics.RectFromLTWH(w.pos.X, w.pos.Y, popupWidth, height)
	h.record("popup", w.name, w.rect)
}

// MenuItem submits a menu entry and reports whether it was activated.
// When selected is non-nil the entry is a toggle bound to it. Activating an
// entry closes every open menu.
func (h *Host) MenuItem(label string, selected *bool) bool {
	w := h.current
	if w == nil {
		return false
	}
	id := h.GetID(label)
	size := h.labelSize(label)
	if !w.inMenuBar {
		size.Width = popupWidth - windowPadding
	}
	rect, hovered := h.submit(id, size)
	if hovered && h.clicked[host.MouseLeft] {
		h.menuClicked = true
	}
	pressed, flags := h.buttonBehavior(id, hovered, false)
	if pressed {
		if selected != nil {
			*selected = !*selected
			flags |= host.StatusEdited
		}
		h.openMenus = h.openMenus[:0]
	}
	if selected != nil {
		flags |= host.StatusCheckable
		if *selected {
			flags |= host.StatusChecked
		}
	}
	h.itemInfo(id, label, flags)
	h.record("menuitem", displayLabel(label), rect)
	return pressed
}

// OpenMenus returns how many menu levels are open.
func (h *Host) OpenMenus() int {
	return len(h.openMenus)
}
