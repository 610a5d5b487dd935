package engine

import (
	"fmt"
	"strings"
	"time"

	testerrors "github.com/go-drift/testengine/pkg/errors"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
	"github.com/go-drift/testengine/pkg/query"
)

// Action is an interaction applied to an item.
type Action int

const (
	ActionHover Action = iota
	ActionClick
	ActionDoubleClick
	ActionCheck
	ActionUncheck
	ActionOpen
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionHover:
		return "Hover"
	case ActionClick:
		return "Click"
	case ActionDoubleClick:
		return "DoubleClick"
	case ActionCheck:
		return "Check"
	case ActionUncheck:
		return "Uncheck"
	case ActionOpen:
		return "Open"
	case ActionClose:
		return "Close"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// maxGatherFrames bounds how long GatherItems waits for a subtree to stop
// growing.
const maxGatherFrames = 100

// ItemHover moves the pointer over ref.
func (c *Context) ItemHover(ref idpath.Ref) {
	c.ItemAction(ActionHover, ref, 0)
}

// ItemClick moves to ref and clicks the left button.
func (c *Context) ItemClick(ref idpath.Ref) {
	c.ItemAction(ActionClick, ref, 0)
}

// ItemDoubleClick moves to ref and double-clicks.
func (c *Context) ItemDoubleClick(ref idpath.Ref) {
	c.ItemAction(ActionDoubleClick, ref, 0)
}

// ItemCheck checks the toggle ref; a no-op when already checked.
func (c *Context) ItemCheck(ref idpath.Ref) {
	c.ItemAction(ActionCheck, ref, 0)
}

// ItemUncheck unchecks the toggle ref; a no-op when already unchecked.
func (c *Context) ItemUncheck(ref idpath.Ref) {
	c.ItemAction(ActionUncheck, ref, 0)
}

// ItemOpen opens the openable item ref; a no-op when already open.
func (c *Context) ItemOpen(ref idpath.Ref) {
	c.ItemAction(ActionOpen, ref, 0)
}

// ItemClose closes the openable item ref; a no-op when already closed.
func (c *Context) ItemClose(ref idpath.Ref) {
	c.ItemAction(ActionClose, ref, 0)
}

// ItemAction applies action to ref and reports whether it succeeded.
func (c *Context) ItemAction(action Action, ref idpath.Ref, flags OpFlags) bool {
	flags |= c.OpFlags
	c.LogDebug("Item%s %s", action, ref)
	info, ok := c.ItemInfo(ref, flags)
	if !ok {
		return false
	}
	tr := c.engine.tracker
	tr.Hold(info.ID)
	defer tr.Release(info.ID)

	target := idpath.RefID(info.ID)
	switch action {
	case ActionHover:
		return c.MouseMove(target, flags)

	case ActionClick:
		return c.activate(target, info.ID, flags, false)

	case ActionDoubleClick:
		return c.activate(target, info.ID, flags, true)

	case ActionCheck, ActionUncheck:
		want := action == ActionCheck
		status := c.recentStatus(info)
		if !status.Has(host.StatusCheckable) {
			c.fail("Item"+action.String(), testerrors.KindAssert, fmt.Errorf("item %q is not checkable", ref))
			return false
		}
		if status.Has(host.StatusChecked) == want {
			return true
		}
		start := c.engine.frameCount
		c.activate(target, info.ID, flags, false)
		c.Yield()
		if c.statusSince(info, start).Has(host.StatusChecked) != want {
			c.fail("Item"+action.String(), testerrors.KindAssert, fmt.Errorf("item %q checked=%v after click", ref, !want))
			return false
		}
		return true

	case ActionOpen, ActionClose:
		want := action == ActionOpen
		opened := c.recentStatus(info).Has(host.StatusOpened)
		if opened == want {
			return true
		}
		start := c.engine.frameCount
		if want {
			// Some items open on hover alone.
			c.MouseMove(target, flags|OpNoCheckHoveredID)
			opened = c.statusSince(info, start).Has(host.StatusOpened)
		}
		if opened != want {
			c.activate(target, info.ID, flags|OpNoCheckHoveredID, false)
			opened = c.statusSince(info, start).Has(host.StatusOpened)
		}
		if opened != want {
			c.activate(target, info.ID, flags|OpNoCheckHoveredID, true)
			opened = c.statusSince(info, start).Has(host.StatusOpened)
		}
		if opened != want {
			c.fail("Item"+action.String(), testerrors.KindAssert, fmt.Errorf("unable to %s item %q", strings.ToLower(action.String()), ref))
			return false
		}
		c.Yield()
		return true
	}
	c.fail("ItemAction", testerrors.KindUsage, fmt.Errorf("unknown action %v", action))
	return false
}

// activate clicks (or double-clicks) the item. In navigation input mode it
// focuses the item and presses NavActivate instead.
func (c *Context) activate(target idpath.Ref, id host.ID, flags OpFlags, double bool) bool {
	if c.InputMode == InputModeNav {
		nav, ok := c.engine.host.(host.Navigator)
		if !ok || !nav.SetNavFocus(id) {
			c.fail("ItemClick", testerrors.KindUsage, fmt.Errorf("host cannot focus item 0x%08X", uint32(id)))
			return false
		}
		c.Yield()
		c.NavPress(host.NavActivate)
		return true
	}
	if !c.MouseMove(target, flags) && flags&OpNoCheckHoveredID == 0 {
		return false
	}
	if double {
		c.MouseDoubleClick(host.MouseLeft)
	} else {
		c.MouseClick(host.MouseLeft)
	}
	return true
}

// ItemHold presses the left button over ref for d, then releases it.
func (c *Context) ItemHold(ref idpath.Ref, d time.Duration) {
	if !c.MouseMove(ref, 0) {
		return
	}
	c.Yield()
	c.MouseDown(host.MouseLeft)
	c.Sleep(d)
	c.MouseUp(host.MouseLeft)
	c.Yield()
}

// ItemDragAndDrop drags src onto dst with the left button.
func (c *Context) ItemDragAndDrop(src, dst idpath.Ref) {
	c.itemDrag("ItemDragAndDrop", src, dst, 0)
}

// ItemDragOverAndHold drags src over dst and holds it there for a short
// while before releasing.
func (c *Context) ItemDragOverAndHold(src, dst idpath.Ref) {
	c.itemDrag("ItemDragOverAndHold", src, dst, time.Second)
}

func (c *Context) itemDrag(op string, src, dst idpath.Ref, hold time.Duration) {
	srcInfo, ok := c.ItemInfo(src, 0)
	if !ok {
		return
	}
	tr := c.engine.tracker
	tr.Hold(srcInfo.ID)
	defer tr.Release(srcInfo.ID)
	dstInfo, ok := c.ItemInfo(dst, 0)
	if !ok {
		return
	}
	tr.Hold(dstInfo.ID)
	defer tr.Release(dstInfo.ID)

	c.LogDebug("%s %s -> %s", op, src, dst)
	c.MouseMove(idpath.RefID(srcInfo.ID), OpNoCheckHoveredID)
	c.MouseDown(host.MouseLeft)
	// Source and target may overlap; force the drag distance.
	c.MouseLiftDragThreshold(host.MouseLeft)
	c.MouseMove(idpath.RefID(dstInfo.ID), OpNoCheckHoveredID)
	if hold > 0 {
		c.Sleep(hold)
	}
	c.MouseUp(host.MouseLeft)
}

// MenuClick walks a menu path such as "File/Recent/Doc1" under the current
// reference window, opening each intermediate menu, and clicks the last
// element.
func (c *Context) MenuClick(path string) {
	c.MenuAction(ActionClick, path)
}

// MenuCheck walks path and checks its last element.
func (c *Context) MenuCheck(path string) {
	c.MenuAction(ActionCheck, path)
}

// MenuUncheck walks path and unchecks its last element.
func (c *Context) MenuUncheck(path string) {
	c.MenuAction(ActionUncheck, path)
}

// MenuAction walks path and applies action to its last element. The first
// segment is looked up in the reference window's menu bar; deeper segments
// in the popup opened by the previous segment.
func (c *Context) MenuAction(action Action, path string) bool {
	segments := splitPath(path)
	if len(segments) == 0 {
		c.fail("MenuAction", testerrors.KindUsage, fmt.Errorf("empty menu path"))
		return false
	}
	for depth, seg := range segments {
		ref := idpath.RefID(MenuItemID(c.refID, depth, seg))
		last := depth == len(segments)-1
		if last {
			return c.ItemAction(action, ref, 0)
		}
		info, ok := c.ItemInfo(ref, 0)
		if !ok {
			return false
		}
		start := c.engine.frameCount
		opened := c.recentStatus(info).Has(host.StatusOpened)
		if depth > 0 {
			// Submenus open on hover.
			c.MouseMove(ref, OpNoCheckHoveredID)
			opened = c.statusSince(info, start).Has(host.StatusOpened)
		}
		if !opened {
			c.activate(ref, info.ID, OpNoCheckHoveredID, false)
			opened = c.statusSince(info, start).Has(host.StatusOpened)
		}
		if !opened {
			c.fail("MenuAction", testerrors.KindAssert, fmt.Errorf("menu %q did not open", seg))
			return false
		}
	}
	return true
}

// MenuItemID returns the id of a menu element. depth 0 elements live in the
// "##menubar" scope of window; deeper ones in the "##Menu_%02d" popup of the
// previous level.
func MenuItemID(window host.ID, depth int, segment string) host.ID {
	if depth == 0 {
		return idpath.HashPath(segment, idpath.Hash("##menubar", window))
	}
	return idpath.HashPath(segment, MenuPopupID(depth-1))
}

// MenuPopupID returns the id of the popup window opened at menu depth.
func MenuPopupID(depth int) host.ID {
	return idpath.Hash(fmt.Sprintf("##Menu_%02d", depth), 0)
}

// splitPath splits on unescaped '/' and keeps escapes in the segments.
func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '\\':
			i++
		case '/':
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		out = append(out, path[start:])
	}
	return out
}

// WindowCollapse collapses or expands the window ref by clicking its
// collapse button. A no-op when the window is already in that state.
func (c *Context) WindowCollapse(ref idpath.Ref, collapse bool) bool {
	info, ok := c.ItemInfo(ref, 0)
	if !ok {
		return false
	}
	status := c.recentStatus(info)
	if !status.Has(host.StatusOpenable) {
		c.fail("WindowCollapse", testerrors.KindAssert, fmt.Errorf("window %q cannot collapse", ref))
		return false
	}
	if status.Has(host.StatusOpened) != collapse {
		return true
	}
	c.engine.tracker.Hold(info.ID)
	defer c.engine.tracker.Release(info.ID)
	c.LogDebug("WindowCollapse %s collapse=%v", ref, collapse)
	start := c.engine.frameCount
	c.ItemClick(idpath.RefID(idpath.Hash("#COLLAPSE", info.ID)))
	if c.statusSince(info, start).Has(host.StatusOpened) == collapse {
		c.fail("WindowCollapse", testerrors.KindAssert, fmt.Errorf("window %q collapsed=%v after click", ref, !collapse))
		return false
	}
	return true
}

// GatherItems records every main-layer item submitted under parent, up to
// depth id-stack levels below it (negative for unbounded), into out. It
// yields frames until a frame adds no new item and returns the item count.
func (c *Context) GatherItems(out *query.ItemList, parent idpath.Ref, depth int) int {
	tr := c.engine.tracker
	tr.EndGather()
	out.Reset()
	parentID := c.GetID(parent)
	if err := tr.BeginGather(parentID, depth, out); err != nil {
		c.fail("GatherItems", testerrors.KindUsage, err)
		return 0
	}
	defer tr.EndGather()

	for frames := 0; frames < maxGatherFrames; frames++ {
		before := out.Len()
		c.Yield()
		if frames > 0 && out.Len() == before {
			break
		}
	}
	c.LogDebug("GatherItems %s depth=%d: %d items", parent, depth, out.Len())
	return out.Len()
}

// ItemActionAll gathers the items under parent and applies action to each
// one that filter accepts (nil accepts all) and that supports the action.
// Returns the number of items acted on.
func (c *Context) ItemActionAll(action Action, parent idpath.Ref, depth int, filter func(*query.ItemInfo) bool) int {
	var items query.ItemList
	c.GatherItems(&items, parent, depth)
	n := 0
	for _, it := range items.Items() {
		if filter != nil && !filter(it) {
			continue
		}
		switch action {
		case ActionOpen, ActionClose:
			if !it.StatusFlags.Has(host.StatusOpenable) {
				continue
			}
		case ActionCheck, ActionUncheck:
			if !it.StatusFlags.Has(host.StatusCheckable) {
				continue
			}
		}
		if c.ItemAction(action, idpath.RefID(it.ID), OpNoError) {
			n++
		}
	}
	return n
}

// ItemOpenAll opens every openable item under parent, gathering again
// after each pass so newly revealed children are opened too. Stops after
// maxPasses passes or when a pass opens nothing.
func (c *Context) ItemOpenAll(parent idpath.Ref, depth, maxPasses int) int {
	total := 0
	for pass := 0; maxPasses <= 0 || pass < maxPasses; pass++ {
		n := c.ItemActionAll(ActionOpen, parent, depth, func(it *query.ItemInfo) bool {
			return !it.StatusFlags.Has(host.StatusOpened)
		})
		total += n
		if n == 0 {
			break
		}
	}
	return total
}
