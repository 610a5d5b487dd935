// Package suite registers a demo catalog of UI tests against the testbed
// host. Every facade verb is exercised by at least one test, which makes the
// catalog both a smoke test of the engine and a usage reference.
package suite

import (
	"fmt"
	"time"

	"github.com/go-drift/testengine/internal/testbed"
	"github.com/go-drift/testengine/pkg/engine"
	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
	"github.com/go-drift/testengine/pkg/idpath"
	"github.com/go-drift/testengine/pkg/query"
)

var (
	mainPos  = graphics.Offset{X: 40, Y: 40}
	mainSize = graphics.Size{Width: 360, Height: 420}
	sidePos  = graphics.Offset{X: 420, Y: 40}
	sideSize = graphics.Size{Width: 280, Height: 260}
)

// app is the state behind the demo UI. It is reset at the start of every
// run.
type app struct {
	clicks    int
	enabled   bool
	name      string
	submitted string
	autosave  bool
	created   int
	recent    string
	dropped   string
	held      int
}

// Register adds the demo tests to e. h must be the host e drives.
func Register(e *engine.Engine, h *testbed.Host) {
	a := &app{}
	var lastRun string
	reg := func(category, name string, gui func(*engine.Context), body func(*engine.Context), opts ...engine.TestOption) {
		opts = append(opts,
			engine.WithGuiFunc(func(ctx *engine.Context) {
				if ctx.RunID != lastRun {
					*a = app{}
					lastRun = ctx.RunID
				}
				gui(ctx)
			}),
			engine.WithTestFunc(body))
		e.RegisterTest(category, name, opts...)
	}

	widgets := func(ctx *engine.Context) { a.widgetsWindow(h) }

	reg("widgets", "button_click", widgets, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Widgets"))
		ctx.ItemClick(idpath.RefPath("Click me"))
		ctx.Check(a.clicks == 1, "clicks = %d, want 1", a.clicks)
		ctx.ItemDoubleClick(idpath.RefPath("Click me"))
		ctx.Check(a.clicks == 3, "clicks = %d after double click, want 3", a.clicks)
	})

	reg("widgets", "button_hold", widgets, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Widgets"))
		ctx.ItemHold(idpath.RefPath("Hold"), 200*time.Millisecond)
		ctx.Check(a.held > 0, "button was never held")
	})

	reg("widgets", "checkbox_toggle", widgets, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Widgets"))
		ctx.ItemCheck(idpath.RefPath("Enabled"))
		ctx.Check(a.enabled, "checkbox not checked")
		ctx.ItemCheck(idpath.RefPath("Enabled"))
		ctx.Check(a.enabled, "second check toggled the box")
		ctx.ItemUncheck(idpath.RefPath("Enabled"))
		ctx.Check(!a.enabled, "checkbox still checked")
	})

	reg("widgets", "input_text", widgets, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Widgets"))
		ctx.ItemClick(idpath.RefPath("Name"))
		ctx.KeyChars("drifx")
		ctx.KeyPress(host.KeyBackspace, host.ModNone, 1)
		ctx.KeyCharsAppendEnter("t")
		ctx.Check(a.submitted == "drift", "submitted %q", a.submitted)
	})

	reg("widgets", "input_nav", widgets, func(ctx *engine.Context) {
		ctx.InputMode = engine.InputModeNav
		ctx.ItemClick(idpath.RefPath("Widgets/Click me"))
		ctx.Check(a.clicks == 1, "clicks = %d, want 1", a.clicks)
	})

	reg("widgets", "drag_and_drop", widgets, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Widgets"))
		ctx.ItemDragAndDrop(idpath.RefPath("Card"), idpath.RefPath("Bin"))
		ctx.Check(a.dropped == "card-1", "dropped %q", a.dropped)
		a.dropped = ""
		ctx.ItemDragOverAndHold(idpath.RefPath("Card"), idpath.RefPath("Bin"))
		ctx.Check(a.dropped == "card-1", "dropped %q after hold", a.dropped)
	})

	reg("widgets", "hover_edges", widgets, func(ctx *engine.Context) {
		ref := idpath.RefPath("Widgets/Click me")
		ctx.ItemHover(ref)
		ctx.Check(h.IsItemHovered(ctx.GetID(ref)), "not hovered")
		for _, edge := range []engine.OpFlags{engine.OpMoveToEdgeL, engine.OpMoveToEdgeR, engine.OpMoveToEdgeU, engine.OpMoveToEdgeD} {
			ctx.Check(ctx.MouseMove(ref, edge), "edge %d not hovered", edge)
		}
		ctx.MouseWheel(graphics.Offset{Y: -3})
	})

	tree := func(ctx *engine.Context) { a.treeWindow(h) }

	reg("tree", "open_close", tree, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Tree"))
		ctx.ItemOpen(idpath.RefPath("Assets"))
		ctx.Require(ctx.ItemExists(idpath.RefPath("Assets/Textures")), "children not shown")
		ctx.ItemClose(idpath.RefPath("Assets"))
		ctx.Check(!ctx.ItemExists(idpath.RefPath("Assets/Textures")), "children still shown")
	})

	reg("tree", "open_all", tree, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Tree"))
		n := ctx.ItemOpenAll(idpath.RefPath(""), -1, 0)
		ctx.Check(n == 4, "opened %d nodes, want 4", n)

		var items query.ItemList
		ctx.GatherItems(&items, idpath.RefPath("Assets"), 1)
		ctx.Check(items.Len() == 3, "gathered %d direct children, want 3", items.Len())
		ctx.GatherItems(&items, idpath.RefPath("Assets"), -1)
		ctx.Check(items.Len() == 7, "gathered %d descendants, want 7", items.Len())
		ctx.LogInfo("gathered %s", items.At(0))
	})

	menus := func(ctx *engine.Context) { a.menuWindow(h) }

	reg("menus", "file_new", menus, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Editor"))
		ctx.MenuClick("File/New")
		ctx.Check(a.created == 1, "created = %d", a.created)
	})

	reg("menus", "toggle_and_submenu", menus, func(ctx *engine.Context) {
		ctx.SetRef(idpath.RefPath("Editor"))
		ctx.MenuCheck("File/Autosave")
		ctx.Check(a.autosave, "autosave not set")
		ctx.MenuUncheck("File/Autosave")
		ctx.Check(!a.autosave, "autosave still set")
		ctx.MenuClick("File/Open Recent/notes.txt")
		ctx.Check(a.recent == "notes.txt", "recent = %q", a.recent)
	})

	windows := func(ctx *engine.Context) {
		a.widgetsWindow(h)
		a.treeWindow(h)
	}

	reg("windows", "collapse", windows, func(ctx *engine.Context) {
		win := idpath.RefPath("Tree")
		ctx.WindowCollapse(win, true)
		ctx.Check(h.IsWindowCollapsed("Tree"), "window not collapsed")
		ctx.Check(!ctx.ItemExists(idpath.RefPath("Tree/Assets")), "collapsed window still submits items")
		ctx.WindowCollapse(win, false)
		ctx.Check(!h.IsWindowCollapsed("Tree"), "window still collapsed")
	})

	reg("windows", "focus_on_click", windows, func(ctx *engine.Context) {
		// Tree is the top window; clicking an item of Widgets brings it
		// forward first.
		ctx.ItemClick(idpath.RefPath("Widgets/Click me"))
		ctx.Check(a.clicks == 1, "clicks = %d", a.clicks)
	})

	reg("perf", "idle_frames", widgets, func(ctx *engine.Context) {
		stats := ctx.PerfCapture("idle widgets")
		ctx.Check(stats.Frames > 0, "no frames captured")
	})

	reg("perf", "sleep", widgets, func(ctx *engine.Context) {
		start := ctx.FrameCount()
		ctx.SleepShort()
		ctx.Check(ctx.FrameCount() > start, "sleep did not yield")
	})
}

func (a *app) widgetsWindow(h *testbed.Host) {
	if h.Begin("Widgets", mainPos, mainSize) {
		if h.Button("Click me") {
			a.clicks++
		}
		h.SameLine()
		h.Button("Hold")
		if h.ActiveID() == h.GetID("Hold") {
			a.held++
		}
		h.Checkbox("Enabled", &a.enabled)
		if h.InputText("Name", &a.name) {
			a.submitted = a.name
		}
		h.DragSource("Card", "card-1")
		if payload, ok := h.DropTarget("Bin"); ok {
			a.dropped = payload
		}
		h.Text(fmt.Sprintf("clicks: %d", a.clicks))
	}
	h.End()
}

func (a *app) treeWindow(h *testbed.Host) {
	if h.Begin("Tree", sidePos, sideSize) {
		if h.TreeNode("Assets") {
			if h.TreeNode("Textures") {
				h.Button("stone.png")
				h.Button("grass.png")
				h.TreePop()
			}
			if h.TreeNode("Sounds") {
				if h.TreeNode("Music") {
					h.Button("theme.ogg")
					h.TreePop()
				}
				h.TreePop()
			}
			h.Button("readme.txt")
			h.TreePop()
		}
	}
	h.End()
}

func (a *app) menuWindow(h *testbed.Host) {
	if h.Begin("Editor", mainPos, mainSize) {
		if h.BeginMenuBar() {
			if h.BeginMenu("File") {
				if h.MenuItem("New", nil) {
					a.created++
				}
				h.MenuItem("Autosave", &a.autosave)
				if h.BeginMenu("Open Recent") {
					for _, f := range []string{"todo.md", "notes.txt"} {
						if h.MenuItem(f, nil) {
							a.recent = f
						}
					}
					h.EndMenu()
				}
				h.EndMenu()
			}
			if h.BeginMenu("Help") {
				h.MenuItem("About", nil)
				h.EndMenu()
			}
			h.EndMenuBar()
		}
		h.Text(fmt.Sprintf("documents: %d", a.created))
	}
	h.End()
}
