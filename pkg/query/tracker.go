// Package query resolves "where is item X and what is its state" for test
// scripts.
//
// Item geometry and status only exist while the host builds a frame, so
// queries are asynchronous. A script asks for an id; the Tracker records a
// pending locate task; during the next frame the host's geometry hook
// (ItemAdd) and status hook (ItemInfo) fill the task; the script retries and
// finds the result. Gathering works the same way for a whole subtree: while a
// gather is active, every submitted item whose id stack contains the gather
// parent within the depth limit is recorded.
//
// A Tracker is owned by one engine and is not safe for concurrent use.
package query

import (
	"errors"
	"sort"

	"github.com/go-drift/testengine/pkg/host"
)

const (
	// DefaultLocateMaxAge is how many frames a located record stays valid
	// without being re-submitted.
	DefaultLocateMaxAge = 2
	// DefaultGCFrames is how many frames an unreferenced locate task may go
	// without being queried before it is collected.
	DefaultGCFrames = 20
)

// ErrGatherActive is returned when a gather is started while one is running.
var ErrGatherActive = errors.New("query: a gather is already active")

// Options tune the tracker policies.
type Options struct {
	LocateMaxAge int
	GCFrames     int
}

// DefaultOptions returns the default tracker policies.
func DefaultOptions() Options {
	return Options{LocateMaxAge: DefaultLocateMaxAge, GCFrames: DefaultGCFrames}
}

type locateTask struct {
	// frameCount is the frame the task was created or last renewed.
	frameCount int
	filled     bool
	label      string
	result     ItemInfo
}

type gatherTask struct {
	parentID host.ID
	depth    int
	out      *ItemList
	last     *ItemInfo
}

// Tracker owns the locate tasks and the single gather task.
type Tracker struct {
	opts      Options
	tasks     map[host.ID]*locateTask
	gather    gatherTask
	gathering bool
}

// NewTracker creates a tracker. Zero option fields fall back to defaults.
func NewTracker(opts Options) *Tracker {
	if opts.LocateMaxAge <= 0 {
		opts.LocateMaxAge = DefaultLocateMaxAge
	}
	if opts.GCFrames <= 0 {
		opts.GCFrames = DefaultGCFrames
	}
	return &Tracker{opts: opts, tasks: make(map[host.ID]*locateTask)}
}

// Locate returns the record for id when the item was submitted within the
// last LocateMaxAge frames, renewing the task. Otherwise it makes sure a
// pending task exists and returns false; callers yield a frame and retry.
func (t *Tracker) Locate(frame int, id host.ID, label string) (*ItemInfo, bool) {
	if id == 0 {
		return nil, false
	}
	if task, ok := t.tasks[id]; ok {
		if task.filled && task.result.TimestampMain+t.opts.LocateMaxAge >= frame {
			task.frameCount = frame
			return &task.result, true
		}
		return nil, false
	}
	t.tasks[id] = &locateTask{
		frameCount: frame,
		label:      label,
		result:     ItemInfo{ID: id},
	}
	return nil, false
}

// Peek returns the record for id without creating or renewing a task.
func (t *Tracker) Peek(id host.ID) (*ItemInfo, bool) {
	task, ok := t.tasks[id]
	if !ok || !task.filled {
		return nil, false
	}
	return &task.result, true
}

// ItemAdd is the geometry hook.
func (t *Tracker) ItemAdd(frame int, item host.ItemSubmission) {
	if task, ok := t.tasks[item.ID]; ok {
		task.result.fill(frame, item)
		task.filled = true
	}

	if !t.gathering || item.NavLayer != host.NavLayerMain {
		return
	}
	stack := item.IDStack
	maxDepth := t.gather.depth
	if maxDepth < 0 || maxDepth > len(stack) {
		maxDepth = len(stack)
	}
	for n := 0; n < maxDepth; n++ {
		if stack[len(stack)-1-n] != t.gather.parentID {
			continue
		}
		rec, _ := t.gather.out.getOrAdd(item.ID)
		rec.fill(frame, item)
		rec.Depth = n
		t.gather.last = rec
		break
	}
}

// ItemInfo is the status hook.
func (t *Tracker) ItemInfo(frame int, id host.ID, label string, flags host.StatusFlags) {
	if task, ok := t.tasks[id]; ok {
		task.result.StatusFlags = flags
		task.result.DebugLabel = label
		task.result.TimestampStatus = frame
	}
	if t.gathering && t.gather.last != nil && t.gather.last.ID == id {
		t.gather.last.StatusFlags = flags
		t.gather.last.DebugLabel = label
		t.gather.last.TimestampStatus = frame
	}
}

// GarbageCollect drops locate tasks nobody has queried for GCFrames frames,
// unless they are held. Returns the number of tasks removed.
func (t *Tracker) GarbageCollect(frame int) int {
	removed := 0
	for id, task := range t.tasks {
		if task.frameCount < frame-t.opts.GCFrames && task.result.RefCount == 0 {
			delete(t.tasks, id)
			removed++
		}
	}
	return removed
}

// Hold keeps the task for id alive across garbage collection until Release.
// Returns false when no task exists for id.
func (t *Tracker) Hold(id host.ID) bool {
	task, ok := t.tasks[id]
	if !ok {
		return false
	}
	task.result.RefCount++
	return true
}

// Release undoes one Hold.
func (t *Tracker) Release(id host.ID) {
	if task, ok := t.tasks[id]; ok && task.result.RefCount > 0 {
		task.result.RefCount--
	}
}

// BeginGather starts recording items under parent into out. depth limits how
// many id stack levels are searched; a negative depth is unbounded.
func (t *Tracker) BeginGather(parent host.ID, depth int, out *ItemList) error {
	if t.gathering {
		return ErrGatherActive
	}
	t.gather = gatherTask{parentID: parent, depth: depth, out: out}
	t.gathering = true
	return nil
}

// EndGather stops the active gather.
func (t *Tracker) EndGather() {
	t.gather = gatherTask{}
	t.gathering = false
}

// Gathering reports whether a gather is active.
func (t *Tracker) Gathering() bool {
	return t.gathering
}

// Len returns the number of locate tasks.
func (t *Tracker) Len() int {
	return len(t.tasks)
}

// Clear drops every task and stops any gather.
func (t *Tracker) Clear() {
	t.tasks = make(map[host.ID]*locateTask)
	t.EndGather()
}

// TaskSnapshot is a copy of a locate task for inspection.
type TaskSnapshot struct {
	ID         host.ID
	Label      string
	FrameCount int
	Filled     bool
	Result     ItemInfo
}

// Snapshot copies every locate task, ordered by id.
func (t *Tracker) Snapshot() []TaskSnapshot {
	out := make([]TaskSnapshot, 0, len(t.tasks))
	for id, task := range t.tasks {
		out = append(out, TaskSnapshot{
			ID:         id,
			Label:      task.label,
			FrameCount: task.frameCount,
			Filled:     task.filled,
			Result:     task.result,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
