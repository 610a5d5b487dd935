package query

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/testengine/pkg/graphics"
	"github.com/go-drift/testengine/pkg/host"
)

const (
	winID    host.ID = 100
	parentID host.ID = 200
	childA   host.ID = 201
	childB   host.ID = 202
	childC   host.ID = 203
	grandA   host.ID = 301
	grandB   host.ID = 302
	menuItem host.ID = 401
	outsider host.ID = 501
)

// submitTree feeds one frame of a tree to the tracker:
//
//	window
//	  parent
//	    childA, childB, childC
//	      grandA, grandB   (under childC)
//	  outsider
//	  menuItem             (menu layer, under parent)
func submitTree(tr *Tracker, frame int) {
	add := func(id host.ID, layer host.NavLayer, stack ...host.ID) {
		tr.ItemAdd(frame, host.ItemSubmission{
			ID:       id,
			Rect:     graphics.RectFromLTWH(0, float64(id), 50, 10),
			WindowID: winID,
			NavLayer: layer,
			IDStack:  stack,
		})
		tr.ItemInfo(frame, id, "item", host.StatusVisible)
	}
	add(parentID, host.NavLayerMain, winID)
	add(childA, host.NavLayerMain, winID, parentID)
	add(childB, host.NavLayerMain, winID, parentID)
	add(childC, host.NavLayerMain, winID, parentID)
	add(grandA, host.NavLayerMain, winID, parentID, childC)
	add(grandB, host.NavLayerMain, winID, parentID, childC)
	add(outsider, host.NavLayerMain, winID)
	add(menuItem, host.NavLayerMenu, winID, parentID)
}

func TestLocate_NotFoundUntilSubmitted(t *testing.T) {
	tr := NewTracker(DefaultOptions())

	_, ok := tr.Locate(1, childA, "A")
	require.False(t, ok, "first query of an unknown id is never found")
	assert.Equal(t, 1, tr.Len())

	_, ok = tr.Locate(1, childA, "A")
	require.False(t, ok, "still pending before the host submits")

	submitTree(tr, 2)
	info, ok := tr.Locate(2, childA, "A")
	require.True(t, ok)
	assert.Equal(t, childA, info.ID)
	assert.Equal(t, parentID, info.ParentID)
	assert.True(t, info.IsFresh(2))
	assert.True(t, info.HasStatus(2))
	assert.Equal(t, "item", info.DebugLabel)
}

func TestLocate_StaleRecordNotReturned(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	tr.Locate(1, childA, "")
	submitTree(tr, 2)

	_, ok := tr.Locate(4, childA, "")
	assert.True(t, ok, "within LocateMaxAge frames")
	_, ok = tr.Locate(5, childA, "")
	assert.False(t, ok, "older than LocateMaxAge frames")
}

func TestLocate_ZeroIDNeverTracked(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	_, ok := tr.Locate(1, 0, "")
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Len())
}

func TestItemAdd_ClipsRect(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	tr.Locate(1, childA, "")
	tr.ItemAdd(2, host.ItemSubmission{
		ID:       childA,
		Rect:     graphics.RectFromLTWH(0, 0, 100, 20),
		ClipRect: graphics.RectFromLTWH(0, 0, 60, 100),
	})
	info, ok := tr.Peek(childA)
	require.True(t, ok)
	assert.Equal(t, 60.0, info.RectClipped.Width())
	assert.Equal(t, 100.0, info.Rect.Width())
}

func TestStatusHookMayLagGeometry(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	tr.Locate(1, childA, "")
	tr.ItemAdd(2, host.ItemSubmission{ID: childA})

	info, ok := tr.Locate(2, childA, "")
	require.True(t, ok)
	assert.True(t, info.IsFresh(2))
	assert.False(t, info.HasStatus(2), "status not reported yet")

	tr.ItemInfo(2, childA, "A", host.StatusHoveredRect)
	assert.True(t, info.HasStatus(2))
	assert.True(t, info.StatusFlags.Has(host.StatusHoveredRect))
}

func TestGarbageCollect(t *testing.T) {
	tr := NewTracker(Options{GCFrames: 20})
	tr.Locate(1, childA, "")
	tr.Locate(1, childB, "")
	require.True(t, tr.Hold(childB))

	assert.Equal(t, 0, tr.GarbageCollect(21), "exactly 20 frames stale is kept")
	assert.Equal(t, 1, tr.GarbageCollect(22))
	assert.Equal(t, 1, tr.Len(), "held task survives")

	tr.Release(childB)
	assert.Equal(t, 1, tr.GarbageCollect(22))
	assert.Equal(t, 0, tr.Len())
	assert.False(t, tr.Hold(childB))
}

func TestGarbageCollect_RenewedTaskSurvives(t *testing.T) {
	tr := NewTracker(Options{GCFrames: 20})
	tr.Locate(1, childA, "")
	for frame := 2; frame <= 40; frame++ {
		submitTree(tr, frame)
		tr.Locate(frame, childA, "")
		tr.GarbageCollect(frame)
	}
	assert.Equal(t, 1, tr.Len())
}

func gatherIDs(l *ItemList) map[host.ID]int {
	out := make(map[host.ID]int)
	for _, it := range l.Items() {
		out[it.ID] = it.Depth
	}
	return out
}

func TestGather_DepthOne(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	var out ItemList
	require.NoError(t, tr.BeginGather(parentID, 1, &out))
	submitTree(tr, 1)
	tr.EndGather()

	want := map[host.ID]int{childA: 0, childB: 0, childC: 0}
	if diff := cmp.Diff(want, gatherIDs(&out)); diff != "" {
		t.Errorf("gathered items mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, out.CountDepth(0))
}

func TestGather_Unbounded(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	var out ItemList
	require.NoError(t, tr.BeginGather(parentID, -1, &out))
	submitTree(tr, 1)
	tr.EndGather()

	want := map[host.ID]int{childA: 0, childB: 0, childC: 0, grandA: 1, grandB: 1}
	if diff := cmp.Diff(want, gatherIDs(&out)); diff != "" {
		t.Errorf("gathered items mismatch (-want +got):\n%s", diff)
	}
	assert.Nil(t, out.Get(menuItem), "menu layer items are excluded")
	assert.Nil(t, out.Get(parentID), "the parent itself is not gathered")
}

func TestGather_IdempotentAcrossFrames(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	var out ItemList
	require.NoError(t, tr.BeginGather(parentID, -1, &out))
	submitTree(tr, 1)
	first := out.Len()
	submitTree(tr, 2)
	tr.EndGather()

	assert.Equal(t, first, out.Len(), "a second frame adds no new records")
	ids := make([]int, 0, out.Len())
	for _, it := range out.Items() {
		ids = append(ids, int(it.ID))
		assert.Equal(t, 2, it.TimestampMain)
		assert.True(t, it.HasStatus(2))
	}
	assert.True(t, sort.IntsAreSorted(ids), "submission order is kept")
}

func TestGather_OnlyOneActive(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	var a, b ItemList
	require.NoError(t, tr.BeginGather(parentID, 1, &a))
	assert.ErrorIs(t, tr.BeginGather(parentID, 1, &b), ErrGatherActive)
	tr.EndGather()
	assert.False(t, tr.Gathering())
	assert.NoError(t, tr.BeginGather(parentID, 1, &b))
}

func TestItemList(t *testing.T) {
	var l ItemList
	it, added := l.getOrAdd(1)
	require.True(t, added)
	it.DebugLabel = "one"
	_, added = l.getOrAdd(1)
	assert.False(t, added)
	l.getOrAdd(2)

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, "one", l.At(0).DebugLabel)
	assert.Len(t, l.Filter(func(i *ItemInfo) bool { return i.ID == 2 }), 1)
	assert.Panics(t, func() { l.At(5) })

	l.Reset()
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.Get(1))
}

func TestSnapshotSortedByID(t *testing.T) {
	tr := NewTracker(DefaultOptions())
	tr.Locate(1, childB, "B")
	tr.Locate(1, childA, "A")
	snap := tr.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, childA, snap[0].ID)
	assert.Equal(t, "B", snap[1].Label)
}
