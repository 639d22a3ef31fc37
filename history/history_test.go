package history

import (
	"testing"

	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

func newTestHistory(t *testing.T, tracking bool, frames ...[]int32) (*History, *volume.LabelVolume, *labels.Index) {
	t.Helper()
	flat := make([]int32, 0, len(frames)*4)
	for _, f := range frames {
		flat = append(flat, f...)
	}
	vol, err := volume.LabelVolumeFromSlice(flat, len(frames), 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	idx := labels.Build(vol, tracking)
	h, err := New(vol, idx)
	if err != nil {
		t.Fatal(err)
	}
	return h, vol, idx
}

func setPlane(t *testing.T, vol *volume.LabelVolume, frame int, data []int32) {
	t.Helper()
	if err := vol.Plane(frame, 0).SetFrom(data); err != nil {
		t.Fatal(err)
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	h, vol, idx := newTestHistory(t, false, []int32{1, 1, 0, 0})
	before := vol.Clone()

	setPlane(t, vol, 0, []int32{2, 2, 0, 0})
	idx.RebuildFeature(vol, 0)
	if err := h.Record("replace_all", []int{0}); err != nil {
		t.Fatal(err)
	}
	after := vol.Clone()

	restored, labelsChanged, err := h.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 1 || restored[0] != 0 {
		t.Fatalf("undo restored %v, want [0]", restored)
	}
	if !labelsChanged {
		t.Fatal("undo should report changed label metadata")
	}
	if !vol.Equal(before) {
		t.Fatal("undo did not restore the exact pre-action volume")
	}
	if !idx.Has(0, 1) || idx.Has(0, 2) {
		t.Fatalf("index not rebuilt after undo: %v", idx.IDs(0))
	}

	if _, _, err := h.Redo(); err != nil {
		t.Fatal(err)
	}
	if !vol.Equal(after) {
		t.Fatal("redo did not restore the exact post-action volume")
	}
	if !idx.Has(0, 2) || idx.Has(0, 1) {
		t.Fatalf("index not rebuilt after redo: %v", idx.IDs(0))
	}
}

func TestUndoAtRootIsNoop(t *testing.T) {
	h, vol, _ := newTestHistory(t, false, []int32{1, 0, 0, 0})
	before := vol.Clone()
	restored, labelsChanged, err := h.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if restored != nil || labelsChanged {
		t.Fatalf("undo at root restored %v (labelsChanged=%v)", restored, labelsChanged)
	}
	if !vol.Equal(before) {
		t.Fatal("undo at root mutated the volume")
	}
	if h.CanUndo() || h.CanRedo() {
		t.Fatal("root state should have nothing to undo or redo")
	}
}

func TestRecordTruncatesRedoBranch(t *testing.T) {
	h, vol, idx := newTestHistory(t, false, []int32{1, 0, 0, 0})

	setPlane(t, vol, 0, []int32{1, 1, 0, 0})
	idx.RebuildFeature(vol, 0)
	if err := h.Record("draw", []int{0}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := h.Undo(); err != nil {
		t.Fatal(err)
	}

	// A new action while undone discards the old future.
	setPlane(t, vol, 0, []int32{0, 0, 0, 1})
	idx.RebuildFeature(vol, 0)
	if err := h.Record("draw", []int{0}); err != nil {
		t.Fatal(err)
	}
	if h.CanRedo() {
		t.Fatal("redo branch should be gone after recording a new action")
	}
	if _, _, err := h.Undo(); err != nil {
		t.Fatal(err)
	}
	want := []int32{1, 0, 0, 0}
	got := vol.Plane(0, 0).Copy()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("after undoing the new branch got %v, want %v", got, want)
		}
	}
}

func TestUndoOnlyRestoresTouchedFrames(t *testing.T) {
	h, vol, idx := newTestHistory(t, false,
		[]int32{1, 0, 0, 0},
		[]int32{2, 0, 0, 0},
	)
	setPlane(t, vol, 1, []int32{2, 2, 0, 0})
	idx.RebuildFeature(vol, 0)
	if err := h.Record("draw", []int{1}); err != nil {
		t.Fatal(err)
	}
	setPlane(t, vol, 0, []int32{1, 1, 0, 0})
	idx.RebuildFeature(vol, 0)
	if err := h.Record("draw", []int{0}); err != nil {
		t.Fatal(err)
	}

	restored, _, err := h.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if len(restored) != 1 || restored[0] != 0 {
		t.Fatalf("undo restored %v, want just frame 0", restored)
	}
	got := vol.Plane(1, 0).Copy()
	want := []int32{2, 2, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame 1 should keep its own edit: got %v, want %v", got, want)
		}
	}
}

func TestUndoRestoresLineage(t *testing.T) {
	h, _, idx := newTestHistory(t, true,
		[]int32{1, 0, 2, 0},
		[]int32{1, 0, 2, 0},
	)

	// Record a division, which touches no pixels.
	parent := idx.Get(0, 1)
	child := idx.Get(0, 2)
	parent.AddDaughter(2)
	parent.FrameDiv = 1
	child.Parent = 1
	if err := h.Record("set_parent", nil); err != nil {
		t.Fatal(err)
	}

	frames, labelsChanged, err := h.Undo()
	if err != nil {
		t.Fatal(err)
	}
	// A lineage edit restores no pixels, so the metadata flag is all that
	// distinguishes this undo from a no-op.
	if len(frames) != 0 || !labelsChanged {
		t.Fatalf("undoing a lineage edit returned frames=%v labelsChanged=%v, want none and true",
			frames, labelsChanged)
	}
	if r := idx.Get(0, 2); r.Parent != 0 {
		t.Fatalf("undo should clear the recorded parent, got %d", r.Parent)
	}
	if r := idx.Get(0, 1); len(r.Daughters) != 0 || r.FrameDiv != -1 {
		t.Fatalf("undo should clear the division: %+v", r)
	}

	frames, labelsChanged, err = h.Redo()
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 0 || !labelsChanged {
		t.Fatalf("redoing a lineage edit returned frames=%v labelsChanged=%v, want none and true",
			frames, labelsChanged)
	}
	if r := idx.Get(0, 2); r.Parent != 1 {
		t.Fatalf("redo should restore the parent, got %d", r.Parent)
	}
}
