package session

import (
	"testing"
	"time"

	"github.com/celllabel/celled/edit"
	"github.com/celllabel/celled/volume"
)

func newTestSession(t *testing.T, tracking bool, frames ...[]int32) *Session {
	t.Helper()
	flat := make([]int32, 0, len(frames)*4)
	for _, f := range frames {
		flat = append(flat, f...)
	}
	vol, err := volume.LabelVolumeFromSlice(flat, len(frames), 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New("test.npz", vol, nil, tracking)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDoRecordsAndUndoes(t *testing.T) {
	s := newTestSession(t, false, []int32{1, 2, 0, 0})

	res, err := s.Do("swap_frame", edit.Args{"label_a": float64(1), "label_b": float64(2)})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed() {
		t.Fatal("swap reported no change")
	}
	got := s.Volume().Plane(0, 0).Copy()
	if got[0] != 2 || got[1] != 1 {
		t.Fatalf("after swap got %v", got)
	}
	if !s.Dirty() || s.ActionCount() != 1 {
		t.Fatalf("dirty=%v actions=%d after one action", s.Dirty(), s.ActionCount())
	}

	frames, labelsChanged, err := s.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || !labelsChanged {
		t.Fatalf("undo restored %v (labelsChanged=%v)", frames, labelsChanged)
	}
	got = s.Volume().Plane(0, 0).Copy()
	if got[0] != 1 || got[1] != 2 {
		t.Fatalf("after undo got %v", got)
	}

	if _, _, err := s.Redo(); err != nil {
		t.Fatal(err)
	}
	got = s.Volume().Plane(0, 0).Copy()
	if got[0] != 2 || got[1] != 1 {
		t.Fatalf("after redo got %v", got)
	}
}

func TestUndoLineageOnlyActionReportsChange(t *testing.T) {
	s := newTestSession(t, true, []int32{1, 0, 2, 0}, []int32{1, 0, 2, 0})

	res, err := s.Do("set_parent", edit.Args{"parent": float64(1), "child": float64(2), "frame_div": float64(1)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed() || !res.LabelsChanged {
		t.Fatalf("set_parent result = %+v, want no frames and LabelsChanged", res)
	}
	countAfterDo := s.ActionCount()

	frames, labelsChanged, err := s.Undo()
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 0 || !labelsChanged {
		t.Fatalf("undo returned frames=%v labelsChanged=%v, want none and true", frames, labelsChanged)
	}
	if s.ActionCount() == countAfterDo {
		t.Fatal("undoing a lineage edit should advance the change counter")
	}
	if r := s.Index().Get(0, 2); r.Parent != 0 {
		t.Fatalf("undo left parent = %d, want unset", r.Parent)
	}
}

func TestSelectionConsumedByAction(t *testing.T) {
	s := newTestSession(t, false, []int32{1, 2, 0, 0})

	if m := s.Select(1); m.Kind != edit.ModeSelected || m.Label != 1 {
		t.Fatalf("after first pick mode = %+v", m)
	}
	if m := s.Select(2); m.Kind != edit.ModeMultiple || m.Label2 != 2 {
		t.Fatalf("after second pick mode = %+v", m)
	}

	if _, err := s.Do("swap_frame", edit.Args{"label_a": float64(1), "label_b": float64(2)}); err != nil {
		t.Fatal(err)
	}
	if m := s.Mode(); m.Kind != edit.ModeNone {
		t.Fatalf("completed action left mode %+v", m)
	}

	s.Select(1)
	s.ClearSelection()
	if m := s.Mode(); m.Kind != edit.ModeNone {
		t.Fatalf("cleared selection left mode %+v", m)
	}
}

func TestNoopActionNotRecorded(t *testing.T) {
	s := newTestSession(t, false, []int32{1, 1, 0, 0})
	res, err := s.Do("flood", edit.Args{"label": float64(1), "x": float64(0), "y": float64(0)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed() || s.Dirty() || s.ActionCount() != 0 {
		t.Fatal("no-op action should not dirty the session")
	}
}

func TestFailedActionLeavesSessionClean(t *testing.T) {
	s := newTestSession(t, false, []int32{1, 0, 0, 0})
	if _, err := s.Do("flood", edit.Args{"label": float64(2), "x": float64(9), "y": float64(0)}); err == nil {
		t.Fatal("out-of-bounds flood should fail")
	}
	if s.Dirty() || s.ActionCount() != 0 {
		t.Fatal("failed action should not dirty the session")
	}
}

func TestSetViewValidates(t *testing.T) {
	s := newTestSession(t, false, []int32{0, 0, 0, 0}, []int32{0, 0, 0, 0})
	if err := s.SetView(View{Frame: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetView(View{Frame: 2}); err == nil {
		t.Fatal("frame past the end should be rejected")
	}
	if err := s.SetView(View{Feature: 1}); err == nil {
		t.Fatal("feature past the end should be rejected")
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(time.Hour)
	s := newTestSession(t, false, []int32{0, 0, 0, 0})
	m.Put(s)
	if m.Len() != 1 {
		t.Fatalf("len = %d, want 1", m.Len())
	}
	got, err := m.Get(s.Token)
	if err != nil || got != s {
		t.Fatalf("get returned %v, %v", got, err)
	}
	if _, err := m.Get("nope"); err == nil {
		t.Fatal("unknown token should fail")
	}
	m.Drop(s.Token)
	if m.Len() != 0 {
		t.Fatal("session not dropped")
	}
}

func TestManagerReapsIdleSessions(t *testing.T) {
	m := NewManager(time.Nanosecond)
	s := newTestSession(t, false, []int32{0, 0, 0, 0})
	m.Put(s)
	time.Sleep(time.Millisecond)
	if n := m.Reap(); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if m.Len() != 0 {
		t.Fatal("idle session survived reaping")
	}
}
