package labels

import (
	"testing"

	"github.com/celllabel/celled/volume"
)

func TestAddDelOccurrences(t *testing.T) {
	idx := New(1, false)
	idx.Add(0, 3, 5)
	idx.Add(0, 3, 1)
	idx.Add(0, 3, 5) // duplicate
	idx.Add(0, 0, 2) // background is a no-op

	if idx.NumLabels(0) != 1 {
		t.Fatalf("index has %d labels, want 1", idx.NumLabels(0))
	}
	r := idx.Get(0, 3)
	if len(r.Frames) != 2 || r.Frames[0] != 1 || r.Frames[1] != 5 {
		t.Fatalf("frames = %v, want [1 5]", r.Frames)
	}

	idx.Del(0, 3, 4) // absent frame, idempotent
	idx.Del(0, 3, 1)
	idx.Del(0, 3, 5)
	if idx.Has(0, 3) {
		t.Fatal("label 3 should be gone after its last frame is removed")
	}
}

func TestNextLabelNeverReuses(t *testing.T) {
	idx := New(1, false)
	if got := idx.NextLabel(0); got != 1 {
		t.Fatalf("empty index NextLabel = %d, want 1", got)
	}
	idx.Add(0, 7, 0)
	if got := idx.NextLabel(0); got != 8 {
		t.Fatalf("NextLabel = %d, want 8", got)
	}
	idx.Del(0, 7, 0)
	if idx.Has(0, 7) {
		t.Fatal("label 7 should be freed")
	}
	// Freed ids stay retired for the life of the session.
	if got := idx.NextLabel(0); got != 8 {
		t.Fatalf("NextLabel after free = %d, want 8", got)
	}
}

func TestBuildMatchesVolume(t *testing.T) {
	v, err := volume.LabelVolumeFromSlice([]int32{
		1, 1,
		0, 2,

		0, 0,
		2, 2,

		3, 0,
		0, 0,
	}, 3, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	idx := Build(v, false)

	want := map[int32][]int{1: {0}, 2: {0, 1}, 3: {2}}
	if idx.NumLabels(0) != len(want) {
		t.Fatalf("index has %d labels, want %d", idx.NumLabels(0), len(want))
	}
	for label, frames := range want {
		r := idx.Get(0, label)
		if r == nil {
			t.Fatalf("label %d missing from index", label)
		}
		if len(r.Frames) != len(frames) {
			t.Fatalf("label %d frames = %v, want %v", label, r.Frames, frames)
		}
		for i := range frames {
			if r.Frames[i] != frames[i] {
				t.Fatalf("label %d frames = %v, want %v", label, r.Frames, frames)
			}
		}
	}
	if got := idx.NextLabel(0); got != 4 {
		t.Fatalf("NextLabel = %d, want 4", got)
	}
}

func TestDelClearsLineageReferences(t *testing.T) {
	idx := New(1, true)
	idx.Add(0, 1, 0)
	idx.Add(0, 2, 1)
	parent := idx.Get(0, 1)
	parent.AddDaughter(2)
	parent.FrameDiv = 1
	idx.Get(0, 2).Parent = 1

	idx.Del(0, 2, 1)
	if idx.Has(0, 2) {
		t.Fatal("label 2 should be gone")
	}
	if len(parent.Daughters) != 0 {
		t.Fatalf("parent daughters = %v, want none after daughter died", parent.Daughters)
	}
}

func TestSwapLabelsSwapsLineageReferences(t *testing.T) {
	idx := New(1, true)
	idx.Add(0, 1, 0)
	idx.Add(0, 2, 0)
	idx.Add(0, 3, 1)
	idx.Get(0, 3).Parent = 1
	idx.Get(0, 1).AddDaughter(3)

	idx.SwapLabels(0, 1, 2)
	if idx.Get(0, 3).Parent != 2 {
		t.Fatalf("child parent = %d, want 2 after swap", idx.Get(0, 3).Parent)
	}
	if d := idx.Get(0, 2).Daughters; len(d) != 1 || d[0] != 3 {
		t.Fatalf("swapped record daughters = %v, want [3]", d)
	}
}

func TestApplyLineageRequiresTracking(t *testing.T) {
	idx := New(1, false)
	err := idx.ApplyLineage(map[int32]*Record{})
	if _, ok := err.(InconsistentLineageError); !ok {
		t.Fatalf("ApplyLineage on non-tracking index returned %v, want InconsistentLineageError", err)
	}
}

func TestApplyLineageSkipsAbsentLabels(t *testing.T) {
	idx := New(1, true)
	idx.Add(0, 1, 0)
	src := NewRecord()
	src.Capped = true
	stray := NewRecord()
	if err := idx.ApplyLineage(map[int32]*Record{1: src, 9: stray}); err != nil {
		t.Fatal(err)
	}
	if !idx.Get(0, 1).Capped {
		t.Fatal("lineage fields not applied to label 1")
	}
	if idx.Has(0, 9) {
		t.Fatal("lineage for an absent label must not create a record")
	}
}

func TestCloneIsDeep(t *testing.T) {
	idx := New(1, true)
	idx.Add(0, 1, 0)
	idx.Get(0, 1).AddDaughter(2)

	c := idx.Clone()
	c.Add(0, 1, 3)
	c.Get(0, 1).AddDaughter(4)

	if len(idx.Get(0, 1).Frames) != 1 || len(idx.Get(0, 1).Daughters) != 1 {
		t.Fatal("mutating the clone leaked into the original")
	}
	if !idx.Equal(idx.Clone()) {
		t.Fatal("clone should compare equal to its source")
	}
	if idx.Equal(c) {
		t.Fatal("diverged clone should not compare equal")
	}
}

func TestDisplaySlices(t *testing.T) {
	cases := []struct {
		frames []int
		want   string
	}{
		{nil, "[]"},
		{[]int{4}, "[4]"},
		{[]int{0, 1, 2, 5}, "[0-2, 5]"},
		{[]int{0, 2, 3, 4, 7, 9, 10}, "[0, 2-4, 7, 9-10]"},
	}
	for _, c := range cases {
		if got := DisplaySlices(c.frames); got != c.want {
			t.Errorf("DisplaySlices(%v) = %q, want %q", c.frames, got, c.want)
		}
	}
}
