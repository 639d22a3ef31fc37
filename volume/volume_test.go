package volume

import "testing"

func TestPlaneViewsShareStorage(t *testing.T) {
	v := NewLabelVolume(2, 3, 4, 2)
	p := v.Plane(1, 1)
	p.Set(2, 3, 9)
	if got := v.Plane(1, 1).Get(2, 3); got != 9 {
		t.Fatalf("plane view read back %d, want 9", got)
	}
	if v.Plane(1, 0).Get(2, 3) != 0 {
		t.Fatal("write leaked into the other feature")
	}
	if v.Plane(0, 1).Get(2, 3) != 0 {
		t.Fatal("write leaked into the other frame")
	}
}

func TestLabelVolumeFromSliceChecksLength(t *testing.T) {
	if _, err := LabelVolumeFromSlice(make([]int32, 5), 1, 2, 2, 1); err == nil {
		t.Fatal("expected error for mismatched slice length")
	}
}

func TestFrameBytesRoundTrip(t *testing.T) {
	v, err := LabelVolumeFromSlice([]int32{
		1, 2,
		3, 4,

		5, 6,
		7, 8,
	}, 2, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	snap := v.FrameBytes(1)

	v.Plane(1, 0).Set(0, 0, 99)
	if err := v.SetFrameBytes(1, snap); err != nil {
		t.Fatal(err)
	}
	if got := v.Plane(1, 0).Get(0, 0); got != 5 {
		t.Fatalf("restored pixel = %d, want 5", got)
	}
	if err := v.SetFrameBytes(0, snap[:3]); err == nil {
		t.Fatal("expected error for truncated snapshot")
	}
}

func TestPlaneLabelsAndBBox(t *testing.T) {
	v, err := LabelVolumeFromSlice([]int32{
		0, 2, 0,
		0, 2, 2,
		7, 0, 0,
	}, 1, 3, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	p := v.Plane(0, 0)

	got := p.Labels()
	if len(got) != 2 || got[0] != 2 || got[1] != 7 {
		t.Fatalf("Labels() = %v, want [2 7]", got)
	}
	minY, minX, maxY, maxX, ok := p.BBox(2)
	if !ok || minY != 0 || minX != 1 || maxY != 1 || maxX != 2 {
		t.Fatalf("BBox(2) = (%d,%d)-(%d,%d) ok=%v", minY, minX, maxY, maxX, ok)
	}
	if _, _, _, _, ok := p.BBox(5); ok {
		t.Fatal("BBox of an absent label should report ok=false")
	}
	if p.Count(2) != 3 || !p.Contains(7) || p.Contains(5) {
		t.Fatal("Count/Contains disagree with plane contents")
	}
}

func TestCloneAndEqual(t *testing.T) {
	v := NewLabelVolume(1, 2, 2, 1)
	v.Plane(0, 0).Set(0, 0, 4)
	c := v.Clone()
	if !v.Equal(c) {
		t.Fatal("clone should equal source")
	}
	c.Plane(0, 0).Set(1, 1, 8)
	if v.Equal(c) {
		t.Fatal("diverged clone should not equal source")
	}
	if v.MaxLabel(0) != 4 {
		t.Fatalf("MaxLabel = %d, want 4", v.MaxLabel(0))
	}
}

func TestMaskOf(t *testing.T) {
	v, err := LabelVolumeFromSlice([]int32{
		3, 0,
		0, 3,
	}, 1, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	m := MaskOf(v.Plane(0, 0), 3)
	if m.Count() != 2 || !m.Get(0, 0) || !m.Get(1, 1) || m.Get(0, 1) {
		t.Fatal("mask does not match label pixels")
	}
	minY, minX, maxY, maxX, ok := m.BBox()
	if !ok || minY != 0 || minX != 0 || maxY != 1 || maxX != 1 {
		t.Fatalf("mask BBox = (%d,%d)-(%d,%d) ok=%v", minY, minX, maxY, maxX, ok)
	}
	if NewMask(2, 2).Any() {
		t.Fatal("fresh mask should be empty")
	}
}
