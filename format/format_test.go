package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

func TestNpyHeaderRoundTrip(t *testing.T) {
	data := []int32{0, 1, 2, 3, 4, 5}
	var buf bytes.Buffer
	if err := WriteNpyInt32(&buf, data, []int{1, 2, 3, 1}); err != nil {
		t.Fatal(err)
	}
	a, err := ReadNpy(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Shape) != 4 || a.Shape[1] != 2 || a.Shape[2] != 3 {
		t.Fatalf("shape = %v", a.Shape)
	}
	got, err := a.Int32s()
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("got %v, want %v", got, data)
		}
	}
}

func TestNpyRejectsFortranOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNpyUint8(&buf, []byte{1}, []int{1}); err != nil {
		t.Fatal(err)
	}
	mangled := bytes.Replace(buf.Bytes(), []byte("False"), []byte("True "), 1)
	if _, err := ReadNpy(bytes.NewReader(mangled)); err == nil {
		t.Fatal("fortran-ordered npy should be rejected")
	}
}

func testVolumes(t *testing.T) (*volume.RawVolume, *volume.LabelVolume) {
	t.Helper()
	raw, err := volume.RawVolumeFromSlice([]uint8{10, 20, 30, 40, 50, 60, 70, 80}, 2, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	vol, err := volume.LabelVolumeFromSlice([]int32{1, 0, 0, 2, 1, 1, 0, 0}, 2, 2, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	return raw, vol
}

func TestNpzRoundTrip(t *testing.T) {
	raw, vol := testVolumes(t)
	var buf bytes.Buffer
	if err := WriteNpz(&buf, raw, vol); err != nil {
		t.Fatal(err)
	}
	p, err := ReadNpz(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Labels.Equal(vol) {
		t.Fatal("labels did not survive the npz round trip")
	}
	for i, b := range p.Raw.Bytes() {
		if b != raw.Bytes()[i] {
			t.Fatal("raw data did not survive the npz round trip")
		}
	}
}

func TestNpzWithoutLabelsStartsBlank(t *testing.T) {
	raw, _ := testVolumes(t)
	var rawOnly bytes.Buffer
	if err := WriteNpz(&rawOnly, raw, nil); err != nil {
		t.Fatal(err)
	}
	p, err := ReadNpz(bytes.NewReader(rawOnly.Bytes()), int64(rawOnly.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if p.Labels.MaxLabel(0) != 0 {
		t.Fatal("missing label stack should start all background")
	}
	if p.Labels.NumFrames != 2 || p.Labels.NumFeatures != 1 {
		t.Fatalf("blank labels have wrong shape: %v", p.Labels)
	}
}

func TestTrkRoundTrip(t *testing.T) {
	raw, vol := testVolumes(t)
	lineage := map[int32]*labels.Record{
		1: {Frames: []int{0, 1}, Daughters: []int32{2}, FrameDiv: 1, Parent: 0},
		2: {Frames: []int{0}, FrameDiv: -1, Parent: 1},
	}
	var buf bytes.Buffer
	if err := WriteTrk(&buf, raw, vol, lineage); err != nil {
		t.Fatal(err)
	}
	p, err := ReadTrk(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Labels.Equal(vol) {
		t.Fatal("labels did not survive the trk round trip")
	}
	r1 := p.Lineage[1]
	if r1 == nil || len(r1.Daughters) != 1 || r1.Daughters[0] != 2 || r1.FrameDiv != 1 {
		t.Fatalf("lineage record 1 = %+v", r1)
	}
	if r2 := p.Lineage[2]; r2 == nil || r2.Parent != 1 || r2.FrameDiv != -1 {
		t.Fatalf("lineage record 2 = %+v", r2)
	}
}

func TestTrkRejectsMultipleLineages(t *testing.T) {
	raw, vol := testVolumes(t)
	lineage := map[int32]*labels.Record{1: {Frames: []int{0}, FrameDiv: -1}}
	var buf bytes.Buffer
	if err := WriteTrk(&buf, raw, vol, lineage); err != nil {
		t.Fatal(err)
	}
	// Rewrite the container with a doubled lineage list.
	p, err := ReadTrk(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	doubled := [][]byte{}
	enc, err := EncodeLineage(p.Lineage)
	if err != nil {
		t.Fatal(err)
	}
	doubled = append(doubled, enc, enc)
	var list bytes.Buffer
	list.WriteByte('[')
	for i, e := range doubled {
		if i > 0 {
			list.WriteByte(',')
		}
		list.Write(e)
	}
	list.WriteByte(']')
	if _, err := decodeTrkLineage(list.Bytes(), "lineages.json"); err == nil {
		t.Fatal("two lineages should be rejected")
	} else {
		var inconsistent labels.InconsistentLineageError
		if !errors.As(err, &inconsistent) {
			t.Fatalf("got %T, want InconsistentLineageError", err)
		}
	}
}

func TestEncodeLineageEmitsReadableSlices(t *testing.T) {
	lineage := map[int32]*labels.Record{
		4: {Frames: []int{0, 1, 2, 5}, FrameDiv: -1},
	}
	enc, err := EncodeLineage(lineage)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]struct {
		Slices string `json:"slices"`
	}
	if err := json.Unmarshal(enc, &decoded); err != nil {
		t.Fatal(err)
	}
	if got := decoded["4"].Slices; got != "[0-2, 5]" {
		t.Fatalf("slices = %q, want %q", got, "[0-2, 5]")
	}

	// The derived field round-trips through decode without complaint.
	if _, err := DecodeLineage(enc); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeLineageValidates(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"bad key", `{"abc": {"label": 1, "frames": [0]}}`},
		{"key mismatch", `{"2": {"label": 1, "frames": [0]}}`},
		{"missing frames", `{"1": {"label": 1}}`},
		{"negative frame", `{"1": {"label": 1, "frames": [-1]}}`},
	}
	for _, tc := range cases {
		if _, err := DecodeLineage([]byte(tc.data)); err == nil {
			t.Errorf("%s: invalid lineage accepted", tc.name)
		}
	}

	lineage, err := DecodeLineage([]byte(
		`{"3": {"label": 3, "frames": [1, 0], "daughters": [5], "parent": null, "frame_div": null, "capped": true}}`))
	if err != nil {
		t.Fatal(err)
	}
	r := lineage[3]
	if r == nil || r.Parent != 0 || r.FrameDiv != -1 || !r.Capped {
		t.Fatalf("decoded record = %+v", r)
	}
	if r.Frames[0] != 0 || r.Frames[1] != 1 {
		t.Fatalf("frames not sorted: %v", r.Frames)
	}
}
