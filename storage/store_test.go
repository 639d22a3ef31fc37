package storage

import (
	"bytes"
	"testing"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	blob := []byte("not really an npz, but the store does not care")
	meta := ProjectMeta{ID: "p1", Name: "embryo.npz", Kind: "zstack", Frames: 3}
	if err := s.SaveProject(meta, blob); err != nil {
		t.Fatal(err)
	}

	got, data, err := s.LoadProject("p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "embryo.npz" || got.Frames != 3 {
		t.Fatalf("meta = %+v", got)
	}
	if got.Created.IsZero() || got.Updated.IsZero() {
		t.Fatal("timestamps not set on save")
	}
	if !bytes.Equal(data, blob) {
		t.Fatal("blob did not survive compression round trip")
	}

	list, err := s.ListProjects()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("list = %+v", list)
	}

	if err := s.DeleteProject("p1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.LoadProject("p1"); err == nil {
		t.Fatal("deleted project still loads")
	}
}

func TestStoreRejectsMissingID(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.SaveProject(ProjectMeta{}, nil); err == nil {
		t.Fatal("save without id should fail")
	}
}
