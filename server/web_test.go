package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/celllabel/celled/format"
	"github.com/celllabel/celled/volume"
)

func newTestService(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Store.Path = t.TempDir()
	svc, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(svc.handler())
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
	})
	return svc, ts
}

func testNpz(t *testing.T) []byte {
	t.Helper()
	raw, err := volume.RawVolumeFromSlice(make([]uint8, 2*3*3), 2, 3, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	vol, err := volume.LabelVolumeFromSlice([]int32{
		1, 1, 0,
		0, 2, 0,
		0, 0, 0,

		1, 0, 0,
		0, 0, 0,
		0, 0, 2,
	}, 2, 3, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := format.WriteNpz(&buf, raw, vol); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func createProject(t *testing.T, ts *httptest.Server) sessionPayload {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/projects?name=embryo.npz", "application/octet-stream",
		bytes.NewReader(testNpz(t)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create project returned %d", resp.StatusCode)
	}
	var payload sessionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestCreateProjectAndEdit(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)
	if payload.Token == "" || payload.Frames != 2 || payload.Height != 3 {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Tracking {
		t.Fatal("npz project should not be tracking")
	}

	// Swap labels 1 and 2 in frame 0.
	body := bytes.NewBufferString(`{"label_a": 1, "label_b": 2}`)
	resp, err := http.Post(fmt.Sprintf("%s/api/session/%s/edit/swap_frame", ts.URL, payload.Token),
		"application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit returned %d", resp.StatusCode)
	}
	var edited editPayload
	if err := json.NewDecoder(resp.Body).Decode(&edited); err != nil {
		t.Fatal(err)
	}
	if len(edited.Frames) != 1 || edited.Frames[0] != 0 {
		t.Fatalf("edit changed frames %v, want [0]", edited.Frames)
	}
	if !edited.LabelsChanged || edited.Tracks == nil {
		t.Fatal("edit should report label changes with refreshed tracks")
	}
}

func TestUndoRoute(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)

	body := bytes.NewBufferString(`{"label_a": 1, "label_b": 2}`)
	resp, err := http.Post(fmt.Sprintf("%s/api/session/%s/edit/swap_frame", ts.URL, payload.Token),
		"application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Post(fmt.Sprintf("%s/api/session/%s/undo", ts.URL, payload.Token), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var undone editPayload
	if err := json.NewDecoder(resp.Body).Decode(&undone); err != nil {
		t.Fatal(err)
	}
	if len(undone.Frames) != 1 || undone.Frames[0] != 0 {
		t.Fatalf("undo restored %v, want [0]", undone.Frames)
	}
}

func TestSelectRouteTracksSelection(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)

	pick := func(label int) string {
		t.Helper()
		body := bytes.NewBufferString(fmt.Sprintf(`{"label": %d}`, label))
		resp, err := http.Post(fmt.Sprintf("%s/api/session/%s/select", ts.URL, payload.Token),
			"application/json", body)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("select returned %d", resp.StatusCode)
		}
		var out struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out.Mode
	}

	if mode := pick(1); mode != "label 1 selected in frame 0" {
		t.Fatalf("first pick mode = %q", mode)
	}
	if mode := pick(2); mode != "labels 1 (frame 0) and 2 (frame 0) selected" {
		t.Fatalf("second pick mode = %q", mode)
	}

	// An edit consumes the selection.
	resp, err := http.Post(fmt.Sprintf("%s/api/session/%s/edit/swap_frame", ts.URL, payload.Token),
		"application/json", bytes.NewBufferString(`{"label_a": 1, "label_b": 2}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/session/%s/select", ts.URL, payload.Token), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var cleared struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cleared); err != nil {
		t.Fatal(err)
	}
	if cleared.Mode != "no selection" {
		t.Fatalf("after clear mode = %q", cleared.Mode)
	}
}

func TestEditWithBadActionIs400(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)
	resp, err := http.Post(fmt.Sprintf("%s/api/session/%s/edit/sharpen", ts.URL, payload.Token),
		"application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action returned %d, want 400", resp.StatusCode)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	_, ts := newTestService(t)
	resp, err := http.Get(ts.URL + "/api/session/nope/tracks")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session returned %d, want 404", resp.StatusCode)
	}
}

func TestRenderedPlanesServed(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)

	for _, route := range []string{"raw", "labeled"} {
		resp, err := http.Get(fmt.Sprintf("%s/api/session/%s/%s/0", ts.URL, payload.Token, route))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s returned %d", route, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Fatalf("%s content type = %q", route, ct)
		}
		resp.Body.Close()
	}
}

func TestDownloadRoundTrips(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)

	resp, err := http.Get(fmt.Sprintf("%s/api/session/%s/download", ts.URL, payload.Token))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download returned %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	p, err := format.ReadNpz(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if p.Labels.NumFrames != 2 {
		t.Fatalf("exported labels have %d frames, want 2", p.Labels.NumFrames)
	}
}

func TestExportToBucket(t *testing.T) {
	_, ts := newTestService(t)
	payload := createProject(t, ts)

	dir := t.TempDir()
	body := bytes.NewBufferString(fmt.Sprintf(`{"bucket": "file://%s", "key": "out.npz"}`, dir))
	resp, err := http.Post(fmt.Sprintf("%s/api/session/%s/export", ts.URL, payload.Token),
		"application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export returned %d", resp.StatusCode)
	}
	if _, err := os.Stat(filepath.Join(dir, "out.npz")); err != nil {
		t.Fatalf("exported object not written: %v", err)
	}
}

func TestContainerKind(t *testing.T) {
	cases := map[string]string{
		"embryo.npz":  "zstack",
		"movie.trk":   "track",
		"batch.trks":  "track",
		"NUCLEI.TRK":  "track",
		"unknown.bin": "zstack",
	}
	for name, want := range cases {
		if got := containerKind(name); got != want {
			t.Errorf("containerKind(%q) = %q, want %q", name, got, want)
		}
	}
}
