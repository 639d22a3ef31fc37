/*
	Package history provides undo/redo for an editing session.  Each
	applied action appends a memento holding compressed snapshots of the
	frames it changed; the root memento snapshots every frame at load.
	Undo restores a frame by walking back to the most recent older
	snapshot of it, so a memento only pays for the frames its action
	touched.
*/
package history

import (
	"fmt"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

type snapshot struct {
	frame int
	data  []byte // serialized frame, snappy-compressed with checksum
}

type memento struct {
	action string
	frames []snapshot // post-action state of the frames the action wrote

	// Post-action lineage for tracking sessions; nil otherwise.  Lineage
	// cannot be rebuilt from pixels, so it rides along explicitly.
	lineage map[int32]*labels.Record

	prev, next *memento
}

func (m *memento) holds(frame int) ([]byte, bool) {
	for _, s := range m.frames {
		if s.frame == frame {
			return s.data, true
		}
	}
	return nil, false
}

// History is the undo/redo chain for one session.  Not safe for concurrent
// use; the owning session serializes access.
type History struct {
	vol *volume.LabelVolume
	idx *labels.Index

	root *memento
	cur  *memento
}

// New snapshots the freshly loaded volume as the root memento.
func New(vol *volume.LabelVolume, idx *labels.Index) (*History, error) {
	h := &History{vol: vol, idx: idx}
	root := &memento{action: "load"}
	for frame := 0; frame < vol.NumFrames; frame++ {
		data, err := compressFrame(vol, frame)
		if err != nil {
			return nil, err
		}
		root.frames = append(root.frames, snapshot{frame: frame, data: data})
	}
	if idx.Tracking() {
		root.lineage = idx.Lineage()
	}
	h.root = root
	h.cur = root
	return h, nil
}

// Record appends a memento for an action that changed the given frames.
// Recording while undone truncates the redo branch, as in any editor.
func (h *History) Record(action string, changedFrames []int) error {
	m := &memento{action: action}
	for _, frame := range changedFrames {
		data, err := compressFrame(h.vol, frame)
		if err != nil {
			return err
		}
		m.frames = append(m.frames, snapshot{frame: frame, data: data})
	}
	if h.idx.Tracking() {
		m.lineage = h.idx.Lineage()
	}
	h.cur.next = m
	m.prev = h.cur
	h.cur = m
	return nil
}

// CanUndo returns true if there is an action to undo.
func (h *History) CanUndo() bool {
	return h.cur != h.root
}

// CanRedo returns true if there is an undone action to reapply.
func (h *History) CanRedo() bool {
	return h.cur.next != nil
}

// Undo rolls back the most recent action.  It returns the frames restored
// and whether label metadata changed; an action like a lineage edit writes
// no pixels, so the metadata flag is what tells such an undo apart from a
// no-op.  At the root it logs and returns nothing.
func (h *History) Undo() ([]int, bool, error) {
	if !h.CanUndo() {
		celled.Debugf("undo: already at initial state\n")
		return nil, false, nil
	}
	undone := h.cur
	target := h.cur.prev

	// Each undone frame rolls back to its most recent snapshot at or
	// before the target; the root guarantees one exists.
	var restored []int
	for _, s := range undone.frames {
		data, err := latestSnapshot(target, s.frame)
		if err != nil {
			return nil, false, err
		}
		if err := restoreFrame(h.vol, s.frame, data); err != nil {
			return nil, false, err
		}
		restored = append(restored, s.frame)
	}
	h.cur = target
	if err := h.syncIndex(target); err != nil {
		return nil, false, err
	}
	return restored, true, nil
}

// Redo reapplies the most recently undone action, returning the frames
// restored and whether label metadata changed.  With nothing to redo it
// logs and returns nothing.
func (h *History) Redo() ([]int, bool, error) {
	if !h.CanRedo() {
		celled.Debugf("redo: nothing to reapply\n")
		return nil, false, nil
	}
	m := h.cur.next
	var restored []int
	for _, s := range m.frames {
		if err := restoreFrame(h.vol, s.frame, s.data); err != nil {
			return nil, false, err
		}
		restored = append(restored, s.frame)
	}
	h.cur = m
	if err := h.syncIndex(m); err != nil {
		return nil, false, err
	}
	return restored, true, nil
}

// syncIndex rebuilds label metadata from the restored pixels, then overlays
// the memento's lineage for tracking sessions.  The index object survives,
// keeping its high-water id marks so undone ids are never reallocated.
func (h *History) syncIndex(m *memento) error {
	for feature := 0; feature < h.vol.NumFeatures; feature++ {
		h.idx.RebuildFeature(h.vol, feature)
	}
	if m.lineage != nil {
		return h.idx.ApplyLineage(m.lineage)
	}
	return nil
}

// latestSnapshot walks back from m to the root looking for the newest
// snapshot of frame.
func latestSnapshot(m *memento, frame int) ([]byte, error) {
	for ; m != nil; m = m.prev {
		if data, found := m.holds(frame); found {
			return data, nil
		}
	}
	return nil, fmt.Errorf("no snapshot found for frame %d", frame)
}

func compressFrame(vol *volume.LabelVolume, frame int) ([]byte, error) {
	return celled.SerializeData(vol.FrameBytes(frame), celled.Snappy, celled.CRC32)
}

func restoreFrame(vol *volume.LabelVolume, frame int, data []byte) error {
	raw, err := celled.DeserializeData(data)
	if err != nil {
		return err
	}
	return vol.SetFrameBytes(frame, raw)
}
