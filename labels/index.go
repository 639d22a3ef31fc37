/*
	Package labels maintains the per-feature label metadata index for an
	editing session: which label ids are in use and which frames each label
	occupies.  Every mutation of the label volume that adds or removes a
	label's presence in a frame must be paired with an Add or Del call so
	the index never drifts from the volume.
*/
package labels

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/celllabel/celled/volume"
)

// Record holds the metadata for one label within one feature.  The lineage
// fields are only meaningful when the owning Index is in tracking mode.
type Record struct {
	Frames []int // sorted, deduplicated frames the label occupies

	// Lineage (tracking mode only).  Parent 0 and FrameDiv -1 mean unset.
	Parent    int32
	Daughters []int32
	FrameDiv  int
	Capped    bool
}

// NewRecord returns an empty record with unset lineage fields.
func NewRecord() *Record {
	return &Record{FrameDiv: -1}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	c := *r
	c.Frames = append([]int(nil), r.Frames...)
	c.Daughters = append([]int32(nil), r.Daughters...)
	return &c
}

// HasFrame returns true if frame is in the record's frame list.
func (r *Record) HasFrame(frame int) bool {
	i := sort.SearchInts(r.Frames, frame)
	return i < len(r.Frames) && r.Frames[i] == frame
}

func (r *Record) addFrame(frame int) {
	i := sort.SearchInts(r.Frames, frame)
	if i < len(r.Frames) && r.Frames[i] == frame {
		return
	}
	r.Frames = append(r.Frames, 0)
	copy(r.Frames[i+1:], r.Frames[i:])
	r.Frames[i] = frame
}

// removeFrame deletes frame from the frame list.  Removing an absent frame
// is not an error.
func (r *Record) removeFrame(frame int) {
	i := sort.SearchInts(r.Frames, frame)
	if i >= len(r.Frames) || r.Frames[i] != frame {
		return
	}
	r.Frames = append(r.Frames[:i], r.Frames[i+1:]...)
}

// RemoveDaughter deletes a label from the record's daughter list, if present.
func (r *Record) RemoveDaughter(label int32) {
	for i, d := range r.Daughters {
		if d == label {
			r.Daughters = append(r.Daughters[:i], r.Daughters[i+1:]...)
			return
		}
	}
}

// AddDaughter appends a label to the daughter list, deduplicated and sorted.
func (r *Record) AddDaughter(label int32) {
	for _, d := range r.Daughters {
		if d == label {
			return
		}
	}
	r.Daughters = append(r.Daughters, label)
	sort.Slice(r.Daughters, func(a, b int) bool { return r.Daughters[a] < r.Daughters[b] })
}

// Index tracks the in-use labels per feature and the frames each occupies.
type Index struct {
	tracking bool
	info     []map[int32]*Record

	// Highest label ever seen per feature.  NextLabel allocates above this
	// so freed ids are never reused within a session.
	maxEver []int32
}

// New returns an empty index for the given number of features.
func New(numFeatures int, tracking bool) *Index {
	info := make([]map[int32]*Record, numFeatures)
	for i := range info {
		info[i] = make(map[int32]*Record)
	}
	return &Index{
		tracking: tracking,
		info:     info,
		maxEver:  make([]int32, numFeatures),
	}
}

// Build does a full scan of the volume and returns a fresh index.  Frames are
// scanned in parallel; the merge is deterministic.
func Build(v *volume.LabelVolume, tracking bool) *Index {
	idx := New(v.NumFeatures, tracking)
	for feature := 0; feature < v.NumFeatures; feature++ {
		idx.rebuildFeature(v, feature)
	}
	return idx
}

// RebuildFeature rescans one feature of the volume, replacing that feature's
// records.  Lineage fields are reset; callers doing batch relabels in
// tracking mode must re-derive lineage afterward.
func (idx *Index) RebuildFeature(v *volume.LabelVolume, feature int) {
	idx.rebuildFeature(v, feature)
}

func (idx *Index) rebuildFeature(v *volume.LabelVolume, feature int) {
	perFrame := make([][]int32, v.NumFrames)
	var g errgroup.Group
	for frame := 0; frame < v.NumFrames; frame++ {
		frame := frame
		g.Go(func() error {
			perFrame[frame] = v.Plane(frame, feature).Labels()
			return nil
		})
	}
	g.Wait() // workers never return errors

	info := make(map[int32]*Record)
	for frame, present := range perFrame {
		for _, label := range present {
			r, found := info[label]
			if !found {
				r = NewRecord()
				info[label] = r
			}
			r.Frames = append(r.Frames, frame)
			if label > idx.maxEver[feature] {
				idx.maxEver[feature] = label
			}
		}
	}
	idx.info[feature] = info
}

// Tracking returns true if the index carries lineage metadata.
func (idx *Index) Tracking() bool {
	return idx.tracking
}

// NumFeatures returns the number of features indexed.
func (idx *Index) NumFeatures() int {
	return len(idx.info)
}

// Has returns true if the label is in use anywhere in the feature.
func (idx *Index) Has(feature int, label int32) bool {
	_, found := idx.info[feature][label]
	return found
}

// Get returns the record for a label or nil if the label is not in use.
// The returned record is live; mutations must go through index methods.
func (idx *Index) Get(feature int, label int32) *Record {
	return idx.info[feature][label]
}

// IDs returns the sorted in-use labels for a feature.
func (idx *Index) IDs(feature int) []int32 {
	ids := make([]int32, 0, len(idx.info[feature]))
	for label := range idx.info[feature] {
		ids = append(ids, label)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// NumLabels returns the number of in-use labels for a feature.
func (idx *Index) NumLabels(feature int) int {
	return len(idx.info[feature])
}

// Add records that label occupies frame.  A no-op for the background label.
func (idx *Index) Add(feature int, label int32, frame int) {
	if label == 0 {
		return
	}
	r, found := idx.info[feature][label]
	if !found {
		r = NewRecord()
		idx.info[feature][label] = r
	}
	r.addFrame(frame)
	if label > idx.maxEver[feature] {
		idx.maxEver[feature] = label
	}
}

// Del records that label no longer occupies frame.  If that was the label's
// last frame, the record is removed and, in tracking mode, any lineage
// references to the label are cleared.  A no-op for the background label
// and for frames not in the record.
func (idx *Index) Del(feature int, label int32, frame int) {
	if label == 0 {
		return
	}
	r, found := idx.info[feature][label]
	if !found {
		return
	}
	r.removeFrame(frame)
	if len(r.Frames) > 0 {
		return
	}
	delete(idx.info[feature], label)
	if idx.tracking {
		for _, other := range idx.info[feature] {
			other.RemoveDaughter(label)
			if other.Parent == label {
				other.Parent = 0
			}
		}
	}
}

// Put installs a record for a label directly, replacing any existing one.
// Used by actions that split or transfer whole records.
func (idx *Index) Put(feature int, label int32, r *Record) {
	idx.info[feature][label] = r
	if label > idx.maxEver[feature] {
		idx.maxEver[feature] = label
	}
}

// NextLabel returns a fresh label id for the feature: one greater than any id
// ever present in the session, so freed ids are never reused.
func (idx *Index) NextLabel(feature int) int32 {
	return idx.maxEver[feature] + 1
}

// SwapLabels exchanges the records of two labels.  In tracking mode the full
// records (frames plus lineage) trade places and parent/daughter references
// to either label are swapped; otherwise only the frame lists trade places.
func (idx *Index) SwapLabels(feature int, a, b int32) {
	info := idx.info[feature]
	ra, rb := info[a], info[b]
	if ra != nil {
		info[b] = ra
	} else {
		delete(info, b)
	}
	if rb != nil {
		info[a] = rb
	} else {
		delete(info, a)
	}
	if !idx.tracking {
		return
	}
	for _, r := range info {
		switch r.Parent {
		case a:
			r.Parent = b
		case b:
			r.Parent = a
		}
		for i, d := range r.Daughters {
			switch d {
			case a:
				r.Daughters[i] = b
			case b:
				r.Daughters[i] = a
			}
		}
		sort.Slice(r.Daughters, func(x, y int) bool { return r.Daughters[x] < r.Daughters[y] })
	}
}

// ForEach calls fn for every (label, record) in a feature in increasing
// label order.
func (idx *Index) ForEach(feature int, fn func(label int32, r *Record)) {
	for _, label := range idx.IDs(feature) {
		fn(label, idx.info[feature][label])
	}
}

// Clone returns a deep copy of the index.
func (idx *Index) Clone() *Index {
	c := New(len(idx.info), idx.tracking)
	copy(c.maxEver, idx.maxEver)
	for feature, info := range idx.info {
		for label, r := range info {
			c.info[feature][label] = r.Clone()
		}
	}
	return c
}

// Equal returns true if both indexes hold identical metadata.
func (idx *Index) Equal(other *Index) bool {
	if idx.tracking != other.tracking || len(idx.info) != len(other.info) {
		return false
	}
	for feature, info := range idx.info {
		if len(info) != len(other.info[feature]) {
			return false
		}
		for label, r := range info {
			o, found := other.info[feature][label]
			if !found {
				return false
			}
			if !recordsEqual(r, o) {
				return false
			}
		}
	}
	return true
}

func recordsEqual(a, b *Record) bool {
	if len(a.Frames) != len(b.Frames) || len(a.Daughters) != len(b.Daughters) {
		return false
	}
	for i := range a.Frames {
		if a.Frames[i] != b.Frames[i] {
			return false
		}
	}
	for i := range a.Daughters {
		if a.Daughters[i] != b.Daughters[i] {
			return false
		}
	}
	return a.Parent == b.Parent && a.FrameDiv == b.FrameDiv && a.Capped == b.Capped
}

// Tracks returns a deep copy of a feature's records keyed by label,
// suitable for presentation payloads.
func (idx *Index) Tracks(feature int) map[int32]*Record {
	out := make(map[int32]*Record, len(idx.info[feature]))
	for label, r := range idx.info[feature] {
		out[label] = r.Clone()
	}
	return out
}

// DisplaySlices compresses a sorted frame list into consecutive runs,
// e.g. [0 1 2 5] renders as "[0-2, 5]".
func DisplaySlices(frames []int) string {
	if len(frames) == 0 {
		return "[]"
	}
	var runs []string
	start, prev := frames[0], frames[0]
	flush := func() {
		if start == prev {
			runs = append(runs, fmt.Sprintf("%d", start))
		} else {
			runs = append(runs, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, f := range frames[1:] {
		if f == prev+1 {
			prev = f
			continue
		}
		flush()
		start, prev = f, f
	}
	flush()
	return "[" + strings.Join(runs, ", ") + "]"
}
