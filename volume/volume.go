/*
	Package volume holds the mutable label volume and the read-only raw
	companion volume for one editing session.  The label volume is a dense
	4-d array of int32 in (frame, row, col, feature) order; value 0 is
	reserved for background.  Editing operations read and write through
	zero-copy plane views.
*/
package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// LabelVolume is a dense 4-d array of non-negative label ids with axes
// (frame, row, col, feature).  It is owned exclusively by one editing
// session; it is not safe to mutate from more than one goroutine.
type LabelVolume struct {
	NumFrames   int
	Height      int
	Width       int
	NumFeatures int

	data []int32
}

// NewLabelVolume returns a zeroed label volume with the given dimensions.
func NewLabelVolume(frames, height, width, features int) *LabelVolume {
	return &LabelVolume{
		NumFrames:   frames,
		Height:      height,
		Width:       width,
		NumFeatures: features,
		data:        make([]int32, frames*height*width*features),
	}
}

// LabelVolumeFromSlice wraps a flat int32 slice in (frame, row, col, feature)
// order.  The slice is used directly, not copied.
func LabelVolumeFromSlice(data []int32, frames, height, width, features int) (*LabelVolume, error) {
	if len(data) != frames*height*width*features {
		return nil, fmt.Errorf("label data has %d elements, expected %d for %dx%dx%dx%d",
			len(data), frames*height*width*features, frames, height, width, features)
	}
	return &LabelVolume{
		NumFrames:   frames,
		Height:      height,
		Width:       width,
		NumFeatures: features,
		data:        data,
	}, nil
}

func (v *LabelVolume) offset(frame, y, x, feature int) int {
	return ((frame*v.Height+y)*v.Width+x)*v.NumFeatures + feature
}

// Clone returns a deep copy of the volume.
func (v *LabelVolume) Clone() *LabelVolume {
	data := make([]int32, len(v.data))
	copy(data, v.data)
	c := *v
	c.data = data
	return &c
}

// Equal returns true if both volumes have identical dimensions and data.
func (v *LabelVolume) Equal(other *LabelVolume) bool {
	if v.NumFrames != other.NumFrames || v.Height != other.Height ||
		v.Width != other.Width || v.NumFeatures != other.NumFeatures {
		return false
	}
	for i, val := range v.data {
		if val != other.data[i] {
			return false
		}
	}
	return true
}

const bytesPerLabel = 4

// FrameBytes returns the little-endian serialization of one frame across
// all features, suitable for snapshotting.
func (v *LabelVolume) FrameBytes(frame int) []byte {
	n := v.Height * v.Width * v.NumFeatures
	start := v.offset(frame, 0, 0, 0)
	buf := make([]byte, n*bytesPerLabel)
	for i, val := range v.data[start : start+n] {
		binary.LittleEndian.PutUint32(buf[i*bytesPerLabel:], uint32(val))
	}
	return buf
}

// SetFrameBytes restores one frame from its FrameBytes serialization.
func (v *LabelVolume) SetFrameBytes(frame int, b []byte) error {
	n := v.Height * v.Width * v.NumFeatures
	if len(b) != n*bytesPerLabel {
		return fmt.Errorf("frame %d snapshot has %d bytes, expected %d", frame, len(b), n*bytesPerLabel)
	}
	start := v.offset(frame, 0, 0, 0)
	for i := 0; i < n; i++ {
		v.data[start+i] = int32(binary.LittleEndian.Uint32(b[i*bytesPerLabel:]))
	}
	return nil
}

// Plane returns a zero-copy view of one (frame, feature) label plane.
func (v *LabelVolume) Plane(frame, feature int) Plane {
	return Plane{vol: v, frame: frame, feature: feature}
}

// Plane is a mutable view of one (frame, feature) plane of a LabelVolume.
type Plane struct {
	vol     *LabelVolume
	frame   int
	feature int
}

// Dims returns (height, width) of the plane.
func (p Plane) Dims() (int, int) {
	return p.vol.Height, p.vol.Width
}

func (p Plane) Get(y, x int) int32 {
	return p.vol.data[p.vol.offset(p.frame, y, x, p.feature)]
}

func (p Plane) Set(y, x int, label int32) {
	p.vol.data[p.vol.offset(p.frame, y, x, p.feature)] = label
}

// Contains returns true if the label appears anywhere in the plane.
func (p Plane) Contains(label int32) bool {
	for y := 0; y < p.vol.Height; y++ {
		for x := 0; x < p.vol.Width; x++ {
			if p.Get(y, x) == label {
				return true
			}
		}
	}
	return false
}

// Count returns the number of pixels with the given label.
func (p Plane) Count(label int32) (n int) {
	for y := 0; y < p.vol.Height; y++ {
		for x := 0; x < p.vol.Width; x++ {
			if p.Get(y, x) == label {
				n++
			}
		}
	}
	return
}

// Copy returns the plane contents as a dense row-major slice.
func (p Plane) Copy() []int32 {
	buf := make([]int32, p.vol.Height*p.vol.Width)
	i := 0
	for y := 0; y < p.vol.Height; y++ {
		for x := 0; x < p.vol.Width; x++ {
			buf[i] = p.Get(y, x)
			i++
		}
	}
	return buf
}

// SetFrom overwrites the plane from a dense row-major slice.
func (p Plane) SetFrom(buf []int32) error {
	if len(buf) != p.vol.Height*p.vol.Width {
		return fmt.Errorf("plane data has %d elements, expected %d", len(buf), p.vol.Height*p.vol.Width)
	}
	i := 0
	for y := 0; y < p.vol.Height; y++ {
		for x := 0; x < p.vol.Width; x++ {
			p.Set(y, x, buf[i])
			i++
		}
	}
	return nil
}

// Labels returns the sorted distinct non-zero labels present in the plane.
func (p Plane) Labels() []int32 {
	present := make(map[int32]struct{})
	for y := 0; y < p.vol.Height; y++ {
		for x := 0; x < p.vol.Width; x++ {
			if val := p.Get(y, x); val != 0 {
				present[val] = struct{}{}
			}
		}
	}
	out := make([]int32, 0, len(present))
	for label := range present {
		out = append(out, label)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// BBox returns the inclusive bounding box of a label's pixels in the plane.
// ok is false if the label does not appear.
func (p Plane) BBox(label int32) (minY, minX, maxY, maxX int, ok bool) {
	minY, minX = p.vol.Height, p.vol.Width
	maxY, maxX = -1, -1
	for y := 0; y < p.vol.Height; y++ {
		for x := 0; x < p.vol.Width; x++ {
			if p.Get(y, x) != label {
				continue
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
		}
	}
	ok = maxY >= 0
	return
}

// MaxLabel returns the largest label anywhere in the given feature of the
// volume, or 0 if the feature is empty.
func (v *LabelVolume) MaxLabel(feature int) (max int32) {
	for frame := 0; frame < v.NumFrames; frame++ {
		p := v.Plane(frame, feature)
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				if val := p.Get(y, x); val > max {
					max = val
				}
			}
		}
	}
	return
}

func (v *LabelVolume) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "label volume %d x %d x %d x %d", v.NumFrames, v.Height, v.Width, v.NumFeatures)
	return buf.String()
}
