package volume

import "fmt"

// RawVolume is the read-only image intensity companion to a LabelVolume,
// axes (frame, row, col, channel).  No editing operation may mutate it.
type RawVolume struct {
	NumFrames   int
	Height      int
	Width       int
	NumChannels int

	data []uint8
}

// NewRawVolume returns a zeroed raw volume with the given dimensions.
func NewRawVolume(frames, height, width, channels int) *RawVolume {
	return &RawVolume{
		NumFrames:   frames,
		Height:      height,
		Width:       width,
		NumChannels: channels,
		data:        make([]uint8, frames*height*width*channels),
	}
}

// RawVolumeFromSlice wraps a flat uint8 slice in (frame, row, col, channel)
// order.  The slice is used directly, not copied.
func RawVolumeFromSlice(data []uint8, frames, height, width, channels int) (*RawVolume, error) {
	if len(data) != frames*height*width*channels {
		return nil, fmt.Errorf("raw data has %d elements, expected %d for %dx%dx%dx%d",
			len(data), frames*height*width*channels, frames, height, width, channels)
	}
	return &RawVolume{
		NumFrames:   frames,
		Height:      height,
		Width:       width,
		NumChannels: channels,
		data:        data,
	}, nil
}

func (r *RawVolume) offset(frame, y, x, channel int) int {
	return ((frame*r.Height+y)*r.Width+x)*r.NumChannels + channel
}

// Plane returns a read-only view of one (frame, channel) intensity plane.
func (r *RawVolume) Plane(frame, channel int) RawPlane {
	return RawPlane{vol: r, frame: frame, channel: channel}
}

// Bytes returns the underlying flat data.  Callers must not mutate it.
func (r *RawVolume) Bytes() []uint8 {
	return r.data
}

// RawPlane is a read-only view of one (frame, channel) plane of a RawVolume.
type RawPlane struct {
	vol     *RawVolume
	frame   int
	channel int
}

// Dims returns (height, width) of the plane.
func (p RawPlane) Dims() (int, int) {
	return p.vol.Height, p.vol.Width
}

func (p RawPlane) Get(y, x int) uint8 {
	return p.vol.data[p.vol.offset(p.frame, y, x, p.channel)]
}
