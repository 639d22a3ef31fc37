package edit

import (
	"github.com/celllabel/celled/volume"
)

// relabelKind selects how relabel_all renumbers across frames.
type relabelKind int

const (
	// relabelIndependent renumbers each frame 1..n on its own, so ids
	// carry no meaning across frames.
	relabelIndependent relabelKind = iota
	// relabelPreserve renumbers the in-use ids 1..n globally, keeping
	// cross-frame identity.
	relabelPreserve
	// relabelUnique renumbers each frame with ids offset past the previous
	// frame's, so no id appears in two frames.
	relabelUnique
)

// relabelFrame renumbers the current frame's labels densely 1..n by
// ascending old id.  Not available in tracking mode, where ids are track
// identities.
func (e *Engine) relabelFrame(args Args, ctx FrameContext) (*Result, error) {
	if e.tracking() {
		return nil, invalidArgsf("relabel_frame", "not available in tracking mode")
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	if !denseRelabelPlane(p, 0) {
		return &Result{}, nil
	}
	e.idx.RebuildFeature(e.vol, ctx.Feature)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// relabelAll renumbers labels across every frame per the given kind.  Not
// available in tracking mode.
func (e *Engine) relabelAll(action string, kind relabelKind, ctx FrameContext) (*Result, error) {
	if e.tracking() {
		return nil, invalidArgsf(action, "not available in tracking mode")
	}
	res := &Result{}
	switch kind {
	case relabelPreserve:
		mapping := make(map[int32]int32)
		for _, id := range e.idx.IDs(ctx.Feature) {
			mapping[id] = int32(len(mapping) + 1)
		}
		for frame := 0; frame < e.vol.NumFrames; frame++ {
			if remapPlane(e.vol.Plane(frame, ctx.Feature), mapping) {
				res.addFrame(frame)
			}
		}
	default:
		offset := int32(0)
		for frame := 0; frame < e.vol.NumFrames; frame++ {
			p := e.vol.Plane(frame, ctx.Feature)
			if denseRelabelPlane(p, offset) {
				res.addFrame(frame)
			}
			if kind == relabelUnique {
				offset += int32(len(p.Labels()))
			}
		}
	}
	if !res.Changed() {
		return res, nil
	}
	e.idx.RebuildFeature(e.vol, ctx.Feature)
	res.LabelsChanged = true
	return res, nil
}

// denseRelabelPlane rewrites a plane's labels as offset+1..offset+n in
// ascending order of old id.  Returns true if any pixel changed.
func denseRelabelPlane(p volume.Plane, offset int32) bool {
	mapping := make(map[int32]int32)
	for i, id := range p.Labels() {
		mapping[id] = offset + int32(i) + 1
	}
	return remapPlane(p, mapping)
}

func remapPlane(p volume.Plane, mapping map[int32]int32) bool {
	h, w := p.Dims()
	changed := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			old := p.Get(y, x)
			if old == 0 {
				continue
			}
			if next, found := mapping[old]; found && next != old {
				p.Set(y, x, next)
				changed = true
			}
		}
	}
	return changed
}
