package edit

import (
	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/volume"
)

// flood fills the connected region under the seed with a label.  Filling
// from a background seed uses 4-connectivity so the fill cannot leak
// through diagonal label boundaries; filling over a real label uses
// 8-connectivity so diagonally-joined pieces recolor together.  An explicit
// connectivity argument overrides the default.
func (e *Engine) flood(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "flood", Reason: err.Error()}
	}
	x, y, err := seedArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "flood", Reason: err.Error()}
	}
	if err := e.checkCoord("flood", y, x); err != nil {
		return nil, err
	}

	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	old := p.Get(y, x)
	label = e.cleanLabel(ctx.Feature, label)
	if label == old {
		celled.Warningf("flood: seed already holds label %d, nothing to do\n", label)
		return &Result{}, nil
	}

	conn := 2
	if old == 0 {
		conn = 1
	}
	conn, err = args.IntDefault("connectivity", conn)
	if err != nil {
		return nil, InvalidArgsError{Action: "flood", Reason: err.Error()}
	}
	if conn != 1 && conn != 2 {
		return nil, invalidArgsf("flood", "connectivity %d must be 1 or 2", conn)
	}

	for _, pt := range floodRegion(p, y, x, conn) {
		p.Set(pt.y, pt.x, label)
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, label)
	e.syncLabel(p, ctx.Frame, ctx.Feature, old)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// floodNewLabel recolors the seed's connected component to a fresh label,
// splitting a label whose disjoint pieces share one id.
func (e *Engine) floodNewLabel(args Args, ctx FrameContext) (*Result, error) {
	x, y, err := seedArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "flood_new_label", Reason: err.Error()}
	}
	if err := e.checkCoord("flood_new_label", y, x); err != nil {
		return nil, err
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	old := p.Get(y, x)
	if old == 0 {
		return nil, invalidArgsf("flood_new_label", "seed (%d, %d) is background", x, y)
	}
	if want, found := args["label"]; found {
		if wantLabel, err := args.Label("label"); err != nil || wantLabel != old {
			return nil, invalidArgsf("flood_new_label", "seed holds label %d, not %v", old, want)
		}
	}

	label := e.idx.NextLabel(ctx.Feature)
	for _, pt := range floodRegion(p, y, x, 2) {
		p.Set(pt.y, pt.x, label)
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, label)
	e.syncLabel(p, ctx.Frame, ctx.Feature, old)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// fillHole fills a background region enclosed by a label.  4-connectivity
// keeps the fill from escaping through diagonal gaps in the boundary.
func (e *Engine) fillHole(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "fill_hole", Reason: err.Error()}
	}
	x, y, err := seedArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "fill_hole", Reason: err.Error()}
	}
	if err := e.checkCoord("fill_hole", y, x); err != nil {
		return nil, err
	}
	label = e.cleanLabel(ctx.Feature, label)
	if label == 0 {
		return nil, invalidArgsf("fill_hole", "cannot fill with background")
	}

	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	if p.Get(y, x) != 0 {
		celled.Warningf("fill_hole: seed (%d, %d) is not background, nothing to do\n", x, y)
		return &Result{}, nil
	}
	for _, pt := range floodRegion(p, y, x, 1) {
		p.Set(pt.y, pt.x, label)
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, label)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// trimPixels clears every pixel of a label except the connected component
// containing the seed.  The seed's own component always survives.
func (e *Engine) trimPixels(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "trim_pixels", Reason: err.Error()}
	}
	x, y, err := seedArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "trim_pixels", Reason: err.Error()}
	}
	if err := e.checkCoord("trim_pixels", y, x); err != nil {
		return nil, err
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	if p.Get(y, x) != label {
		return nil, invalidArgsf("trim_pixels", "seed (%d, %d) holds label %d, not %d", x, y, p.Get(y, x), label)
	}

	keep := volume.NewMask(e.vol.Height, e.vol.Width)
	for _, pt := range floodRegion(p, y, x, 2) {
		keep.Set(pt.y, pt.x, true)
	}
	changed := false
	for py := 0; py < e.vol.Height; py++ {
		for px := 0; px < e.vol.Width; px++ {
			if p.Get(py, px) == label && !keep.Get(py, px) {
				p.Set(py, px, 0)
				changed = true
			}
		}
	}
	if !changed {
		return &Result{}, nil
	}
	// The seed's component survives, so the label stays in this frame.
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

func seedArgs(args Args) (x, y int, err error) {
	if x, err = args.Int("x"); err != nil {
		return
	}
	y, err = args.Int("y")
	return
}
