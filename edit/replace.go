package edit

import (
	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

// replaceFrame recolors every pixel of label b to label a in the current
// frame only.  Lineage is untouched; if b vanishes from its last frame the
// index clears dangling references to it.
func (e *Engine) replaceFrame(args Args, ctx FrameContext) (*Result, error) {
	a, b, err := labelPairArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "replace_frame", Reason: err.Error()}
	}
	if a == b {
		celled.Warningf("replace_frame: labels are identical, nothing to do\n")
		return &Result{}, nil
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	changed := false
	for y := 0; y < e.vol.Height; y++ {
		for x := 0; x < e.vol.Width; x++ {
			if p.Get(y, x) == b {
				p.Set(y, x, a)
				changed = true
			}
		}
	}
	if !changed {
		return &Result{}, nil
	}
	e.idx.Add(ctx.Feature, a, ctx.Frame)
	e.idx.Del(ctx.Feature, b, ctx.Frame)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// replaceAll recolors every pixel of label b to label a across all frames,
// merging the two labels.  In tracking mode label a absorbs b's lineage:
// b's daughters re-point their parent to a, and a takes b's division frame
// and capped flag.  a's own daughters are released first so the merged
// record stays consistent.
func (e *Engine) replaceAll(args Args, ctx FrameContext) (*Result, error) {
	a, b, err := labelPairArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "replace_all", Reason: err.Error()}
	}
	if a == b {
		celled.Warningf("replace_all: labels are identical, nothing to do\n")
		return &Result{}, nil
	}

	// Deleting b's last frame clears its lineage from the index, so the
	// record is captured up front.
	var absorbed *labels.Record
	if e.tracking() {
		if r := e.idx.Get(ctx.Feature, b); r != nil {
			absorbed = r.Clone()
		}
	}

	res := &Result{}
	for frame := 0; frame < e.vol.NumFrames; frame++ {
		p := e.vol.Plane(frame, ctx.Feature)
		changed := false
		for y := 0; y < e.vol.Height; y++ {
			for x := 0; x < e.vol.Width; x++ {
				if p.Get(y, x) == b {
					p.Set(y, x, a)
					changed = true
				}
			}
		}
		if !changed {
			continue
		}
		e.idx.Add(ctx.Feature, a, frame)
		e.idx.Del(ctx.Feature, b, frame)
		res.addFrame(frame)
	}
	if !res.Changed() {
		return res, nil
	}
	res.LabelsChanged = true

	if absorbed != nil {
		if ra := e.idx.Get(ctx.Feature, a); ra != nil {
			for _, d := range ra.Daughters {
				if dr := e.idx.Get(ctx.Feature, d); dr != nil && dr.Parent == a {
					dr.Parent = 0
				}
			}
			ra.Daughters = nil
			for _, d := range absorbed.Daughters {
				if d == a || d == b {
					continue
				}
				dr := e.idx.Get(ctx.Feature, d)
				if dr == nil {
					continue
				}
				dr.Parent = a
				ra.AddDaughter(d)
			}
			ra.FrameDiv = absorbed.FrameDiv
			ra.Capped = absorbed.Capped
		}
	}
	return res, nil
}

// swapFrame exchanges labels a and b in the current frame only.
func (e *Engine) swapFrame(args Args, ctx FrameContext) (*Result, error) {
	a, b, err := labelPairArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "swap_frame", Reason: err.Error()}
	}
	if a == b {
		celled.Warningf("swap_frame: labels are identical, nothing to do\n")
		return &Result{}, nil
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	if !swapPlane(p, e.vol.Height, e.vol.Width, a, b) {
		return &Result{}, nil
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, a)
	e.syncLabel(p, ctx.Frame, ctx.Feature, b)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// swapAll exchanges labels a and b across all frames.  In tracking mode the
// labels trade complete lineage records and references to them swap too.
func (e *Engine) swapAll(args Args, ctx FrameContext) (*Result, error) {
	a, b, err := labelPairArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "swap_all", Reason: err.Error()}
	}
	if a == b {
		celled.Warningf("swap_all: labels are identical, nothing to do\n")
		return &Result{}, nil
	}
	res := &Result{}
	for frame := 0; frame < e.vol.NumFrames; frame++ {
		p := e.vol.Plane(frame, ctx.Feature)
		if swapPlane(p, e.vol.Height, e.vol.Width, a, b) {
			res.addFrame(frame)
		}
	}
	if !res.Changed() {
		return res, nil
	}
	e.idx.SwapLabels(ctx.Feature, a, b)
	res.LabelsChanged = true
	return res, nil
}

func swapPlane(p volume.Plane, h, w int, a, b int32) bool {
	changed := false
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch p.Get(y, x) {
			case a:
				p.Set(y, x, b)
				changed = true
			case b:
				p.Set(y, x, a)
				changed = true
			}
		}
	}
	return changed
}

func labelPairArgs(args Args) (a, b int32, err error) {
	if a, err = args.Label("label_a"); err != nil {
		return
	}
	b, err = args.Label("label_b")
	return
}
