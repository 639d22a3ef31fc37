package edit

import (
	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/volume"
)

// morph applies one step of binary erosion or dilation to a label's mask
// with a 3x3 square.  Erosion clears lost pixels to background; dilation
// only claims background pixels, never other labels.  Eroding a label away
// entirely removes it from the frame's index.
func (e *Engine) morph(action string, args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: action, Reason: err.Error()}
	}
	if label == 0 {
		return nil, invalidArgsf(action, "cannot morph background")
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	mask := volume.MaskOf(p, label)
	if !mask.Any() {
		celled.Warningf("%s: label %d not present in frame %d, nothing to do\n", action, label, ctx.Frame)
		return &Result{}, nil
	}

	var next *volume.Mask
	if action == "erode" {
		next = erodeMask(mask, square3)
	} else {
		next = dilateMask(mask, square3)
	}

	changed := false
	for y := 0; y < mask.H; y++ {
		for x := 0; x < mask.W; x++ {
			was, is := mask.Get(y, x), next.Get(y, x)
			switch {
			case was && !is:
				p.Set(y, x, 0)
				changed = true
			case !was && is && p.Get(y, x) == 0:
				p.Set(y, x, label)
				changed = true
			}
		}
	}
	if !changed {
		return &Result{}, nil
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, label)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// deleteMask clears every pixel of a label in the current frame.
func (e *Engine) deleteMask(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "delete_mask", Reason: err.Error()}
	}
	if label == 0 {
		return nil, invalidArgsf("delete_mask", "cannot delete background")
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	changed := false
	for y := 0; y < e.vol.Height; y++ {
		for x := 0; x < e.vol.Width; x++ {
			if p.Get(y, x) == label {
				p.Set(y, x, 0)
				changed = true
			}
		}
	}
	if !changed {
		celled.Warningf("delete_mask: label %d not present in frame %d, nothing to do\n", label, ctx.Frame)
		return &Result{}, nil
	}
	e.idx.Del(ctx.Feature, label, ctx.Frame)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}
