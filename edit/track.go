package edit

import (
	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/labels"
)

// newLabel moves all pixels of a label in the current frame to a fresh id,
// disconnecting this frame from the label's other frames.
func (e *Engine) newLabel(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "new_label", Reason: err.Error()}
	}
	if label == 0 {
		return nil, invalidArgsf("new_label", "cannot renumber background")
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	if !p.Contains(label) {
		return nil, invalidArgsf("new_label", "label %d not present in frame %d", label, ctx.Frame)
	}

	fresh := e.idx.NextLabel(ctx.Feature)
	for y := 0; y < e.vol.Height; y++ {
		for x := 0; x < e.vol.Width; x++ {
			if p.Get(y, x) == label {
				p.Set(y, x, fresh)
			}
		}
	}
	e.idx.Del(ctx.Feature, label, ctx.Frame)
	e.idx.Add(ctx.Feature, fresh, ctx.Frame)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// newLabelStack moves all pixels of a label to a fresh id from the current
// frame onward.  In tracking mode this splits the track: the new track
// takes over the daughters, division frame, and capped flag, and the old
// track is capped at the split.
func (e *Engine) newLabelStack(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "new_label_stack", Reason: err.Error()}
	}
	if label == 0 {
		return nil, invalidArgsf("new_label_stack", "cannot renumber background")
	}
	old := e.idx.Get(ctx.Feature, label)
	if old == nil {
		return nil, invalidArgsf("new_label_stack", "label %d not in use", label)
	}
	if e.tracking() && ctx.Frame == 0 {
		return nil, invalidArgsf("new_label_stack", "cannot split a track at its first frame")
	}

	var snapshot *labels.Record
	if e.tracking() {
		snapshot = old.Clone()
	}

	fresh := e.idx.NextLabel(ctx.Feature)
	res := &Result{}
	for frame := ctx.Frame; frame < e.vol.NumFrames; frame++ {
		p := e.vol.Plane(frame, ctx.Feature)
		changed := false
		for y := 0; y < e.vol.Height; y++ {
			for x := 0; x < e.vol.Width; x++ {
				if p.Get(y, x) == label {
					p.Set(y, x, fresh)
					changed = true
				}
			}
		}
		if !changed {
			continue
		}
		e.idx.Del(ctx.Feature, label, frame)
		e.idx.Add(ctx.Feature, fresh, frame)
		res.addFrame(frame)
	}
	if !res.Changed() {
		celled.Warningf("new_label_stack: label %d absent from frame %d onward, nothing to do\n", label, ctx.Frame)
		return res, nil
	}
	res.LabelsChanged = true

	if snapshot != nil {
		// The new track continues the old one's future: it inherits the
		// daughters and division, while the old track ends capped here.
		if nr := e.idx.Get(ctx.Feature, fresh); nr != nil {
			for _, d := range snapshot.Daughters {
				if d == label || d == fresh {
					continue
				}
				dr := e.idx.Get(ctx.Feature, d)
				if dr == nil {
					continue
				}
				dr.Parent = fresh
				nr.AddDaughter(d)
			}
			nr.FrameDiv = snapshot.FrameDiv
			nr.Capped = snapshot.Capped
		}
		if or := e.idx.Get(ctx.Feature, label); or != nil {
			or.Daughters = nil
			or.FrameDiv = -1
			or.Capped = true
		}
	}
	return res, nil
}

// setParent records a division: child becomes a daughter of parent, and
// parent's division frame is set.  Tracking mode only.
func (e *Engine) setParent(args Args, ctx FrameContext) (*Result, error) {
	if !e.tracking() {
		return nil, invalidArgsf("set_parent", "only available in tracking mode")
	}
	parent, err := args.Label("parent")
	if err != nil {
		return nil, InvalidArgsError{Action: "set_parent", Reason: err.Error()}
	}
	child, err := args.Label("child")
	if err != nil {
		return nil, InvalidArgsError{Action: "set_parent", Reason: err.Error()}
	}
	if parent == child {
		return nil, invalidArgsf("set_parent", "a track cannot be its own parent")
	}
	frameDiv, err := args.IntDefault("frame_div", ctx.Frame)
	if err != nil {
		return nil, InvalidArgsError{Action: "set_parent", Reason: err.Error()}
	}
	pr := e.idx.Get(ctx.Feature, parent)
	cr := e.idx.Get(ctx.Feature, child)
	if pr == nil {
		return nil, invalidArgsf("set_parent", "parent label %d not in use", parent)
	}
	if cr == nil {
		return nil, invalidArgsf("set_parent", "child label %d not in use", child)
	}

	if cr.Parent != 0 && cr.Parent != parent {
		if prev := e.idx.Get(ctx.Feature, cr.Parent); prev != nil {
			prev.RemoveDaughter(child)
		}
	}
	cr.Parent = parent
	pr.AddDaughter(child)
	pr.FrameDiv = frameDiv
	return &Result{LabelsChanged: true}, nil
}
