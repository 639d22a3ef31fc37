package edit

import "github.com/celllabel/celled/celled"

// draw paints the foreground label along a brush trace, replacing only
// pixels that currently hold the background label (0 unless given); other
// labels under the stroke are left alone.  "foreground" and "label" are
// synonyms for the paint value.
func (e *Engine) draw(args Args, ctx FrameContext) (*Result, error) {
	key := "label"
	if _, found := args["foreground"]; found {
		key = "foreground"
	}
	foreground, err := args.Label(key)
	if err != nil {
		return nil, InvalidArgsError{Action: "draw", Reason: err.Error()}
	}
	background, err := args.LabelDefault("background", 0)
	if err != nil {
		return nil, InvalidArgsError{Action: "draw", Reason: err.Error()}
	}
	return e.paint("draw", args, ctx, e.cleanLabel(ctx.Feature, foreground), background)
}

// erase clears a label along a brush trace, writing the background label
// (0 unless given) over that label's pixels only.
func (e *Engine) erase(args Args, ctx FrameContext) (*Result, error) {
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "erase", Reason: err.Error()}
	}
	background, err := args.LabelDefault("background", 0)
	if err != nil {
		return nil, InvalidArgsError{Action: "erase", Reason: err.Error()}
	}
	return e.paint("erase", args, ctx, e.cleanLabel(ctx.Feature, background), label)
}

// paint stamps a disk brush at each trace point, writing value over pixels
// that currently hold target.
func (e *Engine) paint(action string, args Args, ctx FrameContext, value, target int32) (*Result, error) {
	trace, err := args.Trace("trace")
	if err != nil {
		return nil, InvalidArgsError{Action: action, Reason: err.Error()}
	}
	size, err := args.IntDefault("brush_size", 1)
	if err != nil {
		return nil, InvalidArgsError{Action: action, Reason: err.Error()}
	}
	if size < 1 {
		return nil, invalidArgsf(action, "brush_size %d must be at least 1", size)
	}
	if value == target {
		celled.Warningf("%s: label equals target, nothing to do\n", action)
		return &Result{}, nil
	}

	// Brush radius is size-1 so brush_size 1 stamps a single pixel.
	stamp := diskOffsets(size - 1)
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	h, w := p.Dims()
	changed := false
	for _, pt := range trace {
		x, y := pt[0], pt[1]
		for _, d := range stamp {
			ny, nx := y+d.y, x+d.x
			if ny < 0 || ny >= h || nx < 0 || nx >= w {
				continue
			}
			if p.Get(ny, nx) == target {
				p.Set(ny, nx, value)
				changed = true
			}
		}
	}
	if !changed {
		return &Result{}, nil
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, value)
	e.syncLabel(p, ctx.Frame, ctx.Feature, target)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}
