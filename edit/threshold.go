package edit

import (
	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/volume"
)

// hysteresisRatio sets the high threshold relative to the triangle
// threshold for seed-region growing.
const hysteresisRatio = 1.10

// threshold predicts a label mask inside a drawn box: a triangle threshold
// on the box's intensity histogram gives the low cutoff, hysteresis keeps
// the low-threshold components that also contain a pixel above 110% of the
// cutoff.  The label is written into background pixels only.
func (e *Engine) threshold(args Args, ctx FrameContext) (*Result, error) {
	if err := e.requireRaw("threshold"); err != nil {
		return nil, err
	}
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "threshold", Reason: err.Error()}
	}
	x1, y1, x2, y2, err := boxArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "threshold", Reason: err.Error()}
	}
	for _, pt := range [][2]int{{x1, y1}, {x2, y2}} {
		if cerr := e.checkCoord("threshold", pt[1], pt[0]); cerr != nil {
			return nil, cerr
		}
	}
	label = e.cleanLabel(ctx.Feature, label)
	if label == 0 {
		label = e.idx.NextLabel(ctx.Feature)
	}

	// The box corners may be drawn in any order.
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	subH, subW := y2-y1+1, x2-x1+1

	raw := e.raw.Plane(ctx.Frame, ctx.Channel)
	window := make([]uint8, subH*subW)
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			window[y*subW+x] = raw.Get(y1+y, x1+x)
		}
	}
	low := triangleThreshold(window)
	high := low * hysteresisRatio

	lowMask := volume.NewMask(subH, subW)
	for i, v := range window {
		if float64(v) > low {
			lowMask.Set(i/subW, i%subW, true)
		}
	}
	cc, n := componentLabels(lowMask, 1)
	keep := make([]bool, n+1)
	for i, v := range window {
		if float64(v) > high && cc[i] != 0 {
			keep[cc[i]] = true
		}
	}

	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	changed := false
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			if keep[cc[y*subW+x]] && p.Get(y1+y, x1+x) == 0 {
				p.Set(y1+y, x1+x, label)
				changed = true
			}
		}
	}
	if !changed {
		celled.Warningf("threshold: no foreground found in box, nothing to do\n")
		return &Result{}, nil
	}
	e.idx.Add(ctx.Feature, label, ctx.Frame)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// triangleThreshold finds the intensity cutoff by the triangle method: a
// line runs from the far end of the histogram's longer tail up to its
// peak, and the threshold is the bin furthest below that line.  For the
// typical skewed histogram this lands just off the background peak.
func triangleThreshold(pixels []uint8) float64 {
	var hist [256]int
	for _, v := range pixels {
		hist[v]++
	}
	first, last := -1, -1
	peak := 0
	for i, c := range hist {
		if c > 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
		if c > hist[peak] {
			peak = i
		}
	}
	if first < 0 || first == last {
		return float64(first)
	}

	height := float64(hist[peak])
	bestDist := 0.0
	var bestBin int
	if last-peak > peak-first {
		// Longer tail to the right; walk from the tail end toward the
		// peak, breaking distance ties toward the tail end.
		width := float64(last - peak)
		bestBin = last
		for i := last; i > peak; i-- {
			d := height*float64(last-i) - width*float64(hist[i])
			if d > bestDist {
				bestDist = d
				bestBin = i
			}
		}
	} else {
		width := float64(peak - first)
		bestBin = first
		for i := first; i < peak; i++ {
			d := height*float64(i-first) - width*float64(hist[i])
			if d > bestDist {
				bestDist = d
				bestBin = i
			}
		}
	}
	return float64(bestBin)
}

func boxArgs(args Args) (x1, y1, x2, y2 int, err error) {
	if x1, err = args.Int("x1"); err != nil {
		return
	}
	if y1, err = args.Int("y1"); err != nil {
		return
	}
	if x2, err = args.Int("x2"); err != nil {
		return
	}
	y2, err = args.Int("y2")
	return
}
