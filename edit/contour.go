package edit

import (
	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/volume"
)

const defaultContourIterations = 100
const defaultContourMinPixels = 20

// activeContour refits one label's boundary to the raw image with a
// morphological Chan-Vese evolution seeded from the current mask.  The
// window is the label's bounding box grown by half its size in each
// direction.  Only the largest resulting component is kept, and the result
// is discarded when it shrinks below min_pixels.  The refit claims
// background pixels only and releases old pixels outside the new mask.
func (e *Engine) activeContour(args Args, ctx FrameContext) (*Result, error) {
	if err := e.requireRaw("active_contour"); err != nil {
		return nil, err
	}
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "active_contour", Reason: err.Error()}
	}
	if label == 0 {
		return nil, invalidArgsf("active_contour", "cannot contour background")
	}
	iterations, err := args.IntDefault("iterations", defaultContourIterations)
	if err != nil {
		return nil, InvalidArgsError{Action: "active_contour", Reason: err.Error()}
	}
	if iterations < 1 {
		return nil, invalidArgsf("active_contour", "iterations %d must be at least 1", iterations)
	}
	minPixels, err := args.IntDefault("min_pixels", defaultContourMinPixels)
	if err != nil {
		return nil, InvalidArgsError{Action: "active_contour", Reason: err.Error()}
	}
	dilation, err := args.IntDefault("dilate", 0)
	if err != nil {
		return nil, InvalidArgsError{Action: "active_contour", Reason: err.Error()}
	}

	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	minY, minX, maxY, maxX, ok := p.BBox(label)
	if !ok {
		return nil, invalidArgsf("active_contour", "label %d not present in frame %d", label, ctx.Frame)
	}

	// Pad the window by half the box size so the contour can grow.
	boxH, boxW := maxY-minY+1, maxX-minX+1
	y1 := clamp(minY-boxH/2, 0, e.vol.Height)
	y2 := clamp(maxY+1+boxH/2, 0, e.vol.Height)
	x1 := clamp(minX-boxW/2, 0, e.vol.Width)
	x2 := clamp(maxX+1+boxW/2, 0, e.vol.Width)
	subH, subW := y2-y1, x2-x1

	raw := e.raw.Plane(ctx.Frame, ctx.Channel)
	img := make([]float64, subH*subW)
	lo, hi := raw.Get(y1, x1), raw.Get(y1, x1)
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			v := raw.Get(y1+y, x1+x)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	span := float64(hi-lo) + 1e-12
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			img[y*subW+x] = float64(raw.Get(y1+y, x1+x)-lo) / span
		}
	}

	u := volume.NewMask(subH, subW)
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			if p.Get(y1+y, x1+x) == label {
				u.Set(y, x, true)
			}
		}
	}
	u = chanVese(img, u, iterations)

	switch {
	case dilation > 0:
		u = dilateMask(u, diskOffsets(dilation))
	case dilation < 0:
		u = erodeMask(u, diskOffsets(-dilation))
	}
	u = largestComponent(u, 2)
	if u.Count() < minPixels {
		celled.Warningf("active_contour: refit of label %d kept %d pixels, under the %d minimum; discarded\n",
			label, u.Count(), minPixels)
		return &Result{}, nil
	}

	changed := false
	for y := 0; y < e.vol.Height; y++ {
		for x := 0; x < e.vol.Width; x++ {
			inWindow := y >= y1 && y < y2 && x >= x1 && x < x2
			fit := inWindow && u.Get(y-y1, x-x1)
			switch {
			case p.Get(y, x) == label && !fit:
				p.Set(y, x, 0)
				changed = true
			case fit && p.Get(y, x) == 0:
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

// chanVese evolves a binary level set toward a two-region fit of the image:
// each step moves boundary pixels to whichever side's mean intensity is
// closer, then smooths the set with alternating sup-inf and inf-sup
// operators.
func chanVese(img []float64, init *volume.Mask, iterations int) *volume.Mask {
	u := init.Clone()
	for it := 0; it < iterations; it++ {
		var sum0, sum1 float64
		var n0, n1 int
		for i, v := range img {
			if u.Get(i/u.W, i%u.W) {
				sum1 += v
				n1++
			} else {
				sum0 += v
				n0++
			}
		}
		c0 := sum0 / (float64(n0) + 1e-8)
		c1 := sum1 / (float64(n1) + 1e-8)

		// Only the morphological boundary moves each step.
		boundary := volume.NewMask(u.H, u.W)
		dil, ero := dilateMask(u, square3), erodeMask(u, square3)
		for y := 0; y < u.H; y++ {
			for x := 0; x < u.W; x++ {
				if dil.Get(y, x) != ero.Get(y, x) {
					boundary.Set(y, x, true)
				}
			}
		}
		next := u.Clone()
		for y := 0; y < u.H; y++ {
			for x := 0; x < u.W; x++ {
				if !boundary.Get(y, x) {
					continue
				}
				v := img[y*u.W+x]
				d1 := (v - c1) * (v - c1)
				d0 := (v - c0) * (v - c0)
				if d1 < d0 {
					next.Set(y, x, true)
				} else if d0 < d1 {
					next.Set(y, x, false)
				}
			}
		}
		if it%2 == 0 {
			u = infSup(supInf(next))
		} else {
			u = supInf(infSup(next))
		}
	}
	return u
}

// Line segments of length 3 through the center pixel, used by the
// curvature smoothing operators.
var curvSegments = [4][2]point{
	{{0, -1}, {0, 1}},
	{{-1, 0}, {1, 0}},
	{{-1, -1}, {1, 1}},
	{{-1, 1}, {1, -1}},
}

func supInf(m *volume.Mask) *volume.Mask {
	out := volume.NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			for _, seg := range curvSegments {
				if segMin(m, y, x, seg) {
					out.Set(y, x, true)
					break
				}
			}
		}
	}
	return out
}

func infSup(m *volume.Mask) *volume.Mask {
	out := volume.NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			all := true
			for _, seg := range curvSegments {
				if !segMax(m, y, x, seg) {
					all = false
					break
				}
			}
			out.Set(y, x, all)
		}
	}
	return out
}

// segMin is true when the whole in-bounds segment through (y, x) is set.
func segMin(m *volume.Mask, y, x int, seg [2]point) bool {
	if !m.Get(y, x) {
		return false
	}
	for _, d := range seg {
		ny, nx := y+d.y, x+d.x
		if ny < 0 || ny >= m.H || nx < 0 || nx >= m.W {
			continue
		}
		if !m.Get(ny, nx) {
			return false
		}
	}
	return true
}

// segMax is true when any in-bounds pixel of the segment through (y, x)
// is set.
func segMax(m *volume.Mask, y, x int, seg [2]point) bool {
	if m.Get(y, x) {
		return true
	}
	for _, d := range seg {
		ny, nx := y+d.y, x+d.x
		if ny < 0 || ny >= m.H || nx < 0 || nx >= m.W {
			continue
		}
		if m.Get(ny, nx) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
