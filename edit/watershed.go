package edit

import (
	"container/heap"

	"github.com/celllabel/celled/volume"
)

// watershed splits one label in two along an intensity valley between two
// seed points.  The transform runs inside the label's bounding box on the
// negated, contrast-rescaled raw image; only pixels that move from the old
// label to the new one are committed, so neighboring labels are never
// overwritten.  A split piece under 5 pixels is grown by a disk of radius 3
// so tiny splits stay visible.
func (e *Engine) watershed(args Args, ctx FrameContext) (*Result, error) {
	if err := e.requireRaw("watershed"); err != nil {
		return nil, err
	}
	label, err := args.Label("label")
	if err != nil {
		return nil, InvalidArgsError{Action: "watershed", Reason: err.Error()}
	}
	if label == 0 {
		return nil, invalidArgsf("watershed", "cannot split background")
	}
	x1, y1, x2, y2, err := boxArgs(args)
	if err != nil {
		return nil, InvalidArgsError{Action: "watershed", Reason: err.Error()}
	}
	for _, pt := range [][2]int{{x1, y1}, {x2, y2}} {
		if cerr := e.checkCoord("watershed", pt[1], pt[0]); cerr != nil {
			return nil, cerr
		}
	}
	if x1 == x2 && y1 == y2 {
		return nil, invalidArgsf("watershed", "seed points must differ")
	}
	p := e.vol.Plane(ctx.Frame, ctx.Feature)
	if p.Get(y1, x1) != label || p.Get(y2, x2) != label {
		return nil, invalidArgsf("watershed", "both seeds must lie on label %d", label)
	}

	newLabel := e.idx.NextLabel(ctx.Feature)
	minY, minX, maxY, maxX, _ := p.BBox(label)
	subH, subW := maxY-minY+1, maxX-minX+1

	// Negated rescaled intensity: cell interiors become basins.
	raw := e.raw.Plane(ctx.Frame, ctx.Channel)
	intensity := make([]float64, subH*subW)
	lo, hi := raw.Get(minY, minX), raw.Get(minY, minX)
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			v := raw.Get(minY+y, minX+x)
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
			intensity[y*subW+x] = -float64(raw.Get(minY+y, minX+x)-lo) / span
		}
	}

	// Flood within any labeled pixel of the window, as diagonal neighbors
	// of the split label can channel the transform.
	mask := volume.NewMask(subH, subW)
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			if p.Get(minY+y, minX+x) != 0 {
				mask.Set(y, x, true)
			}
		}
	}
	seeds := []wsSeed{
		{y: y1 - minY, x: x1 - minX, label: label},
		{y: y2 - minY, x: x2 - minX, label: newLabel},
	}
	ws := priorityFlood(intensity, mask, seeds)

	// Grow either piece when the cut leaves it under 5 pixels.
	for _, piece := range []int32{newLabel, label} {
		n := 0
		for _, v := range ws {
			if v == piece {
				n++
			}
		}
		if n >= 5 || n == 0 {
			continue
		}
		m := volume.NewMask(subH, subW)
		for i, v := range ws {
			if v == piece {
				m.Set(i/subW, i%subW, true)
			}
		}
		grown := dilateMask(m, diskOffsets(3))
		for i := range ws {
			if grown.Get(i/subW, i%subW) {
				ws[i] = piece
			}
		}
	}

	changed := false
	for y := 0; y < subH; y++ {
		for x := 0; x < subW; x++ {
			if ws[y*subW+x] == newLabel && p.Get(minY+y, minX+x) == label {
				p.Set(minY+y, minX+x, newLabel)
				changed = true
			}
		}
	}
	if !changed {
		return &Result{}, nil
	}
	e.syncLabel(p, ctx.Frame, ctx.Feature, newLabel)
	e.syncLabel(p, ctx.Frame, ctx.Feature, label)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

type wsSeed struct {
	y, x  int
	label int32
}

type wsItem struct {
	priority float64
	seq      int
	y, x     int
}

type wsHeap []wsItem

func (h wsHeap) Len() int { return len(h) }
func (h wsHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq // FIFO on equal priority keeps results stable
}
func (h wsHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *wsHeap) Push(v interface{}) { *h = append(*h, v.(wsItem)) }
func (h *wsHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// priorityFlood runs a marker-based watershed: seeds flood outward through
// the mask in order of increasing intensity, 4-connected.
func priorityFlood(intensity []float64, mask *volume.Mask, seeds []wsSeed) []int32 {
	out := make([]int32, mask.H*mask.W)
	h := &wsHeap{}
	seq := 0
	for _, s := range seeds {
		if s.y < 0 || s.y >= mask.H || s.x < 0 || s.x >= mask.W {
			continue
		}
		out[s.y*mask.W+s.x] = s.label
		heap.Push(h, wsItem{priority: intensity[s.y*mask.W+s.x], seq: seq, y: s.y, x: s.x})
		seq++
	}
	for h.Len() > 0 {
		it := heap.Pop(h).(wsItem)
		lab := out[it.y*mask.W+it.x]
		for _, d := range conn1Neighbors {
			ny, nx := it.y+d.y, it.x+d.x
			if ny < 0 || ny >= mask.H || nx < 0 || nx >= mask.W {
				continue
			}
			i := ny*mask.W + nx
			if !mask.Get(ny, nx) || out[i] != 0 {
				continue
			}
			out[i] = lab
			heap.Push(h, wsItem{priority: intensity[i], seq: seq, y: ny, x: nx})
			seq++
		}
	}
	return out
}
