package edit

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/volume"
)

// defaultIoUThreshold is the minimum overlap for carrying a label across
// frames.
const defaultIoUThreshold = 0.1

// predictSingle relabels the current frame so its cells carry the ids of
// their best-overlapping cells in the previous frame.  Not available in
// tracking mode, where cross-frame identity is the lineage's job.
func (e *Engine) predictSingle(args Args, ctx FrameContext) (*Result, error) {
	if e.tracking() {
		return nil, invalidArgsf("predict_single", "not available in tracking mode")
	}
	threshold, err := args.Float("iou_threshold", defaultIoUThreshold)
	if err != nil {
		return nil, InvalidArgsError{Action: "predict_single", Reason: err.Error()}
	}
	if ctx.Frame == 0 {
		celled.Warningf("predict_single: frame 0 has no previous frame, nothing to do\n")
		return &Result{}, nil
	}

	prev := e.vol.Plane(ctx.Frame-1, ctx.Feature)
	cur := e.vol.Plane(ctx.Frame, ctx.Feature)
	predicted := PredictFrame(prev.Copy(), cur.Copy(), e.vol.Height, e.vol.Width, threshold)
	if planeEquals(cur, predicted) {
		return &Result{}, nil
	}
	if err := cur.SetFrom(predicted); err != nil {
		return nil, err
	}
	e.idx.RebuildFeature(e.vol, ctx.Feature)
	return &Result{ChangedFrames: []int{ctx.Frame}, LabelsChanged: true}, nil
}

// predictZStack runs the frame-to-frame prediction through the whole stack
// in order, so identities propagate from frame 0 to the end.  Not available
// in tracking mode.
func (e *Engine) predictZStack(args Args, ctx FrameContext) (*Result, error) {
	if e.tracking() {
		return nil, invalidArgsf("predict_zstack", "not available in tracking mode")
	}
	threshold, err := args.Float("iou_threshold", defaultIoUThreshold)
	if err != nil {
		return nil, InvalidArgsError{Action: "predict_zstack", Reason: err.Error()}
	}

	res := &Result{}
	for frame := 1; frame < e.vol.NumFrames; frame++ {
		prev := e.vol.Plane(frame-1, ctx.Feature)
		cur := e.vol.Plane(frame, ctx.Feature)
		predicted := PredictFrame(prev.Copy(), cur.Copy(), e.vol.Height, e.vol.Width, threshold)
		if planeEquals(cur, predicted) {
			continue
		}
		if err := cur.SetFrom(predicted); err != nil {
			return nil, err
		}
		res.addFrame(frame)
	}
	if !res.Changed() {
		return res, nil
	}
	e.idx.RebuildFeature(e.vol, ctx.Feature)
	res.LabelsChanged = true
	return res, nil
}

// PredictFrame returns next relabeled so each cell carries the id of its
// best-overlapping cell in prev.  A match requires the pair to be mutual
// best by intersection-over-union and to clear the threshold.  Unmatched
// cells get fresh ids above every id in either frame, assigned in ascending
// order of their position so repeated runs agree.  The inputs are dense
// row-major planes; neither is modified.
func PredictFrame(prev, next []int32, h, w int, threshold float64) []int32 {
	out := make([]int32, len(next))
	copy(out, next)
	if !anyForeground(next) {
		return out
	}

	// Dense-relabel next first so the matching runs over compact ids.
	nextIDs := distinctLabels(next)
	dense := make(map[int32]int32, len(nextIDs))
	for i, id := range nextIDs {
		dense[id] = int32(i) + 1
	}
	for i, v := range out {
		if v != 0 {
			out[i] = dense[v]
		}
	}
	nNext := len(nextIDs)

	prevIDs := distinctLabels(prev)
	if len(prevIDs) == 0 {
		return out
	}
	maxPrev := prevIDs[len(prevIDs)-1]

	// Pixel counts per cell and per overlapping pair.
	prevArea := make(map[int32]float64, len(prevIDs))
	nextArea := make([]float64, nNext+1)
	inter := mat.NewDense(int(maxPrev)+1, nNext+1, nil)
	for i := range out {
		pv, nv := prev[i], out[i]
		if pv != 0 {
			prevArea[pv]++
		}
		if nv != 0 {
			nextArea[nv]++
		}
		if pv != 0 && nv != 0 {
			inter.Set(int(pv), int(nv), inter.At(int(pv), int(nv))+1)
		}
	}
	iou := func(pv int32, nv int) float64 {
		in := inter.At(int(pv), nv)
		if in == 0 {
			return 0
		}
		return in / (prevArea[pv] + nextArea[nv] - in)
	}

	// Mutual-best matching.  Ties break toward the lower id on both
	// sides, so the outcome is order-independent.
	bestForNext := make([]int32, nNext+1)
	for j := 1; j <= nNext; j++ {
		var best int32
		bestScore := 0.0
		for _, pv := range prevIDs {
			if s := iou(pv, j); s > bestScore {
				best, bestScore = pv, s
			}
		}
		if bestScore >= threshold {
			bestForNext[j] = best
		}
	}
	bestForPrev := make(map[int32]int, len(prevIDs))
	for _, pv := range prevIDs {
		bestScore := 0.0
		for j := 1; j <= nNext; j++ {
			if s := iou(pv, j); s > bestScore {
				bestForPrev[pv], bestScore = j, s
			}
		}
	}

	assigned := make([]int32, nNext+1)
	nextFresh := maxPrev
	if last := nextIDs[len(nextIDs)-1]; last > nextFresh {
		nextFresh = last
	}
	for j := 1; j <= nNext; j++ {
		if pv := bestForNext[j]; pv != 0 && bestForPrev[pv] == j {
			assigned[j] = pv
			continue
		}
		nextFresh++
		assigned[j] = nextFresh
	}
	for i, v := range out {
		if v != 0 {
			out[i] = assigned[v]
		}
	}
	return out
}

func anyForeground(plane []int32) bool {
	for _, v := range plane {
		if v != 0 {
			return true
		}
	}
	return false
}

func distinctLabels(plane []int32) []int32 {
	present := make(map[int32]struct{})
	for _, v := range plane {
		if v != 0 {
			present[v] = struct{}{}
		}
	}
	out := make([]int32, 0, len(present))
	for v := range present {
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

func planeEquals(p volume.Plane, buf []int32) bool {
	h, w := p.Dims()
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if p.Get(y, x) != buf[i] {
				return false
			}
			i++
		}
	}
	return true
}
