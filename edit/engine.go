/*
	Package edit implements the annotation editing actions over a label
	volume: drawing, flood fill, morphology, watershed splitting,
	threshold seeding, label replace/swap/relabel, and frame-to-frame
	label propagation.  Every action keeps the label index consistent
	with the volume and reports exactly which frames it changed.
*/
package edit

import (
	"sort"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

// FrameContext pins an action to the frame, raw channel, and label feature
// the client is viewing.
type FrameContext struct {
	Frame   int
	Channel int
	Feature int
}

// Result reports what an action changed.  An action that validated fine but
// had nothing to do returns an empty Result, not an error.
type Result struct {
	// ChangedFrames lists the frames whose label planes were written,
	// sorted ascending.
	ChangedFrames []int

	// LabelsChanged is true if the label index may differ from before the
	// action, so clients should refresh label metadata.
	LabelsChanged bool
}

func (r *Result) addFrame(frame int) {
	i := sort.SearchInts(r.ChangedFrames, frame)
	if i < len(r.ChangedFrames) && r.ChangedFrames[i] == frame {
		return
	}
	r.ChangedFrames = append(r.ChangedFrames, 0)
	copy(r.ChangedFrames[i+1:], r.ChangedFrames[i:])
	r.ChangedFrames[i] = frame
}

// Changed returns true if the action wrote any frame.
func (r *Result) Changed() bool {
	return len(r.ChangedFrames) > 0
}

// Engine applies editing actions to one session's volumes and index.
// It is not safe for concurrent use; the owning session serializes access.
type Engine struct {
	vol *volume.LabelVolume
	raw *volume.RawVolume // nil when the session has no raw imagery
	idx *labels.Index
}

// NewEngine returns an engine over the given volumes and index.  raw may be
// nil; actions needing intensity data then fail validation.
func NewEngine(vol *volume.LabelVolume, raw *volume.RawVolume, idx *labels.Index) *Engine {
	return &Engine{vol: vol, raw: raw, idx: idx}
}

// Index returns the engine's label index.
func (e *Engine) Index() *labels.Index {
	return e.idx
}

// Volume returns the engine's label volume.
func (e *Engine) Volume() *volume.LabelVolume {
	return e.vol
}

// Raw returns the engine's raw volume, or nil.
func (e *Engine) Raw() *volume.RawVolume {
	return e.raw
}

// SetIndex replaces the engine's index, used when history restores rebuild
// metadata from the volume.
func (e *Engine) SetIndex(idx *labels.Index) {
	e.idx = idx
}

func (e *Engine) tracking() bool {
	return e.idx.Tracking()
}

// Dispatch validates and applies one named action.  Validation completes
// before the first write: on error the volume and index are untouched.
func (e *Engine) Dispatch(name string, args Args, ctx FrameContext) (*Result, error) {
	if err := e.checkContext(name, ctx); err != nil {
		return nil, err
	}
	t := celled.NewTimeLog()
	var (
		res *Result
		err error
	)
	switch name {
	case "draw":
		res, err = e.draw(args, ctx)
	case "erase":
		res, err = e.erase(args, ctx)
	case "flood":
		res, err = e.flood(args, ctx)
	case "flood_new_label":
		res, err = e.floodNewLabel(args, ctx)
	case "fill_hole":
		res, err = e.fillHole(args, ctx)
	case "trim_pixels":
		res, err = e.trimPixels(args, ctx)
	case "watershed":
		res, err = e.watershed(args, ctx)
	case "threshold":
		res, err = e.threshold(args, ctx)
	case "active_contour":
		res, err = e.activeContour(args, ctx)
	case "erode":
		res, err = e.morph(name, args, ctx)
	case "dilate":
		res, err = e.morph(name, args, ctx)
	case "delete_mask":
		res, err = e.deleteMask(args, ctx)
	case "replace_frame":
		res, err = e.replaceFrame(args, ctx)
	case "replace_all":
		res, err = e.replaceAll(args, ctx)
	case "swap_frame":
		res, err = e.swapFrame(args, ctx)
	case "swap_all":
		res, err = e.swapAll(args, ctx)
	case "relabel_frame":
		res, err = e.relabelFrame(args, ctx)
	case "relabel_all_independent":
		res, err = e.relabelAll(name, relabelIndependent, ctx)
	case "relabel_all_preserve":
		res, err = e.relabelAll(name, relabelPreserve, ctx)
	case "relabel_all_unique":
		res, err = e.relabelAll(name, relabelUnique, ctx)
	case "predict_single":
		res, err = e.predictSingle(args, ctx)
	case "predict_zstack":
		res, err = e.predictZStack(args, ctx)
	case "new_label":
		res, err = e.newLabel(args, ctx)
	case "new_label_stack":
		res, err = e.newLabelStack(args, ctx)
	case "set_parent":
		res, err = e.setParent(args, ctx)
	default:
		return nil, ErrInvalidAction
	}
	if err != nil {
		return nil, err
	}
	t.Debugf("action %s (frame %d, feature %d) changed %d frame(s)",
		name, ctx.Frame, ctx.Feature, len(res.ChangedFrames))
	return res, nil
}

func (e *Engine) checkContext(action string, ctx FrameContext) error {
	if ctx.Frame < 0 || ctx.Frame >= e.vol.NumFrames {
		return invalidArgsf(action, "frame %d out of range [0, %d)", ctx.Frame, e.vol.NumFrames)
	}
	if ctx.Feature < 0 || ctx.Feature >= e.vol.NumFeatures {
		return invalidArgsf(action, "feature %d out of range [0, %d)", ctx.Feature, e.vol.NumFeatures)
	}
	if e.raw != nil && (ctx.Channel < 0 || ctx.Channel >= e.raw.NumChannels) {
		return invalidArgsf(action, "channel %d out of range [0, %d)", ctx.Channel, e.raw.NumChannels)
	}
	return nil
}

func (e *Engine) requireRaw(action string) error {
	if e.raw == nil {
		return invalidArgsf(action, "action needs raw imagery but the session has none")
	}
	return nil
}

func (e *Engine) checkCoord(action string, y, x int) error {
	if y < 0 || y >= e.vol.Height || x < 0 || x >= e.vol.Width {
		return invalidArgsf(action, "coordinate (%d, %d) outside %dx%d plane", x, y, e.vol.Height, e.vol.Width)
	}
	return nil
}

// cleanLabel clamps a requested label id to the valid range: negative ids
// become background, ids beyond the next unused id become the next unused id.
func (e *Engine) cleanLabel(feature int, label int32) int32 {
	if label <= 0 {
		return 0
	}
	if next := e.idx.NextLabel(feature); label > next {
		return next
	}
	return label
}

// syncLabel reconciles the index entry for one label against the plane:
// present pixels add the (label, frame) pair, none removes it.
func (e *Engine) syncLabel(p volume.Plane, frame, feature int, label int32) {
	if label == 0 {
		return
	}
	if p.Contains(label) {
		e.idx.Add(feature, label, frame)
	} else {
		e.idx.Del(feature, label, frame)
	}
}
