/*
	Package session ties one loaded project to its editing engine and
	undo history, serializing all access behind a session lock.  Sessions
	are handed out by a Manager keyed by token.
*/
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/twinj/uuid"

	"github.com/celllabel/celled/edit"
	"github.com/celllabel/celled/history"
	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

// View is the client's current position in the volume.
type View struct {
	Frame   int
	Channel int
	Feature int
}

// Session is one open project: its volumes, label index, engine, history,
// and view state.  All methods are safe for concurrent use.
type Session struct {
	Token    string
	Name     string
	Tracking bool
	Created  time.Time

	mu     sync.Mutex
	engine *edit.Engine
	hist   *history.History
	view   View
	mode   edit.Mode

	actions int  // bumps on every mutation, undo and redo included
	dirty   bool // unsaved changes
}

// New builds a session over a label volume and optional raw volume.  The
// label index is built from the volume; tracking sessions overlay lineage
// separately via ApplyLineage.
func New(name string, vol *volume.LabelVolume, raw *volume.RawVolume, tracking bool) (*Session, error) {
	if raw != nil {
		if raw.NumFrames != vol.NumFrames || raw.Height != vol.Height || raw.Width != vol.Width {
			return nil, fmt.Errorf("raw volume %dx%dx%d does not match label volume %dx%dx%d",
				raw.NumFrames, raw.Height, raw.Width, vol.NumFrames, vol.Height, vol.Width)
		}
	}
	idx := labels.Build(vol, tracking)
	hist, err := history.New(vol, idx)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:    uuid.NewV4().String(),
		Name:     name,
		Tracking: tracking,
		Created:  time.Now(),
		engine:   edit.NewEngine(vol, raw, idx),
		hist:     hist,
	}, nil
}

// ApplyLineage overlays loaded lineage metadata onto a tracking session and
// re-snapshots the initial history state so undo cannot roll back past it.
func (s *Session) ApplyLineage(lineage map[int32]*labels.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.Index().ApplyLineage(lineage); err != nil {
		return err
	}
	hist, err := history.New(s.engine.Volume(), s.engine.Index())
	if err != nil {
		return err
	}
	s.hist = hist
	return nil
}

// Do applies one editing action at the session's current view and records
// it for undo if it changed anything.
func (s *Session) Do(action string, args edit.Args) (*edit.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := edit.FrameContext{Frame: s.view.Frame, Channel: s.view.Channel, Feature: s.view.Feature}
	res, err := s.engine.Dispatch(action, args, ctx)
	if err != nil {
		return nil, err
	}
	if res.Changed() || res.LabelsChanged {
		if err := s.hist.Record(action, res.ChangedFrames); err != nil {
			return nil, err
		}
		s.actions++
		s.dirty = true
	}
	// A completed action consumes the selection.
	s.mode = s.mode.Clear()
	return res, nil
}

// Select picks a label in the session's current frame, advancing the
// selection mode, and returns the new mode.
func (s *Session) Select(label int32) edit.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = s.mode.Select(label, s.view.Frame)
	return s.mode
}

// ClearSelection drops the selection state.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = s.mode.Clear()
}

// Mode returns the session's selection state.
func (s *Session) Mode() edit.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Undo rolls back the latest action, returning the frames restored and
// whether label metadata changed.
func (s *Session) Undo() ([]int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames, labelsChanged, err := s.hist.Undo()
	if err == nil && labelsChanged {
		s.actions++
		s.dirty = true
	}
	return frames, labelsChanged, err
}

// Redo reapplies the latest undone action, returning the frames restored
// and whether label metadata changed.
func (s *Session) Redo() ([]int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames, labelsChanged, err := s.hist.Redo()
	if err == nil && labelsChanged {
		s.actions++
		s.dirty = true
	}
	return frames, labelsChanged, err
}

// SetView moves the session's current frame, channel, and feature.
func (s *Session) SetView(v View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vol := s.engine.Volume()
	if v.Frame < 0 || v.Frame >= vol.NumFrames {
		return fmt.Errorf("frame %d out of range [0, %d)", v.Frame, vol.NumFrames)
	}
	if v.Feature < 0 || v.Feature >= vol.NumFeatures {
		return fmt.Errorf("feature %d out of range [0, %d)", v.Feature, vol.NumFeatures)
	}
	if raw := s.engine.Raw(); raw != nil && (v.Channel < 0 || v.Channel >= raw.NumChannels) {
		return fmt.Errorf("channel %d out of range [0, %d)", v.Channel, raw.NumChannels)
	}
	s.view = v
	return nil
}

// CurrentView returns the session's view state.
func (s *Session) CurrentView() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Tracks returns a deep copy of the current label metadata for the view's
// feature.
func (s *Session) Tracks() map[int32]*labels.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Index().Tracks(s.view.Feature)
}

// Volume returns the session's label volume.  Callers must not mutate it
// outside Do.
func (s *Session) Volume() *volume.LabelVolume {
	return s.engine.Volume()
}

// Raw returns the session's raw volume, or nil.
func (s *Session) Raw() *volume.RawVolume {
	return s.engine.Raw()
}

// Index returns the session's label index.
func (s *Session) Index() *labels.Index {
	return s.engine.Index()
}

// Dirty reports whether the session has unsaved changes.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// MarkSaved clears the dirty flag after a successful export.
func (s *Session) MarkSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// ActionCount returns a counter that advances on every change to the
// label volume, including undo and redo.  Render caches key on it.
func (s *Session) ActionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions
}
