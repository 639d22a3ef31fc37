package server

import (
	"encoding/json"

	"github.com/celllabel/celled/format"
	"github.com/celllabel/celled/session"
)

// sessionPayload is the client's view of an opened session.
type sessionPayload struct {
	Token    string          `json:"token"`
	Name     string          `json:"name"`
	Tracking bool            `json:"tracking"`
	Frames   int             `json:"frames"`
	Height   int             `json:"height"`
	Width    int             `json:"width"`
	Features int             `json:"features"`
	Channels int             `json:"channels"`
	Tracks   json.RawMessage `json:"tracks"`
}

func newSessionPayload(s *session.Session) (*sessionPayload, error) {
	tracks, err := format.EncodeLineage(s.Tracks())
	if err != nil {
		return nil, err
	}
	vol := s.Volume()
	p := &sessionPayload{
		Token:    s.Token,
		Name:     s.Name,
		Tracking: s.Tracking,
		Frames:   vol.NumFrames,
		Height:   vol.Height,
		Width:    vol.Width,
		Features: vol.NumFeatures,
		Tracks:   tracks,
	}
	if raw := s.Raw(); raw != nil {
		p.Channels = raw.NumChannels
	}
	return p, nil
}

// editPayload reports what an action, undo, or redo changed.
type editPayload struct {
	Frames        []int           `json:"frames"`
	LabelsChanged bool            `json:"labels_changed"`
	Tracks        json.RawMessage `json:"tracks,omitempty"`
}

func newEditPayload(s *session.Session, frames []int, labelsChanged bool) (*editPayload, error) {
	p := &editPayload{Frames: frames, LabelsChanged: labelsChanged}
	if p.Frames == nil {
		p.Frames = []int{}
	}
	if labelsChanged {
		tracks, err := format.EncodeLineage(s.Tracks())
		if err != nil {
			return nil, err
		}
		p.Tracks = tracks
	}
	return p, nil
}
