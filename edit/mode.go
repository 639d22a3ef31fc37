package edit

import "fmt"

// ModeKind enumerates the selection states a client session moves through
// while composing a multi-step action like a swap or a watershed split.
type ModeKind int

const (
	ModeNone     ModeKind = iota // nothing selected
	ModeSelected                 // one label picked
	ModeMultiple                 // two labels picked, ready for a pairwise action
	ModeQuestion                 // awaiting confirmation of a named action
	ModePrompt                   // awaiting further input for a named action
)

// Mode is the client-side selection state carried between requests.  It is
// a value type; transitions return a new Mode.
type Mode struct {
	Kind   ModeKind
	Action string // pending action name in ModeQuestion

	Label  int32
	Frame  int
	Label2 int32
	Frame2 int
}

// NoneMode returns the empty selection.
func NoneMode() Mode {
	return Mode{}
}

// Select picks a label in a frame.  Selecting with one label already held
// moves to ModeMultiple; further selections replace the second pick.
func (m Mode) Select(label int32, frame int) Mode {
	switch m.Kind {
	case ModeNone:
		return Mode{Kind: ModeSelected, Label: label, Frame: frame}
	default:
		m.Kind = ModeMultiple
		m.Label2 = label
		m.Frame2 = frame
		return m
	}
}

// Ask stages a named action for confirmation, keeping the selections.
func (m Mode) Ask(action string) Mode {
	m.Kind = ModeQuestion
	m.Action = action
	return m
}

// Prompt stages a named action that still needs more input, like the
// second seed of a split.
func (m Mode) Prompt(action string) Mode {
	m.Kind = ModePrompt
	m.Action = action
	return m
}

// Clear drops all selection state.
func (m Mode) Clear() Mode {
	return Mode{}
}

func (m Mode) String() string {
	switch m.Kind {
	case ModeNone:
		return "no selection"
	case ModeSelected:
		return fmt.Sprintf("label %d selected in frame %d", m.Label, m.Frame)
	case ModeMultiple:
		return fmt.Sprintf("labels %d (frame %d) and %d (frame %d) selected",
			m.Label, m.Frame, m.Label2, m.Frame2)
	case ModeQuestion:
		return fmt.Sprintf("confirm %s?", m.Action)
	case ModePrompt:
		return fmt.Sprintf("%s needs more input", m.Action)
	}
	return "unknown mode"
}
