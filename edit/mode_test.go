package edit

import "testing"

func TestModeTransitions(t *testing.T) {
	m := NoneMode()
	if m.Kind != ModeNone {
		t.Fatalf("fresh mode kind = %v, want ModeNone", m.Kind)
	}

	m = m.Select(4, 2)
	if m.Kind != ModeSelected || m.Label != 4 || m.Frame != 2 {
		t.Fatalf("after first pick: %+v", m)
	}

	m = m.Select(9, 3)
	if m.Kind != ModeMultiple || m.Label != 4 || m.Label2 != 9 || m.Frame2 != 3 {
		t.Fatalf("after second pick: %+v", m)
	}

	// A third pick replaces the second selection only.
	m = m.Select(5, 7)
	if m.Kind != ModeMultiple || m.Label != 4 || m.Label2 != 5 || m.Frame2 != 7 {
		t.Fatalf("after third pick: %+v", m)
	}

	q := m.Ask("replace_all")
	if q.Kind != ModeQuestion || q.Action != "replace_all" || q.Label != 4 {
		t.Fatalf("after ask: %+v", q)
	}
	p := m.Prompt("watershed")
	if p.Kind != ModePrompt || p.Action != "watershed" {
		t.Fatalf("after prompt: %+v", p)
	}

	if c := q.Clear(); c.Kind != ModeNone || c.Label != 0 {
		t.Fatalf("after clear: %+v", c)
	}
}
