package edit

import (
	"encoding/json"
	"fmt"
)

// Args carries the decoded action parameters, typically straight from a
// JSON request body.  Numbers decode as float64; the typed getters check
// integral-ness and range.
type Args map[string]interface{}

// ParseArgs decodes a JSON object into Args.
func ParseArgs(b []byte) (Args, error) {
	if len(b) == 0 {
		return Args{}, nil
	}
	var a Args
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("bad action arguments: %v", err)
	}
	return a, nil
}

func (a Args) number(key string) (float64, bool, error) {
	v, found := a[key]
	if !found {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("argument %q: %v", key, err)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("argument %q is %T, expected a number", key, v)
	}
}

// Int returns a required integer argument.
func (a Args) Int(key string) (int, error) {
	f, found, err := a.number(key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("argument %q = %v is not an integer", key, f)
	}
	return int(f), nil
}

// IntDefault returns an optional integer argument.
func (a Args) IntDefault(key string, def int) (int, error) {
	if _, found := a[key]; !found {
		return def, nil
	}
	return a.Int(key)
}

// Label returns a required label id argument, checked non-negative.
func (a Args) Label(key string) (int32, error) {
	n, err := a.Int(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("argument %q = %d is not a valid label", key, n)
	}
	return int32(n), nil
}

// LabelDefault returns an optional label id argument, checked non-negative.
func (a Args) LabelDefault(key string, def int32) (int32, error) {
	if _, found := a[key]; !found {
		return def, nil
	}
	return a.Label(key)
}

// Float returns an optional float argument.
func (a Args) Float(key string, def float64) (float64, error) {
	f, found, err := a.number(key)
	if err != nil {
		return 0, err
	}
	if !found {
		return def, nil
	}
	return f, nil
}

// Bool returns an optional boolean argument.
func (a Args) Bool(key string, def bool) (bool, error) {
	v, found := a[key]
	if !found {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("argument %q is %T, expected a boolean", key, v)
	}
	return b, nil
}

// Trace returns a required list of (x, y) points.  The value may be a JSON
// array of [x, y] pairs or a string holding that JSON, as clients that
// accumulate strokes incrementally tend to send the latter.
func (a Args) Trace(key string) ([][2]int, error) {
	v, found := a[key]
	if !found {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	if s, ok := v.(string); ok {
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("argument %q: %v", key, err)
		}
		v = decoded
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("argument %q is %T, expected a point list", key, v)
	}
	pts := make([][2]int, 0, len(raw))
	for i, el := range raw {
		pair, ok := el.([]interface{})
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("argument %q: element %d is not an [x, y] pair", key, i)
		}
		var pt [2]int
		for j, c := range pair {
			f, ok := c.(float64)
			if !ok || f != float64(int(f)) {
				return nil, fmt.Errorf("argument %q: element %d has a non-integer coordinate", key, i)
			}
			pt[j] = int(f)
		}
		pts = append(pts, pt)
	}
	return pts, nil
}
