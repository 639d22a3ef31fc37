package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/celllabel/celled/labels"
)

// lineageSchema validates a decoded lineage document before any of it is
// trusted: a map from label id to a track record.
const lineageSchema = `{
	"type": "object",
	"propertyNames": {"pattern": "^[0-9]+$"},
	"additionalProperties": {
		"type": "object",
		"required": ["label", "frames"],
		"properties": {
			"label": {"type": "integer", "minimum": 1},
			"frames": {"type": "array", "items": {"type": "integer", "minimum": 0}},
			"daughters": {"type": "array", "items": {"type": "integer", "minimum": 1}},
			"parent": {"type": ["integer", "null"], "minimum": 1},
			"frame_div": {"type": ["integer", "null"], "minimum": 0},
			"capped": {"type": "boolean"},
			"slices": {"type": "string"}
		}
	}
}`

var compiledLineageSchema = jsonschema.MustCompileString("lineage.json", lineageSchema)

// trackJSON is the wire form of one track record.  Parent and FrameDiv use
// null for unset, matching the in-memory 0 and -1 sentinels.  Slices is the
// readable run-compressed frame list; it is derived on encode and ignored
// on decode.
type trackJSON struct {
	Label     int32   `json:"label"`
	Frames    []int   `json:"frames"`
	Slices    string  `json:"slices"`
	Daughters []int32 `json:"daughters"`
	Parent    *int32  `json:"parent"`
	FrameDiv  *int    `json:"frame_div"`
	Capped    bool    `json:"capped"`
}

// DecodeLineage validates and decodes a lineage JSON object into records.
func DecodeLineage(data []byte) (map[int32]*labels.Record, error) {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, labels.InconsistentLineageError{Reason: fmt.Sprintf("lineage is not valid JSON: %v", err)}
	}
	if err := compiledLineageSchema.Validate(doc); err != nil {
		return nil, labels.InconsistentLineageError{Reason: fmt.Sprintf("lineage fails schema: %v", err)}
	}

	var decoded map[string]trackJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, labels.InconsistentLineageError{Reason: err.Error()}
	}
	out := make(map[int32]*labels.Record, len(decoded))
	for key, t := range decoded {
		id, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return nil, labels.InconsistentLineageError{Reason: fmt.Sprintf("bad label key %q", key)}
		}
		if int32(id) != t.Label {
			return nil, labels.InconsistentLineageError{
				Reason: fmt.Sprintf("key %s does not match record label %d", key, t.Label)}
		}
		r := labels.NewRecord()
		r.Frames = append([]int(nil), t.Frames...)
		sort.Ints(r.Frames)
		for _, d := range t.Daughters {
			r.AddDaughter(d)
		}
		if t.Parent != nil {
			r.Parent = *t.Parent
		}
		if t.FrameDiv != nil {
			r.FrameDiv = *t.FrameDiv
		}
		r.Capped = t.Capped
		out[int32(id)] = r
	}
	return out, nil
}

// EncodeLineage marshals records to the wire lineage form, keys sorted for
// stable output.
func EncodeLineage(lineage map[int32]*labels.Record) ([]byte, error) {
	ids := make([]int32, 0, len(lineage))
	for id := range lineage {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var buf strings.Builder
	buf.WriteByte('{')
	for i, id := range ids {
		r := lineage[id]
		t := trackJSON{
			Label:     id,
			Frames:    r.Frames,
			Slices:    labels.DisplaySlices(r.Frames),
			Daughters: r.Daughters,
			Capped:    r.Capped,
		}
		if t.Frames == nil {
			t.Frames = []int{}
		}
		if t.Daughters == nil {
			t.Daughters = []int32{}
		}
		if r.Parent != 0 {
			p := r.Parent
			t.Parent = &p
		}
		if r.FrameDiv >= 0 {
			d := r.FrameDiv
			t.FrameDiv = &d
		}
		enc, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:%s", strconv.FormatInt(int64(id), 10), enc)
	}
	buf.WriteByte('}')
	return []byte(buf.String()), nil
}
