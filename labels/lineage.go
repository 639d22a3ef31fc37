package labels

import (
	"fmt"

	"github.com/celllabel/celled/celled"
)

// InconsistentLineageError reports lineage metadata that cannot be
// reconciled with the session being loaded.  It is fatal at load time.
type InconsistentLineageError struct {
	Reason string
}

func (e InconsistentLineageError) Error() string {
	return fmt.Sprintf("inconsistent lineage: %s", e.Reason)
}

// ApplyLineage overlays decoded lineage metadata onto feature 0 of a
// tracking index.  Frame lists stay as built from the volume; only the
// lineage fields are taken from the decoded records.  Lineage entries for
// labels absent from the volume are logged and skipped.
func (idx *Index) ApplyLineage(lineage map[int32]*Record) error {
	if !idx.tracking {
		return InconsistentLineageError{Reason: "lineage supplied for a non-tracking session"}
	}
	if len(idx.info) == 0 {
		return InconsistentLineageError{Reason: "index has no features"}
	}
	for label, src := range lineage {
		r, found := idx.info[0][label]
		if !found {
			celled.Warningf("lineage entry for label %d not present in volume; skipped\n", label)
			continue
		}
		r.Parent = src.Parent
		r.Daughters = append([]int32(nil), src.Daughters...)
		r.FrameDiv = src.FrameDiv
		r.Capped = src.Capped
	}
	return nil
}

// Lineage derives the lineage map for feature 0, with frame lists included,
// as written to trk containers.
func (idx *Index) Lineage() map[int32]*Record {
	return idx.Tracks(0)
}
