package format

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/celllabel/celled/labels"
	"github.com/celllabel/celled/volume"
)

// TrackedProject is a decoded trk container: volumes plus the single
// lineage it must carry.
type TrackedProject struct {
	Raw     *volume.RawVolume
	Labels  *volume.LabelVolume
	Lineage map[int32]*labels.Record
}

// ReadTrk decodes a trk tarball, gzipped or not.  The container must hold
// raw.npy, tracked.npy, and exactly one lineage under lineages.json or
// lineage.json; multiple lineages are rejected as inconsistent.
func ReadTrk(r io.Reader) (*TrackedProject, error) {
	head := make([]byte, 2)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("reading trk: %v", err)
	}
	stream := io.MultiReader(bytes.NewReader(head), r)
	if head[0] == 0x1f && head[1] == 0x8b {
		gz, err := gzip.NewReader(stream)
		if err != nil {
			return nil, fmt.Errorf("opening gzipped trk: %v", err)
		}
		defer gz.Close()
		stream = gz
	}

	var rawArr, trackedArr *NpyArray
	var lineageData []byte
	lineageName := ""
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading trk: %v", err)
		}
		switch hdr.Name {
		case "raw.npy":
			if rawArr, err = ReadNpy(tr); err != nil {
				return nil, fmt.Errorf("decoding raw.npy: %v", err)
			}
		case "tracked.npy":
			if trackedArr, err = ReadNpy(tr); err != nil {
				return nil, fmt.Errorf("decoding tracked.npy: %v", err)
			}
		case "lineages.json", "lineage.json":
			if lineageData, err = io.ReadAll(tr); err != nil {
				return nil, fmt.Errorf("reading %s: %v", hdr.Name, err)
			}
			lineageName = hdr.Name
		}
	}
	if rawArr == nil || trackedArr == nil {
		return nil, fmt.Errorf("trk is missing raw.npy or tracked.npy")
	}
	if lineageData == nil {
		return nil, labels.InconsistentLineageError{Reason: "trk has no lineage data"}
	}

	lineage, err := decodeTrkLineage(lineageData, lineageName)
	if err != nil {
		return nil, err
	}

	if len(rawArr.Shape) != 4 || len(trackedArr.Shape) != 4 {
		return nil, fmt.Errorf("trk stacks must be 4-dimensional")
	}
	rawData, err := rawArr.Uint8s()
	if err != nil {
		return nil, err
	}
	raw, err := volume.RawVolumeFromSlice(rawData,
		rawArr.Shape[0], rawArr.Shape[1], rawArr.Shape[2], rawArr.Shape[3])
	if err != nil {
		return nil, err
	}
	trackedData, err := trackedArr.Int32s()
	if err != nil {
		return nil, err
	}
	tracked, err := volume.LabelVolumeFromSlice(trackedData,
		trackedArr.Shape[0], trackedArr.Shape[1], trackedArr.Shape[2], trackedArr.Shape[3])
	if err != nil {
		return nil, err
	}
	if tracked.NumFrames != raw.NumFrames || tracked.Height != raw.Height || tracked.Width != raw.Width {
		return nil, fmt.Errorf("tracked stack %v does not line up with raw stack %v",
			trackedArr.Shape, rawArr.Shape)
	}
	return &TrackedProject{Raw: raw, Labels: tracked, Lineage: lineage}, nil
}

// decodeTrkLineage handles both layouts: lineages.json holds a list of
// lineage objects (exactly one is allowed), lineage.json a bare object.
func decodeTrkLineage(data []byte, name string) (map[int32]*labels.Record, error) {
	if name == "lineages.json" {
		var list []json.RawMessage
		if err := json.Unmarshal(data, &list); err == nil {
			if len(list) != 1 {
				return nil, labels.InconsistentLineageError{
					Reason: fmt.Sprintf("trk holds %d lineages, only single-batch files can be edited", len(list))}
			}
			return DecodeLineage(list[0])
		}
	}
	return DecodeLineage(data)
}

// WriteTrk writes a gzipped trk tarball with raw.npy, tracked.npy, and a
// single-lineage lineages.json.
func WriteTrk(w io.Writer, raw *volume.RawVolume, vol *volume.LabelVolume, lineage map[int32]*labels.Record) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	encoded, err := EncodeLineage(lineage)
	if err != nil {
		return err
	}
	var list bytes.Buffer
	list.WriteByte('[')
	list.Write(encoded)
	list.WriteByte(']')
	if err := writeTarEntry(tw, "lineages.json", list.Bytes()); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteNpyUint8(&buf, raw.Bytes(),
		[]int{raw.NumFrames, raw.Height, raw.Width, raw.NumChannels}); err != nil {
		return err
	}
	if err := writeTarEntry(tw, "raw.npy", buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	labelData := make([]int32, 0, vol.NumFrames*vol.Height*vol.Width*vol.NumFeatures)
	for frame := 0; frame < vol.NumFrames; frame++ {
		labelData = append(labelData, frameInt32s(vol, frame)...)
	}
	if err := WriteNpyInt32(&buf, labelData,
		[]int{vol.NumFrames, vol.Height, vol.Width, vol.NumFeatures}); err != nil {
		return err
	}
	if err := writeTarEntry(tw, "tracked.npy", buf.Bytes()); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}
