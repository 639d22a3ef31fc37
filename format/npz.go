package format

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/volume"
)

// Project is a decoded pair of volumes ready to open as a session.
type Project struct {
	Raw    *volume.RawVolume // nil when the container held no raw data
	Labels *volume.LabelVolume
}

// ReadNpz decodes an npz archive into a project.  The raw stack is taken
// from "X" or "raw", the label stack from "y" or "annotated"; failing
// those, the first array is raw and the second, if any, is labels.  A
// missing label stack starts as all background, one feature.
func ReadNpz(r io.ReaderAt, size int64) (*Project, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening npz: %v", err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	arrays := make(map[string]*NpyArray)
	var order []string
	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, ".npy")
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %v", f.Name, err)
		}
		a, err := ReadNpy(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %v", f.Name, err)
		}
		arrays[name] = a
		order = append(order, name)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("npz holds no arrays")
	}

	rawArr := pickArray(arrays, order, []string{"X", "raw"}, 0, nil)
	labelArr := pickArray(arrays, order, []string{"y", "annotated"}, 1, rawArr)

	if len(rawArr.Shape) != 4 {
		return nil, fmt.Errorf("raw stack has %d dimensions, want 4 (frames, height, width, channels)", len(rawArr.Shape))
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

	var labelVol *volume.LabelVolume
	if labelArr == nil {
		celled.Infof("npz has no label stack; starting from blank annotations\n")
		labelVol = volume.NewLabelVolume(raw.NumFrames, raw.Height, raw.Width, 1)
	} else {
		if len(labelArr.Shape) != 4 {
			return nil, fmt.Errorf("label stack has %d dimensions, want 4 (frames, height, width, features)", len(labelArr.Shape))
		}
		labelData, err := labelArr.Int32s()
		if err != nil {
			return nil, err
		}
		labelVol, err = volume.LabelVolumeFromSlice(labelData,
			labelArr.Shape[0], labelArr.Shape[1], labelArr.Shape[2], labelArr.Shape[3])
		if err != nil {
			return nil, err
		}
		if labelVol.NumFrames != raw.NumFrames || labelVol.Height != raw.Height || labelVol.Width != raw.Width {
			return nil, fmt.Errorf("label stack %v does not line up with raw stack %v", labelArr.Shape, rawArr.Shape)
		}
	}
	return &Project{Raw: raw, Labels: labelVol}, nil
}

// pickArray finds a stack by its conventional keys, falling back to
// archive position.  taken excludes an array already claimed by the other
// stack.  Returns nil if neither names nor position match.
func pickArray(arrays map[string]*NpyArray, order []string, keys []string, position int, taken *NpyArray) *NpyArray {
	for _, k := range keys {
		if a, found := arrays[k]; found {
			return a
		}
	}
	if position < len(order) {
		if a := arrays[order[position]]; a != taken {
			return a
		}
	}
	return nil
}

// WriteNpz writes the project as a deflate-compressed npz with keys "X"
// and "y".  Either stack may be nil and is then omitted.
func WriteNpz(w io.Writer, raw *volume.RawVolume, vol *volume.LabelVolume) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	if raw != nil {
		var buf bytes.Buffer
		if err := WriteNpyUint8(&buf, raw.Bytes(),
			[]int{raw.NumFrames, raw.Height, raw.Width, raw.NumChannels}); err != nil {
			return err
		}
		if err := writeZipEntry(zw, "X.npy", buf.Bytes()); err != nil {
			return err
		}
	}

	if vol != nil {
		var buf bytes.Buffer
		labelData := make([]int32, 0, vol.NumFrames*vol.Height*vol.Width*vol.NumFeatures)
		for frame := 0; frame < vol.NumFrames; frame++ {
			labelData = append(labelData, frameInt32s(vol, frame)...)
		}
		if err := WriteNpyInt32(&buf, labelData,
			[]int{vol.NumFrames, vol.Height, vol.Width, vol.NumFeatures}); err != nil {
			return err
		}
		if err := writeZipEntry(zw, "y.npy", buf.Bytes()); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// frameInt32s returns one frame's labels in (row, col, feature) order.
func frameInt32s(vol *volume.LabelVolume, frame int) []int32 {
	out := make([]int32, 0, vol.Height*vol.Width*vol.NumFeatures)
	planes := make([]volume.Plane, vol.NumFeatures)
	for f := range planes {
		planes[f] = vol.Plane(frame, f)
	}
	for y := 0; y < vol.Height; y++ {
		for x := 0; x < vol.Width; x++ {
			for f := range planes {
				out = append(out, planes[f].Get(y, x))
			}
		}
	}
	return out
}
