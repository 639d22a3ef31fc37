/*
	Package format reads and writes the container formats a project moves
	through: npy arrays, npz archives of raw plus labels, and trk
	tarballs carrying tracked labels with lineage metadata.
*/
package format

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// NpyArray is a parsed npy file: shape, element type, and raw
// little-endian data.
type NpyArray struct {
	Shape []int
	dtype string // numpy descr without byte-order prefix, e.g. "i4"
	data  []byte
}

var npyElemSize = map[string]int{
	"u1": 1, "i1": 1,
	"u2": 2, "i2": 2,
	"u4": 4, "i4": 4, "f4": 4,
	"u8": 8, "i8": 8, "f8": 8,
}

// Len returns the number of elements.
func (a *NpyArray) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// ReadNpy parses a version 1.x npy stream.  Fortran-ordered arrays and
// big-endian data are rejected.
func ReadNpy(r io.Reader) (*NpyArray, error) {
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("reading npy magic: %v", err)
	}
	if string(head[:6]) != string(npyMagic) {
		return nil, fmt.Errorf("not an npy stream")
	}
	if head[6] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", head[6], head[7])
	}
	lenBuf := make([]byte, 2)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("reading npy header length: %v", err)
	}
	headerLen := int(binary.LittleEndian.Uint16(lenBuf))
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("reading npy header: %v", err)
	}

	descr, fortran, shape, err := parseNpyHeader(string(header))
	if err != nil {
		return nil, err
	}
	if fortran {
		return nil, fmt.Errorf("fortran-ordered npy data not supported")
	}
	if len(descr) != 3 || (descr[0] != '<' && descr[0] != '|') {
		return nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}
	dtype := descr[1:]
	size, found := npyElemSize[dtype]
	if !found {
		return nil, fmt.Errorf("unsupported npy dtype %q", descr)
	}

	a := &NpyArray{Shape: shape, dtype: dtype}
	a.data = make([]byte, a.Len()*size)
	if _, err := io.ReadFull(r, a.data); err != nil {
		return nil, fmt.Errorf("reading npy data: %v", err)
	}
	return a, nil
}

// parseNpyHeader pulls descr, fortran_order, and shape out of the python
// dict literal in the header.
func parseNpyHeader(header string) (descr string, fortran bool, shape []int, err error) {
	descr, err = quotedValue(header, "descr")
	if err != nil {
		return
	}
	fortran = strings.Contains(afterKey(header, "fortran_order"), "True")

	tup := afterKey(header, "shape")
	open := strings.IndexByte(tup, '(')
	close_ := strings.IndexByte(tup, ')')
	if open < 0 || close_ < open {
		err = fmt.Errorf("npy header missing shape tuple")
		return
	}
	for _, part := range strings.Split(tup[open+1:close_], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var d int
		if d, err = strconv.Atoi(part); err != nil {
			err = fmt.Errorf("bad npy shape element %q", part)
			return
		}
		shape = append(shape, d)
	}
	return
}

func afterKey(header, key string) string {
	i := strings.Index(header, "'"+key+"'")
	if i < 0 {
		return ""
	}
	rest := header[i+len(key)+2:]
	if j := strings.IndexByte(rest, ','); j >= 0 {
		// shape tuples contain commas; cut at the closing paren instead
		if k := strings.IndexByte(rest, '('); k >= 0 && k < j {
			if l := strings.IndexByte(rest, ')'); l > k {
				return rest[:l+1]
			}
		}
		return rest[:j]
	}
	return rest
}

func quotedValue(header, key string) (string, error) {
	rest := afterKey(header, key)
	open := strings.IndexByte(rest, '\'')
	if open < 0 {
		return "", fmt.Errorf("npy header missing %q", key)
	}
	close_ := strings.IndexByte(rest[open+1:], '\'')
	if close_ < 0 {
		return "", fmt.Errorf("npy header missing %q", key)
	}
	return rest[open+1 : open+1+close_], nil
}

func (a *NpyArray) element(i int) (intVal int64, floatVal float64, isFloat bool) {
	size := npyElemSize[a.dtype]
	b := a.data[i*size:]
	switch a.dtype {
	case "u1":
		return int64(b[0]), 0, false
	case "i1":
		return int64(int8(b[0])), 0, false
	case "u2":
		return int64(binary.LittleEndian.Uint16(b)), 0, false
	case "i2":
		return int64(int16(binary.LittleEndian.Uint16(b))), 0, false
	case "u4":
		return int64(binary.LittleEndian.Uint32(b)), 0, false
	case "i4":
		return int64(int32(binary.LittleEndian.Uint32(b))), 0, false
	case "u8":
		return int64(binary.LittleEndian.Uint64(b)), 0, false
	case "i8":
		return int64(binary.LittleEndian.Uint64(b)), 0, false
	case "f4":
		return 0, float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), true
	case "f8":
		return 0, math.Float64frombits(binary.LittleEndian.Uint64(b)), true
	}
	return 0, 0, false
}

// Int32s converts the array to int32, the in-memory label type.  Float
// data is truncated; values outside int32 range are an error.
func (a *NpyArray) Int32s() ([]int32, error) {
	out := make([]int32, a.Len())
	for i := range out {
		iv, fv, isFloat := a.element(i)
		if isFloat {
			iv = int64(fv)
		}
		if iv < math.MinInt32 || iv > math.MaxInt32 {
			return nil, fmt.Errorf("element %d = %d overflows int32", i, iv)
		}
		out[i] = int32(iv)
	}
	return out, nil
}

// Uint8s converts the array to uint8 display intensities.  u1 data passes
// through; anything wider is rescaled linearly over its full value range.
func (a *NpyArray) Uint8s() ([]uint8, error) {
	n := a.Len()
	out := make([]uint8, n)
	if a.dtype == "u1" {
		copy(out, a.data)
		return out, nil
	}
	vals := make([]float64, n)
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < n; i++ {
		iv, fv, isFloat := a.element(i)
		if !isFloat {
			fv = float64(iv)
		}
		vals[i] = fv
		if fv < lo {
			lo = fv
		}
		if fv > hi {
			hi = fv
		}
	}
	span := hi - lo
	if span == 0 {
		return out, nil
	}
	for i, v := range vals {
		out[i] = uint8(math.Round((v - lo) / span * 255))
	}
	return out, nil
}

// WriteNpyInt32 writes a little-endian int32 npy stream.
func WriteNpyInt32(w io.Writer, data []int32, shape []int) error {
	if err := writeNpyHeader(w, "<i4", shape, len(data)); err != nil {
		return err
	}
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	_, err := w.Write(buf)
	return err
}

// WriteNpyUint8 writes a uint8 npy stream.
func WriteNpyUint8(w io.Writer, data []uint8, shape []int) error {
	if err := writeNpyHeader(w, "|u1", shape, len(data)); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeNpyHeader(w io.Writer, descr string, shape []int, n int) error {
	want := 1
	dims := make([]string, len(shape))
	for i, d := range shape {
		want *= d
		dims[i] = strconv.Itoa(d)
	}
	if want != n {
		return fmt.Errorf("npy shape %v does not cover %d elements", shape, n)
	}
	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, tuple)

	// Pad the total header to a 64-byte boundary, newline-terminated.
	total := len(npyMagic) + 4 + len(dict) + 1
	pad := (64 - total%64) % 64
	dict += strings.Repeat(" ", pad) + "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return err
	}
	if _, err := w.Write([]byte{1, 0}); err != nil {
		return err
	}
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(dict)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	_, err := w.Write([]byte(dict))
	return err
}
