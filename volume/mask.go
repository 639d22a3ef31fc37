package volume

// Mask is a dense binary mask over one plane.
type Mask struct {
	H, W int
	bits []bool
}

// NewMask returns an all-false mask of the given dimensions.
func NewMask(h, w int) *Mask {
	return &Mask{H: h, W: w, bits: make([]bool, h*w)}
}

// MaskOf returns the binary mask of a single label within a plane.
func MaskOf(p Plane, label int32) *Mask {
	h, w := p.Dims()
	m := NewMask(h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if p.Get(y, x) == label {
				m.bits[y*w+x] = true
			}
		}
	}
	return m
}

func (m *Mask) Get(y, x int) bool {
	return m.bits[y*m.W+x]
}

func (m *Mask) Set(y, x int, b bool) {
	m.bits[y*m.W+x] = b
}

// Any returns true if any pixel is set.
func (m *Mask) Any() bool {
	for _, b := range m.bits {
		if b {
			return true
		}
	}
	return false
}

// Count returns the number of set pixels.
func (m *Mask) Count() (n int) {
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {
	bits := make([]bool, len(m.bits))
	copy(bits, m.bits)
	return &Mask{H: m.H, W: m.W, bits: bits}
}

// BBox returns the inclusive bounding box of set pixels.
// ok is false for an empty mask.
func (m *Mask) BBox() (minY, minX, maxY, maxX int, ok bool) {
	minY, minX = m.H, m.W
	maxY, maxX = -1, -1
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.Get(y, x) {
				continue
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
		}
	}
	ok = maxY >= 0
	return
}
