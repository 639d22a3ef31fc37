package edit

import "github.com/celllabel/celled/volume"

// point is a (row, col) plane coordinate.
type point struct {
	y, x int
}

var (
	// 4-connected and 8-connected neighbor offsets, in scan order so
	// flood fills and component labeling stay deterministic.
	conn1Neighbors = []point{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	conn2Neighbors = []point{
		{-1, -1}, {-1, 0}, {-1, 1},
		{0, -1}, {0, 1},
		{1, -1}, {1, 0}, {1, 1},
	}
)

func neighbors(conn int) []point {
	if conn == 2 {
		return conn2Neighbors
	}
	return conn1Neighbors
}

// diskOffsets returns the offsets of a filled disk of the given radius,
// the same pixel set as a brush stamp of that radius.
func diskOffsets(radius int) []point {
	if radius < 0 {
		radius = 0
	}
	var pts []point
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dy*dy+dx*dx <= r2 {
				pts = append(pts, point{dy, dx})
			}
		}
	}
	return pts
}

// square3 is the 3x3 structuring element used by single-step erosion and
// dilation.
var square3 = []point{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 0}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// floodRegion returns the connected component of the seed's value, as plane
// coordinates in breadth-first discovery order.
func floodRegion(p volume.Plane, seedY, seedX, conn int) []point {
	h, w := p.Dims()
	target := p.Get(seedY, seedX)
	offsets := neighbors(conn)

	visited := make([]bool, h*w)
	queue := []point{{seedY, seedX}}
	visited[seedY*w+seedX] = true
	var region []point
	for len(queue) > 0 {
		pt := queue[0]
		queue = queue[1:]
		region = append(region, pt)
		for _, d := range offsets {
			ny, nx := pt.y+d.y, pt.x+d.x
			if ny < 0 || ny >= h || nx < 0 || nx >= w {
				continue
			}
			if visited[ny*w+nx] || p.Get(ny, nx) != target {
				continue
			}
			visited[ny*w+nx] = true
			queue = append(queue, point{ny, nx})
		}
	}
	return region
}

// floodMask returns the connected component of set pixels containing the
// seed.  The seed must be set.
func floodMask(m *volume.Mask, seedY, seedX, conn int) *volume.Mask {
	offsets := neighbors(conn)
	out := volume.NewMask(m.H, m.W)
	out.Set(seedY, seedX, true)
	queue := []point{{seedY, seedX}}
	for len(queue) > 0 {
		pt := queue[0]
		queue = queue[1:]
		for _, d := range offsets {
			ny, nx := pt.y+d.y, pt.x+d.x
			if ny < 0 || ny >= m.H || nx < 0 || nx >= m.W {
				continue
			}
			if out.Get(ny, nx) || !m.Get(ny, nx) {
				continue
			}
			out.Set(ny, nx, true)
			queue = append(queue, point{ny, nx})
		}
	}
	return out
}

// componentLabels labels the connected components of set pixels 1..n in
// scan order of their first pixel.  Unset pixels get 0.
func componentLabels(m *volume.Mask, conn int) ([]int32, int) {
	offsets := neighbors(conn)
	out := make([]int32, m.H*m.W)
	var n int32
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if !m.Get(y, x) || out[y*m.W+x] != 0 {
				continue
			}
			n++
			out[y*m.W+x] = n
			queue := []point{{y, x}}
			for len(queue) > 0 {
				pt := queue[0]
				queue = queue[1:]
				for _, d := range offsets {
					ny, nx := pt.y+d.y, pt.x+d.x
					if ny < 0 || ny >= m.H || nx < 0 || nx >= m.W {
						continue
					}
					if !m.Get(ny, nx) || out[ny*m.W+nx] != 0 {
						continue
					}
					out[ny*m.W+nx] = n
					queue = append(queue, point{ny, nx})
				}
			}
		}
	}
	return out, int(n)
}

// largestComponent returns the biggest connected component of set pixels,
// breaking size ties toward the earliest component in scan order.  Returns
// an empty mask if nothing is set.
func largestComponent(m *volume.Mask, conn int) *volume.Mask {
	cc, n := componentLabels(m, conn)
	out := volume.NewMask(m.H, m.W)
	if n == 0 {
		return out
	}
	counts := make([]int, n+1)
	for _, c := range cc {
		counts[c]++
	}
	best := int32(1)
	for c := int32(2); c <= int32(n); c++ {
		if counts[c] > counts[best] {
			best = c
		}
	}
	for i, c := range cc {
		if c == best {
			out.Set(i/m.W, i%m.W, true)
		}
	}
	return out
}

// erodeMask erodes by a structuring element.  Pixels beyond the border
// count as unset, so a shape touching the edge erodes there too.
func erodeMask(m *volume.Mask, se []point) *volume.Mask {
	out := volume.NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			keep := true
			for _, d := range se {
				ny, nx := y+d.y, x+d.x
				if ny < 0 || ny >= m.H || nx < 0 || nx >= m.W || !m.Get(ny, nx) {
					keep = false
					break
				}
			}
			out.Set(y, x, keep)
		}
	}
	return out
}

// dilateMask dilates by a structuring element.
func dilateMask(m *volume.Mask, se []point) *volume.Mask {
	out := volume.NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			for _, d := range se {
				ny, nx := y+d.y, x+d.x
				if ny >= 0 && ny < m.H && nx >= 0 && nx < m.W && m.Get(ny, nx) {
					out.Set(y, x, true)
					break
				}
			}
		}
	}
	return out
}
