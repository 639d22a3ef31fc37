package server

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"

	"github.com/celllabel/celled/celled"
	"github.com/celllabel/celled/session"
	"github.com/celllabel/celled/volume"
)

// renderer turns volume planes into PNGs, memoized in an in-memory cache.
// Cache keys carry the session's action count, so every edit naturally
// invalidates the stale renders.
type renderer struct {
	cache *freecache.Cache
}

func newRenderer(cacheMB int) *renderer {
	size := cacheMB * celled.Mega
	celled.Infof("render cache sized at %s\n", humanize.Bytes(uint64(size)))
	return &renderer{cache: freecache.NewCache(size)}
}

func (r *renderer) rawPNG(s *session.Session, frame, channel int) ([]byte, error) {
	raw := s.Raw()
	if raw == nil {
		return nil, fmt.Errorf("session has no raw imagery")
	}
	if frame < 0 || frame >= raw.NumFrames || channel < 0 || channel >= raw.NumChannels {
		return nil, fmt.Errorf("no raw plane (frame %d, channel %d)", frame, channel)
	}
	key := []byte(fmt.Sprintf("r:%s:%d:%d", s.Token, frame, channel))
	if data, err := r.cache.Get(key); err == nil {
		return data, nil
	}

	p := raw.Plane(frame, channel)
	img := image.NewGray(image.Rect(0, 0, raw.Width, raw.Height))
	for y := 0; y < raw.Height; y++ {
		for x := 0; x < raw.Width; x++ {
			img.SetGray(x, y, color.Gray{Y: p.Get(y, x)})
		}
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, data, 0)
	return data, nil
}

// labelPNG renders one label plane: each label gets a stable color, label
// boundaries are outlined, and a highlighted label renders red.
func (r *renderer) labelPNG(s *session.Session, frame, feature int, highlight int32) ([]byte, error) {
	vol := s.Volume()
	if frame < 0 || frame >= vol.NumFrames || feature < 0 || feature >= vol.NumFeatures {
		return nil, fmt.Errorf("no label plane (frame %d, feature %d)", frame, feature)
	}
	key := []byte(fmt.Sprintf("l:%s:%d:%d:%d:%d", s.Token, frame, feature, highlight, s.ActionCount()))
	if data, err := r.cache.Get(key); err == nil {
		return data, nil
	}

	p := vol.Plane(frame, feature)
	img := image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Height))
	for y := 0; y < vol.Height; y++ {
		for x := 0; x < vol.Width; x++ {
			label := p.Get(y, x)
			if label == 0 {
				img.Set(x, y, color.RGBA{A: 255})
				continue
			}
			if onBoundary(p, y, x, vol.Height, vol.Width) {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
				continue
			}
			if label == highlight {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
				continue
			}
			img.Set(x, y, labelColor(label))
		}
	}
	data, err := encodePNG(img)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, data, 0)
	return data, nil
}

func onBoundary(p volume.Plane, y, x, h, w int) bool {
	label := p.Get(y, x)
	for _, d := range [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		ny, nx := y+d[0], x+d[1]
		if ny < 0 || ny >= h || nx < 0 || nx >= w {
			continue
		}
		if p.Get(ny, nx) != label {
			return true
		}
	}
	return false
}

// labelColor spreads hues around the color wheel by the golden angle, so
// adjacent ids stay visually distinct.
func labelColor(label int32) color.RGBA {
	hue := math.Mod(float64(label)*137.50776, 360)
	rf, gf, bf := hsvToRGB(hue, 0.7, 0.9)
	return color.RGBA{R: uint8(rf * 255), G: uint8(gf * 255), B: uint8(bf * 255), A: 255}
}

func hsvToRGB(h, s, v float64) (float64, float64, float64) {
	c := v * s
	hp := h / 60
	x := c * (1 - math.Abs(math.Mod(hp, 2)-1))
	var rf, gf, bf float64
	switch {
	case hp < 1:
		rf, gf, bf = c, x, 0
	case hp < 2:
		rf, gf, bf = x, c, 0
	case hp < 3:
		rf, gf, bf = 0, c, x
	case hp < 4:
		rf, gf, bf = 0, x, c
	case hp < 5:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	m := v - c
	return rf + m, gf + m, bf + m
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
