// Package depthmap loads per-frame dense camera-space point grids and
// samples robust 3D offsets at detection pixels.
package depthmap

import "fmt"

// Point3 is a camera-space offset in meters. Z is the optical-axis depth;
// pixels with non-positive or non-finite Z carry no usable measurement.
type Point3 struct {
	X float64
	Y float64
	Z float64
}

// Map is a dense (H, W) grid of camera-space points, one per image pixel,
// stored row-major. U indexes columns, V indexes rows, matching image
// convention.
type Map struct {
	h   int
	w   int
	pts []Point3
}

// NewMap wraps pts as an h-by-w grid. The backing slice is retained, not
// copied.
func NewMap(h, w int, pts []Point3) (*Map, error) {
	if h <= 0 || w <= 0 {
		return nil, fmt.Errorf("depthmap: invalid grid size %dx%d", h, w)
	}
	if len(pts) != h*w {
		return nil, fmt.Errorf("depthmap: %d points for %dx%d grid (want %d)", len(pts), h, w, h*w)
	}
	return &Map{h: h, w: w, pts: pts}, nil
}

// Bounds returns the grid dimensions (rows, columns).
func (m *Map) Bounds() (h, w int) { return m.h, m.w }

// At returns the point at column u, row v. Callers must pass in-bounds
// indices; SampleMedian clamps before calling.
func (m *Map) At(u, v int) Point3 {
	return m.pts[v*m.w+u]
}
