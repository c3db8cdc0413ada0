package depthmap

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrNoValidDepth reports that every pixel in a sample window was invalid
// (non-finite coordinates or non-positive depth). Callers decide whether to
// skip the frame or abort; no fallback value is ever fabricated.
var ErrNoValidDepth = errors.New("no valid depth in sample window")

// SampleMedian returns the per-axis median of the valid points in the
// (2*radius+1)-square window centered on pixel (u, v).
//
// The real-valued pixel is rounded to the nearest grid cell and clamped to
// the map bounds; windows are clipped at the borders, so a corner sample
// still sees its in-bounds quadrant. A pixel is valid when X, Y and Z are
// all finite and Z > 0. Medians are taken independently per axis, averaging
// the two middle values for even counts.
func SampleMedian(m *Map, u, v float64, radius int) (Point3, error) {
	if radius < 0 {
		return Point3{}, fmt.Errorf("depthmap: patch radius %d is negative", radius)
	}
	if m == nil || len(m.pts) == 0 {
		return Point3{}, fmt.Errorf("depthmap: sample of empty map")
	}
	if !isFinite(u) || !isFinite(v) {
		return Point3{}, fmt.Errorf("depthmap: non-finite sample pixel (%v, %v)", u, v)
	}

	ui := clamp(int(math.Round(u)), 0, m.w-1)
	vi := clamp(int(math.Round(v)), 0, m.h-1)

	u0, u1 := clamp(ui-radius, 0, m.w-1), clamp(ui+radius, 0, m.w-1)
	v0, v1 := clamp(vi-radius, 0, m.h-1), clamp(vi+radius, 0, m.h-1)

	capacity := (u1 - u0 + 1) * (v1 - v0 + 1)
	xs := make([]float64, 0, capacity)
	ys := make([]float64, 0, capacity)
	zs := make([]float64, 0, capacity)

	for row := v0; row <= v1; row++ {
		for col := u0; col <= u1; col++ {
			p := m.At(col, row)
			if !isFinite(p.X) || !isFinite(p.Y) || !isFinite(p.Z) || p.Z <= 0 {
				continue
			}
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			zs = append(zs, p.Z)
		}
	}

	if len(xs) == 0 {
		return Point3{}, fmt.Errorf("pixel (%d, %d) radius %d: %w", ui, vi, radius, ErrNoValidDepth)
	}

	return Point3{X: median(xs), Y: median(ys), Z: median(zs)}, nil
}

// median computes the median of a float64 slice. The slice is sorted in
// place; SampleMedian only passes freshly collected values.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)

	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
