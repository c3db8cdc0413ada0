// Package trajectory converts per-frame camera-to-light offset vectors into
// ego positions anchored at the traffic light.
package trajectory

import (
	"errors"
	"fmt"
	"math"
)

// CameraVector is the offset from the camera to the traffic light measured
// in one frame, in camera coordinates (meters). Slice order is temporal and
// preserved through estimation.
type CameraVector struct {
	X float64
	Y float64
	Z float64
}

// EgoPosition is the camera's location in the light-anchored ground frame.
// Forward runs along the reference heading toward the light (negative while
// the vehicle is short of it), Lateral is the left-right offset from that
// line.
type EgoPosition struct {
	Forward float64
	Lateral float64
}

var (
	// ErrEmptyInput reports an estimation call with no vectors.
	ErrEmptyInput = errors.New("no camera vectors")

	// ErrDegenerateReference reports a first vector whose ground-plane
	// projection is (0, 0), which fixes no reference heading.
	ErrDegenerateReference = errors.New("degenerate reference vector")
)

// ReferenceHeading returns the ground-plane bearing of v, the angle the
// camera-to-light line makes with the camera X axis.
func ReferenceHeading(v CameraVector) (float64, error) {
	if v.X == 0 && v.Y == 0 {
		return 0, ErrDegenerateReference
	}
	return math.Atan2(v.Y, v.X), nil
}

// Estimate maps each camera-to-light vector to an ego position. The
// reference heading is taken once from the raw first vector; every vector
// is rotated by its negative so the first frame's line of sight becomes the
// forward axis, then negated to move the origin from the camera to the
// light. Element i depends only on vectors[i] and vectors[0]; there is no
// smoothing across frames. Z is carried for bookkeeping only and never
// enters the math.
func Estimate(vectors []CameraVector) ([]EgoPosition, error) {
	if len(vectors) == 0 {
		return nil, ErrEmptyInput
	}

	theta, err := ReferenceHeading(vectors[0])
	if err != nil {
		return nil, fmt.Errorf("reference frame from first vector: %w", err)
	}

	sinTheta, cosTheta := math.Sincos(theta)

	positions := make([]EgoPosition, len(vectors))
	for i, v := range vectors {
		// rotate by -theta to align the reference line with +X
		xRot := v.X*cosTheta + v.Y*sinTheta
		yRot := -v.X*sinTheta + v.Y*cosTheta

		// negate: camera->light becomes light->camera
		positions[i] = EgoPosition{Forward: -xRot, Lateral: -yRot}
	}
	return positions, nil
}
