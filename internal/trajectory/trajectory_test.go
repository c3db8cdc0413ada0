package trajectory

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

// TestEstimate_StraightAhead covers the simplest geometry: the light dead
// ahead on the camera X axis.
func TestEstimate_StraightAhead(t *testing.T) {
	t.Parallel()

	positions, err := Estimate([]CameraVector{{X: 10, Y: 0, Z: 5}})
	require.NoError(t, err)
	require.Len(t, positions, 1)

	assert.InDelta(t, -10, positions[0].Forward, tolerance)
	assert.InDelta(t, 0, positions[0].Lateral, tolerance)
}

// TestEstimate_RotationInvariance: the reference rotation must make the
// first frame's bearing the forward axis regardless of where the light sat
// in camera coordinates.
func TestEstimate_RotationInvariance(t *testing.T) {
	t.Parallel()

	t.Run("light on +Y axis", func(t *testing.T) {
		t.Parallel()
		positions, err := Estimate([]CameraVector{
			{X: 0, Y: 10, Z: 3},
			{X: 0, Y: 10, Z: 3},
		})
		require.NoError(t, err)
		require.Len(t, positions, 2)

		for i, p := range positions {
			assert.InDelta(t, -10, p.Forward, tolerance, "frame %d forward", i)
			assert.InDelta(t, 0, p.Lateral, tolerance, "frame %d lateral", i)
		}
	})

	t.Run("arbitrary bearing keeps range", func(t *testing.T) {
		t.Parallel()
		v := CameraVector{X: 3, Y: -4, Z: 1}
		positions, err := Estimate([]CameraVector{v})
		require.NoError(t, err)

		// Rotation preserves norm: first position is always (-range, 0).
		assert.InDelta(t, -5, positions[0].Forward, tolerance)
		assert.InDelta(t, 0, positions[0].Lateral, tolerance)
	})
}

// TestEstimate_MonotonicApproach: a vehicle closing on the light yields
// strictly increasing forward values (toward zero) and stable lateral ones.
func TestEstimate_MonotonicApproach(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		vectors []CameraVector
	}{
		{
			name: "head on",
			vectors: []CameraVector{
				{X: 20, Y: 0, Z: 6},
				{X: 15, Y: 0, Z: 6},
				{X: 10, Y: 0, Z: 6},
				{X: 5, Y: 0, Z: 6},
			},
		},
		{
			// Same approach seen through a camera mounted at a fixed yaw:
			// every vector lies along the bearing atan2(3, 4).
			name: "fixed non-zero bearing",
			vectors: []CameraVector{
				{X: 20, Y: 15, Z: 6},
				{X: 16, Y: 12, Z: 6},
				{X: 12, Y: 9, Z: 6},
				{X: 8, Y: 6, Z: 6},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			positions, err := Estimate(tt.vectors)
			require.NoError(t, err)
			require.Len(t, positions, len(tt.vectors))

			for i := 1; i < len(positions); i++ {
				assert.Greater(t, positions[i].Forward, positions[i-1].Forward,
					"forward must increase toward the light between frames %d and %d", i-1, i)
			}
			for i, p := range positions {
				assert.InDelta(t, 0, p.Lateral, tolerance, "frame %d lateral", i)
			}
		})
	}
}

// TestEstimate_LateralOffset: motion perpendicular to the reference line
// lands in the lateral component with the camera->light negation applied.
func TestEstimate_LateralOffset(t *testing.T) {
	t.Parallel()

	positions, err := Estimate([]CameraVector{
		{X: 10, Y: 0, Z: 5},
		{X: 10, Y: 2, Z: 5},
	})
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.InDelta(t, -10, positions[1].Forward, tolerance)
	assert.InDelta(t, -2, positions[1].Lateral, tolerance)
}

func TestEstimate_PerElementIndependence(t *testing.T) {
	t.Parallel()

	vectors := []CameraVector{
		{X: 12, Y: 3, Z: 4},
		{X: 9, Y: 2, Z: 4},
		{X: 6, Y: 1, Z: 4},
	}
	full, err := Estimate(vectors)
	require.NoError(t, err)

	// Dropping a middle frame must not change any other frame's position.
	partial, err := Estimate([]CameraVector{vectors[0], vectors[2]})
	require.NoError(t, err)

	assert.InDelta(t, full[0].Forward, partial[0].Forward, tolerance)
	assert.InDelta(t, full[0].Lateral, partial[0].Lateral, tolerance)
	assert.InDelta(t, full[2].Forward, partial[1].Forward, tolerance)
	assert.InDelta(t, full[2].Lateral, partial[1].Lateral, tolerance)
}

func TestEstimate_ZNeverUsed(t *testing.T) {
	t.Parallel()

	a, err := Estimate([]CameraVector{{X: 8, Y: 6, Z: 0}, {X: 4, Y: 3, Z: 100}})
	require.NoError(t, err)
	b, err := Estimate([]CameraVector{{X: 8, Y: 6, Z: -7}, {X: 4, Y: 3, Z: math.Pi}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEstimate_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty input", func(t *testing.T) {
		t.Parallel()
		_, err := Estimate(nil)
		require.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("degenerate first vector", func(t *testing.T) {
		t.Parallel()
		_, err := Estimate([]CameraVector{
			{X: 0, Y: 0, Z: 12},
			{X: 10, Y: 0, Z: 12},
		})
		require.ErrorIs(t, err, ErrDegenerateReference)
	})

	t.Run("degenerate later vector is fine", func(t *testing.T) {
		t.Parallel()
		positions, err := Estimate([]CameraVector{
			{X: 10, Y: 0, Z: 12},
			{X: 0, Y: 0, Z: 12},
		})
		require.NoError(t, err)
		require.Len(t, positions, 2)
		assert.InDelta(t, 0, positions[1].Forward, tolerance)
		assert.InDelta(t, 0, positions[1].Lateral, tolerance)
	})
}

func TestReferenceHeading(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		v    CameraVector
		want float64
	}{
		{"along +X", CameraVector{X: 5, Y: 0}, 0},
		{"along +Y", CameraVector{X: 0, Y: 5}, math.Pi / 2},
		{"along -X", CameraVector{X: -5, Y: 0}, math.Pi},
		{"diagonal", CameraVector{X: 1, Y: 1}, math.Pi / 4},
		{"z ignored", CameraVector{X: 5, Y: 0, Z: 99}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ReferenceHeading(tt.v)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tolerance)
		})
	}

	t.Run("degenerate", func(t *testing.T) {
		t.Parallel()
		_, err := ReferenceHeading(CameraVector{X: 0, Y: 0, Z: 3})
		require.ErrorIs(t, err, ErrDegenerateReference)
	})
}
