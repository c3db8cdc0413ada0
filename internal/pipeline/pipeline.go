// Package pipeline orchestrates a full estimation run: detections in, depth
// samples per frame, ego trajectory out.
//
// This package is the composition root: it wires detections, depthmap and
// trajectory together and owns the per-frame failure policy. A frame whose
// depth file is missing or whose patch holds no valid depth is skipped and
// recorded; corrupt inputs abort the run.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	"github.com/banshee-data/trajectory.report/internal/depthmap"
	"github.com/banshee-data/trajectory.report/internal/detections"
	"github.com/banshee-data/trajectory.report/internal/fsutil"
	"github.com/banshee-data/trajectory.report/internal/monitoring"
	"github.com/banshee-data/trajectory.report/internal/trajectory"
)

// DefaultDepthPattern matches the exporter's per-frame naming, e.g.
// depth000042.npz for frame 42.
const DefaultDepthPattern = "depth%06d.npz"

// Params configures a run.
type Params struct {
	// PatchRadius is the half-width of the depth sample window; radius 2
	// gives the 5x5 patch the depth exporter is calibrated for.
	PatchRadius int

	// TopBias positions the sample pixel within the box, 0 top edge to 1
	// bottom edge.
	TopBias float64

	// Workers bounds concurrent frame sampling. Values below 2 run
	// sequentially. Results are identical regardless of worker count.
	Workers int

	// DepthDir holds the per-frame NPZ files named by DepthPattern.
	DepthDir string

	// DepthPattern is the fmt pattern mapping a frame ID to its file name.
	DepthPattern string
}

// DefaultParams returns the standard run configuration.
func DefaultParams() Params {
	return Params{
		PatchRadius:  2,
		TopBias:      detections.DefaultTopBias,
		Workers:      1,
		DepthPattern: DefaultDepthPattern,
	}
}

// FrameSample is one frame's usable measurement.
type FrameSample struct {
	FrameID int
	Pixel   detections.Pixel
	Vector  trajectory.CameraVector
}

// Skip records a frame dropped from the run and why.
type Skip struct {
	FrameID int
	Reason  string
}

// Result is a completed run. Samples and Positions are index-aligned and
// ordered by frame ID.
type Result struct {
	Samples        []FrameSample
	Positions      []trajectory.EgoPosition
	Skipped        []Skip
	ReferenceTheta float64
}

// frameOutcome is the per-detection slot workers write into. Each index is
// owned by exactly one goroutine, so the slice needs no locking.
type frameOutcome struct {
	sample FrameSample
	used   bool
	skip   *Skip
	err    error
}

// Run samples depth at every detection's pixel and estimates the ego
// trajectory. Detections must already be cleaned and frame-ordered, as
// detections.Load returns them.
func Run(fsys fsutil.FileSystem, dets []detections.Detection, p Params) (*Result, error) {
	if len(dets) == 0 {
		return nil, fmt.Errorf("pipeline: no detections to process")
	}
	if p.PatchRadius < 0 {
		return nil, fmt.Errorf("pipeline: patch radius %d is negative", p.PatchRadius)
	}
	if math.IsNaN(p.TopBias) || p.TopBias < 0 || p.TopBias > 1 {
		return nil, fmt.Errorf("pipeline: top bias %v outside [0, 1]", p.TopBias)
	}
	if p.DepthDir == "" {
		return nil, fmt.Errorf("pipeline: depth directory not set")
	}
	pattern := p.DepthPattern
	if pattern == "" {
		pattern = DefaultDepthPattern
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(dets) {
		workers = len(dets)
	}

	outcomes := make([]frameOutcome, len(dets))

	// Resolve pixels and depth paths up front; missing files become skips
	// before any sampling work is queued.
	paths := make([]string, len(dets))
	pending := make([]int, 0, len(dets))
	for i, det := range dets {
		px, err := det.Box.Center(p.TopBias)
		if err != nil {
			return nil, fmt.Errorf("pipeline: frame %d: %w", det.FrameID, err)
		}
		outcomes[i].sample = FrameSample{FrameID: det.FrameID, Pixel: px}

		paths[i] = filepath.Join(p.DepthDir, fmt.Sprintf(pattern, det.FrameID))
		if !fsys.Exists(paths[i]) {
			monitoring.Logf("pipeline: skipping frame %d: depth file %s missing", det.FrameID, paths[i])
			outcomes[i].skip = &Skip{FrameID: det.FrameID, Reason: "depth file missing"}
			continue
		}
		pending = append(pending, i)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				sampleFrame(fsys, paths[i], p.PatchRadius, &outcomes[i])
			}
		}()
	}
	for _, i := range pending {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	result := &Result{
		Samples: make([]FrameSample, 0, len(dets)),
		Skipped: make([]Skip, 0),
	}
	for i := range outcomes {
		o := &outcomes[i]
		switch {
		case o.err != nil:
			return nil, fmt.Errorf("pipeline: frame %d: %w", o.sample.FrameID, o.err)
		case o.skip != nil:
			result.Skipped = append(result.Skipped, *o.skip)
		case o.used:
			result.Samples = append(result.Samples, o.sample)
		}
	}

	if len(result.Samples) == 0 {
		return nil, fmt.Errorf("pipeline: no frames processed (%d skipped)", len(result.Skipped))
	}

	vectors := make([]trajectory.CameraVector, len(result.Samples))
	for i, s := range result.Samples {
		vectors[i] = s.Vector
	}
	positions, err := trajectory.Estimate(vectors)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	result.Positions = positions

	// Estimate validated the first vector, so the heading cannot fail here.
	theta, err := trajectory.ReferenceHeading(vectors[0])
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	result.ReferenceTheta = theta

	return result, nil
}

// sampleFrame loads one frame's depth grid and samples it, writing the
// outcome into the caller-owned slot.
func sampleFrame(fsys fsutil.FileSystem, path string, radius int, out *frameOutcome) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		out.err = fmt.Errorf("read %s: %w", path, err)
		return
	}
	m, err := depthmap.ParseNPZ(data)
	if err != nil {
		out.err = fmt.Errorf("%w (file %s)", err, path)
		return
	}

	px := out.sample.Pixel
	pt, err := depthmap.SampleMedian(m, px.U, px.V, radius)
	if err != nil {
		if errors.Is(err, depthmap.ErrNoValidDepth) {
			monitoring.Logf("pipeline: skipping frame %d: %v", out.sample.FrameID, err)
			out.skip = &Skip{FrameID: out.sample.FrameID, Reason: "no valid depth in patch"}
			return
		}
		out.err = err
		return
	}

	out.sample.Vector = trajectory.CameraVector{X: pt.X, Y: pt.Y, Z: pt.Z}
	out.used = true
}
