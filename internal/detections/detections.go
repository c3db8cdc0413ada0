// Package detections loads per-frame traffic light bounding boxes from the
// detector's CSV export and derives the sample pixel for each frame.
package detections

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/trajectory.report/internal/monitoring"
)

// DefaultTopBias places the sample pixel at the geometric center of the box.
// Values below 0.5 bias toward the top edge, which helps when the lamp
// housing's upper half is the part most reliably inside the box.
const DefaultTopBias = 0.5

// BoundingBox is a pixel-space detection box. Edges follow image convention:
// x grows rightward (columns), y grows downward (rows).
type BoundingBox struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// Detection is one frame's traffic light box.
type Detection struct {
	FrameID int
	Box     BoundingBox
}

// Pixel is a real-valued image location: U along columns, V along rows.
type Pixel struct {
	U float64
	V float64
}

// Width returns the horizontal extent of the box.
func (b BoundingBox) Width() float64 { return b.XMax - b.XMin }

// Height returns the vertical extent of the box.
func (b BoundingBox) Height() float64 { return b.YMax - b.YMin }

// Center returns the pixel to sample depth at. U is the horizontal midpoint;
// V sits topBias of the way down from the top edge, so 0 is the top edge,
// 0.5 the geometric center, 1 the bottom edge.
func (b BoundingBox) Center(topBias float64) (Pixel, error) {
	if math.IsNaN(topBias) || topBias < 0 || topBias > 1 {
		return Pixel{}, fmt.Errorf("top bias %v outside [0, 1]", topBias)
	}
	return Pixel{
		U: (b.XMin + b.XMax) / 2,
		V: b.YMin + topBias*b.Height(),
	}, nil
}

// requiredColumns are the CSV columns the loader needs. Extra columns and
// arbitrary column order are tolerated.
var requiredColumns = []string{"frame_id", "x_min", "y_min", "x_max", "y_max"}

// Load parses detection rows from r and applies the cleaning rules:
// unparseable rows and all-zero boxes are dropped, inverted boxes are
// repaired by swapping edges, degenerate boxes are dropped, duplicate frame
// IDs keep the last occurrence, and the result is sorted by frame ID.
func Load(r io.Reader) ([]Detection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("detections: empty CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("detections: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("detections: missing required column(s): %s", strings.Join(missing, ", "))
	}

	var (
		dropped    int
		empty      int
		degenerate int
		repaired   int
	)

	byFrame := make(map[int]Detection)
	order := make([]int, 0, 64)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("detections: read row: %w", err)
		}

		frameID, ok := parseFrameID(field(rec, cols["frame_id"]))
		if !ok {
			dropped++
			continue
		}
		box := BoundingBox{}
		vals := [4]*float64{&box.XMin, &box.YMin, &box.XMax, &box.YMax}
		names := [4]string{"x_min", "y_min", "x_max", "y_max"}
		bad := false
		for i, dst := range vals {
			v, err := strconv.ParseFloat(field(rec, cols[names[i]]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				bad = true
				break
			}
			*dst = v
		}
		if bad {
			dropped++
			continue
		}

		// all-zero rows are the detector's "no detection this frame" marker
		if box.XMin == 0 && box.YMin == 0 && box.XMax == 0 && box.YMax == 0 {
			empty++
			continue
		}

		if box.XMax < box.XMin {
			box.XMin, box.XMax = box.XMax, box.XMin
			repaired++
		}
		if box.YMax < box.YMin {
			box.YMin, box.YMax = box.YMax, box.YMin
			repaired++
		}
		if box.Width() <= 0 || box.Height() <= 0 {
			degenerate++
			continue
		}

		if _, seen := byFrame[frameID]; !seen {
			order = append(order, frameID)
		}
		byFrame[frameID] = Detection{FrameID: frameID, Box: box}
	}

	if dropped+empty+degenerate+repaired > 0 {
		monitoring.Logf("detections: dropped %d unparseable, %d empty, %d degenerate rows; repaired %d inverted edges",
			dropped, empty, degenerate, repaired)
	}

	if len(byFrame) == 0 {
		return nil, fmt.Errorf("detections: no usable rows after cleaning")
	}

	sort.Ints(order)
	out := make([]Detection, 0, len(order))
	for _, id := range order {
		out = append(out, byFrame[id])
	}
	return out, nil
}

// LoadFile opens and parses the named detection CSV.
func LoadFile(path string) ([]Detection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("detections: %w", err)
	}
	defer f.Close()

	dets, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return dets, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseFrameID accepts integer frame IDs, including float-formatted ones
// ("12.0") that some exporters emit.
func parseFrameID(s string) (int, bool) {
	if id, err := strconv.Atoi(s); err == nil {
		return id, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}
