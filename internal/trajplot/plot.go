// Package trajplot renders estimated ego trajectories as bird's-eye-view
// plots: a static PNG and an optional animated GIF.
package trajplot

import (
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/trajectory.report/internal/fsutil"
	"github.com/banshee-data/trajectory.report/internal/trajectory"
	"github.com/banshee-data/trajectory.report/internal/units"
)

// Style controls labels and units on rendered plots.
type Style struct {
	Units string
	Title string
}

// DefaultStyle renders in meters under the standard title.
func DefaultStyle() Style {
	return Style{Units: units.Meters, Title: "Ego Trajectory (BEV)"}
}

var (
	pathColor  = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	startColor = color.RGBA{R: 0, G: 128, B: 0, A: 255}
	endColor   = color.RGBA{R: 220, G: 20, B: 60, A: 255}
	lightColor = color.RGBA{R: 255, G: 140, B: 0, A: 255}
)

// SavePNG renders the trajectory to a square PNG at path, creating parent
// directories as needed.
func SavePNG(fsys fsutil.FileSystem, positions []trajectory.EgoPosition, path string, style Style) error {
	xys, err := toXYs(positions, style.Units)
	if err != nil {
		return err
	}

	p, err := newTrajectoryPlot(xys, style, computeRange(xys))
	if err != nil {
		return err
	}

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("trajplot: render png: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("trajplot: create output dir: %w", err)
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("trajplot: %w", err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("trajplot: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("trajplot: close %s: %w", path, err)
	}
	return nil
}

// toXYs converts positions into plot points in display units.
func toXYs(positions []trajectory.EgoPosition, unit string) (plotter.XYs, error) {
	if len(positions) == 0 {
		return nil, fmt.Errorf("trajplot: no positions to plot")
	}
	xys := make(plotter.XYs, len(positions))
	for i, pos := range positions {
		xys[i] = plotter.XY{
			X: units.ConvertDistance(pos.Forward, unit),
			Y: units.ConvertDistance(pos.Lateral, unit),
		}
	}
	return xys, nil
}

// axisRange is the fixed window rendered by every frame of a plot. Keeping
// both axes the same span preserves the equal-aspect read of the geometry.
type axisRange struct {
	xmin, xmax float64
	ymin, ymax float64
}

// computeRange finds the square window containing the full path and the
// light origin, with 10% padding.
func computeRange(xys plotter.XYs) axisRange {
	xs := make([]float64, 0, len(xys)+1)
	ys := make([]float64, 0, len(xys)+1)
	for _, xy := range xys {
		xs = append(xs, xy.X)
		ys = append(ys, xy.Y)
	}
	// the light sits at the origin and must stay in frame
	xs = append(xs, 0)
	ys = append(ys, 0)

	xmin, xmax := floats.Min(xs), floats.Max(xs)
	ymin, ymax := floats.Min(ys), floats.Max(ys)

	span := xmax - xmin
	if ySpan := ymax - ymin; ySpan > span {
		span = ySpan
	}
	pad := 0.1 * span
	if pad < 1 {
		pad = 1
	}
	half := span/2 + pad

	cx := (xmin + xmax) / 2
	cy := (ymin + ymax) / 2
	return axisRange{
		xmin: cx - half, xmax: cx + half,
		ymin: cy - half, ymax: cy + half,
	}
}

// newTrajectoryPlot assembles the BEV figure: path polyline, start and end
// markers, the light at the origin, grid and legend.
func newTrajectoryPlot(xys plotter.XYs, style Style, rng axisRange) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = style.Title
	p.X.Label.Text = units.AxisLabel("Forward", style.Units)
	p.Y.Label.Text = units.AxisLabel("Lateral", style.Units)
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(xys)
	if err != nil {
		return nil, fmt.Errorf("trajplot: path line: %w", err)
	}
	line.Color = pathColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("path", line)

	start, err := marker(xys[0], vgdraw.CrossGlyph{}, startColor, 5)
	if err != nil {
		return nil, err
	}
	p.Add(start)
	p.Legend.Add("start", start)

	end, err := marker(xys[len(xys)-1], vgdraw.CircleGlyph{}, endColor, 4)
	if err != nil {
		return nil, err
	}
	p.Add(end)
	p.Legend.Add("end", end)

	light, err := marker(plotter.XY{X: 0, Y: 0}, vgdraw.PlusGlyph{}, lightColor, 6)
	if err != nil {
		return nil, err
	}
	p.Add(light)
	p.Legend.Add("traffic light", light)

	p.X.Min, p.X.Max = rng.xmin, rng.xmax
	p.Y.Min, p.Y.Max = rng.ymin, rng.ymax

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	return p, nil
}

func marker(xy plotter.XY, shape vgdraw.GlyphDrawer, c color.Color, radius float64) (*plotter.Scatter, error) {
	s, err := plotter.NewScatter(plotter.XYs{xy})
	if err != nil {
		return nil, fmt.Errorf("trajplot: marker: %w", err)
	}
	s.GlyphStyle.Shape = shape
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = vg.Points(radius)
	return s, nil
}
