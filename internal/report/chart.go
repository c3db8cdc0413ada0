package report

import (
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/trajectory.report/internal/db"
	"github.com/banshee-data/trajectory.report/internal/fsutil"
	"github.com/banshee-data/trajectory.report/internal/units"
)

// viridis color stops for the sequence ramp, darkest = earliest frame.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// TrajectoryChart builds an interactive bird's-eye-view scatter of a
// recorded run. Points carry their sequence index in dimension 2 so the
// visual map colours the path in driving order; the traffic light is its
// own series pinned at the origin.
func TrajectoryChart(run *db.Run, positions []db.Position) (*charts.Scatter, error) {
	if run == nil {
		return nil, fmt.Errorf("report: nil run")
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("report: run %s has no positions to chart", run.RunID)
	}

	data := make([]opts.ScatterData, 0, len(positions))
	maxAbs := 0.0
	maxSeq := float64(0)
	for _, pos := range positions {
		if math.Abs(pos.Forward) > maxAbs {
			maxAbs = math.Abs(pos.Forward)
		}
		if math.Abs(pos.Lateral) > maxAbs {
			maxAbs = math.Abs(pos.Lateral)
		}
		seq := float64(pos.Seq)
		if seq > maxSeq {
			maxSeq = seq
		}
		data = append(data, opts.ScatterData{Value: []interface{}{pos.Forward, pos.Lateral, seq}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	if maxSeq == 0 {
		maxSeq = 1
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ego Trajectory (BEV)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ego Trajectory", Subtitle: fmt.Sprintf("run=%s dataset=%s frames=%d/%d skipped=%d", run.RunID, run.Dataset, run.FramesUsed, run.FramesTotal, run.FramesSkipped)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: units.AxisLabel("Forward", units.Meters), NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: units.AxisLabel("Lateral", units.Meters), NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSeq),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)

	scatter.AddSeries("trajectory", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	// the light's value has no dimension 2 on purpose: the visual map leaves
	// it out-of-range so it keeps a neutral colour distinct from the path
	scatter.AddSeries("light", []opts.ScatterData{{Value: []interface{}{0.0, 0.0}}},
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))

	return scatter, nil
}

// RenderHTML writes the run's trajectory chart page to w.
func RenderHTML(w io.Writer, run *db.Run, positions []db.Position) error {
	scatter, err := TrajectoryChart(run, positions)
	if err != nil {
		return err
	}
	return scatter.Render(w)
}

// WriteHTMLFile renders the run's trajectory chart to an HTML file,
// creating parent directories as needed.
func WriteHTMLFile(fsys fsutil.FileSystem, path string, run *db.Run, positions []db.Position) error {
	scatter, err := TrajectoryChart(run, positions)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("report: create output dir %s: %w", dir, err)
		}
	}

	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := scatter.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("report: render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	return nil
}
