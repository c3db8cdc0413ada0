package trajplot

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"path/filepath"

	"gonum.org/v1/plot/vg"
	vgdraw "gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/trajectory.report/internal/fsutil"
	"github.com/banshee-data/trajectory.report/internal/trajectory"
)

// SaveGIF renders the trajectory as an animated GIF at path, one frame per
// position, each frame drawing the path prefix up to that position. All
// frames share the axis window of the complete path so the viewport never
// jumps.
func SaveGIF(fsys fsutil.FileSystem, positions []trajectory.EgoPosition, path string, fps int, style Style) error {
	if fps < 1 {
		return fmt.Errorf("trajplot: fps %d, want >= 1", fps)
	}

	xys, err := toXYs(positions, style.Units)
	if err != nil {
		return err
	}
	rng := computeRange(xys)

	delay := 100 / fps // gif delays are in 100ths of a second
	if delay < 1 {
		delay = 1
	}

	anim := &gif.GIF{LoopCount: 0}
	for i := 1; i <= len(xys); i++ {
		p, err := newTrajectoryPlot(xys[:i], style, rng)
		if err != nil {
			return err
		}

		canvas := vgimg.New(5*vg.Inch, 5*vg.Inch)
		p.Draw(vgdraw.New(canvas))
		img := canvas.Image()

		frame := image.NewPaletted(img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(frame, img.Bounds(), img, image.Point{})

		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delay)
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
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("trajplot: encode gif %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("trajplot: close %s: %w", path, err)
	}
	return nil
}
