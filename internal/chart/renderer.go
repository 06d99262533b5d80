// Package chart renders numeric series to line chart images.
package chart

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"

	"cpumon/internal/domain"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	yMin  = 0
	yMax  = 100
	yStep = 10
)

var gridColor = color.RGBA{R: 255, A: 255}

// Spec describes one chart. XTickStep places an x tick every XTickStep
// points; zero means one tick per point. The image format follows the
// extension of Path.
type Spec struct {
	Series    []float64
	Title     string
	XLabel    string
	YLabel    string
	Width     vg.Length
	Height    vg.Length
	Path      string
	XTickStep int
}

// Renderer builds a fresh plot for every call, so concurrent calls never share
// state.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render removes any existing file at spec.Path and writes the chart there.
func (r *Renderer) Render(ctx context.Context, spec Spec) error {
	if err := ctx.Err(); err != nil {
		return &domain.RenderError{Path: spec.Path, Err: err}
	}

	if err := r.render(spec); err != nil {
		return &domain.RenderError{Path: spec.Path, Err: err}
	}

	return nil
}

func (r *Renderer) render(spec Spec) error {
	if spec.Path == "" {
		return errors.New("empty output path")
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return fmt.Errorf("invalid size %vx%v", spec.Width, spec.Height)
	}

	if err := os.MkdirAll(filepath.Dir(spec.Path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.Remove(spec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale image: %w", err)
	}

	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel

	grid := plotter.NewGrid()
	for _, ls := range []*draw.LineStyle{&grid.Vertical, &grid.Horizontal} {
		ls.Color = gridColor
		ls.Width = vg.Points(0.5)
		ls.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	}
	p.Add(grid)

	if len(spec.Series) > 0 {
		line, err := plotter.NewLine(points(spec.Series))
		if err != nil {
			return fmt.Errorf("build line: %w", err)
		}
		p.Add(line)
	}

	p.X.Min = 0
	p.X.Max = float64(max(len(spec.Series)-1, 1))
	p.X.Tick.Marker = xTicks(len(spec.Series), spec.XTickStep)

	p.Y.Min = yMin
	p.Y.Max = yMax
	p.Y.Tick.Marker = yTicks()

	if err := p.Save(spec.Width, spec.Height, spec.Path); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	return nil
}

func points(series []float64) plotter.XYs {
	pts := make(plotter.XYs, len(series))
	for i, v := range series {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}

func xTicks(n, step int) plot.ConstantTicks {
	if step <= 0 {
		step = 1
	}

	ticks := make(plot.ConstantTicks, 0, n/step+1)
	for i := 0; i < n; i += step {
		ticks = append(ticks, plot.Tick{Value: float64(i), Label: strconv.Itoa(i)})
	}
	return ticks
}

func yTicks() plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, 0, (yMax-yMin)/yStep+1)
	for v := yMin; v <= yMax; v += yStep {
		ticks = append(ticks, plot.Tick{Value: float64(v), Label: strconv.Itoa(v)})
	}
	return ticks
}
