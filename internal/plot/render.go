// Package plot renders metric series to PNG line charts.
package plot

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/user/wandbplot/internal/series"
)

// Line is one plotted series. When Smoothed is set the raw points are drawn
// faintly underneath it.
type Line struct {
	Label    string
	Raw      []series.Point
	Smoothed []series.Point
}

// Options control the rendered chart.
type Options struct {
	Title        string
	XLabel       string
	YLabel       string
	WidthInches  float64
	HeightInches float64
	DPI          int
}

const rawAlpha = 77 // ~30% opacity for the unsmoothed line

// Render draws the lines into a PNG at path using an atomic write
// (temp file + rename). Lines without points are skipped; rendering fails
// only when no line has any points.
func Render(path string, lines []Line, opts Options) error {
	if opts.WidthInches <= 0 {
		opts.WidthInches = 10
	}
	if opts.HeightInches <= 0 {
		opts.HeightInches = 6
	}
	if opts.DPI <= 0 {
		opts.DPI = 150
	}

	p := gplot.New()
	p.Title.Text = opts.Title
	p.X.Label.Text = opts.XLabel
	p.Y.Label.Text = opts.YLabel
	p.Add(plotter.NewGrid())

	var values []float64
	drawn := 0
	for i, line := range lines {
		if len(line.Raw) == 0 {
			continue
		}
		base := plotutil.Color(i)

		display := line.Raw
		if len(line.Smoothed) > 0 {
			raw, err := plotter.NewLine(toXYs(line.Raw))
			if err != nil {
				return fmt.Errorf("build raw line: %w", err)
			}
			raw.LineStyle.Width = vg.Points(1)
			raw.LineStyle.Color = faint(base)
			p.Add(raw)
			display = line.Smoothed
		}

		l, err := plotter.NewLine(toXYs(display))
		if err != nil {
			return fmt.Errorf("build line: %w", err)
		}
		l.LineStyle.Width = vg.Points(2)
		l.LineStyle.Color = base
		p.Add(l)
		if line.Label != "" {
			p.Legend.Add(line.Label, l)
		}

		for _, pt := range line.Raw {
			values = append(values, pt.Value)
		}
		drawn++
	}
	if drawn == 0 {
		return fmt.Errorf("no data points to plot")
	}
	p.Legend.Top = true

	applyAxisHeuristics(p, opts.YLabel, values)

	return save(p, path, opts)
}

// applyAxisHeuristics mirrors the dashboard conventions: loss-like metrics
// spanning more than an order of magnitude use a log y-axis, accuracy-like
// metrics bounded by [0, 1] get a fixed [-0.05, 1.05] viewport.
func applyAxisHeuristics(p *gplot.Plot, metric string, values []float64) {
	name := strings.ToLower(metric)
	switch {
	case strings.Contains(name, "loss"):
		min, max, ok := positiveRange(values)
		if ok && max/min > 10 {
			p.Y.Scale = gplot.LogScale{}
			p.Y.Tick.Marker = gplot.LogTicks{Prec: -1}
			p.Y.Label.Text = metric + " (log scale)"
		}
	case strings.Contains(name, "acc"):
		if inUnitRange(values) {
			p.Y.Min = -0.05
			p.Y.Max = 1.05
		}
	}
}

func positiveRange(values []float64) (min, max float64, ok bool) {
	for _, v := range values {
		if v <= 0 {
			continue
		}
		if !ok || v < min {
			min = v
		}
		if !ok || v > max {
			max = v
		}
		ok = true
	}
	return min, max, ok
}

func inUnitRange(values []float64) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}

func toXYs(points []series.Point) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, p := range points {
		xys[i].X = p.Step
		xys[i].Y = p.Value
	}
	return xys
}

func faint(c color.Color) color.Color {
	r, g, b, _ := c.RGBA()
	return color.NRGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: rawAlpha}
}

func save(p *gplot.Plot, path string, opts Options) error {
	img := vgimg.NewWith(
		vgimg.UseWH(vg.Length(opts.WidthInches)*vg.Inch, vg.Length(opts.HeightInches)*vg.Inch),
		vgimg.UseDPI(opts.DPI),
	)
	p.Draw(draw.New(img))

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create plot file: %w", err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write plot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close plot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename plot file: %w", err)
	}
	return nil
}
