package plot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/vivsim/internal/analysis"
	"github.com/san-kum/vivsim/internal/automation"
	"github.com/san-kum/vivsim/internal/viv"
)

const (
	defaultWidth  = 8 * vg.Inch
	defaultHeight = 5 * vg.Inch
)

func newPlot(title, xlabel, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.TextStyle.Font.Size = vg.Points(12)
	p.Y.Label.TextStyle.Font.Size = vg.Points(12)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func line(p *plot.Plot, i int, name string, xs, ys []float64) error {
	pts := make(plotter.XYs, min(len(xs), len(ys)))
	for k := range pts {
		pts[k].X, pts[k].Y = xs[k], ys[k]
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.LineStyle.Width = vg.Points(1.5)
	l.LineStyle.Color = plotutil.Color(i)
	p.Add(l)
	if name != "" {
		p.Legend.Add(name, l)
	}
	return nil
}

// HistoryPlot plots the named columns against time.
func HistoryPlot(h *viv.TimeHistory, title string, names ...string) (*plot.Plot, error) {
	if len(names) == 0 {
		names = viv.Columns()[1:]
	}
	t, _ := h.Series("time")
	if len(t) == 0 {
		return nil, fmt.Errorf("empty history")
	}
	p := newPlot(title, "time (s)", "")
	for i, name := range names {
		data, ok := h.Series(name)
		if !ok {
			return nil, fmt.Errorf("unknown series %q", name)
		}
		if err := line(p, i, name, t, data); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SpectrumPlot plots the power spectrum of a column.
func SpectrumPlot(h *viv.TimeHistory, name string, dt float64) (*plot.Plot, error) {
	data, ok := h.Series(name)
	if !ok {
		return nil, fmt.Errorf("unknown series %q", name)
	}
	freqs, power := analysis.PowerSpectrum(data, dt)
	if len(power) < 2 {
		return nil, analysis.ErrShortSeries
	}
	p := newPlot("power spectrum of "+name, "frequency (Hz)", "power")
	if err := line(p, 0, "", freqs, power); err != nil {
		return nil, err
	}
	return p, nil
}

// OrbitPlot plots the cross-flow against the in-line displacement.
func OrbitPlot(h *viv.TimeHistory) (*plot.Plot, error) {
	x, _ := h.Series("disp_x")
	y, _ := h.Series("disp_y")
	if len(x) == 0 {
		return nil, fmt.Errorf("empty history")
	}
	p := newPlot("orbit of the monitored node", "x / De", "y / De")
	if err := line(p, 0, "", x, y); err != nil {
		return nil, err
	}
	return p, nil
}

// ConvergencePlot plots the midspan deflection against the element count
// for each NLGEOM setting, with the linear reference as a dashed line.
func ConvergencePlot(cases []automation.Case) (*plot.Plot, error) {
	off, on, ref := convergenceSeries(cases)
	if len(ref) == 0 {
		return nil, fmt.Errorf("no convergence cases")
	}
	p := newPlot("midspan UY convergence", "elements", "UY (m)")
	for i, s := range []struct {
		name string
		pts  []xy
	}{
		{"NLGEOM OFF", off},
		{"NLGEOM ON", on},
	} {
		if len(s.pts) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.pts))
		for k, pt := range s.pts {
			xys[k].X, xys[k].Y = pt.x, pt.y
		}
		l, sc, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, err
		}
		l.Color = plotutil.Color(i)
		sc.Color = plotutil.Color(i)
		sc.Shape = plotutil.Shape(i)
		p.Add(l, sc)
		p.Legend.Add(s.name, l, sc)
	}

	d := ref[0].y
	fn := plotter.NewFunction(func(float64) float64 { return d })
	fn.Color = plotutil.Color(2)
	fn.Dashes = plotutil.Dashes(1)
	p.Add(fn)
	p.Legend.Add(fmt.Sprintf("linear (%.3g m)", d), fn)
	return p, nil
}

// Save writes p to path; the format follows the extension (png, svg, pdf
// or eps).
func Save(p *plot.Plot, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return p.Save(defaultWidth, defaultHeight, path)
}

// Write encodes p in the given format.
func Write(w io.Writer, p *plot.Plot, format string) error {
	wt, err := p.WriterTo(defaultWidth, defaultHeight, strings.ToLower(format))
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
