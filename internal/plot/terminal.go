// Package plot draws run histories, spectra and convergence studies, either
// as terminal graphs or as image files.
package plot

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/vivsim/internal/analysis"
	"github.com/san-kum/vivsim/internal/automation"
	"github.com/san-kum/vivsim/internal/viv"
)

// Captions label the history columns.
var Captions = map[string]string{
	"p":      "p (drag wake variable)",
	"q":      "q (lift wake variable)",
	"disp_x": "in-line displacement / De",
	"disp_y": "cross-flow displacement / De",
}

type TermOptions struct {
	Width  int
	Height int
}

func (o TermOptions) withDefaults() TermOptions {
	if o.Width <= 0 {
		o.Width = 80
	}
	if o.Height <= 0 {
		o.Height = 10
	}
	return o
}

// Series draws one history column versus step.
func Series(h *viv.TimeHistory, name string, o TermOptions) (string, error) {
	data, ok := h.Series(name)
	if !ok {
		return "", fmt.Errorf("unknown series %q", name)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("series %q is empty", name)
	}
	o = o.withDefaults()
	caption := Captions[name]
	if caption == "" {
		caption = name
	}
	return asciigraph.Plot(data,
		asciigraph.Height(o.Height),
		asciigraph.Width(o.Width),
		asciigraph.Caption(caption),
	), nil
}

// History draws every non-time column.
func History(h *viv.TimeHistory, o TermOptions) (string, error) {
	var sb strings.Builder
	for _, name := range viv.Columns()[1:] {
		g, err := Series(h, name, o)
		if err != nil {
			return "", err
		}
		sb.WriteString(g)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// Spectrum draws the power spectrum of a series up to maxFreq Hz.
func Spectrum(data []float64, dt, maxFreq float64, caption string, o TermOptions) (string, error) {
	freqs, power := analysis.PowerSpectrum(data, dt)
	if len(power) < 2 {
		return "", analysis.ErrShortSeries
	}
	n := len(power)
	if maxFreq > 0 {
		for n > 2 && freqs[n-1] > maxFreq {
			n--
		}
	}
	o = o.withDefaults()
	return asciigraph.Plot(power[:n],
		asciigraph.Height(o.Height),
		asciigraph.Width(o.Width),
		asciigraph.Caption(fmt.Sprintf("%s (0 to %.3g Hz)", caption, freqs[n-1])),
	), nil
}

// Convergence draws the midspan deflection of every NLGEOM setting against
// the case index, with the linear reference.
func Convergence(cases []automation.Case, o TermOptions) (string, error) {
	off, on, ref := convergenceSeries(cases)
	if len(off) == 0 && len(on) == 0 {
		return "", fmt.Errorf("no convergence cases")
	}
	var series [][]float64
	var colors []asciigraph.AnsiColor
	for _, s := range []struct {
		ys    []float64
		color asciigraph.AnsiColor
	}{
		{ys(off), asciigraph.Blue},
		{ys(on), asciigraph.Green},
		{ys(ref), asciigraph.Red},
	} {
		if len(s.ys) > 0 {
			series = append(series, s.ys)
			colors = append(colors, s.color)
		}
	}
	o = o.withDefaults()
	return asciigraph.PlotMany(series,
		asciigraph.Height(o.Height),
		asciigraph.Width(o.Width),
		asciigraph.SeriesColors(colors...),
		asciigraph.Caption("midspan UY per mesh: NLGEOM OFF (blue), ON (green), linear (red)"),
	), nil
}

type xy struct{ x, y float64 }

// convergenceSeries splits the cases by NLGEOM, ordered as given.
func convergenceSeries(cases []automation.Case) (off, on, ref []xy) {
	seen := map[int]bool{}
	for _, c := range cases {
		p := xy{float64(c.Elements), c.Center.UY}
		if c.NLGeom {
			on = append(on, p)
		} else {
			off = append(off, p)
		}
		if !seen[c.Elements] {
			seen[c.Elements] = true
			ref = append(ref, xy{float64(c.Elements), c.Analytical})
		}
	}
	return off, on, ref
}

func ys(pts []xy) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.y
	}
	return out
}
