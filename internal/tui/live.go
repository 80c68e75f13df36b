// Package tui shows a coupled run live in the terminal. The loop runs in
// its own goroutine and sends every committed step to the bubbletea
// program.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/vivsim/internal/analysis"
	"github.com/san-kum/vivsim/internal/viv"
)

const (
	historyWindow = 240
	trailLength   = 60
)

// Info describes the run being shown.
type Info struct {
	Name      string
	Backend   string
	Planned   int
	Dt        float64
	Diameter  float64
	Frequency float64
}

// StepMsg carries one committed step.
type StepMsg viv.Record

// DoneMsg ends the run.
type DoneMsg struct{ Err error }

type model struct {
	info   Info
	cancel context.CancelFunc

	last   viv.Record
	steps  int
	dispY  []float64
	q      []float64
	trail  []analysis.Point
	maxAbs float64

	done bool
	err  error

	width  int
	height int
}

func newModel(info Info, cancel context.CancelFunc) model {
	if info.Diameter <= 0 {
		info.Diameter = 1
	}
	return model{
		info:   info,
		cancel: cancel,
		width:  100,
		height: 32,
	}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StepMsg:
		m.record(viv.Record(msg))
	case DoneMsg:
		m.done = true
		m.err = msg.Err
	}
	return m, nil
}

func (m *model) record(r viv.Record) {
	m.last = r
	m.steps = r.Step

	x := r.Response.DispX / m.info.Diameter
	y := r.Response.DispY / m.info.Diameter
	m.dispY = appendWindow(m.dispY, y, historyWindow)
	m.q = appendWindow(m.q, r.Wake.Q, historyWindow)

	m.trail = append(m.trail, analysis.Point{X: x, Y: y})
	if len(m.trail) > trailLength {
		m.trail = m.trail[1:]
	}
	if a := math.Max(math.Abs(x), math.Abs(y)); a > m.maxAbs && !math.IsInf(a, 0) {
		m.maxAbs = a
	}
}

func appendWindow(s []float64, v float64, n int) []float64 {
	s = append(s, v)
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

func (m model) View() string {
	var b strings.Builder

	statusIcon, statusText := green.Render("●"), green.Render("running")
	switch {
	case m.done && m.err != nil:
		statusIcon, statusText = red.Render("●"), red.Render(viv.AbortReason(m.err))
	case m.done:
		statusIcon, statusText = cyan.Render("●"), cyan.Render("finished")
	}
	b.WriteString(fmt.Sprintf("\n   %s %s  %s  %s\n",
		statusIcon, cyan.Render(m.info.Name), dim.Render(m.info.Backend), statusText))

	progress := 0.0
	if m.info.Planned > 0 {
		progress = math.Min(1, float64(m.steps)/float64(m.info.Planned))
	}
	barWidth := 36
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	b.WriteString(fmt.Sprintf("   %s %s\n\n", bar,
		dim.Render(fmt.Sprintf("step %d/%d  t=%.3fs", m.steps, m.info.Planned, m.last.Time))))

	ch := max(10, m.height-20)
	riser := panel.Render(dim.Render("riser (cross-flow)") + "\n" + m.drawRiser(21, ch))
	orbit := panel.Render(dim.Render("orbit x/De vs y/De") + "\n" + m.drawOrbit(max(30, m.width-40), ch))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, "   ", riser, " ", orbit))
	b.WriteString("\n")

	b.WriteString(m.values())
	if len(m.dispY) > 1 {
		b.WriteString("\n" + asciigraph.Plot(m.dispY,
			asciigraph.Height(6),
			asciigraph.Width(max(30, m.width-16)),
			asciigraph.Offset(6),
			asciigraph.Caption("cross-flow displacement / De"),
		) + "\n")
	}

	if m.err != nil {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dim.Render("   q quit") + "\n")
	return b.String()
}

func (m model) values() string {
	r := m.last
	var sb strings.Builder
	sb.WriteString("   ")
	for _, kv := range []struct {
		label string
		v     float64
	}{
		{"p", r.Wake.P},
		{"q", r.Wake.Q},
		{"drag", r.Load.Drag},
		{"lift", r.Load.Lift},
		{"x/De", r.Response.DispX / m.info.Diameter},
		{"y/De", r.Response.DispY / m.info.Diameter},
	} {
		sb.WriteString(dim.Render(kv.label + "="))
		sb.WriteString(white.Render(fmt.Sprintf("%.3g", kv.v)))
		sb.WriteString("  ")
	}
	if m.info.Frequency > 0 {
		sb.WriteString(magenta.Render(fmt.Sprintf("fs=%.3g Hz", m.info.Frequency)))
	}
	return sb.String() + "\n"
}

// drawRiser draws the deflected riser in its first cantilever shape, base
// at the bottom and the monitored tip at the top.
func (m model) drawRiser(w, h int) string {
	canvas := newCanvas(w, h)
	scale := math.Max(m.maxAbs, 0.05)
	tip := 0.0
	if len(m.trail) > 0 {
		tip = m.trail[len(m.trail)-1].Y / scale
	}
	half := float64(w/2 - 1)

	col := func(xi float64) int {
		phi := 0.5 * xi * xi * (3 - xi)
		return w/2 + int(math.Round(phi*tip*half))
	}
	for row := 0; row < h; row++ {
		canvas.set(w/2, row, '┊')
	}
	px, py := w/2, h-1
	for row := h - 1; row >= 0; row-- {
		xi := float64(h-1-row) / float64(h-1)
		cx := col(xi)
		canvas.line(px, py, cx, row, '█')
		px, py = cx, row
	}
	canvas.set(px, py, '●')
	for dx := -2; dx <= 2; dx++ {
		canvas.set(w/2+dx, h-1, '▀')
	}
	return canvas.String()
}

func (m model) drawOrbit(w, h int) string {
	if len(m.trail) == 0 {
		return newCanvas(w, h).String()
	}
	return strings.TrimRight(analysis.OrbitToASCII(m.trail, w, h), "\n")
}

type canvas struct {
	w, h  int
	cells [][]rune
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = []rune(strings.Repeat(" ", w))
	}
	return c
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) line(x1, y1, x2, y2 int, r rune) {
	dx := intAbs(x2 - x1)
	dy := intAbs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	for {
		c.set(x1, y1, r)
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

func (c *canvas) String() string {
	rows := make([]string, len(c.cells))
	for i, row := range c.cells {
		rows[i] = string(row)
	}
	return strings.Join(rows, "\n")
}

func intAbs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
