package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/vivsim/internal/viv"
)

// Axis selects a transverse direction of the monitored node.
type Axis int

const (
	InLine Axis = iota
	CrossFlow
)

func (a Axis) suffix() string {
	if a == InLine {
		return "x"
	}
	return "y"
}

func (a Axis) disp(r viv.Record) float64 {
	if a == InLine {
		return r.Response.DispX
	}
	return r.Response.DispY
}

// MaxDisplacement is the peak absolute displacement in outer diameters.
type MaxDisplacement struct {
	axis     Axis
	diameter float64
	max      float64
}

func NewMaxDisplacement(axis Axis, diameter float64) *MaxDisplacement {
	return &MaxDisplacement{axis: axis, diameter: diameter}
}

func (m *MaxDisplacement) Name() string { return "max_disp_" + m.axis.suffix() }

func (m *MaxDisplacement) OnStep(r viv.Record) {
	m.max = math.Max(m.max, math.Abs(m.axis.disp(r)/m.diameter))
}

func (m *MaxDisplacement) Value() float64 { return m.max }
func (m *MaxDisplacement) Reset()         { m.max = 0 }

// RMSDisplacement is the root mean square displacement in outer diameters.
type RMSDisplacement struct {
	axis     Axis
	diameter float64
	samples  []float64
}

func NewRMSDisplacement(axis Axis, diameter float64) *RMSDisplacement {
	return &RMSDisplacement{axis: axis, diameter: diameter}
}

func (m *RMSDisplacement) Name() string { return "rms_disp_" + m.axis.suffix() }

func (m *RMSDisplacement) OnStep(r viv.Record) {
	m.samples = append(m.samples, m.axis.disp(r)/m.diameter)
}

func (m *RMSDisplacement) Value() float64 {
	if len(m.samples) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(m.samples, m.samples) / float64(len(m.samples)))
}

func (m *RMSDisplacement) Reset() { m.samples = m.samples[:0] }
