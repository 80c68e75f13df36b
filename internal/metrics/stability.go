package metrics

import (
	"math"

	"github.com/san-kum/vivsim/internal/viv"
)

// Stability is the fraction of steps whose transverse amplitude, in outer
// diameters, stays within threshold.
type Stability struct {
	name       string
	threshold  float64
	diameter   float64
	violations int
	samples    int
}

func NewStability(threshold, diameter float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
		diameter:  diameter,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) OnStep(r viv.Record) {
	s.samples++
	x := r.Response.DispX / s.diameter
	y := r.Response.DispY / s.diameter
	if math.Hypot(x, y) > s.threshold || math.IsNaN(x) || math.IsNaN(y) {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
