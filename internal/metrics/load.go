package metrics

import (
	"math"

	"github.com/san-kum/vivsim/internal/viv"
)

// MeanDrag is the average drag load per unit length.
type MeanDrag struct {
	sum     float64
	samples int
}

func NewMeanDrag() *MeanDrag { return &MeanDrag{} }

func (c *MeanDrag) Name() string { return "mean_drag" }

func (c *MeanDrag) OnStep(r viv.Record) {
	c.sum += r.Load.Drag
	c.samples++
}

func (c *MeanDrag) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *MeanDrag) Reset() {
	c.sum = 0
	c.samples = 0
}

// PeakLift is the largest absolute lift load per unit length.
type PeakLift struct{ peak float64 }

func NewPeakLift() *PeakLift { return &PeakLift{} }

func (c *PeakLift) Name() string        { return "peak_lift" }
func (c *PeakLift) OnStep(r viv.Record) { c.peak = math.Max(c.peak, math.Abs(r.Load.Lift)) }
func (c *PeakLift) Value() float64      { return c.peak }
func (c *PeakLift) Reset()              { c.peak = 0 }
