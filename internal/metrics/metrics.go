// Package metrics reduces the committed steps of a coupled run to summary
// numbers. Every metric is a step observer for the coupling loop.
package metrics

import (
	"github.com/san-kum/vivsim/internal/coupling"
	"github.com/san-kum/vivsim/internal/riser"
)

// DefaultStabilityThreshold is the amplitude, in outer diameters, above
// which a step counts as unstable.
const DefaultStabilityThreshold = 2.0

// Default returns the metric set recorded with every run.
func Default(c riser.Constants) []coupling.Metric {
	d := c.OuterDiameter
	return []coupling.Metric{
		NewMaxDisplacement(InLine, d),
		NewMaxDisplacement(CrossFlow, d),
		NewRMSDisplacement(InLine, d),
		NewRMSDisplacement(CrossFlow, d),
		NewMeanDrag(),
		NewPeakLift(),
		NewWakeEnergy(c.WakeParams()),
		NewWakeEnergyDrift(c.WakeParams()),
		NewStability(DefaultStabilityThreshold, d),
	}
}
