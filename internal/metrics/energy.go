package metrics

import (
	"math"

	"github.com/san-kum/vivsim/internal/viv"
	"github.com/san-kum/vivsim/internal/wake"
)

// WakeEnergy is the mean oscillator energy (drag plus lift) over a run.
type WakeEnergy struct {
	name        string
	params      wake.Params
	samples     int
	totalEnergy float64
}

func NewWakeEnergy(params wake.Params) *WakeEnergy {
	return &WakeEnergy{name: "wake_energy", params: params}
}

func (e *WakeEnergy) Name() string { return e.name }

func (e *WakeEnergy) OnStep(r viv.Record) {
	drag, lift := wake.Energy(e.params, r.Wake)
	e.totalEnergy += drag + lift
	e.samples++
}

func (e *WakeEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *WakeEnergy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// WakeEnergyDrift is the largest relative departure of the lift oscillator
// energy from its first committed value.
type WakeEnergyDrift struct {
	name          string
	params        wake.Params
	initialEnergy float64
	maxDrift      float64
	samples       int
}

func NewWakeEnergyDrift(params wake.Params) *WakeEnergyDrift {
	return &WakeEnergyDrift{name: "lift_energy_drift", params: params}
}

func (e *WakeEnergyDrift) Name() string { return e.name }

func (e *WakeEnergyDrift) OnStep(r viv.Record) {
	_, energy := wake.Energy(e.params, r.Wake)
	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *WakeEnergyDrift) Value() float64 { return e.maxDrift }

func (e *WakeEnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}
