// Package riser derives the physical and numerical constants of a VIV run
// and issues the one-time model definition to the structural solver.
package riser

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/viv"
	"github.com/san-kum/vivsim/internal/wake"
)

const (
	MaterialRiser = 1
	MaterialWater = 2

	// BaseNode is the fixed node at the sea bed end of the riser.
	BaseNode = 1

	pipeCells = 12
)

// Constants are computed once per run and never mutated.
type Constants struct {
	// Structure
	Density       float64
	Length        float64
	OuterDiameter float64
	InnerDiameter float64
	Thickness     float64
	Modulus       float64
	Poisson       float64
	Area          float64
	Inertia       float64

	// Fluid
	FluidDensity float64
	Velocity     float64
	Angle        float64 // radians
	Strouhal     float64
	AddedMass    float64
	Frequency    float64 // vortex shedding frequency, Hz
	Omega        float64 // shedding circular frequency along the section

	// Wake
	Ap, Aq    float64
	Ep, Eq    float64
	C0D, C0L  float64
	CiD0      float64
	Initial   viv.OscillatorState
	Predictor wake.Predictor

	// Analysis
	Dt            float64
	Total         float64
	Elements      int
	MonitoredNode int
	Beta          float64
	Gamma         float64
	DampingAlpha  float64
	DampingBeta   float64
	NLGeom        bool
	LumpedMass    bool
	Gravity       float64
}

// Derive validates cfg and computes the run constants.
func Derive(cfg *config.Config) (Constants, error) {
	r, f, w, run := cfg.Riser, cfg.Fluid, cfg.Wake, cfg.Run

	switch {
	case !(r.Length > 0):
		return Constants{}, setupErr("riser length must be positive, got %v", r.Length)
	case !(r.OuterDiameter > 0):
		return Constants{}, setupErr("outer diameter must be positive, got %v", r.OuterDiameter)
	case r.InnerDiameter < 0 || r.InnerDiameter >= r.OuterDiameter:
		return Constants{}, setupErr("inner diameter %v must be in [0, %v)", r.InnerDiameter, r.OuterDiameter)
	case !(r.Density > 0) || !(r.YoungModulus > 0):
		return Constants{}, setupErr("riser density and modulus must be positive")
	case r.Poisson <= -1 || r.Poisson >= 0.5:
		return Constants{}, setupErr("poisson ratio %v out of range", r.Poisson)
	case !(f.Density > 0):
		return Constants{}, setupErr("fluid density must be positive, got %v", f.Density)
	case !(f.Velocity > 0):
		return Constants{}, setupErr("flow velocity must be positive, got %v", f.Velocity)
	case !(f.Strouhal > 0):
		return Constants{}, setupErr("strouhal number must be positive, got %v", f.Strouhal)
	case math.Abs(f.AngleDeg) >= 90:
		return Constants{}, setupErr("flow angle %v deg leaves no cross-flow component", f.AngleDeg)
	case !(run.Dt > 0) || math.IsInf(run.Dt, 0):
		return Constants{}, setupErr("dt must be positive, got %v", run.Dt)
	case run.Duration < 0 || run.Periods < 0:
		return Constants{}, setupErr("duration must not be negative")
	case run.Elements < 1:
		return Constants{}, setupErr("need at least one element, got %d", run.Elements)
	case run.MonitoredNode < 1:
		return Constants{}, setupErr("monitored node must be positive, got %d", run.MonitoredNode)
	case run.NewmarkGamma < 0.5 || run.NewmarkBeta < 0:
		return Constants{}, setupErr("newmark beta=%v gamma=%v is unstable", run.NewmarkBeta, run.NewmarkGamma)
	}

	predictor := wake.Predictor(w.Predictor)
	switch predictor {
	case "":
		predictor = wake.PredictorNewmark
	case wake.PredictorNewmark, wake.PredictorLegacy:
	default:
		return Constants{}, setupErr("unknown predictor %q", w.Predictor)
	}

	de, di := r.OuterDiameter, r.InnerDiameter
	angle := f.AngleDeg * math.Pi / 180.0
	freq := f.Strouhal * f.Velocity / de

	c := Constants{
		Density:       r.Density,
		Length:        r.Length,
		OuterDiameter: de,
		InnerDiameter: di,
		Thickness:     (de - di) / 2.0,
		Modulus:       r.YoungModulus,
		Poisson:       r.Poisson,
		Area:          0.25 * math.Pi * (de*de - di*di),
		Inertia:       math.Pi * (math.Pow(de, 4) - math.Pow(di, 4)) / 64.0,

		FluidDensity: f.Density,
		Velocity:     f.Velocity,
		Angle:        angle,
		Strouhal:     f.Strouhal,
		AddedMass:    f.AddedMass,
		Frequency:    freq,
		Omega:        2.0 * math.Pi * freq * math.Cos(angle),

		Ap: w.Ap, Aq: w.Aq,
		Ep: w.Ep, Eq: w.Eq,
		C0D: w.C0D, C0L: w.C0L,
		CiD0:      w.CiD0,
		Initial:   viv.OscillatorState{P: w.P0, DP: w.DP0, Q: w.Q0, DQ: w.DQ0},
		Predictor: predictor,

		Dt:            run.Dt,
		Elements:      run.Elements,
		MonitoredNode: run.MonitoredNode,
		Beta:          run.NewmarkBeta,
		Gamma:         run.NewmarkGamma,
		DampingAlpha:  run.DampingAlpha,
		DampingBeta:   run.DampingBeta,
		NLGeom:        run.NLGeom,
		LumpedMass:    run.LumpedMass,
		Gravity:       run.Gravity,
	}

	c.Total = run.Duration
	if c.Total == 0 {
		c.Total = run.Periods * c.Period()
	}
	return c, nil
}

// Period is the vortex shedding period.
func (c Constants) Period() float64 { return 1.0 / c.Frequency }

// Steps is the number of whole steps of size dt that fit in the run.
func (c Constants) Steps() int {
	if c.Total < c.Dt {
		return 0
	}
	return int(math.Floor(c.Total / c.Dt))
}

// ElementSize is the target element length along the riser.
func (c Constants) ElementSize() float64 { return c.Length / float64(c.Elements) }

// Geometry is the riser axis from the sea bed up to the origin.
func (c Constants) Geometry() viv.Geometry {
	return viv.Geometry{
		Start: viv.Point{Z: -c.Length},
		End:   viv.Point{},
	}
}

// WakeParams returns the oscillator coefficients.
func (c Constants) WakeParams() wake.Params {
	return wake.Params{
		Ap:        c.Ap,
		Aq:        c.Aq,
		Ep:        c.Ep,
		Eq:        c.Eq,
		Omega:     c.Omega,
		Diameter:  c.OuterDiameter,
		Beta:      c.Beta,
		Gamma:     c.Gamma,
		Predictor: c.Predictor,
	}
}

// Coefficients returns the hydrodynamic load coefficients.
func (c Constants) Coefficients() wake.Coefficients {
	return wake.Coefficients{
		C0D:      c.C0D,
		C0L:      c.C0L,
		CiD0:     c.CiD0,
		Density:  c.FluidDensity,
		Diameter: c.OuterDiameter,
		Velocity: c.Velocity,
	}
}

// Transient returns the analysis settings of the coupled run.
func (c Constants) Transient() viv.TransientSettings {
	return viv.TransientSettings{
		NewmarkBeta:  c.Beta,
		NewmarkGamma: c.Gamma,
		DampingAlpha: c.DampingAlpha,
		DampingBeta:  c.DampingBeta,
		LumpedMass:   c.LumpedMass,
		NLGeom:       c.NLGeom,
		Gravity:      c.Gravity,
	}
}

// LoadedElements lists the element numbers carrying the wake loads.
func (c Constants) LoadedElements() []int {
	ids := make([]int, c.Elements)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids
}

// Build issues the model definition: materials, section, meshed axis and the
// fixed base. Solver failures are reported as viv.ErrSetup unless the
// solver itself is gone.
func (c Constants) Build(s viv.Solver) error {
	steps := []struct {
		what string
		fn   func() error
	}{
		{"riser material", func() error {
			return s.DefineMaterial(viv.Material{ID: MaterialRiser, Density: c.Density, Modulus: c.Modulus, Poisson: c.Poisson})
		}},
		{"water material", func() error {
			return s.DefineMaterial(viv.Material{ID: MaterialWater, Density: c.FluidDensity})
		}},
		{"pipe section", func() error {
			return s.DefinePipeSection(viv.PipeSection{OuterDiameter: c.OuterDiameter, Thickness: c.Thickness, Cells: pipeCells})
		}},
		{"mesh", func() error {
			return s.BuildMesh(c.Geometry(), c.ElementSize())
		}},
		{"base support", func() error {
			return s.ApplyFixedSupport(BaseNode)
		}},
	}

	for _, st := range steps {
		if err := st.fn(); err != nil {
			if errors.Is(err, viv.ErrResource) {
				return fmt.Errorf("%s: %w", st.what, err)
			}
			return fmt.Errorf("%w: %s: %v", viv.ErrSetup, st.what, err)
		}
	}
	return nil
}

func setupErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{viv.ErrSetup}, args...)...)
}
