// Package wake implements the coupled Van der Pol wake oscillators used as a
// reduced model of the unsteady wake behind the riser, and the translation of
// their state into drag and lift line loads.
//
// The drag oscillator p and the lift oscillator q obey
//
//	p'' + 2·ep·ω·(p²−1)·p' + 4ω²·p = Ap·(ẍ/2)/D
//	q'' +   eq·ω·(q²−1)·q' +  ω²·q = Aq·(ÿ/2)/D
//
// where ẍ, ÿ are the in-line and cross-flow accelerations of the structure.
package wake

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/vivsim/internal/viv"
)

// ErrInvalidInput indicates a non-positive step or non-finite forcing.
var ErrInvalidInput = errors.New("wake: invalid input")

// Predictor selects the velocity predictor of the Newmark step.
type Predictor string

const (
	// PredictorNewmark uses dp + (1−γ)·dt·dp2.
	PredictorNewmark Predictor = "newmark"
	// PredictorLegacy uses dp + 0.5·dt²·(1−2β)·dp2, as the first VIV scripts
	// did. It does not conserve energy of the undamped oscillator.
	PredictorLegacy Predictor = "legacy"
)

// Params are the constant coefficients of the two oscillators.
type Params struct {
	Ap, Aq    float64 // structure-to-wake coupling
	Ep, Eq    float64 // wake damping
	Omega     float64 // vortex shedding circular frequency
	Diameter  float64 // hydrodynamic diameter
	Beta      float64 // Newmark beta
	Gamma     float64 // Newmark gamma
	Predictor Predictor
}

// Kp is the drag oscillator stiffness, tuned to twice the shedding frequency.
func (p Params) Kp() float64 { return 4.0 * p.Omega * p.Omega }

// Kq is the lift oscillator stiffness.
func (p Params) Kq() float64 { return p.Omega * p.Omega }

// Forcing carries the structural acceleration of the previous solve.
type Forcing struct {
	AcelX float64
	AcelY float64
}

func (p Params) damping(s viv.OscillatorState) (cp, cq float64) {
	cp = 2.0 * p.Ep * p.Omega * (s.P*s.P - 1.0)
	cq = p.Eq * p.Omega * (s.Q*s.Q - 1.0)
	return cp, cq
}

func (p Params) forcing(f Forcing) (fp, fq float64) {
	fp = p.Ap * (0.5 * f.AcelX) / p.Diameter
	fq = p.Aq * (0.5 * f.AcelY) / p.Diameter
	return fp, fq
}

// Equilibrate returns s with DP2 and DQ2 set from the force balance at the
// given displacement and velocity, with the structure at rest.
func Equilibrate(p Params, s viv.OscillatorState) viv.OscillatorState {
	cp, cq := p.damping(s)
	fp, fq := p.forcing(Forcing{})
	s.DP2 = fp - cp*s.DP - p.Kp()*s.P
	s.DQ2 = fq - cq*s.DQ - p.Kq()*s.Q
	return s
}

// Step advances s by dt. The nonlinear damping is evaluated at the pre-step
// state and the forcing at the previous structural acceleration; the second
// derivative is corrected once at the predicted state.
func Step(p Params, s viv.OscillatorState, dt float64, f Forcing) (viv.OscillatorState, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return s, fmt.Errorf("%w: dt must be positive and finite, got %v", ErrInvalidInput, dt)
	}
	if !finite(f.AcelX) || !finite(f.AcelY) {
		return s, fmt.Errorf("%w: non-finite structural acceleration (%v, %v)", ErrInvalidInput, f.AcelX, f.AcelY)
	}

	cp, cq := p.damping(s)
	fp, fq := p.forcing(f)

	beta, gamma := p.Beta, p.Gamma
	dt2 := dt * dt
	disp := 0.5 * dt2 * (1.0 - 2.0*beta)

	pPred := s.P + dt*s.DP + disp*s.DP2
	qPred := s.Q + dt*s.DQ + disp*s.DQ2

	var dpPred, dqPred float64
	if p.Predictor == PredictorLegacy {
		dpPred = s.DP + disp*s.DP2
		dqPred = s.DQ + disp*s.DQ2
	} else {
		dpPred = s.DP + (1.0-gamma)*dt*s.DP2
		dqPred = s.DQ + (1.0-gamma)*dt*s.DQ2
	}

	next := viv.OscillatorState{
		DP2: fp - cp*dpPred - p.Kp()*pPred,
		DQ2: fq - cq*dqPred - p.Kq()*qPred,
	}
	next.P = pPred + beta*dt2*next.DP2
	next.DP = dpPred + gamma*dt*next.DP2
	next.Q = qPred + beta*dt2*next.DQ2
	next.DQ = dqPred + gamma*dt*next.DQ2

	if !next.IsValid() {
		return next, viv.ErrNumericalInstability
	}
	return next, nil
}

// Energy returns the undamped oscillator energies 0.5·ṗ² + 0.5·Kp·p² and
// 0.5·q̇² + 0.5·Kq·q².
func Energy(p Params, s viv.OscillatorState) (drag, lift float64) {
	drag = 0.5*s.DP*s.DP + 0.5*p.Kp()*s.P*s.P
	lift = 0.5*s.DQ*s.DQ + 0.5*p.Kq()*s.Q*s.Q
	return drag, lift
}

// Integrator owns the oscillator state of one run.
type Integrator struct {
	params Params
	state  viv.OscillatorState
	steps  int
}

// NewIntegrator starts from displacement p, q and velocity dp, dq and
// computes the initial second derivatives.
func NewIntegrator(params Params, p, dp, q, dq float64) *Integrator {
	s := Equilibrate(params, viv.OscillatorState{P: p, DP: dp, Q: q, DQ: dq})
	return &Integrator{params: params, state: s}
}

func (i *Integrator) Params() Params             { return i.params }
func (i *Integrator) State() viv.OscillatorState { return i.state }
func (i *Integrator) Steps() int                 { return i.steps }

// Advance moves the oscillators one step. On error the state is unchanged.
func (i *Integrator) Advance(dt float64, f Forcing) (viv.OscillatorState, error) {
	next, err := Step(i.params, i.state, dt, f)
	if err != nil {
		return i.state, err
	}
	i.state = next
	i.steps++
	return next, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
