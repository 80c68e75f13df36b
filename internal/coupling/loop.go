// Package coupling runs the explicit fluid-structure co-simulation: each step
// advances the wake oscillators with the previous structural response,
// converts them to line loads, and has the external solver integrate the
// riser under those loads.
package coupling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/viv"
	"github.com/san-kum/vivsim/internal/wake"
)

// Phase is the state of a Loop.
type Phase int32

const (
	Idle Phase = iota
	Initializing
	Stepping
	Finished
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Stepping:
		return "stepping"
	case Finished:
		return "finished"
	}
	return "idle"
}

// Result is the outcome of a run. On an aborted run it holds every step
// committed before the failure.
type Result struct {
	History *viv.TimeHistory
	Steps   int
	Planned int
	Final   viv.StructuralResponse
	Wake    viv.OscillatorState
	Metrics map[string]float64
	Elapsed time.Duration
	Aborted bool
	Reason  string
}

type Loop struct {
	solver    viv.Solver
	consts    riser.Constants
	logger    *slog.Logger
	observers []viv.Observer
	metrics   []Metric
	elements  []int
	node      int
	logEvery  int
	phase     atomic.Int32
	running   atomic.Bool
}

// Metric is an observer that reduces a run to one number.
type Metric interface {
	viv.Observer
	Name() string
	Value() float64
	Reset()
}

type Option func(*Loop)

func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

func WithObserver(o viv.Observer) Option {
	return func(lp *Loop) { lp.observers = append(lp.observers, o) }
}

func WithMetric(m Metric) Option {
	return func(lp *Loop) { lp.metrics = append(lp.metrics, m) }
}

// WithLoadedElements overrides the elements that receive the wake loads.
func WithLoadedElements(ids ...int) Option {
	return func(lp *Loop) { lp.elements = append([]int(nil), ids...) }
}

// WithMonitoredNode overrides the node whose response feeds the wake.
func WithMonitoredNode(n int) Option {
	return func(lp *Loop) { lp.node = n }
}

// WithProgressEvery logs progress every n steps; zero disables it.
func WithProgressEvery(n int) Option {
	return func(lp *Loop) { lp.logEvery = n }
}

func New(s viv.Solver, c riser.Constants, opts ...Option) *Loop {
	l := &Loop{
		solver:   s,
		consts:   c,
		logger:   slog.Default(),
		elements: c.LoadedElements(),
		node:     c.MonitoredNode,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Phase() Phase { return Phase(l.phase.Load()) }

func (l *Loop) setPhase(p Phase) {
	l.phase.Store(int32(p))
	l.logger.Debug("phase", "phase", p.String())
}

// Run builds the model, drives every step and finalizes the solver on all
// exit paths. Setup and resource failures return a nil result, also when
// the solver is lost mid-run; step failures and cancellation return the
// partial result with the error.
func (l *Loop) Run(ctx context.Context) (res *Result, err error) {
	if !l.running.CompareAndSwap(false, true) {
		return nil, viv.ErrBusy
	}
	defer l.running.Store(false)

	if ex, ok := l.solver.(viv.Exclusive); ok {
		if err := ex.Acquire(); err != nil {
			return nil, err
		}
		defer ex.Release()
	}
	defer func() {
		if ferr := l.solver.Finalize(); ferr != nil {
			l.logger.Warn("finalize failed", "err", ferr)
			if err == nil {
				err = fmt.Errorf("finalize: %w", ferr)
			}
		}
	}()

	l.setPhase(Initializing)
	integ, err := l.initialize()
	if err != nil {
		return nil, err
	}

	l.setPhase(Stepping)
	res, err = l.step(ctx, integ)
	if errors.Is(err, viv.ErrResource) {
		l.logger.Error("solver lost", "steps", res.Steps, "err", err)
		return nil, err
	}
	if err != nil {
		res.Aborted = true
		res.Reason = viv.AbortReason(err)
		l.logger.Error("run aborted", "reason", res.Reason, "steps", res.Steps, "err", err)
		return res, err
	}

	if err := l.solver.SaveState(); err != nil {
		return res, fmt.Errorf("save state: %w", err)
	}
	l.setPhase(Finished)
	l.logger.Info("run finished", "steps", res.Steps, "elapsed", res.Elapsed)
	return res, nil
}

func (l *Loop) initialize() (*wake.Integrator, error) {
	c := l.consts
	if err := c.Build(l.solver); err != nil {
		return nil, err
	}
	if err := l.solver.ConfigureTransient(c.Transient()); err != nil {
		return nil, classify(err, viv.ErrSetup)
	}

	init := c.Initial
	integ := wake.NewIntegrator(c.WakeParams(), init.P, init.DP, init.Q, init.DQ)
	if !integ.State().IsValid() {
		return nil, fmt.Errorf("%w: initial wake state %+v", viv.ErrNumericalInstability, integ.State())
	}

	l.logger.Info("model ready",
		"elements", c.Elements,
		"node", l.node,
		"omega", c.Omega,
		"dt", c.Dt,
		"steps", c.Steps(),
	)
	return integ, nil
}

func (l *Loop) step(ctx context.Context, integ *wake.Integrator) (*Result, error) {
	c := l.consts
	nsteps := c.Steps()
	dt := c.Dt
	coeffs := c.Coefficients()

	hist := viv.NewTimeHistory(nsteps)
	res := &Result{
		History: hist,
		Planned: nsteps,
		Metrics: make(map[string]float64),
		Wake:    integ.State(),
	}
	for _, m := range l.metrics {
		m.Reset()
	}

	start := time.Now()
	defer func() {
		res.Elapsed = time.Since(start)
		for _, m := range l.metrics {
			res.Metrics[m.Name()] = m.Value()
		}
	}()

	var resp viv.StructuralResponse
	t := 0.0

	for it := 1; it <= nsteps; it++ {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		t += dt
		if err := l.solver.SetTimeStep(dt); err != nil {
			return res, stepErr(it, t, classify(err, viv.ErrSolverConvergence))
		}
		if err := l.solver.SetSimulationTime(t); err != nil {
			return res, stepErr(it, t, classify(err, viv.ErrSolverConvergence))
		}

		// Wake update from the previous solve's acceleration.
		osc, err := integ.Advance(dt, wake.Forcing{AcelX: resp.AcelX, AcelY: resp.AcelY})
		if err != nil {
			return res, stepErr(it, t, classify(err, viv.ErrNumericalInstability))
		}

		// Loads from the current wake state and the previous velocity.
		load := wake.Forces(coeffs, osc.P, osc.Q, resp.VelX, resp.VelY)
		for _, el := range l.elements {
			if err := l.solver.ApplyDistributedLoad(el, load.Drag, load.Lift); err != nil {
				return res, stepErr(it, t, classify(err, viv.ErrSolverConvergence))
			}
		}

		if err := l.solver.SolveStep(); err != nil {
			return res, stepErr(it, t, classify(err, viv.ErrSolverConvergence))
		}

		next, err := l.readResponse()
		if err != nil {
			return res, stepErr(it, t, classify(err, viv.ErrSolverConvergence))
		}
		resp = next

		de := c.OuterDiameter
		if err := hist.Record(it-1, t, osc.P, osc.Q, resp.DispX/de, resp.DispY/de); err != nil {
			return res, stepErr(it, t, err)
		}
		res.Steps = it
		res.Final = resp
		res.Wake = osc

		rec := viv.Record{Step: it, Time: t, Wake: osc, Load: load, Response: resp}
		for _, m := range l.metrics {
			m.OnStep(rec)
		}
		for _, o := range l.observers {
			o.OnStep(rec)
		}

		if l.logEvery > 0 && it%l.logEvery == 0 {
			l.logger.Debug("step", "it", it, "t", t, "p", osc.P, "q", osc.Q, "uy", resp.DispY/de)
		}
	}

	return res, nil
}

func (l *Loop) readResponse() (viv.StructuralResponse, error) {
	var r viv.StructuralResponse
	fields := []struct {
		f   viv.Field
		dst *float64
	}{
		{viv.FieldVX, &r.VelX},
		{viv.FieldVY, &r.VelY},
		{viv.FieldAX, &r.AcelX},
		{viv.FieldAY, &r.AcelY},
		{viv.FieldUX, &r.DispX},
		{viv.FieldUY, &r.DispY},
	}
	for _, fd := range fields {
		v, err := l.solver.NodalValue(l.node, fd.f)
		if err != nil {
			return r, fmt.Errorf("read %s at node %d: %w", fd.f, l.node, err)
		}
		*fd.dst = v
	}
	return r, nil
}

// classify keeps known viv errors and tags anything else with fallback.
func classify(err, fallback error) error {
	for _, known := range []error{
		viv.ErrSetup,
		viv.ErrSolverConvergence,
		viv.ErrNumericalInstability,
		viv.ErrResource,
		viv.ErrBusy,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", fallback, err)
}

func stepErr(it int, t float64, err error) error {
	return &viv.StepError{Step: it, Time: t, Wrapped: err}
}
