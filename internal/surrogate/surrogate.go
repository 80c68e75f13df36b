// Package surrogate is an in-process reduced-order stand-in for the external
// structural solver. Transient runs reduce the riser to its first cantilever
// mode in each transverse direction; static runs use closed-form
// Euler-Bernoulli results for a simply supported beam.
package surrogate

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/san-kum/vivsim/internal/viv"
)

const (
	// modalMass is the generalized mass fraction of a cantilever in its
	// first mode referred to the tip.
	modalMass = 0.2427
	// tipLoad refers a uniform line load to the cantilever tip.
	tipLoad = 3.0 / 8.0

	waterMaterial = 2
	riserMaterial = 1
)

type Options struct {
	// AddedMass is the added mass coefficient Ca applied with the density
	// of the water material.
	AddedMass float64
	// FailAtStep makes the n-th transient solve fail (1-based).
	FailAtStep int
	Logger     *slog.Logger
}

type mode struct{ u, v, a float64 }

// Solver implements viv.StaticSolver.
type Solver struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	busy bool

	materials   map[int]viv.Material
	section     *viv.PipeSection
	geom        viv.Geometry
	elements    int
	constraints map[int]map[viv.DOF]bool

	transient viv.TransientSettings
	static    bool
	nlgeom    bool

	dt, t, lastT float64
	loads        map[int]viv.Load
	nodalForce   [3]float64
	modes        [2]mode
	solves       int
	solution     []viv.NodalDisplacement
	finalized    bool
}

func New(opts Options) *Solver {
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Solver{
		opts:        opts,
		logger:      l.With("backend", "surrogate"),
		materials:   make(map[int]viv.Material),
		constraints: make(map[int]map[viv.DOF]bool),
		loads:       make(map[int]viv.Load),
		transient:   viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5},
	}
}

func (s *Solver) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return viv.ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Solver) Release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func (s *Solver) alive() error {
	if s.finalized {
		return fmt.Errorf("%w: surrogate finalized", viv.ErrResource)
	}
	return nil
}

func (s *Solver) DefineMaterial(m viv.Material) error {
	if err := s.alive(); err != nil {
		return err
	}
	if m.ID < 1 || !(m.Density > 0) || m.Modulus < 0 {
		return fmt.Errorf("%w: material %d", viv.ErrSetup, m.ID)
	}
	s.materials[m.ID] = m
	return nil
}

func (s *Solver) DefinePipeSection(p viv.PipeSection) error {
	if err := s.alive(); err != nil {
		return err
	}
	if !(p.OuterDiameter > 0) || !(p.Thickness > 0) || 2*p.Thickness > p.OuterDiameter {
		return fmt.Errorf("%w: pipe section %+v", viv.ErrSetup, p)
	}
	s.section = &p
	return nil
}

func (s *Solver) BuildMesh(g viv.Geometry, elementSize float64) error {
	if err := s.alive(); err != nil {
		return err
	}
	l := g.Length()
	if !(l > 0) || !(elementSize > 0) {
		return fmt.Errorf("%w: mesh of length %v with element size %v", viv.ErrSetup, l, elementSize)
	}
	s.geom = g
	s.elements = int(math.Max(1, math.Round(l/elementSize)))
	return nil
}

// Nodes is the number of mesh nodes.
func (s *Solver) Nodes() int {
	if s.elements == 0 {
		return 0
	}
	return s.elements + 1
}

// position returns the fraction along the axis of a node. Line end nodes
// are numbered first, interior nodes follow in order.
func (s *Solver) position(node int) (float64, error) {
	switch {
	case node < 1 || node > s.Nodes():
		return 0, fmt.Errorf("%w: node %d not in mesh of %d nodes", viv.ErrSetup, node, s.Nodes())
	case node == 1:
		return 0, nil
	case node == 2:
		return 1, nil
	}
	return float64(node-2) / float64(s.elements), nil
}

func (s *Solver) ApplyFixedSupport(node int) error {
	return s.ApplyConstraint(node, viv.DOFAll)
}

func (s *Solver) ApplyConstraint(node int, dofs ...viv.DOF) error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.elements == 0 {
		return fmt.Errorf("%w: constraint before mesh", viv.ErrSetup)
	}
	if _, err := s.position(node); err != nil {
		return err
	}
	set := s.constraints[node]
	if set == nil {
		set = make(map[viv.DOF]bool)
		s.constraints[node] = set
	}
	for _, d := range dofs {
		if d == viv.DOFAll {
			for _, all := range []viv.DOF{viv.DOFUX, viv.DOFUY, viv.DOFUZ, viv.DOFROTX, viv.DOFROTY, viv.DOFROTZ} {
				set[all] = true
			}
			continue
		}
		set[d] = true
	}
	return nil
}

func (s *Solver) ConfigureTransient(t viv.TransientSettings) error {
	if err := s.alive(); err != nil {
		return err
	}
	if t.NewmarkGamma < 0.5 || t.NewmarkBeta <= 0 {
		return fmt.Errorf("%w: newmark beta=%v gamma=%v", viv.ErrSetup, t.NewmarkBeta, t.NewmarkGamma)
	}
	s.transient = t
	s.static = false
	return nil
}

func (s *Solver) ConfigureStatic(nlgeom bool) error {
	if err := s.alive(); err != nil {
		return err
	}
	s.static = true
	s.nlgeom = nlgeom
	return nil
}

func (s *Solver) SetTimeStep(dt float64) error {
	if !(dt > 0) {
		return fmt.Errorf("%w: time step %v", viv.ErrSetup, dt)
	}
	s.dt = dt
	return nil
}

func (s *Solver) SetSimulationTime(t float64) error {
	s.t = t
	return nil
}

func (s *Solver) ApplyDistributedLoad(element int, drag, lift float64) error {
	if err := s.alive(); err != nil {
		return err
	}
	if element < 1 || element > s.elements {
		return fmt.Errorf("%w: element %d not in mesh of %d", viv.ErrSetup, element, s.elements)
	}
	s.loads[element] = viv.Load{Drag: drag, Lift: lift}
	return nil
}

func (s *Solver) ApplyNodalForce(f viv.Field, value float64) error {
	if err := s.alive(); err != nil {
		return err
	}
	switch f {
	case viv.FieldUX, viv.FieldUY, viv.FieldUZ:
		s.nodalForce[f-viv.FieldUX] = value
		return nil
	}
	return fmt.Errorf("%w: no force direction for %s", viv.ErrSetup, f)
}

func (s *Solver) supported() bool { return len(s.constraints) > 0 }

// props returns flexural rigidity and mass per unit length.
func (s *Solver) props() (ei, mass float64, err error) {
	riser, ok := s.materials[riserMaterial]
	if !ok || s.section == nil {
		return 0, 0, fmt.Errorf("%w: riser material or section missing", viv.ErrSetup)
	}
	de := s.section.OuterDiameter
	di := de - 2*s.section.Thickness
	inertia := math.Pi * (math.Pow(de, 4) - math.Pow(di, 4)) / 64.0
	area := 0.25 * math.Pi * (de*de - di*di)

	mass = riser.Density * area
	if water, ok := s.materials[waterMaterial]; ok {
		mass += s.opts.AddedMass * water.Density * 0.25 * math.Pi * de * de
	}
	return riser.Modulus * inertia, mass, nil
}

// SolveStep advances both tip modes by one average acceleration step under
// the current element loads.
func (s *Solver) SolveStep() error {
	if err := s.alive(); err != nil {
		return err
	}
	if s.elements == 0 || !s.supported() {
		return fmt.Errorf("%w: solve before mesh and supports are defined", viv.ErrSetup)
	}
	ei, mu, err := s.props()
	if err != nil {
		return err
	}
	if s.opts.FailAtStep > 0 && s.solves+1 == s.opts.FailAtStep {
		return fmt.Errorf("%w: injected failure at solve %d", viv.ErrSolverConvergence, s.solves+1)
	}

	h := s.t - s.lastT
	if !(h > 0) {
		h = s.dt
	}
	if !(h > 0) {
		return fmt.Errorf("%w: no time increment", viv.ErrSolverConvergence)
	}

	l := s.geom.Length()
	k := 3 * ei / (l * l * l)
	m := modalMass * mu * l
	c := s.transient.DampingAlpha*m + s.transient.DampingBeta*k

	var fx, fy float64
	le := l / float64(s.elements)
	for _, id := range slices.Sorted(maps.Keys(s.loads)) {
		ld := s.loads[id]
		fx += tipLoad * ld.Drag * le
		fy += tipLoad * ld.Lift * le
	}

	b, g := s.transient.NewmarkBeta, s.transient.NewmarkGamma
	next := [2]mode{
		newmark(s.modes[0], fx, m, c, k, h, b, g),
		newmark(s.modes[1], fy, m, c, k, h, b, g),
	}
	for _, md := range next {
		for _, v := range []float64{md.u, md.v, md.a} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: surrogate diverged at t=%v", viv.ErrSolverConvergence, s.t)
			}
		}
	}

	s.modes = next
	s.lastT = s.t
	s.solves++
	s.solution = nil
	return nil
}

func newmark(p mode, f, m, c, k, h, beta, gamma float64) mode {
	a0 := 1 / (beta * h * h)
	a1 := gamma / (beta * h)
	a2 := 1 / (beta * h)
	a3 := 1/(2*beta) - 1
	a4 := gamma/beta - 1
	a5 := h * (gamma/(2*beta) - 1)

	keff := k + a0*m + a1*c
	feff := f + m*(a0*p.u+a2*p.v+a3*p.a) + c*(a1*p.u+a4*p.v+a5*p.a)

	var n mode
	n.u = feff / keff
	n.a = a0*(n.u-p.u) - a2*p.v - a3*p.a
	n.v = p.v + h*((1-gamma)*p.a+gamma*n.a)
	return n
}

// shape is the static cantilever deflection normalised to one at the tip.
func shape(xi float64) float64 { return 0.5 * xi * xi * (3 - xi) }

func (s *Solver) NodalValue(node int, f viv.Field) (float64, error) {
	if err := s.alive(); err != nil {
		return 0, err
	}
	xi, err := s.position(node)
	if err != nil {
		return 0, err
	}

	if s.static {
		for _, d := range s.solution {
			if d.Node != node {
				continue
			}
			switch f {
			case viv.FieldUX:
				return d.UX, nil
			case viv.FieldUY:
				return d.UY, nil
			case viv.FieldUZ:
				return d.UZ, nil
			}
			return 0, nil
		}
		return 0, fmt.Errorf("%w: no static solution", viv.ErrSolverConvergence)
	}

	phi := shape(xi)
	x, y := s.modes[0], s.modes[1]
	switch f {
	case viv.FieldUX:
		return phi * x.u, nil
	case viv.FieldUY:
		return phi * y.u, nil
	case viv.FieldVX:
		return phi * x.v, nil
	case viv.FieldVY:
		return phi * y.v, nil
	case viv.FieldAX:
		return phi * x.a, nil
	case viv.FieldAY:
		return phi * y.a, nil
	case viv.FieldUZ:
		return 0, nil
	}
	return 0, fmt.Errorf("surrogate: unsupported field %s", f)
}

func (s *Solver) SaveState() error { return s.alive() }

func (s *Solver) Finalize() error {
	s.finalized = true
	return nil
}
