package surrogate

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/vivsim/internal/viv"
)

type beam struct {
	length, de, thickness, modulus, density float64
}

var (
	labRiser   = beam{length: 0.2, de: 0.01, thickness: 0.005, modulus: 0.5e9, density: 1000}
	fieldRiser = beam{length: 30, de: 0.2, thickness: 0.04, modulus: 100e9, density: 7000}
)

func (b beam) area() float64 {
	di := b.de - 2*b.thickness
	return 0.25 * math.Pi * (b.de*b.de - di*di)
}

func (b beam) ei() float64 {
	di := b.de - 2*b.thickness
	return b.modulus * math.Pi * (math.Pow(b.de, 4) - math.Pow(di, 4)) / 64
}

func build(t *testing.T, b beam, g viv.Geometry, elements int, opts Options) *Solver {
	t.Helper()
	s := New(opts)
	steps := []error{
		s.DefineMaterial(viv.Material{ID: 1, Density: b.density, Modulus: b.modulus, Poisson: 0.3}),
		s.DefinePipeSection(viv.PipeSection{OuterDiameter: b.de, Thickness: b.thickness, Cells: 12}),
		s.BuildMesh(g, b.length/float64(elements)),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("model setup failed: %v", err)
		}
	}
	return s
}

func simplySupported(t *testing.T, elements int, nlgeom bool) (*Solver, float64) {
	t.Helper()
	b := fieldRiser
	g := viv.Geometry{End: viv.Point{X: b.length}}
	s := build(t, b, g, elements, Options{})

	s.ApplyConstraint(1, viv.DOFUX, viv.DOFUY, viv.DOFUZ, viv.DOFROTX)
	s.ApplyConstraint(2, viv.DOFUX, viv.DOFUY, viv.DOFUZ)
	if err := s.ConfigureStatic(nlgeom); err != nil {
		t.Fatal(err)
	}
	w := b.density * b.area() * 9.81
	if err := s.ApplyNodalForce(viv.FieldUY, -w*b.length/float64(elements)); err != nil {
		t.Fatal(err)
	}
	if err := s.Solve(); err != nil {
		t.Fatalf("solve failed: %v", err)
	}
	return s, -5 * w * math.Pow(b.length, 4) / (384 * b.ei())
}

func midspan(t *testing.T, s *Solver) viv.NodalDisplacement {
	t.Helper()
	node, err := s.NodeAt(viv.Point{X: fieldRiser.length / 2})
	if err != nil {
		t.Fatalf("no midspan node: %v", err)
	}
	rows, err := s.NodalDisplacements()
	if err != nil {
		t.Fatal(err)
	}
	return rows[node-1]
}

func TestStaticMidspanConverges(t *testing.T) {
	tests := []struct {
		elements int
		ratio    float64
		tol      float64
	}{
		{2, 0.8, 1e-12},
		{10, 0.992, 1e-12},
		{100, 1, 1e-4},
	}
	for _, tt := range tests {
		s, want := simplySupported(t, tt.elements, false)
		got := midspan(t, s)
		if r := got.UY / want; math.Abs(r-tt.ratio) > tt.tol {
			t.Errorf("%d elements: midspan/closed form = %v, want %v", tt.elements, r, tt.ratio)
		}
		if got.UX != 0 || got.UZ != 0 {
			t.Errorf("%d elements: off-plane displacement %+v", tt.elements, got)
		}
	}
}

func TestStaticSupportsDoNotMove(t *testing.T) {
	s, _ := simplySupported(t, 10, false)
	for _, node := range []int{1, 2} {
		uy, err := s.NodalValue(node, viv.FieldUY)
		if err != nil || uy != 0 {
			t.Errorf("support node %d moved: %v, %v", node, uy, err)
		}
	}
	rows, _ := s.NodalDisplacements()
	if len(rows) != 11 {
		t.Fatalf("expected 11 nodes, got %d", len(rows))
	}
	for i, r := range rows {
		if r.Node != i+1 {
			t.Errorf("row %d is node %d", i, r.Node)
		}
		if r.UY > 0 {
			t.Errorf("node %d deflects upward: %v", r.Node, r.UY)
		}
	}
}

func TestStaticNLGeomStiffens(t *testing.T) {
	lin, _ := simplySupported(t, 20, false)
	nl, _ := simplySupported(t, 20, true)

	dl, dn := midspan(t, lin).UY, midspan(t, nl).UY
	if !(math.Abs(dn) < math.Abs(dl)) || dn >= 0 {
		t.Fatalf("nlgeom midspan %v should be smaller than linear %v", dn, dl)
	}

	b := fieldRiser
	di := b.de - 2*b.thickness
	inertia := math.Pi * (math.Pow(b.de, 4) - math.Pow(di, 4)) / 64
	c := b.area() / (4 * inertia)
	if res := dn*(1+c*dn*dn) - dl; math.Abs(res) > 1e-9*math.Abs(dl) {
		t.Errorf("membrane balance residual %v", res)
	}
}

func TestMembrane(t *testing.T) {
	if d := membrane(0, 5); d != 0 {
		t.Errorf("membrane(0) = %v", d)
	}
	if d := membrane(1, 0); d != 1 {
		t.Errorf("membrane without stiffening = %v", d)
	}
	d := membrane(2, 1)
	if math.Abs(d*(1+d*d)-2) > 1e-12 {
		t.Errorf("membrane(2, 1) = %v", d)
	}
}

func TestSolveRequiresSupports(t *testing.T) {
	b := fieldRiser
	s := build(t, b, viv.Geometry{End: viv.Point{X: b.length}}, 4, Options{})
	s.ConfigureStatic(false)
	if err := s.Solve(); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("static solve without supports: %v", err)
	}
	if err := s.SolveStep(); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("transient solve without supports: %v", err)
	}
	s.ApplyConstraint(1, viv.DOFUY)
	if err := s.Solve(); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("static solve with one support: %v", err)
	}
	if _, err := s.NodalDisplacements(); !errors.Is(err, viv.ErrSolverConvergence) {
		t.Errorf("displacements before solve: %v", err)
	}
}

func cantilever(t *testing.T, elements int, opts Options) *Solver {
	t.Helper()
	b := labRiser
	s := build(t, b, viv.Geometry{Start: viv.Point{Z: -b.length}}, elements, opts)
	if err := s.ApplyFixedSupport(1); err != nil {
		t.Fatal(err)
	}
	return s
}

func run(t *testing.T, s *Solver, dt float64, steps int, each func(i int)) {
	t.Helper()
	s.SetTimeStep(dt)
	for i := 1; i <= steps; i++ {
		s.SetSimulationTime(float64(i) * dt)
		if err := s.SolveStep(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if each != nil {
			each(i)
		}
	}
}

func TestTransientSettlesToStaticTip(t *testing.T) {
	s := cantilever(t, 2, Options{})
	s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5, DampingAlpha: 300})
	for el := 1; el <= 2; el++ {
		s.ApplyDistributedLoad(el, 0, 1)
	}
	run(t, s, 0.001, 2000, nil)

	b := labRiser
	want := math.Pow(b.length, 4) / (8 * b.ei())
	tip, _ := s.NodalValue(2, viv.FieldUY)
	if math.Abs(tip-want) > 1e-6*want {
		t.Errorf("tip UY = %v, want %v", tip, want)
	}
	if ux, _ := s.NodalValue(2, viv.FieldUX); ux != 0 {
		t.Errorf("drag free run moved in x: %v", ux)
	}
	mid, _ := s.NodalValue(3, viv.FieldUY)
	if math.Abs(mid-0.3125*tip) > 1e-15 {
		t.Errorf("mid node UY = %v, want %v", mid, 0.3125*tip)
	}
	if base, _ := s.NodalValue(1, viv.FieldUY); base != 0 {
		t.Errorf("base moved: %v", base)
	}
}

func TestTransientStepLoadOvershoot(t *testing.T) {
	s := cantilever(t, 1, Options{})
	s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5})
	s.ApplyDistributedLoad(1, 2, 0)

	peak := 0.0
	run(t, s, 1e-4, 500, func(int) {
		if ux, _ := s.NodalValue(2, viv.FieldUX); ux > peak {
			peak = ux
		}
	})

	b := labRiser
	static := 2 * math.Pow(b.length, 4) / (8 * b.ei())
	if math.Abs(peak-2*static) > 0.01*static {
		t.Errorf("undamped peak = %v, want twice static %v", peak, static)
	}
}

func TestTransientLoadSumIsRepeatable(t *testing.T) {
	const elements = 24
	tipAfter := func(order []int) float64 {
		s := cantilever(t, elements, Options{})
		s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5})
		for _, el := range order {
			s.ApplyDistributedLoad(el, 0, 0.1+1e-3*float64(el*el)+1.0/float64(el))
		}
		run(t, s, 1e-4, 5, nil)
		uy, _ := s.NodalValue(2, viv.FieldUY)
		return uy
	}

	forward := make([]int, elements)
	for i := range forward {
		forward[i] = i + 1
	}
	want := tipAfter(forward)
	for trial := 0; trial < 20; trial++ {
		order := make([]int, elements)
		for i := range order {
			order[i] = forward[(i*7+trial)%elements]
		}
		if got := tipAfter(order); got != want {
			t.Fatalf("trial %d: tip UY %v differs from %v", trial, got, want)
		}
	}
}

func TestAddedMassSlowsResponse(t *testing.T) {
	first := func(opts Options, water bool) float64 {
		s := cantilever(t, 1, opts)
		if water {
			s.DefineMaterial(viv.Material{ID: 2, Density: 1000})
		}
		s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5})
		s.ApplyDistributedLoad(1, 0, 1)
		run(t, s, 1e-4, 10, nil)
		uy, _ := s.NodalValue(2, viv.FieldUY)
		return uy
	}
	dry := first(Options{AddedMass: 1}, false)
	wet := first(Options{AddedMass: 1}, true)
	if !(wet < dry) || wet <= 0 {
		t.Errorf("added mass should slow the early response: dry %v wet %v", dry, wet)
	}
}

func TestFailAtStep(t *testing.T) {
	s := cantilever(t, 1, Options{FailAtStep: 3})
	s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5})
	s.SetTimeStep(0.001)

	for i := 1; i <= 3; i++ {
		s.SetSimulationTime(float64(i) * 0.001)
		err := s.SolveStep()
		if i < 3 && err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if i == 3 && !errors.Is(err, viv.ErrSolverConvergence) {
			t.Fatalf("expected injected failure, got %v", err)
		}
	}
}

func TestSetupValidation(t *testing.T) {
	s := New(Options{})
	if err := s.DefineMaterial(viv.Material{ID: 1}); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("zero density: %v", err)
	}
	if err := s.DefinePipeSection(viv.PipeSection{OuterDiameter: 0.01, Thickness: 0.006}); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("wall thicker than radius: %v", err)
	}
	if err := s.ApplyFixedSupport(1); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("support before mesh: %v", err)
	}
	if err := s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.3}); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("unstable newmark: %v", err)
	}

	c := cantilever(t, 2, Options{})
	if err := c.ApplyDistributedLoad(3, 1, 1); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("load on missing element: %v", err)
	}
	if _, err := c.NodalValue(4, viv.FieldUY); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("value at missing node: %v", err)
	}
	if _, err := c.NodeAt(viv.Point{X: 1}); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("node off the axis: %v", err)
	}
	if n, err := c.NodeAt(viv.Point{Z: -0.1}); err != nil || n != 3 {
		t.Errorf("NodeAt midpoint = %d, %v", n, err)
	}
}

func TestExclusiveAndFinalize(t *testing.T) {
	s := New(Options{})
	if err := s.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := s.Acquire(); !errors.Is(err, viv.ErrBusy) {
		t.Errorf("second acquire: %v", err)
	}
	s.Release()

	s.Finalize()
	if err := s.DefineMaterial(viv.Material{ID: 1, Density: 1}); !errors.Is(err, viv.ErrResource) {
		t.Errorf("use after finalize: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Errorf("second finalize: %v", err)
	}
}
