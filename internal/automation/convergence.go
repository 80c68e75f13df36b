package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/storage"
	"github.com/san-kum/vivsim/internal/viv"
)

// Opener returns a fresh solver for one convergence case.
type Opener func(ctx context.Context) (viv.StaticSolver, error)

// Convergence is the static mesh refinement study: a pinned beam along X
// under its own weight, applied as equal nodal forces, solved for every
// element count with NLGEOM off and on.
type Convergence struct {
	Config *config.Config
	Open   Opener
	// Dir receives one displacement table per case; empty skips writing.
	Dir    string
	Logger *slog.Logger
}

// Case is the midspan result of one element count and NLGEOM setting.
type Case struct {
	Elements   int
	NLGeom     bool
	Node       int
	Center     viv.NodalDisplacement
	Analytical float64 // linear midspan deflection, -5wL⁴/384EI
	Ratio      float64 // Center.UY over Analytical
	Path       string
}

// LinearDeflection is the midspan deflection of a pinned beam of length l
// and rigidity ei under the line load w.
func LinearDeflection(w, l, ei float64) float64 {
	return 5 * w * l * l * l * l / (384 * ei)
}

func (cv *Convergence) Validate() error {
	sw := cv.Config.Sweep
	if len(sw.Elements) == 0 || len(sw.NLGeom) == 0 {
		return fmt.Errorf("%w: sweep needs element counts and NLGEOM settings", viv.ErrSetup)
	}
	for _, n := range sw.Elements {
		if n < 2 || n%2 != 0 {
			return fmt.Errorf("%w: element count %d leaves no midspan node", viv.ErrSetup, n)
		}
	}
	if !(sw.Gravity > 0) {
		return fmt.Errorf("%w: gravity must be positive, got %v", viv.ErrSetup, sw.Gravity)
	}
	if cv.Open == nil {
		return fmt.Errorf("%w: no solver", viv.ErrSetup)
	}
	return nil
}

// Run solves every case in order, element counts outermost.
func (cv *Convergence) Run(ctx context.Context) ([]Case, error) {
	if err := cv.Validate(); err != nil {
		return nil, err
	}
	c, err := riser.Derive(cv.Config)
	if err != nil {
		return nil, err
	}
	log := cv.Logger
	if log == nil {
		log = slog.Default()
	}

	w := c.Density * c.Area * cv.Config.Sweep.Gravity
	want := -LinearDeflection(w, c.Length, c.Modulus*c.Inertia)

	var cases []Case
	for _, n := range cv.Config.Sweep.Elements {
		for _, nlgeom := range cv.Config.Sweep.NLGeom {
			if err := ctx.Err(); err != nil {
				return cases, err
			}
			cs, err := cv.solve(ctx, c, n, nlgeom, w)
			if err != nil {
				return cases, fmt.Errorf("%s: %w", storage.CaseName(n, nlgeom), err)
			}
			cs.Analytical = want
			cs.Ratio = cs.Center.UY / want
			cases = append(cases, cs)
			log.Info("case solved", "case", storage.CaseName(n, nlgeom), "node", cs.Node, "uy", cs.Center.UY, "ratio", cs.Ratio)
		}
	}
	return cases, nil
}

func (cv *Convergence) solve(ctx context.Context, c riser.Constants, n int, nlgeom bool, w float64) (cs Case, err error) {
	cs = Case{Elements: n, NLGeom: nlgeom}

	s, err := cv.Open(ctx)
	if err != nil {
		return cs, err
	}
	if ex, ok := s.(viv.Exclusive); ok {
		if err := ex.Acquire(); err != nil {
			return cs, err
		}
		defer ex.Release()
	}
	defer func() {
		if ferr := s.Finalize(); ferr != nil && err == nil {
			err = fmt.Errorf("finalize: %w", ferr)
		}
	}()

	h := c.Length / float64(n)
	setup := []struct {
		what string
		fn   func() error
	}{
		{"material", func() error {
			return s.DefineMaterial(viv.Material{ID: riser.MaterialRiser, Density: c.Density, Modulus: c.Modulus, Poisson: c.Poisson})
		}},
		{"section", func() error {
			return s.DefinePipeSection(viv.PipeSection{OuterDiameter: c.OuterDiameter, Thickness: c.Thickness, Cells: 12})
		}},
		{"mesh", func() error {
			return s.BuildMesh(viv.Geometry{End: viv.Point{X: c.Length}}, h)
		}},
		{"start support", func() error {
			return s.ApplyConstraint(1, viv.DOFUX, viv.DOFUY, viv.DOFUZ, viv.DOFROTX)
		}},
		{"end support", func() error {
			return s.ApplyConstraint(2, viv.DOFUX, viv.DOFUY, viv.DOFUZ)
		}},
		{"analysis", func() error { return s.ConfigureStatic(nlgeom) }},
		{"weight", func() error { return s.ApplyNodalForce(viv.FieldUY, -w*h) }},
	}
	for _, st := range setup {
		if err := st.fn(); err != nil {
			if errors.Is(err, viv.ErrResource) || errors.Is(err, viv.ErrSetup) {
				return cs, fmt.Errorf("%s: %w", st.what, err)
			}
			return cs, fmt.Errorf("%w: %s: %v", viv.ErrSetup, st.what, err)
		}
	}

	if err := s.Solve(); err != nil {
		return cs, fmt.Errorf("solve: %w", err)
	}
	rows, err := s.NodalDisplacements()
	if err != nil {
		return cs, err
	}
	node, err := s.NodeAt(viv.Point{X: c.Length / 2})
	if err != nil {
		return cs, err
	}
	cs.Node = node

	found := false
	for _, r := range rows {
		if r.Node == node {
			cs.Center, found = r, true
			break
		}
	}
	if !found {
		return cs, fmt.Errorf("%w: midspan node %d not in solution", viv.ErrSolverConvergence, node)
	}

	if cv.Dir != "" {
		if cs.Path, err = storage.SaveCase(cv.Dir, n, nlgeom, rows, cs.Center); err != nil {
			return cs, err
		}
	}
	return cs, nil
}
