package surrogate

import (
	"fmt"
	"math"

	"github.com/san-kum/vivsim/internal/viv"
)

// Solve computes the static response of a simply supported beam carrying
// the nodal forces at every interior node. With NLGEOM on, the midspan
// deflection is corrected for the membrane tension of immovable pinned
// ends, assuming a half-sine deflected shape.
func (s *Solver) Solve() error {
	if err := s.alive(); err != nil {
		return err
	}
	if !s.static {
		return fmt.Errorf("%w: static analysis not configured", viv.ErrSetup)
	}
	if s.elements == 0 || !s.supported() {
		return fmt.Errorf("%w: solve before mesh and supports are defined", viv.ErrSetup)
	}
	if len(s.constraints[1]) == 0 || len(s.constraints[2]) == 0 {
		return fmt.Errorf("%w: both beam ends must be supported", viv.ErrSetup)
	}
	ei, _, err := s.props()
	if err != nil {
		return err
	}

	l := s.geom.Length()
	axis := s.geom.End.Sub(s.geom.Start).Scale(1 / l)
	h := l / float64(s.elements)

	// Transverse part of the applied nodal force.
	force := viv.Point{X: s.nodalForce[0], Y: s.nodalForce[1], Z: s.nodalForce[2]}
	perp := force.Sub(axis.Scale(force.Dot(axis)))
	p := perp.Norm()

	defl := func(x float64) float64 {
		var d float64
		for i := 1; i < s.elements; i++ {
			d += pointLoad(p, float64(i)*h, x, l, ei)
		}
		return d
	}

	scale := 1.0
	if s.nlgeom && p > 0 {
		area := 0.25 * math.Pi * (math.Pow(s.section.OuterDiameter, 2) - math.Pow(s.section.OuterDiameter-2*s.section.Thickness, 2))
		inertia := ei / s.materials[riserMaterial].Modulus
		lin := defl(l / 2)
		scale = membrane(lin, area/(4*inertia)) / lin
	}

	var dir viv.Point
	if p > 0 {
		dir = perp.Scale(1 / p)
	}
	sol := make([]viv.NodalDisplacement, 0, s.Nodes())
	for node := 1; node <= s.Nodes(); node++ {
		xi, _ := s.position(node)
		u := dir.Scale(scale * defl(xi*l))
		sol = append(sol, viv.NodalDisplacement{Node: node, UX: u.X, UY: u.Y, UZ: u.Z})
	}
	s.solution = sol
	s.solves++
	s.logger.Debug("static solve", "elements", s.elements, "nlgeom", s.nlgeom, "scale", scale)
	return nil
}

// pointLoad is the deflection at x of a simply supported span l under a
// point load p at a.
func pointLoad(p, a, x, l, ei float64) float64 {
	if x > a {
		a, x = l-a, l-x
	}
	b := l - a
	return p * b * x * (l*l - b*b - x*x) / (6 * l * ei)
}

// membrane solves d·(1 + c·d²) = lin for d by Newton iteration.
func membrane(lin, c float64) float64 {
	d := lin
	for i := 0; i < 50; i++ {
		f := d*(1+c*d*d) - lin
		step := f / (1 + 3*c*d*d)
		d -= step
		if math.Abs(step) <= 1e-14*math.Abs(lin) {
			break
		}
	}
	return d
}

func (s *Solver) NodalDisplacements() ([]viv.NodalDisplacement, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	if s.solution == nil {
		return nil, fmt.Errorf("%w: no static solution", viv.ErrSolverConvergence)
	}
	return append([]viv.NodalDisplacement(nil), s.solution...), nil
}

// NodeAt returns the node at p within a small fraction of the mesh size.
func (s *Solver) NodeAt(p viv.Point) (int, error) {
	if s.elements == 0 {
		return 0, fmt.Errorf("%w: no mesh", viv.ErrSetup)
	}
	l := s.geom.Length()
	tol := 1e-6 * l / float64(s.elements)
	d := s.geom.End.Sub(s.geom.Start)
	for node := 1; node <= s.Nodes(); node++ {
		xi, _ := s.position(node)
		at := s.geom.Start.Add(d.Scale(xi))
		if at.Sub(p).Norm() <= tol {
			return node, nil
		}
	}
	return 0, fmt.Errorf("%w: no node at %+v", viv.ErrSetup, p)
}
