// Package vivtest provides a scripted in-memory viv.Solver for tests.
package vivtest

import (
	"fmt"
	"sync"

	"github.com/san-kum/vivsim/internal/viv"
)

// Call is one recorded solver invocation.
type Call struct {
	Method string
	Args   []float64
}

// AppliedLoad is a distributed load seen by the solver.
type AppliedLoad struct {
	Solve   int // index of the solve the load feeds, starting at 1
	Element int
	viv.Load
}

// Solver records every call and answers NodalValue from Responses, indexed
// by completed solves (Responses[0] after the first solve). Past the end of
// Responses the last entry is repeated; with no responses it answers zero.
type Solver struct {
	Responses []viv.StructuralResponse

	// Fail maps a method name to the error it returns.
	Fail map[string]error
	// FailSolveAt makes the n-th SolveStep (1-based) return FailSolveErr.
	FailSolveAt  int
	FailSolveErr error

	mu        sync.Mutex
	busy      bool
	calls     []Call
	loads     []AppliedLoad
	solves    int
	finalized int
	saved     int
}

func New(responses ...viv.StructuralResponse) *Solver {
	return &Solver{Responses: responses, Fail: map[string]error{}}
}

func (s *Solver) record(method string, args ...float64) error {
	s.calls = append(s.calls, Call{Method: method, Args: args})
	if err := s.Fail[method]; err != nil {
		return err
	}
	return nil
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

func (s *Solver) DefineMaterial(m viv.Material) error {
	return s.record("DefineMaterial", float64(m.ID), m.Density, m.Modulus, m.Poisson)
}

func (s *Solver) DefinePipeSection(p viv.PipeSection) error {
	return s.record("DefinePipeSection", p.OuterDiameter, p.Thickness, float64(p.Cells))
}

func (s *Solver) BuildMesh(g viv.Geometry, size float64) error {
	return s.record("BuildMesh", g.Length(), size)
}

func (s *Solver) ApplyFixedSupport(node int) error {
	return s.record("ApplyFixedSupport", float64(node))
}

func (s *Solver) ConfigureTransient(t viv.TransientSettings) error {
	return s.record("ConfigureTransient", t.NewmarkBeta, t.NewmarkGamma, t.DampingAlpha, t.DampingBeta)
}

func (s *Solver) SetTimeStep(dt float64) error { return s.record("SetTimeStep", dt) }

func (s *Solver) SetSimulationTime(t float64) error { return s.record("SetSimulationTime", t) }

func (s *Solver) ApplyDistributedLoad(element int, drag, lift float64) error {
	if err := s.record("ApplyDistributedLoad", float64(element), drag, lift); err != nil {
		return err
	}
	s.loads = append(s.loads, AppliedLoad{Solve: s.solves + 1, Element: element, Load: viv.Load{Drag: drag, Lift: lift}})
	return nil
}

func (s *Solver) SolveStep() error {
	if err := s.record("SolveStep"); err != nil {
		return err
	}
	if s.FailSolveAt > 0 && s.solves+1 == s.FailSolveAt {
		if s.FailSolveErr != nil {
			return s.FailSolveErr
		}
		return fmt.Errorf("%w: scripted failure", viv.ErrSolverConvergence)
	}
	s.solves++
	return nil
}

func (s *Solver) NodalValue(node int, f viv.Field) (float64, error) {
	if err := s.record("NodalValue", float64(node), float64(f)); err != nil {
		return 0, err
	}
	r := s.response()
	switch f {
	case viv.FieldVX:
		return r.VelX, nil
	case viv.FieldVY:
		return r.VelY, nil
	case viv.FieldAX:
		return r.AcelX, nil
	case viv.FieldAY:
		return r.AcelY, nil
	case viv.FieldUX:
		return r.DispX, nil
	case viv.FieldUY:
		return r.DispY, nil
	}
	return 0, fmt.Errorf("vivtest: unsupported field %s", f)
}

func (s *Solver) response() viv.StructuralResponse {
	if s.solves == 0 || len(s.Responses) == 0 {
		return viv.StructuralResponse{}
	}
	i := s.solves - 1
	if i >= len(s.Responses) {
		i = len(s.Responses) - 1
	}
	return s.Responses[i]
}

func (s *Solver) SaveState() error {
	if err := s.record("SaveState"); err != nil {
		return err
	}
	s.saved++
	return nil
}

func (s *Solver) Finalize() error {
	s.finalized++
	return s.record("Finalize")
}

// Calls returns the recorded invocations.
func (s *Solver) Calls() []Call { return s.calls }

// Count returns how often method was called.
func (s *Solver) Count(method string) int {
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Loads returns the distributed loads in the order they were applied.
func (s *Solver) Loads() []AppliedLoad { return s.loads }

func (s *Solver) Solves() int    { return s.solves }
func (s *Solver) Finalized() int { return s.finalized }
func (s *Solver) Saved() int     { return s.saved }

// Methods returns the sequence of method names, for order assertions.
func (s *Solver) Methods() []string {
	names := make([]string, len(s.calls))
	for i, c := range s.calls {
		names[i] = c.Method
	}
	return names
}
