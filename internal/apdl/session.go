// Package apdl drives ANSYS MAPDL through its command language. A Session
// renders each solver capability as APDL commands over a Conn and parses
// the console answers.
package apdl

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/san-kum/vivsim/internal/viv"
)

type processor int

const (
	begin processor = iota
	prep7
	solution
	post1
)

var processorCmd = map[processor]string{
	prep7:    "/PREP7",
	solution: "/SOLU",
	post1:    "/POST1",
}

// Beam faces of PIPE288 carrying the wake loads.
const (
	dragFace = 4
	liftFace = 5
)

// Session implements viv.StaticSolver on top of a Conn.
type Session struct {
	conn   Conn
	logger *slog.Logger

	mu        sync.Mutex
	busy      bool
	proc      processor
	supported bool
	finalized bool
	commands  int
}

type SessionOption func(*Session)

func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

func NewSession(conn Conn, opts ...SessionOption) *Session {
	s := &Session{conn: conn, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commands is the number of commands sent so far.
func (s *Session) Commands() int { return s.commands }

func (s *Session) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return viv.ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Session) Release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// send issues one command. Solver error blocks are tagged with kind; a lost
// connection stays a viv.ErrResource.
func (s *Session) send(kind error, format string, args ...any) (string, error) {
	if s.finalized {
		return "", fmt.Errorf("%w: session finalized", viv.ErrResource)
	}
	cmd := fmt.Sprintf(format, args...)
	s.commands++
	out, err := s.conn.Exec(cmd)
	if err != nil {
		if errors.Is(err, viv.ErrResource) {
			return out, fmt.Errorf("%s: %w", cmd, err)
		}
		return out, fmt.Errorf("%w: %s: %v", viv.ErrResource, cmd, err)
	}
	if msgs := commandErrors(out); len(msgs) > 0 {
		return out, fmt.Errorf("%w: %s: %s", kind, cmd, strings.Join(msgs, "; "))
	}
	if hasWarning(out) {
		s.logger.Debug("solver warning", "cmd", cmd, "out", strings.TrimSpace(out))
	}
	return out, nil
}

func (s *Session) enter(p processor, kind error) error {
	if s.proc == p {
		return nil
	}
	if s.proc != begin {
		if _, err := s.send(kind, "FINISH"); err != nil {
			return err
		}
	}
	if _, err := s.send(kind, "%s", processorCmd[p]); err != nil {
		return err
	}
	s.proc = p
	return nil
}

func (s *Session) prep(format string, args ...any) error {
	if err := s.enter(prep7, viv.ErrSetup); err != nil {
		return err
	}
	_, err := s.send(viv.ErrSetup, format, args...)
	return err
}

func (s *Session) solu(kind error, format string, args ...any) (string, error) {
	if err := s.enter(solution, kind); err != nil {
		return "", err
	}
	return s.send(kind, format, args...)
}

func (s *Session) DefineMaterial(m viv.Material) error {
	if m.ID < 1 || !(m.Density > 0) {
		return fmt.Errorf("%w: material %d density %v", viv.ErrSetup, m.ID, m.Density)
	}
	if err := s.prep("MP,DENS,%d,%s", m.ID, num(m.Density)); err != nil {
		return err
	}
	if m.Modulus == 0 {
		return nil
	}
	if err := s.prep("MP,EX,%d,%s", m.ID, num(m.Modulus)); err != nil {
		return err
	}
	return s.prep("MP,PRXY,%d,%s", m.ID, num(m.Poisson))
}

func (s *Session) DefinePipeSection(p viv.PipeSection) error {
	cmds := []string{
		"ET,1,PIPE288",
		"SECTYPE,1,PIPE,,riser",
		fmt.Sprintf("SECDATA,%s,%s,%d", num(p.OuterDiameter), num(p.Thickness), p.Cells),
		"KEYOPT,1,4,2",
	}
	for _, c := range cmds {
		if err := s.prep("%s", c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) BuildMesh(g viv.Geometry, elementSize float64) error {
	if !(elementSize > 0) {
		return fmt.Errorf("%w: element size %v", viv.ErrSetup, elementSize)
	}
	a, b := g.Start, g.End
	cmds := []string{
		fmt.Sprintf("K,1,%s,%s,%s", num(a.X), num(a.Y), num(a.Z)),
		fmt.Sprintf("K,2,%s,%s,%s", num(b.X), num(b.Y), num(b.Z)),
		"L,1,2",
		fmt.Sprintf("LESIZE,1,%s", num(elementSize)),
		"MSHKEY,1",
		"LMESH,ALL",
	}
	for _, c := range cmds {
		if err := s.prep("%s", c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) ApplyFixedSupport(node int) error {
	return s.ApplyConstraint(node, viv.DOFAll)
}

func (s *Session) ApplyConstraint(node int, dofs ...viv.DOF) error {
	if len(dofs) == 0 {
		return fmt.Errorf("%w: no dof to constrain at node %d", viv.ErrSetup, node)
	}
	for _, d := range dofs {
		if err := s.prep("D,%d,%s,0", node, d); err != nil {
			return err
		}
	}
	s.supported = true
	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func (s *Session) ConfigureTransient(t viv.TransientSettings) error {
	lumped := 0
	if t.LumpedMass {
		lumped = 1
	}
	cmds := []string{
		fmt.Sprintf("ACEL,0,0,%s", num(t.Gravity)),
		"ANTYPE,4",
		fmt.Sprintf("NLGEOM,%s", onOff(t.NLGeom)),
		"TRNOPT,FULL,,,,,,NMK",
		fmt.Sprintf("LUMPM,%d", lumped),
		fmt.Sprintf("ALPHAD,%s", num(t.DampingAlpha)),
		fmt.Sprintf("BETAD,%s", num(t.DampingBeta)),
		fmt.Sprintf("TINTP,,%s,%s", num(t.NewmarkBeta), num(t.NewmarkGamma)),
		"AUTOTS,OFF",
		"KBC,1",
		"OUTRES,ERASE",
		"OUTRES,ALL,-1",
	}
	for _, c := range cmds {
		if _, err := s.solu(viv.ErrSetup, "%s", c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) SetTimeStep(dt float64) error {
	_, err := s.solu(viv.ErrSolverConvergence, "DELTIM,%s,0,0", num(dt))
	return err
}

func (s *Session) SetSimulationTime(t float64) error {
	_, err := s.solu(viv.ErrSolverConvergence, "TIME,%s", num(t))
	return err
}

func (s *Session) ApplyDistributedLoad(element int, drag, lift float64) error {
	if math.IsNaN(drag) || math.IsNaN(lift) || math.IsInf(drag, 0) || math.IsInf(lift, 0) {
		return fmt.Errorf("%w: non-finite load on element %d", viv.ErrNumericalInstability, element)
	}
	if _, err := s.solu(viv.ErrSolverConvergence, "SFBEAM,%d,%d,PRES,%s,%s", element, dragFace, num(drag), num(drag)); err != nil {
		return err
	}
	_, err := s.solu(viv.ErrSolverConvergence, "SFBEAM,%d,%d,PRES,%s,%s", element, liftFace, num(lift), num(lift))
	return err
}

func (s *Session) SolveStep() error {
	if !s.supported {
		return fmt.Errorf("%w: solve without supports", viv.ErrSetup)
	}
	_, err := s.solu(viv.ErrSolverConvergence, "SOLVE")
	return err
}

// getItems maps a field to the *GET node item and component.
var getItems = map[viv.Field]string{
	viv.FieldVX: "V,X",
	viv.FieldVY: "V,Y",
	viv.FieldAX: "A,X",
	viv.FieldAY: "A,Y",
	viv.FieldUX: "U,X",
	viv.FieldUY: "U,Y",
	viv.FieldUZ: "U,Z",
}

func (s *Session) NodalValue(node int, f viv.Field) (float64, error) {
	item, ok := getItems[f]
	if !ok {
		return 0, fmt.Errorf("apdl: no *GET item for field %s", f)
	}
	name := "VIV_" + f.String()
	out, err := s.send(viv.ErrSolverConvergence, "*GET,%s,NODE,%d,%s", name, node, item)
	if err != nil {
		return 0, err
	}
	v, err := parseParameter(out, name)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", viv.ErrSolverConvergence, err)
	}
	return v, nil
}

func (s *Session) SaveState() error {
	_, err := s.send(viv.ErrSolverConvergence, "SAVE")
	return err
}

// Finalize leaves the current processor and closes the connection. It is
// safe to call more than once.
func (s *Session) Finalize() error {
	if s.finalized {
		return nil
	}
	var err error
	if s.proc != begin {
		_, err = s.send(viv.ErrSolverConvergence, "FINISH")
	}
	s.finalized = true
	s.proc = begin
	if cerr := s.conn.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Session) ConfigureStatic(nlgeom bool) error {
	if _, err := s.solu(viv.ErrSetup, "ANTYPE,STATIC"); err != nil {
		return err
	}
	_, err := s.solu(viv.ErrSetup, "NLGEOM,%s", onOff(nlgeom))
	return err
}

var forceLabels = map[viv.Field]string{
	viv.FieldUX: "FX",
	viv.FieldUY: "FY",
	viv.FieldUZ: "FZ",
}

// ApplyNodalForce applies the same force to every node.
func (s *Session) ApplyNodalForce(f viv.Field, value float64) error {
	lab, ok := forceLabels[f]
	if !ok {
		return fmt.Errorf("%w: no force direction for %s", viv.ErrSetup, f)
	}
	_, err := s.solu(viv.ErrSetup, "F,ALL,%s,%s", lab, num(value))
	return err
}

func (s *Session) Solve() error {
	if !s.supported {
		return fmt.Errorf("%w: solve without supports", viv.ErrSetup)
	}
	_, err := s.solu(viv.ErrSolverConvergence, "SOLVE")
	return err
}

func (s *Session) post() error {
	if err := s.enter(post1, viv.ErrSolverConvergence); err != nil {
		return err
	}
	_, err := s.send(viv.ErrSolverConvergence, "SET,LAST")
	return err
}

func (s *Session) NodalDisplacements() ([]viv.NodalDisplacement, error) {
	if err := s.post(); err != nil {
		return nil, err
	}
	if _, err := s.send(viv.ErrSolverConvergence, "NSEL,ALL"); err != nil {
		return nil, err
	}
	out, err := s.send(viv.ErrSolverConvergence, "PRNSOL,U,COMP")
	if err != nil {
		return nil, err
	}
	rows := parseDisplacements(out)
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty displacement listing", viv.ErrSolverConvergence)
	}
	return rows, nil
}

// NodeAt selects the node at p and returns its number.
func (s *Session) NodeAt(p viv.Point) (int, error) {
	cmds := []string{
		fmt.Sprintf("NSEL,S,LOC,X,%s", num(p.X)),
		fmt.Sprintf("NSEL,R,LOC,Y,%s", num(p.Y)),
		fmt.Sprintf("NSEL,R,LOC,Z,%s", num(p.Z)),
	}
	for _, c := range cmds {
		if _, err := s.send(viv.ErrSetup, "%s", c); err != nil {
			return 0, err
		}
	}
	out, err := s.send(viv.ErrSetup, "*GET,VIV_NODE,NODE,0,NUM,MAX")
	if err != nil {
		return 0, err
	}
	if _, err := s.send(viv.ErrSetup, "NSEL,ALL"); err != nil {
		return 0, err
	}
	v, err := parseParameter(out, "VIV_NODE")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", viv.ErrSetup, err)
	}
	if v < 1 {
		return 0, fmt.Errorf("%w: no node at %+v", viv.ErrSetup, p)
	}
	return int(v), nil
}
