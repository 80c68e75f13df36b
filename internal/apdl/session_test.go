package apdl

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/san-kum/vivsim/internal/viv"
)

// scriptedConn answers commands by prefix and *GET queries from values.
type scriptedConn struct {
	cmds    []string
	answers map[string]string
	values  map[string]float64
	fail    error
	closed  int
}

func newScripted() *scriptedConn {
	return &scriptedConn{answers: map[string]string{}, values: map[string]float64{}}
}

func (c *scriptedConn) Exec(cmd string) (string, error) {
	c.cmds = append(c.cmds, cmd)
	if c.fail != nil {
		return "", c.fail
	}
	if name, ok := getParameter(cmd); ok {
		if v, ok := c.values[name]; ok {
			return fmt.Sprintf(" PARAMETER %s =    %E", name, v), nil
		}
	}
	for prefix, out := range c.answers {
		if strings.HasPrefix(cmd, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (c *scriptedConn) Close() error {
	c.closed++
	return nil
}

func (c *scriptedConn) has(cmd string) bool {
	for _, c := range c.cmds {
		if c == cmd {
			return true
		}
	}
	return false
}

func TestSessionModelCommands(t *testing.T) {
	conn := newScripted()
	s := NewSession(conn)

	if err := s.DefineMaterial(viv.Material{ID: 1, Density: 1000, Modulus: 0.5e9, Poisson: 0.3}); err != nil {
		t.Fatal(err)
	}
	if err := s.DefineMaterial(viv.Material{ID: 2, Density: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := s.DefinePipeSection(viv.PipeSection{OuterDiameter: 0.01, Thickness: 0.005, Cells: 12}); err != nil {
		t.Fatal(err)
	}
	g := viv.Geometry{Start: viv.Point{Z: -0.2}}
	if err := s.BuildMesh(g, 0.2); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyFixedSupport(1); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"/PREP7",
		"MP,DENS,1,1000",
		"MP,EX,1,5E+08",
		"MP,PRXY,1,0.3",
		"MP,DENS,2,1000",
		"ET,1,PIPE288",
		"SECTYPE,1,PIPE,,riser",
		"SECDATA,0.01,0.005,12",
		"KEYOPT,1,4,2",
		"K,1,0,0,-0.2",
		"K,2,0,0,0",
		"L,1,2",
		"LESIZE,1,0.2",
		"MSHKEY,1",
		"LMESH,ALL",
		"D,1,ALL,0",
	}
	if len(conn.cmds) != len(want) {
		t.Fatalf("commands = %q", conn.cmds)
	}
	for i := range want {
		if conn.cmds[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, conn.cmds[i], want[i])
		}
	}
}

func TestSessionTransientStep(t *testing.T) {
	conn := newScripted()
	conn.values["VIV_VX"] = 0.0125
	conn.values["VIV_UY"] = -3.5e-4
	s := NewSession(conn)

	if err := s.ApplyFixedSupport(1); err != nil {
		t.Fatal(err)
	}
	err := s.ConfigureTransient(viv.TransientSettings{NewmarkBeta: 0.25, NewmarkGamma: 0.5, LumpedMass: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{"FINISH", "/SOLU", "ANTYPE,4", "NLGEOM,OFF", "TRNOPT,FULL,,,,,,NMK", "LUMPM,1", "TINTP,,0.25,0.5", "KBC,1"} {
		if !conn.has(cmd) {
			t.Errorf("missing %q in %q", cmd, conn.cmds)
		}
	}

	conn.cmds = nil
	if err := s.SetTimeStep(0.001); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSimulationTime(0.002); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyDistributedLoad(1, 0.0125, -0.5); err != nil {
		t.Fatal(err)
	}
	if err := s.SolveStep(); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"DELTIM,0.001,0,0",
		"TIME,0.002",
		"SFBEAM,1,4,PRES,0.0125,0.0125",
		"SFBEAM,1,5,PRES,-0.5,-0.5",
		"SOLVE",
	}
	for i := range want {
		if conn.cmds[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, conn.cmds[i], want[i])
		}
	}

	vx, err := s.NodalValue(2, viv.FieldVX)
	if err != nil || vx != 0.0125 {
		t.Errorf("VX = %v, %v", vx, err)
	}
	uy, err := s.NodalValue(2, viv.FieldUY)
	if err != nil || uy != -3.5e-4 {
		t.Errorf("UY = %v, %v", uy, err)
	}
	if last := conn.cmds[len(conn.cmds)-1]; last != "*GET,VIV_UY,NODE,2,U,Y" {
		t.Errorf("last command = %q", last)
	}
}

func TestSessionSolveErrors(t *testing.T) {
	conn := newScripted()
	conn.answers["SOLVE"] = " *** ERROR ***    CP = 1.2   TIME= 10:00:00\n Solution not converged at time 0.5.\n"
	s := NewSession(conn)

	if err := s.SolveStep(); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("solve without support: %v", err)
	}
	s.ApplyFixedSupport(1)

	err := s.SolveStep()
	if !errors.Is(err, viv.ErrSolverConvergence) {
		t.Fatalf("expected ErrSolverConvergence, got %v", err)
	}
	if !strings.Contains(err.Error(), "not converged") {
		t.Errorf("message lost: %v", err)
	}

	conn.answers["MP"] = " *** ERROR ***\n Material 1 is invalid.\n"
	if err := s.DefineMaterial(viv.Material{ID: 1, Density: 1}); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("expected ErrSetup, got %v", err)
	}
}

func TestSessionLostConnection(t *testing.T) {
	conn := newScripted()
	conn.fail = fmt.Errorf("%w: solver exited", viv.ErrResource)
	s := NewSession(conn)

	err := s.DefineMaterial(viv.Material{ID: 1, Density: 1})
	if !errors.Is(err, viv.ErrResource) || errors.Is(err, viv.ErrSetup) {
		t.Errorf("expected ErrResource only, got %v", err)
	}

	conn.fail = errors.New("broken pipe")
	if _, err := s.NodalValue(2, viv.FieldAX); !errors.Is(err, viv.ErrResource) {
		t.Errorf("expected ErrResource, got %v", err)
	}
}

func TestSessionMissingParameter(t *testing.T) {
	s := NewSession(newScripted())
	if _, err := s.NodalValue(2, viv.FieldAY); !errors.Is(err, viv.ErrSolverConvergence) {
		t.Errorf("expected ErrSolverConvergence, got %v", err)
	}
}

func TestSessionStatic(t *testing.T) {
	conn := newScripted()
	conn.answers["PRNSOL"] = `
 PRINT U    NODAL SOLUTION PER NODE

    NODE       UX           UY           UZ           USUM
        1   0.0000       0.0000       0.0000       0.0000
        2   0.0000       0.0000       0.0000       0.0000
        3   0.0000     -0.21300      0.0000      0.21300

 MAXIMUM ABSOLUTE VALUES
 NODE          0            3            0            3
`
	conn.values["VIV_NODE"] = 3
	s := NewSession(conn)

	s.ApplyConstraint(1, viv.DOFUX, viv.DOFUY)
	if err := s.ConfigureStatic(true); err != nil {
		t.Fatal(err)
	}
	if err := s.ApplyNodalForce(viv.FieldUY, -1500); err != nil {
		t.Fatal(err)
	}
	if err := s.Solve(); err != nil {
		t.Fatal(err)
	}
	for _, cmd := range []string{"D,1,UX,0", "D,1,UY,0", "ANTYPE,STATIC", "NLGEOM,ON", "F,ALL,FY,-1500", "SOLVE"} {
		if !conn.has(cmd) {
			t.Errorf("missing %q", cmd)
		}
	}

	rows, err := s.NodalDisplacements()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[2].Node != 3 || rows[2].UY != -0.213 {
		t.Errorf("rows = %+v", rows)
	}
	if !conn.has("/POST1") || !conn.has("SET,LAST") {
		t.Errorf("post processing not entered: %q", conn.cmds)
	}

	n, err := s.NodeAt(viv.Point{X: 15})
	if err != nil || n != 3 {
		t.Errorf("NodeAt = %d, %v", n, err)
	}
	if !conn.has("NSEL,S,LOC,X,15") {
		t.Error("node not selected by location")
	}

	if err := s.ApplyNodalForce(viv.FieldVX, 1); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("velocity is not a force direction: %v", err)
	}
}

func TestSessionFinalize(t *testing.T) {
	conn := newScripted()
	s := NewSession(conn)
	s.DefineMaterial(viv.Material{ID: 1, Density: 1})

	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}
	if conn.closed != 1 {
		t.Errorf("conn closed %d times", conn.closed)
	}
	if conn.cmds[len(conn.cmds)-1] != "FINISH" {
		t.Errorf("last command = %q", conn.cmds[len(conn.cmds)-1])
	}
	if err := s.SolveStep(); !errors.Is(err, viv.ErrSetup) && !errors.Is(err, viv.ErrResource) {
		t.Errorf("use after finalize: %v", err)
	}
}

func TestSessionExclusive(t *testing.T) {
	s := NewSession(newScripted())
	if err := s.Acquire(); err != nil {
		t.Fatal(err)
	}
	if err := s.Acquire(); !errors.Is(err, viv.ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	s.Release()
	if err := s.Acquire(); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestSessionOverJournal(t *testing.T) {
	var buf bytes.Buffer
	s := NewSession(NewJournal(&buf))

	s.ApplyFixedSupport(1)
	if err := s.SolveStep(); err != nil {
		t.Fatal(err)
	}
	v, err := s.NodalValue(2, viv.FieldAX)
	if err != nil || v != 0 {
		t.Errorf("journal AX = %v, %v", v, err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatal(err)
	}

	deck := buf.String()
	for _, line := range []string{"/PREP7", "D,1,ALL,0", "/SOLU", "SOLVE", "*GET,VIV_AX,NODE,2,A,X", "/EXIT,NOSAVE"} {
		if !strings.Contains(deck, line+"\n") {
			t.Errorf("deck missing %q:\n%s", line, deck)
		}
	}
}
