package viv

import "math"

// OscillatorState holds the drag (p) and lift (q) wake variables with their
// first and second time derivatives.
type OscillatorState struct {
	P, DP, DP2 float64
	Q, DQ, DQ2 float64
}

// IsValid reports whether every component is finite.
func (s OscillatorState) IsValid() bool {
	for _, v := range [...]float64{s.P, s.DP, s.DP2, s.Q, s.DQ, s.DQ2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// StructuralResponse is the kinematic state of the monitored node as read
// back from the solver after a solve.
type StructuralResponse struct {
	VelX, VelY   float64
	AcelX, AcelY float64
	DispX, DispY float64
}

// Load is a pair of distributed loads per unit length.
type Load struct {
	Drag float64
	Lift float64
}

// Record is one committed co-simulation step.
type Record struct {
	Step     int
	Time     float64
	Wake     OscillatorState
	Load     Load
	Response StructuralResponse
}

// Observer receives every committed step.
type Observer interface {
	OnStep(r Record)
}

// Field names a nodal result quantity.
type Field int

const (
	FieldVX Field = iota
	FieldVY
	FieldAX
	FieldAY
	FieldUX
	FieldUY
	FieldUZ
)

var fieldNames = [...]string{"VX", "VY", "AX", "AY", "UX", "UY", "UZ"}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return "UNKNOWN"
	}
	return fieldNames[f]
}

// DOF names a nodal degree of freedom that can be constrained.
type DOF string

const (
	DOFUX   DOF = "UX"
	DOFUY   DOF = "UY"
	DOFUZ   DOF = "UZ"
	DOFROTX DOF = "ROTX"
	DOFROTY DOF = "ROTY"
	DOFROTZ DOF = "ROTZ"
	DOFAll  DOF = "ALL"
)

// Material is an isotropic linear elastic material.
type Material struct {
	ID      int
	Density float64
	Modulus float64 // zero for fluid-only materials
	Poisson float64
}

// PipeSection is a circular hollow beam section.
type PipeSection struct {
	OuterDiameter float64
	Thickness     float64
	Cells         int // circumferential integration cells
}

// Point is a location in the global frame.
type Point struct {
	X, Y, Z float64
}

// Geometry is the straight riser axis between two end points.
type Geometry struct {
	Start Point
	End   Point
}

func (p Point) Add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y, p.Z + q.Z} }
func (p Point) Sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y, p.Z - q.Z} }
func (p Point) Scale(k float64) Point { return Point{k * p.X, k * p.Y, k * p.Z} }
func (p Point) Dot(q Point) float64   { return p.X*q.X + p.Y*q.Y + p.Z*q.Z }
func (p Point) Norm() float64         { return math.Sqrt(p.Dot(p)) }

// Length returns the distance between the end points.
func (g Geometry) Length() float64 { return g.End.Sub(g.Start).Norm() }

// TransientSettings configures a full transient analysis.
type TransientSettings struct {
	NewmarkBeta  float64
	NewmarkGamma float64
	DampingAlpha float64 // mass-proportional Rayleigh damping
	DampingBeta  float64 // stiffness-proportional Rayleigh damping
	LumpedMass   bool
	NLGeom       bool
	Gravity      float64 // acceleration along the riser axis
}

// NodalDisplacement is one row of a static solution.
type NodalDisplacement struct {
	Node       int
	UX, UY, UZ float64
}

// Solver is the command/query interface of the external structural solver.
// Calls block until the solver answers.
type Solver interface {
	DefineMaterial(m Material) error
	DefinePipeSection(s PipeSection) error
	BuildMesh(g Geometry, elementSize float64) error
	ApplyFixedSupport(node int) error
	ConfigureTransient(t TransientSettings) error
	SetTimeStep(dt float64) error
	SetSimulationTime(t float64) error
	SolveStep() error
	ApplyDistributedLoad(element int, drag, lift float64) error
	NodalValue(node int, f Field) (float64, error)
	SaveState() error
	Finalize() error
}

// StaticSolver is implemented by backends able to run the static
// convergence study.
type StaticSolver interface {
	Solver
	ConfigureStatic(nlgeom bool) error
	ApplyConstraint(node int, dofs ...DOF) error
	ApplyNodalForce(f Field, value float64) error
	Solve() error
	NodalDisplacements() ([]NodalDisplacement, error)
	NodeAt(p Point) (int, error)
}

// Exclusive is implemented by backends that must have a single owner.
type Exclusive interface {
	Acquire() error
	Release()
}
