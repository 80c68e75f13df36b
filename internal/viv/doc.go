// Package viv provides the core types shared by the VIV co-simulation.
//
// The package defines the records exchanged between the wake oscillator and
// the structural solver, and the narrow capability interface through which
// the external solver is driven:
//
//   - [OscillatorState]: drag (p) and lift (q) wake oscillator state
//   - [StructuralResponse]: kinematics of the monitored node after a solve
//   - [Load]: drag/lift line loads applied to the riser
//   - [TimeHistory]: fixed-size result buffers, one slot per step
//   - [Solver]: command/query interface of the external structural solver
//
// # Example
//
//	s := surrogate.New(surrogate.Options{})
//	loop := coupling.New(s, consts)
//	result, err := loop.Run(ctx)
//
// # Thread Safety
//
// Nothing in this package is safe for concurrent use. A [Solver] is owned
// by exactly one coupling loop at a time; backends that front a real process
// implement [Exclusive] to enforce that.
package viv
