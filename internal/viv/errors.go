package viv

import (
	"errors"
	"fmt"
)

// Domain errors for co-simulation runs.
var (
	// ErrSetup indicates invalid geometry, material or analysis settings.
	ErrSetup = errors.New("viv: invalid model setup")

	// ErrSolverConvergence indicates the external solver failed a solve.
	ErrSolverConvergence = errors.New("viv: solver failed to converge")

	// ErrNumericalInstability indicates a non-finite wake oscillator state.
	ErrNumericalInstability = errors.New("viv: wake oscillator diverged (NaN or Inf detected)")

	// ErrResource indicates the external solver process is unavailable or died.
	ErrResource = errors.New("viv: external solver unavailable")

	// ErrBusy indicates the solver is already driven by another loop.
	ErrBusy = errors.New("viv: solver already in use")
)

// StepError wraps an error with the step at which the run aborted.
type StepError struct {
	Step    int
	Time    float64
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (t=%.4f): %v", e.Step, e.Time, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}

// AbortReason classifies err for reporting. It separates failures of the
// external solver from local numerical failures.
func AbortReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNumericalInstability):
		return "numerical failure"
	case errors.Is(err, ErrSolverConvergence):
		return "solver failure"
	case errors.Is(err, ErrResource), errors.Is(err, ErrBusy):
		return "solver unavailable"
	case errors.Is(err, ErrSetup):
		return "setup failure"
	default:
		return "interrupted"
	}
}
