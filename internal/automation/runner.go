// Package automation runs batches of simulations: single coupled runs with
// storage, YAML scenarios, parameter sweeps over the flow conditions and
// the static mesh convergence study.
package automation

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/san-kum/vivsim/internal/backend"
	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/coupling"
	"github.com/san-kum/vivsim/internal/metrics"
	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/storage"
	"github.com/san-kum/vivsim/internal/viv"
)

// Runner opens a backend, drives one coupled run and stores the outcome.
type Runner struct {
	Registry *backend.Registry
	// Store keeps finished and aborted runs; nil skips saving.
	Store  *storage.Store
	Logger *slog.Logger
	// Journal receives the command stream of the journal backend.
	Journal       io.Writer
	ProgressEvery int
}

// Outcome is one coupled run. Result is nil when the run never started.
type Outcome struct {
	Config    *config.Config
	Constants riser.Constants
	Result    *coupling.Result
	RunID     string
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run derives the constants of cfg, runs the loop on cfg.Backend and saves
// any result, including the partial result of an aborted run. The run error
// is returned alongside the outcome.
func (r *Runner) Run(ctx context.Context, cfg *config.Config, opts ...coupling.Option) (*Outcome, error) {
	out := &Outcome{Config: cfg}
	c, err := riser.Derive(cfg)
	if err != nil {
		return out, err
	}
	out.Constants = c

	reg := r.Registry
	if reg == nil {
		reg = backend.NewRegistry()
	}
	log := r.logger().With("run", cfg.Name, "backend", cfg.Backend)
	solver, err := reg.Open(ctx, cfg.Backend, backend.Env{Config: cfg, Logger: log, Journal: r.Journal})
	if err != nil {
		return out, err
	}

	all := []coupling.Option{
		coupling.WithLogger(log),
		coupling.WithProgressEvery(r.ProgressEvery),
	}
	for _, m := range metrics.Default(c) {
		all = append(all, coupling.WithMetric(m))
	}
	all = append(all, opts...)

	res, runErr := coupling.New(solver, c, all...).Run(ctx)
	out.Result = res
	if res == nil || r.Store == nil {
		return out, runErr
	}

	id, err := r.Store.Save(cfg, c, res, runErr)
	if err != nil {
		log.Error("save failed", "err", err)
		return out, errors.Join(runErr, err)
	}
	out.RunID = id
	log.Info("run saved", "id", id, "steps", res.Steps, "aborted", res.Aborted)
	return out, runErr
}

// Fatal reports whether err stops a batch: setup and resource failures do,
// aborted steps do not.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, viv.ErrResource) {
		return true
	}
	var se *viv.StepError
	return !errors.As(err, &se)
}
