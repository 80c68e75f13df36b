// Package backend maps backend names to structural solver factories.
package backend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/san-kum/vivsim/internal/apdl"
	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/surrogate"
	"github.com/san-kum/vivsim/internal/viv"
)

const (
	Surrogate = "surrogate"
	MAPDL     = "mapdl"
	Journal   = "journal"
)

// Env is what a factory may use to open a solver.
type Env struct {
	Config *config.Config
	Logger *slog.Logger
	// Journal receives the command stream of the journal backend.
	Journal io.Writer
}

type Factory func(ctx context.Context, env Env) (viv.StaticSolver, error)

type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}

	r.factories[Surrogate] = func(_ context.Context, env Env) (viv.StaticSolver, error) {
		return surrogate.New(surrogate.Options{
			AddedMass:  env.Config.Fluid.AddedMass,
			FailAtStep: env.Config.Solver.FailAtStep,
			Logger:     env.Logger,
		}), nil
	}
	r.factories[MAPDL] = func(ctx context.Context, env Env) (viv.StaticSolver, error) {
		sc := env.Config.Solver
		p, err := apdl.Launch(ctx, apdl.Options{
			Executable: sc.Executable,
			Args:       sc.Args,
			WorkDir:    sc.WorkDir,
			JobName:    sc.JobName,
			Timeout:    sc.Timeout,
			Retries:    sc.LaunchRetries,
			Logger:     env.Logger,
		})
		if err != nil {
			return nil, err
		}
		return apdl.NewSession(p, apdl.WithLogger(env.Logger)), nil
	}
	r.factories[Journal] = func(_ context.Context, env Env) (viv.StaticSolver, error) {
		if env.Journal == nil {
			return nil, fmt.Errorf("%w: journal backend needs an output", viv.ErrSetup)
		}
		return apdl.NewSession(apdl.NewJournal(env.Journal), apdl.WithLogger(env.Logger)), nil
	}

	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

func (r *Registry) Open(ctx context.Context, name string, env Env) (viv.StaticSolver, error) {
	fn, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend: %s", viv.ErrSetup, name)
	}
	if env.Config == nil {
		env.Config = config.DefaultConfig()
	}
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	return fn(ctx, env)
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
