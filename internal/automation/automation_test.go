package automation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"testing"

	"github.com/san-kum/vivsim/internal/backend"
	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/storage"
	"github.com/san-kum/vivsim/internal/surrogate"
	"github.com/san-kum/vivsim/internal/viv"
)

func shortConfig(name string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Name = name
	cfg.Run.Duration = 0.02
	return cfg
}

func surrogateOpener(t *testing.T) Opener {
	reg := backend.NewRegistry()
	return func(ctx context.Context) (viv.StaticSolver, error) {
		return reg.Open(ctx, backend.Surrogate, backend.Env{})
	}
}

func TestConvergence(t *testing.T) {
	cfg := config.GetPreset("field")
	cfg.Sweep.Elements = []int{2, 10}
	dir := t.TempDir()

	cv := &Convergence{Config: cfg, Open: surrogateOpener(t), Dir: dir}
	cases, err := cv.Run(context.Background())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if len(cases) != 4 {
		t.Fatalf("expected 4 cases, got %d", len(cases))
	}

	tests := []struct {
		elements int
		nlgeom   bool
		node     int
		ratio    float64
	}{
		{2, false, 3, 0.8},
		{10, false, 7, 0.992},
	}
	byName := map[string]Case{}
	for _, cs := range cases {
		byName[storage.CaseName(cs.Elements, cs.NLGeom)] = cs
	}
	for _, tt := range tests {
		cs := byName[storage.CaseName(tt.elements, tt.nlgeom)]
		if cs.Node != tt.node {
			t.Errorf("n=%d: midspan node %d, want %d", tt.elements, cs.Node, tt.node)
		}
		if math.Abs(cs.Ratio-tt.ratio) > 1e-6 {
			t.Errorf("n=%d: ratio %v, want %v", tt.elements, cs.Ratio, tt.ratio)
		}
		if cs.Analytical >= 0 || cs.Center.UY >= 0 {
			t.Errorf("n=%d: deflection should point down, got %+v", tt.elements, cs)
		}
	}

	for _, n := range []int{2, 10} {
		off := byName[storage.CaseName(n, false)]
		on := byName[storage.CaseName(n, true)]
		if math.Abs(on.Center.UY) >= math.Abs(off.Center.UY) {
			t.Errorf("n=%d: NLGEOM should stiffen, on=%v off=%v", n, on.Center.UY, off.Center.UY)
		}
	}

	cs := byName[storage.CaseName(10, true)]
	f, err := os.Open(cs.Path)
	if err != nil {
		t.Fatalf("case file missing: %v", err)
	}
	defer f.Close()
	center, err := storage.ReadCenter(f)
	if err != nil {
		t.Fatal(err)
	}
	if center.UY != cs.Center.UY {
		t.Errorf("stored center %v, want %v", center.UY, cs.Center.UY)
	}
}

func TestConvergenceValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"odd elements", func(c *config.Config) { c.Sweep.Elements = []int{2, 5} }},
		{"single element", func(c *config.Config) { c.Sweep.Elements = []int{1} }},
		{"no cases", func(c *config.Config) { c.Sweep.NLGeom = nil }},
		{"no gravity", func(c *config.Config) { c.Sweep.Gravity = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.GetPreset("field")
			tt.mutate(cfg)
			cv := &Convergence{Config: cfg, Open: surrogateOpener(t)}
			if _, err := cv.Run(context.Background()); !errors.Is(err, viv.ErrSetup) {
				t.Errorf("expected ErrSetup, got %v", err)
			}
		})
	}
}

func TestConvergenceOpenFailure(t *testing.T) {
	cv := &Convergence{
		Config: config.GetPreset("field"),
		Open: func(context.Context) (viv.StaticSolver, error) {
			return nil, viv.ErrResource
		},
	}
	cases, err := cv.Run(context.Background())
	if !errors.Is(err, viv.ErrResource) || len(cases) != 0 {
		t.Errorf("expected ErrResource and no cases, got %v, %d", err, len(cases))
	}
}

func TestRunnerRun(t *testing.T) {
	st := storage.New(t.TempDir())
	r := &Runner{Store: st}

	out, err := r.Run(context.Background(), shortConfig("short"))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Result == nil || out.Result.Steps != 20 {
		t.Fatalf("unexpected result %+v", out.Result)
	}
	if _, ok := out.Result.Metrics["max_disp_y"]; !ok {
		t.Error("default metrics not recorded")
	}

	meta, err := st.Load(out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != storage.StatusFinished || meta.Steps != 20 {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

func TestRunnerAborted(t *testing.T) {
	st := storage.New(t.TempDir())
	r := &Runner{Store: st}

	cfg := shortConfig("failing")
	cfg.Solver.FailAtStep = 5
	out, err := r.Run(context.Background(), cfg)

	var se *viv.StepError
	if !errors.As(err, &se) || se.Step != 5 {
		t.Fatalf("expected step error at 5, got %v", err)
	}
	if Fatal(err) {
		t.Error("step failures should not stop a batch")
	}
	if out.Result.Steps != 4 || out.RunID == "" {
		t.Errorf("partial run not kept: steps=%d id=%q", out.Result.Steps, out.RunID)
	}

	meta, err := st.Load(out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != storage.StatusAborted || meta.Reason != "solver failure" {
		t.Errorf("unexpected metadata %+v", meta)
	}
}

// lostSolver is a surrogate whose process goes away at the n-th solve.
type lostSolver struct {
	*surrogate.Solver
	at, solves int
}

func (s *lostSolver) SolveStep() error {
	s.solves++
	if s.solves == s.at {
		return fmt.Errorf("%w: process exited", viv.ErrResource)
	}
	return s.Solver.SolveStep()
}

func TestRunnerLostSolver(t *testing.T) {
	reg := backend.NewRegistry()
	opened := 0
	reg.Register("flaky", func(_ context.Context, env backend.Env) (viv.StaticSolver, error) {
		opened++
		return &lostSolver{Solver: surrogate.New(surrogate.Options{Logger: env.Logger}), at: 3}, nil
	})
	st := storage.New(t.TempDir())
	r := &Runner{Registry: reg, Store: st}

	cfg := shortConfig("lost")
	cfg.Backend = "flaky"
	out, err := r.Run(context.Background(), cfg)
	if !errors.Is(err, viv.ErrResource) {
		t.Fatalf("expected ErrResource, got %v", err)
	}
	if !Fatal(err) {
		t.Error("a lost solver should stop a batch")
	}
	if out.Result != nil || out.RunID != "" {
		t.Errorf("lost run should not be kept: %+v", out)
	}

	pts, err := r.RunSweep(context.Background(), &ParameterSweep{
		Base:      cfg,
		ParamName: "velocity",
		ParamMin:  0.04,
		ParamMax:  0.06,
		NumSteps:  3,
	})
	if !errors.Is(err, viv.ErrResource) {
		t.Fatalf("expected sweep to stop on ErrResource, got %v", err)
	}
	if len(pts) != 0 || opened != 2 {
		t.Errorf("sweep continued after a lost solver: points=%d opened=%d", len(pts), opened)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no stored runs, got %d", len(runs))
	}
}

func TestFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"setup", fmt.Errorf("%w: bad mesh", viv.ErrSetup), true},
		{"resource", viv.ErrResource, true},
		{"step convergence", &viv.StepError{Step: 4, Wrapped: viv.ErrSolverConvergence}, false},
		{"step instability", &viv.StepError{Step: 4, Wrapped: viv.ErrNumericalInstability}, false},
		{"step resource", &viv.StepError{Step: 4, Wrapped: viv.ErrResource}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fatal(tt.err); got != tt.want {
				t.Errorf("Fatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRunnerSetupFailure(t *testing.T) {
	r := &Runner{}

	cfg := shortConfig("bad")
	cfg.Backend = "nope"
	out, err := r.Run(context.Background(), cfg)
	if !errors.Is(err, viv.ErrSetup) || out.Result != nil {
		t.Errorf("expected setup failure without result, got %v", err)
	}
	if !Fatal(err) {
		t.Error("setup failures should stop a batch")
	}
}

const scenarioYAML = `
name: current
description: two flow speeds
steps:
  - preset: lab
    name: slow
    overrides:
      fluid:
        velocity: 0.04
      run:
        duration: 0.01
  - name: fast
    overrides:
      fluid:
        velocity: 0.08
      run:
        duration: 0.01
`

func TestParseScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML))
	if err != nil {
		t.Fatal(err)
	}
	if sc.Name != "current" || len(sc.Steps) != 2 {
		t.Fatalf("unexpected scenario %+v", sc)
	}

	cfg, err := sc.Steps[1].Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "fast" || cfg.Fluid.Velocity != 0.08 || cfg.Run.Duration != 0.01 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Fluid.Density != 1000 || cfg.Riser.Length != 0.2 {
		t.Error("overrides should keep the remaining defaults")
	}

	if _, err := ParseScenario([]byte("name: empty\n")); err == nil {
		t.Error("expected error for a scenario without steps")
	}
	if _, err := (ScenarioStep{Preset: "nope"}).Resolve(); err == nil {
		t.Error("expected error for an unknown preset")
	}
}

func TestRunScenario(t *testing.T) {
	sc, err := ParseScenario([]byte(scenarioYAML))
	if err != nil {
		t.Fatal(err)
	}
	st := storage.New(t.TempDir())
	r := &Runner{Store: st}

	outs, err := r.RunScenario(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if len(outs) != 2 || outs[0].Result.Steps != 10 || outs[1].Result.Steps != 10 {
		t.Fatalf("unexpected outcomes %+v", outs)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 stored runs, got %d", len(runs))
	}
}

func TestSweepValues(t *testing.T) {
	sw := &ParameterSweep{ParamName: "velocity", ParamMin: 0.02, ParamMax: 0.06, NumSteps: 3}
	vals, err := sw.Values()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.02, 0.04, 0.06}
	for i := range want {
		if math.Abs(vals[i]-want[i]) > 1e-12 {
			t.Errorf("value %d = %v, want %v", i, vals[i], want[i])
		}
	}

	sw.ParamName = "colour"
	if _, err := sw.Values(); !errors.Is(err, viv.ErrSetup) {
		t.Errorf("expected ErrSetup, got %v", err)
	}
	if len(SweepParams()) == 0 {
		t.Error("no sweep parameters")
	}
}

func TestRunSweep(t *testing.T) {
	base := shortConfig("lab")
	base.Run.Duration = 0.05
	r := &Runner{}

	pts, err := r.RunSweep(context.Background(), &ParameterSweep{
		Base:      base,
		ParamName: "velocity",
		ParamMin:  0.04,
		ParamMax:  0.06,
		NumSteps:  2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	for _, p := range pts {
		if p.Steps != 50 || p.Reason != "" || math.IsNaN(p.MaxCrossFlow) {
			t.Errorf("unexpected point %+v", p)
		}
	}
	if base.Fluid.Velocity != 0.05 {
		t.Error("sweep must not modify the base config")
	}
}

func TestRunSweepWorkers(t *testing.T) {
	base := shortConfig("lab")
	sweep := &ParameterSweep{
		Base:      base,
		ParamName: "velocity",
		ParamMin:  0.03,
		ParamMax:  0.07,
		NumSteps:  5,
		Workers:   3,
	}
	r := &Runner{Store: storage.New(t.TempDir())}

	pts, err := r.RunSweep(context.Background(), sweep)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 5 {
		t.Fatalf("expected 5 points, got %d", len(pts))
	}
	seen := map[string]bool{}
	for i, p := range pts {
		if math.Abs(p.ParamValue-(0.03+0.01*float64(i))) > 1e-12 {
			t.Errorf("point %d out of order: %v", i, p.ParamValue)
		}
		if p.RunID == "" || seen[p.RunID] {
			t.Errorf("point %d has a missing or duplicate run id %q", i, p.RunID)
		}
		seen[p.RunID] = true
	}

	sequential, err := (&Runner{}).RunSweep(context.Background(), &ParameterSweep{
		Base: base, ParamName: "velocity", ParamMin: 0.03, ParamMax: 0.07, NumSteps: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := range pts {
		if pts[i].MaxCrossFlow != sequential[i].MaxCrossFlow {
			t.Errorf("point %d differs between parallel and sequential runs", i)
		}
	}
}
