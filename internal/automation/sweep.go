package automation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/san-kum/vivsim/internal/analysis"
	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/viv"
)

// sweepParams are the config values a ParameterSweep can vary.
var sweepParams = map[string]func(c *config.Config, v float64){
	"velocity":      func(c *config.Config, v float64) { c.Fluid.Velocity = v },
	"angle":         func(c *config.Config, v float64) { c.Fluid.AngleDeg = v },
	"added_mass":    func(c *config.Config, v float64) { c.Fluid.AddedMass = v },
	"strouhal":      func(c *config.Config, v float64) { c.Fluid.Strouhal = v },
	"damping_alpha": func(c *config.Config, v float64) { c.Run.DampingAlpha = v },
	"damping_beta":  func(c *config.Config, v float64) { c.Run.DampingBeta = v },
	"dt":            func(c *config.Config, v float64) { c.Run.Dt = v },
}

// SweepParams lists the parameters a ParameterSweep accepts.
func SweepParams() []string {
	names := make([]string, 0, len(sweepParams))
	for name := range sweepParams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParameterSweep runs the base config at evenly spaced values of one
// parameter.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	// Workers runs that many values at once, each on its own backend.
	Workers int
}

// SweepPoint is the response at one parameter value.
type SweepPoint struct {
	ParamValue   float64
	RunID        string
	Steps        int
	Reason       string
	MaxCrossFlow float64 // outer diameters
	RMSCrossFlow float64
	Dominant     float64 // Hz
	Ratio        float64 // dominant over shedding frequency
}

func (s *ParameterSweep) Values() ([]float64, error) {
	if _, ok := sweepParams[s.ParamName]; !ok {
		return nil, fmt.Errorf("%w: cannot sweep %q", viv.ErrSetup, s.ParamName)
	}
	if s.NumSteps < 1 {
		return nil, fmt.Errorf("%w: sweep needs at least one value", viv.ErrSetup)
	}
	if s.NumSteps == 1 {
		return []float64{s.ParamMin}, nil
	}
	step := (s.ParamMax - s.ParamMin) / float64(s.NumSteps-1)
	vals := make([]float64, s.NumSteps)
	for i := range vals {
		vals[i] = s.ParamMin + float64(i)*step
	}
	return vals, nil
}

// RunSweep runs one coupled run per value. Aborted runs yield a point with
// the abort reason; setup and resource failures stop the sweep. Points are
// returned in value order.
func (r *Runner) RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepPoint, error) {
	vals, err := sweep.Values()
	if err != nil {
		return nil, err
	}

	points := make([]SweepPoint, len(vals))
	errs := make([]error, len(vals))
	workers := min(max(sweep.Workers, 1), len(vals))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, v := range vals {
		if workers == 1 {
			points[i], errs[i] = r.sweepPoint(ctx, sweep, v)
			if errs[i] != nil {
				return points[:i], errs[i]
			}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, v float64) {
			defer wg.Done()
			defer func() { <-sem }()
			points[idx], errs[idx] = r.sweepPoint(ctx, sweep, v)
		}(i, v)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return points[:i], err
		}
	}
	return points, nil
}

func (r *Runner) sweepPoint(ctx context.Context, sweep *ParameterSweep, v float64) (SweepPoint, error) {
	cfg := sweep.Base.Clone()
	cfg.Name = fmt.Sprintf("%s_%s_%g", sweep.Base.Name, sweep.ParamName, v)
	sweepParams[sweep.ParamName](cfg, v)

	out, err := r.Run(ctx, cfg)
	if Fatal(err) {
		return SweepPoint{ParamValue: v}, fmt.Errorf("%s=%g: %w", sweep.ParamName, v, err)
	}

	pt := SweepPoint{ParamValue: v, RunID: out.RunID}
	if res := out.Result; res != nil {
		pt.Steps = res.Steps
		pt.Reason = res.Reason
		pt.MaxCrossFlow = res.Metrics["max_disp_y"]
		pt.RMSCrossFlow = res.Metrics["rms_disp_y"]
		if rep, err := analysis.Analyze(res.History.Committed(), out.Constants.Dt, out.Constants.Frequency); err == nil {
			y := rep.Series["disp_y"]
			pt.Dominant, pt.Ratio = y.Dominant, y.Ratio
		}
	}
	r.logger().Info("sweep point", sweep.ParamName, v, "steps", pt.Steps, "max_y", pt.MaxCrossFlow)
	return pt, nil
}
