package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/vivsim/internal/config"
	"github.com/san-kum/vivsim/internal/riser"
	"github.com/san-kum/vivsim/internal/viv"
	"github.com/san-kum/vivsim/internal/wake"
)

func rec(dx, dy float64) viv.Record {
	return viv.Record{Response: viv.StructuralResponse{DispX: dx, DispY: dy}}
}

func TestMaxDisplacement(t *testing.T) {
	m := NewMaxDisplacement(CrossFlow, 0.01)
	for _, dy := range []float64{0.001, -0.004, 0.002} {
		m.OnStep(rec(1, dy))
	}
	if math.Abs(m.Value()-0.4) > 1e-12 {
		t.Errorf("max = %v, want 0.4", m.Value())
	}
	if m.Name() != "max_disp_y" {
		t.Errorf("name = %s", m.Name())
	}
	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero after reset")
	}
}

func TestRMSDisplacement(t *testing.T) {
	m := NewRMSDisplacement(InLine, 2)
	if m.Value() != 0 {
		t.Error("expected zero without samples")
	}
	m.OnStep(rec(2, 0))
	m.OnStep(rec(-2, 0))
	m.OnStep(rec(0, 5))
	m.OnStep(rec(0, 5))
	if math.Abs(m.Value()-math.Sqrt(0.5)) > 1e-12 {
		t.Errorf("rms = %v, want %v", m.Value(), math.Sqrt(0.5))
	}
	if m.Name() != "rms_disp_x" {
		t.Errorf("name = %s", m.Name())
	}
}

func TestStability(t *testing.T) {
	s := NewStability(1.0, 0.01)
	if s.Value() != 1 {
		t.Errorf("empty stability = %v", s.Value())
	}
	s.OnStep(rec(0.005, 0.005))
	s.OnStep(rec(0.009, 0.009))
	s.OnStep(rec(math.NaN(), 0))
	s.OnStep(rec(0, -0.002))
	if math.Abs(s.Value()-0.5) > 1e-12 {
		t.Errorf("stability = %v, want 0.5", s.Value())
	}
	s.Reset()
	if s.Value() != 1 {
		t.Error("expected full stability after reset")
	}
}

func TestLoadMetrics(t *testing.T) {
	drag, lift := NewMeanDrag(), NewPeakLift()
	for _, l := range []viv.Load{{Drag: 1, Lift: 0.2}, {Drag: 3, Lift: -0.7}} {
		r := viv.Record{Load: l}
		drag.OnStep(r)
		lift.OnStep(r)
	}
	if drag.Value() != 2 {
		t.Errorf("mean drag = %v", drag.Value())
	}
	if lift.Value() != 0.7 {
		t.Errorf("peak lift = %v", lift.Value())
	}
}

func TestWakeEnergy(t *testing.T) {
	p := wake.Params{Omega: 2}
	e := NewWakeEnergy(p)
	d := NewWakeEnergyDrift(p)

	states := []viv.OscillatorState{
		{P: 1, Q: 1},
		{P: 0, DP: 4, Q: 0, DQ: 2},
	}
	for _, s := range states {
		r := viv.Record{Wake: s}
		e.OnStep(r)
		d.OnStep(r)
	}

	// Kp = 16, Kq = 4: first step 8 + 2, second 8 + 2.
	if math.Abs(e.Value()-10) > 1e-12 {
		t.Errorf("wake energy = %v, want 10", e.Value())
	}
	if d.Value() != 0 {
		t.Errorf("drift = %v, want 0", d.Value())
	}

	d.OnStep(viv.Record{Wake: viv.OscillatorState{Q: 2}})
	if math.Abs(d.Value()-3) > 1e-12 {
		t.Errorf("drift = %v, want 3", d.Value())
	}
}

func TestDefault(t *testing.T) {
	c, err := riser.Derive(config.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	for _, m := range Default(c) {
		if seen[m.Name()] {
			t.Errorf("duplicate metric %s", m.Name())
		}
		seen[m.Name()] = true
	}
	for _, name := range []string{"max_disp_y", "rms_disp_y", "stability", "wake_energy"} {
		if !seen[name] {
			t.Errorf("missing metric %s", name)
		}
	}
}
