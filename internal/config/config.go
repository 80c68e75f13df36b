package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDt            = 0.001
	DefaultPeriods       = 1.4
	DefaultElements      = 1
	DefaultMonitoredNode = 2
	DefaultNewmarkBeta   = 0.25
	DefaultNewmarkGamma  = 0.5
	DefaultBackend       = "surrogate"
	DefaultExecutable    = "ansys242"
	DefaultTimeout       = 2 * time.Minute
	DefaultRetries       = 3
)

type Config struct {
	Name    string       `yaml:"name"`
	Backend string       `yaml:"backend"`
	Riser   RiserConfig  `yaml:"riser"`
	Fluid   FluidConfig  `yaml:"fluid"`
	Wake    WakeConfig   `yaml:"wake"`
	Run     RunConfig    `yaml:"run"`
	Solver  SolverConfig `yaml:"solver"`
	Sweep   SweepConfig  `yaml:"sweep"`
}

type RiserConfig struct {
	Density       float64 `yaml:"density"`
	Length        float64 `yaml:"length"`
	OuterDiameter float64 `yaml:"outer_diameter"`
	InnerDiameter float64 `yaml:"inner_diameter"`
	YoungModulus  float64 `yaml:"young_modulus"`
	Poisson       float64 `yaml:"poisson"`
}

type FluidConfig struct {
	Density   float64 `yaml:"density"`
	Velocity  float64 `yaml:"velocity"`
	AngleDeg  float64 `yaml:"angle_deg"`
	Strouhal  float64 `yaml:"strouhal"`
	AddedMass float64 `yaml:"added_mass"`
}

type WakeConfig struct {
	Ap        float64 `yaml:"ap"`
	Aq        float64 `yaml:"aq"`
	Ep        float64 `yaml:"ep"`
	Eq        float64 `yaml:"eq"`
	C0D       float64 `yaml:"c0d"`
	C0L       float64 `yaml:"c0l"`
	CiD0      float64 `yaml:"cid0"`
	P0        float64 `yaml:"p0"`
	Q0        float64 `yaml:"q0"`
	DP0       float64 `yaml:"dp0"`
	DQ0       float64 `yaml:"dq0"`
	Predictor string  `yaml:"predictor"`
}

type RunConfig struct {
	Dt            float64 `yaml:"dt"`
	Duration      float64 `yaml:"duration"`
	Periods       float64 `yaml:"periods"`
	Elements      int     `yaml:"elements"`
	MonitoredNode int     `yaml:"monitored_node"`
	NewmarkBeta   float64 `yaml:"newmark_beta"`
	NewmarkGamma  float64 `yaml:"newmark_gamma"`
	DampingAlpha  float64 `yaml:"damping_alpha"`
	DampingBeta   float64 `yaml:"damping_beta"`
	NLGeom        bool    `yaml:"nlgeom"`
	LumpedMass    bool    `yaml:"lumped_mass"`
	Gravity       float64 `yaml:"gravity"`
}

type SolverConfig struct {
	Executable    string        `yaml:"executable"`
	Args          []string      `yaml:"args"`
	WorkDir       string        `yaml:"work_dir"`
	JobName       string        `yaml:"job_name"`
	Timeout       time.Duration `yaml:"timeout"`
	LaunchRetries int           `yaml:"launch_retries"`
	FailAtStep    int           `yaml:"fail_at_step"`
}

type SweepConfig struct {
	Elements []int   `yaml:"elements"`
	NLGeom   []bool  `yaml:"nlgeom"`
	Gravity  float64 `yaml:"gravity"`
}

// DefaultConfig is the 200 mm laboratory riser in a 5 cm/s current.
func DefaultConfig() *Config {
	return &Config{
		Name:    "lab",
		Backend: DefaultBackend,
		Riser: RiserConfig{
			Density:       1000.0,
			Length:        0.200,
			OuterDiameter: 0.010,
			InnerDiameter: 0.0,
			YoungModulus:  0.5e9,
			Poisson:       0.3,
		},
		Fluid: FluidConfig{
			Density:   1000.0,
			Velocity:  0.05,
			AngleDeg:  0.0,
			Strouhal:  0.2,
			AddedMass: 1.0,
		},
		Wake: WakeConfig{
			Ap:        96.0,
			Aq:        12.0,
			Ep:        0.02,
			Eq:        0.04,
			C0D:       1.2,
			C0L:       0.30,
			CiD0:      0.2,
			P0:        2.0,
			Q0:        2.0,
			Predictor: "newmark",
		},
		Run: RunConfig{
			Dt:            DefaultDt,
			Periods:       DefaultPeriods,
			Elements:      DefaultElements,
			MonitoredNode: DefaultMonitoredNode,
			NewmarkBeta:   DefaultNewmarkBeta,
			NewmarkGamma:  DefaultNewmarkGamma,
			LumpedMass:    true,
		},
		Solver: SolverConfig{
			Executable:    DefaultExecutable,
			Args:          []string{"-b", "-smp"},
			JobName:       "riser",
			Timeout:       DefaultTimeout,
			LaunchRetries: DefaultRetries,
		},
		Sweep: SweepConfig{
			Elements: []int{2, 10, 20, 50, 100},
			NLGeom:   []bool{false, true},
			Gravity:  9.81,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Solver.Args = append([]string(nil), c.Solver.Args...)
	cp.Sweep.Elements = append([]int(nil), c.Sweep.Elements...)
	cp.Sweep.NLGeom = append([]bool(nil), c.Sweep.NLGeom...)
	return &cp
}
