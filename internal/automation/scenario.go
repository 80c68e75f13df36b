package automation

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/vivsim/internal/config"
)

// Scenario is a scripted sequence of coupled runs.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset or a config file and applies the
// overrides on top, using the config file layout:
//
//	- preset: lab
//	  name: lab-fast
//	  overrides:
//	    fluid:
//	      velocity: 0.08
type ScenarioStep struct {
	Name      string    `yaml:"name"`
	Preset    string    `yaml:"preset"`
	Config    string    `yaml:"config"`
	Backend   string    `yaml:"backend"`
	Overrides yaml.Node `yaml:"overrides"`
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	return &sc, nil
}

// Resolve builds the config of the step.
func (st ScenarioStep) Resolve() (*config.Config, error) {
	var cfg *config.Config
	switch {
	case st.Config != "":
		c, err := config.Load(st.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	case st.Preset != "":
		cfg = config.GetPreset(st.Preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s", st.Preset)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if !st.Overrides.IsZero() {
		if err := st.Overrides.Decode(cfg); err != nil {
			return nil, fmt.Errorf("overrides: %w", err)
		}
	}
	if st.Name != "" {
		cfg.Name = st.Name
	}
	if st.Backend != "" {
		cfg.Backend = st.Backend
	}
	return cfg, nil
}

// RunScenario runs every step in order. Aborted runs are kept and the
// scenario continues; setup and resource failures stop it.
func (r *Runner) RunScenario(ctx context.Context, sc *Scenario) ([]*Outcome, error) {
	outcomes := make([]*Outcome, 0, len(sc.Steps))
	log := r.logger()

	for i, step := range sc.Steps {
		cfg, err := step.Resolve()
		if err != nil {
			return outcomes, fmt.Errorf("step %d: %w", i+1, err)
		}
		log.Info("scenario step", "scenario", sc.Name, "step", i+1, "of", len(sc.Steps), "run", cfg.Name)

		out, err := r.Run(ctx, cfg)
		outcomes = append(outcomes, out)
		if Fatal(err) {
			return outcomes, fmt.Errorf("step %d: %w", i+1, err)
		}
		if err != nil {
			log.Warn("scenario step aborted", "step", i+1, "err", err)
		}
	}
	return outcomes, nil
}
