package config

import "sort"

// Presets are named starting points; each is applied on top of DefaultConfig.
var Presets = map[string]func(c *Config){
	"lab": func(c *Config) {},
	"lab-long": func(c *Config) {
		c.Name = "lab-long"
		c.Run.Periods = 10.0
	},
	"lab-legacy": func(c *Config) {
		c.Name = "lab-legacy"
		c.Wake.Predictor = "legacy"
	},
	"lab-refined": func(c *Config) {
		c.Name = "lab-refined"
		c.Run.Elements = 10
		c.Run.Dt = 0.0005
	},
	"field": func(c *Config) {
		c.Name = "field"
		c.Riser = RiserConfig{
			Density:       7000.0,
			Length:        30.0,
			OuterDiameter: 0.20,
			InnerDiameter: 0.12,
			YoungModulus:  100.0e9,
			Poisson:       0.3,
		}
		c.Fluid.Velocity = 0.5
		c.Run.Dt = 0.01
		c.Run.Periods = 5.0
		c.Run.Elements = 20
	},
}

// GetPreset returns a fresh config for the named preset, or nil.
func GetPreset(name string) *Config {
	apply, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
