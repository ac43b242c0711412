package config

import "sort"

// Presets are named starting points layered over DefaultConfig.
var Presets = map[string]func(*Config){
	"default": func(*Config) {},
	"competition": func(c *Config) {
		c.Chassis.MaxSpeed = 5.5
		c.Control.Drive.Gains.P = 0.8
		c.Control.Drive.Gains.D = 3
		c.Control.SettleMs = 500
		c.Control.TimeoutMs = 4000
	},
	"xdrive": func(c *Config) {
		c.Chassis.Layout = "xdrive"
		c.Chassis.TrackWidth = 1.2
	},
	"noisy": func(c *Config) {
		c.Sim.HeadingNoiseDeg = 0.2
		c.Sim.HeadingDriftDegPerSec = 0.05
		c.Sim.DropoutRate = 0.02
		c.Control.TimeoutMs = 8000
	},
	"sluggish": func(c *Config) {
		c.Chassis.MaxSpeed = 2
		c.Sim.MotorLag = 0.25
		c.Sim.Integrator = "euler"
		c.Sim.Dt = 0.002
	},
}

// GetPreset returns a fresh config for the named preset, or nil if there is none.
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
