// Package config loads the controller configuration from YAML, layering
// file values over the built-in defaults so a file only needs the values
// it changes.
package config

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/nopaddleboat/BaselineWalkingController/centroidal"
	"github.com/nopaddleboat/BaselineWalkingController/footstep"
)

// RobotConfig describes the robot the controller runs on.
type RobotConfig struct {
	// Mass is the robot mass (kg).
	Mass float64 `yaml:"mass"`
}

// Validate checks the robot settings.
func (c RobotConfig) Validate() error {
	if c.Mass <= 0 {
		return errors.Errorf("robot mass must be positive, got %v", c.Mass)
	}
	return nil
}

// SimConfig drives the closed-loop simulation.
type SimConfig struct {
	// Duration is the simulated time (s).
	Duration float64 `yaml:"duration"`
	// ControlDt is the control period (s).
	ControlDt float64 `yaml:"controlDt"`
}

// Validate checks the simulation settings.
func (c SimConfig) Validate() error {
	var err error
	if c.Duration <= 0 {
		err = multierr.Append(err, errors.Errorf("sim duration must be positive, got %v", c.Duration))
	}
	if c.ControlDt <= 0 {
		err = multierr.Append(err, errors.Errorf("control dt must be positive, got %v", c.ControlDt))
	}
	return err
}

// Config is the full controller configuration.
type Config struct {
	Robot      RobotConfig             `yaml:"robot"`
	Centroidal centroidal.DdpZmpConfig `yaml:"centroidalManager"`
	Walk       footstep.WalkParam      `yaml:"walk"`
	Sim        SimConfig               `yaml:"sim"`
}

// Default returns the stock configuration: a 60 kg robot walking five
// steps forward.
func Default() *Config {
	return &Config{
		Robot:      RobotConfig{Mass: 60},
		Centroidal: centroidal.DefaultDdpZmpConfig(),
		Walk: footstep.WalkParam{
			StepLength:            0.2,
			StepWidth:             0.2,
			NumSteps:              5,
			DoubleSupportDuration: 0.2,
			SingleSupportDuration: 0.8,
			StartTime:             1.0,
		},
		Sim: SimConfig{Duration: 10, ControlDt: 0.005},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read the config file")
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse the config file %q", path)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to encode the config")
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	return multierr.Combine(
		c.Robot.Validate(),
		c.Centroidal.Validate(),
		c.Walk.Validate(),
		c.Sim.Validate(),
	)
}
