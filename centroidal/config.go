package centroidal

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// ManagerConfig holds the settings shared by centroidal managers.
type ManagerConfig struct {
	// Name prefixes the manager's telemetry entries.
	Name string `yaml:"name"`
	// RefComZ is the reference CoM height the planner tracks (m).
	RefComZ float64 `yaml:"refComZ"`
}

// Validate checks the shared settings.
func (c ManagerConfig) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("manager name must not be empty"))
	}
	if c.RefComZ <= 0 {
		err = multierr.Append(err, errors.Errorf("reference CoM height must be positive, got %v", c.RefComZ))
	}
	return err
}

// DdpZmpConfig configures the DDP-based manager.
type DdpZmpConfig struct {
	ManagerConfig `yaml:",inline"`

	// HorizonDuration is the receding horizon length (s).
	HorizonDuration float64 `yaml:"horizonDuration"`
	// HorizonDt is the horizon discretization step (s).
	HorizonDt float64 `yaml:"horizonDt"`
	// DdpMaxIter caps the solver iterations per control cycle.
	DdpMaxIter int `yaml:"ddpMaxIter"`
}

// DefaultDdpZmpConfig returns the stock manager configuration.
func DefaultDdpZmpConfig() DdpZmpConfig {
	return DdpZmpConfig{
		ManagerConfig: ManagerConfig{
			Name:    "CentroidalManager",
			RefComZ: 0.9,
		},
		HorizonDuration: 2.0,
		HorizonDt:       0.02,
		DdpMaxIter:      3,
	}
}

// Validate checks the manager configuration.
func (c DdpZmpConfig) Validate() error {
	err := c.ManagerConfig.Validate()
	if c.HorizonDuration <= 0 {
		err = multierr.Append(err, errors.Errorf("horizon duration must be positive, got %v", c.HorizonDuration))
	}
	if c.HorizonDt <= 0 {
		err = multierr.Append(err, errors.Errorf("horizon dt must be positive, got %v", c.HorizonDt))
	}
	if c.HorizonDuration > 0 && c.HorizonDt > 0 && c.HorizonDuration < c.HorizonDt {
		err = multierr.Append(err, errors.Errorf(
			"horizon duration %v is shorter than one step of %v", c.HorizonDuration, c.HorizonDt))
	}
	if c.DdpMaxIter < 1 {
		err = multierr.Append(err, errors.Errorf("ddp iteration cap must be at least 1, got %d", c.DdpMaxIter))
	}
	return err
}

// HorizonSteps is the number of discretization steps in the horizon.
func (c DdpZmpConfig) HorizonSteps() int {
	return int(c.HorizonDuration / c.HorizonDt)
}
