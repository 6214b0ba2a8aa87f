package calibration

import (
	"fmt"
	"sync"

	"github.com/relabs-tech/balance_robot/internal/config"
)

// Offsets holds the persisted sensor bias offsets and filter settings.
// The values are produced by the calibrate command (or left at zero) and
// consumed by the orientation estimator on every sample.
type Offsets struct {
	GyroOffset  [3]float64 `json:"gyro_offset"`  // °/s
	AccelOffset [3]float64 `json:"accel_offset"` // m/s²

	FilterGain   float64 `json:"filter_gain"`
	SampleRateHz int     `json:"sample_rate_hz"`
	UpsideDown   bool    `json:"upside_down"`
}

// Store owns the calibration offsets for the lifetime of the process.
// Reads and writes go through a copy under an RWMutex; mutations are
// checkpointed to the config file before returning.
type Store struct {
	mu      sync.RWMutex
	offsets Offsets
}

// NewStore builds a Store from the loaded configuration.
func NewStore(cfg config.Config) *Store {
	return &Store{
		offsets: Offsets{
			GyroOffset:   [3]float64{cfg.GyroOffsetX, cfg.GyroOffsetY, cfg.GyroOffsetZ},
			AccelOffset:  [3]float64{cfg.AccelOffsetX, cfg.AccelOffsetY, cfg.AccelOffsetZ},
			FilterGain:   cfg.FilterGain,
			SampleRateHz: cfg.SampleRateHz,
			UpsideDown:   cfg.UpsideDown,
		},
	}
}

// Snapshot returns a copy of the current offsets.
func (s *Store) Snapshot() Offsets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offsets
}

// SetGain updates the filter gain. Values outside the open interval (0,1)
// are rejected without mutating state. On success the new gain is written
// through to the config file; a write failure keeps the in-memory value
// and is returned so the operator knows the change will not survive a
// restart.
func (s *Store) SetGain(gain float64) error {
	if !(gain > 0 && gain < 1) {
		return fmt.Errorf("invalid filter gain %g: must be in (0,1)", gain)
	}

	s.mu.Lock()
	s.offsets.FilterGain = gain
	s.mu.Unlock()

	return config.Update(func(c *config.Config) {
		c.FilterGain = gain
	})
}

// SetOffsets replaces the bias offsets, typically after a standstill
// calibration run, and checkpoints them.
func (s *Store) SetOffsets(gyro, accel [3]float64) error {
	s.mu.Lock()
	s.offsets.GyroOffset = gyro
	s.offsets.AccelOffset = accel
	s.mu.Unlock()

	return config.Update(func(c *config.Config) {
		c.GyroOffsetX, c.GyroOffsetY, c.GyroOffsetZ = gyro[0], gyro[1], gyro[2]
		c.AccelOffsetX, c.AccelOffsetY, c.AccelOffsetZ = accel[0], accel[1], accel[2]
	})
}
