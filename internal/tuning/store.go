// Package tuning exposes the live PID parameters to external clients:
// snapshot reads for the control loop, validated partial updates from the
// dashboard, both persisted through the config file.
package tuning

import (
	"fmt"
	"math"
	"sync"

	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/pid"
)

// ValidationError reports a rejected parameter update. The stored
// parameters are unchanged when this is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistError reports that an accepted update could not be written to the
// config file. The in-memory parameters did change and are in effect for
// the running process, but they will not survive a restart.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("parameters updated but not persisted: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Update is a partial parameter change; nil fields are left untouched.
type Update struct {
	Kp          *float64 `json:"kp,omitempty"`
	Ki          *float64 `json:"ki,omitempty"`
	Kd          *float64 `json:"kd,omitempty"`
	TargetAngle *float64 `json:"target_angle,omitempty"`
}

// Store holds the tunable PID parameters. Get and Set copy the whole
// parameter set under a single mutex, so the control loop can never
// observe a torn update, and no lock is held across config file I/O.
type Store struct {
	mu     sync.RWMutex
	params pid.Params
}

// NewStore builds a Store from the loaded configuration.
func NewStore(cfg config.Config) *Store {
	return &Store{
		params: pid.Params{
			Kp:          cfg.PGain,
			Ki:          cfg.IGain,
			Kd:          cfg.DGain,
			TargetAngle: cfg.TargetAngle,
		},
	}
}

// Get returns a snapshot copy of the current parameters.
func (s *Store) Get() pid.Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Set applies a partial update. Each supplied field is validated first;
// any invalid field rejects the whole update with a *ValidationError and
// leaves the stored parameters untouched. Accepted updates are committed
// atomically and then checkpointed to the config file; a checkpoint
// failure is reported as *PersistError.
func (s *Store) Set(u Update) error {
	if err := validateField("kp", u.Kp, true); err != nil {
		return err
	}
	if err := validateField("ki", u.Ki, true); err != nil {
		return err
	}
	if err := validateField("kd", u.Kd, true); err != nil {
		return err
	}
	if err := validateField("target_angle", u.TargetAngle, false); err != nil {
		return err
	}
	if u.TargetAngle != nil && math.Abs(*u.TargetAngle) > pid.MaxTargetAngle {
		return &ValidationError{
			Field:  "target_angle",
			Reason: fmt.Sprintf("must be within ±%g°, got %g", pid.MaxTargetAngle, *u.TargetAngle),
		}
	}

	s.mu.Lock()
	if u.Kp != nil {
		s.params.Kp = *u.Kp
	}
	if u.Ki != nil {
		s.params.Ki = *u.Ki
	}
	if u.Kd != nil {
		s.params.Kd = *u.Kd
	}
	if u.TargetAngle != nil {
		s.params.TargetAngle = *u.TargetAngle
	}
	committed := s.params
	s.mu.Unlock()

	if err := config.Update(func(c *config.Config) {
		c.PGain = committed.Kp
		c.IGain = committed.Ki
		c.DGain = committed.Kd
		c.TargetAngle = committed.TargetAngle
	}); err != nil {
		return &PersistError{Err: err}
	}
	return nil
}

func validateField(name string, v *float64, gain bool) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return &ValidationError{Field: name, Reason: "must be finite"}
	}
	if gain && *v < 0 {
		return &ValidationError{Field: name, Reason: fmt.Sprintf("must be non-negative, got %g", *v)}
	}
	return nil
}
