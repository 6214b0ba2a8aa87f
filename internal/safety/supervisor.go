// Package safety supervises the balance loop: it watches the estimated
// angle and trips a one-way Halted state when the robot has toppled or the
// estimator reports garbage. Recovery is only by explicit restart.
package safety

import (
	"fmt"
	"math"
)

// State of the supervisor.
type State int

const (
	Running State = iota
	Halted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Supervisor is owned exclusively by the control loop and is not safe for
// concurrent use; the loop publishes its state through the status
// snapshot.
//
// Automatic recovery is deliberately not implemented: clearing Halted
// while the body is still falling would oscillate between states.
type Supervisor struct {
	fallLimit float64 // degrees
	debounce  int     // consecutive over-limit samples required to trip

	state     State
	reason    string
	overCount int
}

// NewSupervisor creates a supervisor in the Running state. fallLimit is
// the absolute angle in degrees beyond which the robot is considered
// toppled; debounce is the number of consecutive over-limit samples
// required before tripping (rejects single-sample glitches).
func NewSupervisor(fallLimit float64, debounce int) *Supervisor {
	if debounce < 1 {
		debounce = 1
	}
	return &Supervisor{fallLimit: fallLimit, debounce: debounce}
}

// State returns the current state.
func (s *Supervisor) State() State { return s.state }

// Reason returns why the supervisor halted, or "" while running.
func (s *Supervisor) Reason() string { return s.reason }

// Halted reports whether actuation is suppressed.
func (s *Supervisor) Halted() bool { return s.state == Halted }

// Check evaluates one cycle and returns the actuator command to apply:
// the controller output while running, zero once halted. A non-finite
// angle or output trips immediately; an over-limit angle trips after the
// debounce count.
func (s *Supervisor) Check(measuredAngle, output float64) float64 {
	if s.state == Halted {
		return 0
	}

	if math.IsNaN(measuredAngle) || math.IsInf(measuredAngle, 0) ||
		math.IsNaN(output) || math.IsInf(output, 0) {
		s.trip("sensor reading is not finite")
		return 0
	}

	if math.Abs(measuredAngle) > s.fallLimit {
		s.overCount++
		if s.overCount >= s.debounce {
			s.trip(fmt.Sprintf("tilt %.1f° exceeded fall limit %.1f°", measuredAngle, s.fallLimit))
			return 0
		}
	} else {
		s.overCount = 0
	}

	return output
}

// Trip forces the Halted state, used by the loop when the actuator link
// itself is unrecoverable.
func (s *Supervisor) Trip(reason string) {
	s.trip(reason)
}

// Reset transitions Halted back to Running. The caller is responsible for
// resetting the controller and estimator alongside.
func (s *Supervisor) Reset() {
	s.state = Running
	s.reason = ""
	s.overCount = 0
}

func (s *Supervisor) trip(reason string) {
	s.state = Halted
	s.reason = reason
}
