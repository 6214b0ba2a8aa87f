// Package pid implements the balance PID controller. Angles are in
// degrees; the output is a signed duty-cycle percentage in [-100, 100].
package pid

import (
	"fmt"
	"math"
)

// OutputLimit is the actuation bound in duty-cycle percent.
const OutputLimit = 100.0

// minDt substitutes for non-positive time deltas so a timer anomaly can
// never produce a non-finite term.
const minDt = 1e-3

// Params are the tunable controller parameters. They are shared between
// the control loop (snapshot once per cycle) and the tuning interface
// (mutation from any goroutine); see tuning.Store.
type Params struct {
	Kp          float64 `json:"kp"`
	Ki          float64 `json:"ki"`
	Kd          float64 `json:"kd"`
	TargetAngle float64 `json:"target_angle"` // degrees
}

// Validate rejects non-finite values, negative gains, and target angles
// outside the physically sane range.
func (p Params) Validate() error {
	for _, v := range []struct {
		name  string
		value float64
	}{
		{"kp", p.Kp}, {"ki", p.Ki}, {"kd", p.Kd}, {"target_angle", p.TargetAngle},
	} {
		if math.IsNaN(v.value) || math.IsInf(v.value, 0) {
			return fmt.Errorf("%s must be finite, got %g", v.name, v.value)
		}
	}
	if p.Kp < 0 || p.Ki < 0 || p.Kd < 0 {
		return fmt.Errorf("gains must be non-negative, got kp=%g ki=%g kd=%g", p.Kp, p.Ki, p.Kd)
	}
	if p.TargetAngle < -MaxTargetAngle || p.TargetAngle > MaxTargetAngle {
		return fmt.Errorf("target_angle must be within ±%g°, got %g", MaxTargetAngle, p.TargetAngle)
	}
	return nil
}

// MaxTargetAngle bounds the commanded lean; past this the robot cannot
// hold itself anyway.
const MaxTargetAngle = 45.0

// Output is the result of one Compute call. Output is clamped to
// ±OutputLimit; Raw keeps the unclamped sum for telemetry and the
// anti-windup comparison.
type Output struct {
	Error  float64 `json:"error"`
	P      float64 `json:"p_term"`
	I      float64 `json:"i_term"`
	D      float64 `json:"d_term"`
	Output float64 `json:"output"`
	Raw    float64 `json:"-"`
}

// Controller holds the PID internal state. It is owned exclusively by the
// control loop and is not safe for concurrent use; parameters arrive as an
// argument so the loop can pass an atomic snapshot.
type Controller struct {
	maxIntegral float64 // magnitude clamp on the accumulator, °·s

	integral  float64
	prevError float64
	primed    bool
}

// NewController creates a controller. maxIntegral limits the accumulator
// magnitude on top of the saturation freeze; pass 0 to disable the clamp.
func NewController(maxIntegral float64) *Controller {
	return &Controller{maxIntegral: maxIntegral}
}

// Integral returns the current accumulator value, in degree-seconds.
func (c *Controller) Integral() float64 { return c.integral }

// Reset zeroes the accumulator and the previous error. The first Compute
// after a reset uses a zero derivative.
func (c *Controller) Reset() {
	c.integral = 0
	c.prevError = 0
	c.primed = false
}

// Compute turns a measured angle into an actuation command.
//
// error = target - measured. The integral accumulates error·dt but is
// frozen in the direction that would deepen saturation once the combined
// output exceeds the actuation limit, and clamped to ±maxIntegral. The
// derivative acts on (error - prevError)/dt.
func (c *Controller) Compute(p Params, measuredAngle, dt float64) Output {
	if dt <= 0 {
		dt = minDt
	}

	err := p.TargetAngle - measuredAngle

	pTerm := p.Kp * err

	derivative := 0.0
	if c.primed {
		derivative = (err - c.prevError) / dt
	}
	dTerm := p.Kd * derivative

	integral := c.integral + err*dt
	if c.maxIntegral > 0 {
		integral = math.Max(-c.maxIntegral, math.Min(integral, c.maxIntegral))
	}
	iTerm := p.Ki * integral

	raw := pTerm + iTerm + dTerm

	// Anti-windup: if the sum is saturated and the error keeps pushing the
	// accumulator the same way, keep the previous accumulator instead.
	if (raw > OutputLimit && err > 0) || (raw < -OutputLimit && err < 0) {
		integral = c.integral
		iTerm = p.Ki * integral
		raw = pTerm + iTerm + dTerm
	}

	c.integral = integral
	c.prevError = err
	c.primed = true

	out := raw
	if out > OutputLimit {
		out = OutputLimit
	} else if out < -OutputLimit {
		out = -OutputLimit
	}

	return Output{Error: err, P: pTerm, I: iTerm, D: dTerm, Output: out, Raw: raw}
}
