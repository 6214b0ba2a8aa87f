// Package orientation fuses bias-corrected accelerometer and gyroscope
// samples into a pitch estimate for the balance loop. All angles are in
// degrees, angular rates in degrees per second.
package orientation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/balance_robot/internal/calibration"
	"github.com/relabs-tech/balance_robot/internal/imu"
)

const (
	minDt      = 1e-3    // floor for wall-clock deltas, guards the first call and timer anomalies
	maxAccel   = 9.80665 // accelerometer readings are clipped to ±1g per axis
	pitchLimit = 90.0
)

// State is the estimator output for one sample. It is an immutable
// snapshot; the estimator hands a fresh copy to the controller each cycle.
type State struct {
	Pitch           float64   `json:"pitch"`            // degrees, 0 = upright, clamped to ±90
	AngularVelocity float64   `json:"angular_velocity"` // degrees/second about the wheel axle
	Timestamp       time.Time `json:"timestamp"`
}

// Estimator is a complementary filter with a slow gyro bias tracker.
// The gyroscope dominates the short-term response; the accelerometer tilt
// pulls the estimate back at a rate set by the filter gain, and the
// difference between gyro rate and accelerometer-implied rate feeds a
// long-time-constant bias estimate that cancels gyro drift.
//
// Update is called only from the control loop; SetGain may be called from
// any goroutine and takes effect on the next Update.
type Estimator struct {
	offsets   calibration.Offsets
	smoothing float64

	mu   sync.Mutex
	gain float64

	pitch          float64
	bias           float64 // gyro X bias estimate, °/s
	prevAccelPitch float64
	primed         bool
}

// NewEstimator creates an estimator with the given calibration offsets.
// smoothing is the bias tracker factor (0.98 keeps ~98% of the previous
// estimate per sample).
func NewEstimator(off calibration.Offsets, smoothing float64) *Estimator {
	return &Estimator{
		offsets:   off,
		smoothing: smoothing,
		gain:      off.FilterGain,
	}
}

// SetGain updates the accelerometer correction weight. Values outside the
// open interval (0,1) are rejected without mutating state.
func (e *Estimator) SetGain(gain float64) error {
	if !(gain > 0 && gain < 1) {
		return fmt.Errorf("invalid filter gain %g: must be in (0,1)", gain)
	}
	e.mu.Lock()
	e.gain = gain
	e.mu.Unlock()
	return nil
}

// Reset clears the filter state. The next Update re-initializes the pitch
// directly from the accelerometer tilt.
func (e *Estimator) Reset() {
	e.pitch = 0
	e.bias = 0
	e.prevAccelPitch = 0
	e.primed = false
}

// PitchFromAccel computes the tilt angle in degrees from accelerometer
// data only:
//
//	pitch = atan2(-ax, sqrt(ay² + az²))
func PitchFromAccel(ax, ay, az float64) float64 {
	return math.Atan2(-ax, math.Sqrt(ay*ay+az*az)) * 180.0 / math.Pi
}

// Update fuses one raw sample into the pitch estimate. dt is the
// wall-clock delta in seconds since the previous sample and is floored to
// 1 ms. The result is deterministic for a given input sequence.
func (e *Estimator) Update(raw imu.RawSample, dt float64) State {
	if dt < minDt {
		dt = minDt
	}

	e.mu.Lock()
	gain := e.gain
	e.mu.Unlock()

	a := raw.Accel
	g := raw.Gyro

	// Upside-down mounting flips the X and Y axes of both vectors, which
	// keeps the body-frame sign convention stable.
	if e.offsets.UpsideDown {
		a[0], a[1] = -a[0], -a[1]
		g[0], g[1] = -g[0], -g[1]
	}

	for i := 0; i < 3; i++ {
		a[i] -= e.offsets.AccelOffset[i]
		g[i] -= e.offsets.GyroOffset[i]

		if a[i] > maxAccel {
			a[i] = maxAccel
		} else if a[i] < -maxAccel {
			a[i] = -maxAccel
		}
	}

	accelPitch := PitchFromAccel(a[0], a[1], a[2])

	if !e.primed {
		e.pitch = accelPitch
		e.prevAccelPitch = accelPitch
		e.primed = true
		return State{Pitch: clampPitch(e.pitch), AngularVelocity: g[0] - e.bias, Timestamp: raw.Timestamp}
	}

	// Track the slow gyro bias against the accelerometer-implied rate.
	accelRate := (accelPitch - e.prevAccelPitch) / dt
	e.bias = e.smoothing*e.bias + (1-e.smoothing)*(g[0]-accelRate)
	e.prevAccelPitch = accelPitch

	rate := g[0] - e.bias

	predicted := e.pitch + rate*dt
	e.pitch = predicted + gain*(accelPitch-predicted)
	e.pitch = clampPitch(e.pitch)

	return State{Pitch: e.pitch, AngularVelocity: rate, Timestamp: raw.Timestamp}
}

func clampPitch(p float64) float64 {
	if p > pitchLimit {
		return pitchLimit
	}
	if p < -pitchLimit {
		return -pitchLimit
	}
	return p
}
