package orientation

import (
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/balance_robot/internal/calibration"
	"github.com/relabs-tech/balance_robot/internal/imu"
)

const g = 9.80665

// tiltedSample builds a gravity-consistent reading for a body pitched
// forward by pitchDeg with the given gyro rate about the wheel axle.
func tiltedSample(pitchDeg, rateDeg float64, ts time.Time) imu.RawSample {
	rad := pitchDeg * math.Pi / 180
	return imu.RawSample{
		Timestamp: ts,
		Accel:     [3]float64{-g * math.Sin(rad), 0, g * math.Cos(rad)},
		Gyro:      [3]float64{rateDeg, 0, 0},
	}
}

func newTestEstimator(off calibration.Offsets) *Estimator {
	if off.FilterGain == 0 {
		off.FilterGain = 0.5
	}
	return NewEstimator(off, 0.98)
}

func TestEstimator_InitializesFromAccel(t *testing.T) {
	e := newTestEstimator(calibration.Offsets{})

	// The first sample seeds the filter directly from the accelerometer
	// tilt, so a 10° static lean reads 10° immediately.
	s := e.Update(tiltedSample(10, 0, time.Now()), 0.01)
	if math.Abs(s.Pitch-10) > 1e-9 {
		t.Errorf("expected initial pitch 10, got %g", s.Pitch)
	}
}

func TestEstimator_ConvergesToStaticTilt(t *testing.T) {
	e := newTestEstimator(calibration.Offsets{})
	ts := time.Now()

	// Seed upright, then hold a 15° lean. The accelerometer correction
	// must pull the estimate onto the true angle.
	e.Update(tiltedSample(0, 0, ts), 0.01)

	var s State
	for i := 0; i < 500; i++ {
		ts = ts.Add(10 * time.Millisecond)
		s = e.Update(tiltedSample(15, 0, ts), 0.01)
	}
	if math.Abs(s.Pitch-15) > 0.1 {
		t.Errorf("expected pitch near 15 after convergence, got %g", s.Pitch)
	}
}

func TestEstimator_PitchClamped(t *testing.T) {
	e := newTestEstimator(calibration.Offsets{})
	ts := time.Now()

	// An absurd gyro rate must never push the estimate past the physical
	// bound.
	for i := 0; i < 200; i++ {
		ts = ts.Add(10 * time.Millisecond)
		s := e.Update(tiltedSample(0, 1e6, ts), 0.01)
		if math.Abs(s.Pitch) > 90 {
			t.Fatalf("cycle %d: pitch %g outside ±90", i, s.Pitch)
		}
	}
}

func TestEstimator_Deterministic(t *testing.T) {
	e1 := newTestEstimator(calibration.Offsets{})
	e2 := newTestEstimator(calibration.Offsets{})
	ts := time.Now()

	for i := 0; i < 100; i++ {
		ts = ts.Add(10 * time.Millisecond)
		sample := tiltedSample(8*math.Sin(float64(i)/10), 3*math.Cos(float64(i)/10), ts)
		s1 := e1.Update(sample, 0.01)
		s2 := e2.Update(sample, 0.01)
		if s1.Pitch != s2.Pitch || s1.AngularVelocity != s2.AngularVelocity {
			t.Fatalf("cycle %d: identical inputs produced different states: %+v vs %+v", i, s1, s2)
		}
	}
}

func TestEstimator_GyroOffsetApplied(t *testing.T) {
	e := newTestEstimator(calibration.Offsets{
		GyroOffset: [3]float64{2.5, 0, 0},
	})

	// A sensor reporting a constant 2.5°/s at rest is exactly cancelled
	// by the calibration offset.
	s := e.Update(tiltedSample(0, 2.5, time.Now()), 0.01)
	if s.AngularVelocity != 0 {
		t.Errorf("expected zero angular velocity after offset correction, got %g", s.AngularVelocity)
	}
}

func TestEstimator_UpsideDownMounting(t *testing.T) {
	normal := newTestEstimator(calibration.Offsets{})
	flipped := newTestEstimator(calibration.Offsets{UpsideDown: true})
	ts := time.Now()

	// The same physical lean produces mirrored X readings on an inverted
	// sensor; both estimators must agree on the body pitch.
	real := tiltedSample(10, 4, ts)
	mirrored := real
	mirrored.Accel[0] = -mirrored.Accel[0]
	mirrored.Gyro[0] = -mirrored.Gyro[0]

	s1 := normal.Update(real, 0.01)
	s2 := flipped.Update(mirrored, 0.01)
	if math.Abs(s1.Pitch-s2.Pitch) > 1e-9 {
		t.Errorf("pitch mismatch: normal %g, upside-down %g", s1.Pitch, s2.Pitch)
	}
	if math.Abs(s1.AngularVelocity-s2.AngularVelocity) > 1e-9 {
		t.Errorf("rate mismatch: normal %g, upside-down %g", s1.AngularVelocity, s2.AngularVelocity)
	}
}

func TestEstimator_SetGain(t *testing.T) {
	e := newTestEstimator(calibration.Offsets{})

	for _, bad := range []float64{0, 1, 1.5, -0.2, math.NaN()} {
		if err := e.SetGain(bad); err == nil {
			t.Errorf("SetGain(%g): expected error", bad)
		}
	}
	if err := e.SetGain(0.3); err != nil {
		t.Errorf("SetGain(0.3): unexpected error: %v", err)
	}
}

func TestEstimator_Reset(t *testing.T) {
	e := newTestEstimator(calibration.Offsets{})
	ts := time.Now()

	for i := 0; i < 50; i++ {
		ts = ts.Add(10 * time.Millisecond)
		e.Update(tiltedSample(30, 0, ts), 0.01)
	}

	e.Reset()

	// After a reset the next sample re-seeds the filter from the
	// accelerometer, exactly like the first sample ever.
	s := e.Update(tiltedSample(5, 0, ts.Add(10*time.Millisecond)), 0.01)
	if math.Abs(s.Pitch-5) > 1e-9 {
		t.Errorf("expected pitch 5 after reset, got %g", s.Pitch)
	}
}

func TestPitchFromAccel(t *testing.T) {
	testCases := []struct {
		name       string
		ax, ay, az float64
		want       float64
	}{
		{"upright", 0, 0, g, 0},
		{"forward 45", -g * math.Sin(math.Pi / 4), 0, g * math.Cos(math.Pi / 4), 45},
		{"backward 30", g * math.Sin(math.Pi / 6), 0, g * math.Cos(math.Pi / 6), -30},
		{"flat on face", -g, 0, 0, 90},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := PitchFromAccel(tc.ax, tc.ay, tc.az)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("expected %g, got %g", tc.want, got)
			}
		})
	}
}
