package imu

import (
	"math"
	"testing"
	"time"
)

func TestMockSensor_TimestampsAdvanceByPeriod(t *testing.T) {
	s := NewMockSensor(100)

	prev, err := s.ReadRaw()
	if err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	for i := 0; i < 10; i++ {
		cur, err := s.ReadRaw()
		if err != nil {
			t.Fatalf("ReadRaw: %v", err)
		}
		if got := cur.Timestamp.Sub(prev.Timestamp); got != 10*time.Millisecond {
			t.Fatalf("read %d: timestamp delta %v, want 10ms", i, got)
		}
		prev = cur
	}
}

func TestMockSensor_GravityConsistent(t *testing.T) {
	s := NewMockSensor(100)

	// The accelerometer vector must always have gravity magnitude; the
	// simulated body only rotates, it does not translate.
	for i := 0; i < 200; i++ {
		raw, err := s.ReadRaw()
		if err != nil {
			t.Fatalf("ReadRaw: %v", err)
		}
		mag := math.Sqrt(raw.Accel[0]*raw.Accel[0] + raw.Accel[1]*raw.Accel[1] + raw.Accel[2]*raw.Accel[2])
		if math.Abs(mag-9.80665) > 1e-9 {
			t.Fatalf("read %d: accel magnitude %g, want 9.80665", i, mag)
		}
	}
}
