package motor

import (
	"math"
	"testing"
)

func TestProfileMap(t *testing.T) {
	p := Profile{Deadband: 60, MaxSpeed: 100, ZeroThreshold: 0.1}

	testCases := []struct {
		name   string
		output float64
		want   float64
	}{
		{"zero", 0, 0},
		{"below zero threshold", 0.05, 0},
		{"negative below threshold", -0.05, 0},
		{"just above threshold", 0.2, 60.08},
		{"half forward", 50, 80},
		{"half backward", -50, -80},
		{"full forward", 100, 100},
		{"full backward", -100, -100},
		{"clamped over", 150, 100},
		{"clamped under", -150, -100},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Map(tc.output)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Map(%g): expected %g, got %g", tc.output, tc.want, got)
			}
		})
	}
}

func TestProfileMap_NoDeadband(t *testing.T) {
	p := Profile{Deadband: 0, MaxSpeed: 100, ZeroThreshold: 0.1}

	// Without a deadband the controller output passes straight through.
	if got := p.Map(50); got != 50 {
		t.Errorf("Map(50): expected 50, got %g", got)
	}
	if got := p.Map(-35.5); got != -35.5 {
		t.Errorf("Map(-35.5): expected -35.5, got %g", got)
	}
}

func TestProfileMap_MaxSpeedCeiling(t *testing.T) {
	p := Profile{Deadband: 60, MaxSpeed: 85, ZeroThreshold: 0.1}

	// The rescaled range tops out at MaxSpeed, not 100.
	if got := p.Map(100); got != 85 {
		t.Errorf("Map(100): expected 85, got %g", got)
	}
	if got := p.Map(-100); got != -85 {
		t.Errorf("Map(-100): expected -85, got %g", got)
	}
}

func TestMockRecordsCommands(t *testing.T) {
	m := NewMock()

	if err := m.Apply(42.5); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := m.Apply(-10); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if m.Last() != -10 {
		t.Errorf("expected last command -10, got %g", m.Last())
	}
	if m.Stopped() {
		t.Error("Stopped should be false before Stop")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !m.Stopped() {
		t.Error("Stopped should be true after Stop")
	}

	history := m.History()
	want := []float64{42.5, -10, 0}
	if len(history) != len(want) {
		t.Fatalf("expected %d commands, got %d", len(want), len(history))
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("command %d: expected %g, got %g", i, want[i], history[i])
		}
	}
}
