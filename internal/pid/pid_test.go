package pid

import (
	"math"
	"testing"
)

func TestController_ProportionalResponse(t *testing.T) {
	c := NewController(0)
	p := Params{Kp: 50}

	// A steady 5° forward lean with a pure proportional controller.
	// error = 0 - 5 = -5, P term = -250, delivered output saturates.
	out := c.Compute(p, 5.0, 0.01)
	if out.Error != -5 {
		t.Errorf("expected error -5, got %g", out.Error)
	}
	if out.P != -250 {
		t.Errorf("expected P term -250, got %g", out.P)
	}
	if out.Raw != -250 {
		t.Errorf("expected raw output -250, got %g", out.Raw)
	}
	if out.Output != -OutputLimit {
		t.Errorf("expected clamped output %g, got %g", -OutputLimit, out.Output)
	}

	// With no I or D, the response must be identical every cycle.
	for i := 0; i < 100; i++ {
		out = c.Compute(p, 5.0, 0.01)
		if out.P != -250 || out.Output != -OutputLimit {
			t.Fatalf("cycle %d: expected P=-250 output=-100, got P=%g output=%g", i, out.P, out.Output)
		}
	}
}

func TestController_DerivativePrimesOnSecondCycle(t *testing.T) {
	c := NewController(0)
	p := Params{Kd: 2}

	// First cycle after construction has no previous error: D must be 0
	// even though the error itself is nonzero.
	out := c.Compute(p, 10.0, 0.01)
	if out.D != 0 {
		t.Errorf("first cycle: expected D term 0, got %g", out.D)
	}

	// Second cycle: error moves from -10 to -4, derivative = 6/0.01 = 600.
	out = c.Compute(p, 4.0, 0.01)
	want := 2 * (6.0 / 0.01)
	if math.Abs(out.D-want) > 1e-9 {
		t.Errorf("second cycle: expected D term %g, got %g", want, out.D)
	}
}

func TestController_AntiWindupFreezesIntegral(t *testing.T) {
	c := NewController(0)
	p := Params{Kp: 1, Ki: 10}

	// Persistent large error: the accumulator grows until the combined
	// output saturates, then must freeze instead of winding up further.
	var out Output
	for i := 0; i < 50; i++ {
		out = c.Compute(p, -20.0, 0.1)
		if out.Output > OutputLimit {
			t.Fatalf("cycle %d: output %g exceeds limit", i, out.Output)
		}
	}

	frozen := c.Integral()
	for i := 0; i < 50; i++ {
		c.Compute(p, -20.0, 0.1)
	}
	if c.Integral() != frozen {
		t.Errorf("integral kept growing while saturated: %g -> %g", frozen, c.Integral())
	}
	if out.Output != OutputLimit {
		t.Errorf("expected saturated output %g, got %g", OutputLimit, out.Output)
	}
}

func TestController_AntiWindupRecovers(t *testing.T) {
	c := NewController(0)
	p := Params{Kp: 1, Ki: 10}

	for i := 0; i < 50; i++ {
		c.Compute(p, -20.0, 0.1)
	}

	// Error flips sign: the accumulator must move again immediately.
	before := c.Integral()
	c.Compute(p, 20.0, 0.1)
	if c.Integral() >= before {
		t.Errorf("integral did not unwind after the error reversed: %g -> %g", before, c.Integral())
	}
}

func TestController_MaxIntegralClamp(t *testing.T) {
	c := NewController(1.5)
	p := Params{Ki: 1}

	for i := 0; i < 100; i++ {
		c.Compute(p, -10.0, 0.1)
		if math.Abs(c.Integral()) > 1.5 {
			t.Fatalf("cycle %d: integral %g exceeds clamp 1.5", i, c.Integral())
		}
	}
	if c.Integral() != 1.5 {
		t.Errorf("expected integral pinned at 1.5, got %g", c.Integral())
	}
}

func TestController_Reset(t *testing.T) {
	c := NewController(0)
	p := Params{Kp: 1, Ki: 1, Kd: 1}

	c.Compute(p, 5.0, 0.01)
	c.Compute(p, 3.0, 0.01)
	if c.Integral() == 0 {
		t.Fatal("expected nonzero integral before reset")
	}

	c.Reset()
	if c.Integral() != 0 {
		t.Errorf("expected zero integral after reset, got %g", c.Integral())
	}

	// First cycle after a reset uses a zero derivative again.
	out := c.Compute(p, 7.0, 0.01)
	if out.D != 0 {
		t.Errorf("expected D term 0 after reset, got %g", out.D)
	}
}

func TestController_NonPositiveDt(t *testing.T) {
	c := NewController(0)
	p := Params{Kp: 1, Ki: 1, Kd: 1}

	c.Compute(p, 5.0, 0.01)
	for _, dt := range []float64{0, -0.5} {
		out := c.Compute(p, 3.0, dt)
		if math.IsNaN(out.Output) || math.IsInf(out.Output, 0) {
			t.Errorf("dt=%g: expected finite output, got %g", dt, out.Output)
		}
	}
}

func TestParamsValidate(t *testing.T) {
	testCases := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{"defaults", Params{Kp: 5, Ki: 0.1, Kd: 1}, false},
		{"target at limit", Params{Kp: 1, TargetAngle: -MaxTargetAngle}, false},
		{"negative kp", Params{Kp: -1}, true},
		{"nan ki", Params{Ki: math.NaN()}, true},
		{"inf kd", Params{Kd: math.Inf(1)}, true},
		{"target beyond limit", Params{TargetAngle: 60}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
