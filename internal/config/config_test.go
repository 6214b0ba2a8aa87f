package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_MissingFileCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance_config.txt")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Defaults()) {
		t.Errorf("expected default config, got %+v", cfg)
	}

	// A fresh install must leave a runnable config file behind.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected default config file to be written: %v", err)
	}
}

func TestLoad_MissingKeysKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance_config.txt")
	content := "# partial config\nP_GAIN=9\nFALL_LIMIT_DEG=30\n\nUPSIDE_DOWN=true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PGain != 9 {
		t.Errorf("expected P_GAIN 9, got %g", cfg.PGain)
	}
	if cfg.FallLimitDeg != 30 {
		t.Errorf("expected FALL_LIMIT_DEG 30, got %g", cfg.FallLimitDeg)
	}
	if !cfg.UpsideDown {
		t.Error("expected UPSIDE_DOWN true")
	}
	if cfg.IGain != 0.1 || cfg.SampleRateHz != 100 || cfg.MotorDeadband != 60 {
		t.Errorf("untouched keys lost their defaults: %+v", cfg)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "balance_config.txt")

	want := Defaults()
	want.PGain = 12.5
	want.TargetAngle = -2.25
	want.UpsideDown = true
	want.SensorSource = "mpu9250"
	want.MotorDriver = "serial"
	want.MQTTBroker = "tcp://localhost:1883"
	want.TelemetryDBPath = "/var/lib/balance/telemetry.db"
	want.GyroOffsetX = 1.5
	want.AccelOffsetZ = -0.02
	want.DisplayI2CAddr = 0x3D

	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"unknown key", "BOGUS_KEY=1\n"},
		{"malformed line", "P_GAIN\n"},
		{"non-numeric float", "P_GAIN=abc\n"},
		{"filter gain out of range", "FILTER_GAIN=1.5\n"},
		{"zero sample rate", "SAMPLE_RATE_HZ=0\n"},
		{"negative gain", "I_GAIN=-1\n"},
		{"debounce below one", "FALL_DEBOUNCE_SAMPLES=0\n"},
		{"unknown sensor source", "SENSOR_SOURCE=quantum\n"},
		{"unknown motor driver", "MOTOR_DRIVER=teleport\n"},
		{"accel range out of bounds", "IMU_ACCEL_RANGE=7\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "balance_config.txt")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("writing config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
