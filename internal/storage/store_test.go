package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/relabs-tech/balance_robot/internal/telemetry"
)

func TestStore_SessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	sessionID, err := store.CreateSession(ctx, "mock", "kp=5 ki=0.1 kd=1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	want := []telemetry.Sample{
		{Timestamp: base, ActualAngle: 1.5, TargetAngle: 0, Error: -1.5, PTerm: -7.5, Output: -7.5, MotorPercent: -7.5},
		{Timestamp: base.Add(10 * time.Millisecond), ActualAngle: 1.2, Error: -1.2, PTerm: -6, ITerm: -0.1, Output: -6.1, MotorPercent: -6.1},
		{Timestamp: base.Add(20 * time.Millisecond), ActualAngle: 0.9, Error: -0.9, PTerm: -4.5, ITerm: -0.2, DTerm: 0.3, Output: -4.4, MotorPercent: -4.4},
	}
	if err := store.AppendSamples(ctx, sessionID, want); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	got, err := store.Samples(ctx, sessionID)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("sample %d: timestamp %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
		}
		if got[i].ActualAngle != want[i].ActualAngle ||
			got[i].Error != want[i].Error ||
			got[i].PTerm != want[i].PTerm ||
			got[i].ITerm != want[i].ITerm ||
			got[i].DTerm != want[i].DTerm ||
			got[i].Output != want[i].Output ||
			got[i].MotorPercent != want[i].MotorPercent {
			t.Errorf("sample %d mismatch:\nwant %+v\ngot  %+v", i, want[i], got[i])
		}
	}
}

func TestStore_EmptyBatchIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	sessionID, err := store.CreateSession(ctx, "mock", "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := store.AppendSamples(ctx, sessionID, nil); err != nil {
		t.Errorf("AppendSamples(nil): %v", err)
	}
	got, err := store.Samples(ctx, sessionID)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no samples, got %d", len(got))
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	first, err := store.CreateSession(ctx, "mock", "run 1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := store.CreateSession(ctx, "mpu9250", "run 2")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct session IDs, both %d", first)
	}

	now := time.Now().UTC()
	if err := store.AppendSamples(ctx, first, []telemetry.Sample{{Timestamp: now, ActualAngle: 1}}); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}
	if err := store.AppendSamples(ctx, second, []telemetry.Sample{
		{Timestamp: now, ActualAngle: 2},
		{Timestamp: now.Add(time.Millisecond), ActualAngle: 3},
	}); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	got, err := store.Samples(ctx, second)
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(got) != 2 || got[0].ActualAngle != 2 || got[1].ActualAngle != 3 {
		t.Errorf("unexpected samples for second session: %+v", got)
	}
}
