// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package imu

import (
	"math"
	"time"
)

type mockSensor struct {
	start  time.Time
	period time.Duration
	step   int
}

// NewMockSensor creates a mock inertial sensor that simulates a body
// rocking gently around upright: a sinusoidal pitch with gravity-consistent
// accelerometer readings and a matching gyroscope rate. Timestamps advance
// by exactly one sample period per read, so runs are reproducible.
func NewMockSensor(sampleRateHz int) Sensor {
	return &mockSensor{
		start:  time.Now(),
		period: time.Second / time.Duration(sampleRateHz),
	}
}

func (m *mockSensor) ReadRaw() (RawSample, error) {
	t := float64(m.step) * m.period.Seconds()
	m.step++

	// 8° amplitude, 0.5 Hz rock
	const amp = 8.0
	const freq = 0.5
	pitchDeg := amp * math.Sin(2*math.Pi*freq*t)
	rateDeg := amp * 2 * math.Pi * freq * math.Cos(2*math.Pi*freq*t)

	pitchRad := pitchDeg * math.Pi / 180

	return RawSample{
		Timestamp: m.start.Add(time.Duration(m.step) * m.period),
		Accel: [3]float64{
			-gravity * math.Sin(pitchRad),
			0,
			gravity * math.Cos(pitchRad),
		},
		Gyro: [3]float64{rateDeg, 0, 0},
	}, nil
}
