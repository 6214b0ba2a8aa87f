// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package imu

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

const gravity = 9.80665 // m/s² per g

// LSB per unit for the four configurable full-scale ranges.
var (
	accelScale = [4]float64{16384, 8192, 4096, 2048} // LSB per g
	gyroScale  = [4]float64{131, 65.5, 32.8, 16.4}   // LSB per °/s
)

type mpu9250Sensor struct {
	imu        *mpu9250.MPU9250
	accelRange byte
	gyroRange  byte
}

// NewMPU9250 initializes the MPU9250 over SPI and returns a Sensor.
// The device is self-tested and calibrated at startup, which takes a
// couple of seconds; keep the robot still while the daemon boots.
func NewMPU9250(spiDev, csPin string, accelRange, gyroRange byte) (Sensor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("IMU CS pin %q not found", csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("IMU SPI transport (%s): %w", spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("IMU device creation: %w", err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("IMU initialization: %w", err)
	}

	if _, err := dev.SelfTest(); err != nil {
		return nil, fmt.Errorf("IMU self-test: %w", err)
	}
	if err := dev.Calibrate(); err != nil {
		return nil, fmt.Errorf("IMU calibrate: %w", err)
	}

	if accelRange > 3 || gyroRange > 3 {
		return nil, fmt.Errorf("IMU range out of bounds: accel=%d gyro=%d", accelRange, gyroRange)
	}

	return &mpu9250Sensor{imu: dev, accelRange: accelRange, gyroRange: gyroRange}, nil
}

// ReadRaw reads one accelerometer/gyroscope sample and converts it to
// physical units using the configured full-scale ranges.
func (s *mpu9250Sensor) ReadRaw() (RawSample, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return RawSample{}, fmt.Errorf("IMU accel X: %w", err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return RawSample{}, fmt.Errorf("IMU accel Y: %w", err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return RawSample{}, fmt.Errorf("IMU accel Z: %w", err)
	}

	gx, err := s.imu.GetRotationX()
	if err != nil {
		return RawSample{}, fmt.Errorf("IMU gyro X: %w", err)
	}
	gy, err := s.imu.GetRotationY()
	if err != nil {
		return RawSample{}, fmt.Errorf("IMU gyro Y: %w", err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return RawSample{}, fmt.Errorf("IMU gyro Z: %w", err)
	}

	as := accelScale[s.accelRange]
	gs := gyroScale[s.gyroRange]

	return RawSample{
		Timestamp: time.Now(),
		Accel: [3]float64{
			float64(ax) / as * gravity,
			float64(ay) / as * gravity,
			float64(az) / as * gravity,
		},
		Gyro: [3]float64{
			float64(gx) / gs,
			float64(gy) / gs,
			float64(gz) / gs,
		},
	}, nil
}
