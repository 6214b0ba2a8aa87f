package imu

import "time"

// RawSample is a single raw inertial reading. Acceleration is in m/s²,
// angular rate in degrees per second, both in the body frame of the robot
// (X = wheel axle, positive pitch rate = falling forward).
type RawSample struct {
	Timestamp time.Time  `json:"timestamp"`
	Accel     [3]float64 `json:"accel"`
	Gyro      [3]float64 `json:"gyro"`
}

// Sensor is anything that can deliver raw inertial samples: the real
// MPU9250 over SPI, or a mock for bench-top runs and tests. ReadRaw is
// called once per control cycle and must return within one sample period;
// the control loop treats a slow or failing read as a sensor fault and
// holds the previous actuator command.
type Sensor interface {
	ReadRaw() (RawSample, error)
}
