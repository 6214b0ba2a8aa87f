package app

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/balance_robot/internal/calibration"
	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/imu"
)

const gravity = 9.80665

// RunCalibration samples the sensor with the robot held still and
// upright, averages the readings into bias offsets, and writes them to
// the config file. Gyro offsets are the plain averages; accelerometer
// offsets are the averages minus the expected gravity vector (0, 0, +1g).
func RunCalibration(numSamples int) error {
	cfg := config.Get()

	var sensor imu.Sensor
	var err error
	switch cfg.SensorSource {
	case "mpu9250":
		sensor, err = imu.NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	default:
		sensor = imu.NewMockSensor(cfg.SampleRateHz)
	}
	if err != nil {
		return fmt.Errorf("creating sensor: %w", err)
	}

	log.Printf("calibrate: keep the robot still and upright; sampling %d readings at %d Hz", numSamples, cfg.SampleRateHz)

	period := time.Second / time.Duration(cfg.SampleRateHz)
	var gyroSum, accelSum [3]float64
	var gyroSq [3]float64
	collected := 0

	for collected < numSamples {
		raw, err := sensor.ReadRaw()
		if err != nil {
			log.Printf("calibrate: read error (skipping sample): %v", err)
			time.Sleep(period)
			continue
		}
		for i := 0; i < 3; i++ {
			gyroSum[i] += raw.Gyro[i]
			gyroSq[i] += raw.Gyro[i] * raw.Gyro[i]
			accelSum[i] += raw.Accel[i]
		}
		collected++
		time.Sleep(period)
	}

	n := float64(collected)
	var gyroOffset, accelOffset, gyroStd [3]float64
	for i := 0; i < 3; i++ {
		gyroOffset[i] = gyroSum[i] / n
		gyroStd[i] = math.Sqrt(math.Max(0, gyroSq[i]/n-gyroOffset[i]*gyroOffset[i]))
		accelOffset[i] = accelSum[i] / n
	}
	// The resting accelerometer should read exactly gravity on Z.
	accelOffset[2] -= gravity

	if cfg.UpsideDown {
		// Offsets are stored in the flipped body frame the estimator
		// works in, so mirror what the estimator does to each sample.
		gyroOffset[0], gyroOffset[1] = -gyroOffset[0], -gyroOffset[1]
		accelOffset[0], accelOffset[1] = -accelOffset[0], -accelOffset[1]
	}

	log.Printf("calibrate: gyro offset  = [%.4f %.4f %.4f] °/s (stddev [%.4f %.4f %.4f])",
		gyroOffset[0], gyroOffset[1], gyroOffset[2], gyroStd[0], gyroStd[1], gyroStd[2])
	log.Printf("calibrate: accel offset = [%.4f %.4f %.4f] m/s²",
		accelOffset[0], accelOffset[1], accelOffset[2])

	store := calibration.NewStore(cfg)
	if err := store.SetOffsets(gyroOffset, accelOffset); err != nil {
		return fmt.Errorf("saving offsets: %w", err)
	}
	log.Println("calibrate: offsets saved to config")
	return nil
}
