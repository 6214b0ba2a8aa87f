package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/relabs-tech/balance_robot/internal/calibration"
	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/control"
	"github.com/relabs-tech/balance_robot/internal/imu"
	"github.com/relabs-tech/balance_robot/internal/motor"
	"github.com/relabs-tech/balance_robot/internal/orientation"
	"github.com/relabs-tech/balance_robot/internal/pid"
	"github.com/relabs-tech/balance_robot/internal/safety"
	"github.com/relabs-tech/balance_robot/internal/storage"
	"github.com/relabs-tech/balance_robot/internal/telemetry"
	"github.com/relabs-tech/balance_robot/internal/tuning"
)

// RunBalance wires the whole daemon: sensor, estimator, controller,
// supervisor, motor driver, telemetry ring, tuning store, the control
// loop itself, the HTTP API, and the optional MQTT publisher and sqlite
// session log. It blocks until ctx is cancelled.
func RunBalance(ctx context.Context) error {
	log.Println("starting balance control daemon")

	cfg := config.Get()

	sensor, err := newSensor(cfg)
	if err != nil {
		return fmt.Errorf("creating sensor: %w", err)
	}

	driver, err := newMotorDriver(cfg)
	if err != nil {
		return fmt.Errorf("creating motor driver: %w", err)
	}

	offsets := calibration.NewStore(cfg)
	estimator := orientation.NewEstimator(offsets.Snapshot(), cfg.GyroSmoothing)
	controller := pid.NewController(cfg.MaxITerm)
	supervisor := safety.NewSupervisor(cfg.FallLimitDeg, cfg.FallDebounceSamples)
	params := tuning.NewStore(cfg)

	ring, err := telemetry.NewRing(cfg.TelemetryWindowSec * cfg.SampleRateHz)
	if err != nil {
		return fmt.Errorf("creating telemetry ring: %w", err)
	}

	profile := motor.Profile{
		Deadband:      cfg.MotorDeadband,
		MaxSpeed:      cfg.MaxMotorSpeed,
		ZeroThreshold: cfg.ZeroThreshold,
	}

	loop := control.NewLoop(sensor, estimator, controller, supervisor, driver, profile, params, ring, cfg.SampleRateHz)

	// Optional sqlite session log
	if cfg.TelemetryDBPath != "" {
		store, err := storage.New(cfg.TelemetryDBPath)
		if err != nil {
			return fmt.Errorf("opening telemetry store: %w", err)
		}
		defer store.Close()
		go runSessionLogger(ctx, store, ring, cfg)
	}

	// Optional MQTT publisher
	if cfg.MQTTBroker != "" {
		go runPublisher(ctx, loop, ring, cfg)
	}

	// HTTP API + dashboard
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: newMux(loop, ring, params, offsets, estimator, cfg),
	}
	go func() {
		log.Printf("web: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("web: server error: %v", err)
		}
	}()

	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("web: shutdown error: %v", err)
	}

	return <-loopDone
}

func newSensor(cfg config.Config) (imu.Sensor, error) {
	switch cfg.SensorSource {
	case "mock":
		log.Println("using mock inertial sensor")
		return imu.NewMockSensor(cfg.SampleRateHz), nil
	case "mpu9250":
		return imu.NewMPU9250(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUAccelRange, cfg.IMUGyroRange)
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.SensorSource)
	}
}

func newMotorDriver(cfg config.Config) (motor.Driver, error) {
	switch cfg.MotorDriver {
	case "mock":
		log.Println("using mock motor driver")
		return motor.NewMock(), nil
	case "serial":
		return motor.NewSerialDriver(cfg.MotorPort, cfg.MotorBaudRate)
	default:
		return nil, fmt.Errorf("unknown motor driver %q", cfg.MotorDriver)
	}
}

// runSessionLogger drains new ring samples into the sqlite store about
// once a second. It pulls at its own cadence so the control loop never
// waits on the database.
func runSessionLogger(ctx context.Context, store *storage.Store, ring *telemetry.Ring, cfg config.Config) {
	sessionID, err := store.CreateSession(ctx, cfg.SensorSource,
		fmt.Sprintf("kp=%g ki=%g kd=%g target=%g rate=%dHz", cfg.PGain, cfg.IGain, cfg.DGain, cfg.TargetAngle, cfg.SampleRateHz))
	if err != nil {
		log.Printf("storage: creating session: %v", err)
		return
	}
	log.Printf("storage: logging telemetry to %s (session %d)", cfg.TelemetryDBPath, sessionID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			// Final drain so the tail of the run is not lost.
			batch, _ := ring.Since(seq)
			if err := store.AppendSamples(context.Background(), sessionID, batch); err != nil {
				log.Printf("storage: final batch write: %v", err)
			}
			return
		case <-ticker.C:
			var batch []telemetry.Sample
			batch, seq = ring.Since(seq)
			if err := store.AppendSamples(ctx, sessionID, batch); err != nil {
				log.Printf("storage: batch write: %v", err)
			}
		}
	}
}
