// Package control drives the fixed-period balance cycle: read sensor,
// estimate orientation, compute PID, apply safety, command the motors,
// append telemetry. One goroutine owns the cycle; everything shared with
// other goroutines goes through snapshot copies.
package control

import (
	"context"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/balance_robot/internal/imu"
	"github.com/relabs-tech/balance_robot/internal/motor"
	"github.com/relabs-tech/balance_robot/internal/orientation"
	"github.com/relabs-tech/balance_robot/internal/pid"
	"github.com/relabs-tech/balance_robot/internal/safety"
	"github.com/relabs-tech/balance_robot/internal/telemetry"
	"github.com/relabs-tech/balance_robot/internal/tuning"
)

// motorFaultLimit is the number of consecutive failed actuator commands
// after which the supervisor halts the loop.
const motorFaultLimit = 10

// Status is a snapshot of the loop for the dashboard.
type Status struct {
	State        string     `json:"state"`
	Reason       string     `json:"reason,omitempty"`
	Cycles       uint64     `json:"cycles"`
	SensorFaults uint64     `json:"sensor_faults"`
	MotorFaults  uint64     `json:"motor_faults"`
	Overruns     uint64     `json:"overruns"`
	Pitch        float64    `json:"pitch"`
	LastOutput   float64    `json:"last_output"`
	Params       pid.Params `json:"params"`
}

// Loop owns the control cycle state. Construct with NewLoop, drive with
// Run; Restart and Status are safe from any goroutine.
type Loop struct {
	sensor     imu.Sensor
	estimator  *orientation.Estimator
	controller *pid.Controller
	supervisor *safety.Supervisor
	driver     motor.Driver
	profile    motor.Profile
	params     *tuning.Store
	ring       *telemetry.Ring
	period     time.Duration

	restart atomic.Bool

	statusMu sync.RWMutex
	status   Status

	// Sensor and motor I/O run on worker goroutines so a stuck bus can
	// never stall the cycle past its timeout.
	sensorReq     chan struct{}
	sensorRes     chan sensorResult
	sensorPending bool
	motorReq      chan float64
	motorRes      chan error
	motorPending  bool

	lastTimestamp    time.Time
	lastCommand      float64
	cycles           uint64
	sensorFaults     uint64
	motorFaults      uint64
	motorFaultStreak int
	overruns         uint64
	wasHalted        bool
}

type sensorResult struct {
	sample imu.RawSample
	err    error
}

// NewLoop wires the collaborators into a loop running at sampleRateHz.
func NewLoop(
	sensor imu.Sensor,
	estimator *orientation.Estimator,
	controller *pid.Controller,
	supervisor *safety.Supervisor,
	driver motor.Driver,
	profile motor.Profile,
	params *tuning.Store,
	ring *telemetry.Ring,
	sampleRateHz int,
) *Loop {
	return &Loop{
		sensor:     sensor,
		estimator:  estimator,
		controller: controller,
		supervisor: supervisor,
		driver:     driver,
		profile:    profile,
		params:     params,
		ring:       ring,
		period:     time.Second / time.Duration(sampleRateHz),
		sensorReq:  make(chan struct{}, 1),
		sensorRes:  make(chan sensorResult, 1),
		motorReq:   make(chan float64, 1),
		motorRes:   make(chan error, 1),
	}
}

// Restart requests a full reset of controller, estimator, and supervisor.
// It is observed at the next cycle boundary; Halted transitions back to
// Running only through this path.
func (l *Loop) Restart() {
	l.restart.Store(true)
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}

// Run drives the cycle until ctx is cancelled. Stop is cooperative: it is
// observed at the cycle boundary, and the final action is a zero command
// to the motors so the duty cycle is never left undefined.
func (l *Loop) Run(ctx context.Context) error {
	go l.sensorWorker()
	go l.motorWorker()

	log.Printf("loop: starting at %.0f Hz (period %s)", 1/l.period.Seconds(), l.period)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		default:
		}

		cycleStart := time.Now()
		l.runCycle()

		elapsed := time.Since(cycleStart)
		if elapsed < l.period {
			time.Sleep(l.period - elapsed)
		} else {
			// Overrun: start the next cycle immediately.
			l.overruns++
			if l.overruns%100 == 1 {
				log.Printf("loop: cycle overran period (%s > %s, %d total)", elapsed, l.period, l.overruns)
			}
		}
	}
}

func (l *Loop) runCycle() {
	if l.restart.CompareAndSwap(true, false) {
		l.controller.Reset()
		l.estimator.Reset()
		l.supervisor.Reset()
		l.lastTimestamp = time.Time{}
		l.wasHalted = false
		log.Println("loop: restart: controller, estimator and supervisor reset")
	}

	params := l.params.Get()

	raw, ok := l.readSensor()
	if !ok {
		// Hold the previous actuator command rather than feeding the
		// estimator stale data.
		l.sensorFaults++
		l.publishStatus(math.NaN(), params)
		return
	}

	dt := l.period.Seconds()
	if !l.lastTimestamp.IsZero() {
		dt = raw.Timestamp.Sub(l.lastTimestamp).Seconds()
	}
	l.lastTimestamp = raw.Timestamp

	state := l.estimator.Update(raw, dt)

	var out pid.Output
	var final float64
	if l.supervisor.Halted() {
		final = 0
	} else {
		out = l.controller.Compute(params, state.Pitch, dt)
		final = l.supervisor.Check(state.Pitch, out.Output)
		if l.supervisor.Halted() && !l.wasHalted {
			log.Printf("loop: safety trip: %s", l.supervisor.Reason())
		}
	}
	l.wasHalted = l.supervisor.Halted()

	command := l.profile.Map(final)
	if l.applyMotor(command) {
		l.lastCommand = command
		l.motorFaultStreak = 0
	} else {
		l.motorFaults++
		l.motorFaultStreak++
		if l.motorFaultStreak == motorFaultLimit {
			l.supervisor.Trip("actuator unresponsive")
			log.Printf("loop: safety trip: %s", l.supervisor.Reason())
			l.wasHalted = true
		}
	}

	l.ring.Append(telemetry.Sample{
		Timestamp:    raw.Timestamp,
		ActualAngle:  state.Pitch,
		TargetAngle:  params.TargetAngle,
		Error:        out.Error,
		PTerm:        out.P,
		ITerm:        out.I,
		DTerm:        out.D,
		Output:       final,
		MotorPercent: command,
	})

	l.cycles++
	l.publishStatus(state.Pitch, params)
}

// readSensor asks the worker for a sample and waits at most one period.
// A read that is still in flight from a previous cycle is not re-issued.
func (l *Loop) readSensor() (imu.RawSample, bool) {
	if !l.sensorPending {
		l.sensorReq <- struct{}{}
		l.sensorPending = true
	}

	select {
	case res := <-l.sensorRes:
		l.sensorPending = false
		if res.err != nil {
			log.Printf("loop: sensor read error: %v", res.err)
			return imu.RawSample{}, false
		}
		if !sampleFinite(res.sample) {
			log.Println("loop: sensor returned non-finite reading")
			return imu.RawSample{}, false
		}
		return res.sample, true
	case <-time.After(l.period):
		return imu.RawSample{}, false
	}
}

// applyMotor dispatches a command through the worker with a one-period
// timeout. Returns false when the command could not be confirmed.
func (l *Loop) applyMotor(percent float64) bool {
	if l.motorPending {
		// Previous write still stuck; don't queue behind it.
		select {
		case err := <-l.motorRes:
			l.motorPending = false
			if err != nil {
				log.Printf("loop: motor command error: %v", err)
			}
		default:
			return false
		}
	}

	l.motorReq <- percent
	l.motorPending = true

	select {
	case err := <-l.motorRes:
		l.motorPending = false
		if err != nil {
			log.Printf("loop: motor command error: %v", err)
			return false
		}
		return true
	case <-time.After(l.period):
		return false
	}
}

func (l *Loop) sensorWorker() {
	for range l.sensorReq {
		s, err := l.sensor.ReadRaw()
		l.sensorRes <- sensorResult{sample: s, err: err}
	}
}

func (l *Loop) motorWorker() {
	for percent := range l.motorReq {
		l.motorRes <- l.driver.Apply(percent)
	}
}

// shutdown commands zero output before the loop returns.
func (l *Loop) shutdown() {
	if l.applyMotor(0) {
		l.lastCommand = 0
	}
	if err := l.driver.Stop(); err != nil {
		log.Printf("loop: motor stop on shutdown: %v", err)
	}
	log.Printf("loop: stopped after %d cycles (%d sensor faults, %d motor faults, %d overruns)",
		l.cycles, l.sensorFaults, l.motorFaults, l.overruns)
}

func (l *Loop) publishStatus(pitch float64, params pid.Params) {
	st := Status{
		State:        l.supervisor.State().String(),
		Reason:       l.supervisor.Reason(),
		Cycles:       l.cycles,
		SensorFaults: l.sensorFaults,
		MotorFaults:  l.motorFaults,
		Overruns:     l.overruns,
		Pitch:        pitch,
		LastOutput:   l.lastCommand,
		Params:       params,
	}
	if math.IsNaN(pitch) {
		st.Pitch = l.status.Pitch
	}

	l.statusMu.Lock()
	l.status = st
	l.statusMu.Unlock()
}

func sampleFinite(s imu.RawSample) bool {
	for i := 0; i < 3; i++ {
		if math.IsNaN(s.Accel[i]) || math.IsInf(s.Accel[i], 0) ||
			math.IsNaN(s.Gyro[i]) || math.IsInf(s.Gyro[i], 0) {
			return false
		}
	}
	return true
}
