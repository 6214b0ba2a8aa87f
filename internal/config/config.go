package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all daemon configuration values. Angles are degrees,
// angular rates degrees per second, throughout the whole system.
type Config struct {
	// PID controller
	PGain       float64
	IGain       float64
	DGain       float64
	TargetAngle float64
	MaxITerm    float64

	// Orientation filter
	FilterGain    float64 // accelerometer correction weight, open interval (0,1)
	GyroSmoothing float64 // gyro bias tracker smoothing factor
	SampleRateHz  int
	UpsideDown    bool

	// Sensor bias offsets, written by the calibrate command
	GyroOffsetX  float64
	GyroOffsetY  float64
	GyroOffsetZ  float64
	AccelOffsetX float64
	AccelOffsetY float64
	AccelOffsetZ float64

	// Safety
	FallLimitDeg        float64
	FallDebounceSamples int

	// Motor
	MotorDeadband float64 // duty percent below which the motor does not move
	MaxMotorSpeed float64
	ZeroThreshold float64
	MotorDriver   string // "mock" or "serial"
	MotorPort     string
	MotorBaudRate int

	// IMU hardware
	SensorSource  string // "mock" or "mpu9250"
	IMUSPIDevice  string
	IMUCSPin      string
	IMUAccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUGyroRange  byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s

	// Telemetry
	TelemetryWindowSec int
	TelemetryDBPath    string // empty disables the sqlite session log

	// Web server
	WebServerPort  int
	WebStaticDir   string
	WSPushInterval int // milliseconds

	// MQTT (empty broker disables publishing)
	MQTTBroker          string
	MQTTClientID        string
	TopicTelemetry      string
	TopicStatus         string
	MQTTPublishInterval int // milliseconds

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// Defaults returns the documented default configuration: zero bias offsets,
// filter gain 0.5, 100 Hz sample rate, 45° fall limit.
func Defaults() *Config {
	return &Config{
		PGain:       5.0,
		IGain:       0.1,
		DGain:       1.0,
		TargetAngle: 0.0,
		MaxITerm:    20.0,

		FilterGain:    0.5,
		GyroSmoothing: 0.98,
		SampleRateHz:  100,
		UpsideDown:    false,

		FallLimitDeg:        45.0,
		FallDebounceSamples: 2,

		MotorDeadband: 60.0,
		MaxMotorSpeed: 100.0,
		ZeroThreshold: 0.1,
		MotorDriver:   "mock",
		MotorPort:     "/dev/serial0",
		MotorBaudRate: 9600,

		SensorSource:  "mock",
		IMUSPIDevice:  "/dev/spidev0.0",
		IMUCSPin:      "18",
		IMUAccelRange: 0,
		IMUGyroRange:  0,

		TelemetryWindowSec: 10,
		TelemetryDBPath:    "",

		WebServerPort:  8080,
		WebStaticDir:   "web",
		WSPushInterval: 500,

		MQTTBroker:          "",
		MQTTClientID:        "balance-loop",
		TopicTelemetry:      "balance/telemetry",
		TopicStatus:         "balance/status",
		MQTTPublishInterval: 100,

		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 250,
	}
}

// Package-level singleton. External code must use InitGlobal() to set,
// Get() to read and Update() to mutate, which keeps all access behind
// configMu.
var (
	globalConfig *Config
	globalPath   string
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
// Missing keys keep their defaults. If the file does not exist it is
// created with the default values, so a fresh install is runnable.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			if err := Save(configPath, cfg); err != nil {
				return nil, fmt.Errorf("creating default config file: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid %s %q: must be finite", key, value)
	}
	return f, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// PID controller
	case "P_GAIN":
		c.PGain, err = parseFloat(key, value)
	case "I_GAIN":
		c.IGain, err = parseFloat(key, value)
	case "D_GAIN":
		c.DGain, err = parseFloat(key, value)
	case "TARGET_ANGLE":
		c.TargetAngle, err = parseFloat(key, value)
	case "MAX_I_TERM":
		c.MaxITerm, err = parseFloat(key, value)

	// Orientation filter
	case "FILTER_GAIN":
		c.FilterGain, err = parseFloat(key, value)
	case "GYRO_SMOOTHING":
		c.GyroSmoothing, err = parseFloat(key, value)
	case "SAMPLE_RATE_HZ":
		c.SampleRateHz, err = parseInt(key, value)
	case "UPSIDE_DOWN":
		c.UpsideDown, err = parseBool(key, value)

	// Sensor bias offsets
	case "GYRO_OFFSET_X":
		c.GyroOffsetX, err = parseFloat(key, value)
	case "GYRO_OFFSET_Y":
		c.GyroOffsetY, err = parseFloat(key, value)
	case "GYRO_OFFSET_Z":
		c.GyroOffsetZ, err = parseFloat(key, value)
	case "ACCEL_OFFSET_X":
		c.AccelOffsetX, err = parseFloat(key, value)
	case "ACCEL_OFFSET_Y":
		c.AccelOffsetY, err = parseFloat(key, value)
	case "ACCEL_OFFSET_Z":
		c.AccelOffsetZ, err = parseFloat(key, value)

	// Safety
	case "FALL_LIMIT_DEG":
		c.FallLimitDeg, err = parseFloat(key, value)
	case "FALL_DEBOUNCE_SAMPLES":
		c.FallDebounceSamples, err = parseInt(key, value)

	// Motor
	case "MOTOR_DEADBAND":
		c.MotorDeadband, err = parseFloat(key, value)
	case "MAX_MOTOR_SPEED":
		c.MaxMotorSpeed, err = parseFloat(key, value)
	case "ZERO_THRESHOLD":
		c.ZeroThreshold, err = parseFloat(key, value)
	case "MOTOR_DRIVER":
		c.MotorDriver = value
	case "MOTOR_SERIAL_PORT":
		c.MotorPort = value
	case "MOTOR_BAUD_RATE":
		c.MotorBaudRate, err = parseInt(key, value)

	// IMU hardware
	case "SENSOR_SOURCE":
		c.SensorSource = value
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		var rangeVal int
		rangeVal, err = parseInt(key, value)
		if err == nil && (rangeVal < 0 || rangeVal > 3) {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)
	case "IMU_GYRO_RANGE":
		var rangeVal int
		rangeVal, err = parseInt(key, value)
		if err == nil && (rangeVal < 0 || rangeVal > 3) {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMUGyroRange = byte(rangeVal)

	// Telemetry
	case "TELEMETRY_WINDOW_SEC":
		c.TelemetryWindowSec, err = parseInt(key, value)
	case "TELEMETRY_DB_PATH":
		c.TelemetryDBPath = value

	// Web server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value
	case "WS_PUSH_INTERVAL":
		c.WSPushInterval, err = parseInt(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "MQTT_PUBLISH_INTERVAL":
		c.MQTTPublishInterval, err = parseInt(key, value)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, perr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that values the control loop depends on are usable.
func (c *Config) validate() error {
	if c.SampleRateHz <= 0 {
		return fmt.Errorf("SAMPLE_RATE_HZ must be positive, got %d", c.SampleRateHz)
	}
	if c.FilterGain <= 0 || c.FilterGain >= 1 {
		return fmt.Errorf("FILTER_GAIN must be in (0,1), got %g", c.FilterGain)
	}
	if c.GyroSmoothing <= 0 || c.GyroSmoothing >= 1 {
		return fmt.Errorf("GYRO_SMOOTHING must be in (0,1), got %g", c.GyroSmoothing)
	}
	if c.FallLimitDeg <= 0 {
		return fmt.Errorf("FALL_LIMIT_DEG must be positive, got %g", c.FallLimitDeg)
	}
	if c.FallDebounceSamples < 1 {
		return fmt.Errorf("FALL_DEBOUNCE_SAMPLES must be at least 1, got %d", c.FallDebounceSamples)
	}
	if c.TelemetryWindowSec <= 0 {
		return fmt.Errorf("TELEMETRY_WINDOW_SEC must be positive, got %d", c.TelemetryWindowSec)
	}
	if c.PGain < 0 || c.IGain < 0 || c.DGain < 0 {
		return fmt.Errorf("PID gains must be non-negative, got P=%g I=%g D=%g", c.PGain, c.IGain, c.DGain)
	}
	switch c.SensorSource {
	case "mock", "mpu9250":
	default:
		return fmt.Errorf("SENSOR_SOURCE must be \"mock\" or \"mpu9250\", got %q", c.SensorSource)
	}
	switch c.MotorDriver {
	case "mock", "serial":
	default:
		return fmt.Errorf("MOTOR_DRIVER must be \"mock\" or \"serial\", got %q", c.MotorDriver)
	}
	return nil
}

// Save writes the configuration to disk in the same KEY=VALUE format Load
// reads, so runtime parameter changes survive a process restart.
func Save(configPath string, c *Config) error {
	var b strings.Builder

	b.WriteString("# balance_robot configuration\n")
	b.WriteString("# Angles in degrees, rates in degrees per second.\n\n")

	b.WriteString("# PID controller\n")
	fmt.Fprintf(&b, "P_GAIN=%g\n", c.PGain)
	fmt.Fprintf(&b, "I_GAIN=%g\n", c.IGain)
	fmt.Fprintf(&b, "D_GAIN=%g\n", c.DGain)
	fmt.Fprintf(&b, "TARGET_ANGLE=%g\n", c.TargetAngle)
	fmt.Fprintf(&b, "MAX_I_TERM=%g\n\n", c.MaxITerm)

	b.WriteString("# Orientation filter\n")
	fmt.Fprintf(&b, "FILTER_GAIN=%g\n", c.FilterGain)
	fmt.Fprintf(&b, "GYRO_SMOOTHING=%g\n", c.GyroSmoothing)
	fmt.Fprintf(&b, "SAMPLE_RATE_HZ=%d\n", c.SampleRateHz)
	fmt.Fprintf(&b, "UPSIDE_DOWN=%t\n\n", c.UpsideDown)

	b.WriteString("# Sensor bias offsets (from the calibrate command)\n")
	fmt.Fprintf(&b, "GYRO_OFFSET_X=%g\n", c.GyroOffsetX)
	fmt.Fprintf(&b, "GYRO_OFFSET_Y=%g\n", c.GyroOffsetY)
	fmt.Fprintf(&b, "GYRO_OFFSET_Z=%g\n", c.GyroOffsetZ)
	fmt.Fprintf(&b, "ACCEL_OFFSET_X=%g\n", c.AccelOffsetX)
	fmt.Fprintf(&b, "ACCEL_OFFSET_Y=%g\n", c.AccelOffsetY)
	fmt.Fprintf(&b, "ACCEL_OFFSET_Z=%g\n\n", c.AccelOffsetZ)

	b.WriteString("# Safety\n")
	fmt.Fprintf(&b, "FALL_LIMIT_DEG=%g\n", c.FallLimitDeg)
	fmt.Fprintf(&b, "FALL_DEBOUNCE_SAMPLES=%d\n\n", c.FallDebounceSamples)

	b.WriteString("# Motor\n")
	fmt.Fprintf(&b, "MOTOR_DEADBAND=%g\n", c.MotorDeadband)
	fmt.Fprintf(&b, "MAX_MOTOR_SPEED=%g\n", c.MaxMotorSpeed)
	fmt.Fprintf(&b, "ZERO_THRESHOLD=%g\n", c.ZeroThreshold)
	fmt.Fprintf(&b, "MOTOR_DRIVER=%s\n", c.MotorDriver)
	fmt.Fprintf(&b, "MOTOR_SERIAL_PORT=%s\n", c.MotorPort)
	fmt.Fprintf(&b, "MOTOR_BAUD_RATE=%d\n\n", c.MotorBaudRate)

	b.WriteString("# IMU hardware\n")
	fmt.Fprintf(&b, "SENSOR_SOURCE=%s\n", c.SensorSource)
	fmt.Fprintf(&b, "IMU_SPI_DEVICE=%s\n", c.IMUSPIDevice)
	fmt.Fprintf(&b, "IMU_CS_PIN=%s\n", c.IMUCSPin)
	fmt.Fprintf(&b, "IMU_ACCEL_RANGE=%d\n", c.IMUAccelRange)
	fmt.Fprintf(&b, "IMU_GYRO_RANGE=%d\n\n", c.IMUGyroRange)

	b.WriteString("# Telemetry\n")
	fmt.Fprintf(&b, "TELEMETRY_WINDOW_SEC=%d\n", c.TelemetryWindowSec)
	fmt.Fprintf(&b, "TELEMETRY_DB_PATH=%s\n\n", c.TelemetryDBPath)

	b.WriteString("# Web server\n")
	fmt.Fprintf(&b, "WEB_SERVER_PORT=%d\n", c.WebServerPort)
	fmt.Fprintf(&b, "WEB_STATIC_DIR=%s\n", c.WebStaticDir)
	fmt.Fprintf(&b, "WS_PUSH_INTERVAL=%d\n\n", c.WSPushInterval)

	b.WriteString("# MQTT (leave MQTT_BROKER empty to disable publishing)\n")
	fmt.Fprintf(&b, "MQTT_BROKER=%s\n", c.MQTTBroker)
	fmt.Fprintf(&b, "MQTT_CLIENT_ID=%s\n", c.MQTTClientID)
	fmt.Fprintf(&b, "TOPIC_TELEMETRY=%s\n", c.TopicTelemetry)
	fmt.Fprintf(&b, "TOPIC_STATUS=%s\n", c.TopicStatus)
	fmt.Fprintf(&b, "MQTT_PUBLISH_INTERVAL=%d\n\n", c.MQTTPublishInterval)

	b.WriteString("# Display\n")
	fmt.Fprintf(&b, "DISPLAY_I2C_ADDR=0x%02X\n", c.DisplayI2CAddr)
	fmt.Fprintf(&b, "DISPLAY_UPDATE_INTERVAL=%d\n", c.DisplayUpdateInterval)

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalPath = configPath
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns a copy of the global configuration.
// InitGlobal must be called first.
func Get() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	if globalConfig == nil {
		return *Defaults()
	}
	return *globalConfig
}

// Update applies fn to the global configuration and checkpoints the result
// to the backing file. The in-memory change is kept even when the write
// fails, so the caller can decide how loudly to report the failure.
func Update(fn func(*Config)) error {
	configMu.Lock()
	if globalConfig == nil {
		globalConfig = Defaults()
	}
	fn(globalConfig)
	snapshot := *globalConfig
	path := globalPath
	configMu.Unlock()

	if path == "" {
		return nil
	}
	if err := Save(path, &snapshot); err != nil {
		return fmt.Errorf("persisting config: %w", err)
	}
	return nil
}
