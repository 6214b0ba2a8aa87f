package motor

import (
	"fmt"
	"io"
	"log"
	"math"
	"sync"

	serial "github.com/jacobsa/go-serial/serial"
)

// Sabertooth simplified-serial command bytes: motor 1 spans 1..127 with 64
// as stop, motor 2 spans 128..255 with 192 as stop, and 0 shuts down both.
const (
	motor1Stop = 64
	motor2Stop = 192
	motorSpan  = 63
	allStop    = 0
)

type serialDriver struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// NewSerialDriver opens the serial link to a Sabertooth-style dual motor
// controller in simplified serial mode. Both motors receive the same
// command, which is what a two-wheeled balancer wants.
func NewSerialDriver(portName string, baudRate int) (Driver, error) {
	opts := serial.OpenOptions{
		PortName:        portName,
		BaudRate:        uint(baudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening motor serial port %s: %w", portName, err)
	}
	log.Printf("motor: serial port opened on %s at %d baud", portName, baudRate)

	d := &serialDriver{port: port}
	if err := d.Stop(); err != nil {
		port.Close()
		return nil, fmt.Errorf("initial motor stop: %w", err)
	}
	return d, nil
}

func (d *serialDriver) Apply(percent float64) error {
	percent = math.Max(-100, math.Min(100, percent))
	offset := int(math.Round(percent / 100 * motorSpan))

	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.port.Write([]byte{
		byte(motor1Stop + offset),
		byte(motor2Stop + offset),
	})
	if err != nil {
		return fmt.Errorf("motor command write: %w", err)
	}
	return nil
}

func (d *serialDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.port.Write([]byte{allStop}); err != nil {
		return fmt.Errorf("motor stop write: %w", err)
	}
	return nil
}
