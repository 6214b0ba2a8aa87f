// Package motor commands the drive motors. The loop hands it a signed
// duty-cycle percent in [-100, 100]; sign is direction.
package motor

import "math"

// Driver is the actuator collaborator: real serial hardware or a mock.
// Apply is called exactly once per completed control cycle and must not
// block longer than one cycle period; the loop counts a slow or failing
// call as an actuator fault.
type Driver interface {
	// Apply commands a signed duty-cycle percent in [-100, 100].
	Apply(percent float64) error
	// Stop commands an immediate zero output.
	Stop() error
}

// Profile maps the controller output onto the physical duty-cycle range.
// Small DC gearmotors do not move below a minimum duty (the deadband), so
// the usable magnitude range [ZeroThreshold, 100] is rescaled onto
// [Deadband, MaxSpeed].
type Profile struct {
	Deadband      float64 // duty percent below which the motor does not move
	MaxSpeed      float64 // duty percent ceiling
	ZeroThreshold float64 // magnitudes below this are treated as zero
}

// Map converts a controller output into the signed percent actually sent
// to the driver.
func (p Profile) Map(output float64) float64 {
	output = math.Max(-100, math.Min(100, output))

	speed := math.Abs(output)
	switch {
	case speed < p.ZeroThreshold:
		speed = 0
	case p.Deadband > 0:
		speed = (speed/100.0)*(p.MaxSpeed-p.Deadband) + p.Deadband
	}
	speed = math.Min(math.Max(0, speed), p.MaxSpeed)

	if output < 0 {
		return -speed
	}
	return speed
}
