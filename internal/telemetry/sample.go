package telemetry

import "time"

// Sample is one control-cycle record. All angle fields are in degrees,
// Output and MotorPercent in signed duty-cycle percent. A Sample is built
// completely before it is handed to the ring, and is never mutated after.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	ActualAngle  float64   `json:"actual_angle"`
	TargetAngle  float64   `json:"target_angle"`
	Error        float64   `json:"pid_error"`
	PTerm        float64   `json:"p_term"`
	ITerm        float64   `json:"i_term"`
	DTerm        float64   `json:"d_term"`
	Output       float64   `json:"pid_output"`
	MotorPercent float64   `json:"motor_percent"`
}
