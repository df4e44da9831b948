// Package gpio drives the H-bridge motor pairs and lamps with hardware
// abstraction.
// The real implementation uses the Linux GPIO character device for direction
// and lamp lines and gobot sysfs PWM pins for the enable lines.
// The fake implementation records requested outputs for tests.
package gpio

import "github.com/sweeney/ble-car/internal/logic"

// Driver is the full set of vehicle outputs.
type Driver interface {
	logic.Motors
	logic.Lamps

	// Close stops the motors, turns the lamps off and releases resources.
	Close() error
}

// Pins describes the wiring. Line offsets are on Chip (BCM numbering on a
// Raspberry Pi); the enable lines are PWM channels on PWMChip.
type Pins struct {
	Chip string `yaml:"chip"`

	// Front (drive) pair: IN1/IN2 direction, ENA enable.
	IN1 int `yaml:"in1"`
	IN2 int `yaml:"in2"`
	ENA int `yaml:"ena_channel"`

	// Back (steer) pair: IN3/IN4 direction, ENB enable.
	IN3 int `yaml:"in3"`
	IN4 int `yaml:"in4"`
	ENB int `yaml:"enb_channel"`

	LampFront int `yaml:"lamp_front"`
	LampBack  int `yaml:"lamp_back"`

	PWMChip     int `yaml:"pwm_chip"`
	PWMPeriodNs int `yaml:"pwm_period_ns"`
}

// DefaultPins returns the reference wiring: hardware PWM0/PWM1 on GPIO18/19.
func DefaultPins() Pins {
	return Pins{
		Chip:        "gpiochip0",
		IN1:         17,
		IN2:         27,
		ENA:         0,
		IN3:         22,
		IN4:         23,
		ENB:         1,
		LampFront:   24,
		LampBack:    25,
		PWMChip:     0,
		PWMPeriodNs: 1_000_000, // 1 kHz
	}
}

// levels returns the IN-line levels for a direction: forward drives the first
// line high, reverse the second, stopped leaves both low.
func levels(dir logic.Direction) (int, int) {
	switch dir {
	case logic.Forward:
		return 1, 0
	case logic.Reverse:
		return 0, 1
	}
	return 0, 0
}

// dutyNs scales an 8-bit speed to a duty cycle in nanoseconds.
func dutyNs(speed, periodNs int) int {
	if speed <= 0 {
		return 0
	}
	if speed > 255 {
		speed = 255
	}
	return periodNs * speed / 255
}

func boolToLevel(on bool) int {
	if on {
		return 1
	}
	return 0
}
