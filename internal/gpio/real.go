//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/ble-car/internal/logic"
)

// RealDriver drives actual hardware using the Linux GPIO character device.
type RealDriver struct {
	pins Pins
	chip *gpiocdev.Chip

	in1, in2, in3, in4 *gpiocdev.Line
	lampF, lampB       *gpiocdev.Line

	ena, enb *pwmChannel
}

// NewRealDriver requests all output lines low and enables both PWM channels
// at zero duty.
func NewRealDriver(pins Pins) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	d := &RealDriver{pins: pins, chip: chip}

	outputs := []struct {
		line   **gpiocdev.Line
		offset int
		name   string
	}{
		{&d.in1, pins.IN1, "IN1"},
		{&d.in2, pins.IN2, "IN2"},
		{&d.in3, pins.IN3, "IN3"},
		{&d.in4, pins.IN4, "IN4"},
		{&d.lampF, pins.LampFront, "front lamp"},
		{&d.lampB, pins.LampBack, "back lamp"},
	}
	for _, o := range outputs {
		l, err := chip.RequestLine(o.offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("ble-car"))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", o.name, o.offset, err)
		}
		*o.line = l
	}

	if d.ena, err = openPWM(pins.PWMChip, pins.ENA, pins.PWMPeriodNs); err != nil {
		d.Close()
		return nil, fmt.Errorf("open ENA pwm: %w", err)
	}
	if d.enb, err = openPWM(pins.PWMChip, pins.ENB, pins.PWMPeriodNs); err != nil {
		d.Close()
		return nil, fmt.Errorf("open ENB pwm: %w", err)
	}

	return d, nil
}

// DriveFront sets the front pair direction and speed.
func (d *RealDriver) DriveFront(dir logic.Direction, speed int) error {
	return d.drive(d.in1, d.in2, d.ena, dir, speed)
}

// DriveBack sets the back pair direction and speed.
func (d *RealDriver) DriveBack(dir logic.Direction, speed int) error {
	return d.drive(d.in3, d.in4, d.enb, dir, speed)
}

// StopAll pulls every direction line low and zeroes both enable lines.
func (d *RealDriver) StopAll() error {
	var errs []error
	if err := d.drive(d.in1, d.in2, d.ena, logic.Stopped, 0); err != nil {
		errs = append(errs, err)
	}
	if err := d.drive(d.in3, d.in4, d.enb, logic.Stopped, 0); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("stop errors: %v", errs)
	}
	return nil
}

// SetFrontLamp drives the front lamp line.
func (d *RealDriver) SetFrontLamp(on bool) error {
	if err := d.lampF.SetValue(boolToLevel(on)); err != nil {
		return fmt.Errorf("set front lamp: %w", err)
	}
	return nil
}

// SetBackLamp drives the back lamp line.
func (d *RealDriver) SetBackLamp(on bool) error {
	if err := d.lampB.SetValue(boolToLevel(on)); err != nil {
		return fmt.Errorf("set back lamp: %w", err)
	}
	return nil
}

func (d *RealDriver) drive(a, b *gpiocdev.Line, en *pwmChannel, dir logic.Direction, speed int) error {
	va, vb := levels(dir)
	if dir == logic.Stopped {
		speed = 0
	}
	if err := a.SetValue(va); err != nil {
		return fmt.Errorf("set line %d: %w", a.Offset(), err)
	}
	if err := b.SetValue(vb); err != nil {
		return fmt.Errorf("set line %d: %w", b.Offset(), err)
	}
	if err := en.setDuty(dutyNs(speed, d.pins.PWMPeriodNs)); err != nil {
		return fmt.Errorf("set pwm %d: %w", en.channel, err)
	}
	return nil
}

// Close releases GPIO resources.
// Drives every output low before releasing so the motors cannot be left
// running and the lamps are dark when the daemon exits.
func (d *RealDriver) Close() error {
	var errs []error

	for _, l := range []*gpiocdev.Line{d.in1, d.in2, d.in3, d.in4, d.lampF, d.lampB} {
		if l == nil {
			continue
		}
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset line %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line %d: %w", l.Offset(), err))
		}
	}
	for _, p := range []*pwmChannel{d.ena, d.enb} {
		if p == nil {
			continue
		}
		if err := p.close(); err != nil {
			errs = append(errs, fmt.Errorf("close pwm %d: %w", p.channel, err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
