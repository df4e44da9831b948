//go:build linux

package gpio

import (
	"fmt"

	"gobot.io/x/gobot/v2/system"
)

// pwmPin is the part of gobot.PWMPinner the driver uses.
type pwmPin interface {
	Export() error
	Unexport() error
	SetEnabled(enable bool) error
	SetPeriod(period uint32) error
	SetDutyCycle(duty uint32) error
}

// newPWMPin opens a sysfs PWM channel through gobot. Tests replace it.
var newPWMPin = func(chip, channel int) pwmPin {
	path := fmt.Sprintf("/sys/class/pwm/pwmchip%d", chip)
	return system.NewAccesser().NewPWMPin(path, channel, "normal", "inversed")
}

// pwmChannel is one H-bridge enable line on a hardware PWM output.
type pwmChannel struct {
	pin     pwmPin
	channel int
	duty    int
}

func openPWM(chip, channel, periodNs int) (*pwmChannel, error) {
	pin := newPWMPin(chip, channel)
	if err := pin.Export(); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	p := &pwmChannel{pin: pin, channel: channel, duty: -1}
	// duty_cycle must never exceed period, so zero it first.
	if err := p.setDuty(0); err != nil {
		return nil, err
	}
	if err := pin.SetPeriod(uint32(periodNs)); err != nil {
		return nil, fmt.Errorf("period: %w", err)
	}
	if err := pin.SetEnabled(true); err != nil {
		return nil, fmt.Errorf("enable: %w", err)
	}
	return p, nil
}

// setDuty writes the duty cycle, skipping the write when unchanged.
func (p *pwmChannel) setDuty(ns int) error {
	if ns == p.duty {
		return nil
	}
	if err := p.pin.SetDutyCycle(uint32(ns)); err != nil {
		return fmt.Errorf("duty_cycle: %w", err)
	}
	p.duty = ns
	return nil
}

// close zeroes the duty, disables the output and unexports the channel.
func (p *pwmChannel) close() error {
	if err := p.setDuty(0); err != nil {
		return err
	}
	if err := p.pin.SetEnabled(false); err != nil {
		return fmt.Errorf("disable: %w", err)
	}
	return p.pin.Unexport()
}
