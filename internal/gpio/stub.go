//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/ble-car/internal/logic"
)

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(pins Pins) (*RealDriver, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// DriveFront is not implemented on non-Linux platforms.
func (d *RealDriver) DriveFront(dir logic.Direction, speed int) error {
	return errors.New("gpio: not supported")
}

// DriveBack is not implemented on non-Linux platforms.
func (d *RealDriver) DriveBack(dir logic.Direction, speed int) error {
	return errors.New("gpio: not supported")
}

// StopAll is not implemented on non-Linux platforms.
func (d *RealDriver) StopAll() error {
	return errors.New("gpio: not supported")
}

// SetFrontLamp is not implemented on non-Linux platforms.
func (d *RealDriver) SetFrontLamp(on bool) error {
	return errors.New("gpio: not supported")
}

// SetBackLamp is not implemented on non-Linux platforms.
func (d *RealDriver) SetBackLamp(on bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
