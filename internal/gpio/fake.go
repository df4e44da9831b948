package gpio

import (
	"fmt"

	"github.com/sweeney/ble-car/internal/logic"
)

// Output is the requested state of one motor pair.
type Output struct {
	Dir   logic.Direction
	Speed int
}

// Lines is the raw level of every output line, as the H-bridge sees it.
type Lines struct {
	IN1, IN2, IN3, IN4 int
	ENADuty, ENBDuty   int // 0..255
	LampFront          int
	LampBack           int
}

// FakeDriver is a test double that records every requested output.
type FakeDriver struct {
	Front Output
	Back  Output

	FrontLamp bool
	BackLamp  bool

	// Calls lists every driver call in order, e.g. "front FORWARD 200".
	Calls []string

	// Stops counts StopAll calls.
	Stops int

	// Closed tracks if Close was called
	Closed bool

	// WriteError, if set, will be returned by every output method.
	WriteError error
}

// NewFakeDriver creates a FakeDriver with both pairs stopped.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Front: Output{Dir: logic.Stopped},
		Back:  Output{Dir: logic.Stopped},
	}
}

// DriveFront records the front pair request.
func (f *FakeDriver) DriveFront(dir logic.Direction, speed int) error {
	f.Calls = append(f.Calls, fmt.Sprintf("front %s %d", dir, speed))
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Front = Output{Dir: dir, Speed: speed}
	return nil
}

// DriveBack records the back pair request.
func (f *FakeDriver) DriveBack(dir logic.Direction, speed int) error {
	f.Calls = append(f.Calls, fmt.Sprintf("back %s %d", dir, speed))
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Back = Output{Dir: dir, Speed: speed}
	return nil
}

// StopAll records a stop of both pairs.
func (f *FakeDriver) StopAll() error {
	f.Calls = append(f.Calls, "stop")
	f.Stops++
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Front = Output{Dir: logic.Stopped}
	f.Back = Output{Dir: logic.Stopped}
	return nil
}

// SetFrontLamp records the front lamp level.
func (f *FakeDriver) SetFrontLamp(on bool) error {
	f.Calls = append(f.Calls, fmt.Sprintf("lamp front %v", on))
	if f.WriteError != nil {
		return f.WriteError
	}
	f.FrontLamp = on
	return nil
}

// SetBackLamp records the back lamp level.
func (f *FakeDriver) SetBackLamp(on bool) error {
	f.Calls = append(f.Calls, fmt.Sprintf("lamp back %v", on))
	if f.WriteError != nil {
		return f.WriteError
	}
	f.BackLamp = on
	return nil
}

// Lines returns the line levels the real driver would produce for the
// recorded state.
func (f *FakeDriver) Lines() Lines {
	var l Lines
	l.IN1, l.IN2 = levels(f.Front.Dir)
	l.IN3, l.IN4 = levels(f.Back.Dir)
	if f.Front.Dir != logic.Stopped {
		l.ENADuty = dutyNs(f.Front.Speed, 255)
	}
	if f.Back.Dir != logic.Stopped {
		l.ENBDuty = dutyNs(f.Back.Speed, 255)
	}
	l.LampFront = boolToLevel(f.FrontLamp)
	l.LampBack = boolToLevel(f.BackLamp)
	return l
}

// Close marks the driver as closed.
func (f *FakeDriver) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded calls and returns to the initial state.
func (f *FakeDriver) Reset() {
	*f = *NewFakeDriver()
}
