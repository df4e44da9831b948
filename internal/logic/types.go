// Package logic contains the pure vehicle control state machine: command
// interpretation, the safety watchdog, the blink scheduler and the connection
// lifecycle. This package has NO external dependencies (no GPIO, radio, MQTT,
// OS, or time.Sleep). Time is always injected via time.Time parameters and
// hardware is reached through the Motors and Lamps interfaces.
package logic

import "time"

// Speed limits for the PWM enable lines (8-bit duty).
const (
	SpeedMin     = 180
	SpeedMax     = 255
	SpeedDefault = 200
)

// Default timing.
const (
	DefaultCommandTimeout = 300 * time.Millisecond
	DefaultBlinkInterval  = 300 * time.Millisecond
)

// Direction is the state of one H-bridge motor pair.
type Direction string

const (
	Stopped Direction = "STOPPED"
	Forward Direction = "FORWARD"
	Reverse Direction = "REVERSE"
)

// The back pair steers: left drives it in reverse polarity, right forward.
const (
	SteerLeft  = Reverse
	SteerRight = Forward
)

// Motors drives the two H-bridge pairs.
type Motors interface {
	DriveFront(dir Direction, speed int) error
	DriveBack(dir Direction, speed int) error
	StopAll() error
}

// Lamps drives the front and back indicator lamps.
type Lamps interface {
	SetFrontLamp(on bool) error
	SetBackLamp(on bool) error
}

// ActuationState is the single mutable vehicle state.
type ActuationState struct {
	Front Direction
	Back  Direction

	FrontSpeed int
	BackSpeed  int

	// Desired lamp states when blink mode is off.
	FrontLampOn bool
	BackLampOn  bool

	BlinkEnabled bool
	BlinkPhase   bool

	// Zero means no command has been accepted yet.
	LastCommand time.Time
	LastBlink   time.Time
}

// DefaultState returns the startup state: stopped, lamps off, blink off,
// mid-range speeds.
func DefaultState() ActuationState {
	return ActuationState{
		Front:      Stopped,
		Back:       Stopped,
		FrontSpeed: SpeedDefault,
		BackSpeed:  SpeedDefault,
	}
}

// Moving reports whether either motor pair is driven.
func (s ActuationState) Moving() bool {
	return s.Front != Stopped || s.Back != Stopped
}

// FrontLampOutput returns the level currently driven on the front lamp.
func (s ActuationState) FrontLampOutput() bool {
	if s.BlinkEnabled {
		return s.BlinkPhase
	}
	return s.FrontLampOn
}

// BackLampOutput returns the level currently driven on the back lamp.
func (s ActuationState) BackLampOutput() bool {
	if s.BlinkEnabled {
		return s.BlinkPhase
	}
	return s.BackLampOn
}

// observable strips timestamps so two states can be compared for visible change.
func (s ActuationState) observable() ActuationState {
	s.LastCommand = time.Time{}
	s.LastBlink = time.Time{}
	s.BlinkPhase = s.BlinkEnabled && s.BlinkPhase
	return s
}

// Config holds the controller timing.
type Config struct {
	CommandTimeout time.Duration
	BlinkInterval  time.Duration
}

// DefaultConfig returns the standard 300ms timeout and blink interval.
func DefaultConfig() Config {
	return Config{
		CommandTimeout: DefaultCommandTimeout,
		BlinkInterval:  DefaultBlinkInterval,
	}
}

// LinkState is the connection lifecycle state.
type LinkState string

const (
	LinkDown LinkState = "DISCONNECTED"
	LinkUp   LinkState = "CONNECTED"
)

// LinkEventKind enumerates what a transport can deliver.
type LinkEventKind int

const (
	LinkCommand LinkEventKind = iota
	LinkConnected
	LinkDisconnected
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkCommand:
		return "command"
	case LinkConnected:
		return "connected"
	case LinkDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// LinkEvent is one notification from a transport.
type LinkEvent struct {
	Kind LinkEventKind
	Data []byte // command unit, LinkCommand only
	Peer string // peer address, informational
}

// EventType is the kind of telemetry event emitted by the controller.
type EventType string

const (
	EventConnected      EventType = "CONNECTED"
	EventDisconnected   EventType = "DISCONNECTED"
	EventAction         EventType = "ACTION"
	EventUnknownCommand EventType = "UNKNOWN_COMMAND"
	EventWatchdogStop   EventType = "WATCHDOG_STOP"
)

// Event is a telemetry record to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Command   string // command name, ACTION and UNKNOWN_COMMAND only
	Code      byte   // raw command byte
	Value     int    // speed parameter, -1 when not applicable
	State     ActuationState
	Session   Session
}

// Session describes one connected period.
type Session struct {
	ID       int
	Peer     string
	Start    time.Time
	Duration time.Duration // set on DISCONNECTED
	Commands int
}

// Counts tracks totals since startup.
type Counts struct {
	Commands      int
	Unknown       int
	WatchdogStops int
	Sessions      int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
