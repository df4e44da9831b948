package logic

import (
	"errors"
	"fmt"
	"time"
)

// Controller owns the ActuationState and is the only writer of the motor and
// lamp outputs. It is not safe for concurrent use: all calls must come from
// one goroutine (the run loop).
type Controller struct {
	cfg    Config
	motors Motors
	lamps  Lamps

	state ActuationState
	link  LinkState

	startTime     time.Time
	counts        Counts
	session       Session
	lastHeartbeat time.Time

	// Errors from the last driver writes, reported by LastError.
	lastErr error
}

// NewController creates a controller with startup defaults and writes them to
// the hardware (motors stopped, lamps off).
func NewController(cfg Config, motors Motors, lamps Lamps, startTime time.Time) *Controller {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.BlinkInterval <= 0 {
		cfg.BlinkInterval = DefaultBlinkInterval
	}
	c := &Controller{
		cfg:           cfg,
		motors:        motors,
		lamps:         lamps,
		state:         DefaultState(),
		link:          LinkDown,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
	c.stop()
	c.writeLamps(false, false)
	return c
}

// State returns a copy of the current actuation state.
func (c *Controller) State() ActuationState {
	return c.state
}

// Link returns the connection lifecycle state.
func (c *Controller) Link() LinkState {
	return c.link
}

// Session returns the current (or last ended) session.
func (c *Controller) Session() Session {
	return c.session
}

// CountsSnapshot returns the totals since startup.
func (c *Controller) CountsSnapshot() Counts {
	return c.counts
}

// LastError returns and clears the error from the most recent driver writes.
// Driver failures never abort a command or a tick.
func (c *Controller) LastError() error {
	err := c.lastErr
	c.lastErr = nil
	return err
}

// Dispatch routes a transport notification to the matching handler.
func (c *Controller) Dispatch(ev LinkEvent, now time.Time) []Event {
	switch ev.Kind {
	case LinkCommand:
		return c.HandleCommand(ev.Data, now)
	case LinkConnected:
		return c.Connect(ev.Peer, now)
	case LinkDisconnected:
		return c.Disconnect(now)
	}
	return nil
}

// HandleCommand interprets one command unit and applies it immediately.
// The first byte identifies the command; speed commands take the second byte
// as parameter and are dropped without any effect if it is missing.
func (c *Controller) HandleCommand(data []byte, now time.Time) []Event {
	if len(data) == 0 {
		return nil
	}
	code := data[0]
	if NeedsParam(code) && len(data) < 2 {
		return nil
	}

	if now.After(c.state.LastCommand) {
		c.state.LastCommand = now
	}

	name := CommandName(code)
	if name == "" {
		c.counts.Unknown++
		return []Event{c.event(EventUnknownCommand, now, code, -1)}
	}

	c.counts.Commands++
	c.session.Commands++
	before := c.state.observable()
	value := -1

	switch code {
	case CmdForward:
		c.driveFront(Forward)
	case CmdBackward:
		c.driveFront(Reverse)
	case CmdLeft:
		c.driveBack(SteerLeft)
	case CmdRight:
		c.driveBack(SteerRight)
	case CmdForwardLeft:
		c.driveFront(Forward)
		c.driveBack(SteerLeft)
	case CmdForwardRight:
		c.driveFront(Forward)
		c.driveBack(SteerRight)
	case CmdBackLeft:
		c.driveFront(Reverse)
		c.driveBack(SteerLeft)
	case CmdBackRight:
		c.driveFront(Reverse)
		c.driveBack(SteerRight)
	case CmdStop:
		c.stop()

	case CmdFrontLampOn, CmdFrontLampOff:
		c.state.FrontLampOn = code == CmdFrontLampOn
		c.state.BlinkEnabled = false
		c.writeLamps(c.state.FrontLampOn, c.state.BackLampOn)
	case CmdBackLampOn, CmdBackLampOff:
		c.state.BackLampOn = code == CmdBackLampOn
		c.state.BlinkEnabled = false
		c.writeLamps(c.state.FrontLampOn, c.state.BackLampOn)

	case CmdBlinkOn:
		if !c.state.BlinkEnabled {
			// Toggling starts from what the lamps show right now.
			c.state.BlinkPhase = c.state.FrontLampOn
			c.state.BlinkEnabled = true
		}
	case CmdBlinkOff:
		c.state.BlinkEnabled = false
		c.state.BlinkPhase = false
		c.state.FrontLampOn = false
		c.state.BackLampOn = false
		c.writeLamps(false, false)

	case CmdFrontSpeed:
		value = int(data[1])
		c.state.FrontSpeed = ClampSpeed(value)
		if c.state.Front != Stopped {
			c.driveFront(c.state.Front)
		}
	case CmdBackSpeed:
		value = int(data[1])
		c.state.BackSpeed = ClampSpeed(value)
		if c.state.Back != Stopped {
			c.driveBack(c.state.Back)
		}
	}

	if c.state.observable() == before {
		return nil
	}
	return []Event{c.event(EventAction, now, code, value)}
}

// Tick runs the safety watchdog and the blink scheduler.
func (c *Controller) Tick(now time.Time) []Event {
	var events []Event

	if now.Sub(c.state.LastCommand) > c.cfg.CommandTimeout {
		moving := c.state.Moving()
		c.stop()
		if moving {
			c.counts.WatchdogStops++
			events = append(events, c.event(EventWatchdogStop, now, 0, -1))
		}
	}

	if c.state.BlinkEnabled && now.Sub(c.state.LastBlink) >= c.cfg.BlinkInterval {
		c.state.BlinkPhase = !c.state.BlinkPhase
		c.state.LastBlink = now
		c.writeLamps(c.state.BlinkPhase, c.state.BlinkPhase)
	}

	return events
}

// Connect handles a transport connect notification. No state is reset.
func (c *Controller) Connect(peer string, now time.Time) []Event {
	if c.link == LinkUp {
		return nil
	}
	c.link = LinkUp
	c.counts.Sessions++
	c.session = Session{
		ID:    c.counts.Sessions,
		Peer:  peer,
		Start: now,
	}
	return []Event{c.event(EventConnected, now, 0, -1)}
}

// Disconnect handles a transport disconnect notification: every output and
// field of the actuation state is reset to startup defaults before returning.
// The caller restarts advertising.
func (c *Controller) Disconnect(now time.Time) []Event {
	c.Reset()
	if c.link == LinkDown {
		return nil
	}
	c.link = LinkDown
	c.session.Duration = now.Sub(c.session.Start)
	return []Event{c.event(EventDisconnected, now, 0, -1)}
}

// Reset forces the actuation state and the hardware back to startup defaults.
func (c *Controller) Reset() {
	c.state = DefaultState()
	c.stop()
	c.writeLamps(false, false)
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}
	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}

func (c *Controller) driveFront(dir Direction) {
	c.state.Front = dir
	c.record(c.motors.DriveFront(dir, c.state.FrontSpeed), "drive front")
}

func (c *Controller) driveBack(dir Direction) {
	c.state.Back = dir
	c.record(c.motors.DriveBack(dir, c.state.BackSpeed), "drive back")
}

func (c *Controller) stop() {
	c.state.Front = Stopped
	c.state.Back = Stopped
	c.record(c.motors.StopAll(), "stop")
}

func (c *Controller) writeLamps(front, back bool) {
	c.record(c.lamps.SetFrontLamp(front), "front lamp")
	c.record(c.lamps.SetBackLamp(back), "back lamp")
}

func (c *Controller) record(err error, what string) {
	if err == nil {
		return
	}
	c.lastErr = errors.Join(c.lastErr, fmt.Errorf("%s: %w", what, err))
}

func (c *Controller) event(t EventType, now time.Time, code byte, value int) Event {
	e := Event{
		Timestamp: now,
		Type:      t,
		Code:      code,
		Value:     value,
		State:     c.state,
		Session:   c.session,
	}
	if t == EventAction || t == EventUnknownCommand {
		e.Command = CommandName(code)
		if e.Command == "" {
			e.Command = fmt.Sprintf("%q", code)
		}
	}
	return e
}
