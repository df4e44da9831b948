package logic

import (
	"errors"
	"testing"
	"time"
)

// recorder is an in-memory Motors+Lamps that keeps the last requested outputs.
type recorder struct {
	front, back           Direction
	frontSpeed, backSpeed int
	frontLamp, backLamp   bool
	stops                 int
	lampWrites            int
	err                   error
}

func newRecorder() *recorder {
	return &recorder{front: Stopped, back: Stopped}
}

func (r *recorder) DriveFront(dir Direction, speed int) error {
	r.front, r.frontSpeed = dir, speed
	return r.err
}

func (r *recorder) DriveBack(dir Direction, speed int) error {
	r.back, r.backSpeed = dir, speed
	return r.err
}

func (r *recorder) StopAll() error {
	r.front, r.back = Stopped, Stopped
	r.frontSpeed, r.backSpeed = 0, 0
	r.stops++
	return r.err
}

func (r *recorder) SetFrontLamp(on bool) error {
	r.frontLamp = on
	r.lampWrites++
	return r.err
}

func (r *recorder) SetBackLamp(on bool) error {
	r.backLamp = on
	r.lampWrites++
	return r.err
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func setupController(t *testing.T) (*Controller, *recorder) {
	t.Helper()
	r := newRecorder()
	c := NewController(DefaultConfig(), r, r, t0)
	return c, r
}

func TestNewControllerDefaults(t *testing.T) {
	c, r := setupController(t)

	s := c.State()
	if s != DefaultState() {
		t.Errorf("expected default state, got %+v", s)
	}
	if s.FrontSpeed != SpeedDefault || s.BackSpeed != SpeedDefault {
		t.Errorf("expected speeds %d, got %d/%d", SpeedDefault, s.FrontSpeed, s.BackSpeed)
	}
	if !s.LastCommand.IsZero() {
		t.Errorf("expected zero LastCommand, got %v", s.LastCommand)
	}
	if c.Link() != LinkDown {
		t.Errorf("expected initial link %s, got %s", LinkDown, c.Link())
	}
	if r.stops != 1 {
		t.Errorf("expected motors stopped at startup, got %d stops", r.stops)
	}
	if r.frontLamp || r.backLamp || r.lampWrites != 2 {
		t.Errorf("expected both lamps written off at startup, got front=%v back=%v writes=%d", r.frontLamp, r.backLamp, r.lampWrites)
	}
}

func TestNewControllerZeroConfigUsesDefaults(t *testing.T) {
	r := newRecorder()
	c := NewController(Config{}, r, r, t0)
	if c.cfg.CommandTimeout != DefaultCommandTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultCommandTimeout, c.cfg.CommandTimeout)
	}
	if c.cfg.BlinkInterval != DefaultBlinkInterval {
		t.Errorf("expected blink interval %v, got %v", DefaultBlinkInterval, c.cfg.BlinkInterval)
	}
}

func TestClampSpeed(t *testing.T) {
	for p := 0; p <= 255; p++ {
		got := ClampSpeed(p)
		want := p
		if p < SpeedMin {
			want = SpeedMin
		}
		if got != want {
			t.Errorf("ClampSpeed(%d): got %d, want %d", p, got, want)
		}
	}
	if got := ClampSpeed(1000); got != SpeedMax {
		t.Errorf("ClampSpeed(1000): got %d, want %d", got, SpeedMax)
	}
	if got := ClampSpeed(-5); got != SpeedMin {
		t.Errorf("ClampSpeed(-5): got %d, want %d", got, SpeedMin)
	}
}

func TestDriveCommands(t *testing.T) {
	tests := []struct {
		cmd         byte
		front, back Direction
	}{
		{CmdForward, Forward, Stopped},
		{CmdBackward, Reverse, Stopped},
		{CmdLeft, Stopped, SteerLeft},
		{CmdRight, Stopped, SteerRight},
		{CmdForwardLeft, Forward, SteerLeft},
		{CmdForwardRight, Forward, SteerRight},
		{CmdBackLeft, Reverse, SteerLeft},
		{CmdBackRight, Reverse, SteerRight},
	}

	for _, tt := range tests {
		c, r := setupController(t)
		c.HandleCommand([]byte{tt.cmd}, t0)

		s := c.State()
		if s.Front != tt.front || s.Back != tt.back {
			t.Errorf("%c: state got front=%s back=%s, want front=%s back=%s", tt.cmd, s.Front, s.Back, tt.front, tt.back)
		}
		if r.front != tt.front || r.back != tt.back {
			t.Errorf("%c: hardware got front=%s back=%s, want front=%s back=%s", tt.cmd, r.front, r.back, tt.front, tt.back)
		}
		if tt.front != Stopped && r.frontSpeed != SpeedDefault {
			t.Errorf("%c: expected front speed %d, got %d", tt.cmd, SpeedDefault, r.frontSpeed)
		}
		if tt.back != Stopped && r.backSpeed != SpeedDefault {
			t.Errorf("%c: expected back speed %d, got %d", tt.cmd, SpeedDefault, r.backSpeed)
		}
	}
}

func TestForwardKeepsSteering(t *testing.T) {
	c, _ := setupController(t)
	c.HandleCommand([]byte{CmdLeft}, t0)
	c.HandleCommand([]byte{CmdForward}, t0.Add(10*time.Millisecond))

	s := c.State()
	if s.Front != Forward || s.Back != SteerLeft {
		t.Errorf("expected forward + left, got front=%s back=%s", s.Front, s.Back)
	}
}

func TestReverseReplacesForward(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdForward}, t0)
	c.HandleCommand([]byte{CmdBackward}, t0.Add(10*time.Millisecond))

	if c.State().Front != Reverse || r.front != Reverse {
		t.Errorf("expected front pair reverse only, got state=%s hw=%s", c.State().Front, r.front)
	}
}

func TestStopAfterAnySequence(t *testing.T) {
	sequences := [][]byte{
		{CmdForward},
		{CmdBackRight},
		{CmdLeft, CmdForward, CmdRight},
		{CmdBlinkOn, CmdForwardLeft},
		{CmdStop},
		{},
	}
	for i, seq := range sequences {
		c, r := setupController(t)
		now := t0
		for _, b := range seq {
			c.HandleCommand([]byte{b}, now)
			now = now.Add(20 * time.Millisecond)
		}
		c.HandleCommand([]byte{CmdStop}, now)

		s := c.State()
		if s.Front != Stopped || s.Back != Stopped {
			t.Errorf("sequence %d: expected stopped, got front=%s back=%s", i, s.Front, s.Back)
		}
		if r.front != Stopped || r.back != Stopped {
			t.Errorf("sequence %d: expected hardware stopped, got front=%s back=%s", i, r.front, r.back)
		}
	}
}

func TestRepeatedCommandIsIdempotent(t *testing.T) {
	c, r := setupController(t)

	events := c.HandleCommand([]byte{CmdForward}, t0)
	if len(events) != 1 || events[0].Type != EventAction {
		t.Fatalf("expected 1 ACTION event, got %+v", events)
	}
	first := c.State()

	for i := 1; i <= 5; i++ {
		events = c.HandleCommand([]byte{CmdForward}, t0.Add(time.Duration(i)*100*time.Millisecond))
		if len(events) != 0 {
			t.Errorf("repeat %d: expected no events, got %d", i, len(events))
		}
	}

	s := c.State()
	if s.Front != first.Front || s.FrontSpeed != first.FrontSpeed {
		t.Errorf("expected state unchanged by repeats, got %+v", s)
	}
	if r.frontSpeed != SpeedDefault {
		t.Errorf("expected speed not to accumulate, got %d", r.frontSpeed)
	}
}

func TestSpeedCommands(t *testing.T) {
	c, _ := setupController(t)

	c.HandleCommand([]byte{CmdFrontSpeed, 230}, t0)
	c.HandleCommand([]byte{CmdBackSpeed, 10}, t0)

	s := c.State()
	if s.FrontSpeed != 230 {
		t.Errorf("expected front speed 230, got %d", s.FrontSpeed)
	}
	if s.BackSpeed != SpeedMin {
		t.Errorf("expected back speed clamped to %d, got %d", SpeedMin, s.BackSpeed)
	}

	c.HandleCommand([]byte{CmdBackSpeed, 255}, t0)
	if got := c.State().BackSpeed; got != SpeedMax {
		t.Errorf("expected back speed %d, got %d", SpeedMax, got)
	}
}

func TestSpeedCommandMissingParam(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdFrontSpeed, 220}, t0)
	before := c.State()
	writes := r.lampWrites

	events := c.HandleCommand([]byte{CmdFrontSpeed}, t0.Add(100*time.Millisecond))
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	events = c.HandleCommand([]byte{CmdBackSpeed}, t0.Add(100*time.Millisecond))
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}

	if c.State() != before {
		t.Errorf("expected state unchanged, got %+v want %+v", c.State(), before)
	}
	if c.State().FrontSpeed != 220 {
		t.Errorf("expected front speed 220, got %d", c.State().FrontSpeed)
	}
	if r.lampWrites != writes {
		t.Error("expected no hardware writes")
	}
	if c.CountsSnapshot().Commands != 1 {
		t.Errorf("expected 1 counted command, got %d", c.CountsSnapshot().Commands)
	}
}

func TestSpeedReappliedWhileMoving(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdForwardLeft}, t0)

	c.HandleCommand([]byte{CmdFrontSpeed, 250}, t0)
	if r.frontSpeed != 250 {
		t.Errorf("expected front pair re-driven at 250, got %d", r.frontSpeed)
	}
	if r.front != Forward {
		t.Errorf("expected front pair still forward, got %s", r.front)
	}

	c.HandleCommand([]byte{CmdBackSpeed, 190}, t0)
	if r.backSpeed != 190 || r.back != SteerLeft {
		t.Errorf("expected back pair left at 190, got %s at %d", r.back, r.backSpeed)
	}
}

func TestSpeedNotAppliedWhileStopped(t *testing.T) {
	c, r := setupController(t)
	stops := r.stops

	c.HandleCommand([]byte{CmdFrontSpeed, 240}, t0)
	if r.front != Stopped || r.frontSpeed != 0 {
		t.Errorf("expected motors untouched, got %s at %d", r.front, r.frontSpeed)
	}
	if r.stops != stops {
		t.Errorf("expected no extra stop writes")
	}

	c.HandleCommand([]byte{CmdForward}, t0)
	if r.frontSpeed != 240 {
		t.Errorf("expected next drive at stored speed 240, got %d", r.frontSpeed)
	}
}

func TestUnknownCommand(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdForward}, t0)
	before := c.State()
	writes := r.lampWrites

	now := t0.Add(50 * time.Millisecond)
	events := c.HandleCommand([]byte{'q'}, now)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventUnknownCommand {
		t.Errorf("expected UNKNOWN_COMMAND, got %s", events[0].Type)
	}
	if events[0].Code != 'q' {
		t.Errorf("expected code 'q', got %q", events[0].Code)
	}

	s := c.State()
	if !s.LastCommand.Equal(now) {
		t.Errorf("expected unknown command to refresh LastCommand, got %v", s.LastCommand)
	}
	s.LastCommand = before.LastCommand
	if s != before {
		t.Errorf("expected no state change, got %+v", s)
	}
	if r.front != Forward || r.lampWrites != writes {
		t.Error("expected no hardware writes for unknown command")
	}
	if c.CountsSnapshot().Unknown != 1 {
		t.Errorf("expected 1 unknown, got %d", c.CountsSnapshot().Unknown)
	}
}

func TestCaseSensitiveCommands(t *testing.T) {
	c, _ := setupController(t)

	events := c.HandleCommand([]byte{'f'}, t0)
	if len(events) != 1 || events[0].Type != EventUnknownCommand {
		t.Errorf("expected 'f' to be unknown, got %+v", events)
	}
	if c.State().Front != Stopped {
		t.Errorf("expected 'f' not to drive, got %s", c.State().Front)
	}
}

func TestEmptyUnitIgnored(t *testing.T) {
	c, _ := setupController(t)
	events := c.HandleCommand(nil, t0)
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	if !c.State().LastCommand.IsZero() {
		t.Error("expected empty unit not to refresh LastCommand")
	}
}

func TestLastCommandNeverDecreases(t *testing.T) {
	c, _ := setupController(t)
	later := t0.Add(time.Second)
	c.HandleCommand([]byte{CmdForward}, later)
	c.HandleCommand([]byte{CmdForward}, t0)

	if !c.State().LastCommand.Equal(later) {
		t.Errorf("expected LastCommand %v, got %v", later, c.State().LastCommand)
	}
}

func TestLampCommands(t *testing.T) {
	c, r := setupController(t)

	c.HandleCommand([]byte{CmdFrontLampOn}, t0)
	if !r.frontLamp || r.backLamp {
		t.Errorf("U: expected front on back off, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
	c.HandleCommand([]byte{CmdBackLampOn}, t0)
	if !r.frontLamp || !r.backLamp {
		t.Errorf("V: expected both on, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
	c.HandleCommand([]byte{CmdFrontLampOff}, t0)
	if r.frontLamp || !r.backLamp {
		t.Errorf("u: expected front off back on, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
	c.HandleCommand([]byte{CmdBackLampOff}, t0)
	if r.frontLamp || r.backLamp {
		t.Errorf("v: expected both off, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
}

func TestBlinkToggles(t *testing.T) {
	c, r := setupController(t)

	c.HandleCommand([]byte{CmdBlinkOn}, t0)
	if !c.State().BlinkEnabled {
		t.Fatal("expected blink enabled")
	}
	if r.frontLamp || r.backLamp {
		t.Error("expected lamps unchanged until the first blink tick")
	}

	c.Tick(t0)
	if !r.frontLamp || !r.backLamp {
		t.Errorf("tick 1: expected both lamps on, got front=%v back=%v", r.frontLamp, r.backLamp)
	}

	c.Tick(t0.Add(DefaultBlinkInterval))
	if r.frontLamp || r.backLamp {
		t.Errorf("tick 2: expected both lamps off, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
}

func TestBlinkFlipsExactlyOncePerInterval(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdBlinkOn}, t0)

	flips := 0
	last := r.frontLamp
	for ms := 0; ms <= 1200; ms += 10 {
		c.Tick(t0.Add(time.Duration(ms) * time.Millisecond))
		if r.frontLamp != r.backLamp {
			t.Fatalf("at %dms: lamps diverged front=%v back=%v", ms, r.frontLamp, r.backLamp)
		}
		if r.frontLamp != last {
			flips++
			last = r.frontLamp
		}
	}
	// flips at 0, 300, 600, 900, 1200
	if flips != 5 {
		t.Errorf("expected 5 flips, got %d", flips)
	}
}

func TestBlinkStartsFromLampState(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdFrontLampOn}, t0)
	c.HandleCommand([]byte{CmdBlinkOn}, t0)

	c.Tick(t0)
	if r.frontLamp || r.backLamp {
		t.Errorf("expected first flip to turn lamps off, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
}

func TestBlinkDisabledTickDoesNothing(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdFrontLampOn}, t0)
	writes := r.lampWrites

	for i := 0; i < 10; i++ {
		c.Tick(t0.Add(time.Duration(i) * DefaultBlinkInterval))
	}
	if r.lampWrites != writes {
		t.Errorf("expected no lamp writes with blink disabled, got %d extra", r.lampWrites-writes)
	}
	if !r.frontLamp {
		t.Error("expected front lamp to stay on")
	}
}

func TestLampCommandDisablesBlinkImmediately(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdBlinkOn}, t0)
	c.Tick(t0)
	c.Tick(t0.Add(DefaultBlinkInterval)) // lamps now off

	c.HandleCommand([]byte{CmdFrontLampOn}, t0.Add(DefaultBlinkInterval+10*time.Millisecond))
	if c.State().BlinkEnabled {
		t.Error("expected blink disabled by U")
	}
	if !r.frontLamp {
		t.Error("expected front lamp on immediately")
	}
	if r.backLamp {
		t.Error("expected back lamp to follow its desired state (off)")
	}

	c.Tick(t0.Add(2 * DefaultBlinkInterval))
	if !r.frontLamp || r.backLamp {
		t.Errorf("expected blink tick not to touch lamps, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
}

func TestBlinkOffForcesLampsOff(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdFrontLampOn}, t0)
	c.HandleCommand([]byte{CmdBackLampOn}, t0)
	c.HandleCommand([]byte{CmdBlinkOn}, t0)
	c.Tick(t0)

	c.HandleCommand([]byte{CmdBlinkOff}, t0.Add(10*time.Millisecond))
	s := c.State()
	if s.BlinkEnabled || s.FrontLampOn || s.BackLampOn {
		t.Errorf("expected blink off and lamps off, got %+v", s)
	}
	if r.frontLamp || r.backLamp {
		t.Errorf("expected both lamps off, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
}

func TestBlinkOnTwiceKeepsPhase(t *testing.T) {
	c, _ := setupController(t)
	c.HandleCommand([]byte{CmdBlinkOn}, t0)
	c.Tick(t0)
	phase := c.State().BlinkPhase

	c.HandleCommand([]byte{CmdBlinkOn}, t0.Add(10*time.Millisecond))
	if c.State().BlinkPhase != phase {
		t.Error("expected repeated W not to reset the blink phase")
	}
}

func TestWatchdogStopsAfterTimeout(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdForwardRight}, t0)

	events := c.Tick(t0.Add(DefaultCommandTimeout))
	if len(events) != 0 {
		t.Errorf("expected no stop at exactly the timeout, got %d events", len(events))
	}
	if r.front != Forward {
		t.Error("expected still moving at exactly the timeout")
	}

	events = c.Tick(t0.Add(DefaultCommandTimeout + time.Millisecond))
	if len(events) != 1 || events[0].Type != EventWatchdogStop {
		t.Fatalf("expected WATCHDOG_STOP, got %+v", events)
	}
	if r.front != Stopped || r.back != Stopped {
		t.Errorf("expected stopped, got front=%s back=%s", r.front, r.back)
	}
	if c.CountsSnapshot().WatchdogStops != 1 {
		t.Errorf("expected 1 watchdog stop, got %d", c.CountsSnapshot().WatchdogStops)
	}
}

func TestWatchdogIdempotentWhenStopped(t *testing.T) {
	c, r := setupController(t)
	stops := r.stops

	for i := 0; i < 5; i++ {
		events := c.Tick(t0.Add(time.Duration(i) * time.Second))
		if len(events) != 0 {
			t.Errorf("tick %d: expected no events while already stopped, got %d", i, len(events))
		}
	}
	if r.stops != stops+5 {
		t.Errorf("expected stop effect on every expired tick, got %d", r.stops-stops)
	}
	if c.CountsSnapshot().WatchdogStops != 0 {
		t.Errorf("expected no counted watchdog stops, got %d", c.CountsSnapshot().WatchdogStops)
	}
}

func TestWatchdogAtStartup(t *testing.T) {
	c, r := setupController(t)
	stops := r.stops

	c.Tick(t0)
	if r.stops != stops+1 {
		t.Error("expected first tick to apply the stop effect")
	}
	if c.State().Moving() {
		t.Error("expected stopped at startup")
	}
}

func TestWatchdogKeptAliveByCommands(t *testing.T) {
	c, r := setupController(t)
	now := t0
	for i := 0; i < 20; i++ {
		c.HandleCommand([]byte{CmdForward}, now)
		now = now.Add(100 * time.Millisecond)
		if events := c.Tick(now); len(events) != 0 {
			t.Fatalf("iteration %d: unexpected watchdog stop", i)
		}
	}
	if r.front != Forward {
		t.Errorf("expected still forward, got %s", r.front)
	}
}

func TestForwardSpeedThenSilence(t *testing.T) {
	c, r := setupController(t)

	c.HandleCommand([]byte{CmdForward}, t0)
	c.HandleCommand([]byte{CmdFrontSpeed, 200}, t0.Add(10*time.Millisecond))
	if r.front != Forward || r.frontSpeed != 200 {
		t.Fatalf("expected forward at 200, got %s at %d", r.front, r.frontSpeed)
	}

	c.Tick(t0.Add(200 * time.Millisecond))
	if r.front != Forward {
		t.Error("expected still forward inside the timeout window")
	}

	c.Tick(t0.Add(311 * time.Millisecond))
	if r.front != Stopped {
		t.Errorf("expected stopped after timeout, got %s", r.front)
	}

	// Lamp commands keep the link alive but do not restart motion.
	c.HandleCommand([]byte{CmdFrontLampOn}, t0.Add(400*time.Millisecond))
	c.Tick(t0.Add(450 * time.Millisecond))
	if r.front != Stopped {
		t.Errorf("expected still stopped until the next drive command, got %s", r.front)
	}

	c.HandleCommand([]byte{CmdForward}, t0.Add(500*time.Millisecond))
	if r.front != Forward || r.frontSpeed != 200 {
		t.Errorf("expected forward at 200 again, got %s at %d", r.front, r.frontSpeed)
	}
}

func TestConnectDoesNotReset(t *testing.T) {
	c, _ := setupController(t)
	c.HandleCommand([]byte{CmdFrontSpeed, 240}, t0)

	events := c.Connect("aa:bb", t0.Add(time.Second))
	if len(events) != 1 || events[0].Type != EventConnected {
		t.Fatalf("expected CONNECTED, got %+v", events)
	}
	if c.Link() != LinkUp {
		t.Errorf("expected link up, got %s", c.Link())
	}
	if c.State().FrontSpeed != 240 {
		t.Errorf("expected speed kept on connect, got %d", c.State().FrontSpeed)
	}
	sess := c.Session()
	if sess.ID != 1 || sess.Peer != "aa:bb" || !sess.Start.Equal(t0.Add(time.Second)) {
		t.Errorf("unexpected session %+v", sess)
	}

	if events := c.Connect("aa:bb", t0.Add(2*time.Second)); len(events) != 0 {
		t.Errorf("expected repeated connect to be ignored, got %d events", len(events))
	}
}

func TestDisconnectResetsToDefaults(t *testing.T) {
	c, r := setupController(t)
	c.Connect("peer", t0)
	now := t0.Add(time.Second)
	c.HandleCommand([]byte{CmdForwardLeft}, now)
	c.HandleCommand([]byte{CmdFrontSpeed, 250}, now)
	c.HandleCommand([]byte{CmdBackSpeed, 250}, now)
	c.HandleCommand([]byte{CmdFrontLampOn}, now)
	c.HandleCommand([]byte{CmdBlinkOn}, now)
	c.Tick(now)

	events := c.Disconnect(now.Add(500 * time.Millisecond))
	if len(events) != 1 || events[0].Type != EventDisconnected {
		t.Fatalf("expected DISCONNECTED, got %+v", events)
	}

	if c.State() != DefaultState() {
		t.Errorf("expected default state after disconnect, got %+v", c.State())
	}
	if !c.State().LastCommand.IsZero() {
		t.Error("expected LastCommand reset to zero")
	}
	if r.front != Stopped || r.back != Stopped {
		t.Errorf("expected motors stopped, got front=%s back=%s", r.front, r.back)
	}
	if r.frontLamp || r.backLamp {
		t.Errorf("expected lamps off, got front=%v back=%v", r.frontLamp, r.backLamp)
	}
	if c.Link() != LinkDown {
		t.Errorf("expected link down, got %s", c.Link())
	}

	sess := events[0].Session
	if sess.Duration != 1500*time.Millisecond {
		t.Errorf("expected session duration 1.5s, got %v", sess.Duration)
	}
	if sess.Commands != 5 {
		t.Errorf("expected 5 session commands, got %d", sess.Commands)
	}
}

func TestDisconnectWhileDownStillResets(t *testing.T) {
	c, r := setupController(t)
	c.HandleCommand([]byte{CmdForward}, t0)

	events := c.Disconnect(t0)
	if len(events) != 0 {
		t.Errorf("expected no session event, got %d", len(events))
	}
	if r.front != Stopped {
		t.Error("expected reset even without a session")
	}
}

func TestSessionsCounted(t *testing.T) {
	c, _ := setupController(t)
	for i := 0; i < 3; i++ {
		c.Connect("p", t0)
		c.Disconnect(t0)
	}
	if c.CountsSnapshot().Sessions != 3 {
		t.Errorf("expected 3 sessions, got %d", c.CountsSnapshot().Sessions)
	}
	if c.Session().ID != 3 {
		t.Errorf("expected last session ID 3, got %d", c.Session().ID)
	}
}

func TestDispatch(t *testing.T) {
	c, r := setupController(t)

	c.Dispatch(LinkEvent{Kind: LinkConnected, Peer: "x"}, t0)
	if c.Link() != LinkUp {
		t.Fatal("expected link up")
	}
	c.Dispatch(LinkEvent{Kind: LinkCommand, Data: []byte{CmdBackward}}, t0)
	if r.front != Reverse {
		t.Errorf("expected reverse, got %s", r.front)
	}
	c.Dispatch(LinkEvent{Kind: LinkDisconnected}, t0)
	if c.Link() != LinkDown || r.front != Stopped {
		t.Error("expected disconnect to reset")
	}
	if events := c.Dispatch(LinkEvent{Kind: LinkEventKind(99)}, t0); events != nil {
		t.Errorf("expected nil for unknown kind, got %+v", events)
	}
}

func TestActionEventCarriesState(t *testing.T) {
	c, _ := setupController(t)
	events := c.HandleCommand([]byte{CmdFrontSpeed, 100}, t0)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Command != "front-speed" {
		t.Errorf("expected command front-speed, got %q", e.Command)
	}
	if e.Value != 100 {
		t.Errorf("expected raw value 100, got %d", e.Value)
	}
	if e.State.FrontSpeed != SpeedMin {
		t.Errorf("expected state speed %d, got %d", SpeedMin, e.State.FrontSpeed)
	}
}

func TestDriverErrorsDoNotAbort(t *testing.T) {
	c, r := setupController(t)
	c.LastError() // discard startup state
	r.err = errors.New("line busy")

	c.HandleCommand([]byte{CmdForward}, t0)
	if c.State().Front != Forward {
		t.Error("expected state updated despite driver error")
	}
	err := c.LastError()
	if err == nil {
		t.Fatal("expected driver error to be reported")
	}
	if !errors.Is(err, r.err) {
		t.Errorf("expected wrapped driver error, got %v", err)
	}
	if c.LastError() != nil {
		t.Error("expected LastError to clear")
	}
}

func TestCheckHeartbeat(t *testing.T) {
	c, _ := setupController(t)
	c.HandleCommand([]byte{CmdForward}, t0)

	if hb := c.CheckHeartbeat(t0.Add(time.Minute), 0); hb != nil {
		t.Error("expected nil when disabled")
	}
	if hb := c.CheckHeartbeat(t0.Add(time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected nil before interval")
	}
	hb := c.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("expected uptime 15m, got %v", hb.Uptime)
	}
	if hb.Counts.Commands != 1 {
		t.Errorf("expected 1 command, got %d", hb.Counts.Commands)
	}
	if hb := c.CheckHeartbeat(t0.Add(16*time.Minute), 15*time.Minute); hb != nil {
		t.Error("expected nil right after a heartbeat")
	}
}

func TestSplitUnits(t *testing.T) {
	tests := []struct {
		in   []byte
		want []string
	}{
		{[]byte("F"), []string{"F"}},
		{[]byte("FXU"), []string{"F", "X", "U"}},
		{[]byte{'S', 200, 'F'}, []string{"S\xc8", "F"}},
		{[]byte{'T', 'F'}, []string{"TF"}},
		{[]byte{'F', 'S'}, []string{"F", "S"}},
		{nil, nil},
	}
	for _, tt := range tests {
		got := SplitUnits(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("SplitUnits(%q): got %d units, want %d", tt.in, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if string(got[i]) != tt.want[i] {
				t.Errorf("SplitUnits(%q)[%d]: got %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
