// Package status provides a thread-safe status tracker for the ble-car daemon.
// It is written by the run loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/ble-car/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	DeviceName       string
	ServiceUUID      string
	CharUUID         string
	Transport        string
	TickMs           int64
	CommandTimeoutMs int64
	BlinkIntervalMs  int64
	HeartbeatMs      int64
	Broker           string
	HTTPAddr         string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	State         logic.ActuationState
	Link          logic.LinkState
	Session       logic.Session
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     logic.DefaultState(),
			Link:      logic.LinkDown,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update copies the controller's view into the tracker.
// Called from runLoop after every event and tick.
func (t *Tracker) Update(state logic.ActuationState, link logic.LinkState, session logic.Session, counts logic.Counts) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Link = link
	t.snap.Session = session
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
