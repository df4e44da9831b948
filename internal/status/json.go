package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ble-car/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	Link          string      `json:"link"`
	Session       SessionJSON `json:"session"`
	Vehicle       VehicleJSON `json:"vehicle"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"counts"`
	Config        ConfigJSON  `json:"config"`
}

// SessionJSON describes the current or last session.
type SessionJSON struct {
	ID       int    `json:"id"`
	Peer     string `json:"peer,omitempty"`
	Start    string `json:"start,omitempty"`
	Commands int    `json:"commands"`
}

// VehicleJSON is the actuation state as driven on the outputs.
type VehicleJSON struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	FrontSpeed int    `json:"front_speed"`
	BackSpeed  int    `json:"back_speed"`
	FrontLamp  bool   `json:"front_lamp"`
	BackLamp   bool   `json:"back_lamp"`
	Blink      bool   `json:"blink"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Commands      int `json:"commands"`
	Unknown       int `json:"unknown"`
	WatchdogStops int `json:"watchdog_stops"`
	Sessions      int `json:"sessions"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceName       string `json:"device_name"`
	ServiceUUID      string `json:"service_uuid,omitempty"`
	CharUUID         string `json:"char_uuid,omitempty"`
	Transport        string `json:"transport"`
	TickMs           int64  `json:"tick_ms"`
	CommandTimeoutMs int64  `json:"command_timeout_ms"`
	BlinkIntervalMs  int64  `json:"blink_interval_ms"`
	HeartbeatMs      int64  `json:"heartbeat_ms"`
	Broker           string `json:"broker"`
	HTTPAddr         string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	link := string(snap.Link)
	if link == "" {
		link = string(logic.LinkDown)
	}

	inner := StatusInner{
		Link: link,
		Session: SessionJSON{
			ID:       snap.Session.ID,
			Peer:     snap.Session.Peer,
			Commands: snap.Session.Commands,
		},
		Vehicle: VehicleJSON{
			Front:      string(snap.State.Front),
			Back:       string(snap.State.Back),
			FrontSpeed: snap.State.FrontSpeed,
			BackSpeed:  snap.State.BackSpeed,
			FrontLamp:  snap.State.FrontLampOutput(),
			BackLamp:   snap.State.BackLampOutput(),
			Blink:      snap.State.BlinkEnabled,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Commands:      snap.Counts.Commands,
			Unknown:       snap.Counts.Unknown,
			WatchdogStops: snap.Counts.WatchdogStops,
			Sessions:      snap.Counts.Sessions,
		},
		Config: ConfigJSON{
			DeviceName:       snap.Config.DeviceName,
			ServiceUUID:      snap.Config.ServiceUUID,
			CharUUID:         snap.Config.CharUUID,
			Transport:        snap.Config.Transport,
			TickMs:           snap.Config.TickMs,
			CommandTimeoutMs: snap.Config.CommandTimeoutMs,
			BlinkIntervalMs:  snap.Config.BlinkIntervalMs,
			HeartbeatMs:      snap.Config.HeartbeatMs,
			Broker:           snap.Config.Broker,
			HTTPAddr:         snap.Config.HTTPAddr,
		},
	}
	if !snap.Session.Start.IsZero() {
		inner.Session.Start = snap.Session.Start.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
