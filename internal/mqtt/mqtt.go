// Package mqtt provides MQTT telemetry publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/ble-car/internal/logic"
)

// DefaultTopicPrefix is the topic root for vehicle telemetry.
const DefaultTopicPrefix = "vehicle/ble-car"

// EventsTopic is the MQTT topic for vehicle events under prefix.
func EventsTopic(prefix string) string {
	return prefix + "/events"
}

// SystemTopic is the MQTT topic for system lifecycle events under prefix.
func SystemTopic(prefix string) string {
	return prefix + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a vehicle event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Vehicle VehiclePayload `json:"vehicle"`
}

// VehiclePayload contains the vehicle event details.
type VehiclePayload struct {
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Command   string         `json:"command,omitempty"`
	Code      string         `json:"code,omitempty"`
	Value     *int           `json:"value,omitempty"`
	State     StatePayload   `json:"state"`
	Session   SessionPayload `json:"session"`
}

// StatePayload is the actuation state after the event.
type StatePayload struct {
	Front      string `json:"front"`
	Back       string `json:"back"`
	FrontSpeed int    `json:"front_speed"`
	BackSpeed  int    `json:"back_speed"`
	FrontLamp  bool   `json:"front_lamp"`
	BackLamp   bool   `json:"back_lamp"`
	Blink      bool   `json:"blink"`
}

// SessionPayload describes the connected session the event belongs to.
type SessionPayload struct {
	ID              int    `json:"id"`
	Peer            string `json:"peer,omitempty"`
	Start           string `json:"start,omitempty"`
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
	Commands        int    `json:"commands"`
}

// FormatPayload creates the JSON payload for a vehicle event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := VehiclePayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     string(event.Type),
		Command:   event.Command,
		State: StatePayload{
			Front:      string(event.State.Front),
			Back:       string(event.State.Back),
			FrontSpeed: event.State.FrontSpeed,
			BackSpeed:  event.State.BackSpeed,
			FrontLamp:  event.State.FrontLampOutput(),
			BackLamp:   event.State.BackLampOutput(),
			Blink:      event.State.BlinkEnabled,
		},
		Session: SessionPayload{
			ID:       event.Session.ID,
			Peer:     event.Session.Peer,
			Commands: event.Session.Commands,
		},
	}
	if event.Type == logic.EventAction || event.Type == logic.EventUnknownCommand {
		p.Code = string(rune(event.Code))
	}
	if event.Value >= 0 {
		v := event.Value
		p.Value = &v
	}
	if !event.Session.Start.IsZero() {
		p.Session.Start = event.Session.Start.UTC().Format(time.RFC3339)
	}
	if event.Type == logic.EventDisconnected {
		secs := int64(event.Session.Duration.Truncate(time.Second).Seconds())
		p.Session.DurationSeconds = &secs
	}
	return json.Marshal(Payload{Vehicle: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(logic.Event) error { return nil }

// PublishSystem discards the event.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

// IsConnected always reports false.
func (NopPublisher) IsConnected() bool { return false }
