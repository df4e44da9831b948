// Command ble-car drives a two-motor RC car from single-byte commands sent by a
// phone over BLE (or a serial/WebSocket link) and stops it when commands stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/ble-car/internal/config"
	"github.com/sweeney/ble-car/internal/gpio"
	"github.com/sweeney/ble-car/internal/logic"
	"github.com/sweeney/ble-car/internal/mqtt"
	"github.com/sweeney/ble-car/internal/status"
	"github.com/sweeney/ble-car/internal/transport"
	"github.com/sweeney/ble-car/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/ble-car/config.yaml", "YAML config file (missing file uses defaults)")
	transportType := flag.String("transport", "", "Command link: ble, serial or websocket (overrides config)")
	broker := flag.String("broker", "", `MQTT broker address (overrides config, "off" disables)`)
	httpAddr := flag.String("http", "", `HTTP status address (overrides config, "off" disables)`)
	tick := flag.Duration("tick", 0, "Control loop interval (overrides config)")
	printConfig := flag.Bool("print-config", false, "Print effective config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	applyFlags(&cfg, *transportType, *broker, *httpAddr, *tick)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if *printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		os.Stdout.Write(data)
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overrides config values with the flags that were given.
func applyFlags(cfg *config.Config, transportType, broker, httpAddr string, tick time.Duration) {
	if transportType != "" {
		cfg.Transport.Type = transportType
	}
	switch broker {
	case "":
	case "off":
		cfg.MQTT.Broker = ""
	default:
		cfg.MQTT.Broker = broker
	}
	switch httpAddr {
	case "":
	case "off":
		cfg.HTTP.Addr = ""
	default:
		cfg.HTTP.Addr = httpAddr
	}
	if tick > 0 {
		cfg.Timing.Tick = tick
	}
}

// newTransport builds the configured command link. The WebSocket transport is
// also returned as a handler to mount on the status server.
func newTransport(cfg config.Config) (transport.Transport, http.Handler) {
	switch cfg.Transport.Type {
	case config.TransportSerial:
		return transport.NewSerial(transport.SerialConfig{
			PortPath: cfg.Transport.PortPath,
			BaudRate: cfg.Transport.BaudRate,
		}), nil
	case config.TransportWebSocket:
		ws := transport.NewWebSocket()
		return ws, ws
	}
	return transport.NewBLE(transport.BLEConfig{
		DeviceName:  cfg.Vehicle.Name,
		ServiceUUID: cfg.Vehicle.ServiceUUID,
		CharUUID:    cfg.Vehicle.CharUUID,
	}), nil
}

func run(cfg config.Config) error {
	startTime := time.Now()

	// Initialize outputs: everything stopped and dark until a controller connects
	driver, err := gpio.NewRealDriver(cfg.Pins)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer driver.Close()

	ctrl := logic.NewController(logic.Config{
		CommandTimeout: cfg.Timing.CommandTimeout,
		BlinkInterval:  cfg.Timing.BlinkInterval,
	}, driver, driver, startTime)
	if err := ctrl.LastError(); err != nil {
		return fmt.Errorf("reset outputs: %w", err)
	}

	// Initialize MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = p
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(startTime, status.Config{
		DeviceName:       cfg.Vehicle.Name,
		ServiceUUID:      cfg.Vehicle.ServiceUUID,
		CharUUID:         cfg.Vehicle.CharUUID,
		Transport:        cfg.Transport.Type,
		TickMs:           cfg.Timing.Tick.Milliseconds(),
		CommandTimeoutMs: cfg.Timing.CommandTimeout.Milliseconds(),
		BlinkIntervalMs:  cfg.Timing.BlinkInterval.Milliseconds(),
		HeartbeatMs:      cfg.Timing.Heartbeat.Milliseconds(),
		Broker:           cfg.MQTT.Broker,
		HTTPAddr:         cfg.HTTP.Addr,
	})

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	tr, wsHandler := newTransport(cfg)

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		if wsHandler != nil {
			srv.MountControl("/ws", wsHandler)
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	link := make(chan logic.LinkEvent, 64)
	if err := tr.Start(ctx, link); err != nil {
		cancel()
		return fmt.Errorf("start %s transport: %w", cfg.Transport.Type, err)
	}
	defer func() {
		cancel()
		if err := tr.Close(); err != nil {
			log.Printf("transport close error: %v", err)
		}
	}()

	log.Printf("started: name=%s transport=%s tick=%v timeout=%v blink=%v broker=%s heartbeat=%v",
		cfg.Vehicle.Name, cfg.Transport.Type, cfg.Timing.Tick, cfg.Timing.CommandTimeout,
		cfg.Timing.BlinkInterval, cfg.MQTT.Broker, cfg.Timing.Heartbeat)

	ticker := time.NewTicker(cfg.Timing.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, tr, publisher, publisher, tracker, cfg.Timing.Heartbeat, time.Now, ticker.C, link, sigCh)
}

// runLoop is the only caller of the controller. It reads the clock exactly
// once per iteration.
func runLoop(ctrl *logic.Controller, tr transport.Transport, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, link <-chan logic.LinkEvent, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			t := now()
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			// Never leave the motors running.
			ctrl.Reset()
			logDriverError(ctrl)

			event := mqtt.SystemEvent{
				Timestamp: t,
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				updateTracker(tracker, ctrl, mqttStatus)
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case ev := <-link:
			t := now()
			publishEvents(publisher, ctrl.Dispatch(ev, t))
			logDriverError(ctrl)

			if ev.Kind == logic.LinkDisconnected {
				if err := tr.Advertise(); err != nil {
					log.Printf("advertise error: %v", err)
				}
			}
			if tracker != nil {
				updateTracker(tracker, ctrl, mqttStatus)
			}

		case <-tick:
			t := now()
			publishEvents(publisher, ctrl.Tick(t))
			logDriverError(ctrl)

			// Check for heartbeat
			if hbData := ctrl.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v commands=%d unknown=%d watchdog_stops=%d sessions=%d",
					hbData.Uptime, hbData.Counts.Commands, hbData.Counts.Unknown,
					hbData.Counts.WatchdogStops, hbData.Counts.Sessions)

				hbEvent := mqtt.SystemEvent{
					Timestamp: hbData.Timestamp,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					updateTracker(tracker, ctrl, mqttStatus)
					snap := tracker.Snapshot()
					hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			// Update status tracker for HTTP consumers
			if tracker != nil {
				updateTracker(tracker, ctrl, mqttStatus)
			}
		}
	}
}

func publishEvents(publisher mqtt.Publisher, events []logic.Event) {
	for _, event := range events {
		logEvent(event)
		if err := publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
	}
}

func logEvent(e logic.Event) {
	switch e.Type {
	case logic.EventAction:
		if e.Value >= 0 {
			log.Printf("command: %c %s %d", e.Code, e.Command, e.Value)
		} else {
			log.Printf("command: %c %s", e.Code, e.Command)
		}
	case logic.EventUnknownCommand:
		log.Printf("command: unknown %q (0x%02x)", e.Code, e.Code)
	case logic.EventConnected:
		log.Printf("connected: session=%d peer=%s", e.Session.ID, e.Session.Peer)
	case logic.EventDisconnected:
		log.Printf("disconnected: session=%d duration=%v commands=%d",
			e.Session.ID, e.Session.Duration.Truncate(time.Millisecond), e.Session.Commands)
	case logic.EventWatchdogStop:
		log.Printf("watchdog: no command for %v, motors stopped", e.Timestamp.Sub(e.State.LastCommand))
	default:
		log.Printf("event: %s", e.Type)
	}
}

// logDriverError reports output write failures. They never stop the loop.
func logDriverError(ctrl *logic.Controller) {
	if err := ctrl.LastError(); err != nil {
		log.Printf("gpio write error: %v", err)
	}
}

func updateTracker(tracker *status.Tracker, ctrl *logic.Controller, mqttStatus mqtt.ConnectionStatus) {
	tracker.Update(ctrl.State(), ctrl.Link(), ctrl.Session(), ctrl.CountsSnapshot())
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}
