package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/sweeney/ble-car/internal/logic"
)

// BLEConfig names the advertised peripheral and its command characteristic.
type BLEConfig struct {
	DeviceName  string
	ServiceUUID string
	CharUUID    string
}

// BLE is a GATT peripheral exposing one writable command characteristic.
// Each write is one command unit.
type BLE struct {
	cfg     BLEConfig
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	char    bluetooth.Characteristic
	conns   connSource

	mu     sync.Mutex
	ctx    context.Context
	events chan<- logic.LinkEvent
}

// NewBLE creates a BLE transport on the default adapter.
func NewBLE(cfg BLEConfig) *BLE {
	return &BLE{cfg: cfg, adapter: bluetooth.DefaultAdapter, conns: watchBlueZ}
}

// Start enables the adapter, registers the command service and starts
// advertising.
func (b *BLE) Start(ctx context.Context, events chan<- logic.LinkEvent) error {
	b.mu.Lock()
	b.ctx = ctx
	b.events = events
	b.mu.Unlock()

	svcUUID, err := bluetooth.ParseUUID(b.cfg.ServiceUUID)
	if err != nil {
		return fmt.Errorf("parse service uuid: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(b.cfg.CharUUID)
	if err != nil {
		return fmt.Errorf("parse characteristic uuid: %w", err)
	}

	// Subscribe before advertising so the first connect is not missed.
	if err := b.watchConnections(ctx); err != nil {
		return err
	}
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	err = b.adapter.AddService(&bluetooth.Service{
		UUID: svcUUID,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &b.char,
			UUID:   charUUID,
			Value:  []byte{logic.CmdStop},
			Flags: bluetooth.CharacteristicReadPermission |
				bluetooth.CharacteristicWritePermission |
				bluetooth.CharacteristicWriteWithoutResponsePermission |
				bluetooth.CharacteristicNotifyPermission,
			WriteEvent: func(_ bluetooth.Connection, _ int, value []byte) {
				b.onWrite(value)
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("add service: %w", err)
	}

	b.adv = b.adapter.DefaultAdvertisement()
	err = b.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    b.cfg.DeviceName,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}

	return b.Advertise()
}

// Advertise (re)starts advertising the device name and service.
func (b *BLE) Advertise() error {
	if b.adv == nil {
		return fmt.Errorf("advertise: not started")
	}
	// BlueZ keeps a registered advertisement; restart it so it is live again.
	b.adv.Stop()
	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("start advertising: %w", err)
	}
	log.Printf("ble: advertising %q", b.cfg.DeviceName)
	return nil
}

// Close stops advertising.
func (b *BLE) Close() error {
	if b.adv == nil {
		return nil
	}
	if err := b.adv.Stop(); err != nil {
		return fmt.Errorf("stop advertising: %w", err)
	}
	return nil
}

// watchConnections forwards peer connection changes until ctx is done.
func (b *BLE) watchConnections(ctx context.Context) error {
	changes, err := b.conns(ctx)
	if err != nil {
		return fmt.Errorf("watch connections: %w", err)
	}
	go func() {
		for {
			select {
			case c, ok := <-changes:
				if !ok {
					return
				}
				b.onConnect(c.peer, c.connected)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (b *BLE) onConnect(peer string, connected bool) {
	ev := logic.LinkEvent{Kind: logic.LinkDisconnected, Peer: peer}
	if connected {
		ev.Kind = logic.LinkConnected
	}
	log.Printf("ble: peer %s %s", peer, ev.Kind)
	b.push(ev)
}

func (b *BLE) onWrite(value []byte) {
	if len(value) == 0 {
		return
	}
	// The stack may reuse value after the callback returns.
	data := make([]byte, len(value))
	copy(data, value)
	b.push(logic.LinkEvent{Kind: logic.LinkCommand, Data: data})
}

func (b *BLE) push(ev logic.LinkEvent) {
	b.mu.Lock()
	ctx, events := b.ctx, b.events
	b.mu.Unlock()
	if events == nil {
		return
	}
	send(ctx, events, ev)
}
