package transport

import (
	"context"
	"sync"

	"github.com/sweeney/ble-car/internal/logic"
)

// Fake is a Transport driven by tests.
type Fake struct {
	mu         sync.Mutex
	ctx        context.Context
	events     chan<- logic.LinkEvent
	started    bool
	closed     bool
	advertised int

	// StartError, if set, is returned by Start.
	StartError error

	// AdvertiseError, if set, is returned by Advertise.
	AdvertiseError error
}

// NewFake creates a Fake transport.
func NewFake() *Fake {
	return &Fake{}
}

// Start records the event channel.
func (f *Fake) Start(ctx context.Context, events chan<- logic.LinkEvent) error {
	if f.StartError != nil {
		return f.StartError
	}
	f.mu.Lock()
	f.ctx = ctx
	f.events = events
	f.started = true
	f.mu.Unlock()
	return nil
}

// Advertise counts the call.
func (f *Fake) Advertise() error {
	f.mu.Lock()
	f.advertised++
	f.mu.Unlock()
	return f.AdvertiseError
}

// Close marks the transport as closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Connect simulates a controller connecting.
func (f *Fake) Connect(peer string) {
	f.push(logic.LinkEvent{Kind: logic.LinkConnected, Peer: peer})
}

// Write simulates one command write.
func (f *Fake) Write(data []byte) {
	f.push(logic.LinkEvent{Kind: logic.LinkCommand, Data: data})
}

// Disconnect simulates the controller going away.
func (f *Fake) Disconnect() {
	f.push(logic.LinkEvent{Kind: logic.LinkDisconnected})
}

// Started reports whether Start was called.
func (f *Fake) Started() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Advertised returns the number of Advertise calls.
func (f *Fake) Advertised() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advertised
}

func (f *Fake) push(ev logic.LinkEvent) {
	f.mu.Lock()
	ctx, events := f.ctx, f.events
	f.mu.Unlock()
	if events == nil {
		return
	}
	send(ctx, events, ev)
}
