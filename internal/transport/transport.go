// Package transport delivers controller writes and connection changes to the
// run loop as logic.LinkEvent values.
//
// Every transport pushes into one channel that only the run loop reads, so the
// controller never sees concurrent calls. Implementations exist for a BLE GATT
// peripheral, a serial (Bluetooth Classic SPP) link and a WebSocket endpoint.
package transport

import (
	"context"

	"github.com/sweeney/ble-car/internal/logic"
)

// Transport is a command link to at most one controller at a time.
type Transport interface {
	// Start begins accepting a controller. Events are sent until ctx is done.
	Start(ctx context.Context, events chan<- logic.LinkEvent) error

	// Advertise makes the vehicle discoverable again after a disconnect.
	Advertise() error

	// Close releases the link.
	Close() error
}

// send delivers ev unless ctx is done first. It reports whether ev was sent.
func send(ctx context.Context, events chan<- logic.LinkEvent, ev logic.LinkEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// streamSplitter cuts a byte stream into command units across reads. A speed
// command whose parameter has not arrived yet is held for the next feed.
type streamSplitter struct {
	pending []byte
}

func (s *streamSplitter) feed(b []byte) [][]byte {
	if len(b) == 0 {
		return nil
	}
	stream := append(s.pending, b...)
	s.pending = nil

	units := logic.SplitUnits(stream)
	if n := len(units); n > 0 {
		last := units[n-1]
		if len(last) == 1 && logic.NeedsParam(last[0]) {
			s.pending = []byte{last[0]}
			units = units[:n-1]
		}
	}
	return units
}
