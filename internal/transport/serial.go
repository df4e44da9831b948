package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/sweeney/ble-car/internal/logic"
)

// port is the part of serial.Port the transport uses.
type port interface {
	io.ReadCloser
	SetReadTimeout(t time.Duration) error
}

// SerialConfig configures a serial command link, typically an RFCOMM device
// bound to a Bluetooth Classic SPP channel.
type SerialConfig struct {
	PortPath string
	BaudRate int
}

// Serial reads a command byte stream from a serial port. Opening the port is a
// connect, a read error is a disconnect, and the port is reopened with
// exponential backoff.
type Serial struct {
	cfg  SerialConfig
	open func(path string, baud int) (port, error)

	minDelay, maxDelay time.Duration

	mu     sync.Mutex
	cur    port
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSerial creates a serial transport.
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	return &Serial{
		cfg:      cfg,
		open:     openSerial,
		minDelay: 1 * time.Second,
		maxDelay: 60 * time.Second,
	}
}

func openSerial(path string, baud int) (port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	p.SetReadTimeout(200 * time.Millisecond)
	return p, nil
}

// Start launches the connect/read loop in the background.
func (s *Serial) Start(ctx context.Context, events chan<- logic.LinkEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		s.run(ctx, events)
	}()
	return nil
}

// Advertise is a no-op: the port is reopened automatically after a disconnect.
func (s *Serial) Advertise() error {
	return nil
}

// Close stops the loop and closes the open port.
func (s *Serial) Close() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	var err error
	if cur != nil {
		err = cur.Close()
	}
	<-done
	return err
}

func (s *Serial) run(ctx context.Context, events chan<- logic.LinkEvent) {
	delay := s.minDelay
	attempt := 0

	for ctx.Err() == nil {
		p, err := s.open(s.cfg.PortPath, s.cfg.BaudRate)
		if err != nil {
			attempt++
			log.Printf("serial: connect attempt %d failed: %v (retry in %v)", attempt, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
			continue
		}

		log.Printf("serial: connected to %s (attempt %d)", s.cfg.PortPath, attempt+1)
		delay = s.minDelay
		attempt = 0
		s.serve(ctx, p, events)
	}
}

func (s *Serial) serve(ctx context.Context, p port, events chan<- logic.LinkEvent) {
	s.mu.Lock()
	s.cur = p
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cur = nil
		s.mu.Unlock()
		p.Close()
	}()
	if ctx.Err() != nil {
		return
	}

	if !send(ctx, events, logic.LinkEvent{Kind: logic.LinkConnected, Peer: s.cfg.PortPath}) {
		return
	}

	var split streamSplitter
	buf := make([]byte, 64)
	for {
		n, err := p.Read(buf)
		for _, u := range split.feed(buf[:n]) {
			if !send(ctx, events, logic.LinkEvent{Kind: logic.LinkCommand, Data: u}) {
				return
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) {
				log.Printf("serial: read: %v", err)
			}
			send(ctx, events, logic.LinkEvent{Kind: logic.LinkDisconnected, Peer: s.cfg.PortPath})
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}
