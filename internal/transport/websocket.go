package transport

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/sweeney/ble-car/internal/logic"
)

// WebSocket accepts one controller over a WebSocket. Each text or binary
// message is one command unit. It is an http.Handler, mounted on the status
// server.
type WebSocket struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	ctx    context.Context
	events chan<- logic.LinkEvent
	busy   bool
	conn   *websocket.Conn
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket() *WebSocket {
	return &WebSocket{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start enables the handler. Requests before Start are refused.
func (w *WebSocket) Start(ctx context.Context, events chan<- logic.LinkEvent) error {
	w.mu.Lock()
	w.ctx = ctx
	w.events = events
	w.mu.Unlock()
	return nil
}

// Advertise is a no-op: the endpoint accepts a new controller as soon as the
// previous one is gone.
func (w *WebSocket) Advertise() error {
	return nil
}

// Close drops the connected controller, if any.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// ServeHTTP upgrades the request and reads commands until the peer goes away.
func (w *WebSocket) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	ctx, events := w.ctx, w.events
	if events == nil {
		w.mu.Unlock()
		http.Error(rw, "not ready", http.StatusServiceUnavailable)
		return
	}
	if w.busy {
		w.mu.Unlock()
		http.Error(rw, "a controller is already connected", http.StatusConflict)
		return
	}
	w.busy = true
	w.mu.Unlock()

	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		w.release(nil)
		return
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	peer := r.RemoteAddr
	log.Printf("ws: controller connected from %s", peer)
	if !send(ctx, events, logic.LinkEvent{Kind: logic.LinkConnected, Peer: peer}) {
		w.release(conn)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if len(data) == 0 {
			continue
		}
		if !send(ctx, events, logic.LinkEvent{Kind: logic.LinkCommand, Data: data}) {
			w.release(conn)
			return
		}
	}

	// Free the slot before reporting the disconnect.
	w.release(conn)
	log.Printf("ws: controller %s disconnected", peer)
	send(ctx, events, logic.LinkEvent{Kind: logic.LinkDisconnected, Peer: peer})
}

func (w *WebSocket) release(conn *websocket.Conn) {
	if conn != nil {
		conn.Close()
	}
	w.mu.Lock()
	w.busy = false
	w.conn = nil
	w.mu.Unlock()
}
