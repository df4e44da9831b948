// Package web provides an HTTP status server for the ble-car daemon.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/sweeney/ble-car/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	tracker    *status.Tracker
	drivePath  string // WebSocket path of the drive pad, "" if none
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/index.html", s.handleIndex)
	s.mux.HandleFunc("/index.json", s.handleJSON)
	s.mux.HandleFunc("/drive", s.handleDrive)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

// MountControl mounts the WebSocket command link at path and enables the
// drive pad at /drive. Must be called before the server starts.
func (s *Server) MountControl(path string, h http.Handler) {
	s.drivePath = path
	s.mux.Handle(path, h)
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleDrive(w http.ResponseWriter, r *http.Request) {
	if s.drivePath == "" {
		http.Error(w, "drive pad needs the websocket transport", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderDrive(w, s.tracker.Snapshot().Config.DeviceName, s.drivePath)
}
