// Package monitor serves the engine status over HTTP for debugging and
// supervision. Rendering samples for display is deliberately someone else's
// job; this surface only exposes counters and configuration.
package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/alicemirror/PiRotary/internal/engine"
)

// StatsSource yields engine snapshots; satisfied by *engine.Engine.
type StatsSource interface {
	Stats() engine.Snapshot
}

// Server serves status JSON over HTTP.
type Server struct {
	httpServer *http.Server
	source     StatsSource
}

// New creates a Server reading from the given source.
func New(addr string, source StatsSource) *Server {
	s := &Server{source: source}

	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/stats", s.handleStats)
	router.GET("/healthz", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
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

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"service": "pirotary",
		"stats":   "/stats",
		"health":  "/healthz",
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.source.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.source.Stats()
	w.Header().Set("Content-Type", "application/json")
	if !snap.Initialised {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, map[string]bool{"initialised": snap.Initialised})
}

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("monitor: encode response: %v", err)
	}
}
