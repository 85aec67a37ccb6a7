// Package health provides the liveness and readiness endpoints.
//
// /health is the legacy liveness probe and always answers 200 while the
// process is serving. /readyz answers 200 only once the server has finished
// warming its pipelines and is ready to accept synthesis requests.
package health

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// ServiceName identifies this daemon in health responses.
const ServiceName = "tts_server"

// Status is the JSON body of a health response.
type Status struct {
	Status  string `json:"status" example:"ok"`
	Service string `json:"service,omitempty" example:"tts_server"`
}

// Server tracks readiness and serves the health endpoints.
type Server struct {
	ready atomic.Bool
}

// New creates a health server in the not-ready state.
func New() *Server {
	return &Server{}
}

// SetReady marks the daemon as ready (or not) to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Ready reports the current readiness.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Register mounts the health endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
}

// handleHealth reports liveness.
//
// @Summary     Liveness probe
// @Description Always returns 200 while the process is serving requests.
// @Tags        health
// @Produce     json
// @Success     200  {object}  health.Status
// @Router      /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, http.StatusOK, Status{Status: "ok", Service: ServiceName})
}

// handleReady reports readiness.
//
// @Summary     Readiness probe
// @Description Returns 200 once startup has completed, 503 before that and during shutdown.
// @Tags        health
// @Produce     json
// @Success     200  {object}  health.Status
// @Failure     503  {object}  health.Status
// @Router      /readyz [get]
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Load() {
		writeStatus(w, http.StatusServiceUnavailable, Status{Status: "not_ready", Service: ServiceName})
		return
	}
	writeStatus(w, http.StatusOK, Status{Status: "ready", Service: ServiceName})
}

func writeStatus(w http.ResponseWriter, code int, st Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
