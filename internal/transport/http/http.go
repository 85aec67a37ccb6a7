// Package http implements the HTTP transport for tts-server.
//
// It exposes POST /tts, which answers with an Ogg/Opus attachment, the
// health endpoints, and the Swagger UI for the generated OpenAPI docs.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/health"
	"github.com/nadzzz/tts-server/internal/tts"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// maxRequestBytes bounds the JSON body of a synthesis request.
const maxRequestBytes = 1 << 20

// Synthesizer produces a speech artifact for a request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Artifact, error)
}

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Detail    string `json:"detail" example:"text cannot be empty"`
	ErrorCode string `json:"error_code" example:"invalid_request"`
}

// Transport serves the synthesis API over HTTP.
type Transport struct {
	cfg    config.ServerConfig
	synth  Synthesizer
	health *health.Server

	mu     sync.Mutex
	server *http.Server
}

// New creates the HTTP transport.
func New(cfg config.ServerConfig, synth Synthesizer, hs *health.Server) *Transport {
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	return &Transport{cfg: cfg, synth: synth, health: hs}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the routed API.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()

	// POST /tts: text in, Ogg/Opus attachment out.
	mux.HandleFunc("POST /tts", t.handleTTS)

	t.health.Register(mux)

	// Swagger UI: serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// Listen binds the configured address and serves until ctx is cancelled.
func (t *Transport) Listen(ctx context.Context) error {
	lis, err := net.Listen("tcp", t.cfg.Addr())
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return t.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           t.Handler(),
		ReadHeaderTimeout: t.cfg.ReadHeaderTimeout,
	}
	t.mu.Lock()
	t.server = srv
	t.mu.Unlock()

	slog.Info("http transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		_ = t.Close()
	}()

	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// handleTTS processes a POST /tts request.
//
// @Summary     Synthesize speech
// @Description Converts text to speech in the requested language and returns an Ogg/Opus file.
// @Description Unknown language tags fall back to English.
// @Tags        tts
// @Accept      json
// @Produce     audio/ogg
// @Produce     json
// @Param       request  body      tts.Request    true  "Text and language tag (en, gb, es, ja, zh)"
// @Success     200      {file}    binary         "speech_<id>.ogg attachment"
// @Failure     400      {object}  ErrorResponse  "Malformed JSON body"
// @Failure     422      {object}  ErrorResponse  "Empty text or no phonemes produced"
// @Failure     500      {object}  ErrorResponse  "Encoding or internal failure"
// @Failure     502      {object}  ErrorResponse  "Model produced no audio"
// @Failure     503      {object}  ErrorResponse  "Speech backend unavailable"
// @Failure     504      {object}  ErrorResponse  "Request timed out"
// @Router      /tts [post]
func (t *Transport) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req tts.Request
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		slog.Warn("rejecting tts request", "error_code", tts.CodeInvalidRequest, "error", err)
		writeError(w, http.StatusBadRequest, tts.CodeInvalidRequest, "invalid json: "+err.Error())
		return
	}
	if req.Lang == "" {
		req.Lang = tts.DefaultLang
	}

	art, err := t.synth.Synthesize(r.Context(), req)
	if err != nil {
		code := tts.ErrorCode(err)
		writeError(w, StatusFor(code), code, err.Error())
		return
	}
	defer func() {
		if err := art.Remove(); err != nil {
			slog.Warn("removing delivered audio", "request_id", art.ID, "error", err)
		}
	}()

	f, err := os.Open(art.OGGPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, tts.CodeInternal, "opening audio: "+err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, tts.CodeInternal, "reading audio: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/ogg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Filename()))
	http.ServeContent(w, r, art.Filename(), info.ModTime(), f)
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code string) int {
	switch code {
	case tts.CodeInvalidRequest, tts.CodeNoPhonemes:
		return http.StatusUnprocessableEntity
	case tts.CodeNoAudio:
		return http.StatusBadGateway
	case tts.CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	case tts.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Detail: detail, ErrorCode: code})
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	t.mu.Lock()
	srv := t.server
	t.mu.Unlock()

	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
