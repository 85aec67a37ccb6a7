package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nadzzz/tts-server/internal/archive"
	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/encoder/ffmpeg"
	"github.com/nadzzz/tts-server/internal/tts"
	"github.com/nadzzz/tts-server/internal/tts/kokoro"
)

// app holds the synthesis stack shared by the serve and say commands.
type app struct {
	cfg       *config.Config
	backend   tts.Backend
	cache     *tts.PipelineCache
	workspace *tts.Workspace
	orch      *tts.Orchestrator
	archive   *archive.Store // nil when archiving is disabled
}

// newApp wires the backend, cache, encoder, workspace and optional archive
// into an orchestrator.
func newApp(cfg *config.Config) (*app, error) {
	var backend tts.Backend
	switch cfg.TTS.Backend {
	case "kokoro":
		b, err := kokoro.New(cfg.TTS.Kokoro, cfg.TTS.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("creating kokoro backend: %w", err)
		}
		backend = b
		slog.Info("using kokoro backend", "endpoint", cfg.TTS.Kokoro.Endpoint)
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.TTS.Backend)
	}

	workspace, err := tts.NewWorkspace(cfg.Storage.TempDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		backend:   backend,
		cache:     tts.NewPipelineCache(backend),
		workspace: workspace,
	}

	opts := tts.Options{
		Voices:         tts.NewVoices(cfg.TTS.Voices),
		Encode:         tts.EncodeOpts{Codec: cfg.Encoder.Codec, Bitrate: cfg.Encoder.Bitrate},
		SampleRate:     cfg.TTS.SampleRate,
		Speed:          cfg.TTS.Speed,
		MaxConcurrent:  cfg.TTS.MaxConcurrent,
		RequestTimeout: cfg.TTS.RequestTimeout,
	}

	if cfg.Archive.Enabled {
		store, err := archive.Connect(cfg.Archive.NATSURL, cfg.Archive.Bucket)
		if err != nil {
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		a.archive = store
		opts.Archive = store
		slog.Info("archiving delivered audio", "nats_url", cfg.Archive.NATSURL, "bucket", cfg.Archive.Bucket)
	}

	a.orch = tts.NewOrchestrator(a.cache, ffmpeg.New(cfg.Encoder), workspace, opts)
	return a, nil
}

// prewarm builds the pipelines for the configured language tags.
func (a *app) prewarm(ctx context.Context) error {
	codes := prewarmCodes(a.orch.Voices(), a.cfg.TTS.Prewarm)
	if len(codes) == 0 {
		return nil
	}
	slog.Info("prewarming pipelines", "codes", codes)
	return a.cache.Prewarm(ctx, codes)
}

// prewarmCodes resolves tags to distinct language codes, keeping first-seen order.
func prewarmCodes(voices *tts.Voices, tags []string) []tts.LangCode {
	seen := make(map[tts.LangCode]bool, len(tags))
	var codes []tts.LangCode
	for _, tag := range tags {
		code := voices.Resolve(tag).Code
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes
}

// Close releases the archive connection, if any.
func (a *app) Close() error {
	if a.archive != nil {
		return a.archive.Close()
	}
	return nil
}
