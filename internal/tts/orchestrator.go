package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/semaphore"

	"github.com/nadzzz/tts-server/internal/audio"
)

const (
	// DefaultSampleRate is the rate of the WAV intermediate, matching the model output.
	DefaultSampleRate = 24000

	// DefaultSpeed is the speed multiplier passed to generation.
	DefaultSpeed = 1.0

	textPreviewRunes = 50
)

// Options configures an Orchestrator. Zero values fall back to the defaults
// above and to unbounded concurrency with no per-request timeout.
type Options struct {
	Voices         *Voices
	Encode         EncodeOpts
	SampleRate     int
	Speed          float64
	MaxConcurrent  int
	RequestTimeout time.Duration

	// Archive, when non-nil, receives a copy of every delivered file.
	Archive Archiver
}

// Orchestrator runs requests through resolve, phonemize, generate, persist
// and encode.
type Orchestrator struct {
	cache     *PipelineCache
	encoder   Encoder
	workspace *Workspace
	voices    *Voices
	opts      Options
	sem       *semaphore.Weighted // nil when unbounded
}

// NewOrchestrator wires the collaborators together.
func NewOrchestrator(cache *PipelineCache, encoder Encoder, workspace *Workspace, opts Options) *Orchestrator {
	if opts.Voices == nil {
		opts.Voices = NewVoices(nil)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Speed <= 0 {
		opts.Speed = DefaultSpeed
	}
	if opts.Encode.Codec == "" {
		opts.Encode.Codec = "libopus"
	}
	if opts.Encode.Bitrate == "" {
		opts.Encode.Bitrate = "24k"
	}

	o := &Orchestrator{
		cache:     cache,
		encoder:   encoder,
		workspace: workspace,
		voices:    opts.Voices,
		opts:      opts,
	}
	if opts.MaxConcurrent > 0 {
		o.sem = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return o
}

// Voices returns the language resolver in use.
func (o *Orchestrator) Voices() *Voices { return o.voices }

// Synthesize turns req into an encoded audio artifact. On success the caller
// owns the artifact and must Remove it once delivered; on failure nothing is
// left in the workspace.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Artifact, error) {
	if strings.TrimSpace(req.Text) == "" {
		slog.Warn("rejecting tts request", "lang", req.Lang, "error_code", CodeInvalidRequest, "error", ErrEmptyText)
		return nil, ErrEmptyText
	}

	if o.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RequestTimeout)
		defer cancel()
	}

	if o.sem != nil {
		if err := o.sem.Acquire(ctx, 1); err != nil {
			err = fmt.Errorf("waiting for a synthesis slot: %w", err)
			slog.Error("tts request failed", "lang", req.Lang, "error_code", ErrorCode(err), "error", err)
			return nil, err
		}
		defer o.sem.Release(1)
	}

	start := time.Now()
	lang := o.voices.Resolve(req.Lang)
	art := o.workspace.New()
	logger := slog.With("request_id", art.ID, "lang", req.Lang, "lang_code", lang.Code, "voice", lang.Voice)
	logger.Info("processing tts request", "text_preview", preview(req.Text))

	if err := o.run(ctx, logger, lang, req.Text, art); err != nil {
		logger.Error("tts request failed", "error_code", ErrorCode(err), "error", err, "duration", time.Since(start))
		if rmErr := art.Remove(); rmErr != nil {
			logger.Warn("failed to remove artifact", "error", rmErr)
		}
		return nil, err
	}

	logger.Info("tts request complete", "duration", time.Since(start))
	return art, nil
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, lang Language, text string, art *Artifact) error {
	// Step 1: Fetch or build the pipeline for this language.
	pipeline, err := o.cache.Get(ctx, lang.Code)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrBackendUnavailable) {
			err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		return err
	}

	// Step 2: Convert text to phonemes, keeping every batch.
	batches, err := pipeline.Phonemize(ctx, text, lang.Voice)
	if err != nil {
		return fmt.Errorf("phonemizing: %w", err)
	}
	phonemes := make([]string, 0, len(batches))
	for _, b := range batches {
		if strings.TrimSpace(b.Phonemes) != "" {
			phonemes = append(phonemes, b.Phonemes)
		}
	}
	if len(phonemes) == 0 {
		return ErrNoPhonemes
	}
	logger.Debug("phonemes extracted", "batches", len(phonemes), "preview", preview(phonemes[0]))

	// Step 3: Generate audio for each phoneme batch, in order.
	var runs [][]float32
	for i, ps := range phonemes {
		frames, err := pipeline.Generate(ctx, ps, lang.Voice, o.opts.Speed)
		if err != nil {
			return fmt.Errorf("generating audio for batch %d: %w", i, err)
		}
		for _, f := range frames {
			if len(f.Samples) > 0 {
				runs = append(runs, f.Samples)
			}
		}
	}
	if len(runs) == 0 {
		return ErrNoAudio
	}

	// Step 4: Persist the combined waveform.
	if err := audio.WriteWAV(art.WAVPath, audio.Concat(runs...), o.opts.SampleRate); err != nil {
		return fmt.Errorf("writing wav: %w", err)
	}
	logger.Debug("wav file saved", "path", art.WAVPath)

	// Step 5: Transcode; the intermediate is not needed afterwards either way.
	encErr := o.encoder.Encode(ctx, art.WAVPath, art.OGGPath, o.opts.Encode)
	if err := art.RemoveWAV(); err != nil {
		logger.Warn("failed to remove wav", "error", err)
	}
	if encErr != nil {
		if ctx.Err() == nil && !errors.Is(encErr, ErrEncodeFailed) {
			encErr = fmt.Errorf("%w: %w", ErrEncodeFailed, encErr)
		}
		return encErr
	}
	logger.Debug("audio converted", "path", art.OGGPath)

	// Step 6: Optionally archive a copy. Never fails the request.
	if o.opts.Archive != nil {
		o.archive(ctx, logger, art)
	}

	return nil
}

func (o *Orchestrator) archive(ctx context.Context, logger *slog.Logger, art *Artifact) {
	data, err := os.ReadFile(art.OGGPath)
	if err != nil {
		logger.Warn("archive skipped, cannot read audio", "error", err)
		return
	}
	if err := o.opts.Archive.Upload(ctx, art.Filename(), data); err != nil {
		logger.Warn("archive upload failed", "error", err)
		return
	}
	logger.Debug("audio archived", "key", art.Filename(), "bytes", len(data))
}

// preview returns at most the first 50 runes of s.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= textPreviewRunes {
		return s
	}
	return string([]rune(s)[:textPreviewRunes]) + "..."
}
