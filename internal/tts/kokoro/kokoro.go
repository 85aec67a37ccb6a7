// Package kokoro implements the tts.Backend against a Kokoro-FastAPI server.
//
// The server exposes the two halves of the model pipeline separately:
//
//	POST /dev/phonemize               {"text", "language"}       -> {"phonemes", "tokens"}
//	POST /dev/generate_from_phonemes  {"phonemes", "voice", ...} -> audio/wav
//	GET  /health
//
// A Pipeline is a thin handle bound to one Kokoro language code; the model
// itself lives in the server process.
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nadzzz/tts-server/internal/audio"
	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/tts"
)

const (
	apiPhonemize = "/dev/phonemize"
	apiGenerate  = "/dev/generate_from_phonemes"
	apiHealth    = "/health"

	contentTypeJSON = "application/json"
	contentTypeWAV  = "audio/wav"

	// defaultMaxAudioBytes bounds a single generated WAV (about 20 minutes at 24 kHz).
	defaultMaxAudioBytes = 64 << 20
	maxErrorBody         = 2048
)

// ErrAudioTooLarge is returned when a generated WAV exceeds the configured limit.
var ErrAudioTooLarge = errors.New("generated audio too large")

// Backend talks to one Kokoro-FastAPI server.
type Backend struct {
	endpoint   string
	apiKey     string
	split      *regexp.Regexp // nil: no segmentation
	sampleRate int
	maxAudio   int64
	client     *http.Client
}

// New creates a Kokoro backend from config. sampleRate is the rate generated
// audio must come back at.
func New(cfg config.KokoroConfig, sampleRate int) (*Backend, error) {
	var split *regexp.Regexp
	if cfg.SplitPattern != "" {
		re, err := regexp.Compile(cfg.SplitPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling split pattern: %w", err)
		}
		split = re
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxAudio := cfg.MaxAudioBytes
	if maxAudio <= 0 {
		maxAudio = defaultMaxAudioBytes
	}

	return &Backend{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		split:      split,
		sampleRate: sampleRate,
		maxAudio:   maxAudio,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "kokoro" }

// Health verifies that the Kokoro server answers on its health endpoint.
func (b *Backend) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating health check request: %w", err)
	}
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("health check at %s: %w", b.endpoint, ctx.Err())
		}
		return fmt.Errorf("%w: health check at %s: %w", tts.ErrBackendUnavailable, b.endpoint, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check failed with status: %s", tts.ErrBackendUnavailable, resp.Status)
	}
	return nil
}

// NewPipeline returns a pipeline bound to code after checking that the server
// is reachable.
func (b *Backend) NewPipeline(ctx context.Context, code tts.LangCode) (tts.Pipeline, error) {
	if err := b.Health(ctx); err != nil {
		return nil, err
	}
	return &Pipeline{backend: b, code: code}, nil
}

// Pipeline is a Kokoro pipeline for one language code.
type Pipeline struct {
	backend *Backend
	code    tts.LangCode
}

// Code returns the language code the pipeline was built for.
func (p *Pipeline) Code() tts.LangCode { return p.code }

type phonemizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type phonemizeResponse struct {
	Phonemes string `json:"phonemes"`
	Tokens   []int  `json:"tokens"`
}

type generateRequest struct {
	Phonemes string  `json:"phonemes"`
	Voice    string  `json:"voice"`
	Speed    float64 `json:"speed"`
}

// errorResponse is the FastAPI error body. Detail is a string for
// HTTPException and a list or object for validation errors.
type errorResponse struct {
	Detail json.RawMessage `json:"detail"`
}

// Phonemize converts text to phonemes, one batch per segment.
func (p *Pipeline) Phonemize(ctx context.Context, text, _ string) ([]tts.PhonemeBatch, error) {
	segments := p.backend.segments(text)
	batches := make([]tts.PhonemeBatch, 0, len(segments))

	for _, seg := range segments {
		var out phonemizeResponse
		if err := p.backend.postJSON(ctx, apiPhonemize, phonemizeRequest{Text: seg, Language: string(p.code)}, &out); err != nil {
			return nil, fmt.Errorf("phonemize: %w", err)
		}
		if out.Phonemes == "" {
			slog.Debug("kokoro returned no phonemes for segment", "lang_code", p.code, "segment_length", len(seg))
			continue
		}
		batches = append(batches, tts.PhonemeBatch{Graphemes: seg, Phonemes: out.Phonemes})
	}

	return batches, nil
}

// Generate synthesizes audio frames from a phoneme string.
func (p *Pipeline) Generate(ctx context.Context, phonemes, voice string, speed float64) ([]tts.AudioBatch, error) {
	body, err := json.Marshal(generateRequest{Phonemes: phonemes, Voice: voice, Speed: speed})
	if err != nil {
		return nil, fmt.Errorf("marshalling generate request: %w", err)
	}

	resp, err := p.backend.do(ctx, apiGenerate, body, contentTypeWAV)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	wav, err := io.ReadAll(io.LimitReader(resp.Body, p.backend.maxAudio+1))
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}
	if int64(len(wav)) > p.backend.maxAudio {
		return nil, fmt.Errorf("%w: generated audio exceeds %d bytes", ErrAudioTooLarge, p.backend.maxAudio)
	}
	if len(wav) == 0 {
		return nil, nil
	}

	samples, rate, err := audio.DecodeWAVBytes(wav)
	if err != nil {
		return nil, err
	}
	if p.backend.sampleRate > 0 && rate != p.backend.sampleRate {
		return nil, fmt.Errorf("unexpected sample rate: expected %d Hz, got %d Hz", p.backend.sampleRate, rate)
	}
	if len(samples) == 0 {
		return nil, nil
	}

	return []tts.AudioBatch{{Samples: samples, SampleRate: rate}}, nil
}

// segments splits text on the configured pattern, dropping blank pieces.
func (b *Backend) segments(text string) []string {
	if b.split == nil {
		return []string{text}
	}
	var out []string
	for _, s := range b.split.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (b *Backend) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}

	resp, err := b.do(ctx, path, body, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do POSTs a JSON body and returns the response when the status is 200.
// Transport failures and 5xx statuses wrap tts.ErrBackendUnavailable.
func (b *Backend) do(ctx context.Context, path string, body []byte, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	b.authorize(req)

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request to %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("%w: request to %s: %w", tts.ErrBackendUnavailable, b.endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseErrorResponse(resp)
	}
	return resp, nil
}

func (b *Backend) authorize(req *http.Request) {
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}
}

// parseErrorResponse decodes a FastAPI error body, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	detail := strings.TrimSpace(string(raw))
	var errResp errorResponse
	if err := json.Unmarshal(raw, &errResp); err == nil && len(errResp.Detail) > 0 {
		var s string
		if json.Unmarshal(errResp.Detail, &s) == nil {
			detail = s
		} else {
			detail = string(errResp.Detail)
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: kokoro returned %s: %s", tts.ErrBackendUnavailable, resp.Status, detail)
	}
	return fmt.Errorf("kokoro returned %s: %s", resp.Status, detail)
}
