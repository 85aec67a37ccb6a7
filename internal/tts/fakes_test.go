package tts_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nadzzz/tts-server/internal/tts"
)

var (
	errMockPhonemize = errors.New("mock phonemize error")
	errMockUpload    = errors.New("mock upload error")
)

// mockPipeline returns canned batches and records generation calls.
type mockPipeline struct {
	phonemes     []tts.PhonemeBatch
	phonemizeErr error
	// frames is returned for every Generate call; nil yields no audio.
	frames []tts.AudioBatch

	mu        sync.Mutex
	generated []string
	voices    []string
	speeds    []float64
}

func (m *mockPipeline) Phonemize(_ context.Context, _, _ string) ([]tts.PhonemeBatch, error) {
	if m.phonemizeErr != nil {
		return nil, m.phonemizeErr
	}
	return m.phonemes, nil
}

func (m *mockPipeline) Generate(_ context.Context, phonemes, voice string, speed float64) ([]tts.AudioBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generated = append(m.generated, phonemes)
	m.voices = append(m.voices, voice)
	m.speeds = append(m.speeds, speed)

	return m.frames, nil
}

// mockBackend hands out one pipeline per code and counts constructions.
type mockBackend struct {
	newShouldFail bool
	delay         time.Duration
	pipeline      *mockPipeline

	started atomic.Int32
	created atomic.Int32
	mu      sync.Mutex
	codes   []tts.LangCode
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) NewPipeline(ctx context.Context, code tts.LangCode) (tts.Pipeline, error) {
	m.started.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.newShouldFail {
		return nil, tts.ErrBackendUnavailable
	}

	m.created.Add(1)
	m.mu.Lock()
	m.codes = append(m.codes, code)
	m.mu.Unlock()

	if m.pipeline != nil {
		return m.pipeline, nil
	}
	return &mockPipeline{}, nil
}

func (m *mockBackend) Health(context.Context) error { return nil }

// mockEncoder copies the input to the output unless told to fail.
type mockEncoder struct {
	encodeShouldFail bool
	blockUntilDone   bool // simulates an encoder killed by ctx
	calls            atomic.Int32
	lastOpts         tts.EncodeOpts
}

func (m *mockEncoder) Encode(ctx context.Context, inPath, outPath string, opts tts.EncodeOpts) error {
	m.calls.Add(1)
	m.lastOpts = opts

	if m.encodeShouldFail {
		return errors.New("exit status 1")
	}
	if m.blockUntilDone {
		<-ctx.Done()
		return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
	}

	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, append([]byte("OggS"), data...), 0o600)
}

// mockArchive records uploads.
type mockArchive struct {
	uploadShouldFail bool
	keys             []string
}

func (m *mockArchive) Upload(_ context.Context, key string, _ []byte) error {
	if m.uploadShouldFail {
		return errMockUpload
	}
	m.keys = append(m.keys, key)
	return nil
}
