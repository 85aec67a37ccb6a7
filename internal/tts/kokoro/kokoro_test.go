package kokoro_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nadzzz/tts-server/internal/audio"
	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/tts"
	"github.com/nadzzz/tts-server/internal/tts/kokoro"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockKokoro simulates the Kokoro-FastAPI dev endpoints.
type mockKokoro struct {
	wav          []byte
	healthStatus int
	genStatus    int
	genDetail    string

	mu        sync.Mutex
	phonemize []map[string]any
	generate  []map[string]any
	auth      []string
}

// calls returns copies of the recorded request bodies and auth headers.
func (m *mockKokoro) calls() (phonemize, generate []map[string]any, auth []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(phonemize, m.phonemize...), append(generate, m.generate...), append(auth, m.auth...)
}

func wavBytes(t *testing.T, n, rate int) []byte {
	t.Helper()

	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.5
	}
	path := filepath.Join(t.TempDir(), "gen.wav")
	require.NoError(t, audio.WriteWAV(path, samples, rate))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func (m *mockKokoro) server(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.auth = append(m.auth, r.Header.Get("Authorization"))
		m.mu.Unlock()

		if m.healthStatus != 0 {
			w.WriteHeader(m.healthStatus)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("POST /dev/phonemize", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		m.mu.Lock()
		m.phonemize = append(m.phonemize, body)
		m.mu.Unlock()

		text, _ := body["text"].(string)
		phonemes := "/" + text + "/"
		if text == "silence" {
			phonemes = ""
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"phonemes": phonemes, "tokens": []int{1, 2, 3}})
	})
	mux.HandleFunc("POST /dev/generate_from_phonemes", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		m.mu.Lock()
		m.generate = append(m.generate, body)
		m.mu.Unlock()

		if m.genStatus != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(m.genStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": m.genDetail})
			return
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(m.wav)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newBackend(t *testing.T, endpoint string, mutate func(c *config.KokoroConfig)) *kokoro.Backend {
	t.Helper()

	cfg := config.KokoroConfig{Endpoint: endpoint + "/"}
	if mutate != nil {
		mutate(&cfg)
	}
	b, err := kokoro.New(cfg, 24000)
	require.NoError(t, err)
	return b
}

func TestNew_InvalidSplitPattern(t *testing.T) {
	t.Parallel()

	_, err := kokoro.New(config.KokoroConfig{SplitPattern: "("}, 24000)
	require.Error(t, err)
}

func TestNewPipeline_HealthCheck(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, func(c *config.KokoroConfig) { c.APIKey = "k3y" })

	assert.Equal(t, "kokoro", b.Name())

	p, err := b.NewPipeline(context.Background(), "j")
	require.NoError(t, err)
	assert.Equal(t, tts.LangCode("j"), p.(*kokoro.Pipeline).Code())
	_, _, auth := mock.calls()
	assert.Equal(t, []string{"Bearer k3y"}, auth)
}

func TestNewPipeline_Unhealthy(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{healthStatus: http.StatusServiceUnavailable}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	_, err := b.NewPipeline(context.Background(), "a")
	require.ErrorIs(t, err, tts.ErrBackendUnavailable)
}

func TestNewPipeline_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	b := newBackend(t, url, nil)
	_, err := b.NewPipeline(context.Background(), "a")
	require.ErrorIs(t, err, tts.ErrBackendUnavailable)
}

func TestPhonemize_WholeText(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	p, err := b.NewPipeline(context.Background(), "b")
	require.NoError(t, err)

	batches, err := p.Phonemize(context.Background(), "Hello.\nWorld.", "bf_sunny")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, "/Hello.\nWorld./", batches[0].Phonemes)

	phonemize, _, _ := mock.calls()
	require.Len(t, phonemize, 1)
	assert.Equal(t, "b", phonemize[0]["language"])
}

func TestPhonemize_SplitPattern(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, func(c *config.KokoroConfig) { c.SplitPattern = `\n+` })

	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	batches, err := p.Phonemize(context.Background(), "One.\n\n  \nsilence\nTwo.\n", "af_heart")
	require.NoError(t, err)

	require.Len(t, batches, 2)
	assert.Equal(t, tts.PhonemeBatch{Graphemes: "One.", Phonemes: "/One./"}, batches[0])
	assert.Equal(t, tts.PhonemeBatch{Graphemes: "Two.", Phonemes: "/Two./"}, batches[1])
	phonemize, _, _ := mock.calls()
	assert.Len(t, phonemize, 3)
}

func TestGenerate_DecodesAudio(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{wav: wavBytes(t, 480, 24000)}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	frames, err := p.Generate(context.Background(), "həlˈO", "af_heart", 1.0)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, 24000, frames[0].SampleRate)
	assert.Len(t, frames[0].Samples, 480)
	assert.InDelta(t, 0.5, frames[0].Samples[0], 1e-3)

	_, generate, _ := mock.calls()
	require.Len(t, generate, 1)
	assert.Equal(t, "həlˈO", generate[0]["phonemes"])
	assert.Equal(t, "af_heart", generate[0]["voice"])
	assert.InDelta(t, 1.0, generate[0]["speed"], 1e-9)
}

func TestGenerate_EmptyBodyYieldsNoAudio(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	frames, err := p.Generate(context.Background(), "x", "af_heart", 1.0)
	require.NoError(t, err)
	assert.Empty(t, frames)
}

func TestGenerate_SampleRateMismatch(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{wav: wavBytes(t, 100, 22050)}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x", "af_heart", 1.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample rate")
}

func TestGenerate_ClientErrorDetail(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{genStatus: http.StatusBadRequest, genDetail: "Voice not found: xx_none"}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x", "xx_none", 1.0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, tts.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "Voice not found: xx_none")
}

func TestGenerate_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{genStatus: http.StatusInternalServerError, genDetail: "CUDA out of memory"}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x", "af_heart", 1.0)
	require.ErrorIs(t, err, tts.ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestHealth_CancelledIsNotUnavailable(t *testing.T) {
	t.Parallel()

	mock := &mockKokoro{}
	srv := mock.server(t)
	b := newBackend(t, srv.URL, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Health(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, tts.ErrBackendUnavailable)
	assert.Equal(t, tts.CodeTimeout, tts.ErrorCode(err))
}

func TestGenerate_RejectsOversizedAudio(t *testing.T) {
	t.Parallel()

	wav := wavBytes(t, 480, 24000)
	mock := &mockKokoro{wav: wav}
	srv := mock.server(t)

	limit := int64(len(wav) - 1)
	b := newBackend(t, srv.URL, func(c *config.KokoroConfig) { c.MaxAudioBytes = limit })
	p, err := b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), "x", "af_heart", 1.0)
	require.ErrorIs(t, err, kokoro.ErrAudioTooLarge)

	// Exactly at the limit is accepted.
	b = newBackend(t, srv.URL, func(c *config.KokoroConfig) { c.MaxAudioBytes = int64(len(wav)) })
	p, err = b.NewPipeline(context.Background(), "a")
	require.NoError(t, err)
	frames, err := p.Generate(context.Background(), "x", "af_heart", 1.0)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].Samples, 480)
}
