package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		TTS: config.TTSConfig{
			Backend:    "kokoro",
			Kokoro:     config.KokoroConfig{Endpoint: "http://127.0.0.1:1"},
			Speed:      1.0,
			SampleRate: 24000,
		},
		Encoder: config.EncoderConfig{Binary: "ffmpeg", Codec: "libopus", Bitrate: "24k"},
		Storage: config.StorageConfig{TempDir: filepath.Join(t.TempDir(), "tts_audio")},
	}
}

func TestPrewarmCodes(t *testing.T) {
	t.Parallel()

	voices := tts.NewVoices(nil)
	codes := prewarmCodes(voices, []string{"en", "EN", "xx", "ja", "gb", "ja"})
	assert.Equal(t, []tts.LangCode{"a", "j", "b"}, codes)
	assert.Empty(t, prewarmCodes(voices, nil))
}

func TestNewApp(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.DirExists(t, cfg.Storage.TempDir)
	assert.Nil(t, a.archive)
	assert.Equal(t, "kokoro", a.backend.Name())

	// Nothing to prewarm.
	require.NoError(t, a.prewarm(context.Background()))
	assert.Equal(t, 0, a.cache.Len())
}

func TestNewApp_PrewarmBackendDown(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.TTS.Prewarm = []string{"en"}
	a, err := newApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.ErrorIs(t, a.prewarm(context.Background()), tts.ErrBackendUnavailable)
	assert.Equal(t, 0, a.cache.Len())
}

func TestNewApp_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.TTS.Backend = "espeak"
	_, err := newApp(cfg)
	require.ErrorContains(t, err, `unknown tts backend "espeak"`)
}

func TestNewApp_BadSplitPattern(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.TTS.Kokoro.SplitPattern = "[unclosed"
	_, err := newApp(cfg)
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tts-server dev\n", out.String())
}

func TestSayCommand_RequiresText(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"say"})

	require.ErrorContains(t, cmd.Execute(), `required flag(s) "text" not set`)
}
