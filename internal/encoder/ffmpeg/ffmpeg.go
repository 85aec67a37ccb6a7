// Package ffmpeg implements the tts.Encoder by running the ffmpeg executable.
//
// The intermediate WAV is transcoded with the configured codec and bitrate;
// the container is picked by ffmpeg from the output file extension (.ogg).
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/nadzzz/tts-server/internal/config"
	"github.com/nadzzz/tts-server/internal/tts"
)

// maxOutput caps how much of ffmpeg's combined output is attached to an error.
const maxOutput = 2048

// Encoder runs ffmpeg as a subprocess.
type Encoder struct {
	binary string
}

// New creates an ffmpeg encoder from config. The binary is looked up on PATH
// once so a missing ffmpeg shows up in the startup log rather than on the
// first request.
func New(cfg config.EncoderConfig) *Encoder {
	binary := cfg.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if path, err := exec.LookPath(binary); err != nil {
		slog.Warn("ffmpeg binary not found, encoding will fail", "binary", binary, "error", err)
	} else {
		binary = path
	}
	return &Encoder{binary: binary}
}

// Args builds the ffmpeg command line for one transcode.
func Args(inPath, outPath string, opts tts.EncodeOpts) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", inPath,
		"-c:a", opts.Codec,
		"-b:a", opts.Bitrate,
		outPath,
		"-y",
	}
}

// Encode transcodes inPath into outPath. On failure the partial output is
// removed and the returned error wraps tts.ErrEncodeFailed.
func (e *Encoder) Encode(ctx context.Context, inPath, outPath string, opts tts.EncodeOpts) error {
	// #nosec G204 -- binary comes from config, paths are generated by the workspace
	cmd := exec.CommandContext(ctx, e.binary, Args(inPath, outPath, opts)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outPath)
		if ctx.Err() != nil {
			return fmt.Errorf("%s interrupted: %w", e.binary, ctx.Err())
		}
		return fmt.Errorf("%w: %s: %w: %s", tts.ErrEncodeFailed, e.binary, err, trim(output))
	}

	slog.Debug("ffmpeg encode complete", "in", inPath, "out", outPath, "codec", opts.Codec, "bitrate", opts.Bitrate)
	return nil
}

func trim(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > maxOutput {
		s = s[len(s)-maxOutput:]
	}
	return s
}
