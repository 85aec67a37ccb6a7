// Package audio converts between mono float frames and 16-bit PCM WAV files.
package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/faiface/beep"
	"github.com/faiface/beep/wav"
)

const (
	pcm16Precision = 2
	streamBufSize  = 512

	// pcm16Rescale undoes beep v1.1.0's 16-bit decoder, which divides by
	// 1<<16-1 instead of 1<<15 and so returns half-amplitude samples.
	pcm16Rescale = float64(1<<16-1) / float64(1<<15)
)

// Format describes mono 16-bit PCM at sampleRate.
func Format(sampleRate int) beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   pcm16Precision,
	}
}

// Concat joins sample runs in order.
func Concat(runs ...[]float32) []float32 {
	total := 0
	for _, r := range runs {
		total += len(r)
	}
	out := make([]float32, 0, total)
	for _, r := range runs {
		out = append(out, r...)
	}
	return out
}

// streamer plays back a sample slice once. Mono frames are duplicated into
// both channels; the WAV encoder averages them back down.
func streamer(samples []float32) beep.Streamer {
	pos := 0
	return beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := copy2(buf, samples[pos:])
		pos += n
		return n, true
	})
}

func copy2(dst [][2]float64, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		v := float64(src[i])
		dst[i] = [2]float64{v, v}
	}
	return n
}

// WriteWAV writes samples to path as 16-bit mono WAV at sampleRate.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating wav: %w", err)
	}

	if err := wav.Encode(f, streamer(samples), Format(sampleRate)); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a WAV stream into mono float frames. Multi-channel input is
// downmixed by averaging the first two channels.
func DecodeWAV(r io.Reader) ([]float32, int, error) {
	s, format, err := wav.Decode(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decoding wav: %w", err)
	}
	defer s.Close()

	scale := 1.0
	if format.Precision == pcm16Precision {
		scale = pcm16Rescale
	}

	var (
		out []float32
		buf = make([][2]float64, streamBufSize)
	)
	for {
		n, ok := s.Stream(buf)
		for i := 0; i < n; i++ {
			v := buf[i][0]
			if format.NumChannels > 1 {
				v = (buf[i][0] + buf[i][1]) / 2
			}
			out = append(out, float32(v*scale))
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading wav frames: %w", err)
	}

	return out, int(format.SampleRate), nil
}

// DecodeWAVBytes is DecodeWAV over an in-memory file.
func DecodeWAVBytes(data []byte) ([]float32, int, error) {
	return DecodeWAV(bytes.NewReader(data))
}
