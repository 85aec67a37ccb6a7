// Package tts implements the synthesis orchestrator.
//
// A request is resolved to a model language code and voice, handed to a
// cached per-language Pipeline in two steps (text to phonemes, phonemes to
// audio frames), written as a WAV intermediate and transcoded by an external
// Encoder into the delivered file. The model and the encoder are opaque
// collaborators behind the interfaces in this file.
package tts

import "context"

// LangCode is the model-specific language code (e.g. "a" for American English).
type LangCode string

// Request is a single synthesis call.
type Request struct {
	// Text is the input to speak. Must be non-empty after trimming.
	Text string `json:"text" example:"Hello world"`

	// Lang is the client language tag (en, gb, es, ja, zh). Defaults to "en".
	Lang string `json:"lang,omitempty" example:"en"`
}

// PhonemeBatch is one segment produced by phonemization.
type PhonemeBatch struct {
	// Graphemes is the source text of the segment.
	Graphemes string

	// Phonemes is the phoneme string fed back into generation.
	Phonemes string
}

// AudioBatch is one run of mono float frames produced by generation.
type AudioBatch struct {
	Samples    []float32
	SampleRate int
}

// Pipeline is a speech model instance configured for one language.
type Pipeline interface {
	// Phonemize converts text to phonemes. Long or segmented input may
	// yield several batches, in order.
	Phonemize(ctx context.Context, text, voice string) ([]PhonemeBatch, error)

	// Generate converts a phoneme string to audio frames with the given
	// voice and speed multiplier.
	Generate(ctx context.Context, phonemes, voice string, speed float64) ([]AudioBatch, error)
}

// Backend builds pipelines and reports whether the model server is reachable.
type Backend interface {
	// Name returns the backend identifier (e.g., "kokoro").
	Name() string

	// NewPipeline constructs a pipeline for a model language code. It may be
	// expensive; callers cache the result.
	NewPipeline(ctx context.Context, code LangCode) (Pipeline, error)

	// Health checks that the model server is up.
	Health(ctx context.Context) error
}

// EncodeOpts controls transcoding.
type EncodeOpts struct {
	Codec   string // e.g. "libopus"
	Bitrate string // e.g. "24k"
}

// Encoder transcodes an uncompressed audio file into the delivery format.
type Encoder interface {
	Encode(ctx context.Context, inPath, outPath string, opts EncodeOpts) error
}

// Archiver keeps a copy of delivered audio. Optional.
type Archiver interface {
	Upload(ctx context.Context, key string, data []byte) error
}
