package tts

import (
	"context"
	"errors"
)

// Static errors. Each stage wraps one of these with context so the HTTP edge
// can classify failures with errors.Is.
var (
	ErrEmptyText          = errors.New("text cannot be empty")
	ErrNoPhonemes         = errors.New("no phonemes generated from text")
	ErrNoAudio            = errors.New("no audio segments generated from phonemes")
	ErrEncodeFailed       = errors.New("audio conversion failed")
	ErrBackendUnavailable = errors.New("speech backend unavailable")
)

// Error codes reported to clients.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeNoPhonemes         = "no_phonemes"
	CodeNoAudio            = "no_audio"
	CodeEncodeFailed       = "encode_failed"
	CodeBackendUnavailable = "backend_unavailable"
	CodeTimeout            = "timeout"
	CodeInternal           = "internal_error"
)

// ErrorCode classifies err into one of the Code* values.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	// A stage cut short by cancellation or a deadline is a timeout, whatever
	// sentinel the stage wrapped it in.
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrEmptyText):
		return CodeInvalidRequest
	case errors.Is(err, ErrNoPhonemes):
		return CodeNoPhonemes
	case errors.Is(err, ErrNoAudio):
		return CodeNoAudio
	case errors.Is(err, ErrEncodeFailed):
		return CodeEncodeFailed
	case errors.Is(err, ErrBackendUnavailable):
		return CodeBackendUnavailable
	default:
		return CodeInternal
	}
}
