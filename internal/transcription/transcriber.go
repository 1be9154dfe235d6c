// Package transcription defines the speech-recognition contract and its
// Whisper-backed implementation.
package transcription

import (
	"context"

	"lyrix/internal/types"
)

// Transcriber is the interface for speech-to-text backends. Decoding must be
// deterministic: the same audio and hint always yield the same transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, languageHint string) (*types.Transcript, error)
}
