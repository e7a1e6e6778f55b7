package stt

import "context"

// Transcriber is the contract for any speech-to-text backend.
// Implementations collapse every failure into an error carrying an
// errorsx reason code; they never fabricate text.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe converts one audio chunk in the given language to text.
	Transcribe(ctx context.Context, audio []byte, language string) (Transcription, error)
	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error
}

// Transcription is a successful transcription result.
type Transcription struct {
	Text     string
	Language string
}

// Describer is implemented by transcribers that can report their endpoint.
type Describer interface {
	Endpoint() string
}
