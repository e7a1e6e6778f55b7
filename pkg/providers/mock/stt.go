// Package mock provides scripted transcription and translation backends
// for local development and tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/stt"
	"github.com/harunnryd/sabda/pkg/configutil"
)

const TranscriberName = "mock"

var TranscriberSchema = configutil.Schema{Optional: []string{"transcript", "delay"}}

type STTConfig struct {
	Transcript string        `mapstructure:"transcript"`
	Delay      time.Duration `mapstructure:"delay"`
	// Err, when set, is returned from every Transcribe call.
	Err error `mapstructure:"-"`
}

// Transcriber returns a fixed transcript for every non-empty chunk.
type Transcriber struct {
	cfg STTConfig

	mu    sync.Mutex
	calls []TranscribeCall
}

// TranscribeCall records one Transcribe invocation.
type TranscribeCall struct {
	Bytes    int
	Language string
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	if cfg.Transcript == "" {
		cfg.Transcript = "mock transcript"
	}
	return &Transcriber{cfg: cfg}
}

func (t *Transcriber) Name() string { return TranscriberName }

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, language string) (stt.Transcription, error) {
	t.mu.Lock()
	t.calls = append(t.calls, TranscribeCall{Bytes: len(audio), Language: language})
	t.mu.Unlock()
	if t.cfg.Delay > 0 {
		select {
		case <-time.After(t.cfg.Delay):
		case <-ctx.Done():
			return stt.Transcription{}, ctx.Err()
		}
	}
	if t.cfg.Err != nil {
		return stt.Transcription{}, t.cfg.Err
	}
	return stt.Transcription{Text: t.cfg.Transcript, Language: language}, nil
}

func (t *Transcriber) Health(context.Context) error { return nil }

func (t *Transcriber) Endpoint() string { return "mock://transcriber" }

// Calls returns a copy of every recorded invocation.
func (t *Transcriber) Calls() []TranscribeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TranscribeCall(nil), t.calls...)
}

var (
	_ stt.Transcriber = (*Transcriber)(nil)
	_ stt.Describer   = (*Transcriber)(nil)
)
