// Package deepgram transcribes audio chunks through Deepgram's pre-recorded API.
package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/stt"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/errorsx"
	"github.com/harunnryd/sabda/pkg/logging"

	prerecorded "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

const Name = "deepgram"

var Schema = configutil.Schema{Required: []string{"api_key"}, Optional: []string{"model", "smart_format", "request_timeout"}}

type Config struct {
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	SmartFormat    *bool         `mapstructure:"smart_format"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// streamTranscriber is the subset of the SDK client used here.
type streamTranscriber interface {
	transcribe(ctx context.Context, audio []byte, opts *interfaces.PreRecordedTranscriptionOptions) (string, error)
}

type Transcriber struct {
	cfg    Config
	api    streamTranscriber
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	t := &Transcriber{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
	if strings.TrimSpace(cfg.APIKey) != "" {
		t.api = &sdkClient{dg: prerecorded.New(client.NewREST(cfg.APIKey, &interfaces.ClientOptions{}))}
	}
	return t
}

func (t *Transcriber) Name() string { return Name }

func (t *Transcriber) Endpoint() string { return "https://api.deepgram.com/v1/listen" }

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, language string) (stt.Transcription, error) {
	if t.api == nil {
		return stt.Transcription{}, errorsx.Wrap(errors.New("deepgram api key is not configured"), errorsx.ReasonTranscribeConfig)
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()

	opts := &interfaces.PreRecordedTranscriptionOptions{
		Model:       t.cfg.Model,
		Language:    language,
		SmartFormat: t.cfg.SmartFormat == nil || *t.cfg.SmartFormat,
		Punctuate:   true,
	}
	t.logger.Debug("deepgram_request",
		slog.Int("size_bytes", len(audio)),
		slog.String("model", t.cfg.Model),
		slog.String("language", language))

	text, err := t.api.transcribe(ctx, audio, opts)
	if err != nil {
		t.logger.Error("deepgram_transcribe_error", slog.String("error", err.Error()))
		return stt.Transcription{}, errorsx.Wrap(fmt.Errorf("deepgram listen: %w", err), errorsx.ReasonTranscribeConnect)
	}
	return stt.Transcription{Text: text, Language: language}, nil
}

// Health only reports configuration; Deepgram has no unauthenticated liveness endpoint.
func (t *Transcriber) Health(ctx context.Context) error {
	if t.api == nil {
		return errorsx.Wrap(errors.New("deepgram api key is not configured"), errorsx.ReasonTranscribeConfig)
	}
	return nil
}

type sdkClient struct {
	dg *prerecorded.Client
}

func (c *sdkClient) transcribe(ctx context.Context, audio []byte, opts *interfaces.PreRecordedTranscriptionOptions) (string, error) {
	res, err := c.dg.FromStream(ctx, bytes.NewReader(audio), opts)
	if err != nil {
		return "", err
	}
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return "", errorsx.Wrap(errors.New("deepgram response has no channels"), errorsx.ReasonTranscribeMalformed)
	}
	alts := res.Results.Channels[0].Alternatives
	if len(alts) == 0 {
		return "", nil
	}
	return alts[0].Transcript, nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
