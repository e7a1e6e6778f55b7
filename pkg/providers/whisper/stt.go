// Package whisper talks to a whisper-asr-webservice compatible HTTP backend.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/stt"
	"github.com/harunnryd/sabda/pkg/configutil"
	"github.com/harunnryd/sabda/pkg/errorsx"
	"github.com/harunnryd/sabda/pkg/logging"
)

const (
	defaultURL            = "http://localhost:9000"
	defaultASRPath        = "/asr"
	defaultProbePath      = "/openapi.json"
	defaultHealthPath     = "/health"
	defaultProbeTimeout   = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second
	maxErrorBody          = 512
)

const Name = "whisper"

// Schema lists the accepted settings keys.
var Schema = configutil.Schema{Optional: []string{"url", "asr_path", "probe_path", "health_path", "probe_timeout", "request_timeout", "output"}}

type Config struct {
	URL            string        `mapstructure:"url"`
	ASRPath        string        `mapstructure:"asr_path"`
	ProbePath      string        `mapstructure:"probe_path"`
	HealthPath     string        `mapstructure:"health_path"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Output is passed as the "output" query parameter.
	Output string `mapstructure:"output"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = defaultURL
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.ASRPath == "" {
		c.ASRPath = defaultASRPath
	}
	if c.ProbePath == "" {
		c.ProbePath = defaultProbePath
	}
	if c.HealthPath == "" {
		c.HealthPath = defaultHealthPath
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Output == "" {
		c.Output = "json"
	}
	return c
}

// Transcriber probes the whisper service and then posts audio to its ASR endpoint.
type Transcriber struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config) *Transcriber {
	return &Transcriber{
		cfg:    cfg.withDefaults(),
		client: &http.Client{},
		logger: logging.NewComponentLogger(slog.Default(), "whisper_stt"),
	}
}

// WithHTTPClient replaces the HTTP client; per-call timeouts still come from Config.
func (t *Transcriber) WithHTTPClient(c *http.Client) *Transcriber {
	if c != nil {
		t.client = c
	}
	return t
}

func (t *Transcriber) Name() string { return Name }

func (t *Transcriber) Endpoint() string { return t.cfg.URL }

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, language string) (stt.Transcription, error) {
	if err := t.probe(ctx); err != nil {
		t.logger.Error("whisper_probe_failed", slog.String("error", err.Error()))
		return stt.Transcription{}, err
	}

	body, contentType, err := buildMultipart(audio)
	if err != nil {
		return stt.Transcription{}, errorsx.Wrap(err, errorsx.ReasonUnexpected)
	}
	q := url.Values{}
	q.Set("task", "transcribe")
	if language != "" {
		q.Set("language", language)
	}
	q.Set("output", t.cfg.Output)
	endpoint := t.cfg.URL + t.cfg.ASRPath + "?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.RequestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return stt.Transcription{}, errorsx.Wrap(err, errorsx.ReasonTranscribeConnect)
	}
	req.Header.Set("Content-Type", contentType)

	t.logger.Debug("whisper_request",
		slog.String("url", endpoint),
		slog.Int("size_bytes", len(audio)),
		slog.String("language", language))

	resp, err := t.client.Do(req)
	if err != nil {
		return stt.Transcription{}, errorsx.Wrap(fmt.Errorf("whisper asr: %w", err), errorsx.ReasonTranscribeConnect)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		t.logger.Error("whisper_status_error",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(snippet)))
		return stt.Transcription{}, errorsx.Wrap(errorsx.StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}, errorsx.ReasonTranscribeStatus)
	}

	var payload asrResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return stt.Transcription{}, errorsx.Wrap(fmt.Errorf("decode whisper response: %w", err), errorsx.ReasonTranscribeMalformed)
	}
	lang := payload.Language
	if lang == "" {
		lang = language
	}
	return stt.Transcription{Text: payload.Text, Language: lang}, nil
}

func (t *Transcriber) Health(ctx context.Context) error {
	return t.get(ctx, t.cfg.HealthPath, errorsx.ReasonTranscribeConnect)
}

func (t *Transcriber) probe(ctx context.Context) error {
	return t.get(ctx, t.cfg.ProbePath, errorsx.ReasonTranscribeProbe)
}

func (t *Transcriber) get(ctx context.Context, path string, reason errorsx.ReasonCode) error {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.ProbeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.URL+path, nil)
	if err != nil {
		return errorsx.Wrap(err, reason)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return errorsx.Wrap(fmt.Errorf("whisper %s: %w", path, err), reason)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return errorsx.Wrap(errorsx.StatusError{Code: resp.StatusCode}, reason)
	}
	return nil
}

type asrResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func buildMultipart(audio []byte) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio_file"; filename="audio.webm"`)
	h.Set("Content-Type", "audio/webm")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(audio); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
