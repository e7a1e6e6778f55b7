// Package pipeline runs the transcribe-then-translate sequence for one audio
// chunk and folds every outcome into a Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/stt"
	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/errorsx"
	"github.com/harunnryd/sabda/pkg/logging"
	"github.com/harunnryd/sabda/pkg/metrics"
	"github.com/harunnryd/sabda/pkg/redact"
	"github.com/harunnryd/sabda/pkg/textnorm"
)

const DefaultFailedTranslationText = "[translation failed]"

const (
	MsgEmptyAudio         = "empty audio payload"
	MsgBackendUnreachable = "cannot reach transcription backend"
	MsgBackendMalformed   = "transcription backend returned malformed response"
	MsgNoSpeech           = "no speech detected"
)

// Translator is satisfied by translation.Router and by a single adapter.
type Translator interface {
	Translate(ctx context.Context, text, src, tgt string) translate.Outcome
}

type Options struct {
	Transcriber stt.Transcriber
	Translator  Translator
	Normalizer  *textnorm.Normalizer
	Observer    metrics.Observer
	Logger      *slog.Logger
	// FailedTranslationText replaces the translation when the translator fails.
	FailedTranslationText string
}

type Orchestrator struct {
	stt        stt.Transcriber
	translator Translator
	norm       *textnorm.Normalizer
	obs        metrics.Observer
	log        *slog.Logger
	failedText string
}

func New(opts Options) *Orchestrator {
	if opts.Normalizer == nil {
		opts.Normalizer = textnorm.New(nil)
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.FailedTranslationText == "" {
		opts.FailedTranslationText = DefaultFailedTranslationText
	}
	return &Orchestrator{
		stt:        opts.Transcriber,
		translator: opts.Translator,
		norm:       opts.Normalizer,
		obs:        opts.Observer,
		log:        logging.NewComponentLogger(opts.Logger, "pipeline"),
		failedText: opts.FailedTranslationText,
	}
}

// FailedTranslationText returns the marker used when translation degrades.
func (o *Orchestrator) FailedTranslationText() string { return o.failedText }

// Process transcribes audio in pair.Source and translates it to pair.Target.
// It never panics and never returns nil.
func (o *Orchestrator) Process(ctx context.Context, audio []byte, pair LanguagePair) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline_panic", "panic", r, "source_lang", pair.Source, "target_lang", pair.Target)
			res = Failure{Message: fmt.Sprintf("unexpected error: %v", r), Reason: errorsx.ReasonUnexpected, Pair: pair}
		}
		o.recordResult(start, res)
	}()

	if len(audio) == 0 {
		return Failure{Message: MsgEmptyAudio, Reason: errorsx.ReasonEmptyInput, Pair: pair}
	}
	if o.stt == nil {
		return Failure{Message: "unexpected error: no transcriber configured", Reason: errorsx.ReasonUnexpected, Pair: pair}
	}

	sttStart := time.Now()
	tr, err := o.stt.Transcribe(ctx, audio, pair.Source)
	sttTags := map[string]string{"provider": o.stt.Name(), "source_lang": pair.Source, "status": "ok"}
	if err != nil {
		reason := transcribeReason(err)
		sttTags["status"] = "failed"
		sttTags["reason"] = string(reason)
		o.obs.RecordEvent(metrics.Latency(metrics.EventTranscribe, sttStart, sttTags))
		return o.transcribeFailure(err, reason, pair)
	}
	o.obs.RecordEvent(metrics.Latency(metrics.EventTranscribe, sttStart, sttTags))

	text := o.norm.Normalize(tr.Text)
	if text == "" {
		o.log.Info("pipeline_no_speech", "source_lang", pair.Source, "bytes", len(audio))
		return Failure{Message: MsgNoSpeech, Reason: errorsx.ReasonNoSpeech, Pair: pair}
	}
	o.log.Debug("pipeline_transcribed", "source_lang", pair.Source, "text", redact.Preview(redact.Text(text), 80))

	return Success{OriginalText: text, TranslatedText: o.translate(ctx, text, pair), Pair: pair}
}

// TranslateText translates already-transcribed text. Unlike Process it
// reports translation failures to the caller instead of degrading.
func (o *Orchestrator) TranslateText(ctx context.Context, text string, pair LanguagePair) (translated string, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("pipeline_panic", "panic", r)
			err = errorsx.Newf(errorsx.ReasonUnexpected, "unexpected error: %v", r)
		}
	}()
	if pair.Same() {
		return text, nil
	}
	if o.translator == nil {
		return "", errorsx.Newf(errorsx.ReasonTranslateMisconfigured, "no translator configured")
	}
	switch out := o.translator.Translate(ctx, text, pair.Source, pair.Target).(type) {
	case translate.Translated:
		return out.Text, nil
	case translate.Skipped:
		return text, nil
	case translate.Failed:
		return "", errorsx.Wrap(out, out.Reason)
	default:
		return "", errorsx.Newf(errorsx.ReasonUnexpected, "unexpected translation outcome %T", out)
	}
}

func (o *Orchestrator) translate(ctx context.Context, text string, pair LanguagePair) string {
	if pair.Same() || o.translator == nil {
		return text
	}
	switch out := o.translator.Translate(ctx, text, pair.Source, pair.Target).(type) {
	case translate.Translated:
		return out.Text
	case translate.Skipped:
		return text
	case translate.Failed:
		attrs := []any{"reason", out.Reason, "detail", out.Detail, "source_lang", pair.Source, "target_lang", pair.Target}
		if errorsx.ClassOf(out.Reason) == errorsx.ClassProtocol {
			o.log.Error("pipeline_translate_failed", attrs...)
		} else {
			o.log.Warn("pipeline_translate_failed", attrs...)
		}
		return o.failedText
	default:
		o.log.Error("pipeline_translate_unknown_outcome", "type", fmt.Sprintf("%T", out))
		return o.failedText
	}
}

func (o *Orchestrator) transcribeFailure(err error, reason errorsx.ReasonCode, pair LanguagePair) Failure {
	msg := MsgBackendUnreachable
	switch errorsx.ClassOf(reason) {
	case errorsx.ClassProtocol:
		if code := errorsx.StatusCode(err); code != 0 {
			msg = fmt.Sprintf("transcription backend error: status %d", code)
		} else {
			msg = MsgBackendMalformed
		}
		o.log.Error("pipeline_transcribe_failed", "reason", reason, "error", err)
	case errorsx.ClassUnexpected:
		msg = "unexpected error: " + err.Error()
		o.log.Error("pipeline_transcribe_failed", "reason", reason, "error", err)
	default:
		o.log.Warn("pipeline_transcribe_failed", "reason", reason, "error", err)
	}
	return Failure{Message: msg, Reason: reason, Pair: pair}
}

// transcribeReason treats unreasoned context errors as connectivity failures.
func transcribeReason(err error) errorsx.ReasonCode {
	reason := errorsx.Reason(err)
	if reason != errorsx.ReasonUnknown {
		return reason
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errorsx.ReasonTranscribeConnect
	}
	return errorsx.ReasonUnexpected
}

func (o *Orchestrator) recordResult(start time.Time, res Result) {
	tags := map[string]string{"status": "success"}
	if res != nil {
		pair := res.LanguagePair()
		tags["source_lang"] = pair.Source
		tags["target_lang"] = pair.Target
	}
	if f, ok := res.(Failure); ok {
		tags["status"] = "failure"
		tags["reason"] = string(f.Reason)
		tags["class"] = string(errorsx.ClassOf(f.Reason))
	}
	o.obs.RecordEvent(metrics.Latency(metrics.EventPipelineResult, start, tags))
}
