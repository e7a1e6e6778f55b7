// Package translation selects the configured translation backend and guards
// it with the same-language shortcut, the empty-text shortcut and a
// rate-limit circuit breaker.
package translation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/sabda/pkg/adapters/translate"
	"github.com/harunnryd/sabda/pkg/errorsx"
	"github.com/harunnryd/sabda/pkg/logging"
	"github.com/harunnryd/sabda/pkg/metrics"
	"github.com/harunnryd/sabda/pkg/resilience"
)

type Options struct {
	// Service is the configured service id, reported even when Adapter is nil.
	Service string
	Adapter translate.Adapter
	// BuildErr explains why Adapter could not be built.
	BuildErr error
	Breaker  *resilience.CircuitBreaker
	Observer metrics.Observer
	Logger   *slog.Logger
}

type Router struct {
	service  string
	adapter  translate.Adapter
	buildErr error
	breaker  *resilience.CircuitBreaker
	observer metrics.Observer
	log      *slog.Logger
}

func New(opts Options) *Router {
	if opts.Breaker == nil {
		opts.Breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Service == "" && opts.Adapter != nil {
		opts.Service = opts.Adapter.Name()
	}
	if opts.Adapter == nil && opts.BuildErr == nil {
		opts.BuildErr = fmt.Errorf("translation service %q is not available", opts.Service)
	}
	return &Router{
		service:  opts.Service,
		adapter:  opts.Adapter,
		buildErr: opts.BuildErr,
		breaker:  opts.Breaker,
		observer: opts.Observer,
		log:      logging.NewComponentLogger(opts.Logger, "translation"),
	}
}

// ServiceName returns the configured service id.
func (r *Router) ServiceName() string { return r.service }

// Configured reports whether an adapter is available.
func (r *Router) Configured() bool { return r.adapter != nil }

func (r *Router) Translate(ctx context.Context, text, src, tgt string) translate.Outcome {
	if src == tgt {
		return translate.Skipped{Reason: translate.SkipSameLanguage}
	}
	if strings.TrimSpace(text) == "" {
		return translate.Translated{Text: ""}
	}
	if r.adapter == nil {
		return translate.Failed{Reason: errorsx.ReasonTranslateMisconfigured, Detail: r.buildErr.Error()}
	}
	if !r.breaker.Allow() {
		r.observer.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventBreakerDenied,
			Time: time.Now(),
			Tags: map[string]string{"service": r.service},
		})
		return translate.Failed{Reason: errorsx.ReasonTranslateCircuitOpen, Detail: "circuit open after repeated rate limits"}
	}

	start := time.Now()
	out := r.adapter.Translate(ctx, text, src, tgt)
	if out == nil {
		out = translate.Failed{Reason: errorsx.ReasonUnexpected, Detail: "adapter returned no outcome"}
	}
	tags := map[string]string{"service": r.service, "source_lang": src, "target_lang": tgt, "status": "ok"}
	switch o := out.(type) {
	case translate.Translated:
		r.breaker.OnSuccess()
	case translate.Failed:
		tags["status"] = "failed"
		tags["reason"] = string(o.Reason)
		if o.Reason == errorsx.ReasonTranslateRateLimit {
			rl := resilience.RateLimitError{Provider: r.service, Message: o.Detail}
			if r.breaker.OnError(rl) {
				r.log.Warn("translation_breaker_open", "service", r.service)
				r.observer.RecordEvent(metrics.MetricsEvent{
					Name: metrics.EventBreakerOpen,
					Time: time.Now(),
					Tags: map[string]string{"service": r.service},
				})
			}
		}
	}
	r.observer.RecordEvent(metrics.Latency(metrics.EventTranslate, start, tags))
	return out
}

// Health checks the configured adapter, or reports why none is available.
func (r *Router) Health(ctx context.Context) error {
	if r.adapter == nil {
		return errorsx.Wrap(r.buildErr, errorsx.ReasonTranslateMisconfigured)
	}
	return r.adapter.Health(ctx)
}
