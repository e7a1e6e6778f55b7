package metrics

import "time"

// Event names emitted by the gateway.
const (
	EventTranscribe     = "transcribe"
	EventTranslate      = "translate"
	EventPipelineResult = "pipeline_result"
	EventSessionOpen    = "session_open"
	EventSessionClose   = "session_close"
	EventSendDropped    = "send_dropped"
	EventBreakerOpen    = "breaker_open"
	EventBreakerDenied  = "breaker_denied"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Latency builds an event whose value is the elapsed milliseconds since start.
func Latency(name string, start time.Time, tags map[string]string) MetricsEvent {
	now := time.Now()
	return MetricsEvent{
		Name:  name,
		Time:  now,
		Value: float64(now.Sub(start).Microseconds()) / 1000,
		Tags:  tags,
	}
}
