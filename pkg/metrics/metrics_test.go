package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestAsyncObserverForwards(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 4)
	async.RecordEvent(MetricsEvent{Name: EventTranscribe})
	async.Close()

	deadline := time.Now().Add(time.Second)
	for len(mem.Events()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(mem.Named(EventTranscribe)) != 1 {
		t.Fatalf("expected forwarded event")
	}
}

func TestSamplingObserverRate(t *testing.T) {
	mem := NewMemoryObserver()
	s := NewSamplingObserver(mem, 0.5)
	for i := 0; i < 10; i++ {
		s.RecordEvent(MetricsEvent{Name: EventTranslate})
	}
	if got := len(mem.Events()); got != 5 {
		t.Fatalf("expected 5 sampled events, got %d", got)
	}
	none := NewSamplingObserver(mem, 0)
	none.RecordEvent(MetricsEvent{Name: EventTranslate})
	if got := len(mem.Events()); got != 5 {
		t.Fatalf("expected rate 0 to drop, got %d", got)
	}
}

func TestJSONLObserverWritesTags(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONLObserver(&buf)
	obs.RecordEvent(MetricsEvent{Name: EventPipelineResult, Time: time.Now(), Tags: map[string]string{"outcome": "success"}})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if line["name"] != EventPipelineResult || line["outcome"] != "success" {
		t.Fatalf("unexpected line %v", line)
	}
}

func TestMultiObserverSkipsNil(t *testing.T) {
	a, b := NewMemoryObserver(), NewMemoryObserver()
	m := NewMultiObserver(a, nil, b)
	m.RecordEvent(MetricsEvent{Name: EventSessionOpen})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both observers to receive the event")
	}
}
