package sabda

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/sabda/pkg/metrics"
)

// BuildObserver assembles the metrics sinks from config. The returned close
// function flushes the async buffer and closes the file sink.
func BuildObserver(cfg ObservabilityConfig, logger *slog.Logger) (metrics.Observer, func() error, error) {
	sinks := []metrics.Observer{metrics.NewLoggerObserver(logger)}
	var jsonl *metrics.JSONLObserver
	if path := strings.TrimSpace(cfg.MetricsFile); path != "" {
		obs, err := metrics.OpenJSONLFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open metrics file: %w", err)
		}
		jsonl = obs
		sinks = append(sinks, obs)
	}
	var obs metrics.Observer = metrics.NewMultiObserver(sinks...)
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		obs = metrics.NewSamplingObserver(obs, cfg.SampleRate)
	}
	async := metrics.NewAsyncObserver(obs, cfg.AsyncBuffer)
	closeFn := func() error {
		async.Close()
		if dropped := async.Dropped(); dropped > 0 {
			logger.Warn("metrics_events_dropped", "count", dropped)
		}
		if jsonl != nil {
			return jsonl.Close()
		}
		return nil
	}
	return async, closeFn, nil
}
