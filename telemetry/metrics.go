// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SegmentsProcessed prometheus.Counter
	SegmentsDuplicate prometheus.Counter
	SegmentsEmpty     prometheus.Counter
	ParseFailures     prometheus.Counter
	CommentsIngested  prometheus.Counter
	SubtitleSyncRuns  prometheus.Counter
	SubtitlesImported prometheus.Counter

	// Histograms (seconds)
	ProcessDuration prometheus.Observer
	MergeDuration   prometheus.Observer

	// Gauges
	LiveChannelsGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SegmentsProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_segments_processed_total", Help: "Number of capture segments merged into clips"})
		SegmentsDuplicate = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_segments_duplicate_total", Help: "Number of capture segments skipped as already merged"})
		SegmentsEmpty = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_segments_empty_total", Help: "Number of capture segments containing no events"})
		ParseFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_parse_failures_total", Help: "Number of captures rejected during parsing"})
		CommentsIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_comments_ingested_total", Help: "Number of comment records written"})
		SubtitleSyncRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_subtitle_sync_runs_total", Help: "Number of subtitle sync passes"})
		SubtitlesImported = promauto.NewCounter(prometheus.CounterOpts{Name: "matsuri_subtitles_imported_total", Help: "Number of subtitle lines imported as synthetic comments"})
		ProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "matsuri_capture_process_duration_seconds", Help: "End to end capture processing duration seconds", Buckets: prometheus.DefBuckets})
		MergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "matsuri_merge_duration_seconds", Help: "Segment merge transaction duration seconds", Buckets: prometheus.DefBuckets})
		LiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "matsuri_live_channels", Help: "Current number of channels reported live"})
	})
}

// SetLiveChannels records the current number of live channels.
func SetLiveChannels(n int) {
	if LiveChannelsGauge != nil {
		LiveChannelsGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// ObserveSince records the elapsed time since start in observer if non-nil.
// Convenience for deferred use where TimeFunc's closure form is awkward.
func ObserveSince(obs prometheus.Observer, start time.Time) {
	if obs != nil {
		obs.Observe(time.Since(start).Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
