// Package metrics projects session events onto Prometheus collectors and
// writes them out as a node-exporter textfile.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/papercomputeco/glassbox/pkg/eventstream"
)

// Namespace prefixes every metric name.
const Namespace = "glassbox"

// Metrics groups the instruments fed by the event bus. Each instance owns a
// private registry so several sessions in one process never collide.
type Metrics struct {
	registry *prometheus.Registry

	Events          *prometheus.CounterVec
	RetrievedChunks prometheus.Histogram
	ContextTokens   prometheus.Histogram
	ResponseBytes   prometheus.Histogram
	DecodeLatency   prometheus.Histogram
	AuditLength     prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_total",
			Help:      "Session events by type.",
		}, []string{"type"}),
		RetrievedChunks: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "retrieved_chunks",
			Help:      "Chunks placed in the context window per prompt.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16},
		}),
		ContextTokens: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "context_tokens",
			Help:      "Context window size in tokens per prompt.",
			Buckets:   prometheus.ExponentialBuckets(16, 2, 8),
		}),
		ResponseBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "response_bytes",
			Help:      "Generated response size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
		DecodeLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "decode_latency_ms",
			Help:      "Wall time of one generation in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		AuditLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "audit_records",
			Help:      "Records committed to the audit log.",
		}),
	}
}

// Registry exposes the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe is an eventstream.Handler.
func (m *Metrics) Observe(_ context.Context, e *eventstream.Event) error {
	if e == nil {
		return eventstream.ErrNilEvent
	}
	m.Events.WithLabelValues(e.EventType).Inc()

	switch {
	case e.Initialized != nil:
		m.AuditLength.Set(float64(e.Initialized.AuditLength))
	case e.ContextRetrieved != nil:
		m.RetrievedChunks.Observe(float64(len(e.ContextRetrieved.ChunkIDs)))
		m.ContextTokens.Observe(float64(e.ContextRetrieved.Tokens))
	case e.ResponseGenerated != nil:
		m.ResponseBytes.Observe(float64(e.ResponseGenerated.ResponseLen))
		m.DecodeLatency.Observe(float64(e.ResponseGenerated.DurationMs))
	case e.Appended != nil:
		m.AuditLength.Set(float64(e.Appended.Sequence + 1))
	}
	return nil
}

// WriteTextfile writes the current values to path in the text exposition
// format. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
