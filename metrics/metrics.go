// Package metrics exposes benchmark counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "s3bench"

// Directions used as label values.
const (
	Upload   = "upload"
	Download = "download"
)

// Part outcomes.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Collector owns its own registry, so several runs in one process (tests)
// never collide on registration. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	Bytes         *prometheus.CounterVec
	Parts         *prometheus.CounterVec
	PartDuration  prometheus.Histogram
	CycleDuration prometheus.Histogram
	Throttled     *prometheus.CounterVec
	Aborts        prometheus.Counter

	mu        sync.Mutex
	throttled map[string]time.Duration
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry:  reg,
		throttled: make(map[string]time.Duration),

		// Bytes counts payload bytes moved per direction
		Bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_total",
				Help:      "Payload bytes transferred",
			},
			[]string{"direction"},
		),

		Parts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upload",
				Name:      "parts_total",
				Help:      "Multipart upload parts by outcome",
			},
			[]string{"status"},
		),

		PartDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "upload",
				Name:      "part_duration_seconds",
				Help:      "Time to generate and upload one part",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
		),

		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "download",
				Name:      "cycle_duration_seconds",
				Help:      "Time to stream one object end to end",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
			},
		),

		// Throttled is the time spent waiting on the rate limiter
		Throttled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "throttled_seconds_total",
				Help:      "Time spent blocked on the rate limiter",
			},
			[]string{"direction"},
		),

		Aborts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "upload",
				Name:      "aborts_total",
				Help:      "Multipart uploads aborted after a failure",
			},
		),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) AddBytes(direction string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.Bytes.WithLabelValues(direction).Add(float64(n))
}

func (c *Collector) ObservePart(d time.Duration, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.Parts.WithLabelValues(StatusFailed).Inc()
		return
	}
	c.Parts.WithLabelValues(StatusOK).Inc()
	c.PartDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveCycle(d time.Duration) {
	if c == nil {
		return
	}
	c.CycleDuration.Observe(d.Seconds())
}

// SetThrottled records the limiter's cumulative wait for a direction. The
// counter only moves forward, so a smaller total is ignored.
func (c *Collector) SetThrottled(direction string, total time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if delta := total - c.throttled[direction]; delta > 0 {
		c.Throttled.WithLabelValues(direction).Add(delta.Seconds())
		c.throttled[direction] = total
	}
}

func (c *Collector) IncAborts() {
	if c == nil {
		return
	}
	c.Aborts.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
