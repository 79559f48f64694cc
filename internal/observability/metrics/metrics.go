// Package metrics turns event bus traffic into Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classbot/internal/eventbus"
)

const namespace = "classbot"

var loopStates = []string{"idle", "authenticating", "polling", "scanning", "sleeping", "stopped"}

// Collector owns a private registry; nothing is registered globally.
type Collector struct {
	registry *prometheus.Registry
	handler  http.Handler

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	courses       prometheus.Gauge
	changes       *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	attempts      prometheus.Histogram
	dueSoon       prometheus.Gauge
	scanDuration  prometheus.Histogram
	loopState     *prometheus.GaugeVec
	authReady     prometheus.Gauge
}

func New() *Collector {
	registry := prometheus.NewRegistry()
	c := &Collector{
		registry: registry,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of poll cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		courses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "courses",
			Help:      "Courses in the last successful snapshot.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_detected_total",
			Help:      "Classified entity changes by kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-group delivery outcomes.",
		}, []string{"platform", "status"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_attempts",
			Help:      "Send attempts per delivered or failed notice.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		dueSoon: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reminder_due_soon",
			Help:      "Work items inside the reminder window at the last scan.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reminder_scan_duration_seconds",
			Help:      "Duration of reminder scans.",
			Buckets:   prometheus.DefBuckets,
		}),
		loopState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_state",
			Help:      "1 for the current state of each loop.",
		}, []string{"loop", "state"}),
		authReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "auth_ready",
			Help:      "1 once the classroom credentials are usable.",
		}),
	}
	registry.MustRegister(
		c.cycles, c.cycleDuration, c.courses, c.changes, c.deliveries, c.attempts,
		c.dueSoon, c.scanDuration, c.loopState, c.authReady,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return c
}

// Handler exposes the Prometheus HTTP handler.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return c.handler
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}

// Observe applies a single event.
func (c *Collector) Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.CycleDone:
		c.cycles.WithLabelValues(d.Result).Inc()
		c.cycleDuration.Observe(d.Took.Seconds())
		if d.Result == "ok" {
			c.courses.Set(float64(d.Courses))
		}
	case eventbus.ChangeDetected:
		c.changes.WithLabelValues(d.Kind).Inc()
	case eventbus.ReminderScan:
		c.dueSoon.Set(float64(d.DueSoon))
		c.scanDuration.Observe(d.Took.Seconds())
	case eventbus.LoopState:
		for _, s := range loopStates {
			v := 0.0
			if s == d.State {
				v = 1
			}
			c.loopState.WithLabelValues(d.Loop, s).Set(v)
		}
	case eventbus.Delivery:
		status := deliveryStatus(e.Type)
		if status == "" {
			return
		}
		c.deliveries.WithLabelValues(d.Platform, status).Inc()
		if d.Attempts > 0 {
			c.attempts.Observe(float64(d.Attempts))
		}
	default:
		if e.Type == eventbus.TypeAuthReady {
			c.authReady.Set(1)
		}
	}
}

func deliveryStatus(typ string) string {
	switch typ {
	case eventbus.TypeDeliverySent:
		return "sent"
	case eventbus.TypeDeliveryFailed:
		return "failed"
	case eventbus.TypeDeliveryDeduped:
		return "deduped"
	case eventbus.TypeDeliverySkipped:
		return "skipped"
	}
	return ""
}
