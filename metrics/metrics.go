// Package metrics holds the service's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roundify"

// Metrics is a private registry plus the instruments written by the job
// service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	Uploads         prometheus.Counter
	UploadRejects   *prometheus.CounterVec // reason
	JobsSubmitted   prometheus.Counter
	JobsFinished    *prometheus.CounterVec // result
	EncodeSeconds   prometheus.Histogram
	DeliveryResults *prometheus.CounterVec // result
	ActiveWorkers   prometheus.Gauge
	ExpiredCleaned  prometheus.Counter
}

// New builds the instruments and registers them with Go/process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_total",
			Help: "Uploads accepted and probed successfully.",
		}),
		UploadRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "upload_rejections_total",
			Help: "Uploads rejected, by reason.",
		}, []string{"reason"}),
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_submitted_total",
			Help: "Conversion requests accepted into the queue.",
		}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jobs_finished_total",
			Help: "Jobs that reached a terminal state, by result.",
		}, []string{"result"}),
		EncodeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "encode_duration_seconds",
			Help:    "Wall time spent in the encoder per job.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		DeliveryResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Telegram deliveries attempted, by result.",
		}, []string{"result"}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_workers",
			Help: "Workers currently processing a job.",
		}),
		ExpiredCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "expired_artifacts_total",
			Help: "Artifacts removed by the janitor after their TTL.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Uploads, m.UploadRejects, m.JobsSubmitted, m.JobsFinished,
		m.EncodeSeconds, m.DeliveryResults, m.ActiveWorkers, m.ExpiredCleaned,
	)
	return m
}

// Gauge registers a gauge whose value is read from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) UploadAccepted() {
	if m != nil {
		m.Uploads.Inc()
	}
}

func (m *Metrics) UploadRejected(reason string) {
	if m != nil {
		m.UploadRejects.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Submitted() {
	if m != nil {
		m.JobsSubmitted.Inc()
	}
}

func (m *Metrics) Finished(result string) {
	if m != nil {
		m.JobsFinished.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Encoded(seconds float64) {
	if m != nil {
		m.EncodeSeconds.Observe(seconds)
	}
}

func (m *Metrics) Delivered(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.DeliveryResults.WithLabelValues(result).Inc()
}

func (m *Metrics) WorkerBusy(delta float64) {
	if m != nil {
		m.ActiveWorkers.Add(delta)
	}
}

func (m *Metrics) Expired(n int) {
	if m != nil {
		m.ExpiredCleaned.Add(float64(n))
	}
}
