package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ava-labs/event-publisher/pkg/session"
)

const (
	Namespace = "publisher"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple publisher processes.
type Labels struct {
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

// Metrics holds every publisher metric. Each vector is labelled by
// publisher name; use For to get the view of a single publisher.
type Metrics struct {
	// Queue
	eventsReceived *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	eventsRequeued *prometheus.CounterVec
	eventsLost     *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec

	// Session
	eventsPublished *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	connectAttempts *prometheus.CounterVec // by publisher, status
	sessionReady    *prometheus.GaugeVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	byPublisher := []string{"publisher"}

	m := &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_received_total",
			Help:      "Total number of events accepted into the queue",
		}, byPublisher),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events rejected because the queue was full",
		}, byPublisher),
		eventsRequeued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_requeued_total",
			Help:      "Total number of events pushed back onto the queue after a failed publish",
		}, byPublisher),
		eventsLost: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_lost_total",
			Help:      "Total number of events lost after a failed publish found the queue full",
		}, byPublisher),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Number of events waiting in the queue",
		}, byPublisher),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "events_published_total",
			Help:      "Total number of events handed to the broker",
		}, byPublisher),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publish_failures_total",
			Help:      "Total number of failed publish attempts",
		}, byPublisher),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of publish calls to the broker",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, byPublisher),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connect_attempts_total",
			Help:      "Total number of broker connect attempts by status",
		}, []string{"publisher", "status"}),
		sessionReady: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_ready",
			Help:      "Whether the broker session is ready to publish (1) or not (0)",
		}, byPublisher),
	}

	err := errors.Join(
		reg.Register(m.eventsReceived),
		reg.Register(m.eventsDropped),
		reg.Register(m.eventsRequeued),
		reg.Register(m.eventsLost),
		reg.Register(m.queueDepth),
		reg.Register(m.eventsPublished),
		reg.Register(m.publishFailures),
		reg.Register(m.publishDuration),
		reg.Register(m.connectAttempts),
		reg.Register(m.sessionReady),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Publisher is the metrics view of one publisher. A nil *Publisher is valid
// and records nothing.
type Publisher struct {
	received  prometheus.Counter
	dropped   prometheus.Counter
	requeued  prometheus.Counter
	lost      prometheus.Counter
	depth     prometheus.Gauge
	published prometheus.Counter
	failures  prometheus.Counter
	duration  prometheus.Observer
	connectOK prometheus.Counter
	connectKO prometheus.Counter
	ready     prometheus.Gauge
}

var _ session.Recorder = (*Publisher)(nil)

// For returns the metrics of the named publisher.
func (m *Metrics) For(name string) *Publisher {
	if m == nil {
		return nil
	}
	return &Publisher{
		received:  m.eventsReceived.WithLabelValues(name),
		dropped:   m.eventsDropped.WithLabelValues(name),
		requeued:  m.eventsRequeued.WithLabelValues(name),
		lost:      m.eventsLost.WithLabelValues(name),
		depth:     m.queueDepth.WithLabelValues(name),
		published: m.eventsPublished.WithLabelValues(name),
		failures:  m.publishFailures.WithLabelValues(name),
		duration:  m.publishDuration.WithLabelValues(name),
		connectOK: m.connectAttempts.WithLabelValues(name, StatusSuccess),
		connectKO: m.connectAttempts.WithLabelValues(name, StatusError),
		ready:     m.sessionReady.WithLabelValues(name),
	}
}

// Remove deletes the series of the named publisher.
func (m *Metrics) Remove(name string) {
	if m == nil {
		return
	}
	for _, v := range []*prometheus.MetricVec{
		m.eventsReceived.MetricVec,
		m.eventsDropped.MetricVec,
		m.eventsRequeued.MetricVec,
		m.eventsLost.MetricVec,
		m.queueDepth.MetricVec,
		m.eventsPublished.MetricVec,
		m.publishFailures.MetricVec,
		m.publishDuration.MetricVec,
		m.connectAttempts.MetricVec,
		m.sessionReady.MetricVec,
	} {
		v.DeletePartialMatch(prometheus.Labels{"publisher": name})
	}
}

func (p *Publisher) EventReceived() {
	if p == nil {
		return
	}
	p.received.Inc()
}

func (p *Publisher) EventDropped() {
	if p == nil {
		return
	}
	p.dropped.Inc()
}

func (p *Publisher) EventRequeued() {
	if p == nil {
		return
	}
	p.requeued.Inc()
}

func (p *Publisher) EventLost() {
	if p == nil {
		return
	}
	p.lost.Inc()
}

// SetQueueDepth records the number of queued events.
func (p *Publisher) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.depth.Set(float64(n))
}

// ObserveConnect records a connect attempt outcome.
func (p *Publisher) ObserveConnect(err error) {
	if p == nil {
		return
	}
	if err != nil {
		p.connectKO.Inc()
		return
	}
	p.connectOK.Inc()
}

// ObservePublish records a publish outcome and its duration.
func (p *Publisher) ObservePublish(d time.Duration, err error) {
	if p == nil {
		return
	}
	p.duration.Observe(d.Seconds())
	if err != nil {
		p.failures.Inc()
		return
	}
	p.published.Inc()
}

func (p *Publisher) SetReady(ready bool) {
	if p == nil {
		return
	}
	if ready {
		p.ready.Set(1)
		return
	}
	p.ready.Set(0)
}
