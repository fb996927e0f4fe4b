// Package metrics provides a Prometheus implementation of
// relay.MetricsProvider.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zoobzio/relay"
)

// Config configures the Prometheus provider.
type Config struct {
	// Namespace is the metrics namespace (default: "relay").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for notification duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus provider.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "relay",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Prometheus records relay activity as Prometheus metrics, labelled by the
// subject name set with Name. One Prometheus value can be shared by any
// number of subjects.
//
// Metrics collected:
//   - relay_notifications_total: Counter of notification passes by subject
//   - relay_observers_notified_total: Counter of observer calls by subject
//   - relay_notify_duration_seconds: Histogram of notification pass duration
//   - relay_observer_panics_total: Counter of recovered observer panics
//   - relay_sources: Gauge of registered mediator sources
type Prometheus struct {
	notifications *prometheus.CounterVec
	notified      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	panics        *prometheus.CounterVec
	sources       *prometheus.GaugeVec
}

// NewPrometheus creates and registers the relay metrics.
//
// Example:
//
//	provider := metrics.NewPrometheus(metrics.WithNamespace("myapp"))
//	prices := relay.NewCell[float64]().Name("prices").Metrics(provider)
func NewPrometheus(opts ...Option) *Prometheus {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)
	labels := []string{"subject"}

	return &Prometheus{
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of notification passes",
			ConstLabels: config.ConstLabels,
		}, labels),

		notified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "observers_notified_total",
			Help:        "Total number of observer invocations",
			ConstLabels: config.ConstLabels,
		}, labels),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notify_duration_seconds",
			Help:        "Notification pass duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, labels),

		panics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "observer_panics_total",
			Help:        "Total number of recovered observer panics",
			ConstLabels: config.ConstLabels,
		}, labels),

		sources: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sources",
			Help:        "Number of registered mediator sources",
			ConstLabels: config.ConstLabels,
		}, labels),
	}
}

func (p *Prometheus) OnNotify(subject string, observers int, duration time.Duration) {
	p.notifications.WithLabelValues(subject).Inc()
	p.notified.WithLabelValues(subject).Add(float64(observers))
	p.duration.WithLabelValues(subject).Observe(duration.Seconds())
}

func (p *Prometheus) OnObserverPanic(subject string) {
	p.panics.WithLabelValues(subject).Inc()
}

func (p *Prometheus) OnSourceRegistered(subject string) {
	p.sources.WithLabelValues(subject).Inc()
}

func (p *Prometheus) OnSourceUnregistered(subject string) {
	p.sources.WithLabelValues(subject).Dec()
}

var _ relay.MetricsProvider = (*Prometheus)(nil)
