// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the relay. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	WebhooksTotal   *prometheus.CounterVec
	CallbacksTotal  *prometheus.CounterVec
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_webhooks_total",
				Help: "Webhook deliveries by platform and result.",
			},
			[]string{"platform", "result"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_callbacks_total",
				Help: "Crater callbacks by reported status and result.",
			},
			[]string{"status", "result"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_commands_total",
				Help: "Dispatched bot commands by command and result.",
			},
			[]string{"command", "result"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_command_duration_seconds",
				Help:    "Command dispatch duration, including crater calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_errors_total",
				Help: "Errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.WebhooksTotal)
	reg.MustRegister(m.CallbacksTotal)
	reg.MustRegister(m.CommandsTotal)
	reg.MustRegister(m.CommandDuration)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordWebhook increments the webhook counter.
func (m *Metrics) RecordWebhook(platform, result string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(platform, result).Inc()
}

// RecordCallback increments the callback counter.
func (m *Metrics) RecordCallback(status, result string) {
	if m == nil {
		return
	}
	m.CallbacksTotal.WithLabelValues(status, result).Inc()
}

// RecordCommand increments the command counter and records its duration.
func (m *Metrics) RecordCommand(command, result string, seconds float64) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, result).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
