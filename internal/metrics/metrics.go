// Package metrics exposes prometheus counters for store writes, change
// signals, mirrored deliveries, bridged tabs and assistant replies.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nexus"

type Metrics struct {
	registry *prometheus.Registry

	storeWrites      *prometheus.CounterVec
	signals          prometheus.Counter
	deliveries       *prometheus.CounterVec
	assistantReplies *prometheus.CounterVec
	assistantLatency prometheus.Histogram
	tabs             prometheus.Gauge
	tabEvents        *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Persisted record writes by family.",
		}, []string{"family"}),
		signals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_signals_total",
			Help:      "Change signals published on the bus.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Mirrored message deliveries by result.",
		}, []string{"result"}),
		assistantReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_replies_total",
			Help:      "Assistant round trips by result.",
		}, []string{"result"}),
		assistantLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assistant_reply_duration_seconds",
			Help:      "Time spent waiting for the completion service.",
			Buckets:   prometheus.DefBuckets,
		}),
		tabs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tabs_open",
			Help:      "Tabs attached to the shared storage origin.",
		}),
		tabEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tab_events_total",
			Help:      "Storage events fanned out to tabs by outcome.",
		}, []string{"outcome"}),
	}
	m.registry.MustRegister(
		m.storeWrites,
		m.signals,
		m.deliveries,
		m.assistantReplies,
		m.assistantLatency,
		m.tabs,
		m.tabEvents,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StoreWrite(family string) {
	if m == nil {
		return
	}
	m.storeWrites.WithLabelValues(family).Inc()
}

func (m *Metrics) Signal() {
	if m == nil {
		return
	}
	m.signals.Inc()
}

func (m *Metrics) Delivery(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) AssistantReply(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.assistantReplies.WithLabelValues(result).Inc()
	m.assistantLatency.Observe(took.Seconds())
}

func (m *Metrics) TabOpened() {
	if m == nil {
		return
	}
	m.tabs.Inc()
}

func (m *Metrics) TabClosed() {
	if m == nil {
		return
	}
	m.tabs.Dec()
}

// TabEvent counts one fan-out attempt; outcome is "sent" or "dropped".
func (m *Metrics) TabEvent(outcome string) {
	if m == nil {
		return
	}
	m.tabEvents.WithLabelValues(outcome).Inc()
}
