package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Matches       *prometheus.CounterVec
	MatchDuration prometheus.Histogram
	OfferUpdates  *prometheus.CounterVec
	SnapshotSize  prometheus.Gauge
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Matches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matching_requests_total",
				Help: "Total unlock requests run through the engine.",
			},
			[]string{"status"},
		),
		MatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "matching_request_duration_seconds",
				Help:    "Engine match attempt duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		OfferUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "matching_offer_updates_total",
				Help: "Total offer snapshot updates.",
			},
			[]string{"op"},
		),
		SnapshotSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "matching_snapshot_offers",
				Help: "Offers currently in the engine snapshot.",
			},
		),
	}

	registry.MustRegister(m.Matches, m.MatchDuration, m.OfferUpdates, m.SnapshotSize)
	return m
}

func (m *Metrics) IncMatch(status string) {
	if m == nil {
		return
	}
	m.Matches.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveMatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.MatchDuration.Observe(seconds)
}

func (m *Metrics) IncOfferUpdate(op string) {
	if m == nil {
		return
	}
	m.OfferUpdates.WithLabelValues(op).Inc()
}

func (m *Metrics) SetSnapshotSize(n int) {
	if m == nil {
		return
	}
	m.SnapshotSize.Set(float64(n))
}
