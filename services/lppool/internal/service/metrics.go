package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OffersCreated       *prometheus.CounterVec
	OffersCancelled     *prometheus.CounterVec
	MatchesAccepted     *prometheus.CounterVec
	SettlementsRecorded *prometheus.CounterVec
	Deposits            *prometheus.CounterVec
	Withdrawals         *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OffersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lppool_offers_created_total",
				Help: "Total LP offers created.",
			},
			[]string{"status"},
		),
		OffersCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lppool_offers_cancelled_total",
				Help: "Total LP offer cancellations.",
			},
			[]string{"status"},
		),
		MatchesAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lppool_matches_accepted_total",
				Help: "Total provisional matches committed on the pool ledger.",
			},
			[]string{"status"},
		),
		SettlementsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lppool_settlements_recorded_total",
				Help: "Total deal settlements recorded.",
			},
			[]string{"status"},
		),
		Deposits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lppool_deposits_total",
				Help: "Total liquidity deposits.",
			},
			[]string{"status"},
		),
		Withdrawals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lppool_withdrawals_total",
				Help: "Total liquidity withdrawals.",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.OffersCreated,
		m.OffersCancelled,
		m.MatchesAccepted,
		m.SettlementsRecorded,
		m.Deposits,
		m.Withdrawals,
	)
	return m
}

func (m *Metrics) IncOfferCreated(status string) {
	if m == nil {
		return
	}
	m.OffersCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) IncOfferCancelled(status string) {
	if m == nil {
		return
	}
	m.OffersCancelled.WithLabelValues(status).Inc()
}

func (m *Metrics) IncMatchAccepted(status string) {
	if m == nil {
		return
	}
	m.MatchesAccepted.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSettlementRecorded(status string) {
	if m == nil {
		return
	}
	m.SettlementsRecorded.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDeposit(status string) {
	if m == nil {
		return
	}
	m.Deposits.WithLabelValues(status).Inc()
}

func (m *Metrics) IncWithdrawal(status string) {
	if m == nil {
		return
	}
	m.Withdrawals.WithLabelValues(status).Inc()
}
