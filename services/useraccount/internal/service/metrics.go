package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RequestsCreated       *prometheus.CounterVec
	RequestsCancelled     *prometheus.CounterVec
	DealsApplied          *prometheus.CounterVec
	SettlementsAuthorized *prometheus.CounterVec
	Deposits              *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "useraccount_unlock_requests_total",
				Help: "Total unlock requests created.",
			},
			[]string{"status"},
		),
		RequestsCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "useraccount_request_cancels_total",
				Help: "Total unlock request cancellations.",
			},
			[]string{"status"},
		),
		DealsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "useraccount_deals_applied_total",
				Help: "Total accepted deals applied to user ledgers.",
			},
			[]string{"status"},
		),
		SettlementsAuthorized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "useraccount_settlements_authorized_total",
				Help: "Total settlement authorizations.",
			},
			[]string{"status"},
		),
		Deposits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "useraccount_deposits_total",
				Help: "Total faucet deposits.",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.RequestsCreated,
		m.RequestsCancelled,
		m.DealsApplied,
		m.SettlementsAuthorized,
		m.Deposits,
	)
	return m
}

func (m *Metrics) IncRequestCreated(status string) {
	if m == nil {
		return
	}
	m.RequestsCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) IncRequestCancelled(status string) {
	if m == nil {
		return
	}
	m.RequestsCancelled.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDealApplied(status string) {
	if m == nil {
		return
	}
	m.DealsApplied.WithLabelValues(status).Inc()
}

func (m *Metrics) IncSettlementAuthorized(status string) {
	if m == nil {
		return
	}
	m.SettlementsAuthorized.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDeposit(status string) {
	if m == nil {
		return
	}
	m.Deposits.WithLabelValues(status).Inc()
}
