package handlers

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Logins            *prometheus.CounterVec
	Signups           *prometheus.CounterVec
	MFAVerifications  *prometheus.CounterVec
	ThreeDSChallenges *prometheus.CounterVec
	Payments          *prometheus.CounterVec
	RiskScores        prometheus.Histogram
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
		Signups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_signups_total",
				Help: "Signup attempts by result.",
			},
			[]string{"result"},
		),
		MFAVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_mfa_verifications_total",
				Help: "MFA code verifications by result.",
			},
			[]string{"result"},
		),
		ThreeDSChallenges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_threeds_challenges_total",
				Help: "3DS challenges by outcome.",
			},
			[]string{"outcome"},
		),
		Payments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_payments_total",
				Help: "Recorded payment outcomes.",
			},
			[]string{"status", "outcome"},
		),
		RiskScores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "checkout_risk_score",
				Help:    "Distribution of computed risk scores.",
				Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			},
		),
	}

	registry.MustRegister(m.Logins, m.Signups, m.MFAVerifications, m.ThreeDSChallenges, m.Payments, m.RiskScores)
	return m
}

func (h *FlowHandler) countLogin(result string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Logins.WithLabelValues(result).Inc()
}

func (h *FlowHandler) countSignup(result string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Signups.WithLabelValues(result).Inc()
}

func (h *FlowHandler) countMFA(result string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.MFAVerifications.WithLabelValues(result).Inc()
}

func (h *FlowHandler) count3DS(outcome string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.ThreeDSChallenges.WithLabelValues(outcome).Inc()
}

func (h *FlowHandler) countPayment(status, outcome string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.Payments.WithLabelValues(status, outcome).Inc()
}

func (h *FlowHandler) observeRisk(score float64) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.RiskScores.Observe(score)
}
