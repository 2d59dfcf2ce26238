package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Logins counts login attempts by outcome
	// (success, challenge, failure).
	Logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eoty_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	// Challenges counts issued second-factor challenges by flow
	// (login, register, federated).
	Challenges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eoty_2fa_challenges_total",
		Help: "Second-factor challenges issued by flow.",
	}, []string{"flow"})

	// AlertsRaised counts new anomaly alerts by kind.
	AlertsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eoty_alerts_raised_total",
		Help: "Anomaly alerts raised by kind.",
	}, []string{"kind"})

	// MailDispatches counts outbound mail by transport and outcome.
	MailDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eoty_mail_dispatches_total",
		Help: "Outbound mail dispatches by transport and outcome.",
	}, []string{"transport", "outcome"})
)
