package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rightsguard",
			Subsystem: "notify",
			Name:      "attempts_total",
			Help:      "Channel delivery attempts by outcome.",
		},
		[]string{"channel", "outcome"},
	)

	undeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rightsguard",
			Subsystem: "notify",
			Name:      "undelivered_contacts_total",
			Help:      "Contacts for which every channel failed.",
		},
	)
)
