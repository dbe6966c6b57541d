package webauthn

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ceremonyTotal counts finished ceremonies by operation ("registration",
// "assertion") and outcome ("success", "failure").
var ceremonyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webauthnrp_ceremony_total",
		Help: "Number of finished WebAuthn ceremonies by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(ceremonyTotal)
}

func recordCeremony(op, outcome string) {
	ceremonyTotal.WithLabelValues(op, outcome).Inc()
}
