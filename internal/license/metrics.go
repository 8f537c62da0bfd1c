package license

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	keysIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyserve",
		Name:      "keys_issued_total",
		Help:      "Number of license keys generated.",
	})

	keysRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyserve",
		Name:      "keys_revoked_total",
		Help:      "Number of license keys revoked.",
	})

	activationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keyserve",
		Name:      "activations_total",
		Help:      "Activation attempts by outcome.",
	}, []string{"outcome"})

	validityChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keyserve",
		Name:      "validity_checks_total",
		Help:      "Validity checks by result.",
	}, []string{"result"})

	grantExtensionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "keyserve",
		Name:      "grant_extensions_total",
		Help:      "Successful account grant extensions.",
	})
)
