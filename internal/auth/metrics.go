package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons recorded by the Gate.
const (
	ReasonExpired         = "expired"
	ReasonInvalid         = "invalid"
	ReasonStaleVersion    = "stale_version"
	ReasonUnknownIdentity = "unknown_identity"
)

var (
	gateRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_gate_rejections_total",
			Help: "Total number of bearer tokens rejected by the auth gate",
		},
		[]string{"reason"},
	)

	tokenInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_invalidations_total",
			Help: "Total number of token version increments",
		},
		[]string{"cause"},
	)
)
