package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReconDecisions counts applied reconciliation outcomes by decision.
	ReconDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_decisions_total",
		Help: "Reconciliation outcomes by decision",
	}, []string{"decision"})

	// GatewayVerifications counts completed verification runs by final status.
	GatewayVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_verifications_total",
		Help: "Gateway verification runs by final status",
	}, []string{"status"})

	// GatewayAttempts counts individual gateway status calls by raw outcome.
	GatewayAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_status_attempts_total",
		Help: "Individual gateway status calls by outcome",
	}, []string{"outcome"})

	// RunningJobs tracks detection/sync jobs currently in flight.
	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recon_jobs_running",
		Help: "Detection and sync jobs currently running",
	})
)
