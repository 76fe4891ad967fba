package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	IdentityValidations *prometheus.CounterVec
	BallotTokensIssued  prometheus.Counter
	BallotsCast         prometheus.Counter
	ChainVerifications  *prometheus.CounterVec
	LockoutsTriggered   prometheus.Counter
	RequestDuration     *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		IdentityValidations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_identity_validations_total",
			Help: "Identity token validation attempts by outcome",
		}, []string{"outcome"}),
		BallotTokensIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_ballot_tokens_issued_total",
			Help: "Ballot tokens minted after successful authentication",
		}),
		BallotsCast: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_ballots_cast_total",
			Help: "Encrypted ballots durably persisted",
		}),
		ChainVerifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ballotbox_chain_verifications_total",
			Help: "Audit chain verification runs by result",
		}, []string{"result"}),
		LockoutsTriggered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ballotbox_auth_lockouts_total",
			Help: "Authentication lockouts triggered by repeated failures",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ballotbox_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
