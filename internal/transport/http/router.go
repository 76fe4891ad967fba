package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ballotbox/internal/platform/metrics"
	"ballotbox/internal/platform/middleware"
)

const requestTimeout = 30 * time.Second

// Handler is the thin HTTP layer. It delegates to domain services and owns
// no business logic beyond request decoding and error translation.
type Handler struct {
	vault       VaultService
	ballots     BallotService
	elections   ElectionService
	voters      VoterService
	ledger      LedgerService
	lockout     LockoutService
	identityTTL time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewHandler(
	vault VaultService,
	ballots BallotService,
	elections ElectionService,
	voters VoterService,
	ledgerSvc LedgerService,
	lockout LockoutService,
	identityTTL time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		vault:       vault,
		ballots:     ballots,
		elections:   elections,
		voters:      voters,
		ledger:      ledgerSvc,
		lockout:     lockout,
		identityTTL: identityTTL,
		metrics:     m,
		logger:      logger,
	}
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NewRouter wires every endpoint. Voter-facing routes authenticate with
// tokens in the request body; organiser routes sit behind the JWT middleware.
func NewRouter(h *Handler, jwtValidator middleware.JWTValidator, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Voter-facing endpoints.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.With(middleware.Latency(m, "identity_validate")).
			Post("/elections/{electionID}/identity-validate", h.IdentityValidate)
		r.With(middleware.Latency(m, "ballot_cast")).
			Post("/elections/{electionID}/ballot-cast", h.BallotCast)
	})
	r.With(middleware.Latency(m, "receipt_verify")).
		Get("/receipts/{token}/verify", h.ReceiptVerify)
	r.With(middleware.Latency(m, "audit_verify")).
		Get("/elections/{electionID}/audit-verify", h.AuditVerify)
	r.With(middleware.Latency(m, "tally")).
		Get("/elections/{electionID}/tally", h.Tally)

	// Organiser endpoints.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOrganiser(jwtValidator, logger))

		// CSV import reads a raw body, so it stays outside the JSON guard.
		r.Post("/elections/{electionID}/voters/import", h.ImportVoters)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON)
			r.Post("/elections", h.CreateElection)
			r.Post("/elections/{electionID}/open", h.OpenElection)
			r.Post("/elections/{electionID}/close", h.CloseElection)
			r.Post("/elections/{electionID}/voters", h.AddVoter)
			r.Post("/elections/{electionID}/tokens/issue", h.IssueTokens)
		})

		r.Get("/elections/{electionID}", h.GetElection)
		r.Get("/elections/{electionID}/voters", h.ListVoters)
		r.Get("/elections/{electionID}/audit-trail", h.AuditTrail)
	})

	return r
}
