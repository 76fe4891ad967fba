package httptransport

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ballotbox/internal/ballot"
	ballotService "ballotbox/internal/ballot/service"
	"ballotbox/internal/ledger"
	"ballotbox/internal/vault"
	dErrors "ballotbox/pkg/domain-errors"
)

// VaultService exchanges identity tokens for anonymous ballot tokens.
type VaultService interface {
	AuthenticateAndIssue(ctx context.Context, electionID, rawIdentityToken string) (*vault.IssuedBallotToken, error)
}

// BallotService accepts ballots and answers receipt and tally queries.
type BallotService interface {
	Cast(ctx context.Context, electionID, rawBallotToken, choice string) (*ballot.Receipt, error)
	VerifyReceipt(ctx context.Context, rawReceipt string) (*ballotService.VerifiedReceipt, error)
	Tally(ctx context.Context, electionID string) (*ballotService.TallyResult, error)
}

// LockoutService throttles repeated authentication failures per client.
type LockoutService interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

// LedgerService is the audit ledger surface the transport needs.
type LedgerService interface {
	Append(ctx context.Context, electionID, eventType, actorRef, detail string) (*ledger.Event, error)
	VerifyChain(ctx context.Context, electionID string) error
	Trail(ctx context.Context, electionID string) ([]*ledger.Event, error)
}

const transportActor = "http-gateway"

type identityValidateRequest struct {
	IdentityToken string `json:"identity_token"`
}

type identityValidateResponse struct {
	BallotToken string    `json:"ballot_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IdentityValidate exchanges a valid identity token for an anonymous ballot
// token. Failures count toward the per-client lockout and are recorded in
// the audit ledger without identifying the caller.
func (h *Handler) IdentityValidate(w http.ResponseWriter, r *http.Request) {
	electionID := chi.URLParam(r, "electionID")
	ctx := r.Context()

	key := lockoutKey(electionID, clientIP(r))
	if err := h.lockout.Check(ctx, key); err != nil {
		h.metrics.IdentityValidations.WithLabelValues("locked_out").Inc()
		writeError(w, err)
		return
	}

	var req identityValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IdentityToken == "" {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "identity_token is required"))
		return
	}

	issued, err := h.vault.AuthenticateAndIssue(ctx, electionID, req.IdentityToken)
	if err != nil {
		if isAuthFailure(err) {
			h.metrics.IdentityValidations.WithLabelValues("denied").Inc()
			tripped, _ := h.lockout.RecordFailure(ctx, key)
			if tripped {
				h.metrics.LockoutsTriggered.Inc()
			}
			if _, ledgerErr := h.ledger.Append(ctx, electionID, ledger.EventAuthFailed, transportActor, ""); ledgerErr != nil {
				h.logger.ErrorContext(ctx, "record auth failure", "error", ledgerErr)
			}
		}
		writeError(w, err)
		return
	}

	h.metrics.IdentityValidations.WithLabelValues("granted").Inc()
	h.metrics.BallotTokensIssued.Inc()
	_ = h.lockout.Clear(ctx, key)

	writeJSON(w, http.StatusOK, identityValidateResponse{
		BallotToken: issued.Token,
		ExpiresAt:   issued.ExpiresAt,
	})
}

type ballotCastRequest struct {
	BallotToken string `json:"ballot_token"`
	Choice      string `json:"choice"`
}

type ballotCastResponse struct {
	Receipt string    `json:"receipt"`
	CastAt  time.Time `json:"cast_at"`
}

// BallotCast redeems a ballot token and stores the sealed choice.
func (h *Handler) BallotCast(w http.ResponseWriter, r *http.Request) {
	electionID := chi.URLParam(r, "electionID")

	var req ballotCastRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.BallotToken == "" {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "ballot_token is required"))
		return
	}

	receipt, err := h.ballots.Cast(r.Context(), electionID, req.BallotToken, req.Choice)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.BallotsCast.Inc()
	writeJSON(w, http.StatusCreated, ballotCastResponse{
		Receipt: receipt.Token,
		CastAt:  receipt.CastAt,
	})
}

type receiptVerifyResponse struct {
	Valid      bool      `json:"valid"`
	ElectionID string    `json:"election_id"`
	CastAt     time.Time `json:"cast_at"`
}

// ReceiptVerify confirms that a ballot matching the receipt exists.
func (h *Handler) ReceiptVerify(w http.ResponseWriter, r *http.Request) {
	verified, err := h.ballots.VerifyReceipt(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receiptVerifyResponse{
		Valid:      true,
		ElectionID: verified.ElectionID,
		CastAt:     verified.CastAt,
	})
}

type tallyResponse struct {
	ElectionID string         `json:"election_id"`
	Total      int            `json:"total"`
	Counts     map[string]int `json:"counts"`
}

// Tally returns the decrypted counts for a closed election.
func (h *Handler) Tally(w http.ResponseWriter, r *http.Request) {
	result, err := h.ballots.Tally(r.Context(), chi.URLParam(r, "electionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tallyResponse{
		ElectionID: result.ElectionID,
		Total:      result.Total,
		Counts:     result.Counts,
	})
}

// isAuthFailure reports whether the exchange failed because of the presented
// credential rather than the request shape or the platform.
func isAuthFailure(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnauthorized, dErrors.CodeAlreadyVoted, dErrors.CodeExpired:
		return true
	default:
		return false
	}
}

func lockoutKey(electionID, ip string) string {
	return electionID + "|" + ip
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
