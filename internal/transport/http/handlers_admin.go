package httptransport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ballotbox/internal/election"
	"ballotbox/internal/platform/middleware"
	"ballotbox/internal/voter"
	voterService "ballotbox/internal/voter/service"
)

// ElectionService drives the election lifecycle.
type ElectionService interface {
	Create(ctx context.Context, title, description string) (*election.Election, error)
	Get(ctx context.Context, id string) (*election.Election, error)
	Open(ctx context.Context, id string) (*election.Election, error)
	Close(ctx context.Context, id string) (*election.Election, error)
}

// VoterService manages the voter roll and identity token issuance.
type VoterService interface {
	Add(ctx context.Context, electionID, email string) (*voter.Record, error)
	ImportCSV(ctx context.Context, electionID string, r io.Reader) (*voterService.ImportResult, error)
	IssueTokens(ctx context.Context, electionID string, ttl time.Duration) ([]voterService.IssuedToken, error)
	List(ctx context.Context, electionID string) ([]*voter.Record, error)
}

type electionResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func toElectionResponse(e *election.Election) electionResponse {
	return electionResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt,
		OpenedAt:    e.OpenedAt,
		ClosedAt:    e.ClosedAt,
	}
}

type createElectionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (h *Handler) CreateElection(w http.ResponseWriter, r *http.Request) {
	var req createElectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	e, err := h.elections.Create(r.Context(), req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "election created by organiser",
		"organiser_id", middleware.GetOrganiserID(r.Context()),
		"election_id", e.ID,
	)
	writeJSON(w, http.StatusCreated, toElectionResponse(e))
}

func (h *Handler) GetElection(w http.ResponseWriter, r *http.Request) {
	e, err := h.elections.Get(r.Context(), chi.URLParam(r, "electionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toElectionResponse(e))
}

func (h *Handler) OpenElection(w http.ResponseWriter, r *http.Request) {
	e, err := h.elections.Open(r.Context(), chi.URLParam(r, "electionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toElectionResponse(e))
}

func (h *Handler) CloseElection(w http.ResponseWriter, r *http.Request) {
	e, err := h.elections.Close(r.Context(), chi.URLParam(r, "electionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toElectionResponse(e))
}

type addVoterRequest struct {
	Email string `json:"email"`
}

type voterResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	HasVoted  bool   `json:"has_voted"`
	HasToken  bool   `json:"has_token"`
	CreatedAt string `json:"created_at"`
}

func toVoterResponse(v *voter.Record) voterResponse {
	return voterResponse{
		ID:        v.ID,
		Email:     v.Email,
		Status:    string(v.Status),
		HasVoted:  v.HasVoted,
		HasToken:  v.HasToken(),
		CreatedAt: v.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) AddVoter(w http.ResponseWriter, r *http.Request) {
	var req addVoterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.voters.Add(r.Context(), chi.URLParam(r, "electionID"), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVoterResponse(record))
}

// ImportVoters accepts a CSV body with an email column.
func (h *Handler) ImportVoters(w http.ResponseWriter, r *http.Request) {
	result, err := h.voters.ImportCSV(r.Context(), chi.URLParam(r, "electionID"), r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"added":   result.Added,
		"skipped": result.Skipped,
	})
}

type issuedTokenResponse struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueTokens mints identity tokens for voters that have none. The raw
// tokens appear in this response and nowhere else.
func (h *Handler) IssueTokens(w http.ResponseWriter, r *http.Request) {
	issued, err := h.voters.IssueTokens(r.Context(), chi.URLParam(r, "electionID"), h.identityTTL)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]issuedTokenResponse, 0, len(issued))
	for _, t := range issued {
		out = append(out, issuedTokenResponse{Email: t.Email, Token: t.Token, ExpiresAt: t.ExpiresAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

func (h *Handler) ListVoters(w http.ResponseWriter, r *http.Request) {
	records, err := h.voters.List(r.Context(), chi.URLParam(r, "electionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]voterResponse, 0, len(records))
	for _, v := range records {
		out = append(out, toVoterResponse(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"voters": out})
}
