package httptransport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotbox/internal/ballot"
	ballotService "ballotbox/internal/ballot/service"
	"ballotbox/internal/election"
	"ballotbox/internal/platform/logger"
	dErrors "ballotbox/pkg/domain-errors"
	"ballotbox/pkg/testutil"
)

type stubBallots struct {
	verified *ballotService.VerifiedReceipt
	tally    *ballotService.TallyResult
	err      error
}

func (s *stubBallots) Cast(context.Context, string, string, string) (*ballot.Receipt, error) {
	return nil, s.err
}

func (s *stubBallots) VerifyReceipt(context.Context, string) (*ballotService.VerifiedReceipt, error) {
	return s.verified, s.err
}

func (s *stubBallots) Tally(context.Context, string) (*ballotService.TallyResult, error) {
	return s.tally, s.err
}

type stubElections struct {
	created *election.Election
	err     error
}

func (s *stubElections) Create(context.Context, string, string) (*election.Election, error) {
	return s.created, s.err
}
func (s *stubElections) Get(context.Context, string) (*election.Election, error) {
	return s.created, s.err
}
func (s *stubElections) Open(context.Context, string) (*election.Election, error) {
	return s.created, s.err
}
func (s *stubElections) Close(context.Context, string) (*election.Election, error) {
	return s.created, s.err
}

func receiptRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/receipts/{token}/verify", h.ReceiptVerify)
	r.Get("/elections/{electionID}/tally", h.Tally)
	r.Post("/elections", h.CreateElection)
	return r
}

func TestReceiptVerifyHandler(t *testing.T) {
	castAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	testutil.Given(t, "a ballot exists for the receipt", func(t *testing.T) {
		h := NewHandler(nil, &stubBallots{
			verified: &ballotService.VerifiedReceipt{ElectionID: "e1", CastAt: castAt},
		}, nil, nil, nil, nil, 0, nil, logger.Discard())

		rr := testutil.DoRequest(receiptRouter(h),
			testutil.NewRequest(t, http.MethodGet, "/receipts/some-token/verify"))

		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"valid":true`)
		assert.Contains(t, rr.Body.String(), `"election_id":"e1"`)
	})

	testutil.Given(t, "the receipt is unknown", func(t *testing.T) {
		h := NewHandler(nil, &stubBallots{
			err: dErrors.New(dErrors.CodeNotFound, "unknown receipt"),
		}, nil, nil, nil, nil, 0, nil, logger.Discard())

		rr := testutil.DoRequest(receiptRouter(h),
			testutil.NewRequest(t, http.MethodGet, "/receipts/bogus/verify"))

		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), `"error":"not_found"`)
	})
}

func TestTallyHandlerErrorMapping(t *testing.T) {
	h := NewHandler(nil, &stubBallots{
		err: dErrors.New(dErrors.CodeConflict, "tally is only available after the election closes"),
	}, nil, nil, nil, nil, 0, nil, logger.Discard())

	rr := testutil.DoRequest(receiptRouter(h),
		testutil.NewRequest(t, http.MethodGet, "/elections/e1/tally"))

	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), `"error":"conflict"`)
}

func TestCreateElectionHandler(t *testing.T) {
	e := &election.Election{
		ID:        "e1",
		Title:     "Board vote",
		Status:    election.StatusDraft,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	h := NewHandler(nil, nil, &stubElections{created: e}, nil, nil, nil, 0, nil, logger.Discard())

	req := testutil.NewJSONRequest(t, http.MethodPost, "/elections",
		map[string]string{"title": "Board vote"})
	req = testutil.WithOrganiser(req, "org-1", "organiser@example.com")

	rr := testutil.DoRequest(receiptRouter(h), req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"e1"`)
	// The seal key never leaves the server.
	assert.NotContains(t, rr.Body.String(), "seal")
}
