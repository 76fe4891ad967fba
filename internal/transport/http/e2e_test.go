package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	ballotService "ballotbox/internal/ballot/service"
	ballotStore "ballotbox/internal/ballot/store"
	electionService "ballotbox/internal/election/service"
	electionStore "ballotbox/internal/election/store"
	"ballotbox/internal/jwtauth"
	"ballotbox/internal/ledger"
	ledgerStore "ballotbox/internal/ledger/store"
	"ballotbox/internal/lockout"
	"ballotbox/internal/platform/logger"
	"ballotbox/internal/platform/metrics"
	"ballotbox/internal/vault"
	vaultStore "ballotbox/internal/vault/store"
	voterService "ballotbox/internal/voter/service"
	voterStore "ballotbox/internal/voter/store"
)

const lockoutAttempts = 5

type E2ESuite struct {
	suite.Suite
	metrics *metrics.Metrics

	server       *httptest.Server
	organiserJWT string
}

func TestE2ESuite(t *testing.T) {
	suite.Run(t, new(E2ESuite))
}

func (s *E2ESuite) SetupSuite() {
	// Prometheus collectors register globally, so they are created once for
	// the whole suite.
	s.metrics = metrics.New()
}

func (s *E2ESuite) SetupTest() {
	log := logger.Discard()

	voters := voterStore.NewMemoryStore()
	tokens := vaultStore.NewMemoryStore()
	ballots := ballotStore.NewMemoryStore()
	elections := electionStore.NewMemoryStore()
	uow := vault.NoopUnitOfWork{}

	ledgerSvc := ledger.NewService(ledgerStore.NewMemoryStore())
	electionSvc := electionService.New(elections, ledgerSvc, log)
	voterSvc := voterService.New(voters, ledgerSvc, log)
	vaultSvc := vault.NewService(voters, tokens, electionSvc, ledgerSvc, uow, log, 24*time.Hour)
	ballotSvc := ballotService.New(ballots, vaultSvc, electionSvc, ledgerSvc, uow, log)
	lockoutSvc := lockout.New(lockout.NewMemoryStore(), log, lockoutAttempts, 15*time.Minute)
	jwtSvc := jwtauth.NewService("test-signing-key", "ballotbox-test")

	handler := NewHandler(vaultSvc, ballotSvc, electionSvc, voterSvc, ledgerSvc, lockoutSvc,
		168*time.Hour, s.metrics, log)
	s.server = httptest.NewServer(NewRouter(handler, jwtSvc, s.metrics, log))

	token, err := jwtSvc.GenerateToken("org-1", "organiser@example.com", time.Hour)
	s.Require().NoError(err)
	s.organiserJWT = token
}

func (s *E2ESuite) TearDownTest() {
	s.server.Close()
}

func (s *E2ESuite) do(method, path, authToken string, body any) (*http.Response, map[string]any) {
	var reader io.Reader
	contentType := "application/json"
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
		contentType = "text/csv"
	default:
		encoded, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if reader != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp, decoded
}

// setupOpenElection creates an election with one voter and returns the
// election id and the voter's raw identity token.
func (s *E2ESuite) setupOpenElection() (string, string) {
	resp, body := s.do(http.MethodPost, "/elections", s.organiserJWT,
		map[string]string{"title": "Board vote"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	electionID := body["id"].(string)

	resp, _ = s.do(http.MethodPost, "/elections/"+electionID+"/voters", s.organiserJWT,
		map[string]string{"email": "ada@example.com"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, body = s.do(http.MethodPost, "/elections/"+electionID+"/tokens/issue", s.organiserJWT,
		map[string]string{})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	issued := body["tokens"].([]any)
	s.Require().Len(issued, 1)
	identityToken := issued[0].(map[string]any)["token"].(string)

	resp, _ = s.do(http.MethodPost, "/elections/"+electionID+"/open", s.organiserJWT, map[string]string{})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	return electionID, identityToken
}

// TestFullVotingFlow drives one voter end to end: token exchange, cast,
// receipt check, audit verification, close, tally.
func (s *E2ESuite) TestFullVotingFlow() {
	electionID, identityToken := s.setupOpenElection()

	// Exchange the identity token for an anonymous ballot token.
	resp, body := s.do(http.MethodPost, "/elections/"+electionID+"/identity-validate", "",
		map[string]string{"identity_token": identityToken})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	ballotToken := body["ballot_token"].(string)
	s.NotEmpty(ballotToken)
	s.NotEqual(identityToken, ballotToken)

	// Cast.
	resp, body = s.do(http.MethodPost, "/elections/"+electionID+"/ballot-cast", "",
		map[string]string{"ballot_token": ballotToken, "choice": "option-a"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	receipt := body["receipt"].(string)
	s.NotEmpty(receipt)

	// Receipt proves the ballot exists, nothing more.
	resp, body = s.do(http.MethodGet, "/receipts/"+receipt+"/verify", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["valid"])
	s.Equal(electionID, body["election_id"])

	// The chain is intact.
	resp, body = s.do(http.MethodGet, "/elections/"+electionID+"/audit-verify", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, body["ok"])

	// Tally is refused while open.
	resp, _ = s.do(http.MethodGet, "/elections/"+electionID+"/tally", "", nil)
	s.Equal(http.StatusConflict, resp.StatusCode)

	// Close and tally.
	resp, _ = s.do(http.MethodPost, "/elections/"+electionID+"/close", s.organiserJWT, map[string]string{})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/elections/"+electionID+"/tally", "", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(1), body["total"])
	s.Equal(float64(1), body["counts"].(map[string]any)["option-a"])

	// The audit trail never links a voter to the cast event.
	resp, body = s.do(http.MethodGet, "/elections/"+electionID+"/audit-trail", s.organiserJWT, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	for _, raw := range body["entries"].([]any) {
		entry := raw.(map[string]any)
		if entry["event_type"] == ledger.EventBallotCast {
			s.Empty(entry["detail"])
		}
	}
}

func (s *E2ESuite) TestIdentityTokenSingleUse() {
	electionID, identityToken := s.setupOpenElection()

	resp, _ := s.do(http.MethodPost, "/elections/"+electionID+"/identity-validate", "",
		map[string]string{"identity_token": identityToken})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, body := s.do(http.MethodPost, "/elections/"+electionID+"/identity-validate", "",
		map[string]string{"identity_token": identityToken})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("already_voted", body["error"])
}

func (s *E2ESuite) TestBallotTokenSingleUse() {
	electionID, identityToken := s.setupOpenElection()

	_, body := s.do(http.MethodPost, "/elections/"+electionID+"/identity-validate", "",
		map[string]string{"identity_token": identityToken})
	ballotToken := body["ballot_token"].(string)

	resp, _ := s.do(http.MethodPost, "/elections/"+electionID+"/ballot-cast", "",
		map[string]string{"ballot_token": ballotToken, "choice": "option-a"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)

	resp, body = s.do(http.MethodPost, "/elections/"+electionID+"/ballot-cast", "",
		map[string]string{"ballot_token": ballotToken, "choice": "option-b"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("already_used", body["error"])
}

func (s *E2ESuite) TestLockoutAfterRepeatedFailures() {
	electionID, _ := s.setupOpenElection()

	for i := 0; i < lockoutAttempts; i++ {
		resp, _ := s.do(http.MethodPost, "/elections/"+electionID+"/identity-validate", "",
			map[string]string{"identity_token": fmt.Sprintf("wrong-token-%d", i)})
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	}

	resp, body := s.do(http.MethodPost, "/elections/"+electionID+"/identity-validate", "",
		map[string]string{"identity_token": "wrong-token-again"})
	s.Equal(http.StatusTooManyRequests, resp.StatusCode)
	s.Equal("rate_limited", body["error"])
}

func (s *E2ESuite) TestOrganiserEndpointsRequireJWT() {
	resp, _ := s.do(http.MethodPost, "/elections", "", map[string]string{"title": "X"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodPost, "/elections", "garbage-token", map[string]string{"title": "X"})
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *E2ESuite) TestCSVImport() {
	resp, body := s.do(http.MethodPost, "/elections", s.organiserJWT,
		map[string]string{"title": "Board vote"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	electionID := body["id"].(string)

	csv := "email\nada@example.com\nbob@example.com\nada@example.com\n"
	resp, body = s.do(http.MethodPost, "/elections/"+electionID+"/voters/import", s.organiserJWT, csv)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(float64(2), body["added"])
	s.Equal(float64(1), body["skipped"])

	resp, body = s.do(http.MethodGet, "/elections/"+electionID+"/voters", s.organiserJWT, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Len(body["voters"].([]any), 2)
}

func (s *E2ESuite) TestCastRequiresOpenElection() {
	resp, body := s.do(http.MethodPost, "/elections", s.organiserJWT,
		map[string]string{"title": "Board vote"})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	electionID := body["id"].(string)

	resp, _ = s.do(http.MethodPost, "/elections/"+electionID+"/ballot-cast", "",
		map[string]string{"ballot_token": "whatever", "choice": "option-a"})
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *E2ESuite) TestHealthz() {
	resp, body := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])
}
