package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	journeyservice "idverify/internal/journey/service"
	"idverify/internal/journey/store"
	pinservice "idverify/internal/pin/service"
	pinStore "idverify/internal/pin/store"
	rlservice "idverify/internal/ratelimit/service"
	counterStore "idverify/internal/ratelimit/store/counter"
	"idverify/internal/resolve"
)

// stubEngine returns a fixed lookup outcome.
type stubEngine struct {
	trn    *string
	status resolve.LookupStatus
}

func (e *stubEngine) Lookup(context.Context, resolve.LookupInput) (*string, resolve.LookupStatus, error) {
	return e.trn, e.status, nil
}

// capturingSender keeps the last delivered code for the test to submit.
type capturingSender struct {
	lastCode string
}

func (c *capturingSender) Deliver(_ context.Context, _, code string) error {
	c.lastCode = code
	return nil
}

type HandlerSuite struct {
	suite.Suite
	router http.Handler
	engine *stubEngine
	sender *capturingSender
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.engine = &stubEngine{status: resolve.StatusNone}
	s.sender = &capturingSender{}

	counters := counterStore.NewInMemoryCounterStore()
	limiter, err := rlservice.New(counters)
	s.Require().NoError(err)

	pins, err := pinservice.New(pinStore.NewInMemoryCodeStore(), limiter, s.sender)
	s.Require().NoError(err)

	svc, err := journeyservice.New(store.NewInMemoryJourneyStore(), pins, s.engine)
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:52100"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) beginJourney(requirements string) journeyResponse {
	rec := s.do(http.MethodPost, "/journeys", beginJourneyRequest{
		Requirements:          requirements,
		PostSignInDestination: "/oauth/authorize/resume",
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var resp journeyResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func (s *HandlerSuite) TestBeginJourney() {
	resp := s.beginJourney("email_only")
	s.NotEmpty(resp.JourneyID)
	s.Equal("email_only", resp.Requirements)
	s.Contains(resp.NextHop, "/sign-in/email?journey_id=")
}

func (s *HandlerSuite) TestBeginJourneyRejectsUnknownRequirements() {
	rec := s.do(http.MethodPost, "/journeys", beginJourneyRequest{
		Requirements:          "everything",
		PostSignInDestination: "/dest",
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestBeginJourneyInvalidJSON() {
	req := httptest.NewRequest(http.MethodPost, "/journeys", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestGetUnknownJourney() {
	rec := s.do(http.MethodGet, "/journeys/2b3c6f34-1111-4e4e-9f9f-000000000000", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestGetMalformedJourneyID() {
	rec := s.do(http.MethodGet, "/journeys/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestEmailFlowOverHTTP() {
	journey := s.beginJourney("email_only")
	base := "/journeys/" + journey.JourneyID

	rec := s.do(http.MethodPost, base+"/email", submitEmailRequest{Email: "user@example.com"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Require().NotEmpty(s.sender.lastCode)

	rec = s.do(http.MethodPost, base+"/email/verify", verifyEmailRequest{Code: s.sender.lastCode})
	s.Require().Equal(http.StatusOK, rec.Code)
	var verified verifyEmailResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&verified))
	s.True(verified.Verified)
	s.Equal("/oauth/authorize/resume", verified.NextHop)

	rec = s.do(http.MethodGet, base+"/next", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var next nextHopResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&next))
	s.True(next.Complete)
	s.Equal("/oauth/authorize/resume", next.NextHop)
}

func (s *HandlerSuite) TestWrongCodeReportsReasons() {
	journey := s.beginJourney("email_only")
	base := "/journeys/" + journey.JourneyID

	rec := s.do(http.MethodPost, base+"/email", submitEmailRequest{Email: "user@example.com"})
	s.Require().Equal(http.StatusOK, rec.Code)

	wrong := "000001"
	if s.sender.lastCode == wrong {
		wrong = "000002"
	}
	rec = s.do(http.MethodPost, base+"/email/verify", verifyEmailRequest{Code: wrong})
	s.Require().Equal(http.StatusOK, rec.Code)
	var verified verifyEmailResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&verified))
	s.False(verified.Verified)
	s.Contains(verified.FailureReasons, "unknown")
}

func (s *HandlerSuite) TestVerificationRateLimitReturns429() {
	journey := s.beginJourney("email_only")
	base := "/journeys/" + journey.JourneyID

	rec := s.do(http.MethodPost, base+"/email", submitEmailRequest{Email: "user@example.com"})
	s.Require().Equal(http.StatusOK, rec.Code)

	// Default verification limit is 10 per window; burn it with wrong codes.
	for i := range 10 {
		code := fmt.Sprintf("%06d", 900000+i)
		if code == s.sender.lastCode {
			code = "899999"
		}
		rec = s.do(http.MethodPost, base+"/email/verify", verifyEmailRequest{Code: code})
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	rec = s.do(http.MethodPost, base+"/email/verify", verifyEmailRequest{Code: s.sender.lastCode})
	s.Equal(http.StatusTooManyRequests, rec.Code)
}

func (s *HandlerSuite) TestTRNLookupOverHTTP() {
	trn := "1234567"
	s.engine.trn = &trn
	s.engine.status = resolve.StatusFound

	journey := s.beginJourney("trn_resolution")
	base := "/journeys/" + journey.JourneyID

	rec := s.do(http.MethodPost, base+"/email", submitEmailRequest{Email: "user@example.com"})
	s.Require().Equal(http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, base+"/email/verify", verifyEmailRequest{Code: s.sender.lastCode})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, base+"/official-name", submitOfficialNameRequest{
		FirstName: "Jo", LastName: "Smith",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, base+"/date-of-birth", submitDateOfBirthRequest{DateOfBirth: "1990-03-14"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/trn-lookup", nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp journeyResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("found", resp.TRNLookupStatus)
	s.Require().NotNil(resp.ResolvedTRN)
	s.Equal(trn, *resp.ResolvedTRN)
	s.Equal("/oauth/authorize/resume", resp.NextHop)
}

func (s *HandlerSuite) TestDateOfBirthValidation() {
	journey := s.beginJourney("trn_resolution")
	rec := s.do(http.MethodPost, "/journeys/"+journey.JourneyID+"/date-of-birth",
		submitDateOfBirthRequest{DateOfBirth: "14/03/1990"})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestFutureDateOfBirthRejected() {
	journey := s.beginJourney("trn_resolution")
	future := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	rec := s.do(http.MethodPost, "/journeys/"+journey.JourneyID+"/date-of-birth",
		submitDateOfBirthRequest{DateOfBirth: future})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestHandoffWithoutSignerConfigured() {
	journey := s.beginJourney("email_only")
	rec := s.do(http.MethodPost, "/journeys/"+journey.JourneyID+"/handoff", nil)
	s.Equal(http.StatusInternalServerError, rec.Code)
}
