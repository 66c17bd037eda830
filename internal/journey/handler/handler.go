// Package handler exposes the journey endpoints over HTTP. It parses and
// validates request bodies, delegates to the journey service, and maps
// outcomes to the shared JSON envelopes; no business logic lives here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"idverify/internal/journey/models"
	pinmodels "idverify/internal/pin/models"
	"idverify/internal/transport/http/shared"
	dErrors "idverify/pkg/domain-errors"
)

// Service defines the journey operations the handler depends on.
type Service interface {
	Begin(ctx context.Context, requirements models.RequirementSet, destination string) (*models.JourneyState, error)
	Get(ctx context.Context, id uuid.UUID) (*models.JourneyState, error)
	SubmitEmail(ctx context.Context, id uuid.UUID, email string) (*models.JourneyState, pinmodels.GenerateFailedReason, error)
	ResendEmailCode(ctx context.Context, id uuid.UUID) (pinmodels.GenerateFailedReason, error)
	VerifyEmail(ctx context.Context, id uuid.UUID, code string) (*models.JourneyState, pinmodels.VerifyFailedReasons, error)
	SubmitOfficialName(ctx context.Context, id uuid.UUID, first, last string, hasPrevious bool, prevFirst, prevLast string) (*models.JourneyState, error)
	SubmitDateOfBirth(ctx context.Context, id uuid.UUID, dob time.Time) (*models.JourneyState, error)
	SubmitMobileNumber(ctx context.Context, id uuid.UUID, number string) (*models.JourneyState, error)
	SubmitStatedTRN(ctx context.Context, id uuid.UUID, value string) (*models.JourneyState, error)
	SubmitNationalInsuranceNumber(ctx context.Context, id uuid.UUID, value string) (*models.JourneyState, error)
	SubmitAwardedQualification(ctx context.Context, id uuid.UUID, awarded bool) (*models.JourneyState, error)
	RunTRNLookup(ctx context.Context, id uuid.UUID) (*models.JourneyState, error)
	AcknowledgeCheckAnswers(ctx context.Context, id uuid.UUID) (*models.JourneyState, error)
	NextHop(ctx context.Context, id uuid.UUID) (string, *models.JourneyState, error)
	Resume(ctx context.Context, id uuid.UUID) (string, error)
	Handoff(ctx context.Context, id uuid.UUID) (string, error)
}

// Handler handles journey endpoints.
type Handler struct {
	journeys Service
	logger   *slog.Logger
	validate *validator.Validate
}

// New creates a new journey Handler.
func New(journeys Service, logger *slog.Logger) *Handler {
	return &Handler{
		journeys: journeys,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register registers the journey routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/journeys", func(r chi.Router) {
		r.Post("/", h.handleBegin)
		r.Route("/{journeyID}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Get("/next", h.handleNextHop)
			r.Post("/email", h.handleSubmitEmail)
			r.Post("/email/resend", h.handleResendEmailCode)
			r.Post("/email/verify", h.handleVerifyEmail)
			r.Post("/official-name", h.handleSubmitOfficialName)
			r.Post("/date-of-birth", h.handleSubmitDateOfBirth)
			r.Post("/mobile-number", h.handleSubmitMobileNumber)
			r.Post("/trn", h.handleSubmitStatedTRN)
			r.Post("/national-insurance-number", h.handleSubmitNINumber)
			r.Post("/awarded-qualification", h.handleSubmitAwardedQualification)
			r.Post("/trn-lookup", h.handleRunTRNLookup)
			r.Post("/check-answers", h.handleAcknowledgeCheckAnswers)
			r.Post("/resume", h.handleResume)
			r.Post("/handoff", h.handleHandoff)
		})
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.logger.WarnContext(r.Context(), "request validation failed", "error", err)
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "request validation failed"))
		return false
	}
	return true
}

func journeyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "journeyID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid journey ID"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) handleBegin(w http.ResponseWriter, r *http.Request) {
	var req beginJourneyRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, err := h.journeys.Begin(r.Context(), models.RequirementSet(req.Requirements), req.PostSignInDestination)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toJourneyResponse(journey))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	journey, err := h.journeys.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleNextHop(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	hop, journey, err := h.journeys.NextHop(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nextHopResponse{NextHop: hop, Complete: journey.IsComplete()})
}

func (h *Handler) handleSubmitEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, reason, err := h.journeys.SubmitEmail(r.Context(), id, req.Email)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if reason == pinmodels.GenerateFailedRateLimitExceeded {
		shared.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many code requests"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleResendEmailCode(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	reason, err := h.journeys.ResendEmailCode(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if reason == pinmodels.GenerateFailedRateLimitExceeded {
		shared.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many code requests"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req verifyEmailRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, reasons, err := h.journeys.VerifyEmail(r.Context(), id, req.Code)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if reasons.Has(pinmodels.VerifyFailedRateLimitExceeded) {
		shared.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many verification attempts"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, toVerifyEmailResponse(journey, reasons))
}

func (h *Handler) handleSubmitOfficialName(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitOfficialNameRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, err := h.journeys.SubmitOfficialName(r.Context(), id,
		req.FirstName, req.LastName, req.HasPreviousName, req.PreviousFirstName, req.PreviousLastName)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleSubmitDateOfBirth(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitDateOfBirthRequest
	if !h.decode(w, r, &req) {
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid date of birth"))
		return
	}

	journey, err := h.journeys.SubmitDateOfBirth(r.Context(), id, dob)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleSubmitMobileNumber(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitMobileNumberRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, err := h.journeys.SubmitMobileNumber(r.Context(), id, req.MobileNumber)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleSubmitStatedTRN(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitStatedTRNRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, err := h.journeys.SubmitStatedTRN(r.Context(), id, req.TRN)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleSubmitNINumber(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitNINumberRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, err := h.journeys.SubmitNationalInsuranceNumber(r.Context(), id, req.NationalInsuranceNumber)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleSubmitAwardedQualification(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	var req submitAwardedQualificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	journey, err := h.journeys.SubmitAwardedQualification(r.Context(), id, *req.Awarded)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleRunTRNLookup(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	journey, err := h.journeys.RunTRNLookup(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "registry lookup did not complete",
			"journey_id", id,
			"error", err,
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleAcknowledgeCheckAnswers(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	journey, err := h.journeys.AcknowledgeCheckAnswers(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toJourneyResponse(journey))
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	dest, err := h.journeys.Resume(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, nextHopResponse{NextHop: dest, Complete: true})
}

func (h *Handler) handleHandoff(w http.ResponseWriter, r *http.Request) {
	id, ok := journeyID(w, r)
	if !ok {
		return
	}
	assertion, err := h.journeys.Handoff(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, handoffResponse{Assertion: assertion})
}
