package handler

import (
	"idverify/internal/journey/models"
	pinmodels "idverify/internal/pin/models"
)

type journeyResponse struct {
	JourneyID       string  `json:"journey_id"`
	Requirements    string  `json:"requirements"`
	Email           string  `json:"email,omitempty"`
	EmailVerified   bool    `json:"email_verified"`
	FirstName       string  `json:"first_name,omitempty"`
	LastName        string  `json:"last_name,omitempty"`
	DateOfBirth     string  `json:"date_of_birth,omitempty"`
	StatedTRN       *string `json:"stated_trn,omitempty"`
	ResolvedTRN     *string `json:"resolved_trn,omitempty"`
	TRNLookupStatus string  `json:"trn_lookup_status"`
	Complete        bool    `json:"complete"`
	FirstTimeUser   bool    `json:"first_time_user"`
	NextHop         string  `json:"next_hop"`
}

func toJourneyResponse(j *models.JourneyState) journeyResponse {
	resp := journeyResponse{
		JourneyID:       j.JourneyID.String(),
		Requirements:    string(j.Requirements),
		Email:           j.Email,
		EmailVerified:   j.EmailVerified,
		FirstName:       j.FirstName,
		LastName:        j.LastName,
		StatedTRN:       j.StatedTRN,
		ResolvedTRN:     j.ResolvedTRN,
		TRNLookupStatus: string(j.TRNLookupStatus),
		Complete:        j.Complete,
		FirstTimeUser:   j.FirstTimeUser,
		NextHop:         j.NextHop(),
	}
	if j.DateOfBirth != nil {
		resp.DateOfBirth = j.DateOfBirth.Format("2006-01-02")
	}
	return resp
}

type verifyEmailResponse struct {
	Verified       bool     `json:"verified"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
	CodeResent     bool     `json:"code_resent"`
	NextHop        string   `json:"next_hop"`
}

func toVerifyEmailResponse(j *models.JourneyState, reasons pinmodels.VerifyFailedReasons) verifyEmailResponse {
	resp := verifyEmailResponse{
		Verified:   reasons.OK(),
		CodeResent: reasons.Has(pinmodels.VerifyFailedExpiredRecently),
		NextHop:    j.NextHop(),
	}
	if !reasons.OK() {
		for _, flag := range []pinmodels.VerifyFailedReasons{
			pinmodels.VerifyFailedUnknown,
			pinmodels.VerifyFailedExpired,
			pinmodels.VerifyFailedExpiredRecently,
			pinmodels.VerifyFailedNotActive,
		} {
			if reasons.Has(flag) {
				resp.FailureReasons = append(resp.FailureReasons, flag.String())
			}
		}
	}
	return resp
}

type nextHopResponse struct {
	NextHop  string `json:"next_hop"`
	Complete bool   `json:"complete"`
}

type handoffResponse struct {
	Assertion string `json:"assertion"`
}
