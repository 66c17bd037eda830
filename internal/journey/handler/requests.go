package handler

// Request bodies for the journey endpoints. Validation tags are enforced by
// the shared validator instance before any service call.

type beginJourneyRequest struct {
	Requirements          string `json:"requirements" validate:"required"`
	PostSignInDestination string `json:"post_sign_in_destination" validate:"required,max=2048"`
}

type submitEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

type verifyEmailRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type submitOfficialNameRequest struct {
	FirstName         string `json:"first_name" validate:"required,max=200"`
	LastName          string `json:"last_name" validate:"required,max=200"`
	HasPreviousName   bool   `json:"has_previous_name"`
	PreviousFirstName string `json:"previous_first_name" validate:"max=200"`
	PreviousLastName  string `json:"previous_last_name" validate:"max=200"`
}

type submitDateOfBirthRequest struct {
	// ISO date, e.g. 1990-03-14.
	DateOfBirth string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
}

type submitMobileNumberRequest struct {
	MobileNumber string `json:"mobile_number" validate:"omitempty,e164"`
}

type submitStatedTRNRequest struct {
	// Empty clears a previously stated value.
	TRN string `json:"trn" validate:"max=20"`
}

type submitNINumberRequest struct {
	NationalInsuranceNumber string `json:"national_insurance_number" validate:"max=20"`
}

type submitAwardedQualificationRequest struct {
	Awarded *bool `json:"awarded" validate:"required"`
}
