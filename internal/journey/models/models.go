package models

import (
	"time"

	"github.com/google/uuid"

	"idverify/internal/resolve"
	dErrors "idverify/pkg/domain-errors"
)

// Step paths returned by NextHop. The core never builds absolute URLs; it
// returns a relative destination plus the journey ID as a query parameter.
const (
	StepEmail             = "/sign-in/email"
	StepEmailConfirmation = "/sign-in/email-confirmation"
	StepOfficialName      = "/sign-in/official-name"
	StepDateOfBirth       = "/sign-in/date-of-birth"
	StepTRNLookup         = "/sign-in/trn-lookup"
	StepCheckAnswers      = "/sign-in/check-answers"
)

// Typed failures for mutations against journeys that no longer accept them.
var (
	ErrJourneyClosed  = dErrors.New(dErrors.CodeConflict, "journey is complete and closed to further changes")
	ErrJourneyExpired = dErrors.New(dErrors.CodeConflict, "journey has expired")
)

// RequirementSet names the journey variant: which attributes this journey must
// collect before completion. Fixed at creation; a closed set, not a hierarchy.
type RequirementSet string

const (
	// RequirementEmailOnly: verify an email address, nothing else.
	RequirementEmailOnly RequirementSet = "email_only"
	// RequirementTRNResolution: verify email and resolve the user's registry
	// identifier from name, date of birth and optional stated identifiers.
	RequirementTRNResolution RequirementSet = "trn_resolution"
	// RequirementStaffAccount: as RequirementTRNResolution, for staff-type
	// accounts.
	RequirementStaffAccount RequirementSet = "staff_account"
)

// IsValid checks if the requirement set is one of the supported variants.
func (r RequirementSet) IsValid() bool {
	switch r {
	case RequirementEmailOnly, RequirementTRNResolution, RequirementStaffAccount:
		return true
	}
	return false
}

// RequiresTRNLookup reports whether this variant must resolve a registry
// identifier before completion.
func (r RequirementSet) RequiresTRNLookup() bool {
	return r == RequirementTRNResolution || r == RequirementStaffAccount
}

// ExpiryBasis selects which timestamp anchors journey expiry.
type ExpiryBasis string

const (
	ExpiryBasisLastAccessed ExpiryBasis = "last_accessed"
	ExpiryBasisCreated      ExpiryBasis = "created"
)

// ExpiryPolicy decides when a journey becomes unusable.
type ExpiryPolicy struct {
	Basis  ExpiryBasis
	Window time.Duration
}

// Expired reports whether the journey's age exceeds the window.
func (p ExpiryPolicy) Expired(j *JourneyState, now time.Time) bool {
	anchor := j.LastAccessedAt
	if p.Basis == ExpiryBasisCreated {
		anchor = j.CreatedAt
	}
	return now.Sub(anchor) > p.Window
}

// ExistingIdentity carries facts from a previously known account, used to seed
// a journey for a returning user.
type ExistingIdentity struct {
	UserID                  uuid.UUID
	Email                   string
	FirstName               string
	MiddleName              string
	LastName                string
	DateOfBirth             *time.Time
	MobileNumber            string
	NationalInsuranceNumber string
	TRN                     *string
}

// JourneyState tracks one end-to-end sign-in/verification attempt. Mutation
// happens exclusively through the methods below, one field group at a time;
// callers never reach into fields to write them.
type JourneyState struct {
	JourneyID    uuid.UUID      `json:"journey_id"`
	Requirements RequirementSet `json:"requirements"`

	Email                   string     `json:"email,omitempty"`
	EmailVerified           bool       `json:"email_verified"`
	MobileNumber            string     `json:"mobile_number,omitempty"`
	FirstName               string     `json:"first_name,omitempty"`
	MiddleName              string     `json:"middle_name,omitempty"`
	LastName                string     `json:"last_name,omitempty"`
	HasPreviousName         bool       `json:"has_previous_name"`
	PreviousFirstName       string     `json:"previous_first_name,omitempty"`
	PreviousLastName        string     `json:"previous_last_name,omitempty"`
	DateOfBirth             *time.Time `json:"date_of_birth,omitempty"`
	StatedTRN               *string    `json:"stated_trn,omitempty"`
	NationalInsuranceNumber string     `json:"national_insurance_number,omitempty"`
	AwardedQualification    *bool      `json:"awarded_qualification,omitempty"`

	ResolvedTRN     *string              `json:"resolved_trn,omitempty"`
	TRNLookupStatus resolve.LookupStatus `json:"trn_lookup_status"`
	ResolvedUserID  *uuid.UUID           `json:"resolved_user_id,omitempty"`

	HasCompletedTRNLookup       bool `json:"has_completed_trn_lookup"`
	HasAcknowledgedCheckAnswers bool `json:"has_acknowledged_check_answers"`
	Complete                    bool `json:"complete"`
	FirstTimeUser               bool `json:"first_time_user"`

	CreatedAt             time.Time `json:"created_at"`
	LastAccessedAt        time.Time `json:"last_accessed_at"`
	PostSignInDestination string    `json:"post_sign_in_destination"`

	// Version supports optimistic concurrency in stores: two racing writers
	// for the same journey cannot silently lose an update.
	Version int `json:"version"`
}

// New creates a journey with its requirement set fixed for life.
func New(requirements RequirementSet, destination string, firstTimeUser bool, now time.Time) (*JourneyState, error) {
	if !requirements.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown requirement set %q", requirements)
	}
	if destination == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "post sign-in destination is required")
	}
	return &JourneyState{
		JourneyID:             uuid.New(),
		Requirements:          requirements,
		TRNLookupStatus:       resolve.StatusNone,
		FirstTimeUser:         firstTimeUser,
		CreatedAt:             now,
		LastAccessedAt:        now,
		PostSignInDestination: destination,
	}, nil
}

// guardOpen rejects fact mutation once the journey is complete. Expiry is
// checked by the service at load time, before any mutator runs.
func (j *JourneyState) guardOpen() error {
	if j.Complete {
		return ErrJourneyClosed
	}
	return nil
}

func (j *JourneyState) touch(now time.Time) {
	j.LastAccessedAt = now
}

// Populate seeds facts from a previously known account. The seeded email
// counts as verified, and a carried registry identifier counts as resolved.
// The FirstTimeUser flag set by the caller at creation is never overwritten.
func (j *JourneyState) Populate(identity ExistingIdentity, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if identity.Email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "existing identity has no email")
	}

	j.Email = identity.Email
	j.EmailVerified = true
	j.FirstName = identity.FirstName
	j.MiddleName = identity.MiddleName
	j.LastName = identity.LastName
	j.DateOfBirth = identity.DateOfBirth
	j.MobileNumber = identity.MobileNumber
	j.NationalInsuranceNumber = identity.NationalInsuranceNumber

	userID := identity.UserID
	j.ResolvedUserID = &userID

	if identity.TRN != nil && *identity.TRN != "" {
		trn := *identity.TRN
		j.ResolvedTRN = &trn
		j.TRNLookupStatus = resolve.StatusFound
		j.HasCompletedTRNLookup = true
	}

	j.touch(now)
	return nil
}

// SetEmail records the claimed email. Changing the address invalidates any
// earlier confirmation.
func (j *JourneyState) SetEmail(email string, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "email is required")
	}
	if email != j.Email {
		j.EmailVerified = false
	}
	j.Email = email
	j.touch(now)
	return nil
}

// MarkEmailVerified confirms ownership of the claimed email. Rejected when no
// email has been set: verified-without-address is an invalid state.
func (j *JourneyState) MarkEmailVerified(now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if j.Email == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "cannot verify email before one is set")
	}
	j.EmailVerified = true
	j.touch(now)
	return nil
}

// SetMobileNumber records the optional phone number.
func (j *JourneyState) SetMobileNumber(number string, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	j.MobileNumber = number
	j.touch(now)
	return nil
}

// SetOfficialName records the user's official name, optionally with a
// previous name for registry matching.
func (j *JourneyState) SetOfficialName(first, last string, hasPrevious bool, prevFirst, prevLast string, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if first == "" || last == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "first and last name are required")
	}
	j.FirstName = first
	j.LastName = last
	j.HasPreviousName = hasPrevious
	if hasPrevious {
		j.PreviousFirstName = prevFirst
		j.PreviousLastName = prevLast
	} else {
		j.PreviousFirstName = ""
		j.PreviousLastName = ""
	}
	j.touch(now)
	return nil
}

// SetDateOfBirth records the user's date of birth.
func (j *JourneyState) SetDateOfBirth(dob time.Time, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if dob.After(now) {
		return dErrors.New(dErrors.CodeInvalidInput, "date of birth cannot be in the future")
	}
	d := dob
	j.DateOfBirth = &d
	j.touch(now)
	return nil
}

// SetStatedTRN records the registry identifier the user asserts is theirs.
// An empty value clears the assertion ("I don't have one").
func (j *JourneyState) SetStatedTRN(value string, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if value == "" {
		j.StatedTRN = nil
	} else {
		v := value
		j.StatedTRN = &v
	}
	j.touch(now)
	return nil
}

// SetNationalInsuranceNumber records the user's NI number as given; the
// resolution engine normalizes it before querying.
func (j *JourneyState) SetNationalInsuranceNumber(value string, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	j.NationalInsuranceNumber = value
	j.touch(now)
	return nil
}

// SetAwardedQualification records the user's self-reported answer to whether
// they have been awarded the qualification.
func (j *JourneyState) SetAwardedQualification(awarded bool, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	a := awarded
	j.AwardedQualification = &a
	j.touch(now)
	return nil
}

// CompleteTRNLookup applies the outcome of a registry lookup. Any stale prior
// resolution is cleared first; repeated lookups never accumulate. The
// resolved TRN is present exactly when the status is Found.
func (j *JourneyState) CompleteTRNLookup(trn *string, status resolve.LookupStatus, now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	if !status.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown lookup status %q", status)
	}
	if (status == resolve.StatusFound) != (trn != nil && *trn != "") {
		return dErrors.New(dErrors.CodeInvalidInput, "resolved TRN must be present exactly when status is Found")
	}

	j.ResolvedTRN = nil
	if status == resolve.StatusFound {
		v := *trn
		j.ResolvedTRN = &v
	}
	j.TRNLookupStatus = status
	j.HasCompletedTRNLookup = true
	j.touch(now)
	return nil
}

// ClearTRNResolution drops any prior resolution without marking the lookup
// step attempted. Used when an external call is cancelled mid-flight so the
// journey never claims a lookup succeeded.
func (j *JourneyState) ClearTRNResolution(now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	j.ResolvedTRN = nil
	j.TRNLookupStatus = resolve.StatusNone
	j.HasCompletedTRNLookup = false
	j.touch(now)
	return nil
}

// AcknowledgeCheckAnswers records that the user has seen the check-answers
// page for a lookup needing manual follow-up.
func (j *JourneyState) AcknowledgeCheckAnswers(now time.Time) error {
	if err := j.guardOpen(); err != nil {
		return err
	}
	j.HasAcknowledgedCheckAnswers = true
	j.touch(now)
	return nil
}

// MarkComplete closes the journey once its requirements are satisfied.
func (j *JourneyState) MarkComplete(now time.Time) error {
	if !j.RequirementsSatisfied() {
		return dErrors.New(dErrors.CodeInvalidInput, "journey requirements are not yet satisfied")
	}
	j.Complete = true
	j.touch(now)
	return nil
}

// ResumeCompleted re-validates completeness for a returning user on a closed
// journey. It never mutates facts; the caller uses it purely as a guard
// before redirecting to the protocol continuation.
func (j *JourneyState) ResumeCompleted() error {
	if !j.Complete || !j.RequirementsSatisfied() {
		return dErrors.New(dErrors.CodeInvalidInput, "journey is not complete")
	}
	return nil
}

// RequirementsSatisfied reports whether every requirement implied by the
// requirement set is met, including the check-answers acknowledgement when a
// lookup needs manual follow-up.
func (j *JourneyState) RequirementsSatisfied() bool {
	if j.Email == "" || !j.EmailVerified {
		return false
	}
	if j.Requirements.RequiresTRNLookup() {
		if !j.HasCompletedTRNLookup {
			return false
		}
		if j.TRNLookupStatus == resolve.StatusPending && !j.HasAcknowledgedCheckAnswers {
			return false
		}
	}
	return true
}

// IsComplete reports whether the journey has been closed as complete.
func (j *JourneyState) IsComplete() bool {
	return j.Complete
}

// NextHop returns the destination for the journey's next step: the first
// unmet precondition in a fixed precedence order. It is a pure function of
// current facts, so a partially complete journey always resumes at the same
// step regardless of how it was abandoned.
func (j *JourneyState) NextHop() string {
	switch {
	case j.Email == "":
		return j.stepURL(StepEmail)
	case !j.EmailVerified:
		return j.stepURL(StepEmailConfirmation)
	}

	if j.Requirements.RequiresTRNLookup() && !j.HasCompletedTRNLookup {
		switch {
		case j.FirstName == "" || j.LastName == "":
			return j.stepURL(StepOfficialName)
		case j.DateOfBirth == nil:
			return j.stepURL(StepDateOfBirth)
		default:
			return j.stepURL(StepTRNLookup)
		}
	}

	if j.TRNLookupStatus == resolve.StatusPending && !j.HasAcknowledgedCheckAnswers {
		return j.stepURL(StepCheckAnswers)
	}

	return j.PostSignInDestination
}

func (j *JourneyState) stepURL(path string) string {
	return path + "?journey_id=" + j.JourneyID.String()
}
