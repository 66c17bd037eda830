package resolve

import "time"

// LookupStatus is the outcome classification of a registry lookup.
type LookupStatus string

const (
	// StatusNone: no registry record and no claim that one exists.
	StatusNone LookupStatus = "none"
	// StatusPending: the record likely exists but could not be matched
	// automatically; requires manual follow-up.
	StatusPending LookupStatus = "pending"
	// StatusFound: exactly one unambiguous registry record matched.
	StatusFound LookupStatus = "found"
)

// IsValid checks if the status is one of the supported enum values.
func (s LookupStatus) IsValid() bool {
	switch s {
	case StatusNone, StatusPending, StatusFound:
		return true
	}
	return false
}

// Query carries the normalized facts sent to the external registry.
type Query struct {
	FirstName               string     `json:"firstName"`
	LastName                string     `json:"lastName"`
	PreviousFirstName       string     `json:"previousFirstName,omitempty"`
	PreviousLastName        string     `json:"previousLastName,omitempty"`
	DateOfBirth             *time.Time `json:"dateOfBirth,omitempty"`
	NationalInsuranceNumber string     `json:"nationalInsuranceNumber,omitempty"`
	Email                   string     `json:"emailAddress,omitempty"`
	StatedTRN               string     `json:"trn,omitempty"`
	// MatchStrictness optionally relaxes or tightens registry-side matching.
	MatchStrictness string `json:"trnMatchPolicy,omitempty"`
}

// Candidate is one registry record returned for a query.
type Candidate struct {
	TRN                     string    `json:"trn"`
	FirstName               string    `json:"firstName"`
	LastName                string    `json:"lastName"`
	DateOfBirth             time.Time `json:"dateOfBirth"`
	EmailAddresses          []string  `json:"emailAddresses"`
	NationalInsuranceNumber string    `json:"nationalInsuranceNumber"`
	ActiveSanctions         bool      `json:"activeSanctions"`
}
