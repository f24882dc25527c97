package models

import "time"

// API protocol versions understood by the HTTP backend.
const (
	APIVersionV1 = "v1"
	APIVersionV2 = "v2"
)

// DefaultConsentType is sent when the caller does not name one.
const DefaultConsentType = "cookie_banner"

// Jurisdiction describes the privacy regime that applies to the visitor.
type Jurisdiction struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Location is the coarse visitor location resolved by the backend or from headers.
type Location struct {
	CountryCode string `json:"countryCode,omitempty"`
	RegionCode  string `json:"regionCode,omitempty"`
}

// InitResponse is returned by GET /init.
type InitResponse struct {
	ShowConsentBanner bool         `json:"showConsentBanner"`
	Jurisdiction      Jurisdiction `json:"jurisdiction"`
	Location          Location     `json:"location"`
	Language          string       `json:"language,omitempty"`

	// Offline is set when the response was computed locally.
	Offline bool `json:"-"`
}

// ConsentSubmission is the body of a consent write.
type ConsentSubmission struct {
	SubjectID        string            `json:"id,omitempty"`
	Type             string            `json:"type"`
	Domain           string            `json:"domain"`
	Preferences      ConsentState      `json:"preferences"`
	ExternalID       string            `json:"externalId,omitempty"`
	IdentityProvider string            `json:"identityProvider,omitempty"`
	GivenAt          int64             `json:"givenAt"`
	Jurisdiction     string            `json:"jurisdiction,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// ConsentResult is the backend's confirmation of a consent write.
type ConsentResult struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subjectId"`
	ExternalID string    `json:"externalId,omitempty"`
	Identified bool      `json:"identified,omitempty"`
	GivenAt    time.Time `json:"givenAt,omitzero"`
}

// IdentifyRequest is the body of PATCH /subjects/{id}.
type IdentifyRequest struct {
	SubjectID        string `json:"id"`
	ExternalID       string `json:"externalId"`
	IdentityProvider string `json:"identityProvider,omitempty"`
}

// IdentifyResult is the backend's confirmation of an identify call.
type IdentifyResult struct {
	SubjectID  string `json:"id"`
	ExternalID string `json:"externalId"`
	Identified bool   `json:"identified"`
}
