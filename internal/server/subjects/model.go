package subjects

import (
	"time"

	"github.com/dmitrijs2005/consentkeeper/internal/client/models"
)

// Subject is a visitor known to the backend.
type Subject struct {
	ID               string
	ExternalID       string
	IdentityProvider string
	CreatedAt        time.Time
	Consents         []Consent
}

// Consent is one recorded decision of a subject.
type Consent struct {
	ID           string
	Domain       string
	Type         string
	Preferences  models.ConsentState
	GivenAt      time.Time
	Jurisdiction string
	Metadata     map[string]string
}

// Identified reports whether the subject is linked to an external id.
func (s *Subject) Identified() bool {
	return s.ExternalID != ""
}

func (s *Subject) clone() *Subject {
	out := *s
	out.Consents = make([]Consent, len(s.Consents))
	for i, c := range s.Consents {
		c.Preferences = c.Preferences.Clone()
		out.Consents[i] = c
	}
	return &out
}
