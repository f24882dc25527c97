// Package models defines the consent records, pending operations and backend
// payloads shared by the SDK packages.
package models

import (
	"errors"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Standard consent categories. Any other name is a custom category and is
// carried through untouched.
const (
	CategoryNecessary     = "necessary"
	CategoryFunctionality = "functionality"
	CategoryMarketing     = "marketing"
	CategoryMeasurement   = "measurement"
	CategoryExperience    = "experience"
)

// StandardCategories lists the categories every decoded record carries explicitly.
var StandardCategories = []string{
	CategoryNecessary,
	CategoryFunctionality,
	CategoryMarketing,
	CategoryMeasurement,
	CategoryExperience,
}

// IsStandardCategory reports whether name is one of StandardCategories.
func IsStandardCategory(name string) bool {
	return slices.Contains(StandardCategories, name)
}

var ErrIncorrectPreference = errors.New("preference must be name=true|false")

// ConsentState maps a category name to the visitor's decision.
type ConsentState map[string]bool

// Clone returns an independent copy of s.
func (s ConsentState) Clone() ConsentState {
	if s == nil {
		return ConsentState{}
	}
	return maps.Clone(s)
}

// Normalize fills every standard category that is missing with false and
// forces necessary to true. Custom categories are left as they are.
func (s ConsentState) Normalize() ConsentState {
	out := s.Clone()
	for _, c := range StandardCategories {
		if _, ok := out[c]; !ok {
			out[c] = false
		}
	}
	out[CategoryNecessary] = true
	return out
}

// Merge returns s overlaid with the decisions from other.
func (s ConsentState) Merge(other ConsentState) ConsentState {
	out := s.Clone()
	maps.Copy(out, other)
	return out
}

// PreferencesFromStrings parses "name=value" items such as "marketing=true".
func PreferencesFromStrings(items []string) (ConsentState, error) {
	state := make(ConsentState, len(items))
	for _, item := range items {
		name, value, ok := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, ErrIncorrectPreference
		}
		b, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return nil, ErrIncorrectPreference
		}
		state[name] = b
	}
	return state, nil
}

// ConsentInfo carries the metadata stored next to the decisions.
type ConsentInfo struct {
	// Time is the moment of the decision in Unix milliseconds.
	Time int64 `json:"time"`

	// ID is the server-assigned consent id, known after confirmation.
	ID string `json:"id,omitempty"`

	SubjectID        string `json:"subjectId,omitempty"`
	ExternalID       string `json:"externalId,omitempty"`
	IdentityProvider string `json:"identityProvider,omitempty"`

	// Identified is true once the backend confirmed the external id link.
	Identified bool `json:"identified,omitempty"`

	// Type is the consent type, e.g. "cookie_banner".
	Type string `json:"type,omitempty"`
}

// ConsentRecord is the unit persisted through storage.
type ConsentRecord struct {
	Consents    ConsentState `json:"consents"`
	ConsentInfo ConsentInfo  `json:"consentInfo"`
}

// Clone returns a deep copy of r; a nil record clones to nil.
func (r *ConsentRecord) Clone() *ConsentRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Consents = r.Consents.Clone()
	return &out
}

// GivenAt returns ConsentInfo.Time as a time.Time.
func (r *ConsentRecord) GivenAt() time.Time {
	return time.UnixMilli(r.ConsentInfo.Time)
}

// Has reports whether consent for category was granted.
func (r *ConsentRecord) Has(category string) bool {
	if r == nil {
		return false
	}
	return r.Consents[category]
}
