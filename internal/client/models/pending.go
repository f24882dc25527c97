package models

import (
	"encoding/json"
	"reflect"
)

// OperationKind tags a pending operation with the backend call it replays.
type OperationKind string

const (
	OperationConsentSubmission OperationKind = "consent-submission"
	OperationIdentifyUser      OperationKind = "identify-user"
)

// PendingOperation is a request body that could not be delivered yet.
type PendingOperation struct {
	Kind OperationKind
	Body json.RawMessage
}

// identityFields is the part of an identify body used for de-duplication.
type identityFields struct {
	ID         string `json:"id"`
	SubjectID  string `json:"subjectId"`
	ExternalID string `json:"externalId"`
}

func (f identityFields) subject() string {
	if f.SubjectID != "" {
		return f.SubjectID
	}
	return f.ID
}

// SameAs reports whether op and other describe the same delivery.
//
// Consent submissions compare by JSON structure, so key order and spacing
// do not matter. Identify operations compare by (subject id, external id).
func (op PendingOperation) SameAs(other PendingOperation) bool {
	if op.Kind != other.Kind {
		return false
	}

	if op.Kind == OperationIdentifyUser {
		var a, b identityFields
		if json.Unmarshal(op.Body, &a) != nil || json.Unmarshal(other.Body, &b) != nil {
			return string(op.Body) == string(other.Body)
		}
		return a.subject() == b.subject() && a.ExternalID == b.ExternalID
	}

	var a, b any
	if json.Unmarshal(op.Body, &a) != nil || json.Unmarshal(other.Body, &b) != nil {
		return string(op.Body) == string(other.Body)
	}
	return reflect.DeepEqual(a, b)
}
