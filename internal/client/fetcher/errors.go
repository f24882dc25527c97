package fetcher

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION_ERROR"
	KindParse      ErrorKind = "PARSE_ERROR"
	KindAPI        ErrorKind = "API_ERROR"
	KindNetwork    ErrorKind = "NETWORK_ERROR"
)

// ErrRetriesExhausted matches, via errors.Is, an *Error whose retry budget
// was spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

type Error struct {
	Kind ErrorKind
	// Code is the machine-readable code from the response body, or Kind.
	Code      string
	Message   string
	Status    int
	Attempts  int
	Exhausted bool
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Code != "" && e.Code != string(e.Kind) {
		fmt.Fprintf(&b, " %s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Exhausted {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	return target == ErrRetriesExhausted && e.Exhausted
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ValidationError builds a local failure that never reached the network.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: string(KindValidation), Message: fmt.Sprintf(format, args...)}
}

func networkError(err error) *Error {
	return &Error{Kind: KindNetwork, Code: string(KindNetwork), Message: err.Error(), Cause: err}
}

func parseError(status int, err error) *Error {
	return &Error{
		Kind:    KindParse,
		Code:    string(KindParse),
		Message: "failed to parse response body: " + err.Error(),
		Status:  status,
		Cause:   err,
	}
}

// apiBody is the error payload shape used by the backend.
type apiBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   any    `json:"error"`
}

func apiError(status int, body []byte) *Error {
	e := &Error{Kind: KindAPI, Code: string(KindAPI), Status: status, Message: http.StatusText(status)}

	var b apiBody
	if json.Unmarshal(body, &b) == nil {
		if b.Code != "" {
			e.Code = b.Code
		}
		switch v := b.Error.(type) {
		case string:
			e.Message = v
		case map[string]any:
			if c, ok := v["code"].(string); ok && c != "" {
				e.Code = c
			}
			if m, ok := v["message"].(string); ok && m != "" {
				e.Message = m
			}
		}
		if b.Message != "" {
			e.Message = b.Message
		}
	}
	return e
}
