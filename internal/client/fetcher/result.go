package fetcher

import (
	"encoding/json"
	"errors"
)

// Result is the uniform outcome of Do: OK with Data, or not OK with Error.
type Result struct {
	OK        bool
	Status    int
	Data      json.RawMessage
	Error     *Error
	Attempts  int
	RequestID string
}

// Decode unmarshals Data into out.
func (r *Result) Decode(out any) error {
	if !r.OK {
		return r.Err()
	}
	if len(r.Data) == 0 {
		return errors.New("empty response body")
	}
	return json.Unmarshal(r.Data, out)
}

// Err returns r.Error as an error value, or nil for a successful result.
func (r *Result) Err() error {
	if r == nil || r.Error == nil {
		return nil
	}
	return r.Error
}
