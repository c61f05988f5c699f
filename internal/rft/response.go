package rft

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Response is the raw text a grader endpoint returned.
type Response struct {
	Endpoint        string `json:"endpoint"`
	StatusCode      int    `json:"status_code"`
	Body            string `json:"body"`
	RequestID       string `json:"request_id,omitempty"`
	ClientRequestID string `json:"client_request_id"`
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Reward returns the top-level "reward" of a run response, if present.
func (r *Response) Reward() (float64, bool) {
	v := gjson.Get(r.Body, "reward")
	if v.Type != gjson.Number {
		return 0, false
	}
	return v.Float(), true
}

// Errors returns the names of the error flags set under metadata.errors.
func (r *Response) Errors() []string {
	var flagged []string
	gjson.Get(r.Body, "metadata.errors").ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.True {
			flagged = append(flagged, key.String())
		}
		return true
	})
	return flagged
}

// Err returns a *StatusError for non-2xx responses and nil otherwise.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Endpoint: r.Endpoint, StatusCode: r.StatusCode, Body: r.Body}
}

// StatusError reports a non-2xx grader response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}
