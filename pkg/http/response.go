package http

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StatusError is returned by Response.RaiseForStatus for non-2xx responses.
// Message defaults to the status reason phrase and may be replaced by a
// server supplied description without losing the request context.
type StatusError struct {
	Message    string
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return e.Message
}

// WithMessage returns a copy of e carrying message.
func (e *StatusError) WithMessage(message string) *StatusError {
	cp := *e
	cp.Message = message
	return &cp
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RaiseForStatus returns a *StatusError if the status code is not 2xx.
func (r *Response) RaiseForStatus() error {
	if r.IsSuccess() {
		return nil
	}
	message := http.StatusText(r.StatusCode)
	if message == "" {
		message = fmt.Sprintf("unexpected status %d", r.StatusCode)
	}
	return &StatusError{
		Message:    message,
		Method:     r.Method,
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Body:       r.Body,
	}
}

// JSON decodes the body into v.
func (r *Response) JSON(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to parse response body: %w", err)
	}
	return nil
}

// Decode decodes the body into a generic JSON value.
func (r *Response) Decode() (interface{}, error) {
	var v interface{}
	if err := r.JSON(&v); err != nil {
		return nil, err
	}
	return v, nil
}
