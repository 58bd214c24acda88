package ppapi

import "fmt"

// Reason classifies an upstream failure.
type Reason string

const (
	ReasonUnauthorized       Reason = "unauthorized"
	ReasonTimeout            Reason = "timeout"
	ReasonBadStatus          Reason = "bad_status"
	ReasonMalformed          Reason = "malformed"
	ReasonRequestFailed      Reason = "request_failed"
	ReasonPaginationOverflow Reason = "pagination_overflow"
)

// UpstreamError is returned for every failed interaction with the
// statistics API.
type UpstreamError struct {
	Reason   Reason
	Endpoint string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("ppapi: %s", e.Reason)
	if e.Endpoint != "" {
		msg += " on " + e.Endpoint
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
