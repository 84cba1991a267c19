package shared

import (
	"errors"
	"fmt"
)

// RequestError is used when we want a specific error message and StatusCode.
// Sane defaults are listed below. For routes that need custom error messages,
// a request error can be generated and a handler expects the router to return
// the exact message inside the request error msg
//
// Error codes should be bubbled where the RequestError msg is expected to be
// returned to the user. If the user should see a generic error message but
// the error chain should include more detail for logging purposes, then a generic
// error should be added that provides context
type RequestError struct {
	StatusCode int
	Err        error
}

func (r *RequestError) Error() string {
	return fmt.Sprintf("status %d: err %v", r.StatusCode, r.Err)
}

var (
	ErrMissingAuth   = &RequestError{Err: errors.New("missing authorization header"), StatusCode: 401}
	ErrInvalidFormat = &RequestError{Err: errors.New("invalid authentication format"), StatusCode: 401}

	ErrInvalidRequest = &RequestError{Err: errors.New("invalid request body"), StatusCode: 400}
	ErrMissingModel   = &RequestError{Err: errors.New("model is not specified"), StatusCode: 400}
	ErrMethodNotAllowed = &RequestError{
		Err:        errors.New("the specified HTTP method is not allowed for the requested resource"),
		StatusCode: 400,
	}

	ErrInternalServerError = &RequestError{Err: errors.New("internal server error"), StatusCode: 500}
	ErrBadRequest          = &RequestError{Err: errors.New("bad request"), StatusCode: 400}
	ErrNotFound            = &RequestError{Err: errors.New("not found"), StatusCode: 404}

	// Returned once every failover candidate has been exhausted. The exact
	// wording is load bearing: clients surface it verbatim.
	ErrAllEndpointsFailed = &RequestError{
		Err:        errors.New("All API endpoints failed. Please check your network connection or try using a proxy."),
		StatusCode: 503,
	}
)

// ExhaustedReason is the close reason handed to websocket clients when no
// upstream candidate could be reached. Mirrors ErrAllEndpointsFailed.
const ExhaustedReason = "All API endpoints failed. Please check your network connection or try using a proxy."
