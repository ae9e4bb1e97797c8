package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ServiceError is a failure reported by the service with a status code. It
// carries the status and substatus of the last attempt and the total attempt
// count, so callers can branch on the exact failure.
type ServiceError struct {
	StatusCode int           `json:"statusCode"`
	Substatus  int           `json:"substatus,omitempty"`
	Message    string        `json:"message,omitempty"`
	ActivityID string        `json:"activityId,omitempty"`
	RetryAfter time.Duration `json:"-"`
	Attempts   int           `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Substatus != 0 {
		return fmt.Sprintf("service error: status %d substatus %d after %d attempt(s): %s",
			e.StatusCode, e.Substatus, e.Attempts, e.Message)
	}

	return fmt.Sprintf("service error: status %d after %d attempt(s): %s",
		e.StatusCode, e.Attempts, e.Message)
}

// TransportError is a connectivity or timeout failure with no status code.
type TransportError struct {
	Op       string
	Err      error
	Attempts int
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError is a malformed request detected before any network call.
type ValidationError struct {
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation error: " + e.Message
}

// Static errors that can be wrapped with context.
var (
	ErrConfigRequired     = errors.New("config is required")
	ErrEndpointRequired   = errors.New("endpoint is required")
	ErrIteratorExhausted  = errors.New("feed iterator is exhausted")
	ErrMutatorRequired    = errors.New("mutator function is required")
	ErrItemIDRequired     = errors.New("item id is required")
	ErrContainerRequired  = errors.New("container path is required")
	ErrConflictRetryLimit = errors.New("concurrent writers outpaced the retry limit")
	ErrMissingETag        = errors.New("item carries no etag for a conditional write")
	ErrNoRangesResolved   = errors.New("no partition key ranges resolved")
)

// serviceErrorBody is the wire shape of an error response body.
type serviceErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseServiceError builds a ServiceError from a non-success response.
func ParseServiceError(msg *ResponseMessage) *ServiceError {
	svcErr := &ServiceError{
		StatusCode: msg.StatusCode,
		Substatus:  msg.Substatus(),
		ActivityID: msg.ActivityID(),
		RetryAfter: msg.RetryAfter(),
		Attempts:   msg.Attempts,
	}

	if svcErr.Attempts == 0 {
		svcErr.Attempts = 1
	}

	if len(msg.Body) > 0 {
		var body serviceErrorBody
		if err := json.Unmarshal(msg.Body, &body); err == nil {
			svcErr.Message = body.Message
			if svcErr.Message == "" {
				svcErr.Message = body.Code
			}
		}
	}

	return svcErr
}

// statusOf extracts the status code from an error, or zero.
func statusOf(err error) int {
	svcErr := &ServiceError{}
	if errors.As(err, &svcErr) {
		return svcErr.StatusCode
	}

	return 0
}

// IsNotFound reports whether the error is a not-found service error.
func IsNotFound(err error) bool {
	return statusOf(err) == 404
}

// IsConflict reports whether the error is a conflict service error.
func IsConflict(err error) bool {
	return statusOf(err) == 409
}

// IsPreconditionFailed reports whether the error is an ETag precondition
// failure.
func IsPreconditionFailed(err error) bool {
	return statusOf(err) == 412
}

// IsThrottled reports whether the error is a throttling signal.
func IsThrottled(err error) bool {
	return statusOf(err) == 429
}

// IsTransport reports whether the error is a transport-level failure.
func IsTransport(err error) bool {
	transportErr := &TransportError{}

	return errors.As(err, &transportErr)
}
