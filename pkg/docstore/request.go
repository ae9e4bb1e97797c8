package docstore

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/themajix/docstore-client/internal/constants"
)

// OperationRequest describes one logical operation. ResourceAddress,
// ResourceKind, and Verb are fixed at construction; headers and routing
// hints may be mutated by handlers during pipeline traversal.
type OperationRequest struct {
	ResourceAddress string
	ResourceKind    ResourceKind
	Verb            Verb
	Headers         http.Header
	PartitionKey    string
	Body            []byte

	// IdempotentWrite marks a write verb as safe to retry on transient
	// transport failures.
	IdempotentWrite bool

	retry *RetryContext
}

// NewOperationRequest builds a request for one logical operation and assigns
// it a fresh activity id.
func NewOperationRequest(kind ResourceKind, verb Verb, address string) *OperationRequest {
	headers := make(http.Header)
	headers.Set(constants.HeaderActivityID, uuid.NewString())

	return &OperationRequest{
		ResourceAddress: address,
		ResourceKind:    kind,
		Verb:            verb,
		Headers:         headers,
	}
}

// ActivityID returns the correlation id assigned to this operation.
func (r *OperationRequest) ActivityID() string {
	return r.Headers.Get(constants.HeaderActivityID)
}

// RetryContext returns the per-operation retry state. It is created at chain
// entry and discarded at chain exit.
func (r *OperationRequest) RetryContext() *RetryContext {
	return r.retry
}

// FailureKind classifies the most recent failure observed for an operation.
type FailureKind string

const (
	FailureNone      FailureKind = ""
	FailureThrottle  FailureKind = "throttle"
	FailureTransport FailureKind = "transport"
	FailureSession   FailureKind = "session"
	FailureService   FailureKind = "service"
)

// RetryContext tracks retry state across the attempts of one logical
// operation.
type RetryContext struct {
	// Attempts counts completed attempts, including the first.
	Attempts int

	// CumulativeBackoff is the total time spent waiting between attempts.
	CumulativeBackoff time.Duration

	// LastFailureKind classifies the most recent failed attempt.
	LastFailureKind FailureKind

	sessionRetries int
}

// ResponseMessage is the raw result of executing an operation. It is owned
// by the handler currently processing it until forwarded or replaced.
type ResponseMessage struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	// Attempts is stamped by the retry policy on chain exit.
	Attempts int
}

// IsSuccess reports whether the status code is in the 2xx range.
func (m *ResponseMessage) IsSuccess() bool {
	return m.StatusCode >= 200 && m.StatusCode < 300
}

// ETag returns the version marker of the addressed resource, if present.
func (m *ResponseMessage) ETag() string {
	return m.Headers.Get("Etag")
}

// SessionToken returns the session token of the response, if present.
func (m *ResponseMessage) SessionToken() string {
	return m.Headers.Get(constants.HeaderSessionToken)
}

// ContinuationToken returns the per-range continuation of a feed response.
func (m *ResponseMessage) ContinuationToken() string {
	return m.Headers.Get(constants.HeaderContinuation)
}

// ActivityID returns the correlation id echoed by the service.
func (m *ResponseMessage) ActivityID() string {
	return m.Headers.Get(constants.HeaderActivityID)
}

// RequestCharge returns the request charge reported by the service.
func (m *ResponseMessage) RequestCharge() float64 {
	charge, err := strconv.ParseFloat(m.Headers.Get(constants.HeaderRequestCharge), 64)
	if err != nil {
		return 0
	}

	return charge
}

// Substatus returns the service substatus code, or zero.
func (m *ResponseMessage) Substatus() int {
	substatus, err := strconv.Atoi(m.Headers.Get(constants.HeaderSubstatus))
	if err != nil {
		return 0
	}

	return substatus
}

// RetryAfter returns the server-suggested backoff, or zero.
func (m *ResponseMessage) RetryAfter() time.Duration {
	millis, err := strconv.Atoi(m.Headers.Get(constants.HeaderRetryAfterMs))
	if err != nil || millis < 0 {
		return 0
	}

	return time.Duration(millis) * time.Millisecond
}
