package docstore_test

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themajix/docstore-client/pkg/docstore"
)

func TestServiceError_Error(t *testing.T) {
	t.Parallel()

	err := &docstore.ServiceError{StatusCode: 429, Message: "too many requests", Attempts: 4}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "4 attempt(s)")
	assert.Contains(t, err.Error(), "too many requests")

	withSub := &docstore.ServiceError{StatusCode: 404, Substatus: 1002, Attempts: 1}
	assert.Contains(t, withSub.Error(), "substatus 1002")
}

func TestParseServiceError(t *testing.T) {
	t.Parallel()

	headers := make(http.Header)
	headers.Set("x-ds-substatus", "1002")
	headers.Set("x-ds-activity-id", "abc-123")
	headers.Set("x-ds-retry-after-ms", "250")

	msg := &docstore.ResponseMessage{
		StatusCode: 404,
		Headers:    headers,
		Body:       []byte(`{"code":"NotFound","message":"resource gone"}`),
	}

	svcErr := docstore.ParseServiceError(msg)
	assert.Equal(t, 404, svcErr.StatusCode)
	assert.Equal(t, 1002, svcErr.Substatus)
	assert.Equal(t, "abc-123", svcErr.ActivityID)
	assert.Equal(t, 250*time.Millisecond, svcErr.RetryAfter)
	assert.Equal(t, "resource gone", svcErr.Message)
	assert.Equal(t, 1, svcErr.Attempts, "attempt count defaults to one")
}

func TestParseServiceError_CodeFallback(t *testing.T) {
	t.Parallel()

	msg := &docstore.ResponseMessage{
		StatusCode: 409,
		Headers:    make(http.Header),
		Body:       []byte(`{"code":"Conflict"}`),
	}

	svcErr := docstore.ParseServiceError(msg)
	assert.Equal(t, "Conflict", svcErr.Message)
}

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	wrap := func(status int) error {
		return fmt.Errorf("reading item: %w", &docstore.ServiceError{StatusCode: status})
	}

	assert.True(t, docstore.IsNotFound(wrap(404)))
	assert.False(t, docstore.IsNotFound(wrap(409)))

	assert.True(t, docstore.IsConflict(wrap(409)))
	assert.True(t, docstore.IsPreconditionFailed(wrap(412)))
	assert.True(t, docstore.IsThrottled(wrap(429)))

	assert.False(t, docstore.IsNotFound(nil))
	assert.False(t, docstore.IsNotFound(assert.AnError))
}

func TestTransportError_Unwrap(t *testing.T) {
	t.Parallel()

	err := &docstore.TransportError{Op: "read /dbs/d", Err: assert.AnError, Attempts: 2}
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "read /dbs/d")
	assert.Contains(t, err.Error(), "2 attempt(s)")

	wrapped := fmt.Errorf("executing: %w", err)
	assert.True(t, docstore.IsTransport(wrapped))
	assert.False(t, docstore.IsTransport(assert.AnError))
}

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	err := &docstore.ValidationError{Message: "endpoint is empty"}
	assert.Equal(t, "validation error: endpoint is empty", err.Error())
}
