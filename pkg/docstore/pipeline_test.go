package docstore_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themajix/docstore-client/pkg/docstore"
)

type transportFunc func(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error)

func (f transportFunc) Send(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
	return f(ctx, req)
}

func okResponse(status int, headers map[string]string) *docstore.ResponseMessage {
	h := make(http.Header)
	for key, value := range headers {
		h.Set(key, value)
	}

	return &docstore.ResponseMessage{StatusCode: status, Headers: h}
}

func namedHandler(name string, trace *[]string) docstore.Handler {
	return docstore.HandlerFunc(func(ctx context.Context, req *docstore.OperationRequest, next docstore.Next) (*docstore.ResponseMessage, error) {
		*trace = append(*trace, name+":in")

		resp, err := next(ctx, req)

		*trace = append(*trace, name+":out")

		return resp, err
	})
}

func TestChain_HandlerOrder(t *testing.T) {
	t.Parallel()

	var trace []string

	transport := transportFunc(func(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
		trace = append(trace, "transport")

		return okResponse(200, nil), nil
	})

	chain := docstore.NewChain(transport,
		namedHandler("first", &trace),
		namedHandler("second", &trace),
		namedHandler("third", &trace),
	)

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	resp, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{
		"first:in", "second:in", "third:in",
		"transport",
		"third:out", "second:out", "first:out",
	}, trace)
}

func TestChain_ShortCircuit(t *testing.T) {
	t.Parallel()

	transportCalls := 0

	transport := transportFunc(func(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
		transportCalls++

		return okResponse(200, nil), nil
	})

	short := docstore.HandlerFunc(func(ctx context.Context, req *docstore.OperationRequest, next docstore.Next) (*docstore.ResponseMessage, error) {
		return okResponse(204, nil), nil
	})

	chain := docstore.NewChain(transport, short)
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	resp, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	assert.Zero(t, transportCalls, "short-circuiting handler must not reach the transport")
}

func TestChain_RetryReentersFromRetryingHandler(t *testing.T) {
	t.Parallel()

	var (
		outerCalls int
		innerCalls int
	)

	transport := transportFunc(func(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
		return okResponse(200, nil), nil
	})

	outer := docstore.HandlerFunc(func(ctx context.Context, req *docstore.OperationRequest, next docstore.Next) (*docstore.ResponseMessage, error) {
		outerCalls++

		return next(ctx, req)
	})

	retrying := docstore.HandlerFunc(func(ctx context.Context, req *docstore.OperationRequest, next docstore.Next) (*docstore.ResponseMessage, error) {
		_, err := next(ctx, req)
		if err != nil {
			return nil, err
		}

		// Issue a second attempt through the same next.
		return next(ctx, req)
	})

	inner := docstore.HandlerFunc(func(ctx context.Context, req *docstore.OperationRequest, next docstore.Next) (*docstore.ResponseMessage, error) {
		innerCalls++

		return next(ctx, req)
	})

	chain := docstore.NewChain(transport, outer, retrying, inner)
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	_, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, outerCalls, "handlers before the retrying handler must not observe retries")
	assert.Equal(t, 2, innerCalls, "handlers after the retrying handler run once per attempt")
}

func TestChain_ErrorWrapping(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("boom")

	transport := transportFunc(func(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
		return nil, sentinel
	})

	chain := docstore.NewChain(transport)
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbDelete, "/dbs/d/colls/c/docs/x")

	_, err := chain.Execute(context.Background(), req)
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "delete")
	assert.Contains(t, err.Error(), "/dbs/d/colls/c/docs/x")
}

func TestAuthorizationHandler_AppliesCredentialPerAttempt(t *testing.T) {
	t.Parallel()

	transport := transportFunc(func(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
		assert.Equal(t, "Bearer secret", req.Headers.Get("Authorization"))

		return okResponse(200, nil), nil
	})

	chain := docstore.NewChain(transport, docstore.NewAuthorizationHandler(&docstore.TokenCredential{Token: "secret"}))
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	_, err := chain.Execute(context.Background(), req)
	require.NoError(t, err)
}
