package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themajix/docstore-client/internal/transport"
	"github.com/themajix/docstore-client/pkg/docstore"
)

func TestClient_SendStampsRequestHeaders(t *testing.T) {
	t.Parallel()

	var received *http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Clone(context.Background())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"x"}`))
	}))
	defer server.Close()

	client := transport.New(server.URL, transport.WithUserAgent("docstore-test/9"))

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")
	req.Headers.Set("Authorization", "Bearer secret")

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte(`{"id":"x"}`), resp.Body)

	require.NotNil(t, received)
	assert.Equal(t, http.MethodGet, received.Method)
	assert.Equal(t, "/dbs/d/colls/c/docs/x", received.URL.Path)
	assert.Equal(t, "Bearer secret", received.Header.Get("Authorization"))
	assert.Equal(t, "application/json", received.Header.Get("Accept"))
	assert.Equal(t, "docstore-test/9", received.Header.Get("User-Agent"))
}

func TestClient_SendPostsBody(t *testing.T) {
	t.Parallel()

	var (
		receivedBody        []byte
		receivedContentType string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedBody, _ = io.ReadAll(r.Body)
		receivedContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := transport.New(server.URL)

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbCreate, "/dbs/d/colls/c/docs")
	req.Body = []byte(`{"id":"new"}`)

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, []byte(`{"id":"new"}`), receivedBody)
	assert.Equal(t, "application/json", receivedContentType)
}

func TestClient_SendDecodesGzip(t *testing.T) {
	t.Parallel()

	payload := `{"id":"compressed","data":"aaaaaaaaaaaaaaaaaaaaaaaa"}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))

		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)

		gz := gzip.NewWriter(w)
		_, _ = gz.Write([]byte(payload))
		_ = gz.Close()
	}))
	defer server.Close()

	client := transport.New(server.URL)

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, payload, string(resp.Body))
}

func TestClient_NonSuccessStatusIsNotAnError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ds-substatus", "1002")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NotFound"}`))
	}))
	defer server.Close()

	client := transport.New(server.URL)

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	resp, err := client.Send(context.Background(), req)
	require.NoError(t, err, "status codes are classified by the pipeline, not the transport")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1002, resp.Substatus())
}

func TestClient_ConnectionFailureIsTransportError(t *testing.T) {
	t.Parallel()

	// Grab a port nothing listens on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := transport.New(server.URL)

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	_, err := client.Send(context.Background(), req)
	require.Error(t, err)

	transportErr := &docstore.TransportError{}
	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, transportErr.Op, "/dbs/d/colls/c/docs/x")
}

func TestClient_ContextCancellation(t *testing.T) {
	t.Parallel()

	blocked := make(chan struct{})
	defer close(blocked)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-blocked:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := transport.New(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, "/dbs/d/colls/c/docs/x")

	_, err := client.Send(ctx, req)
	require.Error(t, err)
	assert.True(t, docstore.IsTransport(err))
}
