package client_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themajix/docstore-client/internal/client"
	"github.com/themajix/docstore-client/internal/transport"
	"github.com/themajix/docstore-client/pkg/docstore"
)

// fakeService is an httptest-backed document service with scripted handlers
// keyed by "METHOD path".
type fakeService struct {
	mu       sync.Mutex
	server   *httptest.Server
	handlers map[string]http.HandlerFunc
	requests []*http.Request
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()

	svc := &fakeService{handlers: make(map[string]http.HandlerFunc)}

	svc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		svc.mu.Lock()
		svc.requests = append(svc.requests, r.Clone(context.Background()))
		handler := svc.handlers[r.Method+" "+r.URL.Path]
		svc.mu.Unlock()

		if handler == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"NotFound"}`))

			return
		}

		handler(w, r)
	}))
	t.Cleanup(svc.server.Close)

	return svc
}

func (s *fakeService) handle(route string, handler http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handlers[route] = handler
}

func (s *fakeService) requestsTo(path string) []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*http.Request

	for _, r := range s.requests {
		if r.URL.Path == path {
			matched = append(matched, r)
		}
	}

	return matched
}

func (s *fakeService) client(opts client.Options) *client.Client {
	opts.Transport = transport.New(s.server.URL)

	return client.New(opts)
}

func feedBody(key string, items ...string) []byte {
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw = append(raw, json.RawMessage(item))
	}

	body, _ := json.Marshal(map[string]interface{}{"_count": len(raw), key: raw})

	return body
}

const testContainer = "/dbs/db1/colls/orders"

func singleRangeService(t *testing.T) *fakeService {
	t.Helper()

	svc := newFakeService(t)
	svc.handle("GET "+testContainer+"/pkranges", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(feedBody("PartitionKeyRanges", `{"id":"0","minInclusive":"","maxExclusive":"FF"}`))
	})

	return svc
}

func TestClient_ItemRead(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("GET "+testContainer+"/docs/order-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tenant-1", r.Header.Get("x-ds-partition-key"))

		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("x-ds-request-charge", "2.5")
		_, _ = w.Write([]byte(`{"id":"order-1","total":99}`))
	})

	c := svc.client(client.Options{})

	resp, err := c.Items().Read(context.Background(), testContainer, "order-1", &docstore.ItemOptions{PartitionKey: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, resp.ETag)
	assert.InDelta(t, 2.5, resp.RequestCharge, 0.001)
	assert.JSONEq(t, `{"id":"order-1","total":99}`, string(resp.Item))
}

func TestClient_ItemReadNotFound(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)

	c := svc.client(client.Options{})

	_, err := c.Items().Read(context.Background(), testContainer, "missing", nil)
	require.Error(t, err)
	assert.True(t, docstore.IsNotFound(err))
}

func TestClient_WritesCarryConditionsAndAuth(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("PUT "+testContainer+"/docs/order-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"v1"`, r.Header.Get("If-Match"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("ETag", `"v2"`)
		_, _ = w.Write([]byte(`{"id":"order-1","total":120}`))
	})

	c := svc.client(client.Options{Credential: &docstore.TokenCredential{Token: "tok"}})

	resp, err := c.Items().Replace(context.Background(), testContainer, "order-1",
		[]byte(`{"id":"order-1","total":120}`), &docstore.ItemOptions{ETag: `"v1"`})
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, resp.ETag)
}

func TestClient_UpsertSetsHeader(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("POST "+testContainer+"/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("x-ds-is-upsert"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-9"}`))
	})

	c := svc.client(client.Options{})

	resp, err := c.Items().Upsert(context.Background(), testContainer, []byte(`{"id":"order-9"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestClient_SessionTokenRoundTrips(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("POST "+testContainer+"/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ds-session-token", "0:12")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"order-1"}`))
	})

	var readToken string

	svc.handle("GET "+testContainer+"/docs/order-1", func(w http.ResponseWriter, r *http.Request) {
		readToken = r.Header.Get("x-ds-session-token")
		_, _ = w.Write([]byte(`{"id":"order-1"}`))
	})

	c := svc.client(client.Options{ConsistencyLevel: docstore.ConsistencySession})

	_, err := c.Items().Create(context.Background(), testContainer, []byte(`{"id":"order-1"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, "0:12", c.Session().Token())

	_, err = c.Items().Read(context.Background(), testContainer, "order-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "0:12", readToken, "reads after a write carry the write's session token")
}

func TestClient_QueryFansOutAcrossRanges(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("GET "+testContainer+"/pkranges", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(feedBody("PartitionKeyRanges",
			`{"id":"1","minInclusive":"","maxExclusive":"7F"}`,
			`{"id":"2","minInclusive":"7F","maxExclusive":"FF"}`,
		))
	})

	svc.handle("POST "+testContainer+"/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/query+json", r.Header.Get("Content-Type"))

		var query struct {
			Query string `json:"query"`
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		assert.Equal(t, "SELECT * FROM c", query.Query)

		switch r.Header.Get("x-ds-partition-key-range-id") {
		case "1":
			_, _ = w.Write(feedBody("Documents", `{"id":"a"}`, `{"id":"b"}`))
		case "2":
			_, _ = w.Write(feedBody("Documents", `{"id":"c"}`))
		default:
			t.Errorf("query reached unknown range %q", r.Header.Get("x-ds-partition-key-range-id"))
		}
	})

	c := svc.client(client.Options{})

	it, err := c.Items().Query(context.Background(), testContainer, docstore.NewQuery("SELECT * FROM c"),
		&docstore.FeedOptions{MaxConcurrency: 2})
	require.NoError(t, err)

	items, err := docstore.FetchAll(context.Background(), it)
	require.NoError(t, err)

	ids := make([]string, 0, len(items))

	for _, item := range items {
		var doc struct {
			ID string `json:"id"`
		}

		require.NoError(t, json.Unmarshal(item, &doc))
		ids = append(ids, doc.ID)
	}

	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestClient_QueryPinnedToPartitionSkipsRangeDiscovery(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("POST "+testContainer+"/docs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tenant-1", r.Header.Get("x-ds-partition-key"))
		assert.Empty(t, r.Header.Get("x-ds-partition-key-range-id"))
		_, _ = w.Write(feedBody("Documents", `{"id":"a"}`))
	})

	c := svc.client(client.Options{})

	it, err := c.Items().Query(context.Background(), testContainer, docstore.NewQuery("SELECT * FROM c"),
		&docstore.FeedOptions{PartitionKey: "tenant-1"})
	require.NoError(t, err)

	items, err := docstore.FetchAll(context.Background(), it)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Empty(t, svc.requestsTo(testContainer+"/pkranges"), "a pinned feed must not list ranges")
}

func TestClient_ReadFeedPages(t *testing.T) {
	t.Parallel()

	svc := singleRangeService(t)

	svc.handle("GET "+testContainer+"/docs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-ds-continuation") == "" {
			w.Header().Set("x-ds-continuation", "next")
			_, _ = w.Write(feedBody("Documents", `{"id":"a"}`))

			return
		}

		_, _ = w.Write(feedBody("Documents", `{"id":"b"}`))
	})

	c := svc.client(client.Options{})

	it, err := c.Items().ReadFeed(context.Background(), testContainer, nil)
	require.NoError(t, err)

	items, err := docstore.FetchAll(context.Background(), it)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestClient_CachedReadRevalidatesWith304(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)

	reads := 0

	svc.handle("GET "+testContainer+"/docs/order-1", func(w http.ResponseWriter, r *http.Request) {
		reads++

		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)

			return
		}

		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"id":"order-1","total":99}`))
	})

	c := svc.client(client.Options{Cache: docstore.NewMemoryCache(10)})

	first, err := c.Items().Read(context.Background(), testContainer, "order-1", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := c.Items().Read(context.Background(), testContainer, "order-1", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, second.StatusCode)
	assert.JSONEq(t, `{"id":"order-1","total":99}`, string(second.Item), "a 304 answers from the cached body")
	assert.Equal(t, 2, reads)
}

func TestClient_WriteInvalidatesCachedRead(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)

	version := 1

	svc.handle("GET "+testContainer+"/docs/order-1", func(w http.ResponseWriter, r *http.Request) {
		etag := fmt.Sprintf(`"v%d"`, version)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)

			return
		}

		w.Header().Set("ETag", etag)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"id":"order-1","version":%d}`, version)))
	})

	svc.handle("PUT "+testContainer+"/docs/order-1", func(w http.ResponseWriter, r *http.Request) {
		version++
		w.Header().Set("ETag", fmt.Sprintf(`"v%d"`, version))
		_, _ = w.Write([]byte(fmt.Sprintf(`{"id":"order-1","version":%d}`, version)))
	})

	c := svc.client(client.Options{Cache: docstore.NewMemoryCache(10)})
	ctx := context.Background()

	_, err := c.Items().Read(ctx, testContainer, "order-1", nil)
	require.NoError(t, err)

	_, err = c.Items().Replace(ctx, testContainer, "order-1", []byte(`{"id":"order-1"}`), nil)
	require.NoError(t, err)

	// The stale entry is gone, so this read carries no If-None-Match and
	// fetches the new version.
	resp, err := c.Items().Read(ctx, testContainer, "order-1", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"id":"order-1","version":2}`, string(resp.Item))
}

func TestClient_ReadMany(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)

	for _, id := range []string{"a", "b", "c"} {
		id := id
		svc.handle("GET "+testContainer+"/docs/"+id, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%q,"pk":%q}`, id, r.Header.Get("x-ds-partition-key"))))
		})
	}

	c := svc.client(client.Options{})

	resps, err := c.Items().ReadMany(context.Background(), testContainer, []docstore.ItemIdentity{
		{ID: "a", PartitionKey: "p1"},
		{ID: "b", PartitionKey: "p2"},
		{ID: "c", PartitionKey: "p1"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, resps, 3)
	assert.JSONEq(t, `{"id":"a","pk":"p1"}`, string(resps[0].Item), "results keep input order")
	assert.JSONEq(t, `{"id":"b","pk":"p2"}`, string(resps[1].Item))
	assert.JSONEq(t, `{"id":"c","pk":"p1"}`, string(resps[2].Item))
}

func TestClient_ReadManyPropagatesFailure(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("GET "+testContainer+"/docs/a", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"a"}`))
	})

	c := svc.client(client.Options{})

	_, err := c.Items().ReadMany(context.Background(), testContainer, []docstore.ItemIdentity{
		{ID: "a"},
		{ID: "missing"},
	}, nil)
	require.Error(t, err)
	assert.True(t, docstore.IsNotFound(err))
}

func TestClient_DatabasesLifecycle(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("POST /dbs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ID string `json:"id"`
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"id":%q,"_rid":"rid1"}`, body.ID)))
	})
	svc.handle("GET /dbs/db1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"db1","_rid":"rid1"}`))
	})
	svc.handle("DELETE /dbs/db1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := svc.client(client.Options{})
	ctx := context.Background()

	created, err := c.Databases().Create(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "db1", created.ID)

	read, err := c.Databases().Read(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, "db1", read.ID)

	require.NoError(t, c.Databases().Delete(ctx, "db1"))
}

func TestClient_PartitionKeyRangesList(t *testing.T) {
	t.Parallel()

	svc := newFakeService(t)
	svc.handle("GET "+testContainer+"/pkranges", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(feedBody("PartitionKeyRanges",
			`{"id":"1","minInclusive":"","maxExclusive":"7F"}`,
			`{"id":"2","minInclusive":"7F","maxExclusive":"FF"}`,
		))
	})

	c := svc.client(client.Options{})

	ranges, err := c.PartitionKeyRanges().List(context.Background(), testContainer)
	require.NoError(t, err)
	require.Len(t, ranges, 2)
	assert.Equal(t, "1", ranges[0].ID)
	assert.Equal(t, "7F", ranges[0].MaxExclusive)
}
