// Package client implements the docstore.Client interface: the root client
// wiring the request pipeline and the per-resource facades.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/themajix/docstore-client/internal/constants"
	"github.com/themajix/docstore-client/pkg/docstore"
)

// Client implements the docstore.Client interface.
type Client struct {
	chain       *docstore.Chain
	session     *docstore.SessionStore
	consistency docstore.ConsistencyLevel
	logger      docstore.Logger

	cacheManager *docstore.CacheManager
	cachePolicy  *docstore.CachingPolicy

	databases  docstore.DatabasesClient
	containers docstore.ContainersClient
	items      docstore.ItemsClient
	pkRanges   docstore.PartitionKeyRangesClient
}

// Options carries the assembled pieces the root client is built from.
type Options struct {
	// Transport terminates the pipeline.
	Transport docstore.Transport

	// Credential authorizes requests. Optional.
	Credential docstore.Credential

	// ConsistencyLevel applied to all operations unless overridden.
	ConsistencyLevel docstore.ConsistencyLevel

	// Retry tunes the retry policy. Nil selects defaults.
	Retry *docstore.RetryOptions

	// TracerProvider feeds the telemetry handler. Nil selects the global.
	TracerProvider trace.TracerProvider

	// Logger receives client log output. Optional.
	Logger docstore.Logger

	// Cache backend for point reads. Nil disables caching.
	Cache docstore.Cache

	// CachePolicy decides cacheability. Nil selects the default policy.
	CachePolicy *docstore.CachingPolicy
}

// New assembles the root client and its pipeline. Handler order is fixed:
// telemetry wraps everything, retry re-enters everything after it, the
// session handler stamps tokens exactly once per logical operation, and
// authorization runs per attempt so credentials are fresh on every try.
func New(opts Options) *Client {
	session := docstore.NewSessionStore()

	handlers := []docstore.Handler{
		docstore.NewTelemetryHandler(opts.TracerProvider, opts.Logger),
		docstore.NewRetryPolicy(opts.Retry),
		docstore.NewSessionHandler(session, opts.ConsistencyLevel),
	}
	if opts.Credential != nil {
		handlers = append(handlers, docstore.NewAuthorizationHandler(opts.Credential))
	}

	client := &Client{
		chain:       docstore.NewChain(opts.Transport, handlers...),
		session:     session,
		consistency: opts.ConsistencyLevel,
		logger:      opts.Logger,
	}

	if opts.Cache != nil {
		client.cacheManager = docstore.NewCacheManager(opts.Cache, opts.Logger)

		client.cachePolicy = opts.CachePolicy
		if client.cachePolicy == nil {
			client.cachePolicy = docstore.DefaultCachingPolicy()
		}
	}

	client.databases = &DatabasesClient{client: client}
	client.containers = &ContainersClient{client: client}
	client.items = &ItemsClient{client: client}
	client.pkRanges = &PartitionKeyRangesClient{client: client}

	return client
}

// Databases implements docstore.Client.
func (c *Client) Databases() docstore.DatabasesClient {
	return c.databases
}

// Containers implements docstore.Client.
func (c *Client) Containers() docstore.ContainersClient {
	return c.containers
}

// Items implements docstore.Client.
func (c *Client) Items() docstore.ItemsClient {
	return c.items
}

// PartitionKeyRanges implements docstore.Client.
func (c *Client) PartitionKeyRanges() docstore.PartitionKeyRangesClient {
	return c.pkRanges
}

// Session implements docstore.Client.
func (c *Client) Session() *docstore.SessionStore {
	return c.session
}

// execute runs one operation through the pipeline.
func (c *Client) execute(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
	return c.chain.Execute(ctx, req)
}

// feedEnvelope is the body shape of feed responses. The service names the
// item array after the resource kind.
type feedEnvelope struct {
	Databases          []json.RawMessage `json:"Databases"`
	Containers         []json.RawMessage `json:"Containers"`
	Documents          []json.RawMessage `json:"Documents"`
	PartitionKeyRanges []json.RawMessage `json:"PartitionKeyRanges"`
}

func (e *feedEnvelope) itemsFor(kind docstore.ResourceKind) []json.RawMessage {
	switch kind {
	case docstore.ResourceDatabase:
		return e.Databases
	case docstore.ResourceContainer:
		return e.Containers
	case docstore.ResourcePartitionKeyRange:
		return e.PartitionKeyRanges
	default:
		return e.Documents
	}
}

// parseFeedPage maps a raw feed response into a page.
func parseFeedPage(msg *docstore.ResponseMessage, kind docstore.ResourceKind) (*docstore.FeedPage, error) {
	if !msg.IsSuccess() {
		return nil, docstore.ParseServiceError(msg)
	}

	var envelope feedEnvelope

	err := json.Unmarshal(msg.Body, &envelope)
	if err != nil {
		return nil, fmt.Errorf("parsing feed page: %w", err)
	}

	return &docstore.FeedPage{
		Items:             envelope.itemsFor(kind),
		ContinuationToken: msg.ContinuationToken(),
		RequestCharge:     msg.RequestCharge(),
		SessionToken:      msg.SessionToken(),
		ActivityID:        msg.ActivityID(),
	}, nil
}

// newFeedFetcher builds the per-range page fetch closure shared by all feed
// operations.
func (c *Client) newFeedFetcher(kind docstore.ResourceKind, verb docstore.Verb, address string, body []byte, contentType string, opts *docstore.FeedOptions) docstore.FetchPageFunc {
	return func(ctx context.Context, rangeID, continuation string, maxItems int) (*docstore.FeedPage, error) {
		req := docstore.NewOperationRequest(kind, verb, address)
		req.Body = body

		if contentType != "" {
			req.Headers.Set("Content-Type", contentType)
		}

		if contentType == constants.ContentTypeQueryJSON {
			req.Headers.Set(constants.HeaderIsQuery, "true")
		}

		if rangeID != "" {
			req.Headers.Set(constants.HeaderPartitionKeyRangeID, rangeID)
		}

		if continuation != "" {
			req.Headers.Set(constants.HeaderContinuation, continuation)
		}

		if maxItems > 0 {
			req.Headers.Set(constants.HeaderMaxItemCount, fmt.Sprintf("%d", maxItems))
		}

		applyFeedOptions(req, opts)

		msg, err := c.execute(ctx, req)
		if err != nil {
			return nil, err
		}

		return parseFeedPage(msg, kind)
	}
}

func applyFeedOptions(req *docstore.OperationRequest, opts *docstore.FeedOptions) {
	if opts == nil {
		return
	}

	if opts.PartitionKey != "" {
		req.PartitionKey = opts.PartitionKey
		req.Headers.Set(constants.HeaderPartitionKey, opts.PartitionKey)
	}

	if opts.SessionToken != "" {
		req.Headers.Set(constants.HeaderSessionToken, opts.SessionToken)
	}

	if opts.ConsistencyLevel != "" {
		req.Headers.Set(constants.HeaderConsistencyLevel, string(opts.ConsistencyLevel))
	}
}
