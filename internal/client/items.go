package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/themajix/docstore-client/internal/constants"
	"github.com/themajix/docstore-client/pkg/docstore"
)

// ItemsClient implements docstore.ItemsClient. container arguments are full
// container addresses as built by docstore.ContainerPath.
type ItemsClient struct {
	client *Client
}

// Create implements docstore.ItemsClient.
func (c *ItemsClient) Create(ctx context.Context, container string, item []byte, opts *docstore.ItemOptions) (*docstore.ItemResponse, error) {
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbCreate, container+"/docs")
	req.Body = item
	applyItemOptions(req, opts)

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	return finishWrite(msg)
}

// Read implements docstore.ItemsClient. With a cache configured, reads are
// served through it: a fresh hit revalidates with If-None-Match, and a 304
// answers from the cached body without transferring it again.
func (c *ItemsClient) Read(ctx context.Context, container, id string, opts *docstore.ItemOptions) (*docstore.ItemResponse, error) {
	address := container + "/docs/" + id

	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbRead, address)
	applyItemOptions(req, opts)

	cacheKey, cached := c.lookupCache(ctx, req, opts)
	if cached != nil && req.Headers.Get("If-None-Match") == "" {
		req.Headers.Set("If-None-Match", cached.ETag)
	}

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	if msg.StatusCode == http.StatusNotModified && cached != nil {
		return &docstore.ItemResponse{
			Item:          cached.Data,
			ETag:          cached.ETag,
			SessionToken:  cached.SessionToken,
			RequestCharge: msg.RequestCharge(),
			ActivityID:    msg.ActivityID(),
			StatusCode:    msg.StatusCode,
		}, nil
	}

	if !msg.IsSuccess() {
		return nil, docstore.ParseServiceError(msg)
	}

	resp := itemResponseOf(msg)

	if cacheKey != "" && c.client.cachePolicy.ShouldCache(docstore.VerbRead, address, msg.StatusCode) {
		_ = c.client.cacheManager.SetEntry(ctx, cacheKey, &docstore.CacheEntry{
			Data:         resp.Item,
			ETag:         resp.ETag,
			SessionToken: resp.SessionToken,
		}, 0)
	}

	return resp, nil
}

// Replace implements docstore.ItemsClient.
func (c *ItemsClient) Replace(ctx context.Context, container, id string, item []byte, opts *docstore.ItemOptions) (*docstore.ItemResponse, error) {
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbReplace, container+"/docs/"+id)
	req.Body = item
	applyItemOptions(req, opts)

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, container, id, opts)

	return finishWrite(msg)
}

// Upsert implements docstore.ItemsClient.
func (c *ItemsClient) Upsert(ctx context.Context, container string, item []byte, opts *docstore.ItemOptions) (*docstore.ItemResponse, error) {
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbUpsert, container+"/docs")
	req.Body = item
	req.Headers.Set(constants.HeaderIsUpsert, "true")
	applyItemOptions(req, opts)

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	return finishWrite(msg)
}

// Delete implements docstore.ItemsClient.
func (c *ItemsClient) Delete(ctx context.Context, container, id string, opts *docstore.ItemOptions) error {
	req := docstore.NewOperationRequest(docstore.ResourceItem, docstore.VerbDelete, container+"/docs/"+id)
	applyItemOptions(req, opts)

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return err
	}

	c.invalidate(ctx, container, id, opts)

	if !msg.IsSuccess() {
		return docstore.ParseServiceError(msg)
	}

	return nil
}

// Query implements docstore.ItemsClient.
func (c *ItemsClient) Query(ctx context.Context, container string, query *docstore.QueryDefinition, opts *docstore.FeedOptions) (docstore.FeedIterator, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	ranges, err := c.resolveRanges(ctx, container, opts)
	if err != nil {
		return nil, err
	}

	fetch := c.client.newFeedFetcher(docstore.ResourceItem, docstore.VerbQuery, container+"/docs", body, constants.ContentTypeQueryJSON, opts)

	return docstore.NewFeedIterator(fetch, ranges, query, opts)
}

// ReadFeed implements docstore.ItemsClient.
func (c *ItemsClient) ReadFeed(ctx context.Context, container string, opts *docstore.FeedOptions) (docstore.FeedIterator, error) {
	ranges, err := c.resolveRanges(ctx, container, opts)
	if err != nil {
		return nil, err
	}

	fetch := c.client.newFeedFetcher(docstore.ResourceItem, docstore.VerbReadFeed, container+"/docs", nil, "", opts)

	return docstore.NewFeedIterator(fetch, ranges, nil, opts)
}

// ReadMany implements docstore.ItemsClient: bounded-concurrency point reads
// preserving input order in the result slice.
func (c *ItemsClient) ReadMany(ctx context.Context, container string, ids []docstore.ItemIdentity, opts *docstore.ItemOptions) ([]*docstore.ItemResponse, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	responses := make([]*docstore.ItemResponse, len(ids))
	errs := make([]error, len(ids))
	semaphore := make(chan struct{}, constants.DefaultMaxConcurrency)

	var wg sync.WaitGroup

	for i, identity := range ids {
		wg.Add(1)

		go func(i int, identity docstore.ItemIdentity) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			readOpts := docstore.ItemOptions{PartitionKey: identity.PartitionKey}
			if opts != nil {
				readOpts = *opts
				readOpts.PartitionKey = identity.PartitionKey
			}

			responses[i], errs[i] = c.Read(ctx, container, identity.ID, &readOpts)
		}(i, identity)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return responses, nil
}

// resolveRanges determines the partition ranges a feed spans. A feed pinned
// to one partition key never fans out.
func (c *ItemsClient) resolveRanges(ctx context.Context, container string, opts *docstore.FeedOptions) ([]docstore.PartitionKeyRange, error) {
	if opts != nil && opts.PartitionKey != "" {
		return []docstore.PartitionKeyRange{{ID: ""}}, nil
	}

	ranges, err := c.client.pkRanges.List(ctx, container)
	if err != nil {
		return nil, err
	}

	if len(ranges) == 0 {
		return []docstore.PartitionKeyRange{{ID: ""}}, nil
	}

	return ranges, nil
}

// finishWrite maps a write response, surfacing service errors.
func finishWrite(msg *docstore.ResponseMessage) (*docstore.ItemResponse, error) {
	if !msg.IsSuccess() {
		return nil, docstore.ParseServiceError(msg)
	}

	return itemResponseOf(msg), nil
}

// lookupCache returns the cache key of a read and its cached entry, if any.
func (c *ItemsClient) lookupCache(ctx context.Context, req *docstore.OperationRequest, opts *docstore.ItemOptions) (string, *docstore.CacheEntry) {
	if c.client.cacheManager == nil {
		return "", nil
	}

	params := map[string]string{}
	if opts != nil && opts.PartitionKey != "" {
		params["pk"] = opts.PartitionKey
	}

	key := c.client.cacheManager.GetCacheKey(string(docstore.VerbRead), req.ResourceAddress, params)

	entry, err := c.client.cacheManager.GetEntry(ctx, key)
	if err != nil {
		return key, nil
	}

	return key, entry
}

// invalidate drops the cached read of an item after a write to it.
func (c *ItemsClient) invalidate(ctx context.Context, container, id string, opts *docstore.ItemOptions) {
	if c.client.cacheManager == nil {
		return
	}

	params := map[string]string{}
	if opts != nil && opts.PartitionKey != "" {
		params["pk"] = opts.PartitionKey
	}

	key := c.client.cacheManager.GetCacheKey(string(docstore.VerbRead), container+"/docs/"+id, params)
	_ = c.client.cacheManager.Invalidate(ctx, key)
}

// itemResponseOf maps a successful raw response to an item response.
func itemResponseOf(msg *docstore.ResponseMessage) *docstore.ItemResponse {
	return &docstore.ItemResponse{
		Item:          msg.Body,
		ETag:          msg.ETag(),
		SessionToken:  msg.SessionToken(),
		RequestCharge: msg.RequestCharge(),
		ActivityID:    msg.ActivityID(),
		StatusCode:    msg.StatusCode,
	}
}

// applyItemOptions stamps per-call options onto the request.
func applyItemOptions(req *docstore.OperationRequest, opts *docstore.ItemOptions) {
	if opts == nil {
		return
	}

	if opts.PartitionKey != "" {
		req.PartitionKey = opts.PartitionKey
		req.Headers.Set(constants.HeaderPartitionKey, opts.PartitionKey)
	}

	if opts.ETag != "" {
		req.Headers.Set("If-Match", opts.ETag)
	}

	if opts.IfNoneMatchETag != "" {
		req.Headers.Set("If-None-Match", opts.IfNoneMatchETag)
	}

	if opts.SessionToken != "" {
		req.Headers.Set(constants.HeaderSessionToken, opts.SessionToken)
	}

	if opts.ConsistencyLevel != "" {
		req.Headers.Set(constants.HeaderConsistencyLevel, string(opts.ConsistencyLevel))
	}

	req.IdempotentWrite = opts.IdempotentWrite
}
