package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/themajix/docstore-client/pkg/docstore"
)

// DatabasesClient implements docstore.DatabasesClient.
type DatabasesClient struct {
	client *Client
}

// Create implements docstore.DatabasesClient.
func (c *DatabasesClient) Create(ctx context.Context, id string) (*docstore.Database, error) {
	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return nil, fmt.Errorf("encoding database body: %w", err)
	}

	req := docstore.NewOperationRequest(docstore.ResourceDatabase, docstore.VerbCreate, "/dbs")
	req.Body = body

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := docstore.NewTypedResponse[docstore.Database](msg)
	if err != nil {
		return nil, err
	}

	return &resp.Value, nil
}

// Read implements docstore.DatabasesClient.
func (c *DatabasesClient) Read(ctx context.Context, id string) (*docstore.Database, error) {
	req := docstore.NewOperationRequest(docstore.ResourceDatabase, docstore.VerbRead, docstore.DatabasePath(id))

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := docstore.NewTypedResponse[docstore.Database](msg)
	if err != nil {
		return nil, err
	}

	return &resp.Value, nil
}

// Delete implements docstore.DatabasesClient.
func (c *DatabasesClient) Delete(ctx context.Context, id string) error {
	req := docstore.NewOperationRequest(docstore.ResourceDatabase, docstore.VerbDelete, docstore.DatabasePath(id))

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return err
	}

	if !msg.IsSuccess() {
		return docstore.ParseServiceError(msg)
	}

	return nil
}

// List implements docstore.DatabasesClient. The database feed is not
// partitioned, so it pages as a single range.
func (c *DatabasesClient) List(ctx context.Context, opts *docstore.FeedOptions) (docstore.FeedIterator, error) {
	fetch := c.client.newFeedFetcher(docstore.ResourceDatabase, docstore.VerbReadFeed, "/dbs", nil, "", opts)

	return docstore.NewFeedIterator(fetch, []docstore.PartitionKeyRange{{ID: ""}}, nil, opts)
}
