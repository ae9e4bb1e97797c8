package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/themajix/docstore-client/pkg/docstore"
)

// ContainersClient implements docstore.ContainersClient.
type ContainersClient struct {
	client *Client
}

// Create implements docstore.ContainersClient.
func (c *ContainersClient) Create(ctx context.Context, database string, container *docstore.Container) (*docstore.Container, error) {
	body, err := json.Marshal(container)
	if err != nil {
		return nil, fmt.Errorf("encoding container body: %w", err)
	}

	req := docstore.NewOperationRequest(docstore.ResourceContainer, docstore.VerbCreate, docstore.DatabasePath(database)+"/colls")
	req.Body = body

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := docstore.NewTypedResponse[docstore.Container](msg)
	if err != nil {
		return nil, err
	}

	return &resp.Value, nil
}

// Read implements docstore.ContainersClient.
func (c *ContainersClient) Read(ctx context.Context, database, id string) (*docstore.Container, error) {
	req := docstore.NewOperationRequest(docstore.ResourceContainer, docstore.VerbRead, docstore.ContainerPath(database, id))

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := docstore.NewTypedResponse[docstore.Container](msg)
	if err != nil {
		return nil, err
	}

	return &resp.Value, nil
}

// Replace implements docstore.ContainersClient.
func (c *ContainersClient) Replace(ctx context.Context, database string, container *docstore.Container) (*docstore.Container, error) {
	body, err := json.Marshal(container)
	if err != nil {
		return nil, fmt.Errorf("encoding container body: %w", err)
	}

	req := docstore.NewOperationRequest(docstore.ResourceContainer, docstore.VerbReplace, docstore.ContainerPath(database, container.ID))
	req.Body = body

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := docstore.NewTypedResponse[docstore.Container](msg)
	if err != nil {
		return nil, err
	}

	return &resp.Value, nil
}

// Delete implements docstore.ContainersClient.
func (c *ContainersClient) Delete(ctx context.Context, database, id string) error {
	req := docstore.NewOperationRequest(docstore.ResourceContainer, docstore.VerbDelete, docstore.ContainerPath(database, id))

	msg, err := c.client.execute(ctx, req)
	if err != nil {
		return err
	}

	if !msg.IsSuccess() {
		return docstore.ParseServiceError(msg)
	}

	return nil
}

// List implements docstore.ContainersClient.
func (c *ContainersClient) List(ctx context.Context, database string, opts *docstore.FeedOptions) (docstore.FeedIterator, error) {
	address := docstore.DatabasePath(database) + "/colls"
	fetch := c.client.newFeedFetcher(docstore.ResourceContainer, docstore.VerbReadFeed, address, nil, "", opts)

	return docstore.NewFeedIterator(fetch, []docstore.PartitionKeyRange{{ID: ""}}, nil, opts)
}
