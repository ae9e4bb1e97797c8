package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/themajix/docstore-client/internal/constants"
	"github.com/themajix/docstore-client/pkg/docstore"
)

// PartitionKeyRangesClient implements docstore.PartitionKeyRangesClient.
type PartitionKeyRangesClient struct {
	client *Client
}

// List implements docstore.PartitionKeyRangesClient. The range feed is small
// and rarely paged, but continuation is honored anyway.
func (c *PartitionKeyRangesClient) List(ctx context.Context, container string) ([]docstore.PartitionKeyRange, error) {
	var (
		ranges       []docstore.PartitionKeyRange
		continuation string
	)

	for {
		req := docstore.NewOperationRequest(docstore.ResourcePartitionKeyRange, docstore.VerbReadFeed, container+"/pkranges")
		if continuation != "" {
			req.Headers.Set(constants.HeaderContinuation, continuation)
		}

		msg, err := c.client.execute(ctx, req)
		if err != nil {
			return nil, err
		}

		page, err := parseFeedPage(msg, docstore.ResourcePartitionKeyRange)
		if err != nil {
			return nil, err
		}

		for _, raw := range page.Items {
			var pkRange docstore.PartitionKeyRange

			err := json.Unmarshal(raw, &pkRange)
			if err != nil {
				return nil, fmt.Errorf("parsing partition key range: %w", err)
			}

			ranges = append(ranges, pkRange)
		}

		continuation = page.ContinuationToken
		if continuation == "" {
			return ranges, nil
		}
	}
}
