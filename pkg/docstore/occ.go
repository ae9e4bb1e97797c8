package docstore

import (
	"context"
	"fmt"

	"github.com/themajix/docstore-client/internal/constants"
)

// ItemMutator transforms the current state of an item into its desired
// state. current is nil when the item does not exist yet (only reachable
// with CreateIfMissing). The mutator may be invoked several times against
// fresher reads, so it must be side-effect free.
type ItemMutator func(current []byte) ([]byte, error)

// ReadModifyWriteOptions tunes the optimistic-concurrency loop.
type ReadModifyWriteOptions struct {
	// PartitionKey of the addressed item.
	PartitionKey string

	// MaxRetries bounds how many precondition failures are absorbed before
	// giving up. Zero selects the default.
	MaxRetries int

	// CreateIfMissing creates the item from mutator(nil) when the initial
	// read finds nothing.
	CreateIfMissing bool

	// SessionToken overrides the client session token for the loop's reads.
	SessionToken string
}

// ReadModifyWrite performs an optimistic-concurrency update: read the item,
// apply mutate, and write the result back conditioned on the ETag observed
// by the read. A concurrent writer makes the conditional write fail its
// precondition; the loop then re-reads and re-applies mutate against the
// fresh state. Interleaved updates are never lost, only retried.
func ReadModifyWrite(ctx context.Context, items ItemsClient, container, id string, mutate ItemMutator, opts *ReadModifyWriteOptions) (*ItemResponse, error) {
	if items == nil {
		return nil, &ValidationError{Message: "items client is required"}
	}

	if container == "" {
		return nil, ErrContainerRequired
	}

	if id == "" {
		return nil, ErrItemIDRequired
	}

	if mutate == nil {
		return nil, ErrMutatorRequired
	}

	options := ReadModifyWriteOptions{}
	if opts != nil {
		options = *opts
	}

	if options.MaxRetries <= 0 {
		options.MaxRetries = constants.ConflictRetryMax
	}

	itemOpts := &ItemOptions{
		PartitionKey: options.PartitionKey,
		SessionToken: options.SessionToken,
	}

	var lastErr error

	for attempt := 0; attempt <= options.MaxRetries; attempt++ {
		current, err := items.Read(ctx, container, id, itemOpts)

		switch {
		case err == nil:
			resp, writeErr := replaceConditional(ctx, items, container, id, current, mutate, itemOpts)
			if writeErr == nil {
				return resp, nil
			}

			if !IsPreconditionFailed(writeErr) {
				return nil, writeErr
			}

			// Lost the race; go around with a fresh read.
			lastErr = writeErr
		case IsNotFound(err) && options.CreateIfMissing:
			resp, createErr := createMissing(ctx, items, container, mutate, itemOpts)
			if createErr == nil {
				return resp, nil
			}

			if !IsConflict(createErr) {
				return nil, createErr
			}

			// Another writer created it first; the next read will see it.
			lastErr = createErr
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConflictRetryLimit, options.MaxRetries+1, lastErr)
}

func replaceConditional(ctx context.Context, items ItemsClient, container, id string, current *ItemResponse, mutate ItemMutator, opts *ItemOptions) (*ItemResponse, error) {
	if current.ETag == "" {
		// Without a version marker the replace cannot be conditioned, and an
		// unconditional write would silently overwrite concurrent updates.
		return nil, fmt.Errorf("%w: %s", ErrMissingETag, id)
	}

	next, err := mutate(current.Item)
	if err != nil {
		return nil, fmt.Errorf("applying mutation: %w", err)
	}

	writeOpts := *opts
	writeOpts.ETag = current.ETag

	return items.Replace(ctx, container, id, next, &writeOpts)
}

func createMissing(ctx context.Context, items ItemsClient, container string, mutate ItemMutator, opts *ItemOptions) (*ItemResponse, error) {
	initial, err := mutate(nil)
	if err != nil {
		return nil, fmt.Errorf("applying mutation: %w", err)
	}

	return items.Create(ctx, container, initial, opts)
}
