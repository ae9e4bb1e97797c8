package docstore

import (
	"context"
	"encoding/json"

	"github.com/themajix/docstore-client/internal/constants"
)

// FetchPageFunc issues one page fetch against one partition range.
// continuation is the raw per-range token of the previous page (empty for
// the first fetch); the returned page's ContinuationToken is the raw token
// of the next page, empty when the range is exhausted.
type FetchPageFunc func(ctx context.Context, rangeID, continuation string, maxItems int) (*FeedPage, error)

// FeedIterator pages through a feed or query result. Iterators are not safe
// for concurrent use and are never recycled for a second feed.
type FeedIterator interface {
	// HasMore reports whether at least one partition range may still
	// produce items.
	HasMore() bool

	// NextPage fetches the next page. Calling it on an exhausted iterator
	// returns ErrIteratorExhausted.
	NextPage(ctx context.Context) (*FeedPage, error)

	// ContinuationToken snapshots the committed progress of the iterator.
	// Feeding it into a freshly constructed iterator for the same feed
	// resumes strictly after the last delivered item.
	ContinuationToken() string
}

// NewFeedIterator builds an iterator over the given partition ranges.
// A single range is paged sequentially; multiple ranges fan out up to
// opts.MaxConcurrency workers, merging by the query's order key when one is
// declared.
func NewFeedIterator(fetch FetchPageFunc, ranges []PartitionKeyRange, query *QueryDefinition, opts *FeedOptions) (FeedIterator, error) {
	if len(ranges) == 0 {
		return nil, ErrNoRangesResolved
	}

	options := FeedOptions{}
	if opts != nil {
		options = *opts
	}

	if options.MaxItemCount <= 0 {
		options.MaxItemCount = constants.DefaultMaxItemCount
	}

	if options.BufferedItemCount <= 0 {
		options.BufferedItemCount = constants.DefaultBufferedItemCount
	}

	state, err := decodeContinuation(options.ContinuationToken)
	if err != nil {
		return nil, err
	}

	if len(ranges) == 1 {
		return newSingleRangeIterator(fetch, ranges[0].ID, state, &options), nil
	}

	return newCrossPartitionIterator(fetch, ranges, query, state, &options), nil
}

// singleRangeIterator pages one partition range sequentially.
type singleRangeIterator struct {
	fetch    FetchPageFunc
	rangeID  string
	maxItems int

	token     string
	skip      int
	exhausted bool
}

func newSingleRangeIterator(fetch FetchPageFunc, rangeID string, state *continuationState, opts *FeedOptions) *singleRangeIterator {
	it := &singleRangeIterator{
		fetch:    fetch,
		rangeID:  rangeID,
		maxItems: opts.MaxItemCount,
	}

	if state != nil {
		marker, live := state.Ranges[rangeID]
		if !live {
			it.exhausted = true
		} else {
			it.token = marker.Token
			it.skip = marker.Skip
		}
	}

	return it
}

// HasMore implements FeedIterator.
func (it *singleRangeIterator) HasMore() bool {
	return !it.exhausted
}

// NextPage implements FeedIterator.
func (it *singleRangeIterator) NextPage(ctx context.Context) (*FeedPage, error) {
	if it.exhausted {
		return nil, ErrIteratorExhausted
	}

	page, err := it.fetch(ctx, it.rangeID, it.token, it.maxItems)
	if err != nil {
		return nil, err
	}

	if it.skip > 0 {
		if it.skip > len(page.Items) {
			it.skip = len(page.Items)
		}

		page.Items = page.Items[it.skip:]
		it.skip = 0
	}

	// Commit the range token only after the page arrived intact.
	it.token = page.ContinuationToken
	if it.token == "" {
		it.exhausted = true
	}

	page.ContinuationToken = it.ContinuationToken()

	return page, nil
}

// ContinuationToken implements FeedIterator.
func (it *singleRangeIterator) ContinuationToken() string {
	state := &continuationState{Ranges: make(map[string]rangeMarker)}
	if !it.exhausted {
		state.Ranges[it.rangeID] = rangeMarker{Token: it.token, Skip: it.skip}
	}

	return encodeContinuation(state)
}

// FeedResult pairs a streamed page with its fetch error.
type FeedResult struct {
	Page *FeedPage
	Err  error
}

// FetchAll drains the iterator and returns every remaining item in
// delivery order.
func FetchAll(ctx context.Context, it FeedIterator) ([]json.RawMessage, error) {
	var items []json.RawMessage

	for it.HasMore() {
		page, err := it.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		items = append(items, page.Items...)
	}

	return items, nil
}

// ForEachItem applies fn to every remaining item. A non-nil error from fn
// stops the iteration and is returned.
func ForEachItem(ctx context.Context, it FeedIterator, fn func(item json.RawMessage) error) error {
	for it.HasMore() {
		page, err := it.NextPage(ctx)
		if err != nil {
			return err
		}

		for _, item := range page.Items {
			err := fn(item)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// StreamPages drains the iterator on a goroutine, delivering one FeedResult
// per page. The channel closes after the terminal page or the first error.
func StreamPages(ctx context.Context, it FeedIterator) <-chan FeedResult {
	results := make(chan FeedResult)

	go func() {
		defer close(results)

		for it.HasMore() {
			page, err := it.NextPage(ctx)
			if err != nil {
				select {
				case results <- FeedResult{Err: err}:
				case <-ctx.Done():
				}

				return
			}

			select {
			case results <- FeedResult{Page: page}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results
}
