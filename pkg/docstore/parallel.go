package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// rangeState tracks one partition range inside a cross-partition iterator.
// token is the committed raw service token for the next fetch; it only
// advances after a page arrives intact, so a failed or cancelled fetch
// leaves the range resumable from exactly where it was.
type rangeState struct {
	id string

	token string
	skip  int

	// buffered is the fetched-but-undelivered page; pageToken is the token
	// that produced it and delivered counts its items already handed out.
	buffered  *FeedPage
	pageToken string
	delivered int

	inflight  bool
	exhausted bool
}

// done reports whether the range has nothing left to deliver.
func (r *rangeState) done() bool {
	return r.exhausted && (r.buffered == nil || r.delivered >= len(r.buffered.Items))
}

// remaining returns the undelivered items of the buffered page.
func (r *rangeState) remaining() []json.RawMessage {
	if r.buffered == nil {
		return nil
	}

	return r.buffered.Items[r.delivered:]
}

type fetchResult struct {
	state *rangeState
	page  *FeedPage
	err   error
}

// crossPartitionIterator fans page fetches out across partition ranges with
// a bounded number of workers, draining each range independently. Without an
// order key, buffered pages are delivered as they complete; with one, pages
// are merged item-by-item so output is globally ordered.
type crossPartitionIterator struct {
	fetch       FetchPageFunc
	query       *QueryDefinition
	maxItems    int
	concurrency int

	ranges  []*rangeState
	results chan fetchResult

	// ready queues ranges with undelivered pages in completion order
	// (unordered mode only).
	ready []*rangeState

	inflight int

	// pendingCharge accumulates charges with no page of their own to ride
	// on: empty pages, and in ordered mode every committed page, since a
	// merged output page interleaves items from several fetches.
	pendingCharge float64
}

func newCrossPartitionIterator(fetch FetchPageFunc, ranges []PartitionKeyRange, query *QueryDefinition, state *continuationState, opts *FeedOptions) *crossPartitionIterator {
	concurrency := opts.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	if concurrency > len(ranges) {
		concurrency = len(ranges)
	}

	maxItems := opts.MaxItemCount
	if perRange := opts.BufferedItemCount / len(ranges); perRange > 0 && perRange < maxItems {
		maxItems = perRange
	}

	it := &crossPartitionIterator{
		fetch:       fetch,
		query:       query,
		maxItems:    maxItems,
		concurrency: concurrency,
		results:     make(chan fetchResult, len(ranges)),
	}

	for _, pkRange := range ranges {
		r := &rangeState{id: pkRange.ID}

		if state != nil {
			marker, live := state.Ranges[pkRange.ID]
			if !live {
				r.exhausted = true
			} else {
				r.token = marker.Token
				r.skip = marker.Skip
			}
		}

		it.ranges = append(it.ranges, r)
	}

	return it
}

// HasMore implements FeedIterator.
func (it *crossPartitionIterator) HasMore() bool {
	for _, r := range it.ranges {
		if !r.done() {
			return true
		}
	}

	return false
}

// ContinuationToken implements FeedIterator.
func (it *crossPartitionIterator) ContinuationToken() string {
	state := &continuationState{Ranges: make(map[string]rangeMarker)}
	if it.query.Ordered() {
		state.OrderBy = it.query.OrderBy
	}

	for _, r := range it.ranges {
		if r.done() {
			continue
		}

		if r.buffered != nil {
			state.Ranges[r.id] = rangeMarker{Token: r.pageToken, Skip: r.delivered}
		} else {
			state.Ranges[r.id] = rangeMarker{Token: r.token, Skip: r.skip}
		}
	}

	return encodeContinuation(state)
}

// NextPage implements FeedIterator.
func (it *crossPartitionIterator) NextPage(ctx context.Context) (*FeedPage, error) {
	if !it.HasMore() {
		return nil, ErrIteratorExhausted
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if it.query.Ordered() {
		return it.nextOrdered(ctx)
	}

	return it.nextUnordered(ctx)
}

// nextUnordered hands out the first buffered page available, prefetching
// the rest in the background.
func (it *crossPartitionIterator) nextUnordered(ctx context.Context) (*FeedPage, error) {
	it.dispatch(ctx)

	for len(it.ready) == 0 {
		if it.inflight == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			if !it.HasMore() {
				return nil, ErrIteratorExhausted
			}

			it.dispatch(ctx)
			if it.inflight == 0 && len(it.ready) == 0 {
				return nil, ErrIteratorExhausted
			}
		}

		if err := it.await(ctx); err != nil {
			return nil, err
		}
	}

	r := it.ready[0]
	it.ready = it.ready[1:]

	page := &FeedPage{
		Items:         r.remaining(),
		RequestCharge: r.buffered.RequestCharge + it.pendingCharge,
		SessionToken:  r.buffered.SessionToken,
		ActivityID:    r.buffered.ActivityID,
	}
	it.pendingCharge = 0

	it.release(r)
	it.dispatch(ctx)

	page.ContinuationToken = it.ContinuationToken()

	return page, nil
}

// nextOrdered merges buffered pages item-by-item on the query's order key.
// Every live range must hold a buffered page before an item can be chosen,
// otherwise a straggler range could own the globally next item.
func (it *crossPartitionIterator) nextOrdered(ctx context.Context) (*FeedPage, error) {
	page := &FeedPage{}

	for len(page.Items) < it.maxItems {
		if err := it.fill(ctx); err != nil {
			if len(page.Items) > 0 && errors.Is(err, ErrIteratorExhausted) {
				break
			}

			return nil, err
		}

		r := it.pickNext()
		if r == nil {
			break
		}

		items := r.remaining()
		page.Items = append(page.Items, items[0])
		page.SessionToken = r.buffered.SessionToken
		page.ActivityID = r.buffered.ActivityID
		r.delivered++

		if len(r.remaining()) == 0 {
			it.release(r)
		}
	}

	if len(page.Items) == 0 {
		return nil, ErrIteratorExhausted
	}

	page.RequestCharge = it.pendingCharge
	it.pendingCharge = 0
	page.ContinuationToken = it.ContinuationToken()

	return page, nil
}

// fill blocks until every non-done range holds a buffered page with at
// least one undelivered item. Returns ErrIteratorExhausted when all ranges
// finished.
func (it *crossPartitionIterator) fill(ctx context.Context) error {
	for {
		waiting := false

		for _, r := range it.ranges {
			if !r.done() && len(r.remaining()) == 0 {
				waiting = true
			}
		}

		if !waiting {
			if !it.HasMore() {
				return ErrIteratorExhausted
			}

			return nil
		}

		it.dispatch(ctx)

		if err := it.await(ctx); err != nil {
			return err
		}
	}
}

// pickNext selects the range holding the globally next item.
func (it *crossPartitionIterator) pickNext() *rangeState {
	var (
		best    *rangeState
		bestKey orderKey
	)

	for _, r := range it.ranges {
		items := r.remaining()
		if len(items) == 0 {
			continue
		}

		key := orderKeyOf(items[0], it.query.OrderBy)
		if best == nil {
			best, bestKey = r, key

			continue
		}

		cmp := compareOrderKeys(key, bestKey)
		if it.query.Descending {
			cmp = -cmp
		}

		if cmp < 0 {
			best, bestKey = r, key
		}
	}

	return best
}

// dispatch starts fetches for idle ranges up to the concurrency bound.
func (it *crossPartitionIterator) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	for _, r := range it.ranges {
		if it.inflight >= it.concurrency {
			return
		}

		if r.exhausted || r.inflight || r.buffered != nil {
			continue
		}

		r.inflight = true
		it.inflight++

		go func(r *rangeState, token string) {
			page, err := it.fetch(ctx, r.id, token, it.maxItems)
			it.results <- fetchResult{state: r, page: page, err: err}
		}(r, r.token)
	}
}

// await blocks for one fetch result and commits it. Cancelled fetches are
// discarded without touching range state so the iterator stays resumable.
func (it *crossPartitionIterator) await(ctx context.Context) error {
	select {
	case result := <-it.results:
		it.inflight--
		result.state.inflight = false

		if result.err != nil {
			if errors.Is(result.err, context.Canceled) || errors.Is(result.err, context.DeadlineExceeded) {
				return ctx.Err()
			}

			return result.err
		}

		it.commit(result.state, result.page)

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// commit installs a fetched page as the range's buffered page. In unordered
// mode the page keeps its own charge so delivery attributes it to the range
// that earned it; ordered pages pool charges instead.
func (it *crossPartitionIterator) commit(r *rangeState, page *FeedPage) {
	skip := r.skip
	if skip > len(page.Items) {
		skip = len(page.Items)
	}

	r.pageToken = r.token
	r.buffered = page
	r.delivered = skip
	r.skip = 0
	r.token = page.ContinuationToken

	if r.token == "" {
		r.exhausted = true
	}

	if len(r.remaining()) == 0 {
		// Empty page: nothing to deliver, so its charge folds into the next
		// delivered page; drop the buffer so the range is eligible for the
		// next fetch.
		it.pendingCharge += page.RequestCharge
		it.release(r)

		return
	}

	if it.query.Ordered() {
		it.pendingCharge += page.RequestCharge

		return
	}

	it.ready = append(it.ready, r)
}

// release discards a fully-delivered buffered page.
func (it *crossPartitionIterator) release(r *rangeState) {
	r.buffered = nil
	r.pageToken = ""
	r.delivered = 0
}
