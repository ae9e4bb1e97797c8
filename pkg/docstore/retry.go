package docstore

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/themajix/docstore-client/internal/constants"
)

// RetryOptions tunes the retry policy.
type RetryOptions struct {
	// MaxRetries is the maximum number of retries after the initial
	// attempt.
	MaxRetries int

	// BaseDelay is the base of the exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration

	// Jitter is the uniform random window added to each delay.
	Jitter time.Duration

	// Budget caps the cumulative wait across all retries of one operation.
	// Exceeding it surfaces the failure even when retries remain.
	Budget time.Duration

	// SessionRetryMax bounds retries of reads the replica has not caught
	// up to yet.
	SessionRetryMax int
}

// DefaultRetryOptions returns the default retry configuration.
func DefaultRetryOptions() *RetryOptions {
	return &RetryOptions{
		MaxRetries:      constants.DefaultRetryMax,
		BaseDelay:       constants.DefaultRetryBaseDelay,
		MaxDelay:        constants.DefaultRetryMaxDelay,
		Jitter:          constants.DefaultRetryJitter,
		Budget:          constants.DefaultRetryBudget,
		SessionRetryMax: constants.SessionRetryMax,
	}
}

// retryDecision is the outcome of classifying one failed attempt.
type retryDecision struct {
	retry bool
	delay time.Duration
	kind  FailureKind
}

// RetryPolicy is the pipeline handler that classifies failures and drives
// retries. Classification is explicit: every attempt produces a tagged
// decision consumed by the loop below, never control flow by exception.
type RetryPolicy struct {
	opts RetryOptions
}

// NewRetryPolicy builds a retry policy handler. A nil opts selects
// DefaultRetryOptions.
func NewRetryPolicy(opts *RetryOptions) *RetryPolicy {
	if opts == nil {
		opts = DefaultRetryOptions()
	}

	return &RetryPolicy{opts: *opts}
}

// Process implements Handler.
func (p *RetryPolicy) Process(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error) {
	retryCtx := req.retry
	if retryCtx == nil {
		retryCtx = &RetryContext{}
		req.retry = retryCtx
	}

	for {
		retryCtx.Attempts++

		resp, err := next(ctx, req)

		decision := p.classify(req, resp, err, retryCtx)
		if !decision.retry {
			return p.surface(resp, err, retryCtx)
		}

		retryCtx.LastFailureKind = decision.kind

		if retryCtx.Attempts > p.opts.MaxRetries {
			return p.surface(resp, err, retryCtx)
		}

		if retryCtx.CumulativeBackoff+decision.delay > p.opts.Budget {
			return p.surface(resp, err, retryCtx)
		}

		retryCtx.CumulativeBackoff += decision.delay

		if decision.delay > 0 {
			select {
			case <-time.After(decision.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
}

// classify maps a response or failure to a retry decision. The rules here
// decide whether an operation can safely run again; in particular a write
// that failed in transit is never replayed unless the caller opted in.
func (p *RetryPolicy) classify(req *OperationRequest, resp *ResponseMessage, err error, retryCtx *RetryContext) retryDecision {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return retryDecision{}
		}

		if IsTransport(err) && p.replayable(req) {
			return retryDecision{retry: true, delay: p.backoff(retryCtx.Attempts), kind: FailureTransport}
		}

		return retryDecision{}
	}

	if resp.IsSuccess() {
		return retryDecision{}
	}

	switch resp.StatusCode {
	case 429:
		delay := resp.RetryAfter()
		if delay == 0 {
			delay = p.backoff(retryCtx.Attempts)
		}

		return retryDecision{retry: true, delay: delay, kind: FailureThrottle}

	case 408, 500, 502, 503, 504:
		if p.replayable(req) {
			return retryDecision{retry: true, delay: p.backoff(retryCtx.Attempts), kind: FailureTransport}
		}

		return retryDecision{}

	case 404:
		if resp.Substatus() == constants.SubstatusReadSessionNotAvailable &&
			retryCtx.sessionRetries < p.opts.SessionRetryMax {
			retryCtx.sessionRetries++

			return retryDecision{retry: true, delay: p.opts.BaseDelay, kind: FailureSession}
		}

		return retryDecision{}

	default:
		// 412 and every other 4xx belongs to the caller: only it knows
		// how to refresh its local state and recompute the write.
		return retryDecision{}
	}
}

// replayable reports whether re-sending the request cannot duplicate side
// effects.
func (p *RetryPolicy) replayable(req *OperationRequest) bool {
	return req.Verb.IsReadOnly() || req.IdempotentWrite
}

// backoff computes min(maxDelay, baseDelay*2^attempt) + uniform jitter.
func (p *RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.opts.BaseDelay << uint(attempt-1)
	if delay > p.opts.MaxDelay || delay <= 0 {
		delay = p.opts.MaxDelay
	}

	if p.opts.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.opts.Jitter)))
	}

	return delay
}

// surface finalizes the operation outcome, stamping the attempt count so
// the retry history is never discarded.
func (p *RetryPolicy) surface(resp *ResponseMessage, err error, retryCtx *RetryContext) (*ResponseMessage, error) {
	if err != nil {
		transportErr := &TransportError{}
		if errors.As(err, &transportErr) {
			transportErr.Attempts = retryCtx.Attempts
		}

		return nil, err
	}

	resp.Attempts = retryCtx.Attempts

	return resp, nil
}
