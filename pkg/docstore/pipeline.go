package docstore

import (
	"context"
	"fmt"
)

// Transport executes the final wire request of an operation. It is the
// boundary of this package: implementations perform the network call and
// return the raw response or a transport-level failure.
type Transport interface {
	Send(ctx context.Context, req *OperationRequest) (*ResponseMessage, error)
}

// Next invokes the remainder of the handler chain. A handler may call it
// zero times (short-circuit), once (normal), or many times (retry). Each
// invocation re-enters the chain at the handler's own position, so handlers
// placed before it never observe the extra attempts.
type Next func(ctx context.Context, req *OperationRequest) (*ResponseMessage, error)

// Handler is one stage of the request pipeline.
type Handler interface {
	Process(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error)

// Process implements Handler.
func (f HandlerFunc) Process(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error) {
	return f(ctx, req, next)
}

// Chain is an ordered, immutable list of handlers terminated by a transport.
// It is built once per client and is safe for concurrent use: all mutable
// per-operation state travels inside the request.
type Chain struct {
	handlers  []Handler
	transport Transport
}

// NewChain builds a handler chain. Handlers run in the given order on the
// way out and unwind in reverse on the way back.
func NewChain(transport Transport, handlers ...Handler) *Chain {
	return &Chain{
		handlers:  handlers,
		transport: transport,
	}
}

// Execute funnels one logical operation through the chain. The retry context
// is created here and discarded when Execute returns.
func (c *Chain) Execute(ctx context.Context, req *OperationRequest) (*ResponseMessage, error) {
	req.retry = &RetryContext{}
	defer func() { req.retry = nil }()

	resp, err := c.invokeFrom(ctx, 0, req)
	if err != nil {
		return nil, fmt.Errorf("executing %s %s: %w", req.Verb, req.ResourceAddress, err)
	}

	return resp, nil
}

// invokeFrom runs the chain starting at index. The closure handed to each
// handler re-enters here, which is what keeps retries local to the handler
// that issued them.
func (c *Chain) invokeFrom(ctx context.Context, index int, req *OperationRequest) (*ResponseMessage, error) {
	if index >= len(c.handlers) {
		return c.transport.Send(ctx, req)
	}

	next := func(ctx context.Context, req *OperationRequest) (*ResponseMessage, error) {
		return c.invokeFrom(ctx, index+1, req)
	}

	return c.handlers[index].Process(ctx, req, next)
}

// NewAuthorizationHandler returns a handler that applies the credential to
// every attempt. A nil credential yields a pass-through handler.
func NewAuthorizationHandler(cred Credential) Handler {
	return HandlerFunc(func(ctx context.Context, req *OperationRequest, next Next) (*ResponseMessage, error) {
		if cred != nil {
			err := cred.Authorize(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("authorizing request: %w", err)
			}
		}

		return next(ctx, req)
	})
}
