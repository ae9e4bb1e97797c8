// Package transport implements the HTTP transport terminating the request
// pipeline: it maps logical operations onto HTTP requests against the
// service endpoint and reads responses back, leaving protocol-level retry
// decisions to the pipeline above it.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"

	"github.com/themajix/docstore-client/internal/constants"
	"github.com/themajix/docstore-client/pkg/docstore"
)

// Client sends operation requests over HTTP. It implements
// docstore.Transport.
type Client struct {
	endpoint       string
	httpClient     *retryablehttp.Client
	logger         docstore.Logger
	userAgent      string
	requestTimeout time.Duration
	debug          bool
}

// Option configures the transport client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger docstore.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithRequestTimeout bounds a single attempt.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithHTTPClient swaps the underlying HTTP client, e.g. for custom TLS.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient.HTTPClient = httpClient
	}
}

// WithConnectionRetries enables transport-level retries of dial failures.
// The pipeline's retry policy owns protocol retries; this only smooths over
// connection churn beneath it.
func WithConnectionRetries(max int) Option {
	return func(c *Client) {
		c.httpClient.RetryMax = max
	}
}

// New creates a transport client for the given endpoint.
func New(endpoint string, opts ...Option) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 0
	httpClient.Logger = nil

	client := &Client{
		endpoint:       endpoint,
		httpClient:     httpClient,
		userAgent:      "docstore-client/1.0",
		requestTimeout: constants.DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.httpClient.HTTPClient.Timeout = client.requestTimeout

	return client
}

// Send implements docstore.Transport. Any status code is returned as a
// response; only transport-level failures become errors.
func (c *Client) Send(ctx context.Context, req *docstore.OperationRequest) (*docstore.ResponseMessage, error) {
	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.debug && c.logger != nil {
		fields := map[string]interface{}{
			"method": httpReq.Method,
			"url":    httpReq.URL.String(),
			"verb":   string(req.Verb),
		}
		if retryCtx := req.RetryContext(); retryCtx != nil {
			fields["attempt"] = retryCtx.Attempts
		}

		c.logger.Debug("sending request", fields)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &docstore.TransportError{
			Op:  string(req.Verb) + " " + req.ResourceAddress,
			Err: err,
		}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := c.readBody(httpResp)
	if err != nil {
		return nil, &docstore.TransportError{
			Op:  string(req.Verb) + " " + req.ResourceAddress,
			Err: err,
		}
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("received response", map[string]interface{}{
			"status_code": httpResp.StatusCode,
			"url":         httpReq.URL.String(),
			"body_size":   len(body),
		})
	}

	return &docstore.ResponseMessage{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, req *docstore.OperationRequest) (*retryablehttp.Request, error) {
	url := c.endpoint + req.ResourceAddress

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Verb.Method(), url, body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", req.ResourceAddress, err)
	}

	for key, values := range req.Headers {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", constants.ContentTypeJSON)
	}

	httpReq.Header.Set("Accept", constants.ContentTypeJSON)
	httpReq.Header.Set("Accept-Encoding", "gzip")
	httpReq.Header.Set("User-Agent", c.userAgent)

	return httpReq, nil
}

// readBody drains the response body, transparently inflating gzip.
func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader := resp.Body

	if resp.Header.Get("Content-Encoding") == "gzip" {
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("opening gzip reader: %w", err)
		}
		defer func() { _ = gzReader.Close() }()

		reader = gzReader
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}
