// Package dsclient constructs a ready-to-use document store client from a
// docstore.Config: it normalizes the endpoint, assembles the transport,
// cache, and request pipeline, and returns the root client interface.
package dsclient

import (
	"fmt"
	"strings"

	"github.com/themajix/docstore-client/internal/client"
	"github.com/themajix/docstore-client/internal/transport"
	"github.com/themajix/docstore-client/pkg/docstore"
)

// New creates a new document store client from the given configuration.
func New(config *docstore.Config) (docstore.Client, error) {
	if config == nil {
		return nil, docstore.ErrConfigRequired
	}

	if config.Endpoint == "" {
		return nil, docstore.ErrEndpointRequired
	}

	endpoint := normalizeEndpoint(config.Endpoint)

	transportOpts := []transport.Option{
		transport.WithLogger(config.Logger),
		transport.WithDebug(config.Debug),
	}
	if config.UserAgent != "" {
		transportOpts = append(transportOpts, transport.WithUserAgent(config.UserAgent))
	}

	if config.RequestTimeout > 0 {
		transportOpts = append(transportOpts, transport.WithRequestTimeout(config.RequestTimeout))
	}

	var (
		cache       docstore.Cache
		cachePolicy *docstore.CachingPolicy
	)

	if config.Cache != nil {
		built, err := docstore.NewCacheFromConfig(config.Cache)
		if err != nil {
			return nil, fmt.Errorf("building cache: %w", err)
		}

		cache = built
		cachePolicy = config.Cache.Policy
	}

	return client.New(client.Options{
		Transport:        transport.New(endpoint, transportOpts...),
		Credential:       config.Credential,
		ConsistencyLevel: config.ConsistencyLevel,
		Retry:            config.Retry,
		Logger:           config.Logger,
		Cache:            cache,
		CachePolicy:      cachePolicy,
	}), nil
}

// normalizeEndpoint defaults the scheme to https and strips trailing
// slashes so resource addresses concatenate cleanly.
func normalizeEndpoint(endpoint string) string {
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return strings.TrimRight(endpoint, "/")
}
