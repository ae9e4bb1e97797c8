package constants

import "time"

// Protocol header names.
const (
	// HeaderActivityID carries the client-generated correlation id.
	HeaderActivityID = "x-ds-activity-id"

	// HeaderSessionToken carries the session consistency token.
	HeaderSessionToken = "x-ds-session-token"

	// HeaderConsistencyLevel selects the consistency level for a request.
	HeaderConsistencyLevel = "x-ds-consistency-level"

	// HeaderContinuation carries the per-range continuation token.
	HeaderContinuation = "x-ds-continuation"

	// HeaderMaxItemCount bounds the page size of feed responses.
	HeaderMaxItemCount = "x-ds-max-item-count"

	// HeaderPartitionKey carries the partition key of the addressed item.
	HeaderPartitionKey = "x-ds-partition-key"

	// HeaderPartitionKeyRangeID routes a feed request to one partition range.
	HeaderPartitionKeyRangeID = "x-ds-partition-key-range-id"

	// HeaderIsQuery marks a request body as a query definition.
	HeaderIsQuery = "x-ds-is-query"

	// HeaderIsUpsert turns a create into create-or-replace.
	HeaderIsUpsert = "x-ds-is-upsert"

	// HeaderRequestCharge reports the request charge of a response.
	HeaderRequestCharge = "x-ds-request-charge"

	// HeaderRetryAfterMs reports the server-suggested backoff in milliseconds.
	HeaderRetryAfterMs = "x-ds-retry-after-ms"

	// HeaderSubstatus carries the service substatus code.
	HeaderSubstatus = "x-ds-substatus"

	// HeaderItemCount reports the number of items in a feed page.
	HeaderItemCount = "x-ds-item-count"
)

// Content types.
const (
	// ContentTypeJSON is the default request/response content type.
	ContentTypeJSON = "application/json"

	// ContentTypeQueryJSON marks a query definition body.
	ContentTypeQueryJSON = "application/query+json"
)

// HTTP and network timeouts.
const (
	// DefaultRequestTimeout bounds a single request attempt.
	DefaultRequestTimeout = 30 * time.Second

	// ShortRequestTimeout is used for quick metadata operations.
	ShortRequestTimeout = 10 * time.Second
)

// Retry defaults.
const (
	// DefaultRetryMax is the default maximum number of retries per operation.
	DefaultRetryMax = 9

	// SessionRetryMax bounds retries on not-yet-visible session reads.
	SessionRetryMax = 3

	// ConflictRetryMax bounds optimistic-concurrency retry loops.
	ConflictRetryMax = 5

	// DefaultRetryBaseDelay is the base delay for exponential backoff.
	DefaultRetryBaseDelay = 100 * time.Millisecond

	// DefaultRetryMaxDelay caps a single backoff delay.
	DefaultRetryMaxDelay = 5 * time.Second

	// DefaultRetryJitter is the uniform jitter window added to each delay.
	DefaultRetryJitter = 100 * time.Millisecond

	// DefaultRetryBudget caps the cumulative wait of one logical operation.
	DefaultRetryBudget = 30 * time.Second
)

// Feed and concurrency defaults.
const (
	// DefaultMaxItemCount is the default feed page size.
	DefaultMaxItemCount = 100

	// DefaultMaxConcurrency bounds parallel partition-range fetches.
	DefaultMaxConcurrency = 4

	// DefaultBufferedItemCount caps items buffered per partition range.
	DefaultBufferedItemCount = 1000
)

// Substatus codes reported by the service.
const (
	// SubstatusReadSessionNotAvailable marks a session token the replica has
	// not caught up to yet.
	SubstatusReadSessionNotAvailable = 1002
)

// Cache defaults.
const (
	// DefaultCacheSize is the maximum entry count of the memory cache.
	DefaultCacheSize = 1000

	// DefaultCacheTTL is the freshness window of cached point reads.
	DefaultCacheTTL = 5 * time.Minute
)

// Output format constants.
const (
	// FormatJSON for JSON output format.
	FormatJSON = "json"

	// FormatYAML for YAML output format.
	FormatYAML = "yaml"
)

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)
