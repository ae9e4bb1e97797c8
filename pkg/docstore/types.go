package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// ResourceKind identifies the kind of resource an operation addresses.
type ResourceKind string

const (
	ResourceDatabase          ResourceKind = "database"
	ResourceContainer         ResourceKind = "container"
	ResourceItem              ResourceKind = "item"
	ResourceStoredProcedure   ResourceKind = "storedprocedure"
	ResourceTrigger           ResourceKind = "trigger"
	ResourceUDF               ResourceKind = "udf"
	ResourceConflict          ResourceKind = "conflict"
	ResourcePartitionKeyRange ResourceKind = "pkrange"
)

// Verb identifies the logical operation performed against a resource.
type Verb string

const (
	VerbCreate   Verb = "create"
	VerbRead     Verb = "read"
	VerbReplace  Verb = "replace"
	VerbDelete   Verb = "delete"
	VerbUpsert   Verb = "upsert"
	VerbReadFeed Verb = "readfeed"
	VerbQuery    Verb = "query"
	VerbExecute  Verb = "execute"
)

// IsReadOnly reports whether the verb has no side effects on the service.
func (v Verb) IsReadOnly() bool {
	switch v {
	case VerbRead, VerbReadFeed, VerbQuery:
		return true
	default:
		return false
	}
}

// Method maps the verb to its HTTP method.
func (v Verb) Method() string {
	switch v {
	case VerbRead, VerbReadFeed:
		return "GET"
	case VerbReplace:
		return "PUT"
	case VerbDelete:
		return "DELETE"
	default:
		// Create, Upsert, Query, and Execute all post a body.
		return "POST"
	}
}

// ConsistencyLevel selects the read consistency of an operation.
type ConsistencyLevel string

const (
	ConsistencyStrong           ConsistencyLevel = "Strong"
	ConsistencyBoundedStaleness ConsistencyLevel = "BoundedStaleness"
	ConsistencySession          ConsistencyLevel = "Session"
	ConsistencyEventual         ConsistencyLevel = "Eventual"
)

// Logger is the logging interface used throughout the client.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Credential authorizes outgoing requests. Token computation is external to
// this client; implementations only need to stamp the request.
type Credential interface {
	Authorize(ctx context.Context, req *OperationRequest) error
}

// TokenCredential is a static bearer-token credential.
type TokenCredential struct {
	Token string
}

// Authorize implements Credential.
func (c *TokenCredential) Authorize(ctx context.Context, req *OperationRequest) error {
	req.Headers.Set("Authorization", "Bearer "+c.Token)

	return nil
}

// Config configures a client.
type Config struct {
	// Endpoint is the account endpoint URL.
	Endpoint string

	// Credential authorizes requests. Optional for unauthenticated endpoints.
	Credential Credential

	// ConsistencyLevel applied to all operations unless overridden per call.
	ConsistencyLevel ConsistencyLevel

	// Logger receives debug/info/warn/error output. Optional.
	Logger Logger

	// Debug enables transport-level request/response logging.
	Debug bool

	// UserAgent overrides the default user agent string.
	UserAgent string

	// Retry tunes the retry policy. Nil selects DefaultRetryOptions.
	Retry *RetryOptions

	// RequestTimeout bounds a single request attempt (not the whole
	// operation, which is bounded by the retry budget).
	RequestTimeout time.Duration

	// Cache configures the point-read cache. Nil disables caching.
	Cache *CacheConfig
}

// Database represents a database resource.
type Database struct {
	ID        string    `json:"id"                  yaml:"id"`
	RID       string    `json:"_rid,omitempty"      yaml:"rid,omitempty"`
	ETag      string    `json:"_etag,omitempty"     yaml:"etag,omitempty"`
	Timestamp int64     `json:"_ts,omitempty"       yaml:"ts,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

// Container represents a container resource.
type Container struct {
	ID               string   `json:"id"                         yaml:"id"`
	RID              string   `json:"_rid,omitempty"             yaml:"rid,omitempty"`
	ETag             string   `json:"_etag,omitempty"            yaml:"etag,omitempty"`
	Timestamp        int64    `json:"_ts,omitempty"              yaml:"ts,omitempty"`
	PartitionKeyPath string   `json:"partitionKeyPath,omitempty" yaml:"partition_key_path,omitempty"`
	IndexedPaths     []string `json:"indexedPaths,omitempty"     yaml:"indexed_paths,omitempty"`
}

// PartitionKeyRange describes one contiguous shard of a container keyspace.
type PartitionKeyRange struct {
	ID           string `json:"id"           yaml:"id"`
	MinInclusive string `json:"minInclusive" yaml:"min_inclusive"`
	MaxExclusive string `json:"maxExclusive" yaml:"max_exclusive"`
}

// FeedPage is one page of a feed or query result.
type FeedPage struct {
	// Items in service-returned order.
	Items []json.RawMessage

	// ContinuationToken resumes the feed after this page. Empty when the
	// feed is exhausted. Opaque to callers: pass it back unmodified.
	ContinuationToken string

	// RequestCharge consumed producing this page. Ordered cross-partition
	// pages interleave items from several fetches, so their charge covers
	// every fetch committed since the previous page; summing over all pages
	// always yields the total charge of the feed.
	RequestCharge float64

	// SessionToken observed on the page response.
	SessionToken string

	// ActivityID correlates the page fetch.
	ActivityID string
}

// ItemResponse is the typed result of an item operation.
type ItemResponse struct {
	// Item is the response body, if any.
	Item json.RawMessage

	// ETag is the item's current version marker.
	ETag string

	// SessionToken observed on the response.
	SessionToken string

	// RequestCharge consumed by the operation.
	RequestCharge float64

	// ActivityID correlates the operation.
	ActivityID string

	// StatusCode of the final attempt.
	StatusCode int
}

// TypedResponse is the result of mapping a raw response into a value of T.
type TypedResponse[T any] struct {
	Value         T
	ETag          string
	SessionToken  string
	RequestCharge float64
	ActivityID    string
	StatusCode    int
}

// NewTypedResponse maps a raw response message into a typed result. It must
// be invoked at most once per response: it consumes the body.
func NewTypedResponse[T any](msg *ResponseMessage) (*TypedResponse[T], error) {
	if !msg.IsSuccess() {
		return nil, ParseServiceError(msg)
	}

	result := &TypedResponse[T]{
		ETag:          msg.ETag(),
		SessionToken:  msg.SessionToken(),
		RequestCharge: msg.RequestCharge(),
		ActivityID:    msg.ActivityID(),
		StatusCode:    msg.StatusCode,
	}

	if len(msg.Body) > 0 {
		err := json.Unmarshal(msg.Body, &result.Value)
		if err != nil {
			return nil, fmt.Errorf("parsing response body: %w", err)
		}
	}

	return result, nil
}

// ItemIdentity addresses a single item for batch point reads.
type ItemIdentity struct {
	ID           string
	PartitionKey string
}

// ItemOptions carries per-call options for item operations.
type ItemOptions struct {
	// PartitionKey of the addressed item.
	PartitionKey string

	// ETag enables an If-Match precondition on writes.
	ETag string

	// IfNoneMatchETag enables an If-None-Match precondition on reads.
	IfNoneMatchETag string

	// SessionToken overrides the client session token for this call.
	SessionToken string

	// ConsistencyLevel overrides the client default for this call.
	ConsistencyLevel ConsistencyLevel

	// IdempotentWrite marks a write as safe to retry on transient
	// transport failures. Off by default: retrying a non-idempotent write
	// can duplicate side effects.
	IdempotentWrite bool
}

// FeedOptions carries options for feed and query execution.
type FeedOptions struct {
	// MaxItemCount bounds the page size. Zero selects the default.
	MaxItemCount int

	// MaxConcurrency bounds parallel partition-range fetches. Values <= 1
	// select sequential execution.
	MaxConcurrency int

	// BufferedItemCount caps items buffered per partition range.
	BufferedItemCount int

	// ContinuationToken resumes a previously started feed.
	ContinuationToken string

	// PartitionKey restricts the feed to a single partition.
	PartitionKey string

	// SessionToken overrides the client session token for this feed.
	SessionToken string

	// ConsistencyLevel overrides the client default for this feed.
	ConsistencyLevel ConsistencyLevel
}

// DatabasesClient manages database resources.
type DatabasesClient interface {
	Create(ctx context.Context, id string) (*Database, error)
	Read(ctx context.Context, id string) (*Database, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, opts *FeedOptions) (FeedIterator, error)
}

// ContainersClient manages container resources.
type ContainersClient interface {
	Create(ctx context.Context, database string, container *Container) (*Container, error)
	Read(ctx context.Context, database, id string) (*Container, error)
	Replace(ctx context.Context, database string, container *Container) (*Container, error)
	Delete(ctx context.Context, database, id string) error
	List(ctx context.Context, database string, opts *FeedOptions) (FeedIterator, error)
}

// ItemsClient manages item resources within a container.
type ItemsClient interface {
	Create(ctx context.Context, container string, item []byte, opts *ItemOptions) (*ItemResponse, error)
	Read(ctx context.Context, container, id string, opts *ItemOptions) (*ItemResponse, error)
	Replace(ctx context.Context, container, id string, item []byte, opts *ItemOptions) (*ItemResponse, error)
	Upsert(ctx context.Context, container string, item []byte, opts *ItemOptions) (*ItemResponse, error)
	Delete(ctx context.Context, container, id string, opts *ItemOptions) error
	Query(ctx context.Context, container string, query *QueryDefinition, opts *FeedOptions) (FeedIterator, error)
	ReadFeed(ctx context.Context, container string, opts *FeedOptions) (FeedIterator, error)
	ReadMany(ctx context.Context, container string, ids []ItemIdentity, opts *ItemOptions) ([]*ItemResponse, error)
}

// PartitionKeyRangesClient lists the partition key ranges of a container.
type PartitionKeyRangesClient interface {
	List(ctx context.Context, container string) ([]PartitionKeyRange, error)
}

// Client is the root client interface.
type Client interface {
	Databases() DatabasesClient
	Containers() ContainersClient
	Items() ItemsClient
	PartitionKeyRanges() PartitionKeyRangesClient

	// Session exposes the session token store shared by all operations on
	// this client.
	Session() *SessionStore
}

// DatabasePath builds the resource address of a database.
func DatabasePath(database string) string {
	return "/dbs/" + database
}

// ContainerPath builds the resource address of a container.
func ContainerPath(database, container string) string {
	return "/dbs/" + database + "/colls/" + container
}
