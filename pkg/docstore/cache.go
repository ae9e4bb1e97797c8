package docstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/themajix/docstore-client/internal/constants"
)

var (
	ErrCacheKeyNotFound  = errors.New("key not found in cache")
	ErrCacheEntryExpired = errors.New("cache entry expired")
)

// CacheEntry is one cached point-read result. ETag and SessionToken are kept
// alongside the body so a revalidating read can send If-None-Match and still
// honor session consistency on a 304.
type CacheEntry struct {
	Data         []byte    `json:"data"`
	ETag         string    `json:"etag,omitempty"`
	SessionToken string    `json:"sessionToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e *CacheEntry) Expired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache is the backend interface for the point-read cache.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Has(ctx context.Context, key string) bool
}

// MemoryCache is an in-process cache bounded by entry count. When full, the
// entry closest to expiry is evicted.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*CacheEntry
	maxSize int
}

// NewMemoryCache creates a memory cache holding at most maxSize entries.
func NewMemoryCache(maxSize int) *MemoryCache {
	if maxSize <= 0 {
		maxSize = constants.DefaultCacheSize
	}

	return &MemoryCache{
		entries: make(map[string]*CacheEntry),
		maxSize: maxSize,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrCacheKeyNotFound
	}

	if entry.Expired() {
		_ = c.Delete(ctx, key)

		return nil, ErrCacheEntryExpired
	}

	return entry, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}

	c.entries[key] = entry

	return nil
}

// evictLocked drops the entry closest to expiry. Caller holds the lock.
func (c *MemoryCache) evictLocked() {
	var (
		victim   string
		earliest time.Time
	)

	for key, entry := range c.entries {
		if victim == "" || entry.ExpiresAt.Before(earliest) {
			victim = key
			earliest = entry.ExpiresAt
		}
	}

	if victim != "" {
		delete(c.entries, victim)
	}
}

// Delete implements Cache.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)

	return nil
}

// Clear implements Cache.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)

	return nil
}

// Has implements Cache.
func (c *MemoryCache) Has(ctx context.Context, key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]

	return ok && !entry.Expired()
}

// Cleanup drops all expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if entry.Expired() {
			delete(c.entries, key)
		}
	}
}

// CacheStats counts cache manager activity.
type CacheStats struct {
	Hits   int64
	Misses int64
	Sets   int64
}

// GetHitRate returns hits / (hits + misses), or zero with no traffic.
func (s *CacheStats) GetHitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// CacheManager wraps a Cache backend with key construction, TTL defaulting,
// and hit/miss accounting.
type CacheManager struct {
	cache  Cache
	logger Logger
	ttl    time.Duration

	mu    sync.Mutex
	stats CacheStats
}

// NewCacheManager creates a manager over the given backend. A nil cache
// selects an unbounded-default memory cache; a nil logger disables logging.
func NewCacheManager(cache Cache, logger Logger) *CacheManager {
	if cache == nil {
		cache = NewMemoryCache(constants.DefaultCacheSize)
	}

	return &CacheManager{
		cache:  cache,
		logger: logger,
		ttl:    constants.DefaultCacheTTL,
	}
}

// GetCacheKey builds a deterministic key from a verb, resource address, and
// optional qualifiers (partition key, consistency level).
func (m *CacheManager) GetCacheKey(verb, address string, params map[string]string) string {
	if len(params) == 0 {
		return verb + ":" + address
	}

	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+params[key])
	}

	return verb + ":" + address + ":" + strings.Join(parts, "&")
}

// Get returns the cached body for a key.
func (m *CacheManager) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := m.GetEntry(ctx, key)
	if err != nil {
		return nil, err
	}

	return entry.Data, nil
}

// GetEntry returns the full cached entry for a key, counting hits and misses.
func (m *CacheManager) GetEntry(ctx context.Context, key string) (*CacheEntry, error) {
	entry, err := m.cache.Get(ctx, key)
	if err != nil {
		m.count(func(s *CacheStats) { s.Misses++ })

		return nil, err
	}

	m.count(func(s *CacheStats) { s.Hits++ })

	return entry, nil
}

// Set stores a body under a key with the given TTL (zero selects the
// default).
func (m *CacheManager) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return m.SetWithETag(ctx, key, data, "", ttl)
}

// SetWithETag stores a body with its version marker.
func (m *CacheManager) SetWithETag(ctx context.Context, key string, data []byte, etag string, ttl time.Duration) error {
	return m.SetEntry(ctx, key, &CacheEntry{Data: data, ETag: etag}, ttl)
}

// SetEntry stores a full entry, stamping its expiry.
func (m *CacheManager) SetEntry(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}

	entry.ExpiresAt = time.Now().Add(ttl)

	err := m.cache.Set(ctx, key, entry)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("cache set failed", map[string]interface{}{"key": key, "error": err.Error()})
		}

		return err
	}

	m.count(func(s *CacheStats) { s.Sets++ })

	return nil
}

// Invalidate drops a key, e.g. after a write to the addressed item.
func (m *CacheManager) Invalidate(ctx context.Context, key string) error {
	return m.cache.Delete(ctx, key)
}

// GetStats returns a snapshot of the counters.
func (m *CacheManager) GetStats() *CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.stats

	return &snapshot
}

func (m *CacheManager) count(fn func(*CacheStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn(&m.stats)
}

// CachingPolicy decides which operations are cacheable.
type CachingPolicy struct {
	// CacheReads enables caching of point reads.
	CacheReads bool

	// CacheErrors enables caching of non-success responses.
	CacheErrors bool

	// IncludePaths restricts caching to address prefixes. Empty means all.
	IncludePaths []string

	// ExcludePaths exempts address prefixes from caching.
	ExcludePaths []string
}

// DefaultCachingPolicy caches successful point reads only.
func DefaultCachingPolicy() *CachingPolicy {
	return &CachingPolicy{
		CacheReads: true,
	}
}

// ShouldCache reports whether a response for the given verb, address, and
// status may be stored.
func (p *CachingPolicy) ShouldCache(verb Verb, address string, statusCode int) bool {
	if verb != VerbRead || !p.CacheReads {
		return false
	}

	if statusCode >= 400 && !p.CacheErrors {
		return false
	}

	for _, prefix := range p.ExcludePaths {
		if strings.HasPrefix(address, prefix) {
			return false
		}
	}

	if len(p.IncludePaths) == 0 {
		return true
	}

	for _, prefix := range p.IncludePaths {
		if strings.HasPrefix(address, prefix) {
			return true
		}
	}

	return false
}

// NATSKVConfig configures the NATS JetStream key-value cache backend.
type NATSKVConfig struct {
	// URLs of the NATS servers.
	URLs []string

	// Bucket is the KV bucket name. Created if absent.
	Bucket string

	// TTL applied at the bucket level. Zero disables bucket TTL; per-entry
	// expiry still applies on read.
	TTL time.Duration

	// CredsFile is an optional NATS credentials file.
	CredsFile string
}

// NATSKVCache stores entries in a NATS JetStream key-value bucket, letting
// several client processes share one point-read cache.
type NATSKVCache struct {
	conn   *nats.Conn
	bucket nats.KeyValue
}

// NewNATSKVCache connects to NATS and binds (or creates) the bucket.
func NewNATSKVCache(config *NATSKVConfig) (*NATSKVCache, error) {
	if config == nil || len(config.URLs) == 0 {
		return nil, ErrNATSConfigRequired
	}

	opts := []nats.Option{nats.Name("docstore-cache")}
	if config.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(config.CredsFile))
	}

	conn, err := nats.Connect(strings.Join(config.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("opening JetStream context: %w", err)
	}

	bucketName := config.Bucket
	if bucketName == "" {
		bucketName = "docstore-cache"
	}

	bucket, err := js.KeyValue(bucketName)
	if errors.Is(err, nats.ErrBucketNotFound) {
		bucket, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: bucketName,
			TTL:    config.TTL,
		})
	}

	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("binding KV bucket %q: %w", bucketName, err)
	}

	return &NATSKVCache{conn: conn, bucket: bucket}, nil
}

// sanitizeKey maps arbitrary cache keys onto the NATS KV key alphabet.
func sanitizeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// Get implements Cache.
func (c *NATSKVCache) Get(ctx context.Context, key string) (*CacheEntry, error) {
	kvEntry, err := c.bucket.Get(sanitizeKey(key))
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, ErrCacheKeyNotFound
		}

		return nil, fmt.Errorf("reading cache key: %w", err)
	}

	var entry CacheEntry

	err = json.Unmarshal(kvEntry.Value(), &entry)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry: %w", err)
	}

	if entry.Expired() {
		_ = c.Delete(ctx, key)

		return nil, ErrCacheEntryExpired
	}

	return &entry, nil
}

// Set implements Cache.
func (c *NATSKVCache) Set(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding cache entry: %w", err)
	}

	_, err = c.bucket.Put(sanitizeKey(key), data)
	if err != nil {
		return fmt.Errorf("writing cache key: %w", err)
	}

	return nil
}

// Delete implements Cache.
func (c *NATSKVCache) Delete(ctx context.Context, key string) error {
	err := c.bucket.Delete(sanitizeKey(key))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("deleting cache key: %w", err)
	}

	return nil
}

// Clear implements Cache.
func (c *NATSKVCache) Clear(ctx context.Context) error {
	keys, err := c.bucket.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}

		return fmt.Errorf("listing cache keys: %w", err)
	}

	for _, key := range keys {
		err := c.bucket.Delete(key)
		if err != nil {
			return fmt.Errorf("deleting cache key: %w", err)
		}
	}

	return nil
}

// Has implements Cache.
func (c *NATSKVCache) Has(ctx context.Context, key string) bool {
	entry, err := c.Get(ctx, key)

	return err == nil && entry != nil
}

// Close releases the NATS connection.
func (c *NATSKVCache) Close() {
	c.conn.Close()
}
