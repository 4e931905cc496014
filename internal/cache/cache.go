// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the Redis acceleration layer for record lookups and
// search results.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jeranaias/bookindex/internal/catalog"
	"github.com/jeranaias/bookindex/internal/util"
)

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the result of a cache lookup. Miss and Unavailable both mean
// "fall through to the index/store", but callers that need to distinguish a
// cold key from a dead backend can.
type Outcome int

const (
	Hit Outcome = iota
	Miss
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Hit:
		return "hit"
	case Miss:
		return "miss"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// =============================================================================
// CONFIG
// =============================================================================

// Config holds cache configuration.
type Config struct {
	// Addr is the Redis host:port.
	Addr string

	// Password is the optional Redis auth password.
	Password string

	// DB is the Redis logical database number.
	DB int

	// Enabled turns the cache off entirely when false.
	Enabled bool

	// DefaultTTL applies to entries stored with ttl <= 0.
	DefaultTTL time.Duration

	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// OpTimeout bounds every cache round-trip, so a dead backend degrades
	// to a miss within milliseconds instead of hanging the caller.
	OpTimeout time.Duration

	// ProbeInterval is how often a down backend is re-probed.
	ProbeInterval time.Duration

	// Logger receives cache log output. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:          addr,
		Enabled:       true,
		DefaultTTL:    time.Hour,
		DialTimeout:   500 * time.Millisecond,
		OpTimeout:     250 * time.Millisecond,
		ProbeInterval: 15 * time.Second,
	}
}

func (c *Config) fillDefaults() {
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = time.Hour
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 500 * time.Millisecond
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 250 * time.Millisecond
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// =============================================================================
// CACHE
// =============================================================================

// Cache is a best-effort Redis cache. The zero-value-like disabled instance
// returned for Config.Enabled == false answers Unavailable to everything.
type Cache struct {
	rdb *redis.Client
	cfg Config
	log *slog.Logger

	// Reachability state. down flips on the first network failure and
	// back on a successful probe; transitions log once each way. probe
	// rate-limits how often a down backend is pinged again.
	mu    sync.Mutex
	down  bool
	probe *rate.Limiter

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache client. It never fails: a disabled or unreachable
// backend yields a degraded instance whose lookups miss and whose writes are
// no-ops.
func New(cfg Config) *Cache {
	cfg.fillDefaults()

	c := &Cache{
		cfg:   cfg,
		log:   cfg.Logger,
		probe: rate.NewLimiter(rate.Every(cfg.ProbeInterval), 1),
	}
	if !cfg.Enabled {
		c.log.Info("cache disabled by configuration")
		return c
	}

	c.rdb = redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.OpTimeout,
		WriteTimeout:    cfg.OpTimeout,
		MaxRetries:      -1, // degradation handles failures, not retries
		ConnMaxIdleTime: 5 * time.Minute,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		c.markDown(err)
	} else {
		c.log.Info("cache connected", "addr", cfg.Addr)
	}
	return c
}

// Close releases the client connection pool.
func (c *Cache) Close() error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// =============================================================================
// REACHABILITY
// =============================================================================

// available reports whether the backend should be talked to right now. A
// down backend is re-probed at most once per ProbeInterval; the limiter's
// single token is spent per probe attempt.
func (c *Cache) available(ctx context.Context) bool {
	if c.rdb == nil {
		return false
	}

	c.mu.Lock()
	if !c.down {
		c.mu.Unlock()
		return true
	}
	c.mu.Unlock()

	if !c.probe.Allow() {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.OpTimeout)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return false
	}

	c.mu.Lock()
	c.down = false
	c.mu.Unlock()
	c.log.Info("cache reachable again", "addr", c.cfg.Addr)
	return true
}

func (c *Cache) markDown(err error) {
	c.mu.Lock()
	first := !c.down
	c.down = true
	c.mu.Unlock()

	// Spend any pending probe token so the first re-probe waits a full
	// ProbeInterval from this failure.
	c.probe.Allow()

	if first {
		c.log.Warn("cache unreachable, degrading to miss",
			"addr", c.cfg.Addr, "error", err)
	}
}

func (c *Cache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.OpTimeout)
}

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.cfg.DefaultTTL
	}
	return ttl
}

// =============================================================================
// RECORD ENTRIES
// =============================================================================

// GetRecord looks up a cached record by id.
func (c *Cache) GetRecord(ctx context.Context, id string) (*catalog.Record, Outcome) {
	if !c.available(ctx) {
		return nil, Unavailable
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	raw, err := c.rdb.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, Miss
	}
	if err != nil {
		c.markDown(err)
		return nil, Unavailable
	}

	var rec catalog.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// A corrupt entry is dropped and treated as cold.
		c.rdb.Del(ctx, recordKey(id))
		c.misses.Add(1)
		return nil, Miss
	}
	c.hits.Add(1)
	return &rec, Hit
}

// PutRecord stores a record with the given TTL (<= 0 means DefaultTTL).
func (c *Cache) PutRecord(ctx context.Context, rec *catalog.Record, ttl time.Duration) {
	if rec == nil || rec.ID == "" || !c.available(ctx) {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, recordKey(rec.ID), raw, c.ttlOrDefault(ttl)).Err(); err != nil {
		c.markDown(err)
	}
}

// PutRecords stores a batch of records in one pipelined round-trip, for
// warming the cache after bulk imports or rebuilds. Nil records and records
// without an id are skipped.
func (c *Cache) PutRecords(ctx context.Context, recs []*catalog.Record, ttl time.Duration) {
	if len(recs) == 0 || !c.available(ctx) {
		return
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	pipe := c.rdb.Pipeline()
	queued := 0
	for _, rec := range recs {
		if rec == nil || rec.ID == "" {
			continue
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		pipe.Set(ctx, recordKey(rec.ID), raw, c.ttlOrDefault(ttl))
		queued++
	}
	if queued == 0 {
		return
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.markDown(err)
		return
	}
	c.log.Debug("records cached", "count", queued)
}

// InvalidateRecord drops the cached record for id.
func (c *Cache) InvalidateRecord(ctx context.Context, id string) {
	if !c.available(ctx) {
		return
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Del(ctx, recordKey(id)).Err(); err != nil {
		c.markDown(err)
	}
}

// =============================================================================
// SEARCH RESULT ENTRIES
// =============================================================================

// GetSearchResults looks up the cached id list for one query+filter
// combination. The returned slice must be treated as immutable.
func (c *Cache) GetSearchResults(ctx context.Context, query string, filters map[string]string) ([]string, Outcome) {
	if !c.available(ctx) {
		return nil, Unavailable
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	key := searchKey(query, filters)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		return nil, Miss
	}
	if err != nil {
		c.markDown(err)
		return nil, Unavailable
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		c.rdb.Del(ctx, key)
		c.misses.Add(1)
		return nil, Miss
	}
	c.hits.Add(1)
	c.log.Debug("search cache hit",
		"query", util.TruncateRunes(query, 30), "ids", len(ids))
	return ids, Hit
}

// PutSearchResults stores the ordered id list for one query+filter
// combination.
func (c *Cache) PutSearchResults(ctx context.Context, query string, filters map[string]string, ids []string, ttl time.Duration) {
	if !c.available(ctx) {
		return
	}
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.rdb.Set(ctx, searchKey(query, filters), raw, c.ttlOrDefault(ttl)).Err(); err != nil {
		c.markDown(err)
		return
	}
	c.log.Debug("search cached",
		"query", util.TruncateRunes(query, 30), "ids", len(ids))
}

// InvalidateAllSearchResults drops every cached search result set. Any
// record mutation can change any query's result set, so invalidation is
// deliberately coarse.
func (c *Cache) InvalidateAllSearchResults(ctx context.Context) {
	if !c.available(ctx) {
		return
	}
	if dropped := c.dropByPattern(ctx, searchKeyPattern); dropped > 0 {
		c.log.Debug("invalidated search caches", "keys", dropped)
	}
}

// Clear drops every entry this package owns, records and search results
// both. Meant for operational resets; steady-state invalidation uses the
// targeted calls above.
func (c *Cache) Clear(ctx context.Context) {
	if !c.available(ctx) {
		return
	}
	dropped := c.dropByPattern(ctx, recordKeyPattern)
	dropped += c.dropByPattern(ctx, searchKeyPattern)
	if dropped > 0 {
		c.log.Info("cache cleared", "keys", dropped)
	}
}

// dropByPattern deletes every key matching pattern in SCAN batches and
// returns how many were deleted. A backend failure marks the cache down and
// stops the sweep.
func (c *Cache) dropByPattern(ctx context.Context, pattern string) int {
	var (
		cursor  uint64
		dropped int
	)
	for {
		opCtx, cancel := c.opCtx(ctx)
		keys, next, err := c.rdb.Scan(opCtx, cursor, pattern, 512).Result()
		if err != nil {
			cancel()
			c.markDown(err)
			return dropped
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(opCtx, keys...).Err(); err != nil {
				cancel()
				c.markDown(err)
				return dropped
			}
			dropped += len(keys)
		}
		cancel()

		cursor = next
		if cursor == 0 {
			return dropped
		}
	}
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats describes the cache state for health dashboards.
type Stats struct {
	Enabled     bool
	Reachable   bool
	KeyCount    int64
	MemoryBytes int64
	HitCount    int64
	MissCount   int64
}

// Stats returns current cache statistics. Hit and miss counts are local to
// this process; key count and memory come from the backend when it is
// reachable.
func (c *Cache) Stats(ctx context.Context) Stats {
	s := Stats{
		Enabled:   c.rdb != nil,
		HitCount:  c.hits.Load(),
		MissCount: c.misses.Load(),
	}
	if !c.available(ctx) {
		return s
	}
	s.Reachable = true

	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	if n, err := c.rdb.DBSize(ctx).Result(); err == nil {
		s.KeyCount = n
	}
	if info, err := c.rdb.Info(ctx, "memory").Result(); err == nil {
		s.MemoryBytes = parseUsedMemory(info)
	}
	return s
}

// parseUsedMemory extracts used_memory from an INFO memory reply.
func parseUsedMemory(info string) int64 {
	for _, line := range strings.Split(info, "\r\n") {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}
