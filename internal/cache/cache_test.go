// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the Redis acceleration layer for record lookups and
// search results.
package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookindex/internal/catalog"
)

// =============================================================================
// HELPERS
// =============================================================================

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(DefaultConfig(mr.Addr()))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

// =============================================================================
// RECORD ENTRY TESTS
// =============================================================================

func TestRecordRoundtrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	rec := &catalog.Record{
		ID:      "b1",
		Title:   "Морето на спокойствието",
		Authors: []string{"Емили Мандел"},
	}
	c.PutRecord(ctx, rec, 0)

	got, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Hit, out)
	require.Equal(t, rec, got)
}

func TestRecordMiss(t *testing.T) {
	c, _ := newTestCache(t)

	got, out := c.GetRecord(context.Background(), "absent")
	require.Equal(t, Miss, out)
	require.Nil(t, got)
}

func TestRecordTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "Ephemeral"}, time.Minute)
	mr.FastForward(2 * time.Minute)

	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Miss, out)
}

func TestInvalidateRecord(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "Soon gone"}, 0)
	c.InvalidateRecord(ctx, "b1")

	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Miss, out)
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(recordKey("b1"), "{not json"))
	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Miss, out)
	require.False(t, mr.Exists(recordKey("b1")))
}

func TestPutRecordsBatch(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.PutRecords(ctx, []*catalog.Record{
		{ID: "b1", Title: "First"},
		nil,
		{Title: "no id, skipped"},
		{ID: "b2", Title: "Втора"},
	}, 0)

	got, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Hit, out)
	require.Equal(t, "First", got.Title)
	got, out = c.GetRecord(ctx, "b2")
	require.Equal(t, Hit, out)
	require.Equal(t, "Втора", got.Title)

	// Only the two valid records were stored.
	require.Len(t, mr.Keys(), 2)
}

// =============================================================================
// SEARCH ENTRY TESTS
// =============================================================================

func TestSearchResultsRoundtrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	filters := map[string]string{"language": "bg", "media": "book"}
	c.PutSearchResults(ctx, "морето", filters, []string{"b1", "b3", "b2"}, 0)

	ids, out := c.GetSearchResults(ctx, "морето", filters)
	require.Equal(t, Hit, out)
	require.Equal(t, []string{"b1", "b3", "b2"}, ids)
}

func TestSearchKeyFilterOrderIndependent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.PutSearchResults(ctx, "sea",
		map[string]string{"a": "1", "b": "2"}, []string{"x"}, 0)

	// Same filters in a different construction order hit the same key.
	ids, out := c.GetSearchResults(ctx, "sea",
		map[string]string{"b": "2", "a": "1"})
	require.Equal(t, Hit, out)
	require.Equal(t, []string{"x"}, ids)

	// Different filter values are a different key.
	_, out = c.GetSearchResults(ctx, "sea", map[string]string{"a": "1", "b": "3"})
	require.Equal(t, Miss, out)
}

func TestSearchKeyQueryNormalization(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.PutSearchResults(ctx, "  МОРЕТО   на  ", nil, []string{"b1"}, 0)

	ids, out := c.GetSearchResults(ctx, "морето на", nil)
	require.Equal(t, Hit, out)
	require.Equal(t, []string{"b1"}, ids)
}

func TestSearchKeyFieldBoundaries(t *testing.T) {
	// Filter pairs whose bytes concatenate identically must not collide.
	require.NotEqual(t,
		searchKey("sea", map[string]string{"a": "b=c"}),
		searchKey("sea", map[string]string{"a=b": "c"}))

	// Shifting bytes between a filter key and its value is a different key.
	require.NotEqual(t,
		searchKey("sea", map[string]string{"ab": "c"}),
		searchKey("sea", map[string]string{"a": "bc"}))

	// A query carrying separator-like bytes must not impersonate a filter.
	require.NotEqual(t,
		searchKey("sea\x00a=b", nil),
		searchKey("sea", map[string]string{"a": "b"}))

	// Filter order independence survives the field encoding.
	require.Equal(t,
		searchKey("sea", map[string]string{"a": "1", "b": "2"}),
		searchKey("sea", map[string]string{"b": "2", "a": "1"}))
}

func TestCanonicalQuery(t *testing.T) {
	require.Equal(t, "морето на", CanonicalQuery("  МОРЕТО \t на "))
	require.Equal(t, "sea of tranquility", CanonicalQuery("Sea  OF Tranquility"))
	require.Equal(t, "", CanonicalQuery("   "))
}

func TestInvalidateAllSearchResults(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.PutSearchResults(ctx, "one", nil, []string{"a"}, 0)
	c.PutSearchResults(ctx, "two", map[string]string{"k": "v"}, []string{"b"}, 0)
	c.PutRecord(ctx, &catalog.Record{ID: "keep", Title: "stays"}, 0)

	c.InvalidateAllSearchResults(ctx)

	_, out := c.GetSearchResults(ctx, "one", nil)
	require.Equal(t, Miss, out)
	_, out = c.GetSearchResults(ctx, "two", map[string]string{"k": "v"})
	require.Equal(t, Miss, out)

	// Record entries survive a search-wide invalidation.
	_, out = c.GetRecord(ctx, "keep")
	require.Equal(t, Hit, out)
}

func TestClear(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "x"}, 0)
	c.PutSearchResults(ctx, "one", nil, []string{"b1"}, 0)

	c.Clear(ctx)

	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Miss, out)
	_, out = c.GetSearchResults(ctx, "one", nil)
	require.Equal(t, Miss, out)
	require.Empty(t, mr.Keys())
}

// =============================================================================
// DEGRADATION TESTS
// =============================================================================

func TestDisabledCache(t *testing.T) {
	cfg := DefaultConfig("localhost:6379")
	cfg.Enabled = false
	c := New(cfg)
	ctx := context.Background()

	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Unavailable, out)

	// Writes and invalidations are silent no-ops.
	c.PutRecord(ctx, &catalog.Record{ID: "b1"}, 0)
	c.InvalidateRecord(ctx, "b1")
	c.InvalidateAllSearchResults(ctx)

	s := c.Stats(ctx)
	require.False(t, s.Enabled)
	require.False(t, s.Reachable)
}

func TestUnreachableBackendDegrades(t *testing.T) {
	cfg := DefaultConfig("127.0.0.1:1") // nothing listens here
	cfg.DialTimeout = 50 * time.Millisecond
	cfg.OpTimeout = 50 * time.Millisecond
	c := New(cfg)
	ctx := context.Background()

	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Unavailable, out)
	_, out = c.GetSearchResults(ctx, "q", nil)
	require.Equal(t, Unavailable, out)

	// No call may panic or propagate an error.
	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "x"}, 0)
	c.PutSearchResults(ctx, "q", nil, []string{"a"}, 0)
	c.InvalidateRecord(ctx, "b1")
	c.InvalidateAllSearchResults(ctx)

	s := c.Stats(ctx)
	require.True(t, s.Enabled)
	require.False(t, s.Reachable)
}

func TestBackendFailureMidFlight(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "cached"}, 0)
	mr.Close()

	// The first failing call flips the cache to down; later calls
	// short-circuit without touching the network.
	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Unavailable, out)

	start := time.Now()
	for i := 0; i < 100; i++ {
		_, out = c.GetRecord(ctx, "b1")
		require.Equal(t, Unavailable, out)
	}
	require.Less(t, time.Since(start), time.Second,
		"down cache must short-circuit, not retry synchronously")
}

func TestDownBackendReprobesAfterInterval(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig(mr.Addr())
	cfg.OpTimeout = 100 * time.Millisecond
	cfg.ProbeInterval = 300 * time.Millisecond
	c := New(cfg)
	t.Cleanup(func() { c.Close() })
	ctx := context.Background()

	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "cached"}, 0)
	mr.Close()

	// First failure flips the cache down and arms the probe interval.
	_, out := c.GetRecord(ctx, "b1")
	require.Equal(t, Unavailable, out)

	require.NoError(t, mr.Restart())

	// Still inside the interval: no probe, still degraded.
	_, out = c.GetRecord(ctx, "b1")
	require.Equal(t, Unavailable, out)

	// Once the interval elapses a probe notices the backend is back.
	require.Eventually(t, func() bool {
		_, out := c.GetRecord(ctx, "b1")
		return out == Hit
	}, 3*time.Second, 50*time.Millisecond)
}

// =============================================================================
// STATS TESTS
// =============================================================================

func TestStatsCounters(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.PutRecord(ctx, &catalog.Record{ID: "b1", Title: "x"}, 0)
	c.GetRecord(ctx, "b1")     // hit
	c.GetRecord(ctx, "absent") // miss
	c.GetRecord(ctx, "absent") // miss

	s := c.Stats(ctx)
	require.True(t, s.Enabled)
	require.True(t, s.Reachable)
	require.EqualValues(t, 1, s.HitCount)
	require.EqualValues(t, 2, s.MissCount)
	require.EqualValues(t, 1, s.KeyCount)
}
