// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search wires the record index and the cache into one consistent
// query surface.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeranaias/bookindex/internal/cache"
	"github.com/jeranaias/bookindex/internal/catalog"
	"github.com/jeranaias/bookindex/internal/index"
)

// =============================================================================
// SERVICE
// =============================================================================

// Config holds service tuning knobs.
type Config struct {
	// MaxResults caps the materialized id list per query. Pagination is
	// applied on top of this list, so it is also the deepest reachable
	// offset+limit.
	MaxResults int

	// ResultTTL is the cache TTL for both record and search entries.
	// Zero means the cache's own default.
	ResultTTL time.Duration

	// Logger receives service log output. Nil means slog.Default().
	Logger *slog.Logger
}

// Service combines the index, the cache and the authoritative store into
// the search/lookup surface the host application consumes.
type Service struct {
	idx   *index.Index
	cache *cache.Cache
	store catalog.Store
	cfg   Config
	log   *slog.Logger
}

// New creates a Service. All three dependencies are required.
func New(idx *index.Index, c *cache.Cache, store catalog.Store, cfg Config) *Service {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{idx: idx, cache: c, store: store, cfg: cfg, log: cfg.Logger}
}

// =============================================================================
// READ PATH
// =============================================================================

// Search returns the ranked record ids for query under the given filters,
// paged by limit and offset.
//
// The full ranked list is cached per query+filter combination and pages are
// sliced locally, so a warm and a cold cache return identical pages and
// page two of a cached query is still a cache hit.
func (s *Service) Search(ctx context.Context, query string, filters map[string]string, limit, offset int) ([]string, error) {
	if cache.CanonicalQuery(query) == "" {
		return []string{}, nil
	}

	if ids, out := s.cache.GetSearchResults(ctx, query, filters); out == cache.Hit {
		return page(ids, limit, offset), nil
	}

	ids, err := s.idx.Search(ctx, query, s.cfg.MaxResults, 0)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	s.cache.PutSearchResults(ctx, query, filters, ids, s.cfg.ResultTTL)
	return page(ids, limit, offset), nil
}

// GetRecord returns the full record for id, consulting the cache before the
// authoritative store. Absence (catalog.ErrNotFound) is never cached.
func (s *Service) GetRecord(ctx context.Context, id string) (*catalog.Record, error) {
	if id == "" {
		return nil, catalog.ErrNotFound
	}

	if rec, out := s.cache.GetRecord(ctx, id); out == cache.Hit {
		return rec, nil
	}

	rec, err := s.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.PutRecord(ctx, rec, s.cfg.ResultTTL)
	return rec, nil
}

// page slices the materialized id list. Out-of-range offsets yield an empty
// list, never an error.
func page(ids []string, limit, offset int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return []string{}
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	// Callers must not see the cached backing array.
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats aggregates index and cache statistics for health dashboards.
type Stats struct {
	Index index.Stats
	Cache cache.Stats
}

// Stats returns combined statistics. Read-only and side-effect-free.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	idxStats, err := s.idx.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Index: idxStats,
		Cache: s.cache.Stats(ctx),
	}, nil
}
