// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search wires the record index and the cache into one consistent
// query surface.
package search

import (
	"context"
	"fmt"

	"github.com/jeranaias/bookindex/internal/catalog"
)

// =============================================================================
// MUTATION HOOKS
// =============================================================================
//
// The host application calls these synchronously after committing a
// mutation to the authoritative store. Ordering matters in each hook: the
// index mutation completes before any cache entry is dropped. An index
// failure aborts the hook and surfaces; cache invalidation is best-effort
// and never fails the hook.

// OnRecordCreated indexes a newly created record and drops every cached
// search result set, since the new record can appear in any of them.
func (s *Service) OnRecordCreated(ctx context.Context, rec *catalog.Record) error {
	if err := s.idx.IndexRecord(ctx, rec); err != nil {
		return fmt.Errorf("index created record: %w", err)
	}
	s.cache.InvalidateAllSearchResults(ctx)
	s.log.Debug("record created", "id", rec.ID)
	return nil
}

// OnRecordUpdated re-indexes an updated record, drops its cached copy and
// drops every cached search result set.
func (s *Service) OnRecordUpdated(ctx context.Context, rec *catalog.Record) error {
	if err := s.idx.IndexRecord(ctx, rec); err != nil {
		return fmt.Errorf("index updated record: %w", err)
	}
	s.cache.InvalidateRecord(ctx, rec.ID)
	s.cache.InvalidateAllSearchResults(ctx)
	s.log.Debug("record updated", "id", rec.ID)
	return nil
}

// OnRecordDeleted removes a record from the index and from every cache
// entry that could mention it.
func (s *Service) OnRecordDeleted(ctx context.Context, id string) error {
	if err := s.idx.RemoveRecord(ctx, id); err != nil {
		return fmt.Errorf("remove deleted record: %w", err)
	}
	s.cache.InvalidateRecord(ctx, id)
	s.cache.InvalidateAllSearchResults(ctx)
	s.log.Debug("record deleted", "id", id)
	return nil
}
