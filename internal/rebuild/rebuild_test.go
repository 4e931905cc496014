// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rebuild reconstructs the record index from the authoritative
// store.
package rebuild

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/bookindex/internal/cache"
	"github.com/jeranaias/bookindex/internal/catalog"
	"github.com/jeranaias/bookindex/internal/index"
)

// =============================================================================
// HELPERS
// =============================================================================

type sliceStore struct {
	records []catalog.Record
	failAt  int // yield an error after this many records; -1 disables
}

func (s *sliceStore) GetRecord(_ context.Context, id string) (*catalog.Record, error) {
	for _, r := range s.records {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (s *sliceStore) ListAll(_ context.Context) iter.Seq2[catalog.Record, error] {
	return func(yield func(catalog.Record, error) bool) {
		for i, r := range s.records {
			if s.failAt >= 0 && i == s.failAt {
				yield(catalog.Record{}, errors.New("store connection lost"))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func newTestJob(t *testing.T, store catalog.Store) (*Job, *index.Index, *cache.Cache) {
	t.Helper()

	idx, err := index.Open(index.DefaultConfig(filepath.Join(t.TempDir(), "idx.db")))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	mr := miniredis.RunT(t)
	c := cache.New(cache.DefaultConfig(mr.Addr()))
	t.Cleanup(func() { c.Close() })

	return New(store, idx, c, nil), idx, c
}

// =============================================================================
// RUN TESTS
// =============================================================================

func TestRun_IndexesAllRecords(t *testing.T) {
	store := &sliceStore{
		failAt: -1,
		records: []catalog.Record{
			{ID: "1", Title: "Морето на спокойствието"},
			{ID: "2", Title: "The Sea of Tranquility"},
			{ID: "3", Title: "Последният еднорог"},
		},
	}
	job, idx, _ := newTestJob(t, store)
	ctx := context.Background()

	rep, err := job.Run(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rep.RunID)
	require.Equal(t, 3, rep.TotalRecords)
	require.Equal(t, 3, rep.Indexed)
	require.Zero(t, rep.Skipped)
	require.Empty(t, rep.Errors)

	ids, err := idx.Search(ctx, "морето", 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"1"}, ids)
}

func TestRun_SkipsMalformedRecords(t *testing.T) {
	store := &sliceStore{
		failAt: -1,
		records: []catalog.Record{
			{ID: "1", Title: "valid"},
			{Title: "no id at all"},
			{ID: "2", Title: "also valid"},
		},
	}
	job, idx, _ := newTestJob(t, store)
	ctx := context.Background()

	rep, err := job.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, rep.TotalRecords)
	require.Equal(t, 2, rep.Indexed)
	require.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Errors, 1)
	require.Equal(t, "missing record id", rep.Errors[0].Reason)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.EntryCount)
}

func TestRun_StoreFailureAborts(t *testing.T) {
	store := &sliceStore{
		failAt: 1,
		records: []catalog.Record{
			{ID: "1", Title: "first"},
			{ID: "2", Title: "second"},
		},
	}
	job, idx, _ := newTestJob(t, store)
	ctx := context.Background()

	// Seed the live index so we can verify it survives the failed run.
	require.NoError(t, idx.IndexRecord(ctx, &catalog.Record{ID: "old", Title: "untouched"}))

	_, err := job.Run(ctx)
	require.Error(t, err)

	ids, err := idx.Search(ctx, "untouched", 10, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, ids)
}

func TestRun_InvalidatesSearchCaches(t *testing.T) {
	store := &sliceStore{failAt: -1, records: []catalog.Record{{ID: "1", Title: "anything"}}}
	job, _, c := newTestJob(t, store)
	ctx := context.Background()

	c.PutSearchResults(ctx, "stale query", nil, []string{"ghost"}, 0)

	_, err := job.Run(ctx)
	require.NoError(t, err)

	_, out := c.GetSearchResults(ctx, "stale query", nil)
	require.Equal(t, cache.Miss, out)
}

func TestRun_EmptyStore(t *testing.T) {
	job, idx, _ := newTestJob(t, &sliceStore{failAt: -1})
	ctx := context.Background()

	require.NoError(t, idx.IndexRecord(ctx, &catalog.Record{ID: "1", Title: "Морето"}))

	rep, err := job.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, rep.TotalRecords)
	require.Zero(t, rep.Indexed)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.EntryCount)
}
