// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rebuild reconstructs the record index from the authoritative
// store.
package rebuild

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/bookindex/internal/cache"
	"github.com/jeranaias/bookindex/internal/catalog"
	"github.com/jeranaias/bookindex/internal/index"
)

// =============================================================================
// REPORT
// =============================================================================

// ItemError records one skipped record.
type ItemError struct {
	ID     string
	Reason string
}

// Report summarizes one rebuild run.
type Report struct {
	RunID        string
	TotalRecords int
	Indexed      int
	Skipped      int
	Duration     time.Duration
	Errors       []ItemError
}

// =============================================================================
// JOB
// =============================================================================

// Job rebuilds the index from the full record set. It is meant for disaster
// recovery and scheduled maintenance and may run while the application
// keeps serving reads: the index's shadow-table swap guarantees readers see
// either the old or the new contents.
type Job struct {
	store catalog.Store
	idx   *index.Index
	cache *cache.Cache
	log   *slog.Logger
}

// New creates a rebuild job. logger may be nil.
func New(store catalog.Store, idx *index.Index, c *cache.Cache, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{store: store, idx: idx, cache: c, log: logger}
}

// Run streams every record from the authoritative store into a fresh index,
// then drops all cached search results, whose meaning the rebuild
// invalidated.
//
// Malformed records (missing id) are skipped and reported in the returned
// Report, never aborting the run. A store iteration failure does abort:
// completing it would silently publish a partial index.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	rep := &Report{RunID: uuid.NewString()}
	start := time.Now()

	j.log.Info("index rebuild starting", "run_id", rep.RunID)

	indexed, err := j.idx.Rebuild(ctx, j.filtered(ctx, rep))
	rep.Duration = time.Since(start)
	if err != nil {
		j.log.Error("index rebuild failed",
			"run_id", rep.RunID, "error", err)
		return rep, fmt.Errorf("rebuild: %w", err)
	}
	rep.Indexed = indexed

	j.cache.InvalidateAllSearchResults(ctx)

	j.log.Info("index rebuild complete",
		"run_id", rep.RunID,
		"total", rep.TotalRecords,
		"indexed", rep.Indexed,
		"skipped", rep.Skipped,
		"duration", rep.Duration.String())
	return rep, nil
}

// filtered wraps the store stream, counting totals and diverting malformed
// records into the report instead of the index.
func (j *Job) filtered(ctx context.Context, rep *Report) iter.Seq2[catalog.Record, error] {
	return func(yield func(catalog.Record, error) bool) {
		for rec, err := range j.store.ListAll(ctx) {
			if err != nil {
				yield(catalog.Record{}, err)
				return
			}
			rep.TotalRecords++
			if rec.ID == "" {
				rep.Skipped++
				rep.Errors = append(rep.Errors, ItemError{
					ID:     rec.ID,
					Reason: "missing record id",
				})
				j.log.Warn("skipping record without id",
					"run_id", rep.RunID, "title", rec.Title)
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
