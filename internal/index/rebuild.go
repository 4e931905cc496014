// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides the full-text record index for the catalog.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/jeranaias/bookindex/internal/catalog"
)

// =============================================================================
// REBUILD
// =============================================================================

// Rebuild replaces the entire index with the given record stream and returns
// the number of records indexed.
//
// Records are staged into a shadow FTS table in batched transactions, then
// swapped in with a single rename, so concurrent Search calls see either the
// old index or the new one and are only ever blocked for the final swap.
// Rebuild excludes other writes for its whole duration; a second concurrent
// Rebuild fails fast with ErrRebuildInProgress.
//
// An error from the record stream aborts the rebuild and leaves the live
// index untouched.
func (idx *Index) Rebuild(ctx context.Context, records iter.Seq2[catalog.Record, error]) (int, error) {
	if err := idx.checkOpen(); err != nil {
		return 0, err
	}

	idx.mu.Lock()
	if idx.rebuilding {
		idx.mu.Unlock()
		return 0, ErrRebuildInProgress
	}
	idx.rebuilding = true
	idx.mu.Unlock()
	defer func() {
		idx.mu.Lock()
		idx.rebuilding = false
		idx.mu.Unlock()
	}()

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	start := time.Now()

	if _, err := idx.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+ftsShadowTable); err != nil {
		return 0, fmt.Errorf("%w: drop shadow table: %v", ErrStorage, err)
	}
	if _, err := idx.db.ExecContext(ctx, ftsCreateSQL(ftsShadowTable, idx.cfg.Tokenizer)); err != nil {
		return 0, fmt.Errorf("%w: create shadow table: %v", ErrStorage, err)
	}

	indexed, err := idx.fillShadow(ctx, records)
	if err != nil {
		idx.db.Exec("DROP TABLE IF EXISTS " + ftsShadowTable)
		return 0, err
	}

	// The swap: one small transaction, retried on leftover contention.
	err = idx.withBusyRetry(ctx, func() error {
		tx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "DROP TABLE "+ftsTable); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"ALTER TABLE "+ftsShadowTable+" RENAME TO "+ftsTable); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE index_meta SET value = ? WHERE key = 'last_rebuild'",
			time.Now().Unix()); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	idx.log.Info("index rebuilt",
		"records", indexed,
		"duration", time.Since(start).String())
	return indexed, nil
}

// fillShadow streams records into the shadow table, committing every
// RebuildBatchSize rows so large catalogs do not grow one giant
// transaction.
func (idx *Index) fillShadow(ctx context.Context, records iter.Seq2[catalog.Record, error]) (int, error) {
	var (
		tx      *sql.Tx
		inBatch int
		total   int
	)

	rollback := func() {
		if tx != nil {
			tx.Rollback()
		}
	}

	for rec, err := range records {
		if err != nil {
			rollback()
			return 0, fmt.Errorf("record stream: %w", err)
		}
		if err := ctx.Err(); err != nil {
			rollback()
			return 0, err
		}

		if tx == nil {
			var err error
			tx, err = idx.db.BeginTx(ctx, nil)
			if err != nil {
				return 0, fmt.Errorf("%w: begin batch: %v", ErrStorage, err)
			}
		}

		if err := insertRecord(ctx, tx, ftsShadowTable, &rec); err != nil {
			rollback()
			return 0, fmt.Errorf("%w: insert %s: %v", ErrStorage, rec.ID, err)
		}
		inBatch++
		total++

		if inBatch >= idx.cfg.RebuildBatchSize {
			if err := tx.Commit(); err != nil {
				return 0, fmt.Errorf("%w: commit batch: %v", ErrStorage, err)
			}
			tx = nil
			inBatch = 0
			idx.log.Debug("rebuild batch committed", "total", total)
		}
	}

	if tx != nil {
		if err := tx.Commit(); err != nil {
			return 0, fmt.Errorf("%w: commit batch: %v", ErrStorage, err)
		}
	}

	return total, nil
}
