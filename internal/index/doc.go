// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides the full-text record index for the catalog.
//
// The index is an embedded SQLite database with a single FTS5 virtual table
// holding the tokenized text of every record: title, subtitle, authors,
// description, identifiers and series. Search results are ranked with bm25
// and returned as record ids only; hydrating full records is the caller's
// concern.
//
// # Key Types
//
//   - Index: the on-disk index with search, upsert, delete and rebuild
//   - Config: storage path, tokenizer and write-batching knobs
//   - Stats: entry count, on-disk size and last rebuild time
//
// # Concurrency
//
// The database runs in WAL mode, so any number of Search calls may proceed
// while a single writer mutates the table. Writes (IndexRecord,
// RemoveRecord, Rebuild) are serialized by an internal mutex; SQLITE_BUSY
// from leftover contention is retried with bounded backoff before it is
// surfaced. Rebuilds stage into a shadow table and swap it in with one
// final rename, so readers observe either the old or the new index, never
// a partially filled one.
//
// # Usage
//
//	idx, err := index.Open(index.Config{Path: "data/search_index.db"})
//	defer idx.Close()
//
//	err = idx.IndexRecord(ctx, &rec)
//	ids, err := idx.Search(ctx, "морето", 50, 0)
package index
