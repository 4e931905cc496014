// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search wires the record index and the cache into one consistent
// query surface. It is the only package that knows about both stores.
//
// The read path is read-through: search queries consult the cached
// materialized id list first and fall back to the index, record lookups
// consult the cache first and fall back to the authoritative store. A
// degraded cache silently turns both into straight index/store reads.
//
// The write path is the trio of OnRecordCreated / OnRecordUpdated /
// OnRecordDeleted hooks the host application calls synchronously after it
// commits a mutation. The index is updated before any cache entry is
// dropped, so a reader that misses cache and falls through never re-caches
// pre-mutation data after the mutation is visible. Search-result caches are
// invalidated wholesale on every mutation: a single changed record can move
// in or out of any cached result set.
//
// Service carries no state of its own beyond its dependencies; hooks may be
// invoked from any number of concurrent mutation paths.
package search
