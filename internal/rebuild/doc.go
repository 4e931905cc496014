// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rebuild reconstructs the record index from the authoritative
// store.
//
// A rebuild streams the full record set through the index's atomic-swap
// rebuild path and finishes by invalidating every cached search result.
// Malformed records are skipped and itemized in the run report rather than
// aborting the batch. Each run carries a uuid for log correlation.
package rebuild
