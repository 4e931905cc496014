// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the Redis acceleration layer for record lookups and
// search results.
//
// The cache is strictly best-effort: every lookup returns a typed Outcome
// (Hit, Miss or Unavailable) instead of an error, and writes and
// invalidations on a down backend are silent no-ops. Callers therefore can
// never confuse "key not present" with "backend down", and system
// correctness never depends on Redis being up.
//
// Reachability is probed lazily. After a network failure the backend is
// marked down and all calls short-circuit to Unavailable; one ping is
// re-attempted per probe interval rather than per call, so a dead cache
// costs no per-request latency. Outage transitions are logged once each
// way.
//
// Two entry families exist, both with TTLs:
//
//	record:<id>      JSON-serialized catalog record
//	search:<digest>  JSON array of record ids for one query+filter set
//
// The search digest is a SHA-256 of the canonicalized query text plus the
// sorted filter pairs, so logically identical queries share a key
// regardless of filter order or Unicode normalization form.
package cache
