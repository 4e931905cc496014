// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog defines the book record model and the contract with the
// authoritative record store.
//
// The catalog itself is owned by the host application; this package only
// describes what the search-and-cache subsystem needs from it: a full record
// by id, and a lazy stream of all records for rebuilds. Everything stored in
// the index and the cache is a derived, disposable copy of this data.
package catalog
