// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache provides the Redis acceleration layer for record lookups and
// search results.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	recordKeyPrefix = "record:"
	searchKeyPrefix = "search:"

	// searchKeyPattern matches every cached search result set,
	// recordKeyPattern every cached record.
	searchKeyPattern = searchKeyPrefix + "*"
	recordKeyPattern = recordKeyPrefix + "*"
)

func recordKey(id string) string {
	return recordKeyPrefix + id
}

// CanonicalQuery normalizes query text so equivalent queries share a cache
// key: Unicode NFC (composed and decomposed Cyrillic compare equal), case
// folding, collapsed whitespace.
func CanonicalQuery(query string) string {
	query = norm.NFC.String(query)
	query = strings.ToLower(query)
	return strings.Join(strings.Fields(query), " ")
}

// searchKey derives the deterministic key for one query+filter combination.
// Filters are order-independent: keys are sorted before hashing. Every field
// (query, each filter key, each filter value) is length-prefixed into the
// digest, so field boundaries stay unambiguous no matter what bytes the
// fields contain and distinct query+filter combinations never share a key.
func searchKey(query string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	hashField(h, CanonicalQuery(query))
	for _, k := range keys {
		hashField(h, k)
		hashField(h, filters[k])
	}
	return searchKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func hashField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
