// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog defines the book record model and the contract with the
// authoritative record store.
package catalog

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned by Store.GetRecord when no record has the given id.
var ErrNotFound = errors.New("record not found")

// =============================================================================
// RECORD
// =============================================================================

// Record is one catalog item. The JSON tags double as the cache wire format
// and the CLI import format.
type Record struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Subtitle    string   `json:"subtitle,omitempty"`
	Authors     []string `json:"authors,omitempty"`
	Description string   `json:"description,omitempty"`
	ISBN13      string   `json:"isbn13,omitempty"`
	ISBN10      string   `json:"isbn10,omitempty"`
	Series      string   `json:"series,omitempty"`
}

// AuthorText returns the author display names joined for indexing.
func (r *Record) AuthorText() string {
	parts := make([]string, 0, len(r.Authors))
	for _, a := range r.Authors {
		a = strings.TrimSpace(a)
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// AUTHORITATIVE STORE
// =============================================================================

// Store is the authoritative record store, owned by the host application.
//
// GetRecord returns ErrNotFound for absent ids. ListAll yields every record
// lazily; it is consumed only by rebuilds. A non-nil error from the sequence
// terminates iteration.
type Store interface {
	GetRecord(ctx context.Context, id string) (*Record, error)
	ListAll(ctx context.Context) iter.Seq2[Record, error]
}
