// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides the full-text record index for the catalog.
package index

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// SEARCH
// =============================================================================

// Search returns record ids matching query, best match first. Ranking is
// bm25; ties keep insertion order. An empty or whitespace-only query returns
// an empty list, and an offset past the end of the result set returns an
// empty list, neither is an error.
func (idx *Index) Search(ctx context.Context, query string, limit, offset int) ([]string, error) {
	if err := idx.checkOpen(); err != nil {
		return nil, err
	}

	ftsQuery := buildFTSQuery(query)
	if ftsQuery == "" {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}

	// SQLite bm25 is lower-is-better, so ascending rank is best-first.
	rows, err := idx.db.QueryContext(ctx, `
		SELECT record_id
		FROM `+ftsTable+`
		WHERE `+ftsTable+` MATCH ?
		ORDER BY bm25(`+ftsTable+`), rowid
		LIMIT ? OFFSET ?
	`, ftsQuery, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scan result: %v", ErrStorage, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrStorage, err)
	}

	return ids, nil
}

// buildFTSQuery turns free user input into an FTS5 match expression. Each
// whitespace-separated token becomes a quoted prefix term; terms are
// implicitly ANDed. Quoting neutralizes FTS5 operators ("-", ":", "*", ...)
// so user text cannot inject query syntax.
func buildFTSQuery(query string) string {
	tokens := strings.Fields(strings.TrimSpace(query))
	if len(tokens) == 0 {
		return ""
	}

	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		// Double quotes inside a token would end the string literal.
		tok = strings.ReplaceAll(tok, `"`, `""`)
		terms = append(terms, `"`+tok+`"*`)
	}
	return strings.Join(terms, " ")
}
