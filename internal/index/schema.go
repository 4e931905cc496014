// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides the full-text record index for the catalog.
package index

import "fmt"

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1

	// ftsTable is the live FTS5 table queried by Search.
	ftsTable = "records_fts"

	// ftsShadowTable is the staging table a rebuild populates before the
	// final rename swap.
	ftsShadowTable = "records_fts_rebuild"

	// DefaultTokenizer stems Latin-script tokens with the Porter algorithm
	// and segments everything else (Cyrillic included) per unicode61 rules.
	DefaultTokenizer = "porter unicode61"
)

// metaSchema holds schema version and index state.
const metaSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

INSERT OR IGNORE INTO index_meta (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO index_meta (key, value) VALUES ('created_at', strftime('%s', 'now'));
INSERT OR IGNORE INTO index_meta (key, value) VALUES ('last_rebuild', '0');
`

// ftsCreateSQL builds the CREATE statement for an FTS5 record table. The
// table name varies because rebuilds stage into a shadow table; the
// tokenizer string is the per-script tokenization strategy (Porter-stemmed
// Latin by default, plain unicode61 when stemming is unwanted).
func ftsCreateSQL(table, tokenizer string) string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(
    record_id UNINDEXED,
    title,
    subtitle,
    authors,
    description,
    isbn13,
    isbn10,
    series,
    tokenize='%s'
)`, table, tokenizer)
}
