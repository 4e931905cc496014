// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog defines the book record model and the contract with the
// authoritative record store.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
)

// FileStore is a Store backed by a JSON export of the catalog: a single
// array of records. It exists for the offline rebuild tool and for tests;
// the production authoritative store lives in the host application.
type FileStore struct {
	records []Record
	byID    map[string]int
}

// OpenFileStore loads the JSON export at path.
func OpenFileStore(path string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog export: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse catalog export %s: %w", path, err)
	}

	byID := make(map[string]int, len(records))
	for i, r := range records {
		if r.ID != "" {
			byID[r.ID] = i
		}
	}
	return &FileStore{records: records, byID: byID}, nil
}

// Len returns the number of records in the export, malformed ones included.
func (s *FileStore) Len() int { return len(s.records) }

// GetRecord implements Store.
func (s *FileStore) GetRecord(_ context.Context, id string) (*Record, error) {
	i, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	rec := s.records[i]
	return &rec, nil
}

// ListAll implements Store. Records stream in export order, malformed
// entries included so the consumer can count them.
func (s *FileStore) ListAll(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for _, r := range s.records {
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
