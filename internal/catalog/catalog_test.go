// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog defines the book record model and the contract with the
// authoritative record store.
package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorText(t *testing.T) {
	r := Record{Authors: []string{" Иван Вазов ", "", "Emily Mandel"}}
	require.Equal(t, "Иван Вазов Emily Mandel", r.AuthorText())

	require.Equal(t, "", (&Record{}).AuthorText())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "b1", "title": "Под игото", "authors": ["Иван Вазов"]},
		{"title": "orphaned, no id"},
		{"id": "b2", "title": "Time Shelter"}
	]`), 0o644))

	store, err := OpenFileStore(path)
	require.NoError(t, err)
	require.Equal(t, 3, store.Len())

	ctx := context.Background()
	rec, err := store.GetRecord(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, "Под игото", rec.Title)

	_, err = store.GetRecord(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)

	var seen []string
	for rec, err := range store.ListAll(ctx) {
		require.NoError(t, err)
		seen = append(seen, rec.ID)
	}
	require.Equal(t, []string{"b1", "", "b2"}, seen)
}

func TestOpenFileStore_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not an array`), 0o644))

	_, err := OpenFileStore(path)
	require.Error(t, err)
}
