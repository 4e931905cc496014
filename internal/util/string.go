// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers.
package util

// TruncateRunes truncates a string to a maximum number of runes, appending
// "..." when anything was cut. Counting runes instead of bytes keeps
// multi-byte text (Cyrillic titles, most of this catalog) intact. Used to
// keep free-text queries from flooding log lines.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
