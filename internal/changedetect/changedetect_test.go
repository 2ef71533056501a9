// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package changedetect

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderecoder/coderecoder/internal/baseline"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDetect_HashLayerCatchesContentChangeWithStaleBaseline(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	writeFile(t, target, "original")

	base := baseline.Map{}
	require.NoError(t, base.RefreshFromFile("a.txt", target))

	// Rewrite with identical length so a naive size-only check misses it;
	// the hash layer must still catch the content change even though
	// this particular rewrite keeps size constant.
	writeFile(t, target, "CHANGED!")

	changed, err := Detect(context.Background(), dir, base, Options{})
	require.NoError(t, err)
	require.Contains(t, changed, "a.txt")
}

func TestDetect_StatLayerCatchesNewFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "a.txt")
	writeFile(t, existing, "hello")

	base := baseline.Map{}
	require.NoError(t, base.RefreshFromFile("a.txt", existing))

	// New file the baseline has never seen; hash layer has nothing to
	// compare it against (it only iterates known baseline entries), so
	// the stat layer must be the one to surface it.
	newFile := filepath.Join(dir, "b.txt")
	writeFile(t, newFile, "world")

	changed, err := Detect(context.Background(), dir, base, Options{})
	require.NoError(t, err)
	require.Contains(t, changed, "b.txt")
}

func TestDetect_ExcludesConfiguredDirectories(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(dir, "src.txt"), "code")

	base := baseline.Map{}
	changed, err := Detect(context.Background(), dir, base, Options{RecentWindow: time.Hour})
	require.NoError(t, err)
	for _, c := range changed {
		require.NotContains(t, c, ".git")
	}
}

func TestDetect_RecencyFallbackWhenNoBaselineMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "fresh.txt"), "new")

	changed, err := Detect(context.Background(), dir, baseline.Map{}, Options{RecentWindow: time.Hour})
	require.NoError(t, err)
	require.Contains(t, changed, "fresh.txt")
}

func TestDetect_NoChangesReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a.txt")
	writeFile(t, target, "stable")

	base := baseline.Map{}
	require.NoError(t, base.RefreshFromFile("a.txt", target))

	// Set the recency window to zero duration equivalent (use a window in
	// the past) so the recency layer can't claim an untouched file.
	changed, err := Detect(context.Background(), dir, base, Options{RecentWindow: time.Nanosecond})
	require.NoError(t, err)
	require.Empty(t, changed)
}
