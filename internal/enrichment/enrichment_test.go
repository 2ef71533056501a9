// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package enrichment

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderecoder/coderecoder/internal/filestore"
	"github.com/coderecoder/coderecoder/internal/lockmgr"
)

type stubAnalyzer struct {
	summary string
	calls   int
}

func (a *stubAnalyzer) Analyze(ctx context.Context, originalPath string, content []byte) (string, string, error) {
	a.calls++
	return a.summary, "no functional change", nil
}

func newTestFileStore(t *testing.T) (*filestore.Store, string) {
	t.Helper()
	root := t.TempDir()
	storeDir := filepath.Join(root, ".CodeRecoder", "snapshots", "files")

	locks, err := lockmgr.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = locks.Close() })

	fs, err := filestore.New(root, storeDir, locks, filestore.Options{})
	require.NoError(t, err)
	return fs, root
}

func TestWriter_EnrichesAndCachesResult(t *testing.T) {
	fs, root := newTestFileStore(t)
	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	created, err := fs.Create(filestore.CreateParams{FilePath: target, Prompt: "x"})
	require.NoError(t, err)

	analyzer := &stubAnalyzer{summary: "adds a greeting"}
	w, err := New(fs, analyzer, Options{CacheDir: filepath.Join(root, ".CodeRecoder", "analysis"), RatePerSecond: 100})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	w.Enqueue(Job{SnapshotID: created.SnapshotID, OriginalPath: target, Content: []byte("hello")})

	require.Eventually(t, func() bool {
		snaps := fs.List(filestore.ListParams{})
		for _, s := range snaps {
			if s.ID == created.SnapshotID {
				return s.AISummary == "adds a greeting"
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestWriter_DropsJobsWhenQueueFull(t *testing.T) {
	fs, _ := newTestFileStore(t)
	w, err := New(fs, &stubAnalyzer{}, Options{CacheDir: t.TempDir(), QueueSize: 1, RatePerSecond: 0.001})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	// Fill and overflow the queue; Enqueue must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			w.Enqueue(Job{SnapshotID: "missing"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked")
	}
}

func TestWriter_NilAnalyzerIsSafe(t *testing.T) {
	fs, _ := newTestFileStore(t)
	w, err := New(fs, nil, Options{CacheDir: t.TempDir(), RatePerSecond: 100})
	require.NoError(t, err)

	w.Enqueue(Job{SnapshotID: "whatever"})
	require.NoError(t, w.Close())
}
