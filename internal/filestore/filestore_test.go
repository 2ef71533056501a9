// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/internal/lockmgr"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	storeDir := filepath.Join(root, ".CodeRecoder", "snapshots", "files")

	locks, err := lockmgr.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = locks.Close() })

	s, err := New(root, storeDir, locks, Options{})
	require.NoError(t, err)
	return s, root
}

func TestCreate_ThenRestore(t *testing.T) {
	s, root := newTestStore(t)
	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("A"), 0o644))

	created, err := s.Create(CreateParams{FilePath: target, Prompt: "first"})
	require.NoError(t, err)
	require.NotEmpty(t, created.SnapshotID)

	require.NoError(t, os.WriteFile(target, []byte("B"), 0o644))

	restored, err := s.Restore(created.SnapshotID)
	require.NoError(t, err)
	require.NotEmpty(t, restored.BackupPath)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "A", string(got))

	backup, err := os.ReadFile(restored.BackupPath)
	require.NoError(t, err)
	require.Equal(t, "B", string(backup))
}

func TestCreate_RejectsPathOutsideRoot(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Create(CreateParams{FilePath: "/etc/passwd", Prompt: "x"})
	require.Error(t, err)
	require.Equal(t, coderecoder.InvalidPath, coderecoder.KindOf(err))
}

func TestCreate_RejectsMissingSource(t *testing.T) {
	s, root := newTestStore(t)

	_, err := s.Create(CreateParams{FilePath: filepath.Join(root, "missing.txt"), Prompt: "x"})
	require.Error(t, err)
	require.Equal(t, coderecoder.NotFound, coderecoder.KindOf(err))
}

func TestList_NewestFirstAndFiltered(t *testing.T) {
	s, root := newTestStore(t)
	a := filepath.Join(root, "a.txt")
	b := filepath.Join(root, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("2"), 0o644))

	_, err := s.Create(CreateParams{FilePath: a, Prompt: "a1"})
	require.NoError(t, err)
	_, err = s.Create(CreateParams{FilePath: b, Prompt: "b1"})
	require.NoError(t, err)

	all := s.List(ListParams{})
	require.Len(t, all, 2)
	require.Equal(t, "b1", all[0].Prompt)

	onlyA := s.List(ListParams{FilePath: a})
	require.Len(t, onlyA, 1)
	require.Equal(t, "a1", onlyA[0].Prompt)
}

func TestCreate_WritesDiffAgainstPreviousSnapshotOfSamePath(t *testing.T) {
	s, root := newTestStore(t)
	target := filepath.Join(root, "a.txt")

	require.NoError(t, os.WriteFile(target, []byte("line one\nline two\n"), 0o644))
	first, err := s.Create(CreateParams{FilePath: target, Prompt: "first"})
	require.NoError(t, err)

	diffPathFirst := filepath.Join(filepath.Dir(s.snapshots[first.SnapshotID].SnapshotPath), "diff.txt")
	_, err = os.Stat(diffPathFirst)
	require.True(t, os.IsNotExist(err), "first snapshot of a path should have no diff.txt")

	require.NoError(t, os.WriteFile(target, []byte("line one\nline three\n"), 0o644))
	second, err := s.Create(CreateParams{FilePath: target, Prompt: "second"})
	require.NoError(t, err)

	diffPathSecond := filepath.Join(filepath.Dir(s.snapshots[second.SnapshotID].SnapshotPath), "diff.txt")
	text, err := os.ReadFile(diffPathSecond)
	require.NoError(t, err)
	require.Contains(t, string(text), "line three")
}

func TestRestore_RotatesBackupsBeyondMaxBackups(t *testing.T) {
	root := t.TempDir()
	storeDir := filepath.Join(root, ".CodeRecoder", "snapshots", "files")
	locks, err := lockmgr.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = locks.Close() })

	s, err := New(root, storeDir, locks, Options{MaxBackups: 2})
	require.NoError(t, err)

	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("original"), 0o644))
	created, err := s.Create(CreateParams{FilePath: target, Prompt: "first"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(target, []byte(fmt.Sprintf("edit-%d", i)), 0o644))
		_, err := s.Restore(created.SnapshotID)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond) // force distinct epoch-millis backup suffixes
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var backupCount int
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "a.txt.backup.") {
			backupCount++
		}
	}
	require.LessOrEqual(t, backupCount, 2)
	require.Greater(t, backupCount, 0)
}

func TestDelete_RemovesEntryAndRepointsSession(t *testing.T) {
	s, root := newTestStore(t)
	target := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(target, []byte("1"), 0o644))

	first, err := s.Create(CreateParams{FilePath: target, Prompt: "one"})
	require.NoError(t, err)
	second, err := s.Create(CreateParams{FilePath: target, Prompt: "two"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(second.SnapshotID))

	remaining := s.List(ListParams{})
	require.Len(t, remaining, 1)
	require.Equal(t, first.SnapshotID, remaining[0].ID)
	require.Equal(t, first.SnapshotID, s.sessions[remaining[0].SessionID].CurrentID)
}
