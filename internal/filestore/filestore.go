// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package filestore implements the file-level snapshot store: one
// content-addressed backup copy per snapshot under sessions, with
// integrity verification and a backup-before-overwrite rotation on
// restore grounded on the teacher's DefaultBackupManager
// (cmd/aleutian/backup.go): every restore writes a new
// ".backup.<epoch_millis>" file next to the destination, and only the
// MaxBackups most recent per destination survive — the same
// rotate-after-write idea as the teacher's rotateBackups, simplified to
// one counter instead of the teacher's separate size/age/count policies.
// Each create additionally writes a diff.txt against the previous
// snapshot of the same path via github.com/pmezard/go-difflib, an
// optional enrichment the on-disk layout names but never depends on
// for restore.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/internal/copier"
	"github.com/coderecoder/coderecoder/internal/hasher"
	"github.com/coderecoder/coderecoder/internal/lockmgr"
	"github.com/coderecoder/coderecoder/internal/metrics"
	"github.com/coderecoder/coderecoder/internal/pathguard"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

const writeLockKey = "save_data"

// Store is the file-level snapshot store bound to a single project's
// .CodeRecoder/snapshots/files directory.
type Store struct {
	projectRoot string
	storeDir    string
	locks       *lockmgr.Manager
	log         *logging.Logger

	mu         struct{} // documents intent: all mutation happens inside locks.WithLock
	sessions   map[string]*coderecoder.SnapshotSession
	snapshots  map[string]*coderecoder.FileSnapshot
	currentSID string
	maxBackups int
}

// DefaultMaxBackups is how many ".backup.<epoch_millis>" files Restore
// keeps per destination path before pruning the oldest.
const DefaultMaxBackups = 5

// Options configures New.
type Options struct {
	Logger *logging.Logger
	// MaxBackups caps how many restore backups are kept per destination
	// path. Zero means DefaultMaxBackups.
	MaxBackups int
}

// New binds a Store to storeDir (normally
// <cacheDir>/snapshots/files) and loads any existing sessions found
// there. storeDir is created if absent.
func New(projectRoot, storeDir string, locks *lockmgr.Manager, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, coderecoder.Wrap(coderecoder.IoError, err, "creating file store dir %q", storeDir)
	}

	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}

	s := &Store{
		projectRoot: projectRoot,
		storeDir:    storeDir,
		locks:       locks,
		log:         log.With("component", "filestore"),
		sessions:    make(map[string]*coderecoder.SnapshotSession),
		snapshots:   make(map[string]*coderecoder.FileSnapshot),
		maxBackups:  maxBackups,
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

// sessionIndexPath is the per-session index file recording session
// metadata and its member snapshot ids, mirroring the directory
// layout spec.md §6 describes for snapshots/files/<session_id>/.
func (s *Store) sessionIndexPath(sessionID string) string {
	return filepath.Join(s.storeDir, sessionID, "session.json")
}

func (s *Store) loadAll() error {
	entries, err := os.ReadDir(s.storeDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return coderecoder.Wrap(coderecoder.IoError, err, "reading store dir %q", s.storeDir)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sessionID := e.Name()
		data, err := os.ReadFile(s.sessionIndexPath(sessionID))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			s.log.Warn("skipping unreadable session index", "session", sessionID, "error", err)
			continue
		}
		var session coderecoder.SnapshotSession
		if err := json.Unmarshal(data, &session); err != nil {
			s.log.Warn("skipping corrupt session index", "session", sessionID, "error", err)
			continue
		}
		s.sessions[session.ID] = &session

		for _, snapID := range session.SnapshotIDs {
			metaPath := filepath.Join(s.storeDir, sessionID, snapID, "metadata.json")
			data, err := os.ReadFile(metaPath)
			if err != nil {
				s.log.Warn("missing snapshot metadata", "snapshot", snapID, "error", err)
				continue
			}
			var snap coderecoder.FileSnapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				s.log.Warn("corrupt snapshot metadata", "snapshot", snapID, "error", err)
				continue
			}
			s.snapshots[snap.ID] = &snap
		}
	}
	return nil
}

func (s *Store) persistSession(session *coderecoder.SnapshotSession) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "marshalling session %q", session.ID)
	}
	path := s.sessionIndexPath(session.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "creating session dir for %q", session.ID)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "writing session index %q", path)
	}
	return nil
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	FilePath  string
	Prompt    string
	SessionID string
	ParentID  string
	Metadata  map[string]any
}

// CreateResult is returned by Create.
type CreateResult struct {
	SnapshotID string
	FileSize   int64
}

// Create implements create_snapshot (spec.md §4.5): validates the
// source path, copies its current bytes into a new content-addressed
// directory, and commits a metadata record to the owning session.
func (s *Store) Create(p CreateParams) (CreateResult, error) {
	var result CreateResult
	err := s.locks.WithLock(writeLockKey, func() error {
		absPath, err := pathguard.Validate(p.FilePath, s.projectRoot)
		if err != nil {
			return err
		}

		info, err := os.Stat(absPath)
		if err != nil {
			if os.IsNotExist(err) {
				return coderecoder.Wrap(coderecoder.NotFound, err, "file %q does not exist", absPath)
			}
			return coderecoder.Wrap(coderecoder.IoError, err, "stat %q", absPath)
		}
		if info.IsDir() {
			return coderecoder.New(coderecoder.InvalidPath, "%q is a directory, not a file", absPath)
		}

		session := s.resolveOrCreateSession(p.SessionID)

		snapshotID := uuid.NewString()
		basename := filepath.Base(absPath)
		snapshotDir := filepath.Join(s.storeDir, session.ID, snapshotID)
		snapshotPath := filepath.Join(snapshotDir, basename)

		if err := copier.CopyFile(absPath, snapshotPath); err != nil {
			return err
		}

		size, contentHash, err := hasher.HashFile(snapshotPath)
		if err != nil {
			_ = os.RemoveAll(snapshotDir)
			return err
		}

		snap := &coderecoder.FileSnapshot{
			ID:           snapshotID,
			Timestamp:    time.Now().UTC(),
			OriginalPath: absPath,
			SnapshotPath: snapshotPath,
			FileSize:     size,
			ContentHash:  contentHash,
			Prompt:       p.Prompt,
			SessionID:    session.ID,
			Metadata:     p.Metadata,
		}
		if p.ParentID != "" {
			snap.ParentID = p.ParentID
		}

		metaData, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			_ = os.RemoveAll(snapshotDir)
			return coderecoder.Wrap(coderecoder.IoError, err, "marshalling metadata for %q", snapshotID)
		}
		if err := os.WriteFile(filepath.Join(snapshotDir, "metadata.json"), metaData, 0o644); err != nil {
			_ = os.RemoveAll(snapshotDir)
			return coderecoder.Wrap(coderecoder.IoError, err, "writing metadata for %q", snapshotID)
		}

		session.SnapshotIDs = append(session.SnapshotIDs, snapshotID)
		session.CurrentID = snapshotID
		session.LastModified = snap.Timestamp
		if err := s.persistSession(session); err != nil {
			_ = os.RemoveAll(snapshotDir)
			return err
		}

		if prev := s.mostRecentSnapshotForPath(absPath, snapshotID); prev != nil {
			if err := writeDiff(prev.SnapshotPath, snapshotPath, snapshotDir); err != nil {
				s.log.Warn("diff generation failed", "snapshot", snapshotID, "error", err)
			}
		}

		s.snapshots[snapshotID] = snap
		s.currentSID = session.ID

		metrics.FileSnapshotCreateTotal.Inc()
		s.log.Info("created file snapshot", "snapshot", snapshotID, "path", absPath, "session", session.ID)

		result = CreateResult{SnapshotID: snapshotID, FileSize: size}
		return nil
	})
	return result, err
}

func (s *Store) resolveOrCreateSession(requestedID string) *coderecoder.SnapshotSession {
	if requestedID != "" {
		if sess, ok := s.sessions[requestedID]; ok {
			return sess
		}
	}
	if requestedID == "" && s.currentSID != "" {
		if sess, ok := s.sessions[s.currentSID]; ok {
			return sess
		}
	}

	id := requestedID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	sess := &coderecoder.SnapshotSession{
		ID:           id,
		Name:         "session-" + id[:8],
		Created:      now,
		LastModified: now,
	}
	s.sessions[id] = sess
	return sess
}

// RestoreResult is returned by Restore.
type RestoreResult struct {
	RestoredPath string
	BackupPath   string
}

// Restore implements restore_snapshot (spec.md §4.5): checks the stored
// copy's size against the recorded size (the content hash is not
// re-checked), backs up any existing destination content,
// then overwrites the destination with the snapshot's bytes.
func (s *Store) Restore(snapshotID string) (RestoreResult, error) {
	var result RestoreResult
	err := s.locks.WithLock(writeLockKey, func() error {
		snap, ok := s.snapshots[snapshotID]
		if !ok {
			return coderecoder.New(coderecoder.NotFound, "snapshot %q not found", snapshotID)
		}

		info, err := os.Stat(snap.SnapshotPath)
		if err != nil {
			return coderecoder.Wrap(coderecoder.Corrupt, err, "stored copy for %q is missing", snapshotID)
		}
		if info.Size() != snap.FileSize {
			return coderecoder.New(coderecoder.Corrupt, "stored copy for %q has size %d, want %d", snapshotID, info.Size(), snap.FileSize)
		}

		destAbs, err := pathguard.Validate(snap.OriginalPath, s.projectRoot)
		if err != nil {
			return err
		}

		var backupPath string
		if _, err := os.Stat(destAbs); err == nil {
			backupPath = destAbs + ".backup." + formatEpochMillis(time.Now())
			if err := copier.CopyFile(destAbs, backupPath); err != nil {
				return err
			}
			if err := s.rotateBackups(destAbs); err != nil {
				s.log.Warn("backup rotation failed", "destination", destAbs, "error", err)
			}
		}

		if err := copier.CopyFile(snap.SnapshotPath, destAbs); err != nil {
			return err
		}

		if session, ok := s.sessions[snap.SessionID]; ok {
			session.CurrentID = snap.ID
			session.LastModified = time.Now().UTC()
			if err := s.persistSession(session); err != nil {
				return err
			}
		}

		s.log.Info("restored file snapshot", "snapshot", snapshotID, "destination", destAbs, "backup", backupPath)
		result = RestoreResult{RestoredPath: destAbs, BackupPath: backupPath}
		return nil
	})
	return result, err
}

func formatEpochMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// mostRecentSnapshotForPath returns the newest existing snapshot of
// originalPath other than exclude, or nil if this is the first
// snapshot of that file.
func (s *Store) mostRecentSnapshotForPath(originalPath, exclude string) *coderecoder.FileSnapshot {
	var newest *coderecoder.FileSnapshot
	for id, snap := range s.snapshots {
		if id == exclude || snap.OriginalPath != originalPath {
			continue
		}
		if newest == nil || snap.Timestamp.After(newest.Timestamp) {
			newest = snap
		}
	}
	return newest
}

// writeDiff writes a unified diff between the previous and new stored
// copies of a file into diff.txt alongside the new snapshot's metadata,
// the optional enrichment named in spec.md §6's file-snapshot layout.
// Binary or unreadable content is skipped, not an error: the diff is
// informational, never load-bearing for restore.
func writeDiff(prevPath, newPath, snapshotDir string) error {
	prevBytes, err := os.ReadFile(prevPath)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "reading %q", prevPath)
	}
	newBytes, err := os.ReadFile(newPath)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "reading %q", newPath)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(prevBytes)),
		B:        difflib.SplitLines(string(newBytes)),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "generating diff")
	}
	if text == "" {
		return nil // identical content, nothing worth writing
	}
	if err := os.WriteFile(filepath.Join(snapshotDir, "diff.txt"), []byte(text), 0o644); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "writing diff.txt")
	}
	return nil
}

// rotateBackups keeps only the s.maxBackups most recent
// "<dest>.backup.<epoch_millis>" files for dest, deleting older ones. It
// only ever touches files CodeRecoder itself created.
func (s *Store) rotateBackups(dest string) error {
	dir := filepath.Dir(dest)
	prefix := filepath.Base(dest) + ".backup."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "listing %q", dir)
	}

	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if _, err := strconv.ParseInt(strings.TrimPrefix(name, prefix), 10, 64); err != nil {
			continue // not one of ours (suffix isn't a timestamp)
		}
		backups = append(backups, name)
	}
	if len(backups) <= s.maxBackups {
		return nil
	}

	sort.Strings(backups) // epoch-millis suffixes sort lexically == chronologically
	excess := len(backups) - s.maxBackups
	for _, name := range backups[:excess] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "removing old backup %q", name)
		}
	}
	return nil
}

// ListParams filters List.
type ListParams struct {
	SessionID string
	FilePath  string
	Limit     int
}

// List implements list_snapshots: newest-first, optionally filtered by
// session and/or original path.
func (s *Store) List(p ListParams) []coderecoder.FileSnapshot {
	out := make([]coderecoder.FileSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if p.SessionID != "" && snap.SessionID != p.SessionID {
			continue
		}
		if p.FilePath != "" && snap.OriginalPath != p.FilePath {
			continue
		}
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out
}

// Delete implements delete_snapshot: removes the on-disk directory and
// the index entry. If the owning session's current pointer referenced
// this snapshot, it is repointed to the newest remaining snapshot in
// that session, or cleared if none remain.
func (s *Store) Delete(snapshotID string) error {
	return s.locks.WithLock(writeLockKey, func() error {
		snap, ok := s.snapshots[snapshotID]
		if !ok {
			return coderecoder.New(coderecoder.NotFound, "snapshot %q not found", snapshotID)
		}

		snapshotDir := filepath.Dir(snap.SnapshotPath)
		if err := os.RemoveAll(snapshotDir); err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "removing snapshot dir %q", snapshotDir)
		}

		delete(s.snapshots, snapshotID)

		session, ok := s.sessions[snap.SessionID]
		if !ok {
			return nil
		}
		session.SnapshotIDs = removeString(session.SnapshotIDs, snapshotID)
		if session.CurrentID == snapshotID {
			session.CurrentID = s.newestSnapshotInSession(session.ID)
		}
		return s.persistSession(session)
	})
}

func (s *Store) newestSnapshotInSession(sessionID string) string {
	var newest *coderecoder.FileSnapshot
	for _, snap := range s.snapshots {
		if snap.SessionID != sessionID {
			continue
		}
		if newest == nil || snap.Timestamp.After(newest.Timestamp) {
			newest = snap
		}
	}
	if newest == nil {
		return ""
	}
	return newest.ID
}

// SetEnrichment implements the enrichment writer's seam: it may only
// update a snapshot's enrichment fields (AISummary, ChangeAnalysis) and
// rewrite its metadata.json, serialised through the same write lock
// every other mutation uses. A missing snapshot is not an error here —
// it may have been deleted between being enqueued and the analyzer
// finishing, and enrichment failures are always swallowed by the
// caller (see spec's "background enrichment errors are logged and
// dropped" policy).
func (s *Store) SetEnrichment(snapshotID, summary, changeAnalysis string) error {
	return s.locks.WithLock(writeLockKey, func() error {
		snap, ok := s.snapshots[snapshotID]
		if !ok {
			return nil
		}
		snap.AISummary = summary
		snap.ChangeAnalysis = changeAnalysis

		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "marshalling enrichment for %q", snapshotID)
		}
		metaPath := filepath.Join(filepath.Dir(snap.SnapshotPath), "metadata.json")
		if err := os.WriteFile(metaPath, data, 0o644); err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "writing enrichment metadata for %q", snapshotID)
		}
		return nil
	})
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, v := range items {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
