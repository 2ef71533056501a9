// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package coderecoder

import "time"

// FullSnapshotMarker is the sentinel used in ProjectSnapshot.ChangedFiles
// for a full snapshot (or a forced snapshot, which is materialised and
// restored identically to a full one per the open question this module
// resolves: the "[*]" marker is equivalent to full for both create and
// restore).
const FullSnapshotMarker = "*"

// SnapshotKind distinguishes a self-contained project snapshot from one
// that only carries the files that changed since its predecessor.
type SnapshotKind string

const (
	KindFull        SnapshotKind = "full"
	KindIncremental SnapshotKind = "incremental"
)

// FileSnapshot is one content-addressed backup of a single file at a
// point in time, grouped into a SnapshotSession. It is immutable after
// creation except for its enrichment fields, which only the async
// enrichment writer may set.
type FileSnapshot struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	OriginalPath string    `json:"originalPath"`
	SnapshotPath string    `json:"snapshotPath"`
	FileSize     int64     `json:"fileSize"`
	ContentHash  string    `json:"fileHash"`
	Prompt       string    `json:"prompt"`
	SessionID    string    `json:"sessionId"`
	ParentID     string    `json:"parentSnapshotId,omitempty"`

	// Enrichment fields. Absent until (and possibly forever, since
	// enrichment is best-effort) the async writer fills them in.
	AISummary     string         `json:"aiSummary,omitempty"`
	ChangeAnalysis string        `json:"changeAnalysis,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SnapshotSession groups an ordered sequence of FileSnapshots, analogous
// to a working set. A file store has at most one current session.
type SnapshotSession struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
	SnapshotIDs  []string  `json:"snapshotIds"`
	CurrentID    string    `json:"currentId,omitempty"`
}

// ProjectSnapshotMetadata is the {project_root, actual_file_count,
// branch?, commit?} bundle attached to every ProjectSnapshot.
type ProjectSnapshotMetadata struct {
	ProjectRoot      string `json:"projectRoot"`
	ActualFileCount  int    `json:"actualFileCount"`
	Branch           string `json:"branch,omitempty"`
	Commit           string `json:"commit,omitempty"`
}

// ProjectSnapshot is one entry in a project store's chain: either a
// full, self-contained copy of the working tree, or an incremental copy
// of only the files that changed since the previous snapshot. It is
// immutable once materialised; only retention cleanup destroys it.
type ProjectSnapshot struct {
	ID           string                  `json:"id"`
	Timestamp    time.Time               `json:"timestamp"`
	SaveNumber   int                     `json:"saveNumber"`
	Kind         SnapshotKind            `json:"kind"`
	ChangedFiles []string                `json:"changedFiles"`
	Prompt       string                  `json:"prompt"`
	Name         string                  `json:"name,omitempty"`
	Tags         []string                `json:"tags,omitempty"`
	Analysis     string                  `json:"analysis,omitempty"`
	Metadata     ProjectSnapshotMetadata `json:"metadata"`
}

// IsFullLike reports whether the snapshot should be treated as full for
// both materialisation and restore purposes: true full snapshots, and
// forced snapshots recorded with the "[*]" changed-files marker.
func (s ProjectSnapshot) IsFullLike() bool {
	if s.Kind == KindFull {
		return true
	}
	return len(s.ChangedFiles) == 1 && s.ChangedFiles[0] == FullSnapshotMarker
}

// FileBaseline is the store's belief about one file's current
// size/mtime/hash, used by the change detector to decide what changed.
// LineCount is preserved for forward compatibility with the original
// implementation but is never consumed here.
type FileBaseline struct {
	RelativePath string `json:"-"`
	ModTimeUnix  int64  `json:"mtime"`
	Size         int64  `json:"size"`
	ContentHash  string `json:"contentHash"`
	LineCount    int    `json:"lineCount,omitempty"`
}

// ProjectStoreState is the single persisted index document for a
// project snapshot store (snapshots/projects/index.json).
type ProjectStoreState struct {
	ProjectRoot        string                   `json:"projectRoot"`
	CurrentSaveNumber  int                      `json:"currentSaveNumber"`
	LastFullSaveNumber int                      `json:"lastFullSaveNumber"`
	FullSaveInterval   int                      `json:"fullSaveInterval"`
	Snapshots          []ProjectSnapshot        `json:"snapshots"`
	FileBaselines      map[string]FileBaseline  `json:"fileBaselines"`
	LastScanTime       time.Time                `json:"lastScanTime"`
	RetentionCap       int                      `json:"retentionCap"`
	AutoCleanup        bool                     `json:"autoCleanup"`
}
