// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package baseline holds the FileBaseline map the change detector
// compares the working tree against, and the helpers that build or
// refresh it from a live file.
package baseline

import (
	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/internal/hasher"
)

// Map is a relative-path-keyed baseline. It is owned by the project
// snapshot store and mutated in place by the change detector.
type Map map[string]coderecoder.FileBaseline

// Clone returns a deep-enough copy (the FileBaseline values are plain
// structs, so a map copy suffices) for callers that want to compare
// before/after without racing the live map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RefreshFromFile recomputes the baseline entry for relPath from the
// file at absPath, using the strong hash. Used whenever a layer of the
// change detector confirms a file changed, and when bootstrapping a
// brand-new baseline from a project walk.
func (m Map) RefreshFromFile(relPath, absPath string) error {
	size, hashHex, err := hasher.HashFile(absPath)
	if err != nil {
		return err
	}
	fp, err := hasher.FingerprintFile(absPath)
	if err != nil {
		return err
	}
	m[relPath] = coderecoder.FileBaseline{
		RelativePath: relPath,
		ModTimeUnix:  fp.ModTimeUnixMilli,
		Size:         size,
		ContentHash:  hashHex,
	}
	return nil
}

// RefreshStatOnly records size/mtime without rehashing — used by the
// change detector's stat-comparison layer, which is cheap precisely
// because it avoids reading file content. The hash field is left as
// whatever it was (zero value for brand-new entries); it gets filled in
// the next time the hash-comparison layer or an explicit rehash runs.
func (m Map) RefreshStatOnly(relPath string, fp hasher.Fingerprint) {
	existing := m[relPath]
	existing.RelativePath = relPath
	existing.Size = fp.Size
	existing.ModTimeUnix = fp.ModTimeUnixMilli
	m[relPath] = existing
}

// Matches reports whether fp's size and mtime still agree with the
// recorded baseline entry for relPath. A missing entry never matches.
func (m Map) Matches(relPath string, fp hasher.Fingerprint) bool {
	entry, ok := m[relPath]
	if !ok {
		return false
	}
	return entry.Size == fp.Size && entry.ModTimeUnix == fp.ModTimeUnixMilli
}
