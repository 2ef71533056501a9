// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pathguard rejects paths that escape a project root or touch
// OS-sensitive prefixes, before any component opens them for reading,
// writing, or copying. The file snapshot store validates the file it
// snapshots and the destination it restores to; the project snapshot
// store validates the project root on create and each incremental
// destination on restore. Files written by a whole-tree copy (a full
// project snapshot's materialisation or replay) are not validated one
// by one.
//
// The denylist and containment check mirror the teacher's
// cli/tools/file Config.IsPathAllowed / IsSensitivePath, generalised to
// a project-scoped guard with an explicit allowed root rather than a
// process-global working directory.
package pathguard

import (
	"path/filepath"
	"strings"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
)

// DeniedPrefixes are absolute path prefixes CodeRecoder will never read
// from or write to, regardless of what allowedRoot says.
var DeniedPrefixes = []string{
	"/etc/", "/usr/", "/bin/", "/sbin/", "/boot/", "/root/", "/sys/", "/proc/",
}

// Validate rejects path if (1) the path as given contains a ".."
// segment (checked before normalisation, see containsParentTraversal),
// or if, after normalisation, it (2) has a prefix in DeniedPrefixes, or
// (3) (when allowedRoot is non-empty) does not lie within the
// canonicalised allowedRoot. On success it returns the cleaned absolute
// path callers should actually use.
func Validate(path string, allowedRoot string) (string, error) {
	if path == "" {
		return "", coderecoder.New(coderecoder.InvalidPath, "empty path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", coderecoder.Wrap(coderecoder.InvalidPath, err, "resolving %q", path)
	}
	clean := filepath.Clean(abs)

	if containsParentTraversal(path) {
		return "", coderecoder.New(coderecoder.InvalidPath, "path %q escapes via ..", path)
	}

	for _, denied := range DeniedPrefixes {
		if hasPathPrefix(clean, strings.TrimSuffix(denied, "/")) {
			return "", coderecoder.New(coderecoder.InvalidPath, "path %q touches reserved prefix %q", clean, denied)
		}
	}

	if allowedRoot != "" {
		root, err := filepath.Abs(allowedRoot)
		if err != nil {
			return "", coderecoder.Wrap(coderecoder.InvalidPath, err, "resolving allowed root %q", allowedRoot)
		}
		root = filepath.Clean(root)
		if !hasPathPrefix(clean, root) {
			return "", coderecoder.New(coderecoder.InvalidPath, "path %q is outside allowed root %q", clean, root)
		}
	}

	return clean, nil
}

// containsParentTraversal checks the *original*, pre-Abs path for a
// literal ".." segment. filepath.Abs silently resolves ".." against an
// arbitrary base, which would let "../../etc/passwd" slip through as a
// clean absolute path if we only inspected the result.
func containsParentTraversal(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// hasPathPrefix reports whether candidate is root or a descendant of
// root, comparing path segments rather than raw strings (so
// "/home/user2" is not treated as inside "/home/user").
func hasPathPrefix(candidate, root string) bool {
	if candidate == root {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(candidate, root+sep)
}
