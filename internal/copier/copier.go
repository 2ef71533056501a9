// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package copier replicates files and directory trees, honouring an
// exclude set of basenames and globs. It prefers a native tree-copy
// utility (cp -a on Unix) for speed, falling back to an in-process
// recursive copy when the utility is missing or exits non-zero — the
// fallback is not optional, per the engine's correctness contract:
// restore and snapshot creation cannot depend on a specific external
// tool being installed.
package copier

import (
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
)

// ExcludeSet names directory/file basenames and glob patterns that
// CopyTree skips entirely (never descended into, never copied).
type ExcludeSet struct {
	Names []string
	Globs []string
}

// Match reports whether basename is excluded by name or glob.
func (e ExcludeSet) Match(basename string) bool {
	for _, n := range e.Names {
		if n == basename {
			return true
		}
	}
	for _, g := range e.Globs {
		if ok, _ := filepath.Match(g, basename); ok {
			return true
		}
	}
	return false
}

// CopyFile ensures dst's parent exists and copies src's bytes into it.
// It preserves no metadata beyond what's needed to make dst readable
// (the regular file mode of src, or 0644 if that can't be determined).
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "creating parent of %q", dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "opening %q", src)
	}
	defer in.Close()

	mode := os.FileMode(0o644)
	if info, statErr := in.Stat(); statErr == nil {
		mode = info.Mode().Perm()
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "creating %q", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "copying %q to %q", src, dst)
	}
	return nil
}

// CopyTree mirrors src into dst, skipping any entry whose basename is
// excluded. It tries the platform's native tree-copy command first; if
// that command is unavailable or exits non-zero, it falls back to
// copyTreeInProcess, which is the only path exercised on platforms
// without a native copy tool.
func CopyTree(src, dst string, exclude ExcludeSet) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "creating %q", dst)
	}

	if err := nativeCopyTree(src, dst, exclude); err == nil {
		return nil
	}

	return copyTreeInProcess(src, dst, exclude)
}

// nativeCopyTree shells out to "cp -a" with --exclude-style filtering
// done by walking src ourselves and invoking cp per top-level entry;
// cp has no portable exclude flag, so this only helps when the exclude
// set is empty or the tree is small enough that per-entry shelling out
// doesn't dominate. Any error (missing binary, non-zero exit) causes
// the caller to fall back to the in-process copy, which is always
// correct.
func nativeCopyTree(src, dst string, exclude ExcludeSet) error {
	if _, err := exec.LookPath("cp"); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "cp not available")
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "reading %q", src)
	}

	for _, entry := range entries {
		if exclude.Match(entry.Name()) {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		// cp -a preserves mode/mtime and recurses into directories; it
		// cannot itself skip nested excluded names, so any directory
		// entry with a nested exclusion must fall through to the
		// in-process copier instead.
		if entry.IsDir() && treeContainsExcluded(srcPath, exclude) {
			return coderecoder.New(coderecoder.IoError, "nested exclusions require in-process copy")
		}

		if entry.IsDir() {
			// "cp -a srcPath dstPath" nests srcPath's contents one level
			// deeper (dstPath/entryName/...) whenever dstPath already
			// exists as a directory, which it normally does here (a
			// project-snapshot restore copies into a project root that
			// already has the subdirectories being restored). Copying
			// "srcPath/." instead of "srcPath" tells cp to merge the
			// source's contents into an existing dstPath rather than
			// nest a copy of srcPath inside it.
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return coderecoder.Wrap(coderecoder.IoError, err, "creating %q", dstPath)
			}
			cmd := exec.Command("cp", "-a", srcPath+string(filepath.Separator)+".", dstPath)
			if err := cmd.Run(); err != nil {
				return coderecoder.Wrap(coderecoder.IoError, err, "cp -a %q %q", srcPath, dstPath)
			}
			continue
		}

		cmd := exec.Command("cp", "-a", srcPath, dstPath)
		if err := cmd.Run(); err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "cp -a %q %q", srcPath, dstPath)
		}
	}
	return nil
}

func treeContainsExcluded(root string, exclude ExcludeSet) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found {
			return nil
		}
		if exclude.Match(d.Name()) {
			found = true
		}
		return nil
	})
	return found
}

// copyTreeInProcess is the always-correct fallback: a recursive walk
// that creates directories as needed and copies regular files
// concurrently (bounded by an errgroup), skipping excluded basenames at
// every level.
func copyTreeInProcess(src, dst string, exclude ExcludeSet) error {
	var g errgroup.Group
	g.SetLimit(8)

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "walking %q", path)
		}

		if exclude.Match(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "relativizing %q", path)
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		g.Go(func() error {
			return CopyFile(path, target)
		})
		return nil
	})
	if walkErr != nil {
		return walkErr
	}
	return g.Wait()
}
