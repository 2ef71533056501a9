// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package changedetect

import (
	"io/fs"
	"path/filepath"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
)

// walkFiles visits every regular file under root not excluded by opts,
// calling fn with its path relative to root (slash-separated) and its
// absolute path. Excluded directories are pruned, not just skipped.
func walkFiles(root string, opts Options, fn func(relPath, absPath string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "walking %q", path)
		}
		if path != root && opts.excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return coderecoder.Wrap(coderecoder.IoError, err, "relativizing %q", path)
		}
		return fn(filepath.ToSlash(rel), path)
	})
}
