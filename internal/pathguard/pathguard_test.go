// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pathguard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsDeniedPrefixes(t *testing.T) {
	_, err := Validate("/etc/passwd", "")
	require.Error(t, err)
	require.Equal(t, coderecoder.InvalidPath, coderecoder.KindOf(err))
}

func TestValidate_RejectsParentTraversal(t *testing.T) {
	root := t.TempDir()
	// Concatenate rather than filepath.Join, which would clean the ".."
	// away before Validate sees it.
	_, err := Validate(root+"/../../etc/passwd", root)
	require.Error(t, err)
	require.Equal(t, coderecoder.InvalidPath, coderecoder.KindOf(err))
}

func TestValidate_RejectsOutsideRoot(t *testing.T) {
	root := t.TempDir()
	sibling := t.TempDir()
	_, err := Validate(filepath.Join(sibling, "file.txt"), root)
	require.Error(t, err)
}

func TestValidate_AcceptsInsideRoot(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "sub", "file.txt")
	got, err := Validate(target, root)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestValidate_SiblingWithSharedPrefixIsRejected(t *testing.T) {
	root := t.TempDir()
	sibling := root + "-other"
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	_, err := Validate(filepath.Join(sibling, "file.txt"), root)
	require.Error(t, err)
}
