// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package hasher computes the two cost tiers of file identity the rest
// of the engine relies on: a cheap stat-based fingerprint (size + mtime)
// for the common "did this file touch disk" check, and a streamed
// SHA-256 for actual content comparison and the FileSnapshot integrity
// invariant. Both stream rather than load the whole file into memory,
// following the teacher's ComputeSourceHash in
// services/trace/cache/staleness.go.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
)

// Fingerprint is the cheap (size, mtime) pair change detection's stat
// layer compares against a baseline without touching file content.
type Fingerprint struct {
	Size       int64
	ModTimeUnixMilli int64
}

// HashFile streams path through SHA-256 and returns its size and the
// hex-encoded digest. Used for baseline updates, integrity checks, and
// the change detector's hash-comparison layer.
func HashFile(path string) (size int64, sha256Hex string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", coderecoder.Wrap(coderecoder.IoError, err, "opening %q for hashing", path)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", coderecoder.Wrap(coderecoder.IoError, err, "reading %q for hashing", path)
	}

	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintFile stats path and returns its size and millisecond mtime
// without reading its content. This is the priority-3 cheap check in
// the change detector's fallback chain.
func FingerprintFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, coderecoder.Wrap(coderecoder.IoError, err, "statting %q", path)
	}
	return Fingerprint{
		Size:             info.Size(),
		ModTimeUnixMilli: info.ModTime().UnixMilli(),
	}, nil
}

// VerifyIntegrity re-hashes path and reports whether its size and
// SHA-256 match the recorded values (invariant 4 in the data model).
// The restore paths do not call it: file restore compares only the
// stored copy's size with the recorded size.
func VerifyIntegrity(path string, wantSize int64, wantHashHex string) (bool, error) {
	size, hashHex, err := HashFile(path)
	if err != nil {
		return false, err
	}
	return size == wantSize && hashHex == wantHashHex, nil
}
