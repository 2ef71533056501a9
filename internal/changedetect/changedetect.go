// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package changedetect implements the engine's prioritised fallback
// chain for deciding which files in a project might have changed since
// the last baseline. The order is deliberate (see the teacher's
// analogous staleness check in services/trace/cache/staleness.go, which
// this package's hash- and stat-comparison layers are grounded on):
// VCS is authoritative when present, hash comparison catches content
// edits with an unchanged stat, stat comparison is cheap for the common
// "saved a file" case, and the recency fallback is the only layer that
// can discover new files when baselines are corrupt or absent.
package changedetect

import (
	"context"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coderecoder/coderecoder/internal/baseline"
	"github.com/coderecoder/coderecoder/internal/hasher"
	"github.com/coderecoder/coderecoder/internal/metrics"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

// DefaultExcludeNames are directory/file basenames the stat-comparison
// walk (layer 3) never descends into or reports.
var DefaultExcludeNames = []string{
	".git", "node_modules", ".CodeRecoder", "__pycache__",
	".DS_Store", "dist", "build", ".vscode", ".idea",
}

// DefaultExcludeGlobs are glob patterns applied alongside
// DefaultExcludeNames.
var DefaultExcludeGlobs = []string{"*.pyc", "*.log"}

// DefaultRecentWindow is T_recent for the recency fallback layer.
const DefaultRecentWindow = time.Hour

// Options configures a Detect call. The zero value uses the package
// defaults.
type Options struct {
	ExcludeNames []string
	ExcludeGlobs []string
	RecentWindow time.Duration
	Logger       *logging.Logger
}

func (o Options) withDefaults() Options {
	if o.ExcludeNames == nil {
		o.ExcludeNames = DefaultExcludeNames
	}
	if o.ExcludeGlobs == nil {
		o.ExcludeGlobs = DefaultExcludeGlobs
	}
	if o.RecentWindow == 0 {
		o.RecentWindow = DefaultRecentWindow
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	return o
}

func (o Options) excluded(name string) bool {
	for _, n := range o.ExcludeNames {
		if n == name {
			return true
		}
	}
	for _, g := range o.ExcludeGlobs {
		if ok, _ := filepath.Match(g, name); ok {
			return true
		}
	}
	return false
}

// Detect returns the relative paths of files in root whose content may
// differ from base, mutating base in place to reflect what each layer
// discovered (per §4.3, hash and stat matches refresh the baseline
// entry they touched). Detect has no special case for an empty
// baseline: the hash layer then finds nothing and the stat layer
// reports every walked file as new. Skipping detection and
// initialising the baseline from a walk is left to the caller
// (ProjectStore.Create does this when len(base)==0).
func Detect(ctx context.Context, root string, base baseline.Map, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	log := opts.Logger.With("component", "changedetect", "root", root)

	if paths, err := detectVCS(ctx, root, opts); err == nil && len(paths) > 0 {
		metrics.ChangeDetectorLayerHits.WithLabelValues("vcs").Inc()
		metrics.ChangeDetectorFilesChanged.Add(float64(len(paths)))
		log.Debug("change detector: vcs layer won", "count", len(paths))
		return dedupe(paths), nil
	}

	if paths, err := detectHashComparison(root, base); err == nil && len(paths) > 0 {
		metrics.ChangeDetectorLayerHits.WithLabelValues("hash").Inc()
		metrics.ChangeDetectorFilesChanged.Add(float64(len(paths)))
		log.Debug("change detector: hash layer won", "count", len(paths))
		return dedupe(paths), nil
	}

	if paths, err := detectStatComparison(root, base, opts); err == nil && len(paths) > 0 {
		metrics.ChangeDetectorLayerHits.WithLabelValues("stat").Inc()
		metrics.ChangeDetectorFilesChanged.Add(float64(len(paths)))
		log.Debug("change detector: stat layer won", "count", len(paths))
		return dedupe(paths), nil
	}

	paths, err := detectRecentlyModified(root, opts)
	if err != nil {
		log.Warn("change detector: all layers failed", "error", err)
		return nil, err
	}
	if len(paths) > 0 {
		metrics.ChangeDetectorLayerHits.WithLabelValues("recent").Inc()
		metrics.ChangeDetectorFilesChanged.Add(float64(len(paths)))
		log.Debug("change detector: recency layer won", "count", len(paths))
	}
	return dedupe(paths), nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel := filepath.ToSlash(p)
		if seen[rel] {
			continue
		}
		seen[rel] = true
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// detectVCS runs the equivalent of `git status --porcelain` in root.
// If the tool is absent or exits non-zero, it is treated as empty
// (never an error that stops the fallback chain).
func detectVCS(ctx context.Context, root string, opts Options) ([]string, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, nil
	}

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, nil
	}

	var changed []string
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		rel := strings.TrimSpace(line[2:])
		// Rename entries look like "old -> new"; keep the new path.
		if idx := strings.Index(rel, " -> "); idx >= 0 {
			rel = rel[idx+4:]
		}
		rel = strings.Trim(rel, `"`)
		if rel == "" || strings.HasPrefix(rel, ".CodeRecoder") {
			continue
		}
		if opts.excluded(filepath.Base(rel)) {
			continue
		}
		changed = append(changed, rel)
	}
	return changed, nil
}

// detectHashComparison reads every file the baseline already knows
// about (concurrently, bounded) and compares its SHA-256 against the
// recorded hash. Missing files are skipped, not reported — deletions
// aren't "changed content" in this layer's sense; the stat layer picks
// up structural changes instead.
func detectHashComparison(root string, base baseline.Map) ([]string, error) {
	if len(base) == 0 {
		return nil, nil
	}

	type result struct {
		rel     string
		changed bool
	}

	paths := make([]string, 0, len(base))
	for rel := range base {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	results := make([]result, len(paths))
	var g errgroup.Group
	g.SetLimit(8)

	for i, rel := range paths {
		i, rel := i, rel
		g.Go(func() error {
			abs := filepath.Join(root, rel)
			size, hashHex, err := hasher.HashFile(abs)
			if err != nil {
				// Missing or unreadable: not a "changed content" hit.
				return nil
			}
			entry := base[rel]
			if size != entry.Size || hashHex != entry.ContentHash {
				results[i] = result{rel: rel, changed: true}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var changed []string
	for _, r := range results {
		if !r.changed {
			continue
		}
		changed = append(changed, r.rel)
		abs := filepath.Join(root, r.rel)
		_ = base.RefreshFromFile(r.rel, abs)
	}
	return changed, nil
}

// detectStatComparison walks root, treating any file absent from base
// as new and any file whose size or mtime disagrees with base as
// changed. Both cases refresh (or create) the baseline entry.
func detectStatComparison(root string, base baseline.Map, opts Options) ([]string, error) {
	var changed []string

	err := walkFiles(root, opts, func(relPath, absPath string) error {
		fp, err := hasher.FingerprintFile(absPath)
		if err != nil {
			return nil
		}
		if base.Matches(relPath, fp) {
			return nil
		}
		changed = append(changed, relPath)
		base.RefreshStatOnly(relPath, fp)
		return nil
	})
	return changed, err
}

// detectRecentlyModified walks root and returns every file modified
// within RecentWindow of now. It exists purely to guarantee forward
// progress when the baseline is stale or absent and the earlier layers
// found nothing.
func detectRecentlyModified(root string, opts Options) ([]string, error) {
	cutoff := time.Now().Add(-opts.RecentWindow)
	var changed []string

	err := walkFiles(root, opts, func(relPath, absPath string) error {
		fp, err := hasher.FingerprintFile(absPath)
		if err != nil {
			return nil
		}
		if time.UnixMilli(fp.ModTimeUnixMilli).After(cutoff) {
			changed = append(changed, relPath)
		}
		return nil
	})
	return changed, err
}
