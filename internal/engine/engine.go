// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine binds the file and project snapshot stores, the lock
// manager, and (optionally) the enrichment writer to a single project
// root, implementing the Uninitialised → Bound → Ready lifecycle
// spec.md §4.9 describes. It is the handle every RPC-surface operation
// in §6 is called against — the "global singletons → bound store
// instance" redesign spec.md §9 calls for, replacing the teacher's
// process-wide StackManager-style singleton with an explicit value the
// caller owns.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/internal/config"
	"github.com/coderecoder/coderecoder/internal/enrichment"
	"github.com/coderecoder/coderecoder/internal/filestore"
	"github.com/coderecoder/coderecoder/internal/lockmgr"
	"github.com/coderecoder/coderecoder/internal/pathguard"
	"github.com/coderecoder/coderecoder/internal/projectstore"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

// CacheDirName is the directory name every project's store lives under,
// relative to the project root (spec.md §6: ".CodeRecoder/").
const CacheDirName = ".CodeRecoder"

// Engine is a bound handle: one project root, one cache directory, one
// set of stores. The zero value is Uninitialised; call Activate to
// reach Ready.
type Engine struct {
	log *logging.Logger

	projectRoot string
	cacheDir    string
	locks       *lockmgr.Manager
	files       *filestore.Store
	projects    *projectstore.Store
	enrich      *enrichment.Writer
	ready       bool
}

// New constructs an Uninitialised Engine. Call Activate before any
// other method.
func New(log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Default()
	}
	return &Engine{log: log.With("component", "engine")}
}

// ActivateParams are the inputs to Activate.
type ActivateParams struct {
	ProjectPath string
	Name        string
	Language    string
	Analyzer    enrichment.Analyzer
}

// Activate implements activate_project: validates the project path,
// binds the engine to <project_path>/.CodeRecoder, and loads any
// existing index. Returns the cache directory.
func (e *Engine) Activate(p ActivateParams) (string, error) {
	absRoot, err := pathguard.Validate(p.ProjectPath, "")
	if err != nil {
		return "", err
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return "", coderecoder.Wrap(coderecoder.InvalidPath, err, "project path %q", absRoot)
	}
	if !info.IsDir() {
		return "", coderecoder.New(coderecoder.InvalidPath, "project path %q is not a directory", absRoot)
	}

	cacheDir := filepath.Join(absRoot, CacheDirName)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", coderecoder.Wrap(coderecoder.IoError, err, "creating cache dir %q", cacheDir)
	}

	locks, err := lockmgr.New(e.log)
	if err != nil {
		return "", coderecoder.Wrap(coderecoder.IoError, err, "starting lock manager")
	}

	settings, err := config.LoadSettings(cacheDir)
	if err != nil {
		return "", err
	}
	if err := config.SaveSettings(cacheDir, settings); err != nil {
		return "", err
	}

	filesDir := filepath.Join(cacheDir, "snapshots", "files")
	files, err := filestore.New(absRoot, filesDir, locks, filestore.Options{
		Logger:     e.log,
		MaxBackups: settings.MaxBackups,
	})
	if err != nil {
		return "", err
	}

	autoCleanup := settings.AutoCleanup
	projectsDir := filepath.Join(cacheDir, "snapshots", "projects")
	projects, err := projectstore.New(absRoot, projectsDir, locks, projectstore.Options{
		Logger:           e.log,
		FullSaveInterval: settings.FullSaveInterval,
		RetentionCap:     settings.RetentionCap,
		AutoCleanup:      &autoCleanup,
	})
	if err != nil {
		return "", err
	}
	if err := config.SaveProject(cacheDir, config.ProjectConfig{
		ProjectRoot: absRoot,
		Name:        p.Name,
		Language:    p.Language,
	}); err != nil {
		return "", err
	}

	var enrich *enrichment.Writer
	if p.Analyzer != nil {
		cacheCfg, err := config.LoadCache(cacheDir)
		if err != nil {
			return "", err
		}
		enrich, err = enrichment.New(files, p.Analyzer, enrichment.Options{
			CacheDir:      filepath.Join(cacheDir, "analysis"),
			RatePerSecond: cacheCfg.EnrichmentRatePerSecond,
			QueueSize:     cacheCfg.QueueSize,
			Logger:        e.log,
		})
		if err != nil {
			return "", err
		}
	}

	e.projectRoot = absRoot
	e.cacheDir = cacheDir
	e.locks = locks
	e.files = files
	e.projects = projects
	e.enrich = enrich
	e.ready = true

	e.log.Info("project activated", "project_root", absRoot, "cache_dir", cacheDir)
	return cacheDir, nil
}

// DeactivateParams are the inputs to Deactivate.
type DeactivateParams struct {
	SaveHistory bool
}

// Deactivate implements deactivate_project: releases the engine's
// resources. SaveHistory is accepted for interface parity with the
// RPC surface (spec.md §6); nothing in this engine's design requires
// extra work on deactivation beyond closing the lock manager and
// enrichment writer, since every write already persists synchronously.
func (e *Engine) Deactivate(p DeactivateParams) error {
	if !e.ready {
		return nil
	}
	if e.enrich != nil {
		_ = e.enrich.Close()
	}
	if e.locks != nil {
		_ = e.locks.Close()
	}
	e.ready = false
	e.log.Info("project deactivated", "project_root", e.projectRoot, "save_history", p.SaveHistory)
	return nil
}

func (e *Engine) requireReady() error {
	if !e.ready {
		return coderecoder.New(coderecoder.NotActivated, "engine is not bound to a project")
	}
	return nil
}

// CreateFileSnapshot implements create_file_snapshot.
func (e *Engine) CreateFileSnapshot(p filestore.CreateParams) (filestore.CreateResult, error) {
	if err := e.requireReady(); err != nil {
		return filestore.CreateResult{}, err
	}
	result, err := e.files.Create(p)
	if err != nil {
		return result, err
	}
	if e.enrich != nil {
		content, readErr := os.ReadFile(p.FilePath)
		if readErr == nil {
			e.enrich.Enqueue(enrichment.Job{
				SnapshotID:   result.SnapshotID,
				OriginalPath: p.FilePath,
				Content:      content,
			})
		}
	}
	return result, nil
}

// RestoreFileSnapshot implements restore_file_snapshot.
func (e *Engine) RestoreFileSnapshot(snapshotID string) (filestore.RestoreResult, error) {
	if err := e.requireReady(); err != nil {
		return filestore.RestoreResult{}, err
	}
	return e.files.Restore(snapshotID)
}

// ListFileSnapshots implements list_file_snapshots.
func (e *Engine) ListFileSnapshots(p filestore.ListParams) ([]coderecoder.FileSnapshot, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.files.List(p), nil
}

// DeleteFileSnapshot implements delete_file_snapshot.
func (e *Engine) DeleteFileSnapshot(snapshotID string) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	return e.files.Delete(snapshotID)
}

// CreateProjectSnapshot implements create_project_snapshot.
func (e *Engine) CreateProjectSnapshot(ctx context.Context, p projectstore.CreateParams) (projectstore.CreateResult, error) {
	if err := e.requireReady(); err != nil {
		return projectstore.CreateResult{}, err
	}
	return e.projects.Create(ctx, p)
}

// ListProjectSnapshots implements list_project_snapshots.
func (e *Engine) ListProjectSnapshots() ([]projectstore.ListedSnapshot, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.projects.List(), nil
}

// RestoreProjectSnapshot implements restore_project_snapshot.
func (e *Engine) RestoreProjectSnapshot(snapshotID string) (projectstore.RestoreResult, error) {
	if err := e.requireReady(); err != nil {
		return projectstore.RestoreResult{}, err
	}
	return e.projects.Restore(snapshotID)
}

// PruneProjectSnapshots implements the dry-run retention preview
// spec.md §12 adds: which snapshots auto-cleanup would reap right now.
func (e *Engine) PruneProjectSnapshots() ([]coderecoder.ProjectSnapshot, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	return e.projects.PruneDryRun(), nil
}

// CacheDir returns the bound project's cache directory, or "" if not
// activated.
func (e *Engine) CacheDir() string { return e.cacheDir }

// ProjectRoot returns the bound project's root, or "" if not activated.
func (e *Engine) ProjectRoot() string { return e.projectRoot }
