// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package lockmgr serializes writes to a store by key, the same shape
// of problem the teacher's services/trace/lock.FileLockManager solves
// with OS-level flock and a lock-info file on disk. The engine's stores
// run a single process per project root and never need to coordinate
// across processes, so this package trims that to an in-memory
// mutex-per-key map and keeps only the part of the teacher's design
// that still earns its keep here: fsnotify-based awareness of external
// edits landing on a watched file (see WatchFile). Watching is
// independent of WithLock; holding or releasing a key does not start or
// stop a watch.
package lockmgr

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/coderecoder/coderecoder/pkg/logging"
)

// ExternalChangeEvent is delivered to a WatchFile callback when the
// watched file changes on disk, whether or not any key is locked.
type ExternalChangeEvent struct {
	Path string
	Op   fsnotify.Op
}

// keyLock is a per-key entry: a mutex plus a waiter count so Manager
// can garbage-collect entries nobody references any more.
type keyLock struct {
	mu      sync.Mutex
	waiters int
}

// Manager serializes WithLock calls sharing the same key and, on
// request, watches individual files for external modification.
//
// The zero value is not usable; construct with New.
type Manager struct {
	mapMu sync.Mutex
	locks map[string]*keyLock

	watcher   *fsnotify.Watcher
	watcherMu sync.Mutex
	callbacks map[string][]func(ExternalChangeEvent)

	log *logging.Logger
}

// New creates a Manager and starts its fsnotify event loop. Callers
// must call Close when done to release the underlying watcher.
func New(log *logging.Logger) (*Manager, error) {
	if log == nil {
		log = logging.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	m := &Manager{
		locks:     make(map[string]*keyLock),
		watcher:   watcher,
		callbacks: make(map[string][]func(ExternalChangeEvent)),
		log:       log.With("component", "lockmgr"),
	}
	go m.watchLoop()
	return m, nil
}

// WithLock runs fn while holding the exclusive lock for key. Calls
// sharing a key are serialized; calls with different keys run
// concurrently. This is the engine's equivalent of the per-project
// write lock spec §4.8 requires around store mutation.
func (m *Manager) WithLock(key string, fn func() error) error {
	kl := m.acquire(key)
	defer m.release(key, kl)

	kl.mu.Lock()
	defer kl.mu.Unlock()
	return fn()
}

func (m *Manager) acquire(key string) *keyLock {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	kl, ok := m.locks[key]
	if !ok {
		kl = &keyLock{}
		m.locks[key] = kl
	}
	kl.waiters++
	return kl
}

func (m *Manager) release(key string, kl *keyLock) {
	m.mapMu.Lock()
	defer m.mapMu.Unlock()

	kl.waiters--
	if kl.waiters == 0 {
		delete(m.locks, key)
	}
}

// WatchFile watches absPath for external changes and invokes callback
// for each one, until ctx is cancelled. It blocks until ctx.Done, so
// callers run it in its own goroutine.
func (m *Manager) WatchFile(ctx context.Context, absPath string, callback func(ExternalChangeEvent)) {
	abs, err := filepath.Abs(absPath)
	if err != nil {
		m.log.Warn("lockmgr: cannot resolve watch path", "path", absPath, "error", err)
		return
	}

	m.addWatch(abs, callback)
	defer m.removeWatch(abs)

	<-ctx.Done()
}

func (m *Manager) addWatch(absPath string, callback func(ExternalChangeEvent)) {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	if err := m.watcher.Add(absPath); err != nil {
		m.log.Warn("lockmgr: failed to watch file", "path", absPath, "error", err)
		return
	}
	m.callbacks[absPath] = append(m.callbacks[absPath], callback)
}

func (m *Manager) removeWatch(absPath string) {
	m.watcherMu.Lock()
	defer m.watcherMu.Unlock()

	_ = m.watcher.Remove(absPath)
	delete(m.callbacks, absPath)
}

func (m *Manager) watchLoop() {
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.dispatch(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Warn("lockmgr: watcher error", "error", err)
		}
	}
}

func (m *Manager) dispatch(event fsnotify.Event) {
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return
	}

	m.watcherMu.Lock()
	callbacks := append([]func(ExternalChangeEvent){}, m.callbacks[abs]...)
	m.watcherMu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	ev := ExternalChangeEvent{Path: abs, Op: event.Op}
	for _, cb := range callbacks {
		cb(ev)
	}
}

// Close stops the watcher. Pending WithLock calls are unaffected.
func (m *Manager) Close() error {
	return m.watcher.Close()
}
