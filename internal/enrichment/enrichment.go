// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enrichment runs the best-effort, asynchronous analysis
// writer spec.md §4.5/§9 describes: a background task that may attach
// an AI-produced summary to an already-committed FileSnapshot, holding
// no references to request-scoped state and never blocking the
// operation that created the snapshot.
//
// The queue is a single rate-limited worker loop, grounded on the
// three-tier limiter in rubicon-ClaraVerse's
// backend/internal/services/scraper_ratelimit.go (trimmed to the one
// tier this writer needs — a global cap on how often it calls out to
// the analysis collaborator). Finished results are cached, keyed by
// snapshot id, in a local BadgerDB instance opened the way the teacher's
// services/trace/storage/badger.Open does, standing in for the
// "analysis/" cache directory spec.md §6 reserves for enrichment.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	badger "github.com/dgraph-io/badger/v4"
	"golang.org/x/time/rate"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/internal/filestore"
	"github.com/coderecoder/coderecoder/internal/metrics"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

// Analyzer is the opaque external collaborator that produces a
// human-readable summary and change-analysis string for a file
// snapshot's content. Spec.md §1 treats the real AI analysis service
// as out of scope; callers outside this package supply an
// implementation (or none, in which case enrichment never does
// anything useful but the queue still drains safely).
type Analyzer interface {
	Analyze(ctx context.Context, originalPath string, content []byte) (summary, changeAnalysis string, err error)
}

// Job is one pending enrichment request.
type Job struct {
	SnapshotID   string
	OriginalPath string
	Content      []byte
}

// Writer drains a queue of Jobs, calling the Analyzer at a bounded
// rate and writing results back through the owning file store's write
// lock, per the enrichment seam spec.md §9 calls for.
type Writer struct {
	store    *filestore.Store
	analyzer Analyzer
	limiter  *rate.Limiter
	cache    *badger.DB
	log      *logging.Logger

	queue chan Job
	done  chan struct{}
}

// Options configures New.
type Options struct {
	// RatePerSecond bounds how often the writer calls Analyzer.Analyze.
	// Defaults to 1 req/s. The burst is int(2*RatePerSecond)+1, i.e. 3
	// at the default rate.
	RatePerSecond float64
	// CacheDir is the BadgerDB directory (normally
	// .CodeRecoder/analysis). Required.
	CacheDir string
	QueueSize int
	Logger    *logging.Logger
}

// New opens the analysis cache and starts the writer's drain loop. The
// caller must call Close when the owning store shuts down.
func New(store *filestore.Store, analyzer Analyzer, opts Options) (*Writer, error) {
	if opts.CacheDir == "" {
		return nil, errors.New("enrichment: CacheDir is required")
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}

	if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
		return nil, coderecoder.Wrap(coderecoder.IoError, err, "creating analysis cache dir %q", opts.CacheDir)
	}
	db, err := badger.Open(badger.DefaultOptions(opts.CacheDir).WithLogger(nil))
	if err != nil {
		return nil, coderecoder.Wrap(coderecoder.IoError, err, "opening analysis cache at %q", opts.CacheDir)
	}

	w := &Writer{
		store:    store,
		analyzer: analyzer,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), int(opts.RatePerSecond*2)+1),
		cache:    db,
		log:      log.With("component", "enrichment"),
		queue:    make(chan Job, opts.QueueSize),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Enqueue schedules a job for best-effort enrichment. It never blocks
// the caller for more than the channel buffer allows; if the queue is
// full the job is dropped and logged — enrichment is never load-bearing.
func (w *Writer) Enqueue(job Job) {
	select {
	case w.queue <- job:
		metrics.EnrichmentQueueDepth.Set(float64(len(w.queue)))
	default:
		w.log.Warn("enrichment queue full, dropping job", "snapshot", job.SnapshotID)
	}
}

func (w *Writer) run() {
	defer close(w.done)
	ctx := context.Background()
	for job := range w.queue {
		metrics.EnrichmentQueueDepth.Set(float64(len(w.queue)))
		w.process(ctx, job)
	}
}

func (w *Writer) process(ctx context.Context, job Job) {
	if w.analyzer == nil {
		return
	}

	if cached, ok := w.readCache(job.SnapshotID); ok {
		w.commit(job.SnapshotID, cached.Summary, cached.ChangeAnalysis)
		return
	}

	if err := w.limiter.Wait(ctx); err != nil {
		w.log.Warn("enrichment: rate limiter wait failed", "snapshot", job.SnapshotID, "error", err)
		return
	}

	summary, changeAnalysis, err := w.analyzer.Analyze(ctx, job.OriginalPath, job.Content)
	if err != nil {
		w.log.Warn("enrichment: analyzer failed, dropping", "snapshot", job.SnapshotID, "error", err)
		return
	}

	w.writeCache(job.SnapshotID, cachedResult{Summary: summary, ChangeAnalysis: changeAnalysis})
	w.commit(job.SnapshotID, summary, changeAnalysis)
}

func (w *Writer) commit(snapshotID, summary, changeAnalysis string) {
	if err := w.store.SetEnrichment(snapshotID, summary, changeAnalysis); err != nil {
		w.log.Warn("enrichment: failed to write back result", "snapshot", snapshotID, "error", err)
	}
}

type cachedResult struct {
	Summary        string `json:"summary"`
	ChangeAnalysis string `json:"changeAnalysis"`
}

func (w *Writer) readCache(snapshotID string) (cachedResult, bool) {
	var result cachedResult
	err := w.cache.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	return result, err == nil
}

func (w *Writer) writeCache(snapshotID string, result cachedResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	err = w.cache.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotID), data)
	})
	if err != nil {
		w.log.Warn("enrichment: failed to cache result", "snapshot", snapshotID, "error", err)
	}
}

// Close stops accepting new jobs, drains the queue, and closes the
// analysis cache.
func (w *Writer) Close() error {
	close(w.queue)
	<-w.done
	return w.cache.Close()
}
