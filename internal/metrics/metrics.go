// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics exposes the Prometheus collectors the engine's stores
// populate: change-detector layer hits, snapshot create/restore
// durations, and retention reaps. The collectors are built with the
// plain prometheus constructors and registered on a private registry in
// init(); promauto and the default registry are not used. Mounting a
// /metrics HTTP handler over Registry() is a transport concern and is
// out of scope here; a caller embedding this engine behind its own
// server does that with promhttp.HandlerFor(metrics.Registry(), ...).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var registry = prometheus.NewRegistry()

// Registry returns the collector registry every metric in this package
// is registered against, for an embedding transport to expose.
func Registry() *prometheus.Registry { return registry }

var (
	// ChangeDetectorLayerHits counts which fallback layer (vcs, hash,
	// stat, recent) produced the winning result for a Detect call.
	ChangeDetectorLayerHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coderecoder_change_detector_layer_hits_total",
		Help: "Change detector calls won by each fallback layer",
	}, []string{"layer"})

	// ChangeDetectorFilesChanged counts total changed files returned
	// across all Detect calls.
	ChangeDetectorFilesChanged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coderecoder_change_detector_files_changed_total",
		Help: "Total files reported changed by the change detector",
	})

	// ProjectSnapshotCreateDuration times create_project_snapshot end
	// to end, labeled by resulting kind (full/incremental).
	ProjectSnapshotCreateDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coderecoder_project_snapshot_create_duration_seconds",
		Help:    "Duration of create_project_snapshot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"kind"})

	// ProjectSnapshotRestoreDuration times restore_project_snapshot.
	ProjectSnapshotRestoreDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coderecoder_project_snapshot_restore_duration_seconds",
		Help:    "Duration of restore_project_snapshot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	// RetentionReapsTotal counts snapshots deleted by retention cleanup.
	RetentionReapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coderecoder_retention_reaps_total",
		Help: "Total project snapshots removed by retention cleanup",
	})

	// FileSnapshotCreateTotal counts create_file_snapshot calls.
	FileSnapshotCreateTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coderecoder_file_snapshot_create_total",
		Help: "Total file snapshots created",
	})

	// EnrichmentQueueDepth reports the number of pending enrichment jobs.
	EnrichmentQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coderecoder_enrichment_queue_depth",
		Help: "Number of file snapshots awaiting enrichment",
	})
)

func init() {
	registry.MustRegister(
		ChangeDetectorLayerHits,
		ChangeDetectorFilesChanged,
		ProjectSnapshotCreateDuration,
		ProjectSnapshotRestoreDuration,
		RetentionReapsTotal,
		FileSnapshotCreateTotal,
		EnrichmentQueueDepth,
	)
}
