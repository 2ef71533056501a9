// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package planner resolves a target project snapshot into the ordered
// chain of snapshots that reconstruct its state, per spec.md §4.7: a
// full snapshot supersedes everything before it, so the chain always
// starts from the nearest usable full and replays every snapshot after
// it up to the target, resetting again if a later full is found along
// the way.
package planner

import (
	"sort"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

// DirChecker reports whether a snapshot's on-disk directory contains
// at least one file, the non-emptiness test the planner needs without
// owning filesystem access itself.
type DirChecker func(snapshotID string) bool

// Plan returns the ordered chain of snapshots — starting with a full —
// that restore must replay to reconstruct target. snapshots need not
// be sorted; Plan sorts its own working copy by SaveNumber.
func Plan(target coderecoder.ProjectSnapshot, snapshots []coderecoder.ProjectSnapshot, nonEmpty DirChecker, log *logging.Logger) ([]coderecoder.ProjectSnapshot, error) {
	if log == nil {
		log = logging.Default()
	}
	log = log.With("component", "planner", "target", target.ID)

	bySave := make(map[int]coderecoder.ProjectSnapshot, len(snapshots))
	for _, s := range snapshots {
		bySave[s.SaveNumber] = s
	}

	if target.IsFullLike() {
		if !nonEmpty(target.ID) {
			return nil, coderecoder.New(coderecoder.Corrupt, "full snapshot %q has an empty directory", target.ID)
		}
		return []coderecoder.ProjectSnapshot{target}, nil
	}

	base, ok := findNearestFull(bySave, target.SaveNumber-1, nonEmpty)
	if !ok {
		base, ok = findAnyUsableFull(snapshots, nonEmpty)
		if !ok {
			return nil, coderecoder.New(coderecoder.NoBaseline, "no usable full snapshot exists to restore %q", target.ID)
		}
		log.Warn("degraded recovery: nearest full before target was unusable, scanned all full snapshots", "chosen_base_save_number", base.SaveNumber)
	}

	chain := []coderecoder.ProjectSnapshot{base}
	for n := base.SaveNumber + 1; n <= target.SaveNumber; n++ {
		snap, ok := bySave[n]
		if !ok {
			continue
		}

		if snap.IsFullLike() && n != target.SaveNumber {
			if !nonEmpty(snap.ID) {
				log.Warn("skipping empty full snapshot encountered mid-chain", "snapshot", snap.ID, "save_number", n)
				continue
			}
			// A later full is a cheaper baseline; reset the chain.
			chain = []coderecoder.ProjectSnapshot{snap}
			continue
		}

		if !nonEmpty(snap.ID) {
			if n == target.SaveNumber {
				return nil, coderecoder.New(coderecoder.Corrupt, "snapshot %q has an empty directory", snap.ID)
			}
			log.Warn("skipping incremental with empty directory", "snapshot", snap.ID, "save_number", n)
			continue
		}
		chain = append(chain, snap)
	}

	return chain, nil
}

func findNearestFull(bySave map[int]coderecoder.ProjectSnapshot, fromSaveNumber int, nonEmpty DirChecker) (coderecoder.ProjectSnapshot, bool) {
	for n := fromSaveNumber; n >= 1; n-- {
		snap, ok := bySave[n]
		if !ok || !snap.IsFullLike() {
			continue
		}
		if nonEmpty(snap.ID) {
			return snap, true
		}
	}
	return coderecoder.ProjectSnapshot{}, false
}

func findAnyUsableFull(snapshots []coderecoder.ProjectSnapshot, nonEmpty DirChecker) (coderecoder.ProjectSnapshot, bool) {
	fulls := make([]coderecoder.ProjectSnapshot, 0, len(snapshots))
	for _, s := range snapshots {
		if s.IsFullLike() {
			fulls = append(fulls, s)
		}
	}
	sort.Slice(fulls, func(i, j int) bool { return fulls[i].SaveNumber > fulls[j].SaveNumber })

	for _, s := range fulls {
		if nonEmpty(s.ID) {
			return s, true
		}
	}
	return coderecoder.ProjectSnapshot{}, false
}
