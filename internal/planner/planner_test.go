// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
)

func snap(id string, saveNumber int, kind coderecoder.SnapshotKind) coderecoder.ProjectSnapshot {
	return coderecoder.ProjectSnapshot{ID: id, SaveNumber: saveNumber, Kind: kind}
}

func allNonEmpty(string) bool { return true }

func TestPlan_FullTargetReturnsItself(t *testing.T) {
	target := snap("full1", 1, coderecoder.KindFull)
	chain, err := Plan(target, []coderecoder.ProjectSnapshot{target}, allNonEmpty, nil)
	require.NoError(t, err)
	require.Equal(t, []coderecoder.ProjectSnapshot{target}, chain)
}

func TestPlan_FullTargetWithEmptyDirectoryIsCorrupt(t *testing.T) {
	target := snap("full1", 1, coderecoder.KindFull)
	_, err := Plan(target, []coderecoder.ProjectSnapshot{target}, func(string) bool { return false }, nil)
	require.Error(t, err)
	require.Equal(t, coderecoder.Corrupt, coderecoder.KindOf(err))
}

func TestPlan_ChainFromFullThroughIncrementals(t *testing.T) {
	all := []coderecoder.ProjectSnapshot{
		snap("s1", 1, coderecoder.KindFull),
		snap("s2", 2, coderecoder.KindIncremental),
		snap("s3", 3, coderecoder.KindIncremental),
		snap("s4", 4, coderecoder.KindFull),
		snap("s5", 5, coderecoder.KindIncremental),
		snap("s6", 6, coderecoder.KindIncremental),
	}

	chain, err := Plan(all[5], all, allNonEmpty, nil)
	require.NoError(t, err)

	ids := make([]string, len(chain))
	for i, s := range chain {
		ids[i] = s.ID
	}
	require.Equal(t, []string{"s4", "s5", "s6"}, ids)
}

func TestPlan_EmptyNearestFullFallsBackToEarlierFull(t *testing.T) {
	all := []coderecoder.ProjectSnapshot{
		snap("s1", 1, coderecoder.KindFull),
		snap("s2", 2, coderecoder.KindIncremental),
		snap("s3", 3, coderecoder.KindFull),
		snap("s4", 4, coderecoder.KindIncremental),
	}

	nonEmpty := func(id string) bool { return id != "s3" }

	chain, err := Plan(all[3], all, nonEmpty, nil)
	require.NoError(t, err)
	require.Equal(t, "s1", chain[0].ID)
	require.Equal(t, "s4", chain[len(chain)-1].ID)
}

func TestPlan_NoBaselineWhenNoUsableFull(t *testing.T) {
	all := []coderecoder.ProjectSnapshot{
		snap("s1", 1, coderecoder.KindFull),
		snap("s2", 2, coderecoder.KindIncremental),
	}
	_, err := Plan(all[1], all, func(string) bool { return false }, nil)
	require.Error(t, err)
	require.Equal(t, coderecoder.NoBaseline, coderecoder.KindOf(err))
}

func TestPlan_SkipsEmptyIncrementalWithWarning(t *testing.T) {
	all := []coderecoder.ProjectSnapshot{
		snap("s1", 1, coderecoder.KindFull),
		snap("s2", 2, coderecoder.KindIncremental),
		snap("s3", 3, coderecoder.KindIncremental),
	}
	nonEmpty := func(id string) bool { return id != "s2" }

	chain, err := Plan(all[2], all, nonEmpty, nil)
	require.NoError(t, err)

	ids := make([]string, len(chain))
	for i, s := range chain {
		ids[i] = s.ID
	}
	require.Equal(t, []string{"s1", "s3"}, ids)
}

func TestPlan_IncrementalTargetWithEmptyDirectoryIsCorrupt(t *testing.T) {
	all := []coderecoder.ProjectSnapshot{
		snap("s1", 1, coderecoder.KindFull),
		snap("s2", 2, coderecoder.KindIncremental),
	}
	nonEmpty := func(id string) bool { return id != "s2" }

	_, err := Plan(all[1], all, nonEmpty, nil)
	require.Error(t, err)
	require.Equal(t, coderecoder.Corrupt, coderecoder.KindOf(err))
}
