// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coderecoder/coderecoder/internal/engine"
	"github.com/coderecoder/coderecoder/internal/projectstore"
)

func runProjectCreate(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	name, _ := cmd.Flags().GetString("name")
	tags, _ := cmd.Flags().GetStringSlice("tags")

	return withEngine(func(eng *engine.Engine) error {
		result, err := eng.CreateProjectSnapshot(context.Background(), projectstore.CreateParams{
			Prompt: prompt,
			Name:   name,
			Tags:   tags,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created snapshot %s (save #%d, %s)\n", result.ID, result.SaveNumber, result.Kind)
		if len(result.ChangedFiles) > 0 {
			fmt.Printf("changed files: %v\n", result.ChangedFiles)
		}
		return nil
	})
}

func runProjectRestore(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		result, err := eng.RestoreProjectSnapshot(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("restored save #%d (%s)\n", result.SaveNumber, result.Kind)
		return nil
	})
}

func runProjectList(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		snaps, err := eng.ListProjectSnapshots()
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("#%d  %s  %s  %s  %s\n", s.SaveNumber, s.ID, s.Kind, s.Timestamp.Format("2006-01-02T15:04:05Z07:00"), s.Restorability)
		}
		return nil
	})
}

func runProjectPrune(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		candidates, err := eng.PruneProjectSnapshots()
		if err != nil {
			return err
		}
		if !dryRunFlag {
			fmt.Println("project prune currently only supports --dry-run; automatic retention already runs on every project snapshot create")
			return nil
		}
		if len(candidates) == 0 {
			fmt.Println("nothing would be reaped")
			return nil
		}
		fmt.Println("would reap:")
		for _, s := range candidates {
			fmt.Printf("  #%d  %s  %s\n", s.SaveNumber, s.ID, s.Kind)
		}
		return nil
	})
}
