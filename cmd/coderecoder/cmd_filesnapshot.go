// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coderecoder/coderecoder/internal/engine"
	"github.com/coderecoder/coderecoder/internal/filestore"
)

func runFileCreate(cmd *cobra.Command, args []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	return withEngine(func(eng *engine.Engine) error {
		result, err := eng.CreateFileSnapshot(filestore.CreateParams{
			FilePath:  args[0],
			Prompt:    prompt,
			SessionID: sessionFlag,
		})
		if err != nil {
			return err
		}
		fmt.Printf("created snapshot %s (%d bytes)\n", result.SnapshotID, result.FileSize)
		return nil
	})
}

func runFileRestore(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		result, err := eng.RestoreFileSnapshot(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("restored %s\n", result.RestoredPath)
		if result.BackupPath != "" {
			fmt.Printf("previous contents backed up to %s\n", result.BackupPath)
		}
		return nil
	})
}

func runFileList(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		snaps, err := eng.ListFileSnapshots(filestore.ListParams{
			SessionID: sessionFlag,
			Limit:     limitFlag,
		})
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("%s  %s  %s\n", s.ID, s.Timestamp.Format("2006-01-02T15:04:05Z07:00"), s.OriginalPath)
		}
		return nil
	})
}

func runFileDelete(cmd *cobra.Command, args []string) error {
	return withEngine(func(eng *engine.Engine) error {
		if err := eng.DeleteFileSnapshot(args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	})
}
