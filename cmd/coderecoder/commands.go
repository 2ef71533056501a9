// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath        string
	cacheDirNameFlag  string
	projectFlag       string
	sessionFlag       string
	limitFlag         int
	fullSaveIntervalF int
	retentionCapFlag  int
	dryRunFlag        bool

	rootCmd = &cobra.Command{
		Use:   "coderecoder",
		Short: "Snapshot and restore files and whole projects without touching version control",
		Long: `coderecoder takes point-in-time copies of individual files or an
entire project directory and can restore either one later, independent
of whatever VCS state the project is in.`,
	}

	// --- Project lifecycle ---
	activateCmd = &cobra.Command{
		Use:   "activate [project-path]",
		Short: "Bind the engine to a project directory, creating its cache store if needed",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runActivate, // Defined in cmd_activate.go
	}
	deactivateCmd = &cobra.Command{
		Use:   "deactivate",
		Short: "Release resources held for the current project (normally automatic on exit)",
		RunE:  runDeactivate, // Defined in cmd_activate.go
	}

	// --- File snapshots ---
	fileCmd = &cobra.Command{
		Use:   "file",
		Short: "Create, restore, list, and delete snapshots of individual files",
	}
	fileCreateCmd = &cobra.Command{
		Use:   "create [file-path]",
		Short: "Copy a file into the snapshot store",
		Args:  cobra.ExactArgs(1),
		RunE:  runFileCreate, // Defined in cmd_filesnapshot.go
	}
	fileRestoreCmd = &cobra.Command{
		Use:   "restore [snapshot-id]",
		Short: "Overwrite a file's current contents with a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runFileRestore, // Defined in cmd_filesnapshot.go
	}
	fileListCmd = &cobra.Command{
		Use:   "list",
		Short: "List file snapshots, newest first",
		RunE:  runFileList, // Defined in cmd_filesnapshot.go
	}
	fileDeleteCmd = &cobra.Command{
		Use:   "delete [snapshot-id]",
		Short: "Remove a stored file snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runFileDelete, // Defined in cmd_filesnapshot.go
	}

	// --- Project snapshots ---
	projectCmd = &cobra.Command{
		Use:   "project",
		Short: "Create, restore, list, and prune whole-project snapshots",
	}
	projectCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Take a snapshot of the whole project (full or incremental, decided automatically)",
		RunE:  runProjectCreate, // Defined in cmd_projectsnapshot.go
	}
	projectRestoreCmd = &cobra.Command{
		Use:   "restore [snapshot-id]",
		Short: "Restore the project to a prior snapshot, replaying the chain it needs",
		Args:  cobra.ExactArgs(1),
		RunE:  runProjectRestore, // Defined in cmd_projectsnapshot.go
	}
	projectListCmd = &cobra.Command{
		Use:   "list",
		Short: "List project snapshots, newest first, with restorability",
		RunE:  runProjectList, // Defined in cmd_projectsnapshot.go
	}
	projectPruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Preview retention cleanup of old project snapshots with --dry-run (nothing is deleted)",
		RunE:  runProjectPrune, // Defined in cmd_projectsnapshot.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "coderecoder.yaml", "Path to the CLI's own YAML config file")
	rootCmd.PersistentFlags().StringVar(&cacheDirNameFlag, "cache-dir-name", "", "Set the CLI config's defaultCacheDirName; the engine's cache directory is always .CodeRecoder")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", ".", "Project root directory")

	rootCmd.AddCommand(activateCmd)
	activateCmd.Flags().IntVar(&fullSaveIntervalF, "full-save-interval", 0, "Saves between automatic full project snapshots (0 = leave unchanged)")
	activateCmd.Flags().IntVar(&retentionCapFlag, "retention-cap", 0, "Maximum number of project snapshots to retain (0 = leave unchanged)")
	rootCmd.AddCommand(deactivateCmd)

	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileCreateCmd)
	fileCreateCmd.Flags().String("prompt", "", "Prompt or note to associate with this snapshot")
	fileCreateCmd.Flags().StringVar(&sessionFlag, "session", "", "Session ID to attach the snapshot to (created if absent)")

	fileCmd.AddCommand(fileRestoreCmd)

	fileCmd.AddCommand(fileListCmd)
	fileListCmd.Flags().StringVar(&sessionFlag, "session", "", "Only list snapshots belonging to this session")
	fileListCmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum number of snapshots to list (0 = no limit)")

	fileCmd.AddCommand(fileDeleteCmd)

	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCreateCmd.Flags().String("prompt", "", "Prompt or note to associate with this snapshot")
	projectCreateCmd.Flags().String("name", "", "Human-readable name for this snapshot")
	projectCreateCmd.Flags().StringSlice("tags", nil, "Tags to attach to this snapshot")

	projectCmd.AddCommand(projectRestoreCmd)
	projectCmd.AddCommand(projectListCmd)

	projectCmd.AddCommand(projectPruneCmd)
	projectPruneCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report what would be reaped without deleting anything")
}
