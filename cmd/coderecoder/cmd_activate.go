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

	"github.com/coderecoder/coderecoder/internal/config"
	"github.com/coderecoder/coderecoder/internal/engine"
)

func runActivate(cmd *cobra.Command, args []string) error {
	path := projectFlag
	if len(args) == 1 {
		path = args[0]
	}

	eng := engine.New(log)
	cacheDir, err := eng.Activate(engine.ActivateParams{ProjectPath: path})
	if err != nil {
		return err
	}
	defer eng.Deactivate(engine.DeactivateParams{SaveHistory: true})

	settings, err := config.LoadSettings(cacheDir)
	if err != nil {
		return err
	}
	changed := false
	if fullSaveIntervalF > 0 {
		settings.FullSaveInterval = fullSaveIntervalF
		changed = true
	}
	if retentionCapFlag > 0 {
		settings.RetentionCap = retentionCapFlag
		changed = true
	}
	if changed {
		if err := config.SaveSettings(cacheDir, settings); err != nil {
			return err
		}
	}

	fmt.Printf("activated %s\ncache directory: %s\n", eng.ProjectRoot(), cacheDir)
	return nil
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	eng := engine.New(log)
	if _, err := eng.Activate(engine.ActivateParams{ProjectPath: projectFlag}); err != nil {
		return err
	}
	if err := eng.Deactivate(engine.DeactivateParams{SaveHistory: true}); err != nil {
		return err
	}
	fmt.Println("deactivated")
	return nil
}
