// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

// CLIConfig is the engine CLI's own configuration file (distinct from
// the per-project documents under .CodeRecoder/config/), loaded once
// at startup the way the teacher's cmd/aleutian/main.go loads
// config.yaml in a Cobra PersistentPreRun hook.
type CLIConfig struct {
	DefaultCacheDirName string        `yaml:"defaultCacheDirName"`
	Logging             logging.Config `yaml:"logging"`
}

// DefaultCLIConfig is used when no config file is present.
func DefaultCLIConfig() CLIConfig {
	return CLIConfig{
		DefaultCacheDirName: ".CodeRecoder",
		Logging:             logging.Config{Level: logging.LevelInfo, Service: "coderecoder"},
	}
}

// LoadCLIConfig reads path as YAML, falling back to DefaultCLIConfig
// if the file does not exist — unlike the teacher's main.go, a missing
// CLI config file is not fatal, since every command also works from
// flags and environment defaults alone.
func LoadCLIConfig(path string) (CLIConfig, error) {
	cfg := DefaultCLIConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, coderecoder.Wrap(coderecoder.IoError, err, "reading CLI config %q", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, coderecoder.Wrap(coderecoder.Corrupt, err, "parsing CLI config %q", path)
	}
	return cfg, nil
}
