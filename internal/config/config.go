// Copyright (C) 2026 CodeRecoder Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads and validates the per-project configuration
// documents under .CodeRecoder/config/ (project.json, settings.json,
// cache.json, per spec.md §6), using a shared go-playground/validator
// instance the way the teacher's
// services/orchestrator/datatypes/chat.go validates request payloads —
// struct tags plus one registered custom validator, rather than
// hand-rolled field checks.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/coderecoder/coderecoder/internal/coderecoder"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("positiveorzero", validatePositiveOrZero)
}

func validatePositiveOrZero(fl validator.FieldLevel) bool {
	return fl.Field().Int() >= 0
}

// ProjectConfig is project.json: identity and activation metadata for
// a bound project.
type ProjectConfig struct {
	ProjectRoot string `json:"projectRoot" validate:"required"`
	Name        string `json:"name,omitempty"`
	Language    string `json:"language,omitempty"`
}

// SettingsConfig is settings.json: tunables governing snapshot
// materialisation and retention.
type SettingsConfig struct {
	FullSaveInterval int  `json:"fullSaveInterval" validate:"gt=0"`
	RetentionCap     int  `json:"retentionCap" validate:"gt=0"`
	AutoCleanup      bool `json:"autoCleanup"`
	RecentWindowSecs int  `json:"recentWindowSecs" validate:"positiveorzero"`
	MaxBackups       int  `json:"maxBackups" validate:"gt=0"`
}

// DefaultSettings returns the settings a freshly-activated project
// starts with.
func DefaultSettings() SettingsConfig {
	return SettingsConfig{
		FullSaveInterval: 10,
		RetentionCap:     50,
		AutoCleanup:      true,
		RecentWindowSecs: 3600,
		MaxBackups:       5,
	}
}

// CacheConfig is cache.json: the enrichment cache's own tunables,
// kept separate from SettingsConfig because it is owned by the
// enrichment writer rather than the snapshot stores.
type CacheConfig struct {
	EnrichmentRatePerSecond float64 `json:"enrichmentRatePerSecond" validate:"gt=0"`
	QueueSize               int     `json:"queueSize" validate:"gt=0"`
}

// DefaultCacheConfig returns the enrichment cache's starting tunables.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{EnrichmentRatePerSecond: 1, QueueSize: 64}
}

// Dir returns the config/ directory under a project's cache directory.
func Dir(cacheDir string) string { return filepath.Join(cacheDir, "config") }

func load[T any](path string, dflt T) (T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return dflt, nil
		}
		return dflt, coderecoder.Wrap(coderecoder.IoError, err, "reading %q", path)
	}
	v := dflt // keys missing from the file keep their default values
	if err := json.Unmarshal(data, &v); err != nil {
		return dflt, coderecoder.Wrap(coderecoder.Corrupt, err, "parsing %q", path)
	}
	if err := validate.Struct(v); err != nil {
		return dflt, coderecoder.Wrap(coderecoder.Corrupt, err, "validating %q", path)
	}
	return v, nil
}

func save(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "creating %q", filepath.Dir(path))
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "marshalling %q", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return coderecoder.Wrap(coderecoder.IoError, err, "writing %q", path)
	}
	return nil
}

// LoadProject reads project.json, returning the zero ProjectConfig if
// absent.
func LoadProject(cacheDir string) (ProjectConfig, error) {
	return load(filepath.Join(Dir(cacheDir), "project.json"), ProjectConfig{})
}

// SaveProject writes project.json.
func SaveProject(cacheDir string, cfg ProjectConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return coderecoder.Wrap(coderecoder.InvalidPath, err, "invalid project config")
	}
	return save(filepath.Join(Dir(cacheDir), "project.json"), cfg)
}

// LoadSettings reads settings.json, defaulting to DefaultSettings if
// absent.
func LoadSettings(cacheDir string) (SettingsConfig, error) {
	return load(filepath.Join(Dir(cacheDir), "settings.json"), DefaultSettings())
}

// SaveSettings writes settings.json.
func SaveSettings(cacheDir string, cfg SettingsConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return coderecoder.Wrap(coderecoder.InvalidPath, err, "invalid settings config")
	}
	return save(filepath.Join(Dir(cacheDir), "settings.json"), cfg)
}

// LoadCache reads cache.json, defaulting to DefaultCacheConfig if
// absent.
func LoadCache(cacheDir string) (CacheConfig, error) {
	return load(filepath.Join(Dir(cacheDir), "cache.json"), DefaultCacheConfig())
}

// SaveCache writes cache.json.
func SaveCache(cacheDir string, cfg CacheConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return coderecoder.Wrap(coderecoder.InvalidPath, err, "invalid cache config")
	}
	return save(filepath.Join(Dir(cacheDir), "cache.json"), cfg)
}
