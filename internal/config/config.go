// Copyright (c) 2026 Vesselcomm. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package config loads the forwarder's configuration file. The file is a
// structured multi-section document (INI/TOML/JSON/YAML, selected by file
// extension) with three sections: [general], [ais] and [location].
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// searchDirs are tried, in order, when --config names a relative path.
var searchDirs = []string{"/etc/ais-forwarder", "/usr/local/etc/ais-forwarder"}

const (
	defaultInterval               = 60
	defaultLocationInterval       = 600
	defaultLocationAnchorInterval = 86400
)

// General holds the [general] section.
type General struct {
	MMSI                   uint32
	Provider               string
	Interval               int
	LocationInterval       int
	LocationAnchorInterval int
	DSCP                   string
}

// Config is the fully parsed and validated configuration.
type Config struct {
	General  General
	AIS      map[string]string
	Location map[string]string
}

// LoadConfig resolves path, reads it with viper (format inferred from the
// extension) and validates the result, filling in defaults the same way the
// teacher's AgentConfig.validate did.
func LoadConfig(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(resolved)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %q: %w", resolved, err)
	}

	cfg := &Config{
		General: General{
			MMSI:                   v.GetUint32("general.mmsi"),
			Provider:               v.GetString("general.provider"),
			Interval:               v.GetInt("general.interval"),
			LocationInterval:       v.GetInt("general.location_interval"),
			LocationAnchorInterval: v.GetInt("general.location_anchor_interval"),
			DSCP:                   v.GetString("general.dscp"),
		},
		AIS:      v.GetStringMapString("ais"),
		Location: v.GetStringMapString("location"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePath implements the spec's search-path rule: absolute paths are
// used verbatim; relative paths are tried under /etc/ais-forwarder then
// /usr/local/etc/ais-forwarder.
func resolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	for _, dir := range searchDirs {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%q not found in %v", path, searchDirs)
}

// validate fills in defaults and rejects configuration that the forwarder
// cannot run without.
func (c *Config) validate() error {
	if c.General.MMSI == 0 {
		return fmt.Errorf("general.mmsi is required")
	}
	if c.General.Provider == "" {
		return fmt.Errorf("general.provider is required")
	}
	if c.General.Interval <= 0 {
		c.General.Interval = defaultInterval
	}
	if c.General.LocationInterval <= 0 {
		c.General.LocationInterval = defaultLocationInterval
	}
	if c.General.LocationAnchorInterval <= 0 {
		c.General.LocationAnchorInterval = defaultLocationAnchorInterval
	}
	if c.AIS == nil {
		c.AIS = map[string]string{}
	}
	if c.Location == nil {
		c.Location = map[string]string{}
	}
	return nil
}
