// Copyright (C) 2019 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package locations

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/syncthing/crossdrop/lib/osutil"
)

type LocationEnum string

// Use strings as keys to make printout and serialization of the locations map
// more meaningful.
const (
	ConfigFile    LocationEnum = "config"
	ManifestFile  LocationEnum = "manifest"
	StageDir      LocationEnum = "stage"
	DefReceiveDir LocationEnum = "defReceiveDir"
)

type BaseDirEnum string

const (
	// Overridden by --home flag
	ConfigBaseDir BaseDirEnum = "config"
	DataBaseDir   BaseDirEnum = "data"
	// User's home directory, *not* --home flag
	UserHomeBaseDir BaseDirEnum = "userHome"
)

const appName = "crossdrop"

// Platform dependent directories
var baseDirs = make(map[BaseDirEnum]string, 3)

func init() {
	userHome := userHomeDir()
	config := defaultConfigDir(userHome)
	baseDirs[UserHomeBaseDir] = userHome
	baseDirs[ConfigBaseDir] = config
	baseDirs[DataBaseDir] = defaultDataDir(userHome, config)

	expandLocations()
}

// SetBaseDir overrides one of the base directories and re-expands every
// location derived from it.
func SetBaseDir(baseDirName BaseDirEnum, path string) error {
	if _, ok := baseDirs[baseDirName]; !ok {
		return fmt.Errorf("unknown base dir: %s", baseDirName)
	}
	baseDirs[baseDirName] = filepath.Clean(path)
	expandLocations()
	return nil
}

func Get(location LocationEnum) string {
	relPath := locations[location]
	fullPath, err := osutil.ExpandTilde(relPath)
	if err != nil {
		return relPath
	}
	return fullPath
}

func GetBaseDir(baseDir BaseDirEnum) string {
	return baseDirs[baseDir]
}

// Use the variables from baseDirs here
var locationTemplates = map[LocationEnum]string{
	ConfigFile:    "${config}/config.yaml",
	ManifestFile:  "${data}/manifest.json",
	StageDir:      "${data}/outgoing",
	DefReceiveDir: "${userHome}/Received",
}

var locations = make(map[LocationEnum]string)

// expandLocations replaces the variables in the locations map with actual
// directory locations.
func expandLocations() {
	newLocations := make(map[LocationEnum]string)
	for key, dir := range locationTemplates {
		for varName, value := range baseDirs {
			dir = strings.ReplaceAll(dir, "${"+string(varName)+"}", value)
		}
		newLocations[key] = filepath.Clean(dir)
	}
	locations = newLocations
}

func userHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return "~"
}

// defaultConfigDir returns the default configuration directory, as figured
// out by various the environment variables present on each platform.
func defaultConfigDir(userHome string) string {
	switch runtime.GOOS {
	case "windows":
		if p := os.Getenv("LocalAppData"); p != "" {
			return filepath.Join(p, "Crossdrop")
		}
		return filepath.Join(os.Getenv("AppData"), "Crossdrop")

	case "darwin":
		return filepath.Join(userHome, "Library/Application Support/Crossdrop")

	default:
		return unixConfigDir(userHome, os.Getenv("XDG_CONFIG_HOME"))
	}
}

func unixConfigDir(userHome, xdgConfigHome string) string {
	if xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName)
	}
	return filepath.Join(userHome, ".config", appName)
}

// defaultDataDir returns the default data directory, which usually is the
// config directory but might be something else.
func defaultDataDir(userHome, config string) string {
	switch runtime.GOOS {
	case "windows", "darwin":
		return config

	default:
		return unixDataDir(userHome, config, os.Getenv("XDG_DATA_HOME"))
	}
}

func unixDataDir(userHome, config, xdgDataHome string) string {
	// Always use this env var, as it's explicitly set by the user
	if xdgDataHome != "" {
		return filepath.Join(xdgDataHome, appName)
	}
	// Only use the XDG default if a crossdrop specific dir already exists.
	xdgDefault := filepath.Join(userHome, ".local/share", appName)
	if _, err := os.Lstat(xdgDefault); err == nil {
		return xdgDefault
	}
	return config
}
