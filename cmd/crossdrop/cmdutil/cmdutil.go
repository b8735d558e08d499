// Copyright (C) 2021 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package cmdutil

import (
	"errors"

	"github.com/syncthing/crossdrop/lib/locations"
)

// DirOptions are shared by every subcommand.
type DirOptions struct {
	ConfDir string `name:"config" short:"C" placeholder:"PATH" env:"CROSSDROP_CONFDIR" help:"Set configuration directory"`
	HomeDir string `name:"home" short:"H" placeholder:"PATH" env:"CROSSDROP_HOMEDIR" help:"Set configuration and data directory"`
	DataDir string `name:"data" short:"D" placeholder:"PATH" env:"CROSSDROP_DATADIR" help:"Set data directory (manifest and staged files)"`
}

func SetConfigDataLocationsFromFlags(homeDir, confDir, dataDir string) error {
	homeSet := homeDir != ""
	confSet := confDir != ""
	dataSet := dataDir != ""
	switch {
	case homeSet && (confSet || dataSet):
		return errors.New("--home must not be used together with --config or --data")
	case homeSet:
		confDir = homeDir
		dataDir = homeDir
	}
	if confDir != "" {
		if err := locations.SetBaseDir(locations.ConfigBaseDir, confDir); err != nil {
			return err
		}
	}
	if dataDir != "" {
		return locations.SetBaseDir(locations.DataBaseDir, dataDir)
	}
	return nil
}
