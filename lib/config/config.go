// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package config implements reading and writing of the crossdrop
// preferences file.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/syncthing/crossdrop/lib/locations"
	"github.com/syncthing/crossdrop/lib/osutil"
)

const (
	DefaultDiscoveryPort = 12345
	DefaultReplyPort     = 12346
)

var errPortRange = errors.New("port out of range")

// Configuration holds the user preferences. The JSON tags double as YAML
// keys, so a plain JSON preferences file loads unchanged.
type Configuration struct {
	DeviceName    string   `json:"device_name"`
	ReceiveDir    string   `json:"save_to_directory"`
	MaxFileSizeGB int      `json:"max_filesize" default:"1"`
	Encryption    bool     `json:"encryption" default:"false"`
	DiscoveryPort int      `json:"discovery_port" default:"12345"`
	ReplyPort     int      `json:"reply_port" default:"12346"`
	Ignores       []string `json:"ignores,omitempty"`
}

// New returns a configuration with every default filled in.
func New() Configuration {
	var cfg Configuration
	setDefaults(&cfg)
	cfg.prepare()
	return cfg
}

func (cfg Configuration) Copy() Configuration {
	newCfg := cfg
	newCfg.Ignores = slices.Clone(cfg.Ignores)
	return newCfg
}

// MaxFileSize returns the per file size limit in bytes, or zero for no limit.
func (cfg Configuration) MaxFileSize() int64 {
	if cfg.MaxFileSizeGB <= 0 {
		return 0
	}
	return int64(cfg.MaxFileSizeGB) << 30
}

// Read parses a configuration document. Keys missing from the document keep
// their defaults.
func Read(r io.Reader) (Configuration, error) {
	bs, err := io.ReadAll(r)
	if err != nil {
		return Configuration{}, err
	}

	var cfg Configuration
	setDefaults(&cfg)
	if err := yaml.Unmarshal(bs, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg.prepare()
	if err := cfg.validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Write serializes the configuration as YAML.
func (cfg Configuration) Write(w io.Writer) error {
	bs, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(bs)
	return err
}

// Load reads the configuration at path. A missing file yields the defaults
// and fs.ErrNotExist wrapped in the returned error, so callers can decide to
// create it.
func Load(path string) (Configuration, error) {
	fd, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), fmt.Errorf("loading configuration: %w", err)
	}
	if err != nil {
		return Configuration{}, err
	}
	defer fd.Close()

	cfg, err := Read(fd)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", path, err)
	}
	l.Debugln("loaded configuration from", path)
	return cfg, nil
}

// LoadOrDefault loads the configuration at path, writing out the defaults
// first if there is no file yet.
func LoadOrDefault(path string) (Configuration, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.Infoln("Default configuration saved to", path)
		return cfg, cfg.Save(path)
	}
	return cfg, err
}

// Save writes the configuration atomically to path.
func (cfg Configuration) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := osutil.WriteAtomic(path, cfg.Write); err != nil {
		l.Debugln("saving configuration:", err)
		return err
	}
	l.Debugln("saved configuration to", path)
	return nil
}

func (cfg *Configuration) prepare() {
	cfg.DeviceName = strings.TrimSpace(cfg.DeviceName)
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName()
	}
	if cfg.ReceiveDir == "" {
		cfg.ReceiveDir = locations.Get(locations.DefReceiveDir)
	}
	cfg.Ignores = uniqueStrings(cfg.Ignores)
}

func (cfg Configuration) validate() error {
	for _, p := range []int{cfg.DiscoveryPort, cfg.ReplyPort} {
		if p < 0 || p > 65535 {
			return fmt.Errorf("%w: %d", errPortRange, p)
		}
	}
	if cfg.DiscoveryPort == 0 {
		return fmt.Errorf("%w: discovery port must be set", errPortRange)
	}
	return nil
}

func defaultDeviceName() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "crossdrop"
	}
	return name
}

func setDefaults(data interface{}) {
	s := reflect.ValueOf(data).Elem()
	t := s.Type()

	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		tag := t.Field(i).Tag

		v := tag.Get("default")
		if len(v) > 0 {
			switch f.Interface().(type) {
			case string:
				f.SetString(v)

			case int:
				i, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					panic(err)
				}
				f.SetInt(i)

			case bool:
				f.SetBool(v == "true")

			default:
				panic(f.Type())
			}
		}
	}
}

func uniqueStrings(ss []string) []string {
	if len(ss) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ss))
	us := make([]string, 0, len(ss))
	for _, s := range ss {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		us = append(us, s)
	}
	return us
}
